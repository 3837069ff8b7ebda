// Package dispatcher turns one uploaded image into one queued face task per
// detected face.
package dispatcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/kozaktomas/face-index/internal/events"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/logging"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/queue"
	"github.com/kozaktomas/face-index/internal/vision"
)

// ObjectGetter reads source image bytes.
type ObjectGetter interface {
	Get(ctx context.Context, key string) ([]byte, error)
}

// Detector finds faces in an image.
type Detector interface {
	Detect(ctx context.Context, image []byte, cred vision.Credential) ([]faces.BoundingBox, error)
}

// TaskPublisher enqueues face tasks.
type TaskPublisher interface {
	PublishTask(ctx context.Context, task faces.FaceTask) error
}

// Result summarizes one dispatch.
type Result struct {
	SourceKey string `json:"source_key"`
	Faces     int    `json:"faces"`
	Published int    `json:"published"`
}

// Dispatcher wires storage, detection and the task queue.
type Dispatcher struct {
	source    ObjectGetter
	detector  Detector
	publisher TaskPublisher
	metrics   *metrics.Metrics
	logger    *slog.Logger

	bucket string
}

// New creates a dispatcher.
func New(source ObjectGetter, detector Detector, publisher TaskPublisher, m *metrics.Metrics) *Dispatcher {
	return &Dispatcher{
		source:    source,
		detector:  detector,
		publisher: publisher,
		metrics:   m,
		logger:    logging.Component("dispatcher"),
	}
}

// WithSourceBucket restricts the dispatcher to uploads from the named bucket.
// Events naming another bucket are dropped; events naming none are accepted.
func (d *Dispatcher) WithSourceBucket(name string) *Dispatcher {
	d.bucket = name
	return d
}

// Dispatch fetches the uploaded image, runs detection and publishes one task
// per face. Detection failures degrade to zero faces. A fetch or publish
// failure is returned so the transport can redeliver the upload; tasks that
// were already published stay published.
func (d *Dispatcher) Dispatch(ctx context.Context, upload events.Upload, cred vision.Credential) (Result, error) {
	res, err := d.dispatch(ctx, upload, cred)
	d.metrics.Uploads.WithLabelValues(metrics.ResultLabel(err)).Inc()
	return res, err
}

func (d *Dispatcher) dispatch(ctx context.Context, upload events.Upload, cred vision.Credential) (Result, error) {
	log := logging.FromContext(ctx, d.logger).With("object_key", upload.ObjectKey)
	result := Result{SourceKey: upload.ObjectKey}

	if upload.ObjectKey == "" {
		return result, fmt.Errorf("%w: empty object key", faces.ErrInvalidTask)
	}
	if d.bucket != "" && upload.Bucket != "" && upload.Bucket != d.bucket {
		log.Warn("dropping upload from foreign bucket", "bucket", upload.Bucket, "source_bucket", d.bucket)
		return result, fmt.Errorf("%w: bucket %q is not the source bucket", faces.ErrInvalidTask, upload.Bucket)
	}

	image, err := d.source.Get(ctx, upload.ObjectKey)
	if err != nil {
		return result, fmt.Errorf("%w: %s: %w", faces.ErrFetch, upload.ObjectKey, err)
	}

	boxes, err := d.detector.Detect(ctx, image, cred)
	if err != nil {
		log.Warn("face detection failed, dispatching no tasks", "error", err)
		d.metrics.DetectionFailures.Inc()
		boxes = nil
	}
	result.Faces = len(boxes)
	d.metrics.FacesDetected.Add(float64(len(boxes)))

	for _, box := range boxes {
		task := faces.FaceTask{SourceKey: upload.ObjectKey, Box: box}
		if err := d.publisher.PublishTask(ctx, task); err != nil {
			return result, fmt.Errorf("%w: %w", faces.ErrPublish, err)
		}
		result.Published++
		d.metrics.TasksPublished.Inc()
	}

	log.Info("upload dispatched", "faces", result.Faces, "published", result.Published)
	return result, nil
}

// DispatchAll dispatches every upload in order, continuing past failures,
// and returns the joined errors.
func (d *Dispatcher) DispatchAll(ctx context.Context, uploads []events.Upload, cred vision.Credential) ([]Result, error) {
	results := make([]Result, 0, len(uploads))
	var errs []error
	for _, u := range uploads {
		res, err := d.Dispatch(ctx, u, cred)
		results = append(results, res)
		if err != nil {
			errs = append(errs, err)
		}
	}
	return results, errors.Join(errs...)
}

// QueueHandler adapts the dispatcher to a queue consumer. Upload
// notifications delivered over pubsub carry no credential, so the configured
// fallback is used.
func (d *Dispatcher) QueueHandler(fallback vision.Credential) queue.Handler {
	return func(ctx context.Context, body []byte) faces.Outcome {
		uploads, err := events.ParseUpload(body)
		if err != nil {
			logging.FromContext(ctx, d.logger).Warn("dropping malformed upload event", "error", err)
			return faces.Classify(fmt.Errorf("%w: %w", faces.ErrInvalidTask, err))
		}
		_, err = d.DispatchAll(ctx, uploads, fallback)
		return faces.Classify(err)
	}
}
