// Package cropper implements the crop worker: one face task in, one stored
// JPEG crop and one index row out.
package cropper

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/kozaktomas/face-index/internal/constants"
	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/logging"
	"github.com/kozaktomas/face-index/internal/metrics"
	"github.com/kozaktomas/face-index/internal/queue"
)

// Default settings.
const (
	DefaultLinkTTL      = 100 * time.Second
	DefaultFetchTimeout = 30 * time.Second
	DefaultQuality      = 95
)

// Signer issues short-lived read links for source images.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// ObjectPutter stores crop bytes.
type ObjectPutter interface {
	Put(ctx context.Context, key string, data []byte, contentType string) error
}

// Options tunes a Worker. Zero values select the defaults.
type Options struct {
	LinkTTL      time.Duration
	FetchTimeout time.Duration
	JPEGQuality  int
	// MaxSourceBytes caps the fetched source size (default constants.MaxSourceImageSize).
	MaxSourceBytes int64
}

// Result describes a stored crop.
type Result struct {
	FaceKey     string `json:"face_key"`
	OriginalKey string `json:"original_key"`
	Width       int    `json:"width"`
	Height      int    `json:"height"`
}

// Worker processes face tasks.
type Worker struct {
	source  Signer
	crops   ObjectPutter
	index   database.FaceInserter
	client  *http.Client
	linkTTL time.Duration
	quality int
	maxSize int64
	metrics *metrics.Metrics
	logger  *slog.Logger
}

// New creates a crop worker.
func New(source Signer, crops ObjectPutter, index database.FaceInserter, m *metrics.Metrics, opts Options) *Worker {
	if opts.LinkTTL <= 0 {
		opts.LinkTTL = DefaultLinkTTL
	}
	if opts.FetchTimeout <= 0 {
		opts.FetchTimeout = DefaultFetchTimeout
	}
	if opts.JPEGQuality <= 0 || opts.JPEGQuality > 100 {
		opts.JPEGQuality = DefaultQuality
	}
	if opts.MaxSourceBytes <= 0 {
		opts.MaxSourceBytes = constants.MaxSourceImageSize
	}
	return &Worker{
		source:  source,
		crops:   crops,
		index:   index,
		client:  &http.Client{Timeout: opts.FetchTimeout},
		linkTTL: opts.LinkTTL,
		quality: opts.JPEGQuality,
		maxSize: opts.MaxSourceBytes,
		metrics: m,
		logger:  logging.Component("cropper"),
	}
}

// Process crops one face. The crop is written to storage before its index
// row is inserted, so a failure can leave an unindexed crop but never a row
// without a crop. Redelivered tasks produce new keys.
func (w *Worker) Process(ctx context.Context, task faces.FaceTask) (Result, error) {
	start := time.Now()
	res, err := w.process(ctx, task)
	w.metrics.CropDuration.Observe(time.Since(start).Seconds())
	w.metrics.Crops.WithLabelValues(cropResult(err)).Inc()
	return res, err
}

func cropResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case faces.Retryable(err):
		return "retry"
	default:
		return "dropped"
	}
}

func (w *Worker) process(ctx context.Context, task faces.FaceTask) (Result, error) {
	log := logging.FromContext(ctx, w.logger).With("img_key", task.SourceKey)

	if err := task.Validate(); err != nil {
		return Result{}, err
	}
	rect, err := task.Box.Rect()
	if err != nil {
		return Result{}, err
	}

	src, err := w.fetch(ctx, task.SourceKey)
	if err != nil {
		return Result{}, err
	}

	crop, err := CropJPEG(src, rect, w.quality)
	if err != nil {
		return Result{}, err
	}

	faceKey := faces.NewKey()
	if err := w.crops.Put(ctx, faceKey, crop, faces.ContentType); err != nil {
		return Result{}, fmt.Errorf("%w: %s: %w", faces.ErrPersist, faceKey, err)
	}

	if err := w.index.Insert(ctx, faceKey, task.SourceKey); err != nil {
		log.Error("crop stored but not indexed", "face_key", faceKey, "error", err)
		return Result{}, fmt.Errorf("index %s: %w", faceKey, err)
	}

	log.Info("face cropped", "face_key", faceKey, "width", rect.Dx(), "height", rect.Dy())
	return Result{
		FaceKey:     faceKey,
		OriginalKey: task.SourceKey,
		Width:       rect.Dx(),
		Height:      rect.Dy(),
	}, nil
}

// fetch reads the source image through a freshly signed link.
func (w *Worker) fetch(ctx context.Context, key string) ([]byte, error) {
	link, err := w.source.SignedURL(ctx, key, w.linkTTL)
	if err != nil {
		return nil, fmt.Errorf("%w: sign %s: %w", faces.ErrFetch, key, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: could not create request: %w", faces.ErrFetch, err)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", faces.ErrFetch, key, stripURL(err))
	}
	defer resp.Body.Close()

	if resp.StatusCode >= http.StatusBadRequest {
		return nil, fmt.Errorf("%w: %s: status %d", faces.ErrFetch, key, resp.StatusCode)
	}

	if resp.ContentLength > w.maxSize {
		return nil, fmt.Errorf("%w: %s is %d bytes", faces.ErrTooLarge, key, resp.ContentLength)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, w.maxSize+1))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", faces.ErrFetch, key, err)
	}
	if int64(len(data)) > w.maxSize {
		return nil, fmt.Errorf("%w: %s exceeds %d bytes", faces.ErrTooLarge, key, w.maxSize)
	}
	return data, nil
}

// stripURL drops the signed link from transport errors so signatures do not
// end up in logs.
func stripURL(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

// QueueHandler adapts the worker to a queue consumer.
func (w *Worker) QueueHandler() queue.Handler {
	return func(ctx context.Context, body []byte) faces.Outcome {
		task, err := faces.ParseTask(body)
		if err != nil {
			w.metrics.Crops.WithLabelValues("dropped").Inc()
			logging.FromContext(ctx, w.logger).Warn("dropping malformed face task", "error", err)
			return faces.Classify(err)
		}
		_, err = w.Process(ctx, task)
		if err != nil {
			logging.FromContext(ctx, w.logger).Warn("face task failed", "img_key", task.SourceKey, "error", err)
		}
		return faces.Classify(err)
	}
}
