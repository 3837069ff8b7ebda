// Package metrics provides Prometheus metrics for the face pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "face_index"

// Metrics holds all Prometheus metrics of one process.
type Metrics struct {
	registry *prometheus.Registry

	// Dispatcher
	Uploads           *prometheus.CounterVec
	FacesDetected     prometheus.Counter
	DetectionFailures prometheus.Counter
	TasksPublished    prometheus.Counter

	// Crop worker
	Crops        *prometheus.CounterVec
	CropDuration prometheus.Histogram

	// Index store
	IndexOps *prometheus.CounterVec

	// Bot
	BotCommands *prometheus.CounterVec
}

// New registers every metric on a fresh registry, so tests can build as many
// instances as they need.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	m := &Metrics{
		registry: reg,
		Uploads: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "uploads_total",
				Help:      "Upload events handled by the dispatcher",
			},
			[]string{"result"},
		),
		FacesDetected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "faces_detected_total",
			Help:      "Faces reported by the detection service",
		}),
		DetectionFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "detection_failures_total",
			Help:      "Detection calls downgraded to zero faces",
		}),
		TasksPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "tasks_published_total",
			Help:      "Face tasks published to the queue",
		}),
		Crops: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "crops_total",
				Help:      "Face tasks handled by the crop worker",
			},
			[]string{"result"},
		),
		CropDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "crop_duration_seconds",
			Help:      "End-to-end duration of one crop task",
			Buckets:   prometheus.DefBuckets,
		}),
		IndexOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "index_ops_total",
				Help:      "Index store operations",
			},
			[]string{"op", "result"},
		),
		BotCommands: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "bot_commands_total",
				Help:      "Chat updates by interpreted command",
			},
			[]string{"command"},
		),
	}

	reg.MustRegister(
		m.Uploads, m.FacesDetected, m.DetectionFailures, m.TasksPublished,
		m.Crops, m.CropDuration, m.IndexOps, m.BotCommands,
	)
	return m
}

// Handler returns the HTTP handler exposing this registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// Registry exposes the underlying registry for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// ResultLabel maps an error to the "result" label value.
func ResultLabel(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}
