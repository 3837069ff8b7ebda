package database

import (
	"context"
	"errors"

	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/metrics"
)

// Instrumented wraps a FaceWriter and counts operations by outcome.
type Instrumented struct {
	next    FaceWriter
	metrics *metrics.Metrics
}

// NewInstrumented returns a FaceWriter that records index_ops_total.
func NewInstrumented(next FaceWriter, m *metrics.Metrics) *Instrumented {
	return &Instrumented{next: next, metrics: m}
}

func (i *Instrumented) observe(op string, err error) {
	if i.metrics == nil {
		return
	}
	i.metrics.IndexOps.WithLabelValues(op, opResult(err)).Inc()
}

func opResult(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, faces.ErrNotFound):
		return "not_found"
	case errors.Is(err, faces.ErrConflict):
		return "conflict"
	default:
		return "unavailable"
	}
}

func (i *Instrumented) Get(ctx context.Context, faceKey string) (*faces.IndexRow, error) {
	row, err := i.next.Get(ctx, faceKey)
	i.observe("get", err)
	return row, err
}

func (i *Instrumented) ListUnlabeled(ctx context.Context, limit int) ([]string, error) {
	keys, err := i.next.ListUnlabeled(ctx, limit)
	i.observe("list_unlabeled", err)
	return keys, err
}

func (i *Instrumented) FindByLabel(ctx context.Context, label string) ([]string, error) {
	keys, err := i.next.FindByLabel(ctx, label)
	i.observe("find_by_label", err)
	return keys, err
}

func (i *Instrumented) Insert(ctx context.Context, faceKey, originalKey string) error {
	err := i.next.Insert(ctx, faceKey, originalKey)
	i.observe("insert", err)
	return err
}

func (i *Instrumented) SetLabel(ctx context.Context, faceKey, label string) error {
	err := i.next.SetLabel(ctx, faceKey, label)
	i.observe("set_label", err)
	return err
}
