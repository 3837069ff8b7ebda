package postgres

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/lib/pq"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unique violation", fmt.Errorf("insert: %w", &pq.Error{Code: "23505"}), faces.ErrConflict},
		{"other pq error", &pq.Error{Code: "42P01"}, faces.ErrStoreUnavailable},
		{"deadline", context.DeadlineExceeded, faces.ErrStoreUnavailable},
		{"not found passes through", faces.ErrNotFound, faces.ErrNotFound},
		{"conflict passes through", fmt.Errorf("x: %w", faces.ErrConflict), faces.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classify(tt.err)
			if !errors.Is(got, tt.want) {
				t.Errorf("classify(%v) = %v, want %v", tt.err, got, tt.want)
			}
		})
	}
}

func TestClassify_KeepsCause(t *testing.T) {
	got := classify(context.DeadlineExceeded)
	if !errors.Is(got, context.DeadlineExceeded) {
		t.Errorf("expected wrapped cause to be preserved, got %v", got)
	}
}
