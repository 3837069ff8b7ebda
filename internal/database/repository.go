// Package database defines the face index contracts shared by the pipeline and
// the chat service. Implementations live in the postgres and mock subpackages.
package database

import (
	"context"

	"github.com/kozaktomas/face-index/internal/faces"
)

// FaceReader provides read-only access to the face index
type FaceReader interface {
	// Get returns one row, faces.ErrNotFound if the key is unknown
	Get(ctx context.Context, faceKey string) (*faces.IndexRow, error)
	// ListUnlabeled returns keys of faces without a label; limit <= 0 means all
	ListUnlabeled(ctx context.Context, limit int) ([]string, error)
	// FindByLabel returns the original keys of faces with exactly this label.
	// No match is an empty slice, not an error.
	FindByLabel(ctx context.Context, label string) ([]string, error)
}

// FaceInserter records freshly stored crops
type FaceInserter interface {
	// Insert appends a row, faces.ErrConflict if the key already exists
	Insert(ctx context.Context, faceKey, originalKey string) error
}

// FaceWriter provides full access to the face index
type FaceWriter interface {
	FaceReader
	FaceInserter

	// SetLabel overwrites the label of an existing face (last write wins),
	// faces.ErrNotFound if the key is unknown
	SetLabel(ctx context.Context, faceKey, label string) error
}
