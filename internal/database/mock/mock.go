// Package mock provides mock implementations of database interfaces for testing.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/faces"
)

var _ database.FaceWriter = (*MockFaceIndex)(nil)

// SetLabelCall records one SetLabel invocation
type SetLabelCall struct {
	FaceKey string
	Label   string
}

// MockFaceIndex is an in-memory implementation of database.FaceWriter.
// Rows keep insertion order, which stands in for the store's natural order.
type MockFaceIndex struct {
	mu    sync.RWMutex
	rows  map[string]*faces.IndexRow
	order []string

	SetLabelCalls []SetLabelCall

	// Error injection
	GetError           error
	InsertError        error
	SetLabelError      error
	ListUnlabeledError error
	FindByLabelError   error
}

// NewMockFaceIndex creates a new empty mock index
func NewMockFaceIndex() *MockFaceIndex {
	return &MockFaceIndex{
		rows: make(map[string]*faces.IndexRow),
	}
}

// AddRow seeds a row, bypassing conflict checks
func (m *MockFaceIndex) AddRow(row faces.IndexRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[row.FaceKey]; !ok {
		m.order = append(m.order, row.FaceKey)
	}
	m.rows[row.FaceKey] = &row
}

// Rows returns a snapshot of all rows in insertion order
func (m *MockFaceIndex) Rows() []faces.IndexRow {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]faces.IndexRow, 0, len(m.order))
	for _, key := range m.order {
		out = append(out, copyRow(m.rows[key]))
	}
	return out
}

// Get returns one row
func (m *MockFaceIndex) Get(ctx context.Context, faceKey string) (*faces.IndexRow, error) {
	if m.GetError != nil {
		return nil, m.GetError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	row, ok := m.rows[faceKey]
	if !ok {
		return nil, faces.ErrNotFound
	}
	c := copyRow(row)
	return &c, nil
}

// Insert appends a row unless the key exists
func (m *MockFaceIndex) Insert(ctx context.Context, faceKey, originalKey string) error {
	if m.InsertError != nil {
		return m.InsertError
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.rows[faceKey]; ok {
		return faces.ErrConflict
	}
	m.rows[faceKey] = &faces.IndexRow{
		FaceKey:     faceKey,
		OriginalKey: originalKey,
		CreatedAt:   time.Now(),
	}
	m.order = append(m.order, faceKey)
	return nil
}

// SetLabel overwrites the label of an existing row
func (m *MockFaceIndex) SetLabel(ctx context.Context, faceKey, label string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SetLabelCalls = append(m.SetLabelCalls, SetLabelCall{FaceKey: faceKey, Label: label})
	if m.SetLabelError != nil {
		return m.SetLabelError
	}
	row, ok := m.rows[faceKey]
	if !ok {
		return faces.ErrNotFound
	}
	l := label
	row.Label = &l
	return nil
}

// ListUnlabeled returns unlabeled keys in insertion order
func (m *MockFaceIndex) ListUnlabeled(ctx context.Context, limit int) ([]string, error) {
	if m.ListUnlabeledError != nil {
		return nil, m.ListUnlabeledError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := []string{}
	for _, key := range m.order {
		if m.rows[key].Label != nil {
			continue
		}
		out = append(out, key)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// FindByLabel returns distinct original keys with an exactly matching label
func (m *MockFaceIndex) FindByLabel(ctx context.Context, label string) ([]string, error) {
	if m.FindByLabelError != nil {
		return nil, m.FindByLabelError
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[string]struct{})
	out := []string{}
	for _, key := range m.order {
		row := m.rows[key]
		if row.Label == nil || *row.Label != label {
			continue
		}
		if _, ok := seen[row.OriginalKey]; ok {
			continue
		}
		seen[row.OriginalKey] = struct{}{}
		out = append(out, row.OriginalKey)
	}
	return out, nil
}

func copyRow(r *faces.IndexRow) faces.IndexRow {
	c := *r
	if r.Label != nil {
		l := *r.Label
		c.Label = &l
	}
	return c
}
