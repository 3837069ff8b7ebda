// Package faces holds the data model shared by the face pipeline: crop tasks,
// bounding boxes, index rows, face keys and the pipeline error taxonomy.
package faces

import (
	"encoding/json"
	"fmt"
	"image"
	"math"
	"strconv"
	"strings"
	"time"
)

// Point is a single bounding box vertex in source image pixels.
type Point struct {
	X int `json:"x"`
	Y int `json:"y"`
}

// UnmarshalJSON accepts coordinates as JSON numbers or numeric strings.
// The detection service encodes them as strings and omits zero values.
func (p *Point) UnmarshalJSON(data []byte) error {
	var raw struct {
		X json.RawMessage `json:"x"`
		Y json.RawMessage `json:"y"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("unmarshal point: %w", err)
	}
	x, err := parseCoord(raw.X)
	if err != nil {
		return fmt.Errorf("parse x: %w", err)
	}
	y, err := parseCoord(raw.Y)
	if err != nil {
		return fmt.Errorf("parse y: %w", err)
	}
	p.X, p.Y = x, y
	return nil
}

func parseCoord(raw json.RawMessage) (int, error) {
	s := strings.Trim(strings.TrimSpace(string(raw)), `"`)
	if s == "" || s == "null" {
		return 0, nil
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("invalid coordinate %q", s)
	}
	return int(f), nil
}

// BoundingBox holds the four corners reported by the detector, clockwise from
// the top-left. Only corners 0 and 2 are used to derive the crop rectangle.
type BoundingBox []Point

// Rect returns the crop rectangle spanned by corners 0 and 2.
func (b BoundingBox) Rect() (image.Rectangle, error) {
	if len(b) != 4 {
		return image.Rectangle{}, fmt.Errorf("%w: bounding box has %d vertices, want 4", ErrInvalidTask, len(b))
	}
	x0, y0 := b[0].X, b[0].Y
	x2, y2 := b[2].X, b[2].Y
	if x0 >= x2 || y0 >= y2 {
		return image.Rectangle{}, fmt.Errorf("%w: degenerate rectangle (%d,%d)-(%d,%d)", ErrCrop, x0, y0, x2, y2)
	}
	return image.Rect(x0, y0, x2, y2), nil
}

// FaceTask is one unit of fan-out work: crop one face out of one source image.
type FaceTask struct {
	SourceKey string      `json:"img_key"`
	Box       BoundingBox `json:"coordinates"`
}

// Validate checks the task carries a source key and a four-vertex box.
func (t FaceTask) Validate() error {
	if strings.TrimSpace(t.SourceKey) == "" {
		return fmt.Errorf("%w: missing img_key", ErrInvalidTask)
	}
	if len(t.Box) != 4 {
		return fmt.Errorf("%w: bounding box has %d vertices, want 4", ErrInvalidTask, len(t.Box))
	}
	return nil
}

// ParseTask decodes a FaceTask message body.
func ParseTask(body []byte) (FaceTask, error) {
	var t FaceTask
	if err := json.Unmarshal(body, &t); err != nil {
		return FaceTask{}, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	if err := t.Validate(); err != nil {
		return FaceTask{}, err
	}
	return t, nil
}

// IndexRow is the persisted record linking a face crop to its source image.
type IndexRow struct {
	FaceKey     string
	OriginalKey string
	Label       *string
	CreatedAt   time.Time
}

// Labeled reports whether a label has been assigned.
func (r IndexRow) Labeled() bool {
	return r.Label != nil
}
