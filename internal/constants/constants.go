// Package constants provides shared constants used across the codebase.
package constants

import "time"

// Pipeline constants
const (
	// MaxSourceImageSize is the largest source image the crop worker will read (64MB)
	MaxSourceImageSize = 64 << 20

	// MaxSourcePixels caps the declared width*height of a source image before
	// it is decoded (100 megapixels)
	MaxSourcePixels = 100_000_000

	// FaceKeyPrefix is the common prefix of every stored crop key
	FaceKeyPrefix = "face_"
)

// CLI constants
const (
	// DefaultListLimit is the default number of rows printed by "faces list"
	DefaultListLimit = 100

	// DefaultConcurrency is the default number of parallel orphan checks
	DefaultConcurrency = 8

	// DefaultOrphanMinAge is how old an unindexed crop must be before the
	// orphan scan reports it. Younger crops may still be waiting for their row.
	DefaultOrphanMinAge = 10 * time.Minute
)
