package faces

import (
	"errors"
)

// Pipeline error taxonomy. Callers match with errors.Is.
var (
	ErrFetch            = errors.New("source fetch failed")
	ErrDetection        = errors.New("face detection failed")
	ErrDecode           = errors.New("image decode failed")
	ErrTooLarge         = errors.New("source image too large")
	ErrCrop             = errors.New("invalid crop rectangle")
	ErrInvalidTask      = errors.New("invalid face task")
	ErrPersist          = errors.New("crop upload failed")
	ErrPublish          = errors.New("task publish failed")
	ErrStoreUnavailable = errors.New("index store unavailable")
	ErrConflict         = errors.New("face key already exists")
	ErrNotFound         = errors.New("face key not found")
)

// Retryable reports whether a failed invocation should be handed back to the
// transport for redelivery. Nothing was persisted in these cases, so a retry
// cannot produce a phantom index row.
func Retryable(err error) bool {
	return errors.Is(err, ErrFetch) || errors.Is(err, ErrPersist) || errors.Is(err, ErrPublish)
}

// Outcome is the structured result reported back to the invoking transport.
type Outcome struct {
	OK        bool   `json:"ok"`
	Error     string `json:"error,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

// Classify converts an invocation error into an Outcome. The error message is
// reduced to its taxonomy class so dependency details do not leak to callers.
func Classify(err error) Outcome {
	if err == nil {
		return Outcome{OK: true}
	}
	return Outcome{
		Error:     class(err).Error(),
		Retryable: Retryable(err),
	}
}

func class(err error) error {
	for _, sentinel := range []error{
		ErrFetch, ErrDetection, ErrDecode, ErrTooLarge, ErrCrop, ErrInvalidTask,
		ErrPersist, ErrPublish, ErrStoreUnavailable, ErrConflict, ErrNotFound,
	} {
		if errors.Is(err, sentinel) {
			return sentinel
		}
	}
	return errors.New("internal error")
}
