package handlers

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-index/internal/constants"
	"github.com/kozaktomas/face-index/internal/cropper"
	"github.com/kozaktomas/face-index/internal/dispatcher"
	"github.com/kozaktomas/face-index/internal/events"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/logging"
	"github.com/kozaktomas/face-index/internal/vision"
)

// UploadDispatcher dispatches upload events.
type UploadDispatcher interface {
	DispatchAll(ctx context.Context, uploads []events.Upload, cred vision.Credential) ([]dispatcher.Result, error)
}

// TaskProcessor crops one face task.
type TaskProcessor interface {
	Process(ctx context.Context, task faces.FaceTask) (cropper.Result, error)
}

// TriggersHandler exposes the pipeline stages as serverless HTTP triggers.
type TriggersHandler struct {
	dispatcher UploadDispatcher
	worker     TaskProcessor
	fallback   vision.Credential
	logger     *slog.Logger
}

// NewTriggersHandler creates the trigger handler. Either stage may be nil,
// in which case its route answers 404.
func NewTriggersHandler(d UploadDispatcher, w TaskProcessor, fallback vision.Credential) *TriggersHandler {
	return &TriggersHandler{
		dispatcher: d,
		worker:     w,
		fallback:   fallback,
		logger:     logging.Component("triggers"),
	}
}

type uploadResponse struct {
	faces.Outcome
	Results []dispatcher.Result `json:"results,omitempty"`
}

type faceTaskResponse struct {
	faces.Outcome
	Results []cropper.Result `json:"results,omitempty"`
}

func readBody(w http.ResponseWriter, r *http.Request) ([]byte, error) {
	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, constants.MaxTriggerBodySize))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", faces.ErrInvalidTask, err)
	}
	return body, nil
}

// Upload handles POST /api/v1/triggers/upload. The detection credential is
// taken from the Authorization header, falling back to the configured one.
func (h *TriggersHandler) Upload(w http.ResponseWriter, r *http.Request) {
	if h.dispatcher == nil {
		respondError(w, http.StatusNotFound, "dispatcher not configured")
		return
	}
	log := logging.FromContext(r.Context(), h.logger)

	body, err := readBody(w, r)
	if err != nil {
		respondJSON(w, http.StatusOK, uploadResponse{Outcome: faces.Classify(err)})
		return
	}
	uploads, err := events.ParseUploads(body)
	if err != nil {
		log.Warn("dropping malformed upload trigger", "error", sanitizeForLog(err.Error()))
		respondJSON(w, http.StatusOK, uploadResponse{Outcome: faces.Classify(fmt.Errorf("%w: %w", faces.ErrInvalidTask, err))})
		return
	}

	cred, ok := vision.ParseAuthorization(r.Header.Get("Authorization"))
	if !ok {
		cred = h.fallback
	}

	results, err := h.dispatcher.DispatchAll(r.Context(), uploads, cred)
	if err != nil {
		log.Warn("upload dispatch failed", "error", sanitizeForLog(err.Error()))
	}
	out := faces.Classify(err)
	respondJSON(w, outcomeStatus(out), uploadResponse{Outcome: out, Results: results})
}

// FaceTask handles POST /api/v1/triggers/face-task. Every message of the
// envelope is processed; the response is retryable if any of them is.
func (h *TriggersHandler) FaceTask(w http.ResponseWriter, r *http.Request) {
	if h.worker == nil {
		respondError(w, http.StatusNotFound, "crop worker not configured")
		return
	}
	log := logging.FromContext(r.Context(), h.logger)

	body, err := readBody(w, r)
	if err != nil {
		respondJSON(w, http.StatusOK, faceTaskResponse{Outcome: faces.Classify(err)})
		return
	}
	bodies, err := events.ParseQueueBodies(body)
	if err != nil {
		log.Warn("dropping malformed face-task trigger", "error", sanitizeForLog(err.Error()))
		respondJSON(w, http.StatusOK, faceTaskResponse{Outcome: faces.Classify(fmt.Errorf("%w: %w", faces.ErrInvalidTask, err))})
		return
	}

	var (
		results []cropper.Result
		errs    []error
	)
	for _, b := range bodies {
		task, err := faces.ParseTask(b)
		if err == nil {
			var res cropper.Result
			res, err = h.worker.Process(r.Context(), task)
			if err == nil {
				results = append(results, res)
				continue
			}
		}
		log.Warn("face task failed", "error", sanitizeForLog(err.Error()))
		errs = append(errs, err)
	}

	out := classifyAll(errs)
	respondJSON(w, outcomeStatus(out), faceTaskResponse{Outcome: out, Results: results})
}

// classifyAll prefers a retryable failure so the batch is redelivered.
func classifyAll(errs []error) faces.Outcome {
	for _, err := range errs {
		if faces.Retryable(err) {
			return faces.Classify(err)
		}
	}
	return faces.Classify(errors.Join(errs...))
}
