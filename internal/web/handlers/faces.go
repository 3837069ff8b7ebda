package handlers

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/kozaktomas/face-index/internal/database"
	"github.com/kozaktomas/face-index/internal/faces"
	"github.com/kozaktomas/face-index/internal/logging"
)

// Signer issues read links for stored objects.
type Signer interface {
	SignedURL(ctx context.Context, key string, ttl time.Duration) (string, error)
}

// FacesHandler serves face crops by key.
type FacesHandler struct {
	index   database.FaceReader
	crops   Signer
	linkTTL time.Duration
	logger  *slog.Logger
}

// NewFacesHandler creates a new faces handler.
func NewFacesHandler(index database.FaceReader, crops Signer, linkTTL time.Duration) *FacesHandler {
	return &FacesHandler{
		index:   index,
		crops:   crops,
		linkTTL: linkTTL,
		logger:  logging.Component("faces"),
	}
}

// Get redirects to a fresh read link for an indexed crop.
func (h *FacesHandler) Get(w http.ResponseWriter, r *http.Request) {
	faceKey := chi.URLParam(r, "faceKey")
	if !faces.ValidKey(faceKey) {
		respondError(w, http.StatusBadRequest, "invalid face key")
		return
	}

	if _, err := h.index.Get(r.Context(), faceKey); err != nil {
		if errors.Is(err, faces.ErrNotFound) {
			respondError(w, http.StatusNotFound, "face not found")
			return
		}
		logging.FromContext(r.Context(), h.logger).Error("index lookup failed", "face_key", faceKey, "error", err)
		respondError(w, http.StatusServiceUnavailable, "index unavailable")
		return
	}

	link, err := h.crops.SignedURL(r.Context(), faceKey, h.linkTTL)
	if err != nil {
		logging.FromContext(r.Context(), h.logger).Error("failed to sign face link", "face_key", faceKey, "error", err)
		respondError(w, http.StatusServiceUnavailable, "storage unavailable")
		return
	}

	w.Header().Set("Cache-Control", "no-store")
	http.Redirect(w, r, link, http.StatusFound)
}
