package handlers

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kozaktomas/face-index/internal/constants"
	"github.com/kozaktomas/face-index/internal/logging"
	"github.com/kozaktomas/face-index/internal/telegram"
)

// UpdateHandler processes one chat update.
type UpdateHandler interface {
	Handle(ctx context.Context, update telegram.Update) error
}

// TelegramHandler receives Bot API webhook deliveries.
type TelegramHandler struct {
	bot    UpdateHandler
	logger *slog.Logger
}

// NewTelegramHandler creates a webhook handler.
func NewTelegramHandler(bot UpdateHandler) *TelegramHandler {
	return &TelegramHandler{bot: bot, logger: logging.Component("webhook")}
}

// Webhook handles POST /telegram/webhook. Updates are acknowledged even when
// the reply could not be sent, since Telegram would otherwise redeliver them
// and repeat the side effects.
func (h *TelegramHandler) Webhook(w http.ResponseWriter, r *http.Request) {
	var update telegram.Update
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, constants.MaxTriggerBodySize)).Decode(&update); err != nil {
		respondError(w, http.StatusBadRequest, "invalid update")
		return
	}

	if err := h.bot.Handle(r.Context(), update); err != nil {
		logging.FromContext(r.Context(), h.logger).Error("failed to answer update",
			"update_id", update.UpdateID, "error", sanitizeForLog(err.Error()))
	}
	w.WriteHeader(http.StatusOK)
}
