// Package handler provides HTTP handlers for the API.
package handler

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/engine"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/telephony"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

// maxWebhookBody bounds provider payloads; real events are a few hundred bytes.
const maxWebhookBody = 64 * 1024

// WebhookHandler receives telephony provider events.
type WebhookHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewWebhookHandler creates a new webhook handler.
func NewWebhookHandler(eng *engine.Engine, log *logger.Logger) *WebhookHandler {
	return &WebhookHandler{
		engine: eng,
		logger: log,
	}
}

// Telephony handles POST /webhooks/telephony.
//
// The provider retries on non-2xx, and a malformed or out-of-order event will
// never become valid on retry, so every decodable request body is acknowledged
// with 202 regardless of whether the event was applied.
func (h *WebhookHandler) Telephony(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read request body")
		return
	}

	ev, err := telephony.DecodeEvent(body, time.Now())
	if err != nil {
		h.logger.Warn("discarding undecodable telephony event", zap.Error(err))
		writeJSON(w, http.StatusAccepted, map[string]string{"status": "discarded"})
		return
	}

	if err := h.engine.Deliver(ev); err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			h.logger.Warn("event for unknown call discarded",
				zap.String("call_id", ev.CallID),
				zap.String("event_type", string(ev.Type)),
			)
			writeJSON(w, http.StatusAccepted, map[string]string{"status": "discarded"})
			return
		}
		h.logger.Error("failed to deliver telephony event", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to deliver event")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
}
