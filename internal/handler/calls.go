package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/engine"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

// CallHandler handles live call endpoints.
type CallHandler struct {
	engine *engine.Engine
	logger *logger.Logger
}

// NewCallHandler creates a new call handler.
func NewCallHandler(eng *engine.Engine, log *logger.Logger) *CallHandler {
	return &CallHandler{
		engine: eng,
		logger: log,
	}
}

// List handles GET /api/v1/calls
func (h *CallHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"calls": h.engine.Views(),
	})
}

// Get handles GET /api/v1/calls/:id
func (h *CallHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	view, err := h.engine.View(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "call not found")
		return
	}

	writeJSON(w, http.StatusOK, view)
}

// Takeover handles POST /api/v1/calls/:id/takeover. The session rejects the
// request unless the call is in an AI dialogue state; takeover is one-way.
func (h *CallHandler) Takeover(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.RequestTakeover(id); err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to request takeover")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"call_id": id,
		"status":  "takeover requested",
	})
}

// Hangup handles POST /api/v1/calls/:id/hangup
func (h *CallHandler) Hangup(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.engine.Hangup(id); err != nil {
		if errors.Is(err, engine.ErrSessionNotFound) {
			writeError(w, http.StatusNotFound, "call not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to hang up")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{
		"call_id": id,
		"status":  "hangup requested",
	})
}
