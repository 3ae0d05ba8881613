package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/engine"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

// AgentHandler handles agent pool endpoints.
type AgentHandler struct {
	pool   *engine.AgentPool
	logger *logger.Logger
}

// NewAgentHandler creates a new agent handler.
func NewAgentHandler(pool *engine.AgentPool, log *logger.Logger) *AgentHandler {
	return &AgentHandler{
		pool:   pool,
		logger: log,
	}
}

// List handles GET /api/v1/agents
func (h *AgentHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"agents": h.pool.Snapshot(),
	})
}

// Login handles POST /api/v1/agents/login
func (h *AgentHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req model.AgentLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := h.pool.Login(&req); err != nil {
		if errors.Is(err, engine.ErrAgentExists) {
			writeError(w, http.StatusConflict, "agent already logged in")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to log in agent")
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"agent_id": req.AgentID,
		"status":   string(model.AgentAvailable),
	})
}

// Logout handles POST /api/v1/agents/:id/logout
func (h *AgentHandler) Logout(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.pool.Logout(id); err != nil {
		h.writePoolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"agent_id": id,
		"status":   string(model.AgentOffline),
	})
}

// Break handles POST /api/v1/agents/:id/break
func (h *AgentHandler) Break(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.pool.StartBreak(id); err != nil {
		h.writePoolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"agent_id": id,
		"status":   string(model.AgentBreak),
	})
}

// Available handles POST /api/v1/agents/:id/available. Ends a break or cuts a
// wrap-up period short.
func (h *AgentHandler) Available(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.pool.MakeAvailable(id); err != nil {
		h.writePoolError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"agent_id": id,
		"status":   string(model.AgentAvailable),
	})
}

func (h *AgentHandler) writePoolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, engine.ErrAgentNotFound):
		writeError(w, http.StatusNotFound, "agent not found")
	case errors.Is(err, engine.ErrAgentOnCall), errors.Is(err, engine.ErrAgentState):
		writeError(w, http.StatusConflict, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, "agent operation failed")
	}
}
