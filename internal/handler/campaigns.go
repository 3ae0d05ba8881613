package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/engine"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/middleware"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

// CampaignHandler handles campaign and dial-queue endpoints.
type CampaignHandler struct {
	campaigns *engine.Campaigns
	queue     *engine.DialQueue
	scheduler *engine.Scheduler
	logger    *logger.Logger
}

// NewCampaignHandler creates a new campaign handler.
func NewCampaignHandler(campaigns *engine.Campaigns, queue *engine.DialQueue, scheduler *engine.Scheduler, log *logger.Logger) *CampaignHandler {
	return &CampaignHandler{
		campaigns: campaigns,
		queue:     queue,
		scheduler: scheduler,
		logger:    log,
	}
}

// Create handles POST /api/v1/campaigns
func (h *CampaignHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req model.CreateCampaignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := req.Validate(); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	campaign, err := h.campaigns.Create(&req)
	if err != nil {
		h.logger.Error("failed to create campaign", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "failed to create campaign")
		return
	}

	writeJSON(w, http.StatusCreated, campaign)
}

// List handles GET /api/v1/campaigns
func (h *CampaignHandler) List(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaigns": h.campaigns.List(),
	})
}

// Get handles GET /api/v1/campaigns/:id
func (h *CampaignHandler) Get(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := h.campaigns.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"campaign":    campaign,
		"queue_depth": h.queue.Len(id),
	})
}

// Pause handles POST /api/v1/campaigns/:id/pause
func (h *CampaignHandler) Pause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

// Resume handles POST /api/v1/campaigns/:id/resume
func (h *CampaignHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *CampaignHandler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	id := chi.URLParam(r, "id")

	if err := h.campaigns.SetPaused(id, paused); err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":     id,
		"paused": paused,
	})
}

// Cancel handles DELETE /api/v1/campaigns/:id. Queued targets are purged;
// calls already in flight run to their natural end.
func (h *CampaignHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.campaigns.Delete(id); err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}

	purged := h.queue.Drop(id)
	h.logger.Info("campaign cancelled",
		zap.String("campaign_id", id),
		zap.Int("purged_targets", purged),
	)

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"id":             id,
		"purged_targets": purged,
	})
}

// RestorePredictive handles POST /api/v1/campaigns/:id/restore-predictive.
// The abandon-rate downgrade is one-way; this is the explicit operator reset.
func (h *CampaignHandler) RestorePredictive(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.campaigns.RestorePredictive(id); err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"id":          id,
		"pacing_mode": string(model.PacingPredictive),
	})
}

// EnqueueTargets handles POST /api/v1/campaigns/:id/targets
func (h *CampaignHandler) EnqueueTargets(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	campaign, err := h.campaigns.Get(id)
	if err != nil {
		writeError(w, http.StatusNotFound, "campaign not found")
		return
	}
	if campaign.Deleted {
		writeError(w, http.StatusConflict, "campaign is cancelled")
		return
	}

	var req model.EnqueueTargetsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Targets) == 0 {
		writeError(w, http.StatusBadRequest, "targets is required")
		return
	}

	now := time.Now()
	enqueued := 0
	for _, t := range req.Targets {
		if err := middleware.ValidatePhone(t.Phone); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
		h.queue.Push(model.DialTarget{
			ID:         uuid.Must(uuid.NewV7()).String(),
			CampaignID: id,
			AccountID:  t.AccountID,
			Phone:      t.Phone,
			Priority:   t.Priority,
			EnqueuedAt: now,
		})
		enqueued++
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"enqueued":    enqueued,
		"queue_depth": h.queue.Len(id),
	})
}

// Dial handles POST /api/v1/campaigns/:id/dial (preview mode only).
func (h *CampaignHandler) Dial(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	callID, err := h.scheduler.DialNow(r.Context(), id)
	if err != nil {
		switch {
		case errors.Is(err, engine.ErrCampaignNotFound):
			writeError(w, http.StatusNotFound, "campaign not found")
		case errors.Is(err, engine.ErrNotPreviewMode),
			errors.Is(err, engine.ErrCampaignPaused),
			errors.Is(err, engine.ErrCampaignAtLimit):
			writeError(w, http.StatusConflict, err.Error())
		case errors.Is(err, engine.ErrQueueEmpty):
			writeError(w, http.StatusNotFound, "no targets queued")
		default:
			h.logger.Error("manual dial failed", zap.String("campaign_id", id), zap.Error(err))
			writeError(w, http.StatusInternalServerError, "failed to dial")
		}
		return
	}

	writeJSON(w, http.StatusCreated, map[string]string{
		"call_id": callID,
	})
}
