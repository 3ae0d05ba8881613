package engine

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// ErrCampaignNotFound is returned for unknown campaign IDs.
var ErrCampaignNotFound = errors.New("campaign not found")

// Campaigns stores pacing configuration and runtime flags per campaign.
type Campaigns struct {
	mu        sync.RWMutex
	campaigns map[string]*model.Campaign

	defaultCeiling       float64
	defaultMaxConcurrent int
	logger               *logger.Logger
}

// NewCampaigns creates an empty campaign store. The defaults apply to create
// requests that omit max_concurrent or abandon_rate_ceiling.
func NewCampaigns(defaultCeiling float64, defaultMaxConcurrent int, log *logger.Logger) *Campaigns {
	return &Campaigns{
		campaigns:            make(map[string]*model.Campaign),
		defaultCeiling:       defaultCeiling,
		defaultMaxConcurrent: defaultMaxConcurrent,
		logger:               log,
	}
}

// Create registers a new campaign.
func (c *Campaigns) Create(req *model.CreateCampaignRequest) (*model.Campaign, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	maxConcurrent := req.MaxConcurrent
	if maxConcurrent == 0 {
		maxConcurrent = c.defaultMaxConcurrent
	}
	ceiling := req.AbandonRateCeiling
	if ceiling == 0 {
		ceiling = c.defaultCeiling
	}

	now := time.Now()
	campaign := &model.Campaign{
		ID:                 uuid.Must(uuid.NewV7()).String(),
		Name:               req.Name,
		OrgID:              req.OrgID,
		Prompt:             req.Prompt,
		ConfiguredMode:     req.PacingMode,
		MaxConcurrent:      maxConcurrent,
		AbandonRateCeiling: ceiling,
		CreatedAt:          now,
		UpdatedAt:          now,
	}

	c.mu.Lock()
	c.campaigns[campaign.ID] = campaign
	c.mu.Unlock()

	c.logger.Info("campaign created",
		zap.String("campaign_id", campaign.ID),
		zap.String("pacing_mode", string(campaign.ConfiguredMode)),
	)

	return campaign, nil
}

// Get returns a copy of a campaign.
func (c *Campaigns) Get(id string) (*model.Campaign, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	campaign, ok := c.campaigns[id]
	if !ok || campaign.Deleted {
		return nil, ErrCampaignNotFound
	}
	cp := *campaign
	return &cp, nil
}

// List returns copies of all campaigns.
func (c *Campaigns) List() []model.Campaign {
	c.mu.RLock()
	defer c.mu.RUnlock()

	out := make([]model.Campaign, 0, len(c.campaigns))
	for _, campaign := range c.campaigns {
		if !campaign.Deleted {
			out = append(out, *campaign)
		}
	}
	return out
}

// SetPaused flips the pause flag. Pausing stops new dials only; in-flight
// calls run to completion.
func (c *Campaigns) SetPaused(id string, paused bool) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	campaign, ok := c.campaigns[id]
	if !ok || campaign.Deleted {
		return ErrCampaignNotFound
	}
	campaign.Paused = paused
	campaign.UpdatedAt = time.Now()
	return nil
}

// Delete marks a campaign cancelled.
func (c *Campaigns) Delete(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	campaign, ok := c.campaigns[id]
	if !ok || campaign.Deleted {
		return ErrCampaignNotFound
	}
	campaign.Deleted = true
	campaign.UpdatedAt = time.Now()
	return nil
}

// Downgrade records the abandon governor's one-way predictive-to-progressive
// downgrade. A no-op if the campaign is not predictive or already downgraded.
func (c *Campaigns) Downgrade(id string, observedRate float64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	campaign, ok := c.campaigns[id]
	if !ok || campaign.Deleted {
		return false
	}
	if campaign.ConfiguredMode != model.PacingPredictive || campaign.DowngradedAt != nil {
		return false
	}

	now := time.Now()
	campaign.DowngradedAt = &now
	campaign.UpdatedAt = now

	c.logger.Warn("abandon rate ceiling exceeded, downgrading to progressive pacing",
		zap.String("campaign_id", id),
		zap.Float64("abandon_rate", observedRate),
		zap.Float64("ceiling", campaign.AbandonRateCeiling),
	)
	metrics.PacingDowngradesTotal.WithLabelValues(id).Inc()
	return true
}

// RestorePredictive clears a governor downgrade. Operator action only; the
// scheduler never upgrades.
func (c *Campaigns) RestorePredictive(id string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	campaign, ok := c.campaigns[id]
	if !ok || campaign.Deleted {
		return ErrCampaignNotFound
	}
	campaign.DowngradedAt = nil
	campaign.UpdatedAt = time.Now()

	c.logger.Info("predictive pacing restored by operator", zap.String("campaign_id", id))
	return nil
}
