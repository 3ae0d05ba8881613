package model

import (
	"errors"
	"time"
)

// PacingMode is the dialing aggressiveness policy for a campaign.
type PacingMode string

const (
	// PacingPreview dials only on explicit per-target operator action.
	PacingPreview PacingMode = "preview"
	// PacingProgressive dials one-to-one against agent availability.
	PacingProgressive PacingMode = "progressive"
	// PacingPredictive over-dials based on answer-rate statistics.
	PacingPredictive PacingMode = "predictive"
)

// Valid reports whether the value is a known pacing mode.
func (m PacingMode) Valid() bool {
	switch m {
	case PacingPreview, PacingProgressive, PacingPredictive:
		return true
	}
	return false
}

// Campaign holds a campaign's pacing configuration and runtime flags. The
// scheduler may downgrade ConfiguredMode's effect (predictive to progressive)
// but never upgrades it; only an explicit operator action restores predictive.
type Campaign struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	OrgID   string `json:"org_id,omitempty"`
	Prompt  string `json:"prompt,omitempty"`
	Paused  bool   `json:"paused"`
	Deleted bool   `json:"deleted,omitempty"`

	ConfiguredMode     PacingMode `json:"pacing_mode"`
	MaxConcurrent      int        `json:"max_concurrent"`
	AbandonRateCeiling float64    `json:"abandon_rate_ceiling"`

	// DowngradedAt is set when the abandon governor forces progressive pacing.
	DowngradedAt *time.Time `json:"downgraded_at,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// EffectiveMode returns the pacing mode the scheduler must run under.
func (c *Campaign) EffectiveMode() PacingMode {
	if c.ConfiguredMode == PacingPredictive && c.DowngradedAt != nil {
		return PacingProgressive
	}
	return c.ConfiguredMode
}

// DialTarget is one campaign target awaiting a dial.
type DialTarget struct {
	ID         string    `json:"id"`
	CampaignID string    `json:"campaign_id"`
	AccountID  string    `json:"account_id,omitempty"`
	Phone      string    `json:"phone"`
	Priority   int       `json:"priority"`
	Attempts   int       `json:"attempts"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// CreateCampaignRequest is the request to create a campaign.
type CreateCampaignRequest struct {
	Name               string     `json:"name"`
	OrgID              string     `json:"org_id,omitempty"`
	Prompt             string     `json:"prompt,omitempty"`
	PacingMode         PacingMode `json:"pacing_mode"`
	MaxConcurrent      int        `json:"max_concurrent"`
	AbandonRateCeiling float64    `json:"abandon_rate_ceiling"`
}

// Validate checks the request fields.
func (r *CreateCampaignRequest) Validate() error {
	if r.Name == "" {
		return errors.New("name is required")
	}
	if !r.PacingMode.Valid() {
		return errors.New("invalid pacing_mode")
	}
	if r.MaxConcurrent < 0 {
		return errors.New("max_concurrent must be non-negative")
	}
	if r.AbandonRateCeiling < 0 || r.AbandonRateCeiling > 1 {
		return errors.New("abandon_rate_ceiling must be between 0 and 1")
	}
	return nil
}

// EnqueueTargetsRequest is the request to bulk-enqueue dial targets.
type EnqueueTargetsRequest struct {
	Targets []TargetInput `json:"targets"`
}

// TargetInput is one target in an enqueue request.
type TargetInput struct {
	AccountID string `json:"account_id,omitempty"`
	Phone     string `json:"phone"`
	Priority  int    `json:"priority"`
}
