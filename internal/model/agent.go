package model

import (
	"errors"
	"time"
)

// AgentStatus is the lifecycle state of a logged-in agent.
type AgentStatus string

const (
	AgentOffline   AgentStatus = "offline"
	AgentAvailable AgentStatus = "available"
	AgentOnCall    AgentStatus = "on_call"
	AgentWrapUp    AgentStatus = "wrap_up"
	AgentBreak     AgentStatus = "break"
)

// AgentSlot is one human agent logged into a campaign.
// Invariant: CurrentCallID is non-empty iff Status == on_call.
type AgentSlot struct {
	AgentID    string `json:"agent_id"`
	CampaignID string `json:"campaign_id"`

	// Endpoint is the dial target used to bridge the agent onto a call,
	// e.g. sip:agent-42@pbx.example.com.
	Endpoint string `json:"endpoint"`

	Status        AgentStatus `json:"status"`
	CurrentCallID string      `json:"current_call_id,omitempty"`

	IdleSince   time.Time `json:"idle_since"`
	WrapUpUntil time.Time `json:"wrap_up_until,omitempty"`
	LoggedInAt  time.Time `json:"logged_in_at"`
}

// AgentLoginRequest is the request to log an agent into a campaign.
type AgentLoginRequest struct {
	AgentID    string `json:"agent_id"`
	CampaignID string `json:"campaign_id"`
	Endpoint   string `json:"endpoint"`
}

// Validate checks the request fields.
func (r *AgentLoginRequest) Validate() error {
	if r.AgentID == "" {
		return errors.New("agent_id is required")
	}
	if r.CampaignID == "" {
		return errors.New("campaign_id is required")
	}
	if r.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	return nil
}
