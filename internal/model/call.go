// Package model defines data structures for the dialer engine.
package model

import (
	"time"
)

// CallState represents the lifecycle state of a call session.
type CallState string

const (
	StateIdle              CallState = "idle"
	StateRinging           CallState = "ringing"
	StateAnswered          CallState = "answered"
	StateAIGreeting        CallState = "ai_greeting"
	StateAIListening       CallState = "ai_listening"
	StateAIThinking        CallState = "ai_thinking"
	StateAISpeaking        CallState = "ai_speaking"
	StateHumanRequested    CallState = "human_requested"
	StateBridging          CallState = "bridging"
	StateHumanActive       CallState = "human_active"
	StateVoicemailSpeaking CallState = "voicemail_speaking"
	StateCallEnded         CallState = "call_ended"
)

// Terminal reports whether the state is absorbing.
func (s CallState) Terminal() bool {
	return s == StateCallEnded
}

// AIPhase reports whether the state is one of the AI dialogue states.
func (s CallState) AIPhase() bool {
	switch s {
	case StateAIGreeting, StateAIListening, StateAIThinking, StateAISpeaking:
		return true
	}
	return false
}

// AMDResult is the provider's answering-machine-detection classification.
type AMDResult string

const (
	AMDHuman   AMDResult = "human"
	AMDMachine AMDResult = "machine"
	AMDNotSure AMDResult = "not_sure"
	AMDFax     AMDResult = "fax"
)

// Valid reports whether the value is a known AMD classification.
func (r AMDResult) Valid() bool {
	switch r {
	case AMDHuman, AMDMachine, AMDNotSure, AMDFax:
		return true
	}
	return false
}

// Outcome classifies how a call session ended.
type Outcome string

const (
	// OutcomeAIHandled means the AI dialogue engaged and the call ended there.
	OutcomeAIHandled Outcome = "ai_handled"
	// OutcomeAgentHandled means a human agent was bridged onto the call.
	OutcomeAgentHandled Outcome = "agent_handled"
	// OutcomeVoicemail means a machine answered and the voicemail script played.
	OutcomeVoicemail Outcome = "voicemail"
	// OutcomeFax means the provider classified the answer as a fax line.
	OutcomeFax Outcome = "fax"
	// OutcomeAbandoned means a human answered but neither the AI dialogue nor
	// an agent ever engaged before the call ended.
	OutcomeAbandoned Outcome = "abandoned"
	// OutcomeNoAnswer means the call ended before it was answered.
	OutcomeNoAnswer Outcome = "no_answer"
)

// Connected reports whether a human answered the call. Only connected calls
// count toward the abandon-rate denominator.
func (o Outcome) Connected() bool {
	switch o {
	case OutcomeAIHandled, OutcomeAgentHandled, OutcomeAbandoned:
		return true
	}
	return false
}

// CallSnapshot is the immutable terminal record of a call session, emitted to
// the audit sink and the scheduler's metrics feed when the session ends.
type CallSnapshot struct {
	CallID          string     `json:"call_id"`
	CampaignID      string     `json:"campaign_id,omitempty"`
	AccountID       string     `json:"account_id,omitempty"`
	Phone           string     `json:"phone,omitempty"`
	Outcome         Outcome    `json:"outcome"`
	AMDResult       *AMDResult `json:"amd_result,omitempty"`
	AssignedAgentID string     `json:"assigned_agent_id,omitempty"`
	TurnCount       int        `json:"turn_count"`
	StartedAt       time.Time  `json:"started_at"`
	EndedAt         time.Time  `json:"ended_at"`
}

// Duration returns the call duration.
func (s *CallSnapshot) Duration() time.Duration {
	return s.EndedAt.Sub(s.StartedAt)
}

// SessionView is the read-only representation of a live session returned by
// the operator API.
type SessionView struct {
	CallID           string     `json:"call_id"`
	CampaignID       string     `json:"campaign_id,omitempty"`
	AccountID        string     `json:"account_id,omitempty"`
	Phone            string     `json:"phone,omitempty"`
	State            CallState  `json:"state"`
	AMDResult        *AMDResult `json:"amd_result,omitempty"`
	AssignedAgentID  string     `json:"assigned_agent_id,omitempty"`
	TurnCount        int        `json:"turn_count"`
	StartedAt        time.Time  `json:"started_at"`
	LastTransitionAt time.Time  `json:"last_transition_at"`
}
