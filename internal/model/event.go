package model

import (
	"time"
)

// EventType identifies an inbound telephony event.
type EventType string

const (
	EventAnswered         EventType = "answered"
	EventAMDResult        EventType = "amd_result"
	EventSpeakEnded       EventType = "speak_ended"
	EventGatherEnded      EventType = "gather_ended"
	EventGatherTimeout    EventType = "gather_timeout"
	EventHumanTakeover    EventType = "human_takeover_requested"
	EventAgentAssigned    EventType = "agent_assigned"
	EventBridged          EventType = "bridged"
	EventHangup           EventType = "hangup"
	EventAgentUnavailable EventType = "agent_unavailable"
)

// Event is a decoded telephony event. The payload fields populated depend on
// Type: AMD for amd_result, Text for gather_ended, AgentID/AgentEndpoint for
// agent_assigned and agent_unavailable.
type Event struct {
	CallID        string    `json:"call_id"`
	Type          EventType `json:"event_type"`
	AMD           AMDResult `json:"amd,omitempty"`
	Text          string    `json:"text,omitempty"`
	AgentID       string    `json:"agent_id,omitempty"`
	AgentEndpoint string    `json:"agent_endpoint,omitempty"`
	ReceivedAt    time.Time `json:"received_at"`
}
