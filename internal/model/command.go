package model

// CommandType identifies an outbound telephony command.
type CommandType string

const (
	CommandSpeak  CommandType = "speak"
	CommandGather CommandType = "gather"
	CommandBridge CommandType = "bridge"
	CommandHangup CommandType = "hangup"
	CommandDial   CommandType = "dial"
)

// Command is the wire form of a provider command. All commands are
// fire-and-forget; completion is observed only via a later inbound event.
type Command struct {
	Type   CommandType `json:"command"`
	CallID string      `json:"call_id"`

	// Speak payload.
	Text string `json:"text,omitempty"`

	// Gather payload. Prompt is optional and spoken before listening starts.
	GatherMode string `json:"gather_mode,omitempty"`
	TimeoutMs  int64  `json:"timeout_ms,omitempty"`
	Prompt     string `json:"prompt,omitempty"`

	// Bridge payload.
	AgentEndpoint string `json:"agent_endpoint,omitempty"`

	// Dial payload.
	Phone      string `json:"phone,omitempty"`
	CampaignID string `json:"campaign_id,omitempty"`
}
