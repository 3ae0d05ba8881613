package telephony

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
)

// Decode errors. Unknown shapes are rejected here, never coerced.
var (
	ErrUnknownEventType = errors.New("unknown event type")
	ErrMissingCallID    = errors.New("missing call_id")
	ErrBadPayload       = errors.New("malformed event payload")
)

// eventEnvelope is the provider's webhook wire format.
type eventEnvelope struct {
	CallID    string          `json:"call_id"`
	EventType model.EventType `json:"event_type"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

type amdPayload struct {
	Result model.AMDResult `json:"result"`
}

type gatherPayload struct {
	Text string `json:"text"`
}

type agentPayload struct {
	AgentID  string `json:"agent_id"`
	Endpoint string `json:"endpoint"`
}

// DecodeEvent parses a webhook body into a typed event. Each known event type
// is matched explicitly; anything else fails loudly.
func DecodeEvent(body []byte, now time.Time) (model.Event, error) {
	var env eventEnvelope
	if err := json.Unmarshal(body, &env); err != nil {
		return model.Event{}, fmt.Errorf("%w: %v", ErrBadPayload, err)
	}
	if env.CallID == "" {
		return model.Event{}, ErrMissingCallID
	}

	ev := model.Event{
		CallID:     env.CallID,
		Type:       env.EventType,
		ReceivedAt: now,
	}

	switch env.EventType {
	case model.EventAnswered, model.EventSpeakEnded, model.EventGatherTimeout,
		model.EventBridged, model.EventHangup, model.EventHumanTakeover:
		// No payload.
		return ev, nil

	case model.EventAMDResult:
		var p amdPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return model.Event{}, fmt.Errorf("%w: amd_result: %v", ErrBadPayload, err)
		}
		if !p.Result.Valid() {
			return model.Event{}, fmt.Errorf("%w: amd_result %q", ErrBadPayload, p.Result)
		}
		ev.AMD = p.Result
		return ev, nil

	case model.EventGatherEnded:
		var p gatherPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return model.Event{}, fmt.Errorf("%w: gather_ended: %v", ErrBadPayload, err)
		}
		ev.Text = p.Text
		return ev, nil

	case model.EventAgentAssigned:
		var p agentPayload
		if err := json.Unmarshal(env.Payload, &p); err != nil {
			return model.Event{}, fmt.Errorf("%w: agent_assigned: %v", ErrBadPayload, err)
		}
		if p.AgentID == "" || p.Endpoint == "" {
			return model.Event{}, fmt.Errorf("%w: agent_assigned requires agent_id and endpoint", ErrBadPayload)
		}
		ev.AgentID = p.AgentID
		ev.AgentEndpoint = p.Endpoint
		return ev, nil

	default:
		return model.Event{}, fmt.Errorf("%w: %q", ErrUnknownEventType, env.EventType)
	}
}
