package telephony

import (
	"errors"
	"testing"
	"time"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
)

func TestDecodeEvent(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name    string
		body    string
		want    model.Event
		wantErr error
	}{
		{
			name: "answered",
			body: `{"call_id":"c1","event_type":"answered"}`,
			want: model.Event{CallID: "c1", Type: model.EventAnswered},
		},
		{
			name: "amd result human",
			body: `{"call_id":"c1","event_type":"amd_result","payload":{"result":"human"}}`,
			want: model.Event{CallID: "c1", Type: model.EventAMDResult, AMD: model.AMDHuman},
		},
		{
			name: "gather ended with text",
			body: `{"call_id":"c1","event_type":"gather_ended","payload":{"text":"yes please"}}`,
			want: model.Event{CallID: "c1", Type: model.EventGatherEnded, Text: "yes please"},
		},
		{
			name: "agent assigned",
			body: `{"call_id":"c1","event_type":"agent_assigned","payload":{"agent_id":"a1","endpoint":"sip:a1@pbx"}}`,
			want: model.Event{CallID: "c1", Type: model.EventAgentAssigned, AgentID: "a1", AgentEndpoint: "sip:a1@pbx"},
		},
		{
			name: "hangup",
			body: `{"call_id":"c1","event_type":"hangup"}`,
			want: model.Event{CallID: "c1", Type: model.EventHangup},
		},
		{
			name:    "missing call id",
			body:    `{"event_type":"answered"}`,
			wantErr: ErrMissingCallID,
		},
		{
			name:    "unknown event type",
			body:    `{"call_id":"c1","event_type":"transferred"}`,
			wantErr: ErrUnknownEventType,
		},
		{
			name:    "invalid amd classification",
			body:    `{"call_id":"c1","event_type":"amd_result","payload":{"result":"robot"}}`,
			wantErr: ErrBadPayload,
		},
		{
			name:    "agent assigned without endpoint",
			body:    `{"call_id":"c1","event_type":"agent_assigned","payload":{"agent_id":"a1"}}`,
			wantErr: ErrBadPayload,
		},
		{
			name:    "not json",
			body:    `not json at all`,
			wantErr: ErrBadPayload,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := DecodeEvent([]byte(tt.body), now)

			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("err = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("DecodeEvent: %v", err)
			}

			if got.CallID != tt.want.CallID || got.Type != tt.want.Type ||
				got.AMD != tt.want.AMD || got.Text != tt.want.Text ||
				got.AgentID != tt.want.AgentID || got.AgentEndpoint != tt.want.AgentEndpoint {
				t.Fatalf("got %+v, want %+v", got, tt.want)
			}
			if !got.ReceivedAt.Equal(now) {
				t.Fatalf("ReceivedAt = %v, want %v", got.ReceivedAt, now)
			}
		})
	}
}
