package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/conversation"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/engine"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

type nopCommander struct{}

func (nopCommander) Speak(ctx context.Context, callID, text string) error { return nil }
func (nopCommander) Gather(ctx context.Context, callID, mode string, timeout time.Duration, prompt string) error {
	return nil
}
func (nopCommander) Bridge(ctx context.Context, callID, agentEndpoint string) error { return nil }
func (nopCommander) Hangup(ctx context.Context, callID string) error                { return nil }
func (nopCommander) Dial(ctx context.Context, callID, phone, campaignID string) error {
	return nil
}

type nopSink struct{}

func (nopSink) PublishOutcome(ctx context.Context, snap *model.CallSnapshot) {}

func newTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	log := logger.NewNop()

	pool := engine.NewAgentPool(time.Second, 0, nil, log)
	t.Cleanup(pool.Close)

	stats := engine.NewStats(time.Hour)
	t.Cleanup(stats.Close)

	convo := conversation.NewManager(nil, "", time.Second, log)

	eng := engine.New(nopCommander{}, convo, pool, stats, nopSink{}, engine.SessionConfig{
		Greeting:               "hi",
		Voicemail:              "bye",
		CallbackOffer:          "later",
		Nudge:                  "there?",
		GatherMode:             "speech",
		GatherTimeout:          time.Second,
		MaxConsecutiveTimeouts: 3,
	}, "system", 20, log)
	t.Cleanup(eng.Close)
	return eng
}

func postWebhook(t *testing.T, h *WebhookHandler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/telephony", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.Telephony(rec, req)
	return rec
}

func TestWebhookAcceptsAnsweredForNewCall(t *testing.T) {
	eng := newTestEngine(t)
	h := NewWebhookHandler(eng, logger.NewNop())

	rec := postWebhook(t, h, `{"call_id":"c1","event_type":"answered"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}

	deadline := time.Now().Add(2 * time.Second)
	for {
		if view, err := eng.View("c1"); err == nil && view.State == model.StateAnswered {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("session never reached answered")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebhookDiscardsMalformedBodyWith202(t *testing.T) {
	h := NewWebhookHandler(newTestEngine(t), logger.NewNop())

	// A provider retry of a malformed event would never succeed, so the
	// handler acknowledges and drops it.
	for _, body := range []string{
		`not json`,
		`{"event_type":"answered"}`,
		`{"call_id":"c1","event_type":"transferred"}`,
		`{"call_id":"c1","event_type":"amd_result","payload":{"result":"robot"}}`,
	} {
		rec := postWebhook(t, h, body)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("body %q: status = %d, want 202", body, rec.Code)
		}
	}
}

func TestWebhookDiscardsEventForUnknownCallWith202(t *testing.T) {
	h := NewWebhookHandler(newTestEngine(t), logger.NewNop())

	rec := postWebhook(t, h, `{"call_id":"ghost","event_type":"hangup"}`)
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d, want 202", rec.Code)
	}
}
