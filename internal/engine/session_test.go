package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/conversation"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/responder"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

type commandCall struct {
	kind   string
	callID string
	arg    string
}

type stubCommander struct {
	mu        sync.Mutex
	calls     []commandCall
	failSpeak bool
	failDial  bool
}

func (c *stubCommander) record(kind, callID, arg string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls = append(c.calls, commandCall{kind: kind, callID: callID, arg: arg})
}

func (c *stubCommander) Speak(ctx context.Context, callID, text string) error {
	if c.failSpeak {
		return errors.New("speak dispatch failed")
	}
	c.record("speak", callID, text)
	return nil
}

func (c *stubCommander) Gather(ctx context.Context, callID, mode string, timeout time.Duration, prompt string) error {
	c.record("gather", callID, prompt)
	return nil
}

func (c *stubCommander) Bridge(ctx context.Context, callID, agentEndpoint string) error {
	c.record("bridge", callID, agentEndpoint)
	return nil
}

func (c *stubCommander) Hangup(ctx context.Context, callID string) error {
	c.record("hangup", callID, "")
	return nil
}

func (c *stubCommander) Dial(ctx context.Context, callID, phone, campaignID string) error {
	if c.failDial {
		return errors.New("dial dispatch failed")
	}
	c.record("dial", callID, phone)
	return nil
}

func (c *stubCommander) commands() []commandCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]commandCall, len(c.calls))
	copy(out, c.calls)
	return out
}

func (c *stubCommander) last() commandCall {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.calls) == 0 {
		return commandCall{}
	}
	return c.calls[len(c.calls)-1]
}

type scriptedResponder struct {
	reply string
	err   error
}

func (s *scriptedResponder) Complete(ctx context.Context, req *responder.Request) (*responder.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &responder.Result{Content: s.reply}, nil
}

func (s *scriptedResponder) Name() string { return "scripted" }

func testSessionConfig() SessionConfig {
	return SessionConfig{
		Greeting:               "greeting script",
		Voicemail:              "voicemail script",
		CallbackOffer:          "callback offer script",
		Nudge:                  "nudge script",
		GatherMode:             "speech",
		GatherTimeout:          8 * time.Second,
		MaxConsecutiveTimeouts: 3,
	}
}

// newTestSession builds a session whose events are applied synchronously via
// handle, keeping transition tests deterministic.
func newTestSession(t *testing.T, cmd *stubCommander, client responder.Client) (*Session, *[]model.CallSnapshot) {
	t.Helper()
	log := logger.NewNop()

	pool := NewAgentPool(50*time.Millisecond, 0, nil, log)
	t.Cleanup(pool.Close)

	convo := conversation.NewManager(client, "test-model", time.Second, log)

	var snaps []model.CallSnapshot
	s := newSession(
		"call-1", "camp-1", "acct-1", "+15550001111",
		"system prompt", 20,
		cmd, convo, pool, testSessionConfig(),
		func(sn *model.CallSnapshot) { snaps = append(snaps, *sn) },
		log,
	)
	return s, &snaps
}

func ev(typ model.EventType) model.Event {
	return model.Event{CallID: "call-1", Type: typ, ReceivedAt: time.Now()}
}

func amdEvent(result model.AMDResult) model.Event {
	e := ev(model.EventAMDResult)
	e.AMD = result
	return e
}

func advanceToListening(t *testing.T, s *Session) {
	t.Helper()
	ctx := context.Background()
	s.transition(model.StateRinging)
	s.handle(ctx, ev(model.EventAnswered))
	s.handle(ctx, amdEvent(model.AMDHuman))
	s.handle(ctx, ev(model.EventSpeakEnded))
	if got := s.State(); got != model.StateAIListening {
		t.Fatalf("expected ai_listening, got %s", got)
	}
}

func TestSessionHappyPathAIDialogue(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "happy to help"})

	s.transition(model.StateRinging)

	s.handle(ctx, ev(model.EventAnswered))
	if got := s.State(); got != model.StateAnswered {
		t.Fatalf("expected answered, got %s", got)
	}

	s.handle(ctx, amdEvent(model.AMDHuman))
	if got := s.State(); got != model.StateAIGreeting {
		t.Fatalf("expected ai_greeting, got %s", got)
	}
	if last := cmd.last(); last.kind != "speak" || last.arg != "greeting script" {
		t.Fatalf("expected greeting speak, got %+v", last)
	}

	s.handle(ctx, ev(model.EventSpeakEnded))
	if got := s.State(); got != model.StateAIListening {
		t.Fatalf("expected ai_listening, got %s", got)
	}
	if last := cmd.last(); last.kind != "gather" || last.arg != "" {
		t.Fatalf("expected gather without prompt, got %+v", last)
	}

	gathered := ev(model.EventGatherEnded)
	gathered.Text = "tell me more"
	s.handle(ctx, gathered)
	if got := s.State(); got != model.StateAISpeaking {
		t.Fatalf("expected ai_speaking, got %s", got)
	}
	if last := cmd.last(); last.kind != "speak" || last.arg != "happy to help" {
		t.Fatalf("expected responder reply speak, got %+v", last)
	}
	if got := s.View().TurnCount; got != 2 {
		t.Fatalf("expected turn_count 2, got %d", got)
	}

	s.handle(ctx, ev(model.EventSpeakEnded))
	s.handle(ctx, ev(model.EventHangup))

	if got := s.State(); got != model.StateCallEnded {
		t.Fatalf("expected call_ended, got %s", got)
	}
	if len(*snaps) != 1 {
		t.Fatalf("expected 1 snapshot, got %d", len(*snaps))
	}
	snap := (*snaps)[0]
	if snap.Outcome != model.OutcomeAIHandled {
		t.Fatalf("expected ai_handled, got %s", snap.Outcome)
	}
	if snap.TurnCount != 2 {
		t.Fatalf("expected snapshot turn_count 2, got %d", snap.TurnCount)
	}
}

func TestSessionMachineAMDPlaysVoicemail(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	s.transition(model.StateRinging)
	s.handle(ctx, ev(model.EventAnswered))
	s.handle(ctx, amdEvent(model.AMDMachine))

	if got := s.State(); got != model.StateVoicemailSpeaking {
		t.Fatalf("expected voicemail_speaking, got %s", got)
	}
	if last := cmd.last(); last.kind != "speak" || last.arg != "voicemail script" {
		t.Fatalf("expected voicemail speak, got %+v", last)
	}

	s.handle(ctx, ev(model.EventSpeakEnded))

	if got := s.State(); got != model.StateCallEnded {
		t.Fatalf("expected call_ended, got %s", got)
	}
	if last := cmd.last(); last.kind != "hangup" {
		t.Fatalf("expected hangup after voicemail, got %+v", last)
	}
	if (*snaps)[0].Outcome != model.OutcomeVoicemail {
		t.Fatalf("expected voicemail outcome, got %s", (*snaps)[0].Outcome)
	}

	// A machine answer never reaches the AI dialogue.
	for _, call := range cmd.commands() {
		if call.kind == "gather" {
			t.Fatal("machine call should never gather")
		}
	}
}

func TestSessionNotSureAMDConnectsAI(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, _ := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	s.transition(model.StateRinging)
	s.handle(ctx, ev(model.EventAnswered))
	s.handle(ctx, amdEvent(model.AMDNotSure))

	if got := s.State(); got != model.StateAIGreeting {
		t.Fatalf("not_sure should connect the AI, got %s", got)
	}
}

func TestSessionFaxHangsUp(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	s.transition(model.StateRinging)
	s.handle(ctx, ev(model.EventAnswered))
	s.handle(ctx, amdEvent(model.AMDFax))

	if got := s.State(); got != model.StateCallEnded {
		t.Fatalf("expected call_ended, got %s", got)
	}
	if (*snaps)[0].Outcome != model.OutcomeFax {
		t.Fatalf("expected fax outcome, got %s", (*snaps)[0].Outcome)
	}
	if last := cmd.last(); last.kind != "hangup" {
		t.Fatalf("expected hangup, got %+v", last)
	}
}

func TestSessionTakeoverIsOneWay(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	advanceToListening(t, s)

	s.handle(ctx, ev(model.EventHumanTakeover))
	if got := s.State(); got != model.StateHumanRequested {
		t.Fatalf("expected human_requested, got %s", got)
	}

	assigned := ev(model.EventAgentAssigned)
	assigned.AgentID = "agent-7"
	assigned.AgentEndpoint = "sip:agent-7@pbx.example.com"
	s.handle(ctx, assigned)
	if got := s.State(); got != model.StateBridging {
		t.Fatalf("expected bridging, got %s", got)
	}
	if last := cmd.last(); last.kind != "bridge" || last.arg != "sip:agent-7@pbx.example.com" {
		t.Fatalf("expected bridge to agent endpoint, got %+v", last)
	}

	s.handle(ctx, ev(model.EventBridged))
	if got := s.State(); got != model.StateHumanActive {
		t.Fatalf("expected human_active, got %s", got)
	}

	// Takeover never reverses back to AI dialogue.
	s.handle(ctx, ev(model.EventHumanTakeover))
	if got := s.State(); got != model.StateHumanActive {
		t.Fatalf("takeover must be one-way, got %s", got)
	}
	s.handle(ctx, ev(model.EventSpeakEnded))
	if got := s.State(); got != model.StateHumanActive {
		t.Fatalf("stale AI event must not move a bridged call, got %s", got)
	}

	s.handle(ctx, ev(model.EventHangup))
	if (*snaps)[0].Outcome != model.OutcomeAgentHandled {
		t.Fatalf("expected agent_handled, got %s", (*snaps)[0].Outcome)
	}
	if (*snaps)[0].AssignedAgentID != "agent-7" {
		t.Fatalf("expected assigned agent recorded, got %q", (*snaps)[0].AssignedAgentID)
	}
}

func TestSessionConsecutiveTimeoutsEscalate(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, _ := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	advanceToListening(t, s)

	// First two timeouts stay listening and re-gather with the nudge.
	for i := 0; i < 2; i++ {
		s.handle(ctx, ev(model.EventGatherTimeout))
		if got := s.State(); got != model.StateAIListening {
			t.Fatalf("timeout %d: expected ai_listening, got %s", i+1, got)
		}
		if last := cmd.last(); last.kind != "gather" || last.arg != "nudge script" {
			t.Fatalf("timeout %d: expected nudge gather, got %+v", i+1, last)
		}
	}

	// Third consecutive timeout escalates to a human.
	s.handle(ctx, ev(model.EventGatherTimeout))
	if got := s.State(); got != model.StateHumanRequested {
		t.Fatalf("expected human_requested after third timeout, got %s", got)
	}
}

func TestSessionTimeoutCounterResetsOnSpeech(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, _ := newTestSession(t, cmd, &scriptedResponder{reply: "reply"})

	advanceToListening(t, s)

	s.handle(ctx, ev(model.EventGatherTimeout))
	s.handle(ctx, ev(model.EventGatherTimeout))

	gathered := ev(model.EventGatherEnded)
	gathered.Text = "hello again"
	s.handle(ctx, gathered)
	s.handle(ctx, ev(model.EventSpeakEnded))

	// Counter was reset by the caller speaking; two more timeouts must not
	// escalate.
	s.handle(ctx, ev(model.EventGatherTimeout))
	s.handle(ctx, ev(model.EventGatherTimeout))
	if got := s.State(); got != model.StateAIListening {
		t.Fatalf("expected ai_listening after counter reset, got %s", got)
	}
}

func TestSessionAgentUnavailableFallsBackToCallbackOffer(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	advanceToListening(t, s)
	s.handle(ctx, ev(model.EventHumanTakeover))

	s.handle(ctx, ev(model.EventAgentUnavailable))
	if got := s.State(); got != model.StateVoicemailSpeaking {
		t.Fatalf("expected voicemail_speaking fallback, got %s", got)
	}
	if last := cmd.last(); last.kind != "speak" || last.arg != "callback offer script" {
		t.Fatalf("expected callback offer speak, got %+v", last)
	}

	s.handle(ctx, ev(model.EventSpeakEnded))
	if got := s.State(); got != model.StateCallEnded {
		t.Fatalf("expected call_ended, got %s", got)
	}
	if (*snaps)[0].Outcome != model.OutcomeAbandoned {
		t.Fatalf("callback fallback counts as abandoned, got %s", (*snaps)[0].Outcome)
	}
}

func TestSessionResponderFailureSpeaksFallback(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, _ := newTestSession(t, cmd, &scriptedResponder{err: errors.New("responder down")})

	advanceToListening(t, s)

	gathered := ev(model.EventGatherEnded)
	gathered.Text = "anyone there?"
	s.handle(ctx, gathered)

	if got := s.State(); got != model.StateAISpeaking {
		t.Fatalf("expected ai_speaking, got %s", got)
	}
	if last := cmd.last(); last.kind != "speak" || last.arg != conversation.FallbackUtterance {
		t.Fatalf("expected fallback utterance, got %+v", last)
	}
}

func TestSessionInvalidEventsAreDiscarded(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, _ := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	advanceToListening(t, s)
	before := len(cmd.commands())

	// Duplicate and out-of-order events leave the state machine untouched.
	s.handle(ctx, ev(model.EventAnswered))
	s.handle(ctx, amdEvent(model.AMDHuman))
	s.handle(ctx, ev(model.EventSpeakEnded))
	s.handle(ctx, ev(model.EventBridged))

	if got := s.State(); got != model.StateAIListening {
		t.Fatalf("invalid events must not change state, got %s", got)
	}
	if got := len(cmd.commands()); got != before {
		t.Fatalf("invalid events must not issue commands, had %d now %d", before, got)
	}
}

func TestSessionHangupWhileRingingIsNoAnswer(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	s.transition(model.StateRinging)
	s.handle(ctx, ev(model.EventHangup))

	if (*snaps)[0].Outcome != model.OutcomeNoAnswer {
		t.Fatalf("expected no_answer, got %s", (*snaps)[0].Outcome)
	}
}

func TestSessionHangupWhileWaitingForAgentIsAbandoned(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	advanceToListening(t, s)
	s.handle(ctx, ev(model.EventHumanTakeover))
	s.handle(ctx, ev(model.EventHangup))

	if (*snaps)[0].Outcome != model.OutcomeAbandoned {
		t.Fatalf("expected abandoned, got %s", (*snaps)[0].Outcome)
	}
}

func TestSessionSpeakFailureEndsCallGracefully(t *testing.T) {
	ctx := context.Background()
	cmd := &stubCommander{failSpeak: true}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "unused"})

	s.transition(model.StateRinging)
	s.handle(ctx, ev(model.EventAnswered))
	s.handle(ctx, amdEvent(model.AMDHuman))

	if got := s.State(); got != model.StateCallEnded {
		t.Fatalf("expected graceful end after dispatch failure, got %s", got)
	}
	if len(*snaps) != 1 {
		t.Fatalf("expected snapshot after dispatch failure, got %d", len(*snaps))
	}
	if last := cmd.last(); last.kind != "hangup" {
		t.Fatalf("expected hangup dispatched, got %+v", last)
	}
}

func TestEventsAfterEndAreCountedInvalid(t *testing.T) {
	cmd := &stubCommander{}
	s, snaps := newTestSession(t, cmd, &scriptedResponder{reply: "ok"})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go s.run(ctx)

	s.deliver(ev(model.EventAnswered))
	s.deliver(amdEvent(model.AMDFax))

	waitFor(t, func() bool {
		select {
		case <-s.done:
			return true
		default:
			return false
		}
	})

	counter := metrics.InvalidTransitionsTotal.WithLabelValues(
		string(model.EventHangup), string(model.StateCallEnded),
	)
	before := testutil.ToFloat64(counter)

	s.deliver(ev(model.EventHangup))

	if got := testutil.ToFloat64(counter); got != before+1 {
		t.Fatalf("expected invalid-transition count %v, got %v", before+1, got)
	}
	if len(*snaps) != 1 {
		t.Fatalf("expected one terminal snapshot, got %d", len(*snaps))
	}
}
