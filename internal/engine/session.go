package engine

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/conversation"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/telephony"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// SessionConfig carries the scripts and thresholds shared by all sessions.
type SessionConfig struct {
	Greeting      string
	Voicemail     string
	CallbackOffer string
	Nudge         string

	GatherMode             string
	GatherTimeout          time.Duration
	MaxConsecutiveTimeouts int
}

// Session is the per-call actor. Events for one call are processed strictly
// serially by the session's own goroutine; different sessions run fully in
// parallel. All mutable fields are written only by that goroutine; the small
// mutex exists solely so View can read a consistent snapshot.
type Session struct {
	id         string
	campaignID string
	accountID  string
	phone      string

	mu                  sync.Mutex
	state               model.CallState
	amd                 *model.AMDResult
	agentID             string
	agentEndpoint       string
	turnCount           int
	consecutiveTimeouts int
	callbackFallback    bool
	startedAt           time.Time
	lastTransitionAt    time.Time

	history *conversation.History
	mailbox chan model.Event
	done    chan struct{}

	commander telephony.Commander
	convo     *conversation.Manager
	agents    *AgentPool
	cfg       SessionConfig
	onEnd     func(snap *model.CallSnapshot)
	logger    *logger.Logger
}

func newSession(
	id, campaignID, accountID, phone, systemPrompt string,
	maxHistoryTurns int,
	commander telephony.Commander,
	convo *conversation.Manager,
	agents *AgentPool,
	cfg SessionConfig,
	onEnd func(snap *model.CallSnapshot),
	log *logger.Logger,
) *Session {
	now := time.Now()
	return &Session{
		id:               id,
		campaignID:       campaignID,
		accountID:        accountID,
		phone:            phone,
		state:            model.StateIdle,
		startedAt:        now,
		lastTransitionAt: now,
		history:          conversation.NewHistory(systemPrompt, maxHistoryTurns),
		mailbox:          make(chan model.Event, 64),
		done:             make(chan struct{}),
		commander:        commander,
		convo:            convo,
		agents:           agents,
		cfg:              cfg,
		onEnd:            onEnd,
		logger:           log.WithCall(id, campaignID),
	}
}

// run drains the mailbox until the session reaches its terminal state.
func (s *Session) run(ctx context.Context) {
	defer close(s.done)
	for {
		select {
		case ev := <-s.mailbox:
			s.handle(ctx, ev)
			if s.State() == model.StateCallEnded {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// deliver enqueues an event for serial processing. Events arriving after the
// session ended are discarded as invalid transitions, same as a duplicate
// caught just before the run loop exits.
func (s *Session) deliver(ev model.Event) {
	select {
	case s.mailbox <- ev:
	case <-s.done:
		s.invalid(ev, model.StateCallEnded)
	}
}

// State returns the current state.
func (s *Session) State() model.CallState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// View returns a read-only snapshot of the session.
func (s *Session) View() model.SessionView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return model.SessionView{
		CallID:           s.id,
		CampaignID:       s.campaignID,
		AccountID:        s.accountID,
		Phone:            s.phone,
		State:            s.state,
		AMDResult:        s.amd,
		AssignedAgentID:  s.agentID,
		TurnCount:        s.turnCount,
		StartedAt:        s.startedAt,
		LastTransitionAt: s.lastTransitionAt,
	}
}

// handle applies one event to the state machine. Unmatched (event, state)
// pairs are logged and discarded; the session is never force-advanced.
func (s *Session) handle(ctx context.Context, ev model.Event) {
	metrics.EventsTotal.WithLabelValues(string(ev.Type)).Inc()

	state := s.State()
	if state.Terminal() {
		s.invalid(ev, state)
		return
	}

	switch ev.Type {
	case model.EventAnswered:
		if state != model.StateRinging {
			s.invalid(ev, state)
			return
		}
		s.transition(model.StateAnswered)

	case model.EventAMDResult:
		if state != model.StateAnswered {
			s.invalid(ev, state)
			return
		}
		s.handleAMD(ctx, ev.AMD)

	case model.EventSpeakEnded:
		s.handleSpeakEnded(ctx, state, ev)

	case model.EventGatherEnded:
		if state != model.StateAIListening {
			s.invalid(ev, state)
			return
		}
		s.handleGatherEnded(ctx, ev.Text)

	case model.EventGatherTimeout:
		if state != model.StateAIListening {
			s.invalid(ev, state)
			return
		}
		s.handleGatherTimeout(ctx)

	case model.EventHumanTakeover:
		if !state.AIPhase() {
			s.invalid(ev, state)
			return
		}
		s.requestHuman()

	case model.EventAgentAssigned:
		if state != model.StateHumanRequested {
			s.invalid(ev, state)
			return
		}
		s.mu.Lock()
		s.agentID = ev.AgentID
		s.agentEndpoint = ev.AgentEndpoint
		s.mu.Unlock()
		s.transition(model.StateBridging)
		if err := s.commander.Bridge(ctx, s.id, ev.AgentEndpoint); err != nil {
			s.failSafe(ctx)
		}

	case model.EventAgentUnavailable:
		if state != model.StateHumanRequested {
			s.invalid(ev, state)
			return
		}
		// Bounded-wait fallback: offer a callback and hang up rather than
		// holding the caller indefinitely.
		s.mu.Lock()
		s.callbackFallback = true
		s.mu.Unlock()
		s.transition(model.StateVoicemailSpeaking)
		if err := s.commander.Speak(ctx, s.id, s.cfg.CallbackOffer); err != nil {
			s.failSafe(ctx)
		}

	case model.EventBridged:
		if state != model.StateBridging {
			s.invalid(ev, state)
			return
		}
		s.transition(model.StateHumanActive)

	case model.EventHangup:
		s.end(ctx, s.outcomeAtHangup(state), false)

	default:
		s.invalid(ev, state)
	}
}

func (s *Session) handleAMD(ctx context.Context, result model.AMDResult) {
	s.mu.Lock()
	if s.amd == nil {
		r := result
		s.amd = &r
	}
	s.mu.Unlock()

	switch RouteAMD(result) {
	case AMDConnectAI:
		s.transition(model.StateAIGreeting)
		if err := s.commander.Speak(ctx, s.id, s.cfg.Greeting); err != nil {
			s.failSafe(ctx)
		}
	case AMDPlayVoicemail:
		s.transition(model.StateVoicemailSpeaking)
		if err := s.commander.Speak(ctx, s.id, s.cfg.Voicemail); err != nil {
			s.failSafe(ctx)
		}
	case AMDHangupFax:
		s.end(ctx, model.OutcomeFax, true)
	}
}

func (s *Session) handleSpeakEnded(ctx context.Context, state model.CallState, ev model.Event) {
	switch state {
	case model.StateAIGreeting, model.StateAISpeaking:
		s.transition(model.StateAIListening)
		s.gather(ctx, "")

	case model.StateVoicemailSpeaking:
		s.end(ctx, s.terminalSpeakOutcome(), true)

	default:
		s.invalid(ev, state)
	}
}

func (s *Session) handleGatherEnded(ctx context.Context, text string) {
	s.mu.Lock()
	s.consecutiveTimeouts = 0
	s.mu.Unlock()

	s.transition(model.StateAIThinking)

	// The responder call is this actor's only long suspension point; failures
	// are absorbed inside the conversation manager.
	reply := s.convo.Next(ctx, s.history, text)

	s.mu.Lock()
	s.turnCount = s.history.Len()
	s.mu.Unlock()

	s.transition(model.StateAISpeaking)
	if err := s.commander.Speak(ctx, s.id, reply); err != nil {
		s.failSafe(ctx)
	}
}

func (s *Session) handleGatherTimeout(ctx context.Context) {
	s.mu.Lock()
	s.consecutiveTimeouts++
	timeouts := s.consecutiveTimeouts
	s.mu.Unlock()

	if timeouts >= s.cfg.MaxConsecutiveTimeouts {
		s.requestHuman()
		return
	}
	// Re-issue the gather with a nudge prompt; the session stays listening.
	s.gather(ctx, s.cfg.Nudge)
}

func (s *Session) requestHuman() {
	s.transition(model.StateHumanRequested)
	s.agents.Request(s.campaignID, s.id)
}

func (s *Session) gather(ctx context.Context, prompt string) {
	if err := s.commander.Gather(ctx, s.id, s.cfg.GatherMode, s.cfg.GatherTimeout, prompt); err != nil {
		s.failSafe(ctx)
	}
}

// outcomeAtHangup classifies a remote hangup by where the call was.
func (s *Session) outcomeAtHangup(state model.CallState) model.Outcome {
	switch state {
	case model.StateIdle, model.StateRinging:
		return model.OutcomeNoAnswer
	case model.StateAnswered, model.StateHumanRequested, model.StateBridging:
		return model.OutcomeAbandoned
	case model.StateHumanActive:
		return model.OutcomeAgentHandled
	case model.StateVoicemailSpeaking:
		return s.terminalSpeakOutcome()
	default:
		// AI dialogue states.
		return model.OutcomeAIHandled
	}
}

func (s *Session) terminalSpeakOutcome() model.Outcome {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.callbackFallback {
		return model.OutcomeAbandoned
	}
	return model.OutcomeVoicemail
}

// failSafe ends the call when a command cannot be dispatched even after
// retries. The caller must never be left on a silent line.
func (s *Session) failSafe(ctx context.Context) {
	s.logger.Error("command dispatch exhausted retries, ending call")
	s.end(ctx, s.outcomeAtHangup(s.State()), true)
}

// end moves the session to its terminal state and emits the snapshot. Called
// exactly once; the run loop exits right after.
func (s *Session) end(ctx context.Context, outcome model.Outcome, issueHangup bool) {
	state := s.State()

	if issueHangup {
		// Dispatch failure here is already logged by the commander.
		_ = s.commander.Hangup(ctx, s.id)
	}

	if state == model.StateHumanRequested {
		s.agents.Cancel(s.id)
	}

	s.mu.Lock()
	agentID := s.agentID
	s.mu.Unlock()
	if agentID != "" {
		s.agents.Release(agentID)
	}

	s.transition(model.StateCallEnded)

	snap := s.snapshot(outcome)
	metrics.CallDuration.WithLabelValues(s.campaignID, string(outcome)).Observe(snap.Duration().Seconds())
	s.logger.Info("call ended",
		zap.String("outcome", string(outcome)),
		zap.Duration("duration", snap.Duration()),
		zap.Int("turns", snap.TurnCount),
	)

	if s.onEnd != nil {
		s.onEnd(snap)
	}
}

func (s *Session) snapshot(outcome model.Outcome) *model.CallSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return &model.CallSnapshot{
		CallID:          s.id,
		CampaignID:      s.campaignID,
		AccountID:       s.accountID,
		Phone:           s.phone,
		Outcome:         outcome,
		AMDResult:       s.amd,
		AssignedAgentID: s.agentID,
		TurnCount:       s.turnCount,
		StartedAt:       s.startedAt,
		EndedAt:         time.Now(),
	}
}

func (s *Session) transition(to model.CallState) {
	s.mu.Lock()
	from := s.state
	s.state = to
	s.lastTransitionAt = time.Now()
	s.mu.Unlock()

	s.logger.Debug("state transition",
		zap.String("from", string(from)),
		zap.String("to", string(to)),
	)
}

func (s *Session) invalid(ev model.Event, state model.CallState) {
	s.logger.Warn("invalid state transition, event discarded",
		zap.String("event_type", string(ev.Type)),
		zap.String("state", string(state)),
	)
	metrics.InvalidTransitionsTotal.WithLabelValues(string(ev.Type), string(state)).Inc()
}
