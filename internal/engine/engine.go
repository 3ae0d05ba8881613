// Package engine implements the call orchestration core: per-call session
// actors, the agent pool, AMD routing, the dial queue, and the pacing
// scheduler.
package engine

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/conversation"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/telephony"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

var ErrSessionNotFound = errors.New("call session not found")

// OutcomeSink receives the terminal record of every call session.
type OutcomeSink interface {
	PublishOutcome(ctx context.Context, snap *model.CallSnapshot)
}

// Engine owns the live session registry and routes inbound events to the
// per-call actors.
type Engine struct {
	mu       sync.RWMutex
	sessions map[string]*Session

	commander telephony.Commander
	convo     *conversation.Manager
	agents    *AgentPool
	stats     *Stats
	outcomes  OutcomeSink

	sessionCfg      SessionConfig
	systemPrompt    string
	maxHistoryTurns int

	ctx    context.Context
	cancel context.CancelFunc
	logger *logger.Logger
}

// New creates the engine and wires the agent pool's event path back into it.
func New(
	commander telephony.Commander,
	convo *conversation.Manager,
	agents *AgentPool,
	stats *Stats,
	outcomes OutcomeSink,
	sessionCfg SessionConfig,
	systemPrompt string,
	maxHistoryTurns int,
	log *logger.Logger,
) *Engine {
	ctx, cancel := context.WithCancel(context.Background())
	e := &Engine{
		sessions:        make(map[string]*Session),
		commander:       commander,
		convo:           convo,
		agents:          agents,
		stats:           stats,
		outcomes:        outcomes,
		sessionCfg:      sessionCfg,
		systemPrompt:    systemPrompt,
		maxHistoryTurns: maxHistoryTurns,
		ctx:             ctx,
		cancel:          cancel,
		logger:          log,
	}
	agents.SetDeliver(func(ev model.Event) {
		if err := e.Deliver(ev); err != nil {
			log.Warn("agent pool event for unknown call",
				zap.String("call_id", ev.CallID),
				zap.String("event_type", string(ev.Type)),
			)
		}
	})
	return e
}

// Close stops accepting new work. Live sessions wind down as their run loops
// observe the cancelled context.
func (e *Engine) Close() {
	e.cancel()
}

// StartOutbound creates a session for one dial attempt and dispatches the dial
// command. The returned call ID is echoed by the provider in every subsequent
// event for this call.
func (e *Engine) StartOutbound(ctx context.Context, campaignID, accountID, phone string) (string, error) {
	callID := uuid.Must(uuid.NewV7()).String()

	s, _ := e.spawn(callID, campaignID, accountID, phone)
	s.transition(model.StateRinging)

	if err := e.commander.Dial(ctx, callID, phone, campaignID); err != nil {
		e.remove(callID)
		return "", err
	}
	e.stats.CallStarted(campaignID)

	e.logger.Info("outbound dial started",
		zap.String("call_id", callID),
		zap.String("campaign_id", campaignID),
	)
	return callID, nil
}

// Deliver routes an inbound event to its session. An answered event for an
// unknown call ID creates an ad-hoc inbound session; anything else for an
// unknown call is an error for the caller to log.
func (e *Engine) Deliver(ev model.Event) error {
	e.mu.RLock()
	s, ok := e.sessions[ev.CallID]
	e.mu.RUnlock()

	if !ok {
		if ev.Type != model.EventAnswered {
			return ErrSessionNotFound
		}
		var created bool
		s, created = e.spawn(ev.CallID, "", "", "")
		if created {
			s.transition(model.StateRinging)
			e.stats.CallStarted("")
			e.logger.Info("inbound call accepted", zap.String("call_id", ev.CallID))
		}
	}

	s.deliver(ev)
	return nil
}

// RequestTakeover asks the session to hand the caller to a human agent. Only
// valid while the AI dialogue holds the call; the session enforces that.
func (e *Engine) RequestTakeover(callID string) error {
	return e.Deliver(model.Event{CallID: callID, Type: model.EventHumanTakeover})
}

// Hangup ends a live call from the operator side.
func (e *Engine) Hangup(callID string) error {
	return e.Deliver(model.Event{CallID: callID, Type: model.EventHangup})
}

// View returns a read-only snapshot of one live session.
func (e *Engine) View(callID string) (model.SessionView, error) {
	e.mu.RLock()
	s, ok := e.sessions[callID]
	e.mu.RUnlock()
	if !ok {
		return model.SessionView{}, ErrSessionNotFound
	}
	return s.View(), nil
}

// Views returns snapshots of all live sessions.
func (e *Engine) Views() []model.SessionView {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := make([]model.SessionView, 0, len(e.sessions))
	for _, s := range e.sessions {
		out = append(out, s.View())
	}
	return out
}

// ActiveCount returns the number of live sessions for a campaign.
func (e *Engine) ActiveCount(campaignID string) int {
	return e.stats.ActiveCalls(campaignID)
}

// spawn registers a new session for callID unless one is already live. Two
// retransmitted answered webhooks can race past the Deliver read lock, so the
// map is re-checked under the write lock and the existing session wins.
func (e *Engine) spawn(callID, campaignID, accountID, phone string) (*Session, bool) {
	s := newSession(
		callID, campaignID, accountID, phone,
		e.systemPrompt, e.maxHistoryTurns,
		e.commander, e.convo, e.agents,
		e.sessionCfg,
		e.onSessionEnd,
		e.logger,
	)

	e.mu.Lock()
	if existing, ok := e.sessions[callID]; ok {
		e.mu.Unlock()
		return existing, false
	}
	e.sessions[callID] = s
	e.mu.Unlock()

	go s.run(e.ctx)
	return s, true
}

func (e *Engine) onSessionEnd(snap *model.CallSnapshot) {
	e.remove(snap.CallID)
	e.stats.CallEnded(snap)
	go e.outcomes.PublishOutcome(context.Background(), snap)
}

func (e *Engine) remove(callID string) {
	e.mu.Lock()
	delete(e.sessions, callID)
	e.mu.Unlock()
}
