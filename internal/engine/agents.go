package engine

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/internal/telephony"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// Agent pool errors.
var (
	ErrAgentExists   = errors.New("agent already logged in")
	ErrAgentNotFound = errors.New("agent not found")
	ErrAgentOnCall   = errors.New("agent is on a call")
	ErrAgentState    = errors.New("invalid agent state for this transition")
)

// Notifier publishes best-effort agent notifications for the dashboard
// collaborator.
type Notifier interface {
	NotifyAgent(ctx context.Context, n telephony.AgentNotification)
}

type agentRequest struct {
	callID      string
	campaignID  string
	requestedAt time.Time
	timer       *time.Timer
}

// AgentPool tracks human-agent availability and owns all assignment
// decisions. It is a single-owner actor: every operation runs on the pool's
// goroutine, so slot state never needs a lock. Assignment results are
// delivered asynchronously into the requesting session's mailbox as
// agent_assigned or agent_unavailable events.
type AgentPool struct {
	ops  chan func()
	quit chan struct{}

	waitTimeout time.Duration
	wrapUp      time.Duration
	now         func() time.Time

	deliver  func(ev model.Event)
	notifier Notifier
	logger   *logger.Logger

	// Owned by the run goroutine.
	slots   map[string]*model.AgentSlot
	pending map[string][]*agentRequest // campaign -> FIFO
}

// NewAgentPool creates and starts the pool actor.
func NewAgentPool(waitTimeout, wrapUp time.Duration, notifier Notifier, log *logger.Logger) *AgentPool {
	if waitTimeout <= 0 {
		waitTimeout = 20 * time.Second
	}
	p := &AgentPool{
		ops:         make(chan func(), 64),
		quit:        make(chan struct{}),
		waitTimeout: waitTimeout,
		wrapUp:      wrapUp,
		now:         time.Now,
		notifier:    notifier,
		logger:      log,
		slots:       make(map[string]*model.AgentSlot),
		pending:     make(map[string][]*agentRequest),
	}
	go p.run()
	return p
}

func (p *AgentPool) run() {
	for {
		select {
		case op := <-p.ops:
			op()
		case <-p.quit:
			return
		}
	}
}

// Close stops the pool actor.
func (p *AgentPool) Close() {
	close(p.quit)
}

// SetDeliver wires the event delivery callback. Must be called before any
// Request.
func (p *AgentPool) SetDeliver(deliver func(ev model.Event)) {
	p.deliver = deliver
}

// Login registers an agent as available for a campaign.
func (p *AgentPool) Login(req *model.AgentLoginRequest) error {
	return p.do(func() error {
		if _, ok := p.slots[req.AgentID]; ok {
			return ErrAgentExists
		}
		now := p.now()
		p.slots[req.AgentID] = &model.AgentSlot{
			AgentID:    req.AgentID,
			CampaignID: req.CampaignID,
			Endpoint:   req.Endpoint,
			Status:     model.AgentAvailable,
			IdleSince:  now,
			LoggedInAt: now,
		}
		p.updateGauge(req.CampaignID)
		p.matchPending(req.CampaignID)
		return nil
	})
}

// Logout removes an agent. Agents on a live call cannot log out.
func (p *AgentPool) Logout(agentID string) error {
	return p.do(func() error {
		slot, ok := p.slots[agentID]
		if !ok {
			return ErrAgentNotFound
		}
		if slot.Status == model.AgentOnCall {
			return ErrAgentOnCall
		}
		delete(p.slots, agentID)
		p.updateGauge(slot.CampaignID)
		return nil
	})
}

// StartBreak moves an available agent onto break.
func (p *AgentPool) StartBreak(agentID string) error {
	return p.do(func() error {
		slot, ok := p.slots[agentID]
		if !ok {
			return ErrAgentNotFound
		}
		if slot.Status != model.AgentAvailable {
			return ErrAgentState
		}
		slot.Status = model.AgentBreak
		p.updateGauge(slot.CampaignID)
		return nil
	})
}

// MakeAvailable returns an agent to available from break or wrap-up.
func (p *AgentPool) MakeAvailable(agentID string) error {
	return p.do(func() error {
		slot, ok := p.slots[agentID]
		if !ok {
			return ErrAgentNotFound
		}
		if slot.Status != model.AgentBreak && slot.Status != model.AgentWrapUp {
			return ErrAgentState
		}
		p.toAvailable(slot)
		return nil
	})
}

// Request asks for an agent for a call. The result arrives asynchronously in
// the session's mailbox: agent_assigned on success, agent_unavailable if no
// agent frees up within the bounded wait window.
func (p *AgentPool) Request(campaignID, callID string) {
	p.ops <- func() {
		if slot := p.pickLongestIdle(campaignID); slot != nil {
			p.assign(slot, callID)
			return
		}

		req := &agentRequest{
			callID:      callID,
			campaignID:  campaignID,
			requestedAt: p.now(),
		}
		req.timer = time.AfterFunc(p.waitTimeout, func() {
			p.post(func() { p.expire(req) })
		})
		p.pending[campaignID] = append(p.pending[campaignID], req)
	}
}

// Cancel withdraws a pending agent request for a call, e.g. when the caller
// hangs up while waiting.
func (p *AgentPool) Cancel(callID string) {
	p.ops <- func() {
		for campaignID, reqs := range p.pending {
			for i, req := range reqs {
				if req.callID == callID {
					req.timer.Stop()
					p.pending[campaignID] = append(reqs[:i], reqs[i+1:]...)
					return
				}
			}
		}
	}
}

// Release returns an agent from a finished call into wrap-up; after the
// cool-down the agent becomes available again.
func (p *AgentPool) Release(agentID string) {
	p.ops <- func() {
		slot, ok := p.slots[agentID]
		if !ok || slot.Status != model.AgentOnCall {
			return
		}

		callID := slot.CurrentCallID
		slot.Status = model.AgentWrapUp
		slot.CurrentCallID = ""
		slot.WrapUpUntil = p.now().Add(p.wrapUp)
		p.updateGauge(slot.CampaignID)

		p.notify(telephony.AgentNotification{
			AgentID:    agentID,
			Kind:       "released",
			CallID:     callID,
			CampaignID: slot.CampaignID,
		})

		time.AfterFunc(p.wrapUp, func() {
			p.post(func() {
				s, ok := p.slots[agentID]
				if ok && s.Status == model.AgentWrapUp {
					p.toAvailable(s)
				}
			})
		})
	}
}

// Counts returns (available, on_call, total) agents for a campaign.
func (p *AgentPool) Counts(campaignID string) (available, onCall, total int) {
	type counts struct{ available, onCall, total int }
	reply := make(chan counts, 1)
	p.ops <- func() {
		var c counts
		for _, slot := range p.slots {
			if slot.CampaignID != campaignID {
				continue
			}
			c.total++
			switch slot.Status {
			case model.AgentAvailable:
				c.available++
			case model.AgentOnCall:
				c.onCall++
			}
		}
		reply <- c
	}
	c := <-reply
	return c.available, c.onCall, c.total
}

// Snapshot returns a copy of all agent slots.
func (p *AgentPool) Snapshot() []model.AgentSlot {
	reply := make(chan []model.AgentSlot, 1)
	p.ops <- func() {
		out := make([]model.AgentSlot, 0, len(p.slots))
		for _, slot := range p.slots {
			out = append(out, *slot)
		}
		reply <- out
	}
	return <-reply
}

// post enqueues a timer callback without blocking a closed pool. After Close
// the run goroutine is gone, so a plain channel send from an expiring timer
// would hang its goroutine forever once the buffer fills.
func (p *AgentPool) post(op func()) {
	select {
	case p.ops <- op:
	case <-p.quit:
	}
}

// do runs an operation on the pool goroutine and waits for its error.
func (p *AgentPool) do(op func() error) error {
	reply := make(chan error, 1)
	p.ops <- func() { reply <- op() }
	return <-reply
}

// pickLongestIdle selects the available agent idle the longest (FIFO across
// agents, so no one starves). Caller must be the run goroutine.
func (p *AgentPool) pickLongestIdle(campaignID string) *model.AgentSlot {
	var best *model.AgentSlot
	for _, slot := range p.slots {
		if slot.CampaignID != campaignID || slot.Status != model.AgentAvailable {
			continue
		}
		if best == nil || slot.IdleSince.Before(best.IdleSince) {
			best = slot
		}
	}
	return best
}

func (p *AgentPool) assign(slot *model.AgentSlot, callID string) {
	slot.Status = model.AgentOnCall
	slot.CurrentCallID = callID
	p.updateGauge(slot.CampaignID)

	if p.deliver != nil {
		p.deliver(model.Event{
			CallID:        callID,
			Type:          model.EventAgentAssigned,
			AgentID:       slot.AgentID,
			AgentEndpoint: slot.Endpoint,
			ReceivedAt:    p.now(),
		})
	}

	p.notify(telephony.AgentNotification{
		AgentID:    slot.AgentID,
		Kind:       "assigned",
		CallID:     callID,
		CampaignID: slot.CampaignID,
	})
}

func (p *AgentPool) toAvailable(slot *model.AgentSlot) {
	slot.Status = model.AgentAvailable
	slot.WrapUpUntil = time.Time{}
	slot.IdleSince = p.now()
	p.updateGauge(slot.CampaignID)
	p.matchPending(slot.CampaignID)
}

// matchPending assigns freed agents to waiting requests in request order.
// Caller must be the run goroutine.
func (p *AgentPool) matchPending(campaignID string) {
	for len(p.pending[campaignID]) > 0 {
		slot := p.pickLongestIdle(campaignID)
		if slot == nil {
			return
		}
		req := p.pending[campaignID][0]
		p.pending[campaignID] = p.pending[campaignID][1:]
		req.timer.Stop()
		p.assign(slot, req.callID)
	}
}

// expire fires when a request's wait window elapses without an assignment.
func (p *AgentPool) expire(req *agentRequest) {
	reqs := p.pending[req.campaignID]
	for i, r := range reqs {
		if r == req {
			p.pending[req.campaignID] = append(reqs[:i], reqs[i+1:]...)
			p.logger.Warn("no agent available within wait window",
				zap.String("call_id", req.callID),
				zap.String("campaign_id", req.campaignID),
			)
			if p.deliver != nil {
				p.deliver(model.Event{
					CallID:     req.callID,
					Type:       model.EventAgentUnavailable,
					ReceivedAt: p.now(),
				})
			}
			return
		}
	}
}

func (p *AgentPool) notify(n telephony.AgentNotification) {
	if p.notifier == nil {
		return
	}
	n.OccurredAt = p.now()
	go p.notifier.NotifyAgent(context.Background(), n)
}

func (p *AgentPool) updateGauge(campaignID string) {
	var available int
	for _, slot := range p.slots {
		if slot.CampaignID == campaignID && slot.Status == model.AgentAvailable {
			available++
		}
	}
	metrics.AgentsAvailable.WithLabelValues(campaignID).Set(float64(available))
}
