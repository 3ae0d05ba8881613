package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

var (
	ErrQueueEmpty      = errors.New("dial queue is empty")
	ErrCampaignPaused  = errors.New("campaign is paused")
	ErrNotPreviewMode  = errors.New("manual dial requires preview mode")
	ErrCampaignAtLimit = errors.New("campaign at max concurrent calls")
)

// Scheduler is the single coordinator deciding, on a fixed tick, how many new
// outbound dials each campaign originates. It is the only writer of the dial
// queue's pop side during automatic pacing.
type Scheduler struct {
	engine    *Engine
	campaigns *Campaigns
	queue     *DialQueue
	agents    *AgentPool
	stats     *Stats

	interval time.Duration
	busy     atomic.Bool
	logger   *logger.Logger
}

// NewScheduler creates the pacing scheduler. Run must be called to start it.
func NewScheduler(
	engine *Engine,
	campaigns *Campaigns,
	queue *DialQueue,
	agents *AgentPool,
	stats *Stats,
	interval time.Duration,
	log *logger.Logger,
) *Scheduler {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &Scheduler{
		engine:    engine,
		campaigns: campaigns,
		queue:     queue,
		agents:    agents,
		stats:     stats,
		interval:  interval,
		logger:    log,
	}
}

// Run drives the tick loop until the context is cancelled. A tick that is
// still running when the next one fires causes the new tick to be skipped
// with a log line; ticks never overlap.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logger.Info("scheduler started", zap.Duration("interval", s.interval))

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("scheduler stopped")
			return
		case <-ticker.C:
			if !s.busy.CompareAndSwap(false, true) {
				s.logger.Warn("scheduler tick still running, skipping")
				continue
			}
			s.Tick(ctx)
			s.busy.Store(false)
		}
	}
}

// Tick runs one pacing pass over all campaigns.
func (s *Scheduler) Tick(ctx context.Context) {
	for _, campaign := range s.campaigns.List() {
		if campaign.Deleted {
			continue
		}
		s.tickCampaign(ctx, &campaign)
	}
}

func (s *Scheduler) tickCampaign(ctx context.Context, campaign *model.Campaign) {
	// Safety governor first: a breach downgrades the campaign before any
	// dial-count math runs, so this very tick already paces progressively.
	rate := s.stats.AbandonRate(campaign.ID)
	if campaign.EffectiveMode() == model.PacingPredictive && rate > campaign.AbandonRateCeiling {
		if s.campaigns.Downgrade(campaign.ID, rate) {
			now := time.Now()
			campaign.DowngradedAt = &now
		}
	}

	if campaign.Paused {
		return
	}

	mode := campaign.EffectiveMode()
	available, onCall, total := s.agents.Counts(campaign.ID)
	active := s.stats.ActiveCalls(campaign.ID)
	answerRate := s.stats.AnswerRate(campaign.ID)

	n := dialCount(mode, available, onCall, total, active, campaign.MaxConcurrent, answerRate)
	if n == 0 {
		return
	}

	dialed := 0
	for i := 0; i < n; i++ {
		target, ok := s.queue.Pop(campaign.ID)
		if !ok {
			break
		}
		if _, err := s.engine.StartOutbound(ctx, campaign.ID, target.AccountID, target.Phone); err != nil {
			// Put the target back for a later tick; dispatch is already
			// failing, so stop dialing this campaign for now.
			target.Attempts++
			s.queue.Push(target)
			s.logger.Error("dial origination failed",
				zap.String("campaign_id", campaign.ID),
				zap.String("phone", target.Phone),
				zap.Error(err),
			)
			break
		}
		dialed++
	}

	if dialed > 0 {
		metrics.DialsTotal.WithLabelValues(campaign.ID, string(mode)).Add(float64(dialed))
		s.logger.Info("tick dialed",
			zap.String("campaign_id", campaign.ID),
			zap.String("pacing_mode", string(mode)),
			zap.Int("dialed", dialed),
			zap.Int("available_agents", available),
			zap.Int("active_calls", active),
		)
	}
}

// DialNow originates a single dial for the highest-priority queued target of a
// preview-mode campaign. Preview campaigns never dial from the tick loop.
func (s *Scheduler) DialNow(ctx context.Context, campaignID string) (string, error) {
	campaign, err := s.campaigns.Get(campaignID)
	if err != nil {
		return "", err
	}
	if campaign.EffectiveMode() != model.PacingPreview {
		return "", ErrNotPreviewMode
	}
	if campaign.Paused {
		return "", ErrCampaignPaused
	}
	if s.stats.ActiveCalls(campaignID) >= campaign.MaxConcurrent {
		return "", ErrCampaignAtLimit
	}

	target, ok := s.queue.Pop(campaignID)
	if !ok {
		return "", ErrQueueEmpty
	}

	callID, err := s.engine.StartOutbound(ctx, campaignID, target.AccountID, target.Phone)
	if err != nil {
		target.Attempts++
		s.queue.Push(target)
		return "", err
	}

	metrics.DialsTotal.WithLabelValues(campaignID, string(model.PacingPreview)).Inc()
	return callID, nil
}

// dialCount applies the pacing formula for one campaign. Pure so the pacing
// table is testable without a live pool.
func dialCount(mode model.PacingMode, available, onCall, total, active, maxConcurrent int, answerRate float64) int {
	headroom := maxConcurrent - active
	if headroom <= 0 {
		return 0
	}

	var n int
	switch mode {
	case model.PacingPreview:
		return 0

	case model.PacingProgressive:
		n = available - active

	case model.PacingPredictive:
		if total == 0 {
			return 0
		}
		utilization := float64(onCall) / float64(total)
		predicted := float64(available) * (1 - utilization)
		if answerRate <= 0 {
			answerRate = 1
		}
		n = int(predicted / answerRate)

	default:
		return 0
	}

	if n < 0 {
		n = 0
	}
	if n > headroom {
		n = headroom
	}
	return n
}
