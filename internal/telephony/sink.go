package telephony

import (
	"context"
	"encoding/json"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	natsclient "github.com/adrper79-dot/CallMonitor-sub000/internal/nats"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// AgentNotification is pushed to the dashboard collaborator when an agent is
// assigned to or released from a call.
type AgentNotification struct {
	AgentID    string    `json:"agent_id"`
	Kind       string    `json:"kind"` // assigned | released
	CallID     string    `json:"call_id,omitempty"`
	CampaignID string    `json:"campaign_id,omitempty"`
	OccurredAt time.Time `json:"occurred_at"`
}

// Sink publishes terminal call snapshots and agent notifications. Publishes
// are best-effort with a bounded retry; a failure is logged with its attempt
// count and never blocks or fails a call's progression.
type Sink struct {
	streams     *natsclient.StreamManager
	logger      *logger.Logger
	maxAttempts int
}

// NewSink creates a sink backed by JetStream.
func NewSink(streams *natsclient.StreamManager, maxAttempts int, log *logger.Logger) *Sink {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &Sink{
		streams:     streams,
		logger:      log,
		maxAttempts: maxAttempts,
	}
}

// PublishOutcome emits the terminal snapshot for an ended call.
func (s *Sink) PublishOutcome(ctx context.Context, snap *model.CallSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		s.logger.Error("failed to marshal call snapshot", zap.String("call_id", snap.CallID), zap.Error(err))
		return
	}
	s.publish(ctx, "outcome", natsclient.OutcomeSubject(snap.CampaignID), data, snap.CallID)
}

// NotifyAgent emits a dashboard notification for an agent.
func (s *Sink) NotifyAgent(ctx context.Context, n AgentNotification) {
	if n.OccurredAt.IsZero() {
		n.OccurredAt = time.Now()
	}
	data, err := json.Marshal(n)
	if err != nil {
		s.logger.Error("failed to marshal agent notification", zap.String("agent_id", n.AgentID), zap.Error(err))
		return
	}
	s.publish(ctx, "notify", natsclient.NotifySubject(n.AgentID), data, n.CallID)
}

func (s *Sink) publish(ctx context.Context, sink, subject string, data []byte, callID string) {
	attempts := 0
	operation := func() error {
		attempts++
		_, err := s.streams.Publish(ctx, subject, data)
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(s.maxAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(operation, bo); err != nil {
		s.logger.Warn("sink publish failed",
			zap.String("sink", sink),
			zap.String("subject", subject),
			zap.String("call_id", callID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		metrics.SinkPublishesTotal.WithLabelValues(sink, "error").Inc()
		return
	}

	metrics.SinkPublishesTotal.WithLabelValues(sink, "success").Inc()
}
