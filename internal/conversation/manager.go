package conversation

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/responder"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// FallbackUtterance is spoken when the responder fails or times out, so a
// responder outage never strands a call.
const FallbackUtterance = "Could you repeat that?"

// Manager produces the next AI utterance for a call from its bounded history.
type Manager struct {
	client  responder.Client
	model   string
	timeout time.Duration
	logger  *logger.Logger
}

// NewManager creates a conversation manager. A nil client is allowed; every
// turn then yields the fallback utterance.
func NewManager(client responder.Client, model string, timeout time.Duration, log *logger.Logger) *Manager {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Manager{
		client:  client,
		model:   model,
		timeout: timeout,
		logger:  log,
	}
}

// Next records the caller's utterance and returns the AI reply. Responder
// failures are absorbed here: the fallback utterance is substituted and the
// error never reaches the state machine.
func (m *Manager) Next(ctx context.Context, h *History, userText string) string {
	h.Append(RoleUser, userText)

	reply := m.complete(ctx, h)
	h.Append(RoleAssistant, reply)
	return reply
}

func (m *Manager) complete(ctx context.Context, h *History) string {
	if m.client == nil {
		metrics.ResponderFallbacksTotal.Inc()
		return FallbackUtterance
	}

	cctx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	start := time.Now()
	res, err := m.client.Complete(cctx, &responder.Request{
		Model:        m.model,
		SystemPrompt: h.System(),
		Turns:        h.Turns(),
	})
	elapsed := time.Since(start).Seconds()

	if err != nil {
		m.logger.Warn("responder failed, substituting fallback utterance",
			zap.String("provider", m.client.Name()),
			zap.Error(err),
		)
		metrics.RecordResponder(m.client.Name(), "error", elapsed)
		metrics.ResponderFallbacksTotal.Inc()
		return FallbackUtterance
	}

	metrics.RecordResponder(m.client.Name(), "success", elapsed)

	if res.Content == "" {
		metrics.ResponderFallbacksTotal.Inc()
		return FallbackUtterance
	}
	return res.Content
}
