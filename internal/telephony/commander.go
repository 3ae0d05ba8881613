// Package telephony is the provider boundary: it dispatches outbound call
// commands, decodes inbound webhook events, and publishes best-effort
// outcome/notification events. No call-control business logic lives here.
package telephony

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	natsclient "github.com/adrper79-dot/CallMonitor-sub000/internal/nats"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// Commander issues fire-and-forget commands to the telephony provider.
// Completion is observed only via a later inbound event.
type Commander interface {
	Speak(ctx context.Context, callID, text string) error
	Gather(ctx context.Context, callID, mode string, timeout time.Duration, prompt string) error
	Bridge(ctx context.Context, callID, agentEndpoint string) error
	Hangup(ctx context.Context, callID string) error
	Dial(ctx context.Context, callID, phone, campaignID string) error
}

// NATSCommander publishes provider commands to the dialer stream. Transient
// publish failures are retried with bounded exponential backoff.
type NATSCommander struct {
	streams     *natsclient.StreamManager
	logger      *logger.Logger
	maxAttempts int
}

// NewNATSCommander creates a commander backed by JetStream.
func NewNATSCommander(streams *natsclient.StreamManager, maxAttempts int, log *logger.Logger) *NATSCommander {
	if maxAttempts <= 0 {
		maxAttempts = 3
	}
	return &NATSCommander{
		streams:     streams,
		logger:      log,
		maxAttempts: maxAttempts,
	}
}

// Speak issues a speak command.
func (c *NATSCommander) Speak(ctx context.Context, callID, text string) error {
	return c.publish(ctx, model.Command{Type: model.CommandSpeak, CallID: callID, Text: text})
}

// Gather issues a gather command with an explicit timeout. A non-empty prompt
// is spoken by the provider before it starts listening.
func (c *NATSCommander) Gather(ctx context.Context, callID, mode string, timeout time.Duration, prompt string) error {
	return c.publish(ctx, model.Command{
		Type:       model.CommandGather,
		CallID:     callID,
		GatherMode: mode,
		TimeoutMs:  timeout.Milliseconds(),
		Prompt:     prompt,
	})
}

// Bridge issues a bridge command toward an agent endpoint.
func (c *NATSCommander) Bridge(ctx context.Context, callID, agentEndpoint string) error {
	return c.publish(ctx, model.Command{Type: model.CommandBridge, CallID: callID, AgentEndpoint: agentEndpoint})
}

// Hangup issues a hangup command.
func (c *NATSCommander) Hangup(ctx context.Context, callID string) error {
	return c.publish(ctx, model.Command{Type: model.CommandHangup, CallID: callID})
}

// Dial issues a dial command. The call ID is generated locally and echoed by
// the provider in every subsequent event for this call.
func (c *NATSCommander) Dial(ctx context.Context, callID, phone, campaignID string) error {
	return c.publish(ctx, model.Command{
		Type:       model.CommandDial,
		CallID:     callID,
		Phone:      phone,
		CampaignID: campaignID,
	})
}

func (c *NATSCommander) publish(ctx context.Context, cmd model.Command) error {
	data, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("failed to marshal command: %w", err)
	}

	subject := natsclient.CommandSubject(cmd.Type, cmd.CallID)

	attempts := 0
	operation := func() error {
		attempts++
		_, err := c.streams.Publish(ctx, subject, data)
		return err
	}

	bo := backoff.WithContext(
		backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(c.maxAttempts-1)),
		ctx,
	)

	if err := backoff.Retry(operation, bo); err != nil {
		c.logger.Error("command dispatch failed",
			zap.String("command", string(cmd.Type)),
			zap.String("call_id", cmd.CallID),
			zap.Int("attempts", attempts),
			zap.Error(err),
		)
		metrics.RecordCommand(string(cmd.Type), "error")
		return fmt.Errorf("dispatch %s for call %s: %w", cmd.Type, cmd.CallID, err)
	}

	metrics.RecordCommand(string(cmd.Type), "success")
	return nil
}
