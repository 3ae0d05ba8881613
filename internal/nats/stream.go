package nats

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go/jetstream"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
)

const (
	// StreamName is the name of the dialer stream.
	StreamName = "DIALER"

	// SubjectPrefix is the prefix for all dialer subjects.
	SubjectPrefix = "dialer"
)

// StreamManager handles JetStream stream operations.
type StreamManager struct {
	client *Client
}

// NewStreamManager creates a new stream manager.
func NewStreamManager(client *Client) *StreamManager {
	return &StreamManager{client: client}
}

// EnsureStream ensures the dialer stream exists with proper configuration.
func (m *StreamManager) EnsureStream(ctx context.Context) error {
	js := m.client.JetStream()

	_, err := js.Stream(ctx, StreamName)
	if err == nil {
		return nil // Stream already exists
	}

	_, err = js.CreateStream(ctx, jetstream.StreamConfig{
		Name:        StreamName,
		Subjects:    []string{fmt.Sprintf("%s.>", SubjectPrefix)},
		Retention:   jetstream.LimitsPolicy,
		MaxAge:      30 * 24 * time.Hour,
		MaxBytes:    10 * 1024 * 1024 * 1024, // 10GB
		Storage:     jetstream.FileStorage,
		Replicas:    1,
		Compression: jetstream.S2Compression,
		Description: "Telephony commands, call outcomes, and agent notifications",
	})
	if err != nil {
		return fmt.Errorf("failed to create stream: %w", err)
	}

	return nil
}

// CommandSubject returns the subject for an outbound provider command.
func CommandSubject(cmdType model.CommandType, callID string) string {
	return fmt.Sprintf("%s.cmd.%s.%s", SubjectPrefix, cmdType, callID)
}

// OutcomeSubject returns the subject for a terminal call snapshot.
func OutcomeSubject(campaignID string) string {
	if campaignID == "" {
		campaignID = "adhoc"
	}
	return fmt.Sprintf("%s.outcome.%s", SubjectPrefix, campaignID)
}

// NotifySubject returns the subject for an agent notification.
func NotifySubject(agentID string) string {
	return fmt.Sprintf("%s.notify.agent.%s", SubjectPrefix, agentID)
}

// Publish publishes raw payload bytes to a subject.
func (m *StreamManager) Publish(ctx context.Context, subject string, data []byte) (uint64, error) {
	ack, err := m.client.JetStream().Publish(ctx, subject, data)
	if err != nil {
		return 0, fmt.Errorf("failed to publish to %s: %w", subject, err)
	}
	return ack.Sequence, nil
}
