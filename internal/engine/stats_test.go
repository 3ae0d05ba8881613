package engine

import (
	"testing"
	"time"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
)

func endedCall(campaignID string, outcome model.Outcome, at time.Time) *model.CallSnapshot {
	return &model.CallSnapshot{
		CallID:     "call",
		CampaignID: campaignID,
		Outcome:    outcome,
		StartedAt:  at.Add(-time.Minute),
		EndedAt:    at,
	}
}

func TestStatsActiveCalls(t *testing.T) {
	s := NewStats(time.Hour)
	defer s.Close()

	s.CallStarted("c1")
	s.CallStarted("c1")
	s.CallStarted("c2")

	if got := s.ActiveCalls("c1"); got != 2 {
		t.Fatalf("active = %d, want 2", got)
	}

	s.CallEnded(endedCall("c1", model.OutcomeAIHandled, time.Now()))
	if got := s.ActiveCalls("c1"); got != 1 {
		t.Fatalf("active = %d, want 1", got)
	}
	if got := s.ActiveCalls("c2"); got != 1 {
		t.Fatalf("c2 active = %d, want 1", got)
	}
}

func TestStatsAbandonRate(t *testing.T) {
	s := NewStats(time.Hour)
	defer s.Close()

	if got := s.AbandonRate("c1"); got != 0 {
		t.Fatalf("empty window rate = %f, want 0", got)
	}

	now := time.Now()
	for i := 0; i < 3; i++ {
		s.CallEnded(endedCall("c1", model.OutcomeAIHandled, now))
	}
	s.CallEnded(endedCall("c1", model.OutcomeAbandoned, now))
	// Not connected; must not enter the denominator.
	s.CallEnded(endedCall("c1", model.OutcomeNoAnswer, now))
	s.CallEnded(endedCall("c1", model.OutcomeVoicemail, now))

	if got := s.AbandonRate("c1"); got != 0.25 {
		t.Fatalf("rate = %f, want 0.25", got)
	}
}

func TestStatsAbandonRateWindowExpiry(t *testing.T) {
	s := NewStats(time.Hour)
	defer s.Close()

	old := time.Now().Add(-2 * time.Hour)
	s.CallEnded(endedCall("c1", model.OutcomeAbandoned, old))
	s.CallEnded(endedCall("c1", model.OutcomeAIHandled, time.Now()))

	if got := s.AbandonRate("c1"); got != 0 {
		t.Fatalf("expired abandon must not count, rate = %f", got)
	}
}

func TestStatsAnswerRate(t *testing.T) {
	s := NewStats(time.Hour)
	defer s.Close()

	if got := s.AnswerRate("c1"); got != 1.0 {
		t.Fatalf("empty window answer rate = %f, want 1", got)
	}

	now := time.Now()
	s.CallEnded(endedCall("c1", model.OutcomeAIHandled, now))
	s.CallEnded(endedCall("c1", model.OutcomeNoAnswer, now))
	s.CallEnded(endedCall("c1", model.OutcomeNoAnswer, now))
	s.CallEnded(endedCall("c1", model.OutcomeNoAnswer, now))

	if got := s.AnswerRate("c1"); got != 0.25 {
		t.Fatalf("answer rate = %f, want 0.25", got)
	}
}

func TestStatsAnswerRateNoConnectedDefaultsToOne(t *testing.T) {
	s := NewStats(time.Hour)
	defer s.Close()

	s.CallEnded(endedCall("c1", model.OutcomeNoAnswer, time.Now()))

	if got := s.AnswerRate("c1"); got != 1.0 {
		t.Fatalf("answer rate = %f, want 1 (zero-divisor guard)", got)
	}
}
