package engine

import (
	"time"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

type outcomeRec struct {
	outcome model.Outcome
	at      time.Time
}

// Stats is the single-owner metrics aggregator for campaign-wide counters:
// live-call counts and the trailing-window outcome history behind the abandon
// and answer rates. Call actors report transitions by message; nothing
// mutates this state directly.
type Stats struct {
	ops  chan func()
	quit chan struct{}

	window time.Duration
	now    func() time.Time

	// Owned by the run goroutine.
	active   map[string]int
	outcomes map[string][]outcomeRec
}

// NewStats creates and starts the aggregator. The window bounds how far back
// outcomes count toward rolling rates.
func NewStats(window time.Duration) *Stats {
	if window <= 0 {
		window = time.Hour
	}
	s := &Stats{
		ops:      make(chan func(), 64),
		quit:     make(chan struct{}),
		window:   window,
		now:      time.Now,
		active:   make(map[string]int),
		outcomes: make(map[string][]outcomeRec),
	}
	go s.run()
	return s
}

func (s *Stats) run() {
	for {
		select {
		case op := <-s.ops:
			op()
		case <-s.quit:
			return
		}
	}
}

// Close stops the aggregator.
func (s *Stats) Close() {
	close(s.quit)
}

// CallStarted records a new live session for a campaign.
func (s *Stats) CallStarted(campaignID string) {
	s.ops <- func() {
		s.active[campaignID]++
		metrics.ActiveCalls.WithLabelValues(campaignID).Set(float64(s.active[campaignID]))
	}
}

// CallEnded records a terminal snapshot, retiring the live session and adding
// the outcome to the rolling window.
func (s *Stats) CallEnded(snap *model.CallSnapshot) {
	s.ops <- func() {
		id := snap.CampaignID
		if s.active[id] > 0 {
			s.active[id]--
		}
		metrics.ActiveCalls.WithLabelValues(id).Set(float64(s.active[id]))

		s.outcomes[id] = append(s.outcomes[id], outcomeRec{outcome: snap.Outcome, at: snap.EndedAt})
		s.trim(id)
	}
}

// ActiveCalls returns the live session count for a campaign.
func (s *Stats) ActiveCalls(campaignID string) int {
	reply := make(chan int, 1)
	s.ops <- func() {
		reply <- s.active[campaignID]
	}
	return <-reply
}

// AbandonRate returns abandoned / connected over the trailing window. Zero
// when no connected calls fall inside the window.
func (s *Stats) AbandonRate(campaignID string) float64 {
	reply := make(chan float64, 1)
	s.ops <- func() {
		s.trim(campaignID)

		var connected, abandoned int
		for _, rec := range s.outcomes[campaignID] {
			if rec.outcome.Connected() {
				connected++
				if rec.outcome == model.OutcomeAbandoned {
					abandoned++
				}
			}
		}

		var rate float64
		if connected > 0 {
			rate = float64(abandoned) / float64(connected)
		}
		metrics.AbandonRate.WithLabelValues(campaignID).Set(rate)
		reply <- rate
	}
	return <-reply
}

// AnswerRate returns connected / total outcomes over the trailing window,
// defaulting to 1 until the window holds any data. Feeds the predictive
// pacing formula.
func (s *Stats) AnswerRate(campaignID string) float64 {
	reply := make(chan float64, 1)
	s.ops <- func() {
		s.trim(campaignID)

		recs := s.outcomes[campaignID]
		if len(recs) == 0 {
			reply <- 1.0
			return
		}

		var connected int
		for _, rec := range recs {
			if rec.outcome.Connected() {
				connected++
			}
		}
		if connected == 0 {
			// Avoid a zero divisor in the predictive formula.
			reply <- 1.0
			return
		}
		reply <- float64(connected) / float64(len(recs))
	}
	return <-reply
}

// trim drops outcome records older than the window. Caller must be the run
// goroutine.
func (s *Stats) trim(campaignID string) {
	cutoff := s.now().Add(-s.window)
	recs := s.outcomes[campaignID]
	i := 0
	for i < len(recs) && recs[i].at.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.outcomes[campaignID] = recs[i:]
	}
}
