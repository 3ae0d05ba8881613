package engine

import (
	"container/heap"
	"sync"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/model"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/metrics"
)

// DialQueue holds pending dial targets per campaign. Pop removes the winning
// entry atomically under the queue lock, so no target can be dialed twice.
// Ordering: priority desc, attempts asc, insertion order.
type DialQueue struct {
	mu         sync.Mutex
	byCampaign map[string]*targetHeap
	seq        uint64
}

// NewDialQueue creates an empty dial queue.
func NewDialQueue() *DialQueue {
	return &DialQueue{
		byCampaign: make(map[string]*targetHeap),
	}
}

// Push inserts a target into its campaign's queue.
func (q *DialQueue) Push(t model.DialTarget) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.byCampaign[t.CampaignID]
	if !ok {
		h = &targetHeap{}
		q.byCampaign[t.CampaignID] = h
	}

	q.seq++
	heap.Push(h, queuedTarget{target: t, seq: q.seq})
	metrics.QueueDepth.WithLabelValues(t.CampaignID).Set(float64(h.Len()))
}

// Pop removes and returns the highest-priority target for a campaign.
func (q *DialQueue) Pop(campaignID string) (model.DialTarget, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.byCampaign[campaignID]
	if !ok || h.Len() == 0 {
		return model.DialTarget{}, false
	}

	qt := heap.Pop(h).(queuedTarget)
	metrics.QueueDepth.WithLabelValues(campaignID).Set(float64(h.Len()))
	return qt.target, true
}

// Len returns the number of pending targets for a campaign.
func (q *DialQueue) Len(campaignID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	if h, ok := q.byCampaign[campaignID]; ok {
		return h.Len()
	}
	return 0
}

// Drop removes all pending targets for a campaign and returns how many were
// discarded. Used when a campaign is cancelled.
func (q *DialQueue) Drop(campaignID string) int {
	q.mu.Lock()
	defer q.mu.Unlock()

	h, ok := q.byCampaign[campaignID]
	if !ok {
		return 0
	}
	n := h.Len()
	delete(q.byCampaign, campaignID)
	metrics.QueueDepth.WithLabelValues(campaignID).Set(0)
	return n
}

type queuedTarget struct {
	target model.DialTarget
	seq    uint64
}

type targetHeap []queuedTarget

func (h targetHeap) Len() int { return len(h) }

func (h targetHeap) Less(i, j int) bool {
	a, b := h[i], h[j]
	if a.target.Priority != b.target.Priority {
		return a.target.Priority > b.target.Priority
	}
	if a.target.Attempts != b.target.Attempts {
		return a.target.Attempts < b.target.Attempts
	}
	return a.seq < b.seq
}

func (h targetHeap) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *targetHeap) Push(x any) {
	*h = append(*h, x.(queuedTarget))
}

func (h *targetHeap) Pop() any {
	old := *h
	n := len(old)
	item := old[n-1]
	*h = old[:n-1]
	return item
}
