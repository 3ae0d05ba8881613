// Package conversation manages bounded per-call dialogue context and the
// responder invocation that produces the AI side of a call.
package conversation

import (
	"github.com/adrper79-dot/CallMonitor-sub000/internal/responder"
)

// Role names used in dialogue turns.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// History holds the bounded dialogue history for one call. The system prompt
// is kept out of the turn window so trimming never drops it. History is owned
// by a single call actor and needs no locking.
type History struct {
	system   string
	turns    []responder.Turn
	maxTurns int
}

// NewHistory creates a history with the given system prompt and turn cap.
func NewHistory(systemPrompt string, maxTurns int) *History {
	if maxTurns <= 0 {
		maxTurns = 20
	}
	return &History{
		system:   systemPrompt,
		maxTurns: maxTurns,
	}
}

// Append adds a turn, dropping the oldest turns beyond the cap.
func (h *History) Append(role, content string) {
	h.turns = append(h.turns, responder.Turn{Role: role, Content: content})
	if len(h.turns) > h.maxTurns {
		h.turns = h.turns[len(h.turns)-h.maxTurns:]
	}
}

// Turns returns a copy of the current turn window.
func (h *History) Turns() []responder.Turn {
	out := make([]responder.Turn, len(h.turns))
	copy(out, h.turns)
	return out
}

// System returns the system prompt.
func (h *History) System() string {
	return h.system
}

// Len returns the number of turns in the window.
func (h *History) Len() int {
	return len(h.turns)
}
