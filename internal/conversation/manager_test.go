package conversation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/adrper79-dot/CallMonitor-sub000/internal/responder"
	"github.com/adrper79-dot/CallMonitor-sub000/pkg/logger"
)

type fakeResponder struct {
	reply string
	err   error
	delay time.Duration
}

func (f *fakeResponder) Complete(ctx context.Context, req *responder.Request) (*responder.Result, error) {
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.err != nil {
		return nil, f.err
	}
	return &responder.Result{Content: f.reply}, nil
}

func (f *fakeResponder) Name() string { return "fake" }

func TestManagerNextAppendsBothTurns(t *testing.T) {
	m := NewManager(&fakeResponder{reply: "sure thing"}, "m", time.Second, logger.NewNop())
	h := NewHistory("prompt", 20)

	reply := m.Next(context.Background(), h, "book me in")

	if reply != "sure thing" {
		t.Fatalf("reply = %q", reply)
	}
	if h.Len() != 2 {
		t.Fatalf("len = %d, want 2", h.Len())
	}
	turns := h.Turns()
	if turns[0].Role != RoleUser || turns[0].Content != "book me in" {
		t.Fatalf("first turn = %+v", turns[0])
	}
	if turns[1].Role != RoleAssistant || turns[1].Content != "sure thing" {
		t.Fatalf("second turn = %+v", turns[1])
	}
}

func TestManagerFallbackOnError(t *testing.T) {
	m := NewManager(&fakeResponder{err: errors.New("upstream down")}, "m", time.Second, logger.NewNop())
	h := NewHistory("", 20)

	reply := m.Next(context.Background(), h, "hello?")

	if reply != FallbackUtterance {
		t.Fatalf("reply = %q, want fallback", reply)
	}
	// The fallback still lands in history so the dialogue stays coherent.
	if h.Len() != 2 {
		t.Fatalf("len = %d, want 2", h.Len())
	}
}

func TestManagerFallbackOnTimeout(t *testing.T) {
	m := NewManager(&fakeResponder{reply: "late", delay: time.Second}, "m", 20*time.Millisecond, logger.NewNop())
	h := NewHistory("", 20)

	reply := m.Next(context.Background(), h, "hello?")
	if reply != FallbackUtterance {
		t.Fatalf("reply = %q, want fallback on timeout", reply)
	}
}

func TestManagerNilClientAlwaysFallsBack(t *testing.T) {
	m := NewManager(nil, "m", time.Second, logger.NewNop())
	h := NewHistory("", 20)

	if reply := m.Next(context.Background(), h, "anyone?"); reply != FallbackUtterance {
		t.Fatalf("reply = %q, want fallback", reply)
	}
}

func TestManagerFallbackOnEmptyContent(t *testing.T) {
	m := NewManager(&fakeResponder{reply: ""}, "m", time.Second, logger.NewNop())
	h := NewHistory("", 20)

	if reply := m.Next(context.Background(), h, "hm"); reply != FallbackUtterance {
		t.Fatalf("reply = %q, want fallback", reply)
	}
}
