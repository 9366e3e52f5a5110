package testutil

import (
	"testing"
	"time"
)

func TestHooksRecorder_CapturesSignals(t *testing.T) {
	h := &HooksRecorder{}
	h.ObserveOperation("ledger.op", "conflict", 10*time.Millisecond)
	h.ObserveOperation("ledger.op", "success", 10*time.Millisecond)
	h.IncConflict("ledger.op")
	h.IncRetry("ledger.op")
	h.AddStaleReviews("ledger.op", 2)
	h.AddStaleReviews("ledger.op", 1)

	if len(h.Operations) != 2 {
		t.Fatalf("expected 2 op events, got %d", len(h.Operations))
	}
	if got := h.LastStatus("ledger.op"); got != "success" {
		t.Fatalf("LastStatus: want=success got=%s", got)
	}
	if got := h.LastStatus("missing"); got != "" {
		t.Fatalf("LastStatus(missing): got=%s", got)
	}
	if len(h.Conflicts) != 1 || len(h.Retries) != 1 {
		t.Fatalf("unexpected conflicts=%v retries=%v", h.Conflicts, h.Retries)
	}
	if h.Stale["ledger.op"] != 3 {
		t.Fatalf("stale total: want=3 got=%d", h.Stale["ledger.op"])
	}
}
