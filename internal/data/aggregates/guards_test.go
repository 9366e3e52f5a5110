package aggregates

import "testing"

func TestRequireStatusAllowed(t *testing.T) {
	if err := RequireStatusAllowed("waiting_for_confirm", "waiting_for_confirm"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireStatusAllowed(" Waiting_For_Confirm ", "waiting_for_confirm"); err != nil {
		t.Fatalf("status match should ignore case and space: %v", err)
	}
	if err := RequireStatusAllowed("generating", "waiting_for_confirm"); err == nil {
		t.Fatalf("expected conflict error")
	}
	if err := RequireStatusAllowed("generating"); err == nil {
		t.Fatalf("expected validation error for empty allow list")
	}
}

func TestRequireCASSuccess(t *testing.T) {
	if err := RequireCASSuccess(true, "ok"); err != nil {
		t.Fatalf("unexpected err: %v", err)
	}
	if err := RequireCASSuccess(false, "stale"); err == nil {
		t.Fatalf("expected conflict error")
	}
}
