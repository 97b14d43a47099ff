package app

import (
	"testing"

	"parley/internal/domain"
)

func TestPresenceMarkAndSnapshot(t *testing.T) {
	p := NewPresence()
	p.MarkOnline("c")
	p.MarkOnline("a")
	p.MarkOnline("b")
	p.MarkOnline("a") // idempotent

	snap := p.Snapshot()
	want := []domain.UserID{"a", "b", "c"}
	if len(snap) != len(want) {
		t.Fatalf("snapshot = %v, want %v", snap, want)
	}
	for i := range want {
		if snap[i] != want[i] {
			t.Fatalf("snapshot = %v, want %v", snap, want)
		}
	}

	p.MarkOffline("a")
	if p.Online("a") {
		t.Errorf("a should be offline")
	}
	if !p.Online("b") {
		t.Errorf("b should still be online")
	}
	if got := len(p.Snapshot()); got != 2 {
		t.Errorf("snapshot size = %d, want 2", got)
	}

	// Offline of an unknown user is a no-op.
	p.MarkOffline("zz")
}
