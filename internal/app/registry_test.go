package app

import (
	"testing"

	"parley/internal/domain"
)

func TestRegistryLastConnectWins(t *testing.T) {
	r := NewRegistry()

	if prev, had := r.Register("alice", "c1"); had {
		t.Fatalf("first register reported superseded conn %q", prev)
	}
	if conn, ok := r.Lookup("alice"); !ok || conn != "c1" {
		t.Fatalf("Lookup = %q, %v; want c1, true", conn, ok)
	}

	prev, had := r.Register("alice", "c2")
	if !had || prev != "c1" {
		t.Fatalf("second register should supersede c1, got %q, %v", prev, had)
	}
	if conn, _ := r.Lookup("alice"); conn != "c2" {
		t.Fatalf("Lookup after overwrite = %q, want c2", conn)
	}
}

func TestRegistryUnregister(t *testing.T) {
	r := NewRegistry()
	r.Register("bob", "c1")
	r.Unregister("bob")
	if _, ok := r.Lookup("bob"); ok {
		t.Fatalf("bob should be absent after unregister")
	}
	// Absent user: no-op, no panic.
	r.Unregister("bob")
}

func TestRegistryLookupManyPreservesOrderAndAbsence(t *testing.T) {
	r := NewRegistry()
	r.Register("u1", "c1")
	r.Register("u3", "c3")

	res := r.LookupMany([]domain.UserID{"u1", "u2", "u3"})
	if len(res) != 3 {
		t.Fatalf("got %d entries, want 3", len(res))
	}
	if res[0].User != "u1" || !res[0].OK || res[0].Conn != "c1" {
		t.Errorf("entry 0 = %+v", res[0])
	}
	if res[1].User != "u2" || res[1].OK {
		t.Errorf("absent user must be passed through, got %+v", res[1])
	}
	if res[2].User != "u3" || !res[2].OK || res[2].Conn != "c3" {
		t.Errorf("entry 2 = %+v", res[2])
	}
}

func TestRegistryReleaseGuardsAgainstStaleDisconnect(t *testing.T) {
	r := NewRegistry()
	r.Register("alice", "c1")
	r.Register("alice", "c2")

	// The superseded connection's disconnect must not drop the new one.
	if r.Release("alice", "c1") {
		t.Fatalf("stale release should be refused")
	}
	if conn, ok := r.Lookup("alice"); !ok || conn != "c2" {
		t.Fatalf("mapping lost after stale release: %q, %v", conn, ok)
	}
	if !r.Release("alice", "c2") {
		t.Fatalf("current release should succeed")
	}
	if _, ok := r.Lookup("alice"); ok {
		t.Fatalf("mapping should be gone")
	}
}
