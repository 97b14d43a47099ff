package app

import (
	"testing"

	"parley/internal/domain"
)

func TestRouteSkipsOfflineRecipients(t *testing.T) {
	reg := NewRegistry()
	tr := newFakeTransport()
	r := NewRouter(reg, tr)

	reg.Register("u1", "c1")

	r.Route("ping", map[string]string{"x": "y"}, []domain.UserID{"u1", "u2"})

	sent := tr.events()
	if len(sent) != 1 {
		t.Fatalf("got %d emissions, want exactly 1", len(sent))
	}
	if sent[0].conn != "c1" || sent[0].event != "ping" {
		t.Fatalf("unexpected emission %+v", sent[0])
	}
}

func TestRouteEmptyFanOutIsNoOp(t *testing.T) {
	reg := NewRegistry()
	tr := newFakeTransport()
	r := NewRouter(reg, tr)

	r.Route("ping", nil, []domain.UserID{"ghost1", "ghost2"})
	r.Route("ping", nil, nil)

	if n := len(tr.events()); n != 0 {
		t.Fatalf("got %d emissions, want 0", n)
	}
}

func TestRouteExceptSkipsOrigin(t *testing.T) {
	reg := NewRegistry()
	tr := newFakeTransport()
	r := NewRouter(reg, tr)

	reg.Register("u1", "c1")
	reg.Register("u2", "c2")

	r.RouteExcept("typing", nil, []domain.UserID{"u1", "u2"}, "u1")

	sent := tr.events()
	if len(sent) != 1 || sent[0].conn != "c2" {
		t.Fatalf("typing should reach only c2, got %+v", sent)
	}
}

func TestRouteContinuesPastSendFailure(t *testing.T) {
	reg := NewRegistry()
	tr := newFakeTransport()
	r := NewRouter(reg, tr)

	reg.Register("u1", "c1")
	reg.Register("u2", "c2")
	tr.fail["c1"] = true

	r.Route("ping", nil, []domain.UserID{"u1", "u2"})

	sent := tr.events()
	if len(sent) != 1 || sent[0].conn != "c2" {
		t.Fatalf("u2 should still receive after u1 failure, got %+v", sent)
	}
}

func TestBroadcastReachesAllConnections(t *testing.T) {
	reg := NewRegistry()
	tr := newFakeTransport()
	r := NewRouter(reg, tr)

	reg.Register("u1", "c1")
	reg.Register("u2", "c2")
	reg.Register("u3", "c3")

	r.Broadcast("online_users", []domain.UserID{"u1"})

	if n := len(tr.events()); n != 3 {
		t.Fatalf("broadcast reached %d conns, want 3", n)
	}
}
