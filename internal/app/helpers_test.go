package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"parley/internal/core"
	"parley/internal/domain"
)

type sentEvent struct {
	conn    core.ConnID
	event   string
	payload any
}

type fakeTransport struct {
	mu     sync.Mutex
	sent   []sentEvent
	closed []core.ConnID
	fail   map[core.ConnID]bool
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{fail: make(map[core.ConnID]bool)}
}

func (f *fakeTransport) Send(id core.ConnID, event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[id] {
		return fmt.Errorf("send to %s failed", id)
	}
	f.sent = append(f.sent, sentEvent{conn: id, event: event, payload: payload})
	return nil
}

func (f *fakeTransport) CloseConn(id core.ConnID) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = append(f.closed, id)
}

func (f *fakeTransport) events() []sentEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]sentEvent, len(f.sent))
	copy(out, f.sent)
	return out
}

func (f *fakeTransport) byEvent(name string) []sentEvent {
	var out []sentEvent
	for _, e := range f.events() {
		if e.event == name {
			out = append(out, e)
		}
	}
	return out
}

type fakeDirectory struct {
	mu    sync.Mutex
	users map[domain.UserID]*domain.User
}

func newFakeDirectory(ids ...domain.UserID) *fakeDirectory {
	d := &fakeDirectory{users: make(map[domain.UserID]*domain.User)}
	for _, id := range ids {
		d.users[id] = &domain.User{ID: id, Name: string(id), Username: string(id)}
	}
	return d
}

func (d *fakeDirectory) FindUser(_ context.Context, id domain.UserID) (*domain.User, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	u, ok := d.users[id]
	if !ok {
		return nil, fmt.Errorf("user %s: %w", id, core.ErrNotFound)
	}
	return u, nil
}

type fakeCallStore struct {
	mu       sync.Mutex
	seq      int
	sessions []*domain.CallSession
}

func (s *fakeCallStore) CreateCall(_ context.Context, kind domain.CallKind, from, to domain.UserID) (*domain.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	sess := &domain.CallSession{
		ID:        domain.CallID(fmt.Sprintf("call-%d", s.seq)),
		Kind:      kind,
		Initiator: from,
		Receiver:  to,
		Status:    domain.CallOngoing,
		StartedAt: time.Now().UTC(),
	}
	s.sessions = append(s.sessions, sess)
	cp := *sess
	return &cp, nil
}

func (s *fakeCallStore) FindActiveCall(_ context.Context, kind domain.CallKind, a, b domain.UserID) (*domain.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NewPairKey(a, b)
	for i := len(s.sessions) - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if sess.Kind == kind && sess.Status == domain.CallOngoing && sess.Pair() == key {
			cp := *sess
			return &cp, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *fakeCallStore) SetVerdict(_ context.Context, kind domain.CallKind, id domain.CallID, v domain.Verdict, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Kind != kind || sess.ID != id {
			continue
		}
		if sess.Verdict != domain.VerdictNone {
			return core.ErrConflict
		}
		sess.Verdict = v
		if endedAt != nil {
			sess.Status = domain.CallEnded
			sess.EndedAt = endedAt
		}
		return nil
	}
	return core.ErrNotFound
}

func (s *fakeCallStore) EndCall(_ context.Context, kind domain.CallKind, id domain.CallID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.Kind == kind && sess.ID == id {
			sess.Status = domain.CallEnded
			sess.EndedAt = &endedAt
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *fakeCallStore) byID(id domain.CallID) *domain.CallSession {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == id {
			cp := *sess
			return &cp
		}
	}
	return nil
}

func (s *fakeCallStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}
