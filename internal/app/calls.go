package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"parley/internal/core"
	"parley/internal/domain"
)

// callKey identifies the one session that may be ongoing between an
// unordered pair of users for a given call kind.
type callKey struct {
	kind domain.CallKind
	pair domain.PairKey
}

type activeCall struct {
	id        domain.CallID
	initiator domain.UserID
	receiver  domain.UserID
	accepted  bool
	timer     *time.Timer
}

// CallManager drives the lifecycle of audio and video call sessions:
// ring, verdict, end. One instance serves both kinds.
//
// Persisting a transition and notifying the affected party are two
// independently best-effort steps. Neither rolls the other back; both
// log with the call id so a half-applied transition is observable.
type CallManager struct {
	users  core.UserDirectory
	calls  core.CallRecordStore
	router *Router

	// ringTimeout, when non-zero, marks an unanswered ring Missed.
	ringTimeout time.Duration

	mu     sync.Mutex
	locks  map[callKey]*sync.Mutex
	active map[callKey]*activeCall
}

func NewCallManager(users core.UserDirectory, calls core.CallRecordStore, router *Router, ringTimeout time.Duration) *CallManager {
	return &CallManager{
		users:       users,
		calls:       calls,
		router:      router,
		ringTimeout: ringTimeout,
		locks:       make(map[callKey]*sync.Mutex),
		active:      make(map[callKey]*activeCall),
	}
}

// lockPair serializes transitions per (kind, pair) so two racing
// signaling events cannot interleave their read-then-write on the same
// session.
func (m *CallManager) lockPair(key callKey) func() {
	m.mu.Lock()
	l, ok := m.locks[key]
	if !ok {
		l = &sync.Mutex{}
		m.locks[key] = l
	}
	m.mu.Unlock()
	l.Lock()
	return l.Unlock
}

// Start creates an Ongoing session between from and to and rings the
// receiver. It returns as soon as the record is persisted and the
// notification is handed to the transport; it never waits for an
// answer. An empty roomID defaults to the new session id.
//
// A repeated Start by the same initiator while the pair is already
// ringing re-sends the notification without creating a second record;
// a Start against a pair with an ongoing session by the other side
// fails with ErrConflict.
func (m *CallManager) Start(ctx context.Context, kind domain.CallKind, from, to domain.UserID, roomID string) (*domain.CallSession, error) {
	if from == to {
		return nil, fmt.Errorf("%w: cannot call yourself", core.ErrInvalidRequest)
	}
	caller, err := m.users.FindUser(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("caller %s: %w", from, err)
	}
	receiver, err := m.users.FindUser(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("receiver %s: %w", to, err)
	}

	key := callKey{kind: kind, pair: domain.NewPairKey(from, to)}
	defer m.lockPair(key)()

	if cur := m.lookupActive(key); cur != nil {
		if cur.initiator != from {
			return nil, fmt.Errorf("%w: pair already has an ongoing %s call", core.ErrConflict, kind)
		}
		// Same initiator ringing again, e.g. the HTTP start already
		// created the record and the socket start only notifies.
		sess, err := m.calls.FindActiveCall(ctx, kind, from, to)
		if err != nil {
			return nil, err
		}
		m.notifyRing(kind, sess.ID, caller, receiver, roomID)
		return sess, nil
	}

	sess, err := m.calls.CreateCall(ctx, kind, from, to)
	if err != nil {
		return nil, fmt.Errorf("create %s call: %w", kind, err)
	}
	log.Info().Str("module", "app.calls").Str("call", string(sess.ID)).Str("kind", string(kind)).
		Str("from", string(from)).Str("to", string(to)).Msg("call started")

	ac := &activeCall{id: sess.ID, initiator: from, receiver: to}
	if m.ringTimeout > 0 {
		id := sess.ID
		ac.timer = time.AfterFunc(m.ringTimeout, func() { m.expire(key, id) })
	}
	m.mu.Lock()
	m.active[key] = ac
	m.mu.Unlock()

	m.notifyRing(kind, sess.ID, caller, receiver, roomID)
	return sess, nil
}

func (m *CallManager) notifyRing(kind domain.CallKind, id domain.CallID, caller, receiver *domain.User, roomID string) {
	if roomID == "" {
		roomID = string(id)
	}
	m.router.Route(evCallNotification(kind), CallNotification{
		From:     caller,
		RoomID:   roomID,
		StreamID: caller.ID,
		UserID:   receiver.ID,
		Username: receiver.Username,
	}, []domain.UserID{receiver.ID})
}

// NotPicked settles the ring as Missed and tells the initiator.
func (m *CallManager) NotPicked(ctx context.Context, kind domain.CallKind, to, from domain.UserID) error {
	return m.transition(ctx, kind, to, from, domain.VerdictMissed, evCallMissed, true)
}

// Accepted settles the ring as Accepted. The session stays Ongoing.
func (m *CallManager) Accepted(ctx context.Context, kind domain.CallKind, to, from domain.UserID) error {
	return m.transition(ctx, kind, to, from, domain.VerdictAccepted, evCallAccepted, false)
}

// Denied settles the ring as Denied and ends the session.
func (m *CallManager) Denied(ctx context.Context, kind domain.CallKind, to, from domain.UserID) error {
	return m.transition(ctx, kind, to, from, domain.VerdictDenied, evCallDenied, true)
}

// Busy settles the ring as Busy and ends the session.
func (m *CallManager) Busy(ctx context.Context, kind domain.CallKind, to, from domain.UserID) error {
	return m.transition(ctx, kind, to, from, domain.VerdictBusy, evOnAnotherCall, true)
}

// transition resolves the ongoing session for the unordered pair
// {to, from} and applies a one-time verdict. The notification always
// targets the stored initiator of the session, never a party inferred
// from the event-local to/from naming.
func (m *CallManager) transition(ctx context.Context, kind domain.CallKind, to, from domain.UserID, v domain.Verdict, event func(domain.CallKind) string, ends bool) error {
	key := callKey{kind: kind, pair: domain.NewPairKey(to, from)}
	defer m.lockPair(key)()

	sess, err := m.calls.FindActiveCall(ctx, kind, to, from)
	if err != nil {
		log.Warn().Err(err).Str("module", "app.calls").Str("kind", string(kind)).
			Str("verdict", string(v)).Str("from", string(from)).Str("to", string(to)).
			Msg("no ongoing call for pair")
		return err
	}

	var endedAt *time.Time
	if ends {
		now := time.Now().UTC()
		endedAt = &now
	}
	if err := m.calls.SetVerdict(ctx, kind, sess.ID, v, endedAt); err != nil {
		log.Warn().Err(err).Str("module", "app.calls").Str("call", string(sess.ID)).
			Str("verdict", string(v)).Msg("verdict not applied")
		return err
	}
	log.Info().Str("module", "app.calls").Str("call", string(sess.ID)).Str("verdict", string(v)).Msg("call settled")

	m.settle(key, sess.ID, v)

	initiator, err := m.users.FindUser(ctx, sess.Initiator)
	if err != nil {
		// Non-fatal: the verdict is persisted, only the signal is lost.
		log.Warn().Err(err).Str("module", "app.calls").Str("call", string(sess.ID)).
			Str("user", string(sess.Initiator)).Msg("initiator lookup failed, skipping notification")
		return nil
	}
	m.router.Route(event(kind), CallSignal{From: from, To: to}, []domain.UserID{initiator.ID})
	return nil
}

func (m *CallManager) lookupActive(key callKey) *activeCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.active[key]
}

// settle updates the in-memory index after a verdict landed: an accept
// keeps the session live, everything else retires it.
func (m *CallManager) settle(key callKey, id domain.CallID, v domain.Verdict) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ac, ok := m.active[key]
	if !ok || ac.id != id {
		return
	}
	if ac.timer != nil {
		ac.timer.Stop()
		ac.timer = nil
	}
	if v == domain.VerdictAccepted {
		ac.accepted = true
		return
	}
	delete(m.active, key)
}

// expire fires when a ring outlives the configured timeout.
func (m *CallManager) expire(key callKey, id domain.CallID) {
	defer m.lockPair(key)()

	m.mu.Lock()
	ac, ok := m.active[key]
	if !ok || ac.id != id || ac.accepted {
		m.mu.Unlock()
		return
	}
	delete(m.active, key)
	m.mu.Unlock()

	ctx := context.Background()
	now := time.Now().UTC()
	if err := m.calls.SetVerdict(ctx, key.kind, id, domain.VerdictMissed, &now); err != nil {
		log.Warn().Err(err).Str("module", "app.calls").Str("call", string(id)).Msg("ring timeout verdict not applied")
		return
	}
	log.Info().Str("module", "app.calls").Str("call", string(id)).Msg("ring timed out")
	m.router.Route(evCallMissed(key.kind), CallSignal{From: ac.initiator, To: ac.receiver}, []domain.UserID{ac.initiator})
}

// HandleDisconnect ends every ongoing call involving uid: an unanswered
// ring becomes Missed and the peer is told, an accepted call is ended
// with its verdict kept.
func (m *CallManager) HandleDisconnect(ctx context.Context, uid domain.UserID) {
	type involved struct {
		key callKey
		id  domain.CallID
	}
	m.mu.Lock()
	var found []involved
	for key, ac := range m.active {
		if ac.initiator == uid || ac.receiver == uid {
			found = append(found, involved{key: key, id: ac.id})
		}
	}
	m.mu.Unlock()

	now := time.Now().UTC()
	for _, f := range found {
		unlock := m.lockPair(f.key)

		m.mu.Lock()
		ac, ok := m.active[f.key]
		if !ok || ac.id != f.id {
			m.mu.Unlock()
			unlock()
			continue
		}
		if ac.timer != nil {
			ac.timer.Stop()
		}
		delete(m.active, f.key)
		accepted := ac.accepted
		m.mu.Unlock()

		if accepted {
			if err := m.calls.EndCall(ctx, f.key.kind, f.id, now); err != nil {
				log.Warn().Err(err).Str("module", "app.calls").Str("call", string(f.id)).Msg("end on disconnect failed")
			} else {
				log.Info().Str("module", "app.calls").Str("call", string(f.id)).Str("user", string(uid)).Msg("call ended on disconnect")
			}
			unlock()
			continue
		}

		endedAt := now
		if err := m.calls.SetVerdict(ctx, f.key.kind, f.id, domain.VerdictMissed, &endedAt); err != nil {
			log.Warn().Err(err).Str("module", "app.calls").Str("call", string(f.id)).Msg("missed on disconnect failed")
			unlock()
			continue
		}
		log.Info().Str("module", "app.calls").Str("call", string(f.id)).Str("user", string(uid)).Msg("ring dropped on disconnect")
		peer := ac.initiator
		if uid == ac.initiator {
			peer = ac.receiver
		}
		m.router.Route(evCallMissed(f.key.kind), CallSignal{From: ac.initiator, To: ac.receiver}, []domain.UserID{peer})
		unlock()
	}
}
