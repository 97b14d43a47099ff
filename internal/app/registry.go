package app

import (
	"sync"

	"github.com/rs/zerolog/log"

	"parley/internal/core"
	"parley/internal/domain"
)

// Registry is the single source of truth for which users are reachable
// on a live connection. It keeps at most one connection per user: a
// reconnect overwrites the previous mapping (last-connect-wins).
// Nothing is persisted; a restart makes every user appear offline until
// they reconnect.
type Registry struct {
	mu    sync.RWMutex
	conns map[domain.UserID]core.ConnID
}

func NewRegistry() *Registry {
	return &Registry{conns: make(map[domain.UserID]core.ConnID)}
}

// Register binds uid to conn. When a prior connection existed it is
// returned so the caller can tear it down.
func (r *Registry) Register(uid domain.UserID, conn core.ConnID) (core.ConnID, bool) {
	r.mu.Lock()
	prev, had := r.conns[uid]
	r.conns[uid] = conn
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Str("conn", string(conn)).Msg("registered connection")
	if had && prev != conn {
		return prev, true
	}
	return "", false
}

func (r *Registry) Lookup(uid domain.UserID) (core.ConnID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	conn, ok := r.conns[uid]
	return conn, ok
}

// Resolved is one entry of a LookupMany result.
type Resolved struct {
	User domain.UserID
	Conn core.ConnID
	OK   bool
}

// LookupMany resolves each user in input order. Unreachable users are
// passed through with OK=false rather than dropped, so callers can tell
// which recipients are offline.
func (r *Registry) LookupMany(uids []domain.UserID) []Resolved {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Resolved, 0, len(uids))
	for _, uid := range uids {
		conn, ok := r.conns[uid]
		out = append(out, Resolved{User: uid, Conn: conn, OK: ok})
	}
	return out
}

// Unregister removes the mapping for uid if present.
func (r *Registry) Unregister(uid domain.UserID) {
	r.mu.Lock()
	delete(r.conns, uid)
	r.mu.Unlock()
	log.Info().Str("module", "app.registry").Str("user", string(uid)).Msg("unregistered connection")
}

// Release removes the mapping only while it still points at conn. The
// disconnect of a superseded connection must not wipe the mapping its
// replacement just registered.
func (r *Registry) Release(uid domain.UserID, conn core.ConnID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, ok := r.conns[uid]
	if !ok || cur != conn {
		return false
	}
	delete(r.conns, uid)
	return true
}

// Conns snapshots every live connection id, for broadcast-to-all.
func (r *Registry) Conns() []core.ConnID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]core.ConnID, 0, len(r.conns))
	for _, conn := range r.conns {
		out = append(out, conn)
	}
	return out
}
