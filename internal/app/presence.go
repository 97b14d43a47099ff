package app

import (
	"sort"
	"sync"

	"parley/internal/domain"
)

// Presence tracks the process-wide online set used for online_users
// broadcasts. It is not scoped per chat; callers scope the recipient
// list instead.
type Presence struct {
	mu     sync.RWMutex
	online map[domain.UserID]struct{}
}

func NewPresence() *Presence {
	return &Presence{online: make(map[domain.UserID]struct{})}
}

func (p *Presence) MarkOnline(uid domain.UserID) {
	p.mu.Lock()
	p.online[uid] = struct{}{}
	p.mu.Unlock()
}

func (p *Presence) MarkOffline(uid domain.UserID) {
	p.mu.Lock()
	delete(p.online, uid)
	p.mu.Unlock()
}

func (p *Presence) Online(uid domain.UserID) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.online[uid]
	return ok
}

// Snapshot returns the current online set, sorted for a stable wire
// representation.
func (p *Presence) Snapshot() []domain.UserID {
	p.mu.RLock()
	out := make([]domain.UserID, 0, len(p.online))
	for uid := range p.online {
		out = append(out, uid)
	}
	p.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
