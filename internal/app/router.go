package app

import (
	"github.com/rs/zerolog/log"

	"parley/internal/core"
	"parley/internal/domain"
)

// Router fans out named events to the live connections of a recipient
// set. It never persists anything; routing to a fully-offline set is a
// no-op.
type Router struct {
	registry  *Registry
	transport core.Transport
}

func NewRouter(reg *Registry, t core.Transport) *Router {
	return &Router{registry: reg, transport: t}
}

// Route emits event with payload exactly once to every reachable
// recipient. Offline recipients are skipped.
func (r *Router) Route(event string, payload any, recipients []domain.UserID) {
	r.route(event, payload, recipients, "")
}

// RouteExcept behaves like Route but skips one user, typically the
// origin of the event.
func (r *Router) RouteExcept(event string, payload any, recipients []domain.UserID, except domain.UserID) {
	r.route(event, payload, recipients, except)
}

func (r *Router) route(event string, payload any, recipients []domain.UserID, except domain.UserID) {
	sent := 0
	for _, res := range r.registry.LookupMany(recipients) {
		if !res.OK || (except != "" && res.User == except) {
			continue
		}
		if err := r.transport.Send(res.Conn, event, payload); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("event", event).Str("user", string(res.User)).Msg("send failed")
			continue
		}
		sent++
	}
	log.Debug().Str("module", "app.router").Str("event", event).Int("targets", len(recipients)).Int("sent", sent).Msg("routed event")
}

// Broadcast emits to every registered connection.
func (r *Router) Broadcast(event string, payload any) {
	for _, conn := range r.registry.Conns() {
		if err := r.transport.Send(conn, event, payload); err != nil {
			log.Warn().Err(err).Str("module", "app.router").Str("event", event).Str("conn", string(conn)).Msg("broadcast send failed")
		}
	}
}
