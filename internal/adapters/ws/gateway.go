// Package ws is the websocket side of the backend: it authenticates
// new connections, registers them in the connection registry,
// dispatches inbound events, and cleans up on disconnect.
package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"parley/internal/app"
	"parley/internal/core"
)

type Config struct {
	CookieName  string
	ReadLimit   int64
	PingPeriod  time.Duration
	RingTimeout time.Duration
	// RateLimit caps inbound events per user per RateWindow; zero
	// disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Gateway owns every live connection. It implements core.Transport so
// the event router can address connections by id without knowing about
// websockets.
type Gateway struct {
	cfg      Config
	auth     core.SessionAuthenticator
	users    core.UserDirectory
	messages core.MessageStore

	registry *app.Registry
	presence *app.Presence
	router   *app.Router
	calls    *app.CallManager
	limiter  *EventRateLimiter

	mu    sync.RWMutex
	conns map[core.ConnID]*conn
}

func NewGateway(cfg Config, auth core.SessionAuthenticator, users core.UserDirectory, messages core.MessageStore, callStore core.CallRecordStore, registry *app.Registry, presence *app.Presence) *Gateway {
	g := &Gateway{
		cfg:      cfg,
		auth:     auth,
		users:    users,
		messages: messages,
		registry: registry,
		presence: presence,
		conns:    make(map[core.ConnID]*conn),
	}
	g.router = app.NewRouter(registry, g)
	g.calls = app.NewCallManager(users, callStore, g.router, cfg.RingTimeout)
	if cfg.RateLimit > 0 {
		g.limiter = NewEventRateLimiter(cfg.RateLimit, cfg.RateWindow)
	}
	return g
}

// Router exposes the event router for collaborators that emit realtime
// side effects, e.g. the HTTP chat handlers.
func (g *Gateway) Router() *app.Router { return g.router }

// Calls exposes the call session manager.
func (g *Gateway) Calls() *app.CallManager { return g.calls }

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

type envelope struct {
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// Send implements core.Transport.
func (g *Gateway) Send(id core.ConnID, event string, payload any) error {
	g.mu.RLock()
	c, ok := g.conns[id]
	g.mu.RUnlock()
	if !ok {
		return fmt.Errorf("connection %s is gone", id)
	}
	frame, err := json.Marshal(struct {
		Event   string `json:"event"`
		Payload any    `json:"payload,omitempty"`
	}{Event: event, Payload: payload})
	if err != nil {
		return fmt.Errorf("encode %s: %w", event, err)
	}
	return c.TrySend(frame)
}

// CloseConn implements core.Transport.
func (g *Gateway) CloseConn(id core.ConnID) {
	g.mu.Lock()
	c := g.conns[id]
	delete(g.conns, id)
	g.mu.Unlock()
	if c != nil {
		c.Close()
		log.Info().Str("module", "ws").Str("conn", string(id)).Msg("connection closed")
	}
}

// sessionToken digs the handshake credential out of the request:
// cookie first, then query parameter for clients that cannot set
// cookies on a websocket dial.
func (g *Gateway) sessionToken(c *gin.Context) string {
	if tok, err := c.Cookie(g.cfg.CookieName); err == nil && tok != "" {
		return tok
	}
	return c.Query("token")
}

// HandleWS authenticates and upgrades one websocket connection. The
// token is verified before any event handler is attached; a bad token
// never touches the registry.
func (g *Gateway) HandleWS(ctx context.Context, c *gin.Context) {
	uid, err := g.auth.VerifySession(g.sessionToken(c))
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Msg("handshake rejected")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "invalid session token"})
		return
	}
	user, err := g.users.FindUser(ctx, uid)
	if err != nil {
		log.Warn().Err(err).Str("module", "ws").Str("user", string(uid)).Msg("unknown user on handshake")
		c.JSON(http.StatusUnauthorized, gin.H{"success": false, "message": "unknown user"})
		return
	}

	sock, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("upgrade failed")
		return
	}

	id := core.ConnID(uuid.NewString())
	cn := newConn(id, user, sock)

	g.mu.Lock()
	g.conns[id] = cn
	g.mu.Unlock()

	if prev, had := g.registry.Register(uid, id); had {
		// Last-connect-wins: actively terminate the superseded
		// connection instead of leaving it dangling.
		log.Info().Str("module", "ws").Str("user", string(uid)).Str("stale", string(prev)).Msg("superseding stale connection")
		g.CloseConn(prev)
	}
	log.Info().Str("module", "ws").Str("user", string(uid)).Str("conn", string(id)).Msg("connection established")

	go g.writePump(ctx, cn)
	go g.readPump(ctx, cn)
}

func (g *Gateway) writePump(ctx context.Context, c *conn) {
	ping := time.NewTicker(g.cfg.PingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ping.C:
			if err := c.ws.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				return
			}
		case frame, ok := <-c.send:
			if !ok {
				return
			}
			if err := c.ws.SetWriteDeadline(time.Now().Add(5 * time.Second)); err != nil {
				log.Error().Err(err).Str("module", "ws").Msg("writePump set deadline")
				return
			}
			if err := c.ws.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Error().Err(err).Str("module", "ws").Str("conn", string(c.id)).Msg("writePump write error")
				return
			}
		}
	}
}

func (g *Gateway) readPump(ctx context.Context, c *conn) {
	defer g.disconnect(ctx, c)

	pongWait := g.cfg.PingPeriod * 10 / 9
	c.ws.SetReadLimit(g.cfg.ReadLimit)
	_ = c.ws.SetReadDeadline(time.Now().Add(pongWait))
	c.ws.SetPongHandler(func(string) error {
		return c.ws.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		select {
		case <-ctx.Done():
			return
		default:
			_, data, err := c.ws.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
					log.Warn().Err(err).Str("module", "ws").Str("conn", string(c.id)).Msg("readPump read error")
				}
				return
			}
			if g.limiter != nil && !g.limiter.Allow(c.user.ID) {
				log.Warn().Str("module", "ws").Str("user", string(c.user.ID)).Msg("event rate limit exceeded, dropping")
				continue
			}
			g.dispatch(ctx, c, data)
		}
	}
}

// disconnect tears one connection down. When the connection was
// superseded by a reconnect the registry release is refused and the
// presence/call cleanup is skipped: the user is still online elsewhere.
func (g *Gateway) disconnect(ctx context.Context, c *conn) {
	c.Close()
	g.mu.Lock()
	delete(g.conns, c.id)
	g.mu.Unlock()

	uid := c.user.ID
	if !g.registry.Release(uid, c.id) {
		log.Info().Str("module", "ws").Str("conn", string(c.id)).Msg("superseded connection closed")
		return
	}
	log.Info().Str("module", "ws").Str("user", string(uid)).Str("conn", string(c.id)).Msg("disconnected")

	g.presence.MarkOffline(uid)
	if g.limiter != nil {
		g.limiter.Forget(uid)
	}
	g.calls.HandleDisconnect(ctx, uid)
	g.router.Broadcast(app.EvOnlineUsers, g.presence.Snapshot())
}

// online returns the conn ids currently held by the gateway, for tests.
func (g *Gateway) online() []core.ConnID {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]core.ConnID, 0, len(g.conns))
	for id := range g.conns {
		out = append(out, id)
	}
	return out
}

var _ core.Transport = (*Gateway)(nil)
