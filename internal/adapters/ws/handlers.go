package ws

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"parley/internal/app"
	"parley/internal/domain"
)

type messageIn struct {
	ChatID  string          `json:"chatId"`
	Members []domain.UserID `json:"members"`
	Message string          `json:"message"`
}

type typingIn struct {
	ChatID  string          `json:"chatId"`
	Members []domain.UserID `json:"members"`
}

type presenceIn struct {
	UserID  domain.UserID   `json:"userId"`
	Members []domain.UserID `json:"members"`
}

type callStartIn struct {
	From   domain.UserID `json:"from"`
	To     domain.UserID `json:"to"`
	RoomID string        `json:"roomId"`
}

type callSignalIn struct {
	To   domain.UserID `json:"to"`
	From domain.UserID `json:"from"`
}

// wireMessage is the realtime shape of a chat message; it carries the
// sender's display data so clients render without another lookup.
type wireMessage struct {
	ID      string `json:"id"`
	Content string `json:"content"`
	Sender  struct {
		ID   domain.UserID `json:"id"`
		Name string        `json:"name"`
	} `json:"sender"`
	ChatID    string    `json:"chatId"`
	CreatedAt time.Time `json:"createdAt"`
}

func (g *Gateway) dispatch(ctx context.Context, c *conn, data []byte) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("conn", string(c.id)).Msg("bad event envelope")
		return
	}

	switch env.Event {
	case app.EvNewMessage:
		g.handleNewMessage(ctx, c, env.Payload)
	case app.EvStartTyping, app.EvStopTyping:
		g.handleTyping(c, env.Event, env.Payload)
	case app.EvChatJoined:
		g.handlePresence(c, env.Payload, true)
	case app.EvChatLeft:
		g.handlePresence(c, env.Payload, false)
	case app.EvStartCall(domain.CallAudio):
		g.handleStartCall(ctx, c, domain.CallAudio, env.Payload)
	case app.EvStartCall(domain.CallVideo):
		g.handleStartCall(ctx, c, domain.CallVideo, env.Payload)
	case app.EvCallNotPicked(domain.CallAudio):
		g.handleCallSignal(ctx, c, domain.CallAudio, env.Payload, g.calls.NotPicked)
	case app.EvCallNotPicked(domain.CallVideo):
		g.handleCallSignal(ctx, c, domain.CallVideo, env.Payload, g.calls.NotPicked)
	case app.EvCallAcceptedIn(domain.CallAudio):
		g.handleCallSignal(ctx, c, domain.CallAudio, env.Payload, g.calls.Accepted)
	case app.EvCallAcceptedIn(domain.CallVideo):
		g.handleCallSignal(ctx, c, domain.CallVideo, env.Payload, g.calls.Accepted)
	case app.EvCallDeniedIn(domain.CallAudio):
		g.handleCallSignal(ctx, c, domain.CallAudio, env.Payload, g.calls.Denied)
	case app.EvCallDeniedIn(domain.CallVideo):
		g.handleCallSignal(ctx, c, domain.CallVideo, env.Payload, g.calls.Denied)
	case app.EvUserIsBusy(domain.CallAudio):
		g.handleCallSignal(ctx, c, domain.CallAudio, env.Payload, g.calls.Busy)
	case app.EvUserIsBusy(domain.CallVideo):
		g.handleCallSignal(ctx, c, domain.CallVideo, env.Payload, g.calls.Busy)
	default:
		log.Warn().Str("module", "ws").Str("event", env.Event).Msg("unknown event")
	}
}

// handleNewMessage fans the message out to every member first and
// persists afterwards; both steps are best-effort and independent.
func (g *Gateway) handleNewMessage(ctx context.Context, c *conn, payload json.RawMessage) {
	var p messageIn
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad message payload")
		return
	}

	wm := wireMessage{
		ID:        uuid.NewString(),
		Content:   p.Message,
		ChatID:    p.ChatID,
		CreatedAt: time.Now().UTC(),
	}
	wm.Sender.ID = c.user.ID
	wm.Sender.Name = c.user.Name

	g.router.Route(app.EvNewMessage, struct {
		ChatID  string      `json:"chatId"`
		Message wireMessage `json:"message"`
	}{ChatID: p.ChatID, Message: wm}, p.Members)
	g.router.Route(app.EvNewMessageAlert, struct {
		ChatID string `json:"chatId"`
	}{ChatID: p.ChatID}, p.Members)

	msg := &domain.Message{
		ID:        domain.MessageID(wm.ID),
		ChatID:    domain.ChatID(p.ChatID),
		Sender:    c.user.ID,
		Content:   p.Message,
		CreatedAt: wm.CreatedAt,
	}
	if err := g.messages.SaveMessage(ctx, msg); err != nil {
		log.Error().Err(err).Str("module", "ws").Str("chat", p.ChatID).Msg("message not persisted")
	}
}

func (g *Gateway) handleTyping(c *conn, event string, payload json.RawMessage) {
	var p typingIn
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad typing payload")
		return
	}
	g.router.RouteExcept(event, struct {
		ChatID string `json:"chatId"`
	}{ChatID: p.ChatID}, p.Members, c.user.ID)
}

func (g *Gateway) handlePresence(c *conn, payload json.RawMessage, online bool) {
	var p presenceIn
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad presence payload")
		return
	}
	uid := p.UserID
	if uid == "" {
		uid = c.user.ID
	}
	if online {
		g.presence.MarkOnline(uid)
	} else {
		g.presence.MarkOffline(uid)
	}
	g.router.Route(app.EvOnlineUsers, g.presence.Snapshot(), p.Members)
}

func (g *Gateway) handleStartCall(ctx context.Context, c *conn, kind domain.CallKind, payload json.RawMessage) {
	var p callStartIn
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad call start payload")
		return
	}
	from := p.From
	if from == "" {
		from = c.user.ID
	}
	if _, err := g.calls.Start(ctx, kind, from, p.To, p.RoomID); err != nil {
		// Signaling failures stay server-side; the client gets nothing back.
		log.Warn().Err(err).Str("module", "ws").Str("kind", string(kind)).Msg("call start failed")
	}
}

func (g *Gateway) handleCallSignal(ctx context.Context, c *conn, kind domain.CallKind, payload json.RawMessage, fn func(context.Context, domain.CallKind, domain.UserID, domain.UserID) error) {
	var p callSignalIn
	if err := json.Unmarshal(payload, &p); err != nil {
		log.Error().Err(err).Str("module", "ws").Msg("bad call signal payload")
		return
	}
	if err := fn(ctx, kind, p.To, p.From); err != nil {
		log.Debug().Err(err).Str("module", "ws").Str("kind", string(kind)).Msg("call signal dropped")
	}
}
