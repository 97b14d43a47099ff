package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"parley/internal/app"
	"parley/internal/core"
	"parley/internal/domain"
)

type stubAuth struct{}

// VerifySession treats the token itself as the user id; "bad" and the
// empty string are rejected.
func (stubAuth) VerifySession(token string) (domain.UserID, error) {
	if token == "" || token == "bad" {
		return "", core.ErrUnauthorized
	}
	return domain.UserID(token), nil
}

type stubUsers struct {
	users map[domain.UserID]*domain.User
}

func (s *stubUsers) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, core.ErrNotFound
	}
	return u, nil
}

type stubMessages struct {
	mu    sync.Mutex
	saved []*domain.Message
}

func (s *stubMessages) SaveMessage(ctx context.Context, m *domain.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.saved = append(s.saved, m)
	return nil
}

func (s *stubMessages) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.saved)
}

type stubCallStore struct {
	mu       sync.Mutex
	n        int
	sessions []*domain.CallSession
}

func (s *stubCallStore) CreateCall(ctx context.Context, kind domain.CallKind, from, to domain.UserID) (*domain.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.n++
	sess := &domain.CallSession{
		ID:        domain.CallID(fmt.Sprintf("call-%d", s.n)),
		Kind:      kind,
		Initiator: from,
		Receiver:  to,
		Status:    domain.CallOngoing,
		StartedAt: time.Now().UTC(),
	}
	s.sessions = append(s.sessions, sess)
	return sess, nil
}

func (s *stubCallStore) FindActiveCall(ctx context.Context, kind domain.CallKind, a, b domain.UserID) (*domain.CallSession, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := domain.NewPairKey(a, b)
	for i := len(s.sessions) - 1; i >= 0; i-- {
		sess := s.sessions[i]
		if sess.Kind == kind && sess.Pair() == key && sess.Status == domain.CallOngoing {
			return sess, nil
		}
	}
	return nil, core.ErrNotFound
}

func (s *stubCallStore) SetVerdict(ctx context.Context, kind domain.CallKind, id domain.CallID, v domain.Verdict, endedAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == id && sess.Kind == kind {
			if sess.Verdict.Terminal() {
				return core.ErrConflict
			}
			sess.Verdict = v
			if endedAt != nil {
				sess.Status = domain.CallEnded
				sess.EndedAt = endedAt
			}
			return nil
		}
	}
	return core.ErrNotFound
}

func (s *stubCallStore) EndCall(ctx context.Context, kind domain.CallKind, id domain.CallID, endedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, sess := range s.sessions {
		if sess.ID == id && sess.Kind == kind && sess.Status == domain.CallOngoing {
			sess.Status = domain.CallEnded
			sess.EndedAt = &endedAt
			return nil
		}
	}
	return core.ErrNotFound
}

type wsHarness struct {
	srv      *httptest.Server
	gateway  *Gateway
	messages *stubMessages
}

func newWSHarness(t *testing.T) *wsHarness {
	t.Helper()
	gin.SetMode(gin.TestMode)

	users := &stubUsers{users: map[domain.UserID]*domain.User{
		"alice": {ID: "alice", Name: "Alice", Username: "alice"},
		"bob":   {ID: "bob", Name: "Bob", Username: "bob"},
	}}
	messages := &stubMessages{}

	gw := NewGateway(Config{
		CookieName: "parley-token",
		ReadLimit:  32768,
		PingPeriod: 54 * time.Second,
	}, stubAuth{}, users, messages, &stubCallStore{}, app.NewRegistry(), app.NewPresence())

	r := gin.New()
	ctx := context.Background()
	r.GET("/ws", func(c *gin.Context) { gw.HandleWS(ctx, c) })

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &wsHarness{srv: srv, gateway: gw, messages: messages}
}

func (h *wsHarness) dial(t *testing.T, token string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=" + token
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial as %s: %v", token, err)
	}
	t.Cleanup(func() { _ = ws.Close() })
	return ws
}

// readEvent pulls frames until one carries the wanted event name.
func readEvent(t *testing.T, ws *websocket.Conn, event string) json.RawMessage {
	t.Helper()
	_ = ws.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := ws.ReadMessage()
		if err != nil {
			t.Fatalf("waiting for %s: %v", event, err)
		}
		var env struct {
			Event   string          `json:"event"`
			Payload json.RawMessage `json:"payload"`
		}
		if err := json.Unmarshal(data, &env); err != nil {
			t.Fatalf("bad frame %s: %v", data, err)
		}
		if env.Event == event {
			return env.Payload
		}
	}
}

func send(t *testing.T, ws *websocket.Conn, event string, payload any) {
	t.Helper()
	frame, err := json.Marshal(map[string]any{"event": event, "payload": payload})
	if err != nil {
		t.Fatal(err)
	}
	if err := ws.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("send %s: %v", event, err)
	}
}

func TestHandshakeRejectsBadToken(t *testing.T) {
	h := newWSHarness(t)
	url := "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=bad"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("dial succeeded with bad token")
	}
	if resp == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("resp = %+v", resp)
	}

	// Unknown user with a valid token is also rejected.
	url = "ws" + strings.TrimPrefix(h.srv.URL, "http") + "/ws?token=stranger"
	_, resp, err = websocket.DefaultDialer.Dial(url, nil)
	if err == nil || resp.StatusCode != http.StatusUnauthorized {
		t.Fatalf("stranger: err = %v, resp = %+v", err, resp)
	}
}

func TestMessageRoutedAndPersisted(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, app.EvNewMessage, map[string]any{
		"chatId":  "c1",
		"members": []string{"bob"},
		"message": "hello bob",
	})

	payload := readEvent(t, bob, app.EvNewMessage)
	var p struct {
		ChatID  string `json:"chatId"`
		Message struct {
			Content string `json:"content"`
			Sender  struct {
				ID string `json:"id"`
			} `json:"sender"`
		} `json:"message"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.ChatID != "c1" || p.Message.Content != "hello bob" || p.Message.Sender.ID != "alice" {
		t.Fatalf("payload = %s", payload)
	}

	readEvent(t, bob, app.EvNewMessageAlert)

	deadline := time.Now().Add(2 * time.Second)
	for h.messages.count() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("message never persisted")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestTypingSkipsSender(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, app.EvStartTyping, map[string]any{
		"chatId":  "c1",
		"members": []string{"alice", "bob"},
	})

	readEvent(t, bob, app.EvStartTyping)

	// The sender must not get their own typing echo.
	_ = alice.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := alice.ReadMessage(); err == nil {
		t.Fatalf("sender received %s", data)
	}
}

func TestCallRingsReceiver(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, app.EvStartCall(domain.CallVideo), map[string]any{
		"to":     "bob",
		"roomId": "room-7",
	})

	payload := readEvent(t, bob, "video_call_notification")
	var p struct {
		RoomID   string `json:"roomId"`
		StreamID string `json:"streamId"`
		UserID   string `json:"userId"`
		From     struct {
			ID string `json:"id"`
		} `json:"from"`
	}
	if err := json.Unmarshal(payload, &p); err != nil {
		t.Fatal(err)
	}
	if p.RoomID != "room-7" || p.StreamID != "alice" || p.UserID != "bob" || p.From.ID != "alice" {
		t.Fatalf("payload = %s", payload)
	}

	// Bob denies; Alice is told.
	send(t, bob, app.EvCallDeniedIn(domain.CallVideo), map[string]any{
		"to": "bob", "from": "alice",
	})
	readEvent(t, alice, "video_call_denied")
}

func TestDisconnectBroadcastsPresence(t *testing.T) {
	h := newWSHarness(t)
	alice := h.dial(t, "alice")
	bob := h.dial(t, "bob")

	send(t, alice, app.EvChatJoined, map[string]any{
		"userId":  "alice",
		"members": []string{"alice", "bob"},
	})
	readEvent(t, bob, app.EvOnlineUsers)

	_ = alice.Close()

	payload := readEvent(t, bob, app.EvOnlineUsers)
	var online []string
	if err := json.Unmarshal(payload, &online); err != nil {
		t.Fatal(err)
	}
	for _, id := range online {
		if id == "alice" {
			t.Fatalf("alice still online after disconnect: %v", online)
		}
	}
}

func TestReconnectSupersedesOldConnection(t *testing.T) {
	h := newWSHarness(t)
	first := h.dial(t, "alice")
	_ = h.dial(t, "alice")

	// The first socket is actively closed by the gateway.
	_ = first.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		if _, _, err := first.ReadMessage(); err != nil {
			break
		}
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(h.gateway.online()) != 1 {
		if time.Now().After(deadline) {
			t.Fatalf("conns = %d, want 1", len(h.gateway.online()))
		}
		time.Sleep(10 * time.Millisecond)
	}
}
