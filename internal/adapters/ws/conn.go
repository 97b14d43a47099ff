package ws

import (
	"errors"
	"sync"

	"github.com/gorilla/websocket"

	"parley/internal/core"
	"parley/internal/domain"
)

var (
	errBackpressure = errors.New("backpressure")
	errConnClosed   = errors.New("connection closed")
)

const sendBuffer = 32

// conn is one live client connection with its outbound queue. The
// writePump is the only reader of send; TrySend never blocks.
type conn struct {
	id   core.ConnID
	user *domain.User
	ws   *websocket.Conn
	send chan core.Frame

	mu     sync.RWMutex
	closed bool
}

func newConn(id core.ConnID, user *domain.User, ws *websocket.Conn) *conn {
	return &conn{
		id:   id,
		user: user,
		ws:   ws,
		send: make(chan core.Frame, sendBuffer),
	}
}

func (c *conn) TrySend(f core.Frame) error {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.closed {
		return errConnClosed
	}
	select {
	case c.send <- f:
	default:
		return errBackpressure
	}
	return nil
}

func (c *conn) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	close(c.send)
	_ = c.ws.Close()
	c.mu.Unlock()
}
