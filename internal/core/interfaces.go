// Package core defines the contracts between the realtime core and its
// collaborators. Implementations live in adapters and storage.
package core

import (
	"context"
	"time"

	"parley/internal/domain"
)

// Frame is a raw outbound payload, already encoded for the wire.
type Frame []byte

// ConnID addresses one live websocket connection.
type ConnID string

// SignalConnection is one live client endpoint.
// Owned by the adapter; the adapter must Close() it.
type SignalConnection interface {
	TrySend(Frame) error
	Close()
}

// Transport delivers named events to live connections. Emission is
// fire-and-forget: delivery failures are logged, never returned to the
// originating client.
type Transport interface {
	Send(id ConnID, event string, payload any) error
	// CloseConn tears down a connection, e.g. when a newer connection
	// for the same user supersedes it.
	CloseConn(id ConnID)
}

// UserDirectory is the read side of the user store the realtime core
// needs.
type UserDirectory interface {
	FindUser(ctx context.Context, id domain.UserID) (*domain.User, error)
}

// CallRecordStore persists call sessions.
type CallRecordStore interface {
	CreateCall(ctx context.Context, kind domain.CallKind, from, to domain.UserID) (*domain.CallSession, error)
	// FindActiveCall resolves the most recent Ongoing session for the
	// unordered pair {a,b}, regardless of which side initiated.
	FindActiveCall(ctx context.Context, kind domain.CallKind, a, b domain.UserID) (*domain.CallSession, error)
	// SetVerdict records the one-time verdict transition. A nil endedAt
	// leaves the session Ongoing. Fails with ErrConflict if a verdict
	// is already set, ErrNotFound if the session is gone.
	SetVerdict(ctx context.Context, kind domain.CallKind, id domain.CallID, v domain.Verdict, endedAt *time.Time) error
	// EndCall marks an Ongoing session Ended without touching the verdict.
	EndCall(ctx context.Context, kind domain.CallKind, id domain.CallID, endedAt time.Time) error
}

// MessageStore persists chat messages written on the realtime path.
type MessageStore interface {
	SaveMessage(ctx context.Context, m *domain.Message) error
}

// SessionAuthenticator verifies the session token presented during the
// websocket handshake.
type SessionAuthenticator interface {
	VerifySession(token string) (domain.UserID, error)
}
