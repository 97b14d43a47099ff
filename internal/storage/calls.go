package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"parley/internal/core"
	"parley/internal/domain"
)

// CreateCall implements core.CallRecordStore. The normalized pair key
// is stored alongside the explicit initiator/receiver so the unordered
// lookup never has to guess who called whom.
func (s *Store) CreateCall(ctx context.Context, kind domain.CallKind, from, to domain.UserID) (*domain.CallSession, error) {
	sess := &domain.CallSession{
		ID:        domain.CallID(uuid.NewString()),
		Kind:      kind,
		Initiator: from,
		Receiver:  to,
		Status:    domain.CallOngoing,
		StartedAt: time.Now().UTC(),
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO call_sessions(id, kind, pair_key, initiator, receiver, verdict, status, started_at)
		 VALUES(?, ?, ?, ?, ?, '', ?, ?)`,
		sess.ID, sess.Kind, sess.Pair(), sess.Initiator, sess.Receiver, sess.Status, sess.StartedAt)
	if err != nil {
		return nil, fmt.Errorf("create call: %w", mapErr(err))
	}
	return sess, nil
}

// FindActiveCall resolves the most recent Ongoing session for the
// unordered pair {a,b}.
func (s *Store) FindActiveCall(ctx context.Context, kind domain.CallKind, a, b domain.UserID) (*domain.CallSession, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, kind, initiator, receiver, verdict, status, started_at, ended_at
		 FROM call_sessions
		 WHERE pair_key = ? AND kind = ? AND status = ?
		 ORDER BY started_at DESC, id DESC LIMIT 1`,
		domain.NewPairKey(a, b), kind, domain.CallOngoing)
	return scanCall(row)
}

func scanCall(row interface{ Scan(...any) error }) (*domain.CallSession, error) {
	var sess domain.CallSession
	var ended sql.NullTime
	if err := row.Scan(&sess.ID, &sess.Kind, &sess.Initiator, &sess.Receiver, &sess.Verdict, &sess.Status, &sess.StartedAt, &ended); err != nil {
		return nil, mapErr(err)
	}
	if ended.Valid {
		t := ended.Time
		sess.EndedAt = &t
	}
	return &sess, nil
}

// SetVerdict applies the one-time verdict transition with a guarded
// update: only a session whose verdict is still unset matches.
func (s *Store) SetVerdict(ctx context.Context, kind domain.CallKind, id domain.CallID, v domain.Verdict, endedAt *time.Time) error {
	status := domain.CallOngoing
	var ended sql.NullTime
	if endedAt != nil {
		status = domain.CallEnded
		ended = sql.NullTime{Time: endedAt.UTC(), Valid: true}
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET verdict = ?, status = ?, ended_at = ?
		 WHERE id = ? AND kind = ? AND verdict = ''`,
		v, status, ended, id, kind)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		// Distinguish a settled session from a missing one.
		var existing int
		if err := s.db.QueryRowContext(ctx,
			`SELECT COUNT(*) FROM call_sessions WHERE id = ? AND kind = ?`, id, kind).Scan(&existing); err != nil {
			return err
		}
		if existing == 0 {
			return core.ErrNotFound
		}
		return fmt.Errorf("verdict already set: %w", core.ErrConflict)
	}
	return nil
}

// EndCall implements core.CallRecordStore.
func (s *Store) EndCall(ctx context.Context, kind domain.CallKind, id domain.CallID, endedAt time.Time) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE call_sessions SET status = ?, ended_at = ? WHERE id = ? AND kind = ? AND status = ?`,
		domain.CallEnded, endedAt.UTC(), id, kind, domain.CallOngoing)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return core.ErrNotFound
	}
	return nil
}

// CallLogsFor lists every call uid took part in, newest first.
func (s *Store) CallLogsFor(ctx context.Context, uid domain.UserID) ([]domain.CallSession, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, kind, initiator, receiver, verdict, status, started_at, ended_at
		 FROM call_sessions WHERE initiator = ? OR receiver = ?
		 ORDER BY started_at DESC`, uid, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.CallSession
	for rows.Next() {
		sess, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sess)
	}
	return out, rows.Err()
}

var _ core.CallRecordStore = (*Store)(nil)
