package storage

import (
	"context"
	"database/sql"
	"fmt"

	"parley/internal/core"
	"parley/internal/domain"
)

const userColumns = `id, name, username, bio, avatar_id, avatar_url, created_at`

func scanUser(row interface{ Scan(...any) error }) (*domain.User, error) {
	var u domain.User
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Bio, &u.Avatar.PublicID, &u.Avatar.URL, &u.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &u, nil
}

// CreateUser inserts a new account. A duplicate username fails with
// ErrConflict.
func (s *Store) CreateUser(ctx context.Context, u *domain.User, passwordHash []byte) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users(id, name, username, bio, avatar_id, avatar_url, password_hash, created_at)
		 VALUES(?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.Name, u.Username, u.Bio, u.Avatar.PublicID, u.Avatar.URL, passwordHash, u.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create user: %w", mapErr(err))
	}
	return nil
}

// FindUser implements core.UserDirectory.
func (s *Store) FindUser(ctx context.Context, id domain.UserID) (*domain.User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// FindByUsername resolves an account and its password hash for login.
func (s *Store) FindByUsername(ctx context.Context, username string) (*domain.User, []byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+`, password_hash FROM users WHERE username = ?`, username)
	var u domain.User
	var hash []byte
	if err := row.Scan(&u.ID, &u.Name, &u.Username, &u.Bio, &u.Avatar.PublicID, &u.Avatar.URL, &u.CreatedAt, &hash); err != nil {
		return nil, nil, mapErr(err)
	}
	return &u, hash, nil
}

// SearchUsers matches names and usernames by substring, excluding the
// searcher.
func (s *Store) SearchUsers(ctx context.Context, q string, exclude domain.UserID) ([]domain.User, error) {
	pattern := "%" + q + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users
		 WHERE id != ? AND (name LIKE ? OR username LIKE ?)
		 ORDER BY username LIMIT 50`, exclude, pattern, pattern)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func collectUsers(rows *sql.Rows) ([]domain.User, error) {
	var out []domain.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// UpdateProfile rewrites the mutable profile fields.
func (s *Store) UpdateProfile(ctx context.Context, id domain.UserID, name, bio string, avatar domain.Avatar) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET name = ?, bio = ?, avatar_id = ?, avatar_url = ? WHERE id = ?`,
		name, bio, avatar.PublicID, avatar.URL, id)
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

// CreateFriendRequest records a pending request. A repeat request for
// the same pair, in either direction, fails with ErrConflict.
func (s *Store) CreateFriendRequest(ctx context.Context, fr *domain.FriendRequest) error {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM friend_requests
		 WHERE status = 'pending' AND ((sender = ? AND receiver = ?) OR (sender = ? AND receiver = ?))`,
		fr.Sender, fr.Receiver, fr.Receiver, fr.Sender).Scan(&n)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("friend request already pending: %w", core.ErrConflict)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO friend_requests(id, sender, receiver, status, created_at) VALUES(?, ?, ?, ?, ?)`,
		fr.ID, fr.Sender, fr.Receiver, fr.Status, fr.CreatedAt.UTC())
	return mapErr(err)
}

func (s *Store) FriendRequestByID(ctx context.Context, id domain.RequestID) (*domain.FriendRequest, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, sender, receiver, status, created_at FROM friend_requests WHERE id = ?`, id)
	var fr domain.FriendRequest
	if err := row.Scan(&fr.ID, &fr.Sender, &fr.Receiver, &fr.Status, &fr.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	return &fr, nil
}

// ResolveFriendRequest settles a pending request exactly once.
func (s *Store) ResolveFriendRequest(ctx context.Context, id domain.RequestID, status domain.RequestStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE friend_requests SET status = ? WHERE id = ? AND status = 'pending'`, status, id)
	if err != nil {
		return mapErr(err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := s.FriendRequestByID(ctx, id); err != nil {
			return err
		}
		return fmt.Errorf("request already resolved: %w", core.ErrConflict)
	}
	return nil
}

// PendingRequestsFor lists requests awaiting uid's decision.
func (s *Store) PendingRequestsFor(ctx context.Context, uid domain.UserID) ([]domain.FriendRequest, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender, receiver, status, created_at FROM friend_requests
		 WHERE receiver = ? AND status = 'pending' ORDER BY created_at DESC`, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.FriendRequest
	for rows.Next() {
		var fr domain.FriendRequest
		if err := rows.Scan(&fr.ID, &fr.Sender, &fr.Receiver, &fr.Status, &fr.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, fr)
	}
	return out, rows.Err()
}

// Friends lists everyone uid has an accepted request with, in either
// direction.
func (s *Store) Friends(ctx context.Context, uid domain.UserID) ([]domain.User, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE id IN (
			SELECT CASE WHEN sender = ? THEN receiver ELSE sender END
			FROM friend_requests
			WHERE status = 'accepted' AND (sender = ? OR receiver = ?)
		) ORDER BY username`, uid, uid, uid)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

var _ core.UserDirectory = (*Store)(nil)
