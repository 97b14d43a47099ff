package storage

import (
	"context"
	"fmt"

	"parley/internal/core"
	"parley/internal/domain"
)

// CreateChat inserts a chat and its member rows in one transaction.
func (s *Store) CreateChat(ctx context.Context, c *domain.Chat) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO chats(id, name, group_chat, creator, created_at) VALUES(?, ?, ?, ?, ?)`,
		c.ID, c.Name, c.GroupChat, c.Creator, c.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("create chat: %w", mapErr(err))
	}
	for _, m := range c.Members {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chat_members(chat_id, user_id) VALUES(?, ?)`, c.ID, m); err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit()
}

func (s *Store) ChatByID(ctx context.Context, id domain.ChatID) (*domain.Chat, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, group_chat, creator, created_at FROM chats WHERE id = ?`, id)
	var c domain.Chat
	if err := row.Scan(&c.ID, &c.Name, &c.GroupChat, &c.Creator, &c.CreatedAt); err != nil {
		return nil, mapErr(err)
	}
	members, err := s.chatMembers(ctx, id)
	if err != nil {
		return nil, err
	}
	c.Members = members
	return &c, nil
}

func (s *Store) chatMembers(ctx context.Context, id domain.ChatID) ([]domain.UserID, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT user_id FROM chat_members WHERE chat_id = ? ORDER BY user_id`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.UserID
	for rows.Next() {
		var uid domain.UserID
		if err := rows.Scan(&uid); err != nil {
			return nil, err
		}
		out = append(out, uid)
	}
	return out, rows.Err()
}

// ChatsFor lists every chat uid belongs to, newest first.
func (s *Store) ChatsFor(ctx context.Context, uid domain.UserID) ([]domain.Chat, error) {
	return s.listChats(ctx,
		`SELECT c.id, c.name, c.group_chat, c.creator, c.created_at
		 FROM chats c JOIN chat_members m ON m.chat_id = c.id
		 WHERE m.user_id = ? ORDER BY c.created_at DESC`, uid)
}

// GroupsCreatedBy lists the group chats uid administers.
func (s *Store) GroupsCreatedBy(ctx context.Context, uid domain.UserID) ([]domain.Chat, error) {
	return s.listChats(ctx,
		`SELECT id, name, group_chat, creator, created_at FROM chats
		 WHERE creator = ? AND group_chat = 1 ORDER BY created_at DESC`, uid)
}

func (s *Store) listChats(ctx context.Context, query string, args ...any) ([]domain.Chat, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Chat
	for rows.Next() {
		var c domain.Chat
		if err := rows.Scan(&c.ID, &c.Name, &c.GroupChat, &c.Creator, &c.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		members, err := s.chatMembers(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].Members = members
	}
	return out, nil
}

func (s *Store) AddMembers(ctx context.Context, chatID domain.ChatID, uids []domain.UserID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	for _, uid := range uids {
		if _, err := tx.ExecContext(ctx,
			`INSERT OR IGNORE INTO chat_members(chat_id, user_id) VALUES(?, ?)`, chatID, uid); err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit()
}

func (s *Store) RemoveMember(ctx context.Context, chatID domain.ChatID, uid domain.UserID) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM chat_members WHERE chat_id = ? AND user_id = ?`, chatID, uid)
	return mapErr(err)
}

func (s *Store) RenameChat(ctx context.Context, chatID domain.ChatID, name string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET name = ? WHERE id = ?`, name, chatID)
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

// SetChatCreator hands group ownership to another member, used when
// the current creator leaves.
func (s *Store) SetChatCreator(ctx context.Context, chatID domain.ChatID, uid domain.UserID) error {
	res, err := s.db.ExecContext(ctx, `UPDATE chats SET creator = ? WHERE id = ?`, uid, chatID)
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

// DeleteChat removes the chat; member and message rows cascade.
func (s *Store) DeleteChat(ctx context.Context, chatID domain.ChatID) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM chats WHERE id = ?`, chatID)
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
