package storage

import (
	"context"
	"fmt"

	"parley/internal/core"
	"parley/internal/domain"
)

// SaveMessage implements core.MessageStore. Attachments ride in the
// same transaction as the message row.
func (s *Store) SaveMessage(ctx context.Context, m *domain.Message) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO messages(id, chat_id, sender, content, created_at) VALUES(?, ?, ?, ?, ?)`,
		m.ID, m.ChatID, m.Sender, m.Content, m.CreatedAt.UTC()); err != nil {
		return fmt.Errorf("save message: %w", mapErr(err))
	}
	for _, a := range m.Attachments {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO attachments(message_id, public_id, url) VALUES(?, ?, ?)`,
			m.ID, a.PublicID, a.URL); err != nil {
			return mapErr(err)
		}
	}
	return tx.Commit()
}

// MessagesPage returns one page of a chat's history, newest first,
// along with the total message count for pagination.
func (s *Store) MessagesPage(ctx context.Context, chatID domain.ChatID, page, limit int) ([]domain.Message, int, error) {
	if page < 1 {
		page = 1
	}
	if limit < 1 {
		limit = 20
	}
	var total int
	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE chat_id = ?`, chatID).Scan(&total); err != nil {
		return nil, 0, err
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, chat_id, sender, content, created_at FROM messages
		 WHERE chat_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`,
		chatID, limit, (page-1)*limit)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []domain.Message
	for rows.Next() {
		var m domain.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Content, &m.CreatedAt); err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}

	for i := range out {
		atts, err := s.messageAttachments(ctx, out[i].ID)
		if err != nil {
			return nil, 0, err
		}
		out[i].Attachments = atts
	}
	return out, total, nil
}

func (s *Store) messageAttachments(ctx context.Context, id domain.MessageID) ([]domain.Attachment, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT public_id, url FROM attachments WHERE message_id = ?`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		if err := rows.Scan(&a.PublicID, &a.URL); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

var _ core.MessageStore = (*Store)(nil)
