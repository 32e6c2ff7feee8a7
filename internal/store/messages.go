package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kutter-server/internal/model"
)

const messageColumns = `id, chat_id, email, username, message, replied_user, replied_message, time, edited`

// InsertMessage persists one message. repliedUser and repliedMessage are
// the denormalized author/text of the replied-to message, or nil.
func (s *Store) InsertMessage(ctx context.Context, chatID int64, email, username, text string, repliedUser, repliedMessage *string, nowMillis int64) (model.Message, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO messages (chat_id, email, username, message, replied_user, replied_message, time)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		chatID, email, username, text, repliedUser, repliedMessage, nowMillis)
	if err != nil {
		return model.Message{}, fmt.Errorf("insert message: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Message{}, fmt.Errorf("message id: %w", err)
	}
	return model.Message{
		ID:             id,
		ChatID:         chatID,
		Email:          email,
		Username:       username,
		Message:        text,
		RepliedUser:    repliedUser,
		RepliedMessage: repliedMessage,
		Time:           nowMillis,
	}, nil
}

func scanMessage(row *sql.Row) (model.Message, error) {
	var m model.Message
	err := row.Scan(&m.ID, &m.ChatID, &m.Email, &m.Username, &m.Message,
		&m.RepliedUser, &m.RepliedMessage, &m.Time, &m.Edited)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Message{}, ErrNotFound
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("scan message: %w", err)
	}
	return m, nil
}

func (s *Store) MessageByID(ctx context.Context, id int64) (model.Message, error) {
	return scanMessage(s.db.QueryRowContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE id = ?`, id))
}

// UpdateMessageText replaces the text and marks the row edited.
func (s *Store) UpdateMessageText(ctx context.Context, id int64, text string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE messages SET message = ?, edited = 1 WHERE id = ?`, text, id)
	if err != nil {
		return fmt.Errorf("update message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteMessage(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete message: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) MessagesForChat(ctx context.Context, chatID int64) ([]model.Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+messageColumns+` FROM messages WHERE chat_id = ? ORDER BY time ASC`, chatID)
	if err != nil {
		return nil, fmt.Errorf("messages for chat: %w", err)
	}
	defer rows.Close()

	msgs := make([]model.Message, 0)
	for rows.Next() {
		var m model.Message
		if err := rows.Scan(&m.ID, &m.ChatID, &m.Email, &m.Username, &m.Message,
			&m.RepliedUser, &m.RepliedMessage, &m.Time, &m.Edited); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}
