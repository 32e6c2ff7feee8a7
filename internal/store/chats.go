package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kutter-server/internal/model"
)

// ChatIDForPair looks up the chat between two usernames in either order.
func (s *Store) ChatIDForPair(ctx context.Context, a, b string) (int64, error) {
	first, second := orderedPair(a, b)
	var id int64
	err := s.db.QueryRowContext(ctx,
		`SELECT id FROM chats WHERE first_user_name = ? AND second_user_name = ?`,
		first, second).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("chat id for pair: %w", err)
	}
	return id, nil
}

// CreateChat inserts a chat for the pair, canonicalizing the username
// order. Returns ErrDuplicate when the pair already has a chat.
func (s *Store) CreateChat(ctx context.Context, a, b string, nowMillis int64) (model.Chat, error) {
	first, second := orderedPair(a, b)
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO chats (first_user_name, second_user_name, last_update) VALUES (?, ?, ?)`,
		first, second, nowMillis)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Chat{}, ErrDuplicate
		}
		return model.Chat{}, fmt.Errorf("insert chat: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Chat{}, fmt.Errorf("chat id: %w", err)
	}
	return model.Chat{ID: id, FirstUserName: first, SecondUserName: second, LastUpdate: nowMillis}, nil
}

func (s *Store) ChatByID(ctx context.Context, id int64) (model.Chat, error) {
	var c model.Chat
	err := s.db.QueryRowContext(ctx,
		`SELECT id, first_user_name, second_user_name, last_update FROM chats WHERE id = ?`,
		id).Scan(&c.ID, &c.FirstUserName, &c.SecondUserName, &c.LastUpdate)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Chat{}, ErrNotFound
	}
	if err != nil {
		return model.Chat{}, fmt.Errorf("chat by id: %w", err)
	}
	return c, nil
}

// ChatIDsForUser returns the ids of every chat the username belongs to.
// Used to seed a session's cached membership.
func (s *Store) ChatIDsForUser(ctx context.Context, username string) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id FROM chats WHERE first_user_name = ? OR second_user_name = ?`,
		username, username)
	if err != nil {
		return nil, fmt.Errorf("chat ids for user: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan chat id: %w", err)
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (s *Store) ChatsForUser(ctx context.Context, username string) ([]model.Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, first_user_name, second_user_name, last_update FROM chats
		 WHERE first_user_name = ? OR second_user_name = ?
		 ORDER BY last_update DESC`,
		username, username)
	if err != nil {
		return nil, fmt.Errorf("chats for user: %w", err)
	}
	defer rows.Close()

	chats := make([]model.Chat, 0)
	for rows.Next() {
		var c model.Chat
		if err := rows.Scan(&c.ID, &c.FirstUserName, &c.SecondUserName, &c.LastUpdate); err != nil {
			return nil, fmt.Errorf("scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// IsChatMember reports whether username is a participant of the chat.
func (s *Store) IsChatMember(ctx context.Context, chatID int64, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM chats WHERE id = ? AND (first_user_name = ? OR second_user_name = ?))`,
		chatID, username, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check chat membership: %w", err)
	}
	return exists, nil
}

func (s *Store) TouchChat(ctx context.Context, chatID, nowMillis int64) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE chats SET last_update = ? WHERE id = ?`, nowMillis, chatID)
	if err != nil {
		return fmt.Errorf("touch chat: %w", err)
	}
	return nil
}
