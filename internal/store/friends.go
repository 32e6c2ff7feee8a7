package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kutter-server/internal/model"
)

// FriendshipExists reports whether any friendship row links the pair, in
// either direction and regardless of status.
func (s *Store) FriendshipExists(ctx context.Context, a, b string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM friends
		 WHERE (sender_username = ? AND receiver_username = ?)
		    OR (sender_username = ? AND receiver_username = ?))`,
		a, b, b, a).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship: %w", err)
	}
	return exists, nil
}

// CreateFriendRequest inserts a pending request. The unordered pair is
// unique; a second row between the same two usernames, in either direction,
// returns ErrDuplicate.
func (s *Store) CreateFriendRequest(ctx context.Context, sender, receiver string) (model.Friendship, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO friends (sender_username, receiver_username, status) VALUES (?, ?, ?)`,
		sender, receiver, model.FriendStatusPending)
	if err != nil {
		if isUniqueViolation(err) {
			return model.Friendship{}, ErrDuplicate
		}
		return model.Friendship{}, fmt.Errorf("insert friend request: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Friendship{}, fmt.Errorf("friend request id: %w", err)
	}
	return model.Friendship{
		ID:               id,
		SenderUsername:   sender,
		ReceiverUsername: receiver,
		Status:           model.FriendStatusPending,
	}, nil
}

func (s *Store) FriendshipByID(ctx context.Context, id int64) (model.Friendship, error) {
	var f model.Friendship
	err := s.db.QueryRowContext(ctx,
		`SELECT id, sender_username, receiver_username, status FROM friends WHERE id = ?`,
		id).Scan(&f.ID, &f.SenderUsername, &f.ReceiverUsername, &f.Status)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Friendship{}, ErrNotFound
	}
	if err != nil {
		return model.Friendship{}, fmt.Errorf("friendship by id: %w", err)
	}
	return f, nil
}

func (s *Store) AcceptFriendRequest(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE friends SET status = ? WHERE id = ?`, model.FriendStatusAccepted, id)
	if err != nil {
		return fmt.Errorf("accept friend request: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) DeleteFriendship(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM friends WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete friendship: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) FriendshipsForUser(ctx context.Context, username string) ([]model.Friendship, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, sender_username, receiver_username, status FROM friends
		 WHERE sender_username = ? OR receiver_username = ?`,
		username, username)
	if err != nil {
		return nil, fmt.Errorf("friendships for user: %w", err)
	}
	defer rows.Close()

	friends := make([]model.Friendship, 0)
	for rows.Next() {
		var f model.Friendship
		if err := rows.Scan(&f.ID, &f.SenderUsername, &f.ReceiverUsername, &f.Status); err != nil {
			return nil, fmt.Errorf("scan friendship: %w", err)
		}
		friends = append(friends, f)
	}
	return friends, rows.Err()
}

// IsFriendshipParty reports whether username is the sender or receiver of
// the friendship row.
func (s *Store) IsFriendshipParty(ctx context.Context, id int64, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM friends WHERE id = ? AND (sender_username = ? OR receiver_username = ?))`,
		id, username, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check friendship party: %w", err)
	}
	return exists, nil
}
