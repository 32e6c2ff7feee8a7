package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"kutter-server/internal/model"
)

func (s *Store) CreateUser(ctx context.Context, username, email, passwordHash, verificationCode string) (model.User, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, email, password, verification_code) VALUES (?, ?, ?, ?)`,
		username, email, passwordHash, verificationCode)
	if err != nil {
		if isUniqueViolation(err) {
			return model.User{}, ErrDuplicate
		}
		return model.User{}, fmt.Errorf("insert user: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.User{}, fmt.Errorf("user id: %w", err)
	}
	code := verificationCode
	return model.User{
		ID:               id,
		Username:         username,
		Email:            email,
		PasswordHash:     passwordHash,
		VerificationCode: &code,
	}, nil
}

const userColumns = `id, username, email, password, verified, verification_code, biography`

func scanUser(row *sql.Row) (model.User, error) {
	var u model.User
	err := row.Scan(&u.ID, &u.Username, &u.Email, &u.PasswordHash, &u.Verified, &u.VerificationCode, &u.Biography)
	if errors.Is(err, sql.ErrNoRows) {
		return model.User{}, ErrNotFound
	}
	if err != nil {
		return model.User{}, fmt.Errorf("scan user: %w", err)
	}
	return u, nil
}

func (s *Store) UserByEmail(ctx context.Context, email string) (model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE email = ?`, email))
}

func (s *Store) UserByUsername(ctx context.Context, username string) (model.User, error) {
	return scanUser(s.db.QueryRowContext(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = ?`, username))
}

func (s *Store) UserExists(ctx context.Context, username string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM users WHERE username = ?)`, username).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check user exists: %w", err)
	}
	return exists, nil
}

// VerifyEmail marks the user verified. The caller has already checked the
// verification code against the stored one.
func (s *Store) VerifyEmail(ctx context.Context, email string) error {
	res, err := s.db.ExecContext(ctx, `UPDATE users SET verified = 1 WHERE email = ?`, email)
	if err != nil {
		return fmt.Errorf("verify user: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *Store) UpdateBiography(ctx context.Context, username, biography string) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE users SET biography = ? WHERE username = ?`, biography, username)
	if err != nil {
		return fmt.Errorf("update biography: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}
