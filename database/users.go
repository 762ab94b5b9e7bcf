package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const userColumns = `id, username, password_hash, refresh_token, created_at`

// CreateUser inserts a user and returns the new id.
func (s *Store) CreateUser(ctx context.Context, username, passwordHash string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		username, passwordHash, toMillis(time.Now()))
	if err != nil {
		if isUniqueConstraintErr(err) {
			return 0, ErrUsernameTaken
		}
		return 0, fmt.Errorf("failed to insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read user id: %w", err)
	}
	return id, nil
}

// UserByUsername looks up a user by exact (case-sensitive) username.
func (s *Store) UserByUsername(ctx context.Context, username string) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE username = ?`, username)
	return scanUser(row)
}

func (s *Store) UserByID(ctx context.Context, id int64) (*User, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id = ?`, id)
	return scanUser(row)
}

// SetRefreshToken overwrites the stored refresh token. A nil token clears it.
func (s *Store) SetRefreshToken(ctx context.Context, userID int64, token *string) error {
	var value sql.NullString
	if token != nil {
		value = sql.NullString{String: *token, Valid: true}
	}
	_, err := s.db.ExecContext(ctx, `UPDATE users SET refresh_token = ? WHERE id = ?`, value, userID)
	if err != nil {
		return fmt.Errorf("failed to update refresh token: %w", err)
	}
	return nil
}

func scanUser(row rowScanner) (*User, error) {
	var (
		u         User
		refresh   sql.NullString
		createdAt int64
	)
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &refresh, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	if refresh.Valid {
		token := refresh.String
		u.RefreshToken = &token
	}
	u.CreatedAt = fromMillis(createdAt)
	return &u, nil
}
