package database

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// SeedUsername is the demo account created by Seed.
const SeedUsername = "testuser"

// Seed loads the demo data set: one user, two boards and three tasks on the
// first board. It reports false without writing when the demo user exists.
func (s *Store) Seed(ctx context.Context, passwordHash string) (bool, error) {
	if _, err := s.UserByUsername(ctx, SeedUsername); err == nil {
		return false, nil
	} else if !errors.Is(err, ErrNotFound) {
		return false, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := toMillis(time.Now())
	res, err := tx.ExecContext(ctx,
		`INSERT INTO users (username, password_hash, created_at) VALUES (?, ?, ?)`,
		SeedUsername, passwordHash, now)
	if err != nil {
		return false, fmt.Errorf("failed to insert seed user: %w", err)
	}
	userID, err := res.LastInsertId()
	if err != nil {
		return false, fmt.Errorf("failed to read seed user id: %w", err)
	}

	var firstBoard int64
	for i, name := range []string{"Personal Tasks", "Work Projects"} {
		res, err := tx.ExecContext(ctx,
			`INSERT INTO boards (name, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)`,
			name, userID, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert seed board: %w", err)
		}
		if i == 0 {
			if firstBoard, err = res.LastInsertId(); err != nil {
				return false, fmt.Errorf("failed to read seed board id: %w", err)
			}
		}
	}

	tasks := []struct {
		title     string
		completed bool
	}{
		{"Learn the API", false},
		{"Write API documentation", true},
		{"Deploy application", false},
	}
	for _, t := range tasks {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO tasks (title, completed, board_id, created_at, updated_at) VALUES (?, ?, ?, ?, ?)`,
			t.title, t.completed, firstBoard, now, now)
		if err != nil {
			return false, fmt.Errorf("failed to insert seed task: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit transaction: %w", err)
	}
	return true, nil
}
