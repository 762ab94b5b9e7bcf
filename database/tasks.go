package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const taskColumns = `id, title, completed, board_id, created_at, updated_at`

// ownedBoards restricts a board_id to boards of the user bound to the placeholder.
const ownedBoards = `board_id IN (SELECT id FROM boards WHERE user_id = ?)`

// ListTasks returns the tasks of a board owned by userID, newest first.
func (s *Store) ListTasks(ctx context.Context, userID, boardID int64) ([]Task, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+taskColumns+` FROM tasks WHERE board_id = ? AND `+ownedBoards+`
		ORDER BY created_at DESC, id DESC`,
		boardID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query tasks: %w", err)
	}
	defer rows.Close()

	tasks := []Task{}
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate tasks: %w", err)
	}
	return tasks, nil
}

// TaskWithOwner loads a task and the user_id of its board in one join.
// Tasks have no owner column of their own.
func (s *Store) TaskWithOwner(ctx context.Context, id int64) (*Task, int64, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT t.id, t.title, t.completed, t.board_id, t.created_at, t.updated_at, b.user_id
		FROM tasks t JOIN boards b ON b.id = t.board_id
		WHERE t.id = ?`, id)

	var (
		t                    Task
		ownerID              int64
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Completed, &t.BoardID, &createdAt, &updatedAt, &ownerID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, 0, ErrNotFound
	}
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query task: %w", err)
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, ownerID, nil
}

// CreateTask inserts a task under boardID only if that board belongs to
// userID. ErrNotFound means the board is missing or owned by someone else.
func (s *Store) CreateTask(ctx context.Context, userID, boardID int64, title string) (*Task, error) {
	now := toMillis(time.Now())
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO tasks (title, completed, board_id, created_at, updated_at)
		SELECT ?, 0, id, ?, ? FROM boards WHERE id = ? AND user_id = ?
		RETURNING `+taskColumns,
		title, now, now, boardID, userID)
	return scanTask(row)
}

// UpdateTask applies patch to a task whose board belongs to userID.
func (s *Store) UpdateTask(ctx context.Context, userID, id int64, patch TaskPatch) (*Task, error) {
	var (
		title     sql.NullString
		completed sql.NullBool
	)
	if patch.Title != nil {
		title = sql.NullString{String: *patch.Title, Valid: true}
	}
	if patch.Completed != nil {
		completed = sql.NullBool{Bool: *patch.Completed, Valid: true}
	}

	row := s.db.QueryRowContext(ctx,
		`UPDATE tasks SET
			title = COALESCE(?, title),
			completed = COALESCE(?, completed),
			updated_at = ?
		WHERE id = ? AND `+ownedBoards+`
		RETURNING `+taskColumns,
		title, completed, toMillis(time.Now()), id, userID)
	return scanTask(row)
}

// DeleteTask removes a task whose board belongs to userID.
func (s *Store) DeleteTask(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM tasks WHERE id = ? AND `+ownedBoards, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return expectAffected(res)
}

func scanTask(row rowScanner) (*Task, error) {
	var (
		t                    Task
		createdAt, updatedAt int64
	)
	err := row.Scan(&t.ID, &t.Title, &t.Completed, &t.BoardID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan task: %w", err)
	}
	t.CreatedAt = fromMillis(createdAt)
	t.UpdatedAt = fromMillis(updatedAt)
	return &t, nil
}
