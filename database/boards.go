package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const boardColumns = `id, name, user_id, created_at, updated_at`

// ListBoards returns the boards owned by userID, newest first.
func (s *Store) ListBoards(ctx context.Context, userID int64) ([]Board, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+boardColumns+` FROM boards WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query boards: %w", err)
	}
	defer rows.Close()

	boards := []Board{}
	for rows.Next() {
		b, err := scanBoard(rows)
		if err != nil {
			return nil, err
		}
		boards = append(boards, *b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate boards: %w", err)
	}
	return boards, nil
}

// BoardByID loads a board regardless of owner. Callers decide access.
func (s *Store) BoardByID(ctx context.Context, id int64) (*Board, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+boardColumns+` FROM boards WHERE id = ?`, id)
	return scanBoard(row)
}

func (s *Store) CreateBoard(ctx context.Context, userID int64, name string) (*Board, error) {
	now := toMillis(time.Now())
	row := s.db.QueryRowContext(ctx,
		`INSERT INTO boards (name, user_id, created_at, updated_at) VALUES (?, ?, ?, ?)
		RETURNING `+boardColumns,
		name, userID, now, now)
	b, err := scanBoard(row)
	if err != nil {
		return nil, fmt.Errorf("failed to insert board: %w", err)
	}
	return b, nil
}

// RenameBoard updates the name of a board owned by userID. The owner check and
// the write are one statement; ErrNotFound means no board matched both.
func (s *Store) RenameBoard(ctx context.Context, userID, id int64, name string) (*Board, error) {
	row := s.db.QueryRowContext(ctx,
		`UPDATE boards SET name = ?, updated_at = ? WHERE id = ? AND user_id = ?
		RETURNING `+boardColumns,
		name, toMillis(time.Now()), id, userID)
	return scanBoard(row)
}

// DeleteBoard removes a board owned by userID together with its tasks.
func (s *Store) DeleteBoard(ctx context.Context, userID, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM boards WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete board: %w", err)
	}
	return expectAffected(res)
}

func scanBoard(row rowScanner) (*Board, error) {
	var (
		b                    Board
		createdAt, updatedAt int64
	)
	err := row.Scan(&b.ID, &b.Name, &b.UserID, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to scan board: %w", err)
	}
	b.CreatedAt = fromMillis(createdAt)
	b.UpdatedAt = fromMillis(updatedAt)
	return &b, nil
}

func expectAffected(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
