package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/CrowderSoup/taskmaster/database"
)

// OwnershipStore exposes the unscoped lookups the guard classifies.
type OwnershipStore interface {
	BoardByID(ctx context.Context, id int64) (*database.Board, error)
	TaskWithOwner(ctx context.Context, id int64) (*database.Task, int64, error)
}

// OwnershipGuard decides whether a user may touch a board or task. A missing
// resource is ErrNotFound and a resource of another user is ErrForbidden, for
// every endpoint alike.
type OwnershipGuard struct {
	store OwnershipStore
}

func NewOwnershipGuard(store OwnershipStore) *OwnershipGuard {
	return &OwnershipGuard{store: store}
}

func (g *OwnershipGuard) AuthorizeBoard(ctx context.Context, userID, boardID int64) (*database.Board, error) {
	board, err := g.store.BoardByID(ctx, boardID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to authorize board: %w", err)
	}
	if board.UserID != userID {
		return nil, ErrForbidden
	}
	return board, nil
}

// AuthorizeTask resolves the task's owner through its board.
func (g *OwnershipGuard) AuthorizeTask(ctx context.Context, userID, taskID int64) (*database.Task, error) {
	task, ownerID, err := g.store.TaskWithOwner(ctx, taskID)
	if errors.Is(err, database.ErrNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to authorize task: %w", err)
	}
	if ownerID != userID {
		return nil, ErrForbidden
	}
	return task, nil
}

// explainBoardMiss is called after a conditioned write on a board matched
// nothing, and reports why.
func (g *OwnershipGuard) explainBoardMiss(ctx context.Context, userID, boardID int64) error {
	if _, err := g.AuthorizeBoard(ctx, userID, boardID); err != nil {
		return err
	}
	// owned again by the time we looked; the row we targeted is gone
	return ErrNotFound
}

func (g *OwnershipGuard) explainTaskMiss(ctx context.Context, userID, taskID int64) error {
	if _, err := g.AuthorizeTask(ctx, userID, taskID); err != nil {
		return err
	}
	return ErrNotFound
}
