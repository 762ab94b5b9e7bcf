package services

import (
	"context"
	"errors"
	"strings"

	"github.com/CrowderSoup/taskmaster/database"
)

type BoardStore interface {
	ListBoards(ctx context.Context, userID int64) ([]database.Board, error)
	CreateBoard(ctx context.Context, userID int64, name string) (*database.Board, error)
	RenameBoard(ctx context.Context, userID, id int64, name string) (*database.Board, error)
	DeleteBoard(ctx context.Context, userID, id int64) error
}

type BoardService struct {
	store BoardStore
	guard *OwnershipGuard
}

func NewBoardService(store BoardStore, guard *OwnershipGuard) *BoardService {
	return &BoardService{store: store, guard: guard}
}

// List returns the caller's boards, newest first.
func (s *BoardService) List(ctx context.Context, userID int64) ([]database.Board, error) {
	return s.store.ListBoards(ctx, userID)
}

func (s *BoardService) Get(ctx context.Context, userID, id int64) (*database.Board, error) {
	return s.guard.AuthorizeBoard(ctx, userID, id)
}

func (s *BoardService) Create(ctx context.Context, userID int64, name string) (*database.Board, error) {
	name, err := validateBoardName(name)
	if err != nil {
		return nil, err
	}
	return s.store.CreateBoard(ctx, userID, name)
}

func (s *BoardService) Rename(ctx context.Context, userID, id int64, name string) (*database.Board, error) {
	name, err := validateBoardName(name)
	if err != nil {
		return nil, err
	}

	board, err := s.store.RenameBoard(ctx, userID, id, name)
	if errors.Is(err, database.ErrNotFound) {
		return nil, s.guard.explainBoardMiss(ctx, userID, id)
	}
	return board, err
}

// Delete removes the board and, through the foreign key, all of its tasks.
func (s *BoardService) Delete(ctx context.Context, userID, id int64) error {
	err := s.store.DeleteBoard(ctx, userID, id)
	if errors.Is(err, database.ErrNotFound) {
		return s.guard.explainBoardMiss(ctx, userID, id)
	}
	return err
}

func validateBoardName(name string) (string, error) {
	name = strings.TrimSpace(name)
	var v validator
	v.length("name", name, 1, 100)
	return name, v.err()
}
