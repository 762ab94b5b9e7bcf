package services

import (
	"context"
	"errors"
	"strings"

	"github.com/CrowderSoup/taskmaster/database"
)

type TaskStore interface {
	ListTasks(ctx context.Context, userID, boardID int64) ([]database.Task, error)
	CreateTask(ctx context.Context, userID, boardID int64, title string) (*database.Task, error)
	UpdateTask(ctx context.Context, userID, id int64, patch database.TaskPatch) (*database.Task, error)
	DeleteTask(ctx context.Context, userID, id int64) error
}

type TaskService struct {
	store TaskStore
	guard *OwnershipGuard
}

func NewTaskService(store TaskStore, guard *OwnershipGuard) *TaskService {
	return &TaskService{store: store, guard: guard}
}

// ListByBoard returns the tasks of one of the caller's boards, newest first.
func (s *TaskService) ListByBoard(ctx context.Context, userID, boardID int64) ([]database.Task, error) {
	if _, err := s.guard.AuthorizeBoard(ctx, userID, boardID); err != nil {
		return nil, err
	}
	return s.store.ListTasks(ctx, userID, boardID)
}

func (s *TaskService) Get(ctx context.Context, userID, id int64) (*database.Task, error) {
	return s.guard.AuthorizeTask(ctx, userID, id)
}

func (s *TaskService) Create(ctx context.Context, userID, boardID int64, title string) (*database.Task, error) {
	title, err := validateTaskTitle(title)
	if err != nil {
		return nil, err
	}

	task, err := s.store.CreateTask(ctx, userID, boardID, title)
	if errors.Is(err, database.ErrNotFound) {
		return nil, s.guard.explainBoardMiss(ctx, userID, boardID)
	}
	return task, err
}

// Update applies the non-nil fields of patch.
func (s *TaskService) Update(ctx context.Context, userID, id int64, patch database.TaskPatch) (*database.Task, error) {
	if patch.Title == nil && patch.Completed == nil {
		return nil, &ValidationError{Fields: []FieldError{{Field: "body", Message: "must set title or completed"}}}
	}
	if patch.Title != nil {
		title, err := validateTaskTitle(*patch.Title)
		if err != nil {
			return nil, err
		}
		patch.Title = &title
	}

	task, err := s.store.UpdateTask(ctx, userID, id, patch)
	if errors.Is(err, database.ErrNotFound) {
		return nil, s.guard.explainTaskMiss(ctx, userID, id)
	}
	return task, err
}

func (s *TaskService) Delete(ctx context.Context, userID, id int64) error {
	err := s.store.DeleteTask(ctx, userID, id)
	if errors.Is(err, database.ErrNotFound) {
		return s.guard.explainTaskMiss(ctx, userID, id)
	}
	return err
}

func validateTaskTitle(title string) (string, error) {
	title = strings.TrimSpace(title)
	var v validator
	v.length("title", title, 1, 255)
	return title, v.err()
}
