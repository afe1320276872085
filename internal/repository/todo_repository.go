package repository

import (
	"context"
	"errors"

	"github.com/Tomlord1122/todo-api/internal/domain"
)

var (
	// ErrNotFound is returned when no todo carries the requested id.
	ErrNotFound = errors.New("todo not found")
	// ErrDuplicateID is returned by Create when the id is already taken.
	ErrDuplicateID = errors.New("todo id already exists")
)

// TodoRepository defines the interface for todo data operations.
// Every mutating call is applied as a single unit: either the whole change
// is persisted or nothing is.
type TodoRepository interface {
	// Create stores todo at the head of the collection, assigning an id
	// when todo.ID is empty.
	Create(ctx context.Context, todo *domain.Todo) error
	FindByID(ctx context.Context, id string) (*domain.Todo, error)
	// GetAll returns the collection newest-first. Never nil.
	GetAll(ctx context.Context) ([]domain.Todo, error)
	// Update runs apply against the stored todo and persists the result.
	// ErrNotFound is reported before apply runs; an error from apply
	// aborts the update with nothing written.
	Update(ctx context.Context, id string, apply func(*domain.Todo) error) (*domain.Todo, error)
	Delete(ctx context.Context, id string) error
}
