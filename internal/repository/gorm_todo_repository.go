package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/Tomlord1122/todo-api/internal/domain"
)

// gormTodoRepository implements TodoRepository on top of an indexed SQL table.
// It is the drop-in replacement for FileStore once the collection outgrows a
// single file or several writers share it.
type gormTodoRepository struct {
	db *gorm.DB
}

// NewGormTodoRepository creates a new GORM todo repository
func NewGormTodoRepository(db *gorm.DB) TodoRepository {
	return &gormTodoRepository{db: db}
}

// Migrate creates or updates the todos table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&domain.Todo{})
}

func (r *gormTodoRepository) Create(ctx context.Context, todo *domain.Todo) error {
	if todo.ID == "" {
		todo.ID = uuid.NewString()
	}
	err := r.db.WithContext(ctx).Create(todo).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("create %s: %w", todo.ID, ErrDuplicateID)
	}
	return err
}

func (r *gormTodoRepository) FindByID(ctx context.Context, id string) (*domain.Todo, error) {
	var todo domain.Todo
	result := r.db.WithContext(ctx).First(&todo, "id = ?", id)
	if errors.Is(result.Error, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if result.Error != nil {
		return nil, result.Error
	}
	return &todo, nil
}

// GetAll orders by creation time, then by insertion sequence, so the result
// matches the prepend order of the file store.
func (r *gormTodoRepository) GetAll(ctx context.Context) ([]domain.Todo, error) {
	todos := []domain.Todo{}
	result := r.db.WithContext(ctx).Order("created_at desc").Order("seq desc").Find(&todos)
	if result.Error != nil {
		return nil, result.Error
	}
	return todos, nil
}

// Update locks the row for the duration of the transaction so concurrent
// partial updates are applied one after another.
func (r *gormTodoRepository) Update(ctx context.Context, id string, apply func(*domain.Todo) error) (*domain.Todo, error) {
	var todo domain.Todo
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		result := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&todo, "id = ?", id)
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return ErrNotFound
		}
		if result.Error != nil {
			return result.Error
		}
		if err := apply(&todo); err != nil {
			return err
		}
		return tx.Save(&todo).Error
	})
	if err != nil {
		return nil, err
	}
	return &todo, nil
}

func (r *gormTodoRepository) Delete(ctx context.Context, id string) error {
	result := r.db.WithContext(ctx).Delete(&domain.Todo{}, "id = ?", id)
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
