package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/Tomlord1122/todo-api/internal/domain"
	"github.com/Tomlord1122/todo-api/internal/repository"
)

var (
	// ErrTextRequired is returned when a create or edit carries blank text.
	ErrTextRequired = errors.New("text is required")
	// ErrNotFound is returned when the referenced todo does not exist.
	ErrNotFound = errors.New("not found")
	// ErrNotObject is returned when decoding a request body that is not a
	// JSON object.
	ErrNotObject = errors.New("request body must be a JSON object")
)

// isoLayout renders timestamps the way browsers print Date.toISOString.
const isoLayout = "2006-01-02T15:04:05.000Z07:00"

// CreateTodoRequest holds the data needed to create a new todo
type CreateTodoRequest struct {
	Text string `json:"text"`
}

// UnmarshalJSON accepts any scalar text: numbers and booleans are kept in
// their literal form, null counts as missing. Objects and arrays leave Text
// empty.
func (r *CreateTodoRequest) UnmarshalJSON(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	raw, ok := fields["text"]
	if !ok {
		return nil
	}
	var text string
	if err := json.Unmarshal(raw, &text); err == nil {
		r.Text = text
		return nil
	}
	literal := strings.TrimSpace(string(raw))
	if !strings.HasPrefix(literal, "{") && !strings.HasPrefix(literal, "[") {
		r.Text = literal
	}
	return nil
}

// UpdateTodoRequest holds the data for a partial update.
// Pointers distinguish an omitted field from one set to its zero value.
type UpdateTodoRequest struct {
	Text *string `json:"text"`
	Done *bool   `json:"done"`
}

// UnmarshalJSON keeps only well-typed fields: text must be a string and done
// a boolean. Anything else, null included, is treated as absent.
func (r *UpdateTodoRequest) UnmarshalJSON(data []byte) error {
	fields, err := decodeFields(data)
	if err != nil {
		return err
	}
	if raw, ok := fields["text"]; ok {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil && !isNull(raw) {
			r.Text = &text
		}
	}
	if raw, ok := fields["done"]; ok {
		var done bool
		if err := json.Unmarshal(raw, &done); err == nil && !isNull(raw) {
			r.Done = &done
		}
	}
	return nil
}


// decodeFields splits a JSON object into its raw members. A JSON null body
// yields no fields.
func decodeFields(data []byte) (map[string]json.RawMessage, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, ErrNotObject
	}
	return fields, nil
}

func isNull(raw json.RawMessage) bool {
	return strings.TrimSpace(string(raw)) == "null"
}

// TodoResponse is the wire representation of a todo.
type TodoResponse struct {
	ID        string `json:"id"`
	Text      string `json:"text"`
	Done      bool   `json:"done"`
	CreatedAt string `json:"createdAt"`
}

// ClearCompletedResponse reports the outcome of each delete issued by
// ClearCompleted.
type ClearCompletedResponse struct {
	Deleted []string       `json:"deleted"`
	Failed  []FailedDelete `json:"failed"`
}

// FailedDelete names a completed todo that could not be removed.
type FailedDelete struct {
	ID    string `json:"id"`
	Error string `json:"error"`
}

// Partial reports whether at least one delete failed.
func (r *ClearCompletedResponse) Partial() bool {
	return len(r.Failed) > 0
}

// StatsResponse counts the collection by completion state.
type StatsResponse struct {
	Active int `json:"active"`
	Done   int `json:"done"`
	Total  int `json:"total"`
}

// TodoService defines the operations for managing todos.
type TodoService interface {
	CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error)
	GetTodoByID(ctx context.Context, id string) (*TodoResponse, error)
	GetAllTodos(ctx context.Context) ([]TodoResponse, error)
	UpdateTodo(ctx context.Context, id string, req UpdateTodoRequest) (*TodoResponse, error)
	DeleteTodo(ctx context.Context, id string) error

	// ClearCompleted deletes every done todo one at a time. A failed delete
	// does not stop the remaining ones; all outcomes are reported.
	ClearCompleted(ctx context.Context) (*ClearCompletedResponse, error)
	Stats(ctx context.Context) (*StatsResponse, error)
}

type todoService struct {
	repo   repository.TodoRepository
	logger *log.Logger
	now    func() time.Time
}

// NewTodoService creates a new instance of todoService.
func NewTodoService(repo repository.TodoRepository, logger *log.Logger) TodoService {
	return &todoService{
		repo:   repo,
		logger: logger,
		now:    time.Now,
	}
}

func (s *todoService) CreateTodo(ctx context.Context, req CreateTodoRequest) (*TodoResponse, error) {
	text := strings.TrimSpace(req.Text)
	if text == "" {
		return nil, ErrTextRequired
	}

	todo := &domain.Todo{
		Text:      text,
		Done:      false,
		CreatedAt: domain.Stamp(s.now()),
	}
	if err := s.repo.Create(ctx, todo); err != nil {
		return nil, fmt.Errorf("create todo: %w", err)
	}

	s.logger.Debug("todo created", "id", todo.ID)
	return toResponse(*todo), nil
}

func (s *todoService) GetTodoByID(ctx context.Context, id string) (*TodoResponse, error) {
	todo, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return nil, wrapErr("get", id, err)
	}
	return toResponse(*todo), nil
}

func (s *todoService) GetAllTodos(ctx context.Context) ([]TodoResponse, error) {
	todos, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	responses := make([]TodoResponse, 0, len(todos))
	for _, todo := range todos {
		responses = append(responses, *toResponse(todo))
	}
	return responses, nil
}

// UpdateTodo applies only the fields present in req. An unknown id is
// reported as not found before the text is validated; blank text on an
// existing todo is rejected without writing anything.
func (s *todoService) UpdateTodo(ctx context.Context, id string, req UpdateTodoRequest) (*TodoResponse, error) {
	updated, err := s.repo.Update(ctx, id, func(todo *domain.Todo) error {
		if req.Text != nil {
			text := strings.TrimSpace(*req.Text)
			if text == "" {
				return ErrTextRequired
			}
			todo.Text = text
		}
		if req.Done != nil {
			todo.Done = *req.Done
		}
		return nil
	})
	if err != nil {
		return nil, wrapErr("update", id, err)
	}
	return toResponse(*updated), nil
}

func (s *todoService) DeleteTodo(ctx context.Context, id string) error {
	if err := s.repo.Delete(ctx, id); err != nil {
		return wrapErr("delete", id, err)
	}
	s.logger.Debug("todo deleted", "id", id)
	return nil
}

func (s *todoService) ClearCompleted(ctx context.Context) (*ClearCompletedResponse, error) {
	todos, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}

	result := &ClearCompletedResponse{
		Deleted: []string{},
		Failed:  []FailedDelete{},
	}
	for _, todo := range todos {
		if !todo.Done {
			continue
		}
		if err := s.DeleteTodo(ctx, todo.ID); err != nil {
			s.logger.Warn("clear completed: delete failed", "id", todo.ID, "err", err)
			result.Failed = append(result.Failed, FailedDelete{ID: todo.ID, Error: err.Error()})
			continue
		}
		result.Deleted = append(result.Deleted, todo.ID)
	}
	return result, nil
}

func (s *todoService) Stats(ctx context.Context) (*StatsResponse, error) {
	todos, err := s.repo.GetAll(ctx)
	if err != nil {
		return nil, fmt.Errorf("list todos: %w", err)
	}
	stats := &StatsResponse{Total: len(todos)}
	for _, todo := range todos {
		if todo.Done {
			stats.Done++
		}
	}
	stats.Active = stats.Total - stats.Done
	return stats, nil
}

// wrapErr turns the repository's not-found into the service one so callers only
// need to know about this package's errors.
func wrapErr(op, id string, err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%s todo %s: %w", op, id, ErrNotFound)
	}
	return fmt.Errorf("%s todo %s: %w", op, id, err)
}

func toResponse(todo domain.Todo) *TodoResponse {
	return &TodoResponse{
		ID:        todo.ID,
		Text:      todo.Text,
		Done:      todo.Done,
		CreatedAt: todo.CreatedAt.UTC().Format(isoLayout),
	}
}
