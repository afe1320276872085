package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/Tomlord1122/todo-api/internal/domain"
)

// DataFileName is the name of the backing file inside the data directory.
const DataFileName = "todos.json"

// corruptSuffix is appended to the backing file path when unparsable content
// is set aside before being replaced by an empty collection.
const corruptSuffix = ".corrupt"

// FileStore keeps the whole todo collection in one pretty-printed JSON file.
// Each mutation loads the full collection, applies one change and writes the
// full collection back. All of that happens under mu, so concurrent requests
// cannot lose each other's updates.
type FileStore struct {
	dir    string
	path   string
	logger *log.Logger
	// writeFile replaces a file's content in one step.
	writeFile func(path string, data []byte) error

	mu sync.Mutex
}

// compile-time check
var _ TodoRepository = (*FileStore)(nil)

// NewFileStore prepares dir and its backing file. An error here means the
// storage location is unusable and the process should not start.
func NewFileStore(dir string, logger *log.Logger) (*FileStore, error) {
	s := &FileStore{
		dir:       dir,
		path:      filepath.Join(dir, DataFileName),
		logger:    logger,
		writeFile: writeFileAtomic,
	}
	if err := s.Ensure(); err != nil {
		return nil, err
	}
	return s, nil
}

// Path returns the location of the backing file.
func (s *FileStore) Path() string {
	return s.path
}

// Ensure creates the data directory and initializes the backing file to an
// empty collection when either is missing. Safe to call repeatedly.
func (s *FileStore) Ensure() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ensure()
}

// Load returns the current collection. Unparsable content yields an empty
// collection and a warning instead of an error.
func (s *FileStore) Load() ([]domain.Todo, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load()
}

// Save overwrites the backing file with todos.
func (s *FileStore) Save(todos []domain.Todo) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.save(todos)
}

// NewID returns a fresh opaque identifier.
func (s *FileStore) NewID() string {
	return uuid.NewString()
}

// Mutate performs one read-modify-write cycle. When change returns an error
// nothing is written.
func (s *FileStore) Mutate(change func([]domain.Todo) ([]domain.Todo, error)) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	todos, err := s.load()
	if err != nil {
		return err
	}
	next, err := change(todos)
	if err != nil {
		return err
	}
	return s.save(next)
}

func (s *FileStore) Create(ctx context.Context, todo *domain.Todo) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if todo.ID == "" {
		todo.ID = s.NewID()
	}
	return s.Mutate(func(todos []domain.Todo) ([]domain.Todo, error) {
		if indexOf(todos, todo.ID) != -1 {
			return nil, fmt.Errorf("create %s: %w", todo.ID, ErrDuplicateID)
		}
		return append([]domain.Todo{*todo}, todos...), nil
	})
}

func (s *FileStore) FindByID(ctx context.Context, id string) (*domain.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	todos, err := s.Load()
	if err != nil {
		return nil, err
	}
	i := indexOf(todos, id)
	if i == -1 {
		return nil, ErrNotFound
	}
	todo := todos[i]
	return &todo, nil
}

func (s *FileStore) GetAll(ctx context.Context) ([]domain.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.Load()
}

func (s *FileStore) Update(ctx context.Context, id string, apply func(*domain.Todo) error) (*domain.Todo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var updated domain.Todo
	err := s.Mutate(func(todos []domain.Todo) ([]domain.Todo, error) {
		i := indexOf(todos, id)
		if i == -1 {
			return nil, ErrNotFound
		}
		if err := apply(&todos[i]); err != nil {
			return nil, err
		}
		updated = todos[i]
		return todos, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Delete removes the todo with id. Not-found is detected by comparing the
// collection length before and after filtering.
func (s *FileStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return s.Mutate(func(todos []domain.Todo) ([]domain.Todo, error) {
		next := make([]domain.Todo, 0, len(todos))
		for _, t := range todos {
			if t.ID != id {
				next = append(next, t)
			}
		}
		if len(next) == len(todos) {
			return nil, ErrNotFound
		}
		return next, nil
	})
}

// Health reports whether the backing file can be read, for the readiness check.
func (s *FileStore) Health() map[string]string {
	stats := map[string]string{
		"driver": "file",
		"path":   s.path,
	}
	todos, err := s.Load()
	if err != nil {
		stats["status"] = "down"
		stats["error"] = err.Error()
		return stats
	}
	stats["status"] = "up"
	stats["items"] = strconv.Itoa(len(todos))
	return stats
}

func (s *FileStore) ensure() error {
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create data dir %s: %w", s.dir, err)
	}
	_, err := os.Stat(s.path)
	if err == nil {
		return nil
	}
	if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat %s: %w", s.path, err)
	}
	if err := s.writeFile(s.path, []byte("[]")); err != nil {
		return fmt.Errorf("initialize %s: %w", s.path, err)
	}
	s.logger.Info("initialized todo store", "path", s.path)
	return nil
}

func (s *FileStore) load() ([]domain.Todo, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		if err := s.ensure(); err != nil {
			return nil, err
		}
		return []domain.Todo{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", s.path, err)
	}

	var todos []domain.Todo
	if err := json.Unmarshal(data, &todos); err != nil {
		s.setAside(data, err)
		return []domain.Todo{}, nil
	}
	if todos == nil {
		todos = []domain.Todo{}
	}
	return todos, nil
}

func (s *FileStore) save(todos []domain.Todo) error {
	if err := s.ensure(); err != nil {
		return err
	}
	if todos == nil {
		todos = []domain.Todo{}
	}
	data, err := json.MarshalIndent(todos, "", "  ")
	if err != nil {
		return fmt.Errorf("json marshal: %w", err)
	}
	if err := s.writeFile(s.path, data); err != nil {
		return fmt.Errorf("write %s: %w", s.path, err)
	}
	return nil
}

// setAside copies unparsable content next to the backing file so the next
// save does not destroy the only copy.
func (s *FileStore) setAside(data []byte, cause error) {
	backup := s.path + corruptSuffix
	if err := s.writeFile(backup, data); err != nil {
		s.logger.Error("could not preserve corrupt todo file", "path", s.path, "err", err)
	}
	s.logger.Warn("todo file is not valid JSON, treating as empty",
		"path", s.path, "backup", backup, "err", cause)
}

// writeFileAtomic writes data to a temp file in the target directory and
// renames it over path, so readers see either the old or the new content.
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+"-*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpPath)
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("close temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, 0o644); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		_ = os.Remove(tmpPath)
		return fmt.Errorf("rename temp file: %w", err)
	}
	return nil
}

func indexOf(todos []domain.Todo, id string) int {
	for i := range todos {
		if todos[i].ID == id {
			return i
		}
	}
	return -1
}
