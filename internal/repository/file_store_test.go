package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Tomlord1122/todo-api/internal/domain"
	"github.com/Tomlord1122/todo-api/internal/logging"
)

func newTestFileStore(t *testing.T) *FileStore {
	t.Helper()
	s, err := NewFileStore(filepath.Join(t.TempDir(), "data"), logging.Discard())
	require.NoError(t, err)
	return s
}

func sampleTodo(id, text string) domain.Todo {
	return domain.Todo{
		ID:        id,
		Text:      text,
		CreatedAt: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestNewFileStore_CreatesDirAndEmptyFile(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "nested", "data")
	s, err := NewFileStore(dir, logging.Discard())
	require.NoError(t, err)

	assert.DirExists(t, dir)
	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestEnsure_Idempotent(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("a", "keep me")}))

	require.NoError(t, s.Ensure())
	require.NoError(t, s.Ensure())

	todos, err := s.Load()
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "keep me", todos[0].Text)
}

func TestNewFileStore_UnwritableLocation(t *testing.T) {
	blocker := filepath.Join(t.TempDir(), "file")
	require.NoError(t, os.WriteFile(blocker, []byte("x"), 0o644))

	_, err := NewFileStore(filepath.Join(blocker, "data"), logging.Discard())
	assert.Error(t, err)
}

func TestLoad_RecreatesMissingFile(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, os.Remove(s.Path()))

	todos, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, todos)
	assert.NotNil(t, todos)
	assert.FileExists(t, s.Path())
}

func TestLoad_MalformedContentIsEmpty(t *testing.T) {
	s := newTestFileStore(t)
	raw := []byte(`[{"id": "a", "text": "half`)
	require.NoError(t, os.WriteFile(s.Path(), raw, 0o644))

	todos, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, todos)

	backup, err := os.ReadFile(s.Path() + corruptSuffix)
	require.NoError(t, err)
	assert.Equal(t, raw, backup)
}

func TestLoad_NonArrayJSONIsEmpty(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`{"todos": []}`), 0o644))

	todos, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestLoad_NullIsEmpty(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`null`), 0o644))

	todos, err := s.Load()
	require.NoError(t, err)
	assert.NotNil(t, todos)
	assert.Empty(t, todos)
}

func TestLoad_ReadsExistingFileFormat(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, os.WriteFile(s.Path(), []byte(`[
  {
    "id": "m1x2",
    "text": "buy milk",
    "done": true,
    "createdAt": "2025-01-02T03:04:05.678Z"
  }
]`), 0o644))

	todos, err := s.Load()
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "m1x2", todos[0].ID)
	assert.True(t, todos[0].Done)
	assert.Equal(t, time.Date(2025, 1, 2, 3, 4, 5, 678_000_000, time.UTC), todos[0].CreatedAt)
}

func TestSave_PrettyPrintsAndRoundTrips(t *testing.T) {
	s := newTestFileStore(t)
	in := []domain.Todo{sampleTodo("b", "second"), sampleTodo("a", "first")}
	require.NoError(t, s.Save(in))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "\n  {\n    \"id\": \"b\"")

	loaded, err := s.Load()
	require.NoError(t, err)
	assert.Equal(t, in, loaded)

	require.NoError(t, s.Save(loaded))
	again, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, data, again)
}

func TestSave_NilWritesEmptyArray(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save(nil))

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, string(data))
}

func TestSave_LeavesNoTempFiles(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("a", "x")}))

	entries, err := os.ReadDir(filepath.Dir(s.Path()))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, DataFileName, entries[0].Name())
}

func TestNewID_Unique(t *testing.T) {
	s := newTestFileStore(t)
	seen := make(map[string]bool)
	for i := 0; i < 1000; i++ {
		id := s.NewID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "duplicate id %s", id)
		seen[id] = true
	}
}

func TestMutate_ErrorWritesNothing(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("a", "x")}))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	boom := fmt.Errorf("boom")
	err = s.Mutate(func(todos []domain.Todo) ([]domain.Todo, error) {
		return nil, boom
	})
	assert.ErrorIs(t, err, boom)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestCreate_PrependsAndAssignsID(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	first := sampleTodo("", "first")
	require.NoError(t, s.Create(ctx, &first))
	second := sampleTodo("", "second")
	require.NoError(t, s.Create(ctx, &second))

	assert.NotEmpty(t, first.ID)
	assert.NotEqual(t, first.ID, second.ID)

	todos, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.Equal(t, "second", todos[0].Text)
	assert.Equal(t, "first", todos[1].Text)
}

func TestCreate_DuplicateID(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	a := sampleTodo("same", "one")
	require.NoError(t, s.Create(ctx, &a))
	b := sampleTodo("same", "two")
	assert.ErrorIs(t, s.Create(ctx, &b), ErrDuplicateID)

	todos, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, todos, 1)
}

func TestFindByID(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "found")}))

	todo, err := s.FindByID(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "found", todo.Text)

	_, err = s.FindByID(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestUpdate(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "a"), sampleTodo("y", "b")}))

	updated, err := s.Update(ctx, "y", func(todo *domain.Todo) error {
		todo.Done = true
		return nil
	})
	require.NoError(t, err)
	assert.True(t, updated.Done)
	assert.Equal(t, "b", updated.Text)

	todos, err := s.Load()
	require.NoError(t, err)
	assert.False(t, todos[0].Done)
	assert.True(t, todos[1].Done)
}

func TestUpdate_NotFoundLeavesFileUntouched(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "a")}))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	called := false
	_, err = s.Update(context.Background(), "nope", func(*domain.Todo) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrNotFound)
	assert.False(t, called)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestDelete_NotIdempotent(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "a"), sampleTodo("y", "b")}))

	require.NoError(t, s.Delete(ctx, "x"))
	assert.ErrorIs(t, s.Delete(ctx, "x"), ErrNotFound)

	todos, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 1)
	assert.Equal(t, "y", todos[0].ID)
}

func TestCanceledContext(t *testing.T) {
	s := newTestFileStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	todo := sampleTodo("", "never")
	assert.ErrorIs(t, s.Create(ctx, &todo), context.Canceled)

	todos, err := s.Load()
	require.NoError(t, err)
	assert.Empty(t, todos)
}

func TestConcurrentCreatesAreNotLost(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()

	const n = 40
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			todo := sampleTodo("", fmt.Sprintf("item %d", i))
			assert.NoError(t, s.Create(ctx, &todo))
		}(i)
	}
	wg.Wait()

	todos, err := s.GetAll(ctx)
	require.NoError(t, err)
	assert.Len(t, todos, n)

	data, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.True(t, json.Valid(data))
}

func TestHealth(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "a")}))

	stats := s.Health()
	assert.Equal(t, "up", stats["status"])
	assert.Equal(t, "1", stats["items"])
	assert.Equal(t, s.Path(), stats["path"])
}

func TestUpdate_ApplyErrorWritesNothing(t *testing.T) {
	s := newTestFileStore(t)
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "a")}))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	rejected := errors.New("rejected")
	_, err = s.Update(context.Background(), "x", func(todo *domain.Todo) error {
		todo.Text = "changed"
		return rejected
	})
	assert.ErrorIs(t, err, rejected)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)
}

func TestWriteFailureKeepsPreviousFile(t *testing.T) {
	s := newTestFileStore(t)
	ctx := context.Background()
	require.NoError(t, s.Save([]domain.Todo{sampleTodo("x", "a"), sampleTodo("y", "b")}))
	before, err := os.ReadFile(s.Path())
	require.NoError(t, err)

	diskFull := errors.New("no space left on device")
	s.writeFile = func(string, []byte) error { return diskFull }

	todo := sampleTodo("", "never stored")
	assert.ErrorIs(t, s.Create(ctx, &todo), diskFull)
	_, err = s.Update(ctx, "x", func(todo *domain.Todo) error {
		todo.Done = true
		return nil
	})
	assert.ErrorIs(t, err, diskFull)
	assert.ErrorIs(t, s.Delete(ctx, "y"), diskFull)

	after, err := os.ReadFile(s.Path())
	require.NoError(t, err)
	assert.Equal(t, before, after)

	todos, err := s.GetAll(ctx)
	require.NoError(t, err)
	require.Len(t, todos, 2)
	assert.False(t, todos[0].Done)
}

func TestWriteFileAtomic_FailedRenameLeavesNoTemp(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "occupied")
	require.NoError(t, os.MkdirAll(filepath.Join(target, "child"), 0o755))

	err := writeFileAtomic(target, []byte("[]"))
	require.Error(t, err)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "occupied", entries[0].Name())
	assert.DirExists(t, filepath.Join(target, "child"))
}
