package store

import (
	"context"
	"io/fs"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joescharf/taskboard/internal/config"
	"github.com/joescharf/taskboard/internal/validate"
)

func setupTestStore(t *testing.T) (*FileStore, config.Paths) {
	t.Helper()
	dir := t.TempDir()
	paths, err := config.NewPaths(filepath.Join(dir, "data"), filepath.Join(dir, "tasks"))
	require.NoError(t, err)
	require.NoError(t, os.MkdirAll(paths.DataDir, 0o755))
	return NewFileStore(paths), paths
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestTasks_MissingFileIsEmpty(t *testing.T) {
	s, _ := setupTestStore(t)

	tf, err := s.Tasks(context.Background())
	require.NoError(t, err)
	assert.Empty(t, tf.Tasks)
	assert.NotNil(t, tf.Tasks)
	assert.Equal(t, 1, tf.NextID)
}

func TestTasks_SchemaViolation(t *testing.T) {
	s, paths := setupTestStore(t)
	writeFile(t, paths.TasksFile(), `{"config":{},"next_id":1,"tasks":[]}`)

	_, err := s.Tasks(context.Background())
	require.Error(t, err)
	assert.True(t, validate.IsSchemaViolation(err))
}

func TestRepos(t *testing.T) {
	s, paths := setupTestStore(t)

	rf, err := s.Repos(context.Background())
	require.NoError(t, err)
	assert.Empty(t, rf.Repositories)

	writeFile(t, paths.ReposFile(), `{"repositories":[{"name":"alpha","path":"/src/alpha"}]}`)
	rf, err = s.Repos(context.Background())
	require.NoError(t, err)
	require.Len(t, rf.Repositories, 1)
	assert.Equal(t, "/src/alpha", rf.Repositories[0].Path)
}

func TestTaskLogAndSpec(t *testing.T) {
	s, paths := setupTestStore(t)
	ctx := context.Background()

	_, err := s.TaskLog(ctx, 3)
	assert.ErrorIs(t, err, fs.ErrNotExist)
	_, err = s.TaskSpec(ctx, 3)
	assert.ErrorIs(t, err, fs.ErrNotExist)

	writeFile(t, paths.LogFile(3), "{\"type\":\"user\"}\n")
	writeFile(t, paths.SpecFile(3), "# Spec\n")

	log, err := s.TaskLog(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "{\"type\":\"user\"}\n", log)

	spec, err := s.TaskSpec(ctx, 3)
	require.NoError(t, err)
	assert.Equal(t, "# Spec\n", spec)
}

func TestStudent(t *testing.T) {
	s, paths := setupTestStore(t)
	ctx := context.Background()

	_, err := s.Student(ctx, "ada")
	assert.ErrorIs(t, err, fs.ErrNotExist)

	writeFile(t, paths.StudentFile("ada"), `{"name":"Ada","role":"backend"}`)
	raw, err := s.Student(ctx, "Ada")
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":"Ada","role":"backend"}`, string(raw))

	_, err = s.Student(ctx, "../tasks")
	assert.ErrorIs(t, err, ErrInvalidName)

	writeFile(t, paths.StudentFile("bob"), `{"name":`)
	_, err = s.Student(ctx, "bob")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "malformed JSON")
}

func TestReadFile_CancelledContext(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := s.TaskLog(ctx, 1)
	assert.ErrorIs(t, err, context.Canceled)
}
