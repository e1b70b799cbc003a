package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"regexp"
	"strings"

	"github.com/joescharf/taskboard/internal/config"
	"github.com/joescharf/taskboard/internal/models"
	"github.com/joescharf/taskboard/internal/validate"
)

// ErrInvalidName is returned for student names that are not a plain slug.
var ErrInvalidName = errors.New("invalid name")

var studentName = regexp.MustCompile(`^[a-z0-9_-]+$`)

// FileStore implements Store on top of the on-disk layout described by
// config.Paths. It holds no state besides the paths and never writes.
type FileStore struct {
	paths config.Paths
}

// NewFileStore creates a FileStore for paths.
func NewFileStore(paths config.Paths) *FileStore {
	return &FileStore{paths: paths}
}

func (s *FileStore) Paths() config.Paths { return s.paths }

// Tasks reads and validates the tasks file. A missing file yields an empty
// registry; a file that fails validation yields a *validate.Error.
func (s *FileStore) Tasks(ctx context.Context) (*models.TasksFile, error) {
	data, err := readFile(ctx, s.paths.TasksFile())
	if errors.Is(err, fs.ErrNotExist) {
		return models.EmptyTasksFile(), nil
	}
	if err != nil {
		return nil, err
	}
	return validate.Tasks(data)
}

// Repos reads and validates the repos file, with the same absence rule as Tasks.
func (s *FileStore) Repos(ctx context.Context) (*models.ReposFile, error) {
	data, err := readFile(ctx, s.paths.ReposFile())
	if errors.Is(err, fs.ErrNotExist) {
		return models.EmptyReposFile(), nil
	}
	if err != nil {
		return nil, err
	}
	return validate.Repos(data)
}

func (s *FileStore) TaskLog(ctx context.Context, taskID int) (string, error) {
	data, err := readFile(ctx, s.paths.LogFile(taskID))
	return string(data), err
}

func (s *FileStore) TaskSpec(ctx context.Context, taskID int) (string, error) {
	data, err := readFile(ctx, s.paths.SpecFile(taskID))
	return string(data), err
}

// Student returns the raw profile document for name. Names are lowercased
// and must be a slug so they cannot address files outside the students dir.
func (s *FileStore) Student(ctx context.Context, name string) (json.RawMessage, error) {
	name = strings.ToLower(name)
	if !studentName.MatchString(name) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidName, name)
	}
	data, err := readFile(ctx, s.paths.StudentFile(name))
	if err != nil {
		return nil, err
	}
	if !json.Valid(data) {
		return nil, fmt.Errorf("student %s: malformed JSON", name)
	}
	return json.RawMessage(data), nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}
