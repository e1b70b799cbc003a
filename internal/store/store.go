package store

import (
	"context"
	"encoding/json"

	"github.com/joescharf/taskboard/internal/config"
	"github.com/joescharf/taskboard/internal/models"
)

// Store defines read access to the files the external scheduler writes.
// Missing documents are reported with an error wrapping fs.ErrNotExist,
// except for Tasks and Repos which return an empty document instead.
type Store interface {
	// Metadata (validated)
	Tasks(ctx context.Context) (*models.TasksFile, error)
	Repos(ctx context.Context) (*models.ReposFile, error)

	// Per-task documents
	TaskLog(ctx context.Context, taskID int) (string, error)
	TaskSpec(ctx context.Context, taskID int) (string, error)

	// Student profiles are passed through without a schema.
	Student(ctx context.Context, name string) (json.RawMessage, error)

	Paths() config.Paths
}
