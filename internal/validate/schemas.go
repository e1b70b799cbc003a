package validate

import (
	"github.com/google/jsonschema-go/jsonschema"

	"github.com/joescharf/taskboard/internal/models"
)

func ptr[T any](v T) *T { return &v }

func str() *jsonschema.Schema { return &jsonschema.Schema{Type: "string"} }

func integer() *jsonschema.Schema { return &jsonschema.Schema{Type: "integer"} }

// nullableString must be present but may be null.
func nullableString() *jsonschema.Schema {
	return &jsonschema.Schema{Types: []string{"string", "null"}}
}

func enum[T ~string](values ...T) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = string(v)
	}
	return out
}

// object builds a closed-key-set object schema where every listed property is
// required. Unknown keys are tolerated and dropped on decode.
func object(props map[string]*jsonschema.Schema) *jsonschema.Schema {
	required := make([]string, 0, len(props))
	for k := range props {
		required = append(required, k)
	}
	return &jsonschema.Schema{
		Type:       "object",
		Properties: props,
		Required:   required,
	}
}

func taskSchema() *jsonschema.Schema {
	return object(map[string]*jsonschema.Schema{
		"id":            integer(),
		"repo":          str(),
		"repo_path":     str(),
		"spec_file":     str(),
		"log_file":      str(),
		"title":         str(),
		"status":        {Type: "string", Enum: enum(models.TaskStatuses...)},
		"branch":        nullableString(),
		"agent_id":      nullableString(),
		"worktree_path": nullableString(),
		"merge_status": {
			AnyOf: []*jsonschema.Schema{
				{Type: "null"},
				{Type: "string", Enum: enum(models.MergeStatusWaiting, models.MergeStatusMerged, models.MergeStatusConflict)},
			},
		},
		"created_at":   str(),
		"assigned_at":  nullableString(),
		"completed_at": nullableString(),
		"error":        nullableString(),
	})
}

func tasksFileSchema() *jsonschema.Schema {
	return object(map[string]*jsonschema.Schema{
		"config": object(map[string]*jsonschema.Schema{
			"max_parallel_tasks": {Type: "integer", Minimum: ptr(0.0)},
		}),
		"next_id": integer(),
		"tasks":   {Type: "array", Items: taskSchema()},
	})
}

func reposFileSchema() *jsonschema.Schema {
	return object(map[string]*jsonschema.Schema{
		"repositories": {
			Type: "array",
			Items: object(map[string]*jsonschema.Schema{
				"name": str(),
				"path": str(),
			}),
		},
	})
}
