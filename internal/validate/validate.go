// Package validate checks raw JSON documents against declared shapes before
// they are allowed to become typed values. A document either validates and
// decodes completely or yields an *Error; partial values never escape.
package validate

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/jsonschema-go/jsonschema"

	"github.com/joescharf/taskboard/internal/models"
)

// Error reports a document that does not match its shape.
type Error struct {
	Shape  string
	Reason string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Shape, e.Reason)
}

func (e *Error) Unwrap() error { return e.Err }

// IsSchemaViolation reports whether err is (or wraps) a validation failure.
func IsSchemaViolation(err error) bool {
	var ve *Error
	return errors.As(err, &ve)
}

// Shape binds a JSON schema to the Go type it decodes into.
type Shape[T any] struct {
	name     string
	resolved *jsonschema.Resolved
}

// NewShape resolves schema for repeated use.
func NewShape[T any](name string, schema *jsonschema.Schema) (*Shape[T], error) {
	rs, err := schema.Resolve(nil)
	if err != nil {
		return nil, fmt.Errorf("resolve %s schema: %w", name, err)
	}
	return &Shape[T]{name: name, resolved: rs}, nil
}

// MustShape is NewShape for package-level shapes built from literals.
func MustShape[T any](name string, schema *jsonschema.Schema) *Shape[T] {
	s, err := NewShape[T](name, schema)
	if err != nil {
		panic(err)
	}
	return s
}

// Name returns the human-readable shape name used in errors.
func (s *Shape[T]) Name() string { return s.name }

// Validate decodes data, checks it against the schema and returns the typed
// value. Any failure is returned as *Error.
func (s *Shape[T]) Validate(data []byte) (*T, error) {
	var instance any
	if err := json.Unmarshal(data, &instance); err != nil {
		return nil, &Error{Shape: s.name, Reason: "not valid JSON: " + err.Error(), Err: err}
	}
	if err := s.resolved.Validate(instance); err != nil {
		return nil, &Error{Shape: s.name, Reason: err.Error(), Err: err}
	}

	var out T
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, &Error{Shape: s.name, Reason: "decode: " + err.Error(), Err: err}
	}
	return &out, nil
}

// Shapes for the metadata files the board depends on.
var (
	TasksFile = MustShape[models.TasksFile]("tasks file", tasksFileSchema())
	ReposFile = MustShape[models.ReposFile]("repos file", reposFileSchema())
)

// Tasks validates a tasks file document.
func Tasks(data []byte) (*models.TasksFile, error) { return TasksFile.Validate(data) }

// Repos validates a repos file document.
func Repos(data []byte) (*models.ReposFile, error) { return ReposFile.Validate(data) }
