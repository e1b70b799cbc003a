// Package config holds the explicit file-layout configuration shared by the
// server, the MCP tools and the CLI. It is built once at startup and passed
// into constructors; nothing in taskboard resolves paths from globals.
package config

import (
	"fmt"
	"path/filepath"
	"strconv"
)

// File names inside the data and tasks directories.
const (
	TasksFileName = "tasks.json"
	ReposFileName = "repos.json"
	LogFileName   = "agent.log"
	SpecFileName  = "spec.md"
	StudentsDir   = "students"
)

// Paths locates every file taskboard observes. The files are owned by an
// external writer; taskboard only reads them.
type Paths struct {
	DataDir  string // tasks.json, repos.json, students/
	TasksDir string // <id>/agent.log, <id>/spec.md
}

// NewPaths returns Paths with both directories made absolute.
func NewPaths(dataDir, tasksDir string) (Paths, error) {
	d, err := filepath.Abs(dataDir)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve data dir: %w", err)
	}
	t, err := filepath.Abs(tasksDir)
	if err != nil {
		return Paths{}, fmt.Errorf("resolve tasks dir: %w", err)
	}
	return Paths{DataDir: d, TasksDir: t}, nil
}

// TasksFile returns the path of the task registry file.
func (p Paths) TasksFile() string { return filepath.Join(p.DataDir, TasksFileName) }

// ReposFile returns the path of the repository list file.
func (p Paths) ReposFile() string { return filepath.Join(p.DataDir, ReposFileName) }

// TaskDir returns the per-task working directory.
func (p Paths) TaskDir(taskID int) string {
	return filepath.Join(p.TasksDir, strconv.Itoa(taskID))
}

// LogFile returns the agent transcript for a task.
func (p Paths) LogFile(taskID int) string { return filepath.Join(p.TaskDir(taskID), LogFileName) }

// SpecFile returns the specification document for a task.
func (p Paths) SpecFile(taskID int) string { return filepath.Join(p.TaskDir(taskID), SpecFileName) }

// StudentFile returns the profile file for a student. The caller is
// responsible for rejecting names that are not a single path element.
func (p Paths) StudentFile(name string) string {
	return filepath.Join(p.DataDir, StudentsDir, name+".json")
}
