// Package git inspects the repositories tasks run against. It only reads:
// the board never changes a repository.
package git

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"
)

// WorktreeInfo holds parsed worktree metadata from `git worktree list --porcelain`.
type WorktreeInfo struct {
	Path   string `json:"path"`
	Branch string `json:"branch"`
	HEAD   string `json:"head"`
}

// RepoState is a point-in-time summary of a repository.
type RepoState struct {
	Branch         string         `json:"branch"`
	Dirty          bool           `json:"dirty"`
	LastCommitDate time.Time      `json:"last_commit_date"`
	LastCommit     string         `json:"last_commit"`
	Worktrees      []WorktreeInfo `json:"worktrees"`
}

// Client defines the read-only git queries used by the board.
// All methods take a path parameter since tasks target many repos.
type Client interface {
	CurrentBranch(ctx context.Context, path string) (string, error)
	LastCommitDate(ctx context.Context, path string) (time.Time, error)
	LastCommitMessage(ctx context.Context, path string) (string, error)
	IsDirty(ctx context.Context, path string) (bool, error)
	WorktreeList(ctx context.Context, path string) ([]WorktreeInfo, error)
}

// RealClient implements Client by running the git binary.
type RealClient struct{}

// NewClient returns a new RealClient.
func NewClient() *RealClient {
	return &RealClient{}
}

func gitCmd(ctx context.Context, path string, args ...string) (string, error) {
	fullArgs := append([]string{"-C", path}, args...)
	out, err := exec.CommandContext(ctx, "git", fullArgs...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("git %s: %s", strings.Join(args, " "), strings.TrimSpace(string(exitErr.Stderr)))
		}
		return "", fmt.Errorf("git %s: %w", strings.Join(args, " "), err)
	}
	return strings.TrimSpace(string(out)), nil
}

func (c *RealClient) CurrentBranch(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "rev-parse", "--abbrev-ref", "HEAD")
}

func (c *RealClient) LastCommitDate(ctx context.Context, path string) (time.Time, error) {
	out, err := gitCmd(ctx, path, "log", "-1", "--format=%aI")
	if err != nil {
		return time.Time{}, err
	}
	return time.Parse(time.RFC3339, out)
}

func (c *RealClient) LastCommitMessage(ctx context.Context, path string) (string, error) {
	return gitCmd(ctx, path, "log", "-1", "--format=%s")
}

func (c *RealClient) IsDirty(ctx context.Context, path string) (bool, error) {
	out, err := gitCmd(ctx, path, "status", "--porcelain")
	if err != nil {
		return false, err
	}
	return out != "", nil
}

func (c *RealClient) WorktreeList(ctx context.Context, path string) ([]WorktreeInfo, error) {
	out, err := gitCmd(ctx, path, "worktree", "list", "--porcelain")
	if err != nil {
		return nil, err
	}
	return ParseWorktreeListPorcelain(out), nil
}

// Inspect gathers a RepoState. Only the branch lookup is required; a repo
// with no commits yet still reports its branch and dirtiness.
func Inspect(ctx context.Context, c Client, path string) (*RepoState, error) {
	branch, err := c.CurrentBranch(ctx, path)
	if err != nil {
		return nil, err
	}
	st := &RepoState{Branch: branch}
	st.Dirty, _ = c.IsDirty(ctx, path)
	st.LastCommitDate, _ = c.LastCommitDate(ctx, path)
	st.LastCommit, _ = c.LastCommitMessage(ctx, path)
	st.Worktrees, _ = c.WorktreeList(ctx, path)
	return st, nil
}

// ParseWorktreeListPorcelain parses the output of `git worktree list --porcelain`.
func ParseWorktreeListPorcelain(output string) []WorktreeInfo {
	var worktrees []WorktreeInfo
	var current WorktreeInfo

	for _, line := range strings.Split(output, "\n") {
		switch {
		case strings.HasPrefix(line, "worktree "):
			current.Path = strings.TrimPrefix(line, "worktree ")
		case strings.HasPrefix(line, "HEAD "):
			current.HEAD = strings.TrimPrefix(line, "HEAD ")
		case strings.HasPrefix(line, "branch "):
			branch := strings.TrimPrefix(line, "branch ")
			current.Branch = strings.TrimPrefix(branch, "refs/heads/")
		case line == "":
			if current.Path != "" {
				worktrees = append(worktrees, current)
				current = WorktreeInfo{}
			}
		}
	}
	if current.Path != "" {
		worktrees = append(worktrees, current)
	}
	return worktrees
}
