package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/joescharf/taskboard/internal/board"
	"github.com/joescharf/taskboard/internal/models"
	"github.com/joescharf/taskboard/internal/store"
	"github.com/joescharf/taskboard/internal/transcript"
)

// DefaultConversationLimit caps the turns returned by
// taskboard_task_conversation when no limit is given.
const DefaultConversationLimit = 50

// Server wraps the read-only task data and exposes it as MCP tools.
type Server struct {
	store   store.Store
	version string
}

// NewServer creates the MCP server wrapper.
func NewServer(s store.Store, version string) *Server {
	if version == "" {
		version = "dev"
	}
	return &Server{store: s, version: version}
}

// MCPServer returns a configured mcp-go server with all tools registered.
func (s *Server) MCPServer() *server.MCPServer {
	srv := server.NewMCPServer("taskboard", s.version, server.WithToolCapabilities(true))

	srv.AddTool(s.listTasksTool())
	srv.AddTool(s.boardSummaryTool())
	srv.AddTool(s.listReposTool())
	srv.AddTool(s.taskSpecTool())
	srv.AddTool(s.taskConversationTool())

	return srv
}

// ServeStdio starts the stdio transport, blocking until ctx is cancelled.
func (s *Server) ServeStdio(ctx context.Context) error {
	srv := s.MCPServer()
	stdioServer := server.NewStdioServer(srv)
	return stdioServer.Listen(ctx, os.Stdin, os.Stdout)
}

// ---------------------------------------------------------------------------
// Tool definitions and handlers
// ---------------------------------------------------------------------------

// taskboard_list_tasks
func (s *Server) listTasksTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskboard_list_tasks",
		mcp.WithDescription("List tasks on the board. Returns a JSON array of tasks with id, title, repo, status, branch and timestamps."),
		mcp.WithString("status",
			mcp.Description("Filter by status"),
			mcp.Enum("todo", "in_progress", "completed", "failed"),
		),
	)
	return tool, s.handleListTasks
}

func (s *Server) handleListTasks(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tf, err := s.store.Tasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read tasks: %v", err)), nil
	}

	status := models.TaskStatus(request.GetString("status", ""))
	out := make([]models.Task, 0, len(tf.Tasks))
	for _, t := range tf.Tasks {
		if status != "" && t.Status != status {
			continue
		}
		out = append(out, t)
	}
	return jsonResult(out)
}

// taskboard_board_summary
func (s *Server) boardSummaryTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskboard_board_summary",
		mcp.WithDescription("Summarize the board: task counts per status, max parallel tasks and free agent slots."),
	)
	return tool, s.handleBoardSummary
}

func (s *Server) handleBoardSummary(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	tf, err := s.store.Tasks(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read tasks: %v", err)), nil
	}
	return jsonResult(board.Summarize(tf))
}

// taskboard_list_repos
func (s *Server) listReposTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskboard_list_repos",
		mcp.WithDescription("List repositories tasks can be scheduled against. Returns a JSON array of {name, path}."),
	)
	return tool, s.handleListRepos
}

func (s *Server) handleListRepos(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	rf, err := s.store.Repos(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read repos: %v", err)), nil
	}
	return jsonResult(rf.Repositories)
}

// taskboard_task_spec
func (s *Server) taskSpecTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskboard_task_spec",
		mcp.WithDescription("Return the markdown specification written for a task."),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
	)
	return tool, s.handleTaskSpec
}

func (s *Server) handleTaskSpec(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}

	spec, err := s.store.TaskSpec(ctx, id)
	if errors.Is(err, fs.ErrNotExist) {
		return mcp.NewToolResultError(fmt.Sprintf("no specification for task %d", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read spec: %v", err)), nil
	}
	return mcp.NewToolResultText(spec), nil
}

// taskboard_task_conversation
func (s *Server) taskConversationTool() (mcp.Tool, server.ToolHandlerFunc) {
	tool := mcp.NewTool("taskboard_task_conversation",
		mcp.WithDescription("Return the most recent conversation turns of a task's agent log as JSON, progress records excluded."),
		mcp.WithNumber("task_id", mcp.Required(), mcp.Description("Task ID")),
		mcp.WithNumber("limit", mcp.Description("Maximum number of turns, newest kept (default 50, 0 for all)")),
	)
	return tool, s.handleTaskConversation
}

func (s *Server) handleTaskConversation(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := request.RequireInt("task_id")
	if err != nil {
		return mcp.NewToolResultError("missing required parameter: task_id"), nil
	}
	limit := request.GetInt("limit", DefaultConversationLimit)
	if limit < 0 {
		return mcp.NewToolResultError("limit must not be negative"), nil
	}

	text, err := s.store.TaskLog(ctx, id)
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return mcp.NewToolResultError(fmt.Sprintf("failed to read log: %v", err)), nil
	}

	turns := transcript.Conversation(text)
	if limit > 0 && len(turns) > limit {
		turns = turns[len(turns)-limit:]
	}
	return jsonResult(turns)
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("failed to marshal result: %v", err)), nil
	}
	return mcp.NewToolResultText(string(data)), nil
}
