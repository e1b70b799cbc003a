package cmd

import (
	"context"
	"os/signal"

	"github.com/spf13/cobra"

	"github.com/joescharf/taskboard/internal/mcp"
)

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Start MCP stdio server for agent integration",
	Long: `Start an MCP (Model Context Protocol) server on stdio.

This lets a coding agent read the board natively: task lists, repository
lists, task specs and conversation transcripts. Configure it with:

  {
    "mcpServers": {
      "taskboard": { "command": "taskboard", "args": ["mcp"] }
    }
  }

Available tools: taskboard_list_tasks, taskboard_board_summary,
taskboard_list_repos, taskboard_task_spec, taskboard_task_conversation`,
	RunE: func(cmd *cobra.Command, args []string) error {
		s, err := getStore()
		if err != nil {
			return err
		}
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return mcp.NewServer(s, buildVersion).ServeStdio(ctx)
	},
}

func init() {
	rootCmd.AddCommand(mcpCmd)
}
