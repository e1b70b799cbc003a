package cmd

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/taskboard/internal/board"
	"github.com/joescharf/taskboard/internal/models"
	"github.com/joescharf/taskboard/internal/output"
)

var statusFilter string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the task board",
	Long: `Show every task with its status, branch and merge state, followed
by a per-status summary and the number of free agent slots.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return statusRun()
	},
}

func init() {
	statusCmd.Flags().StringVar(&statusFilter, "status", "", "Only show tasks with this status (todo, in_progress, completed, failed)")
	rootCmd.AddCommand(statusCmd)
}

func statusRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	tf, err := s.Tasks(context.Background())
	if err != nil {
		return err
	}

	if len(tf.Tasks) == 0 {
		ui.Info("No tasks yet. The scheduler writes them to %s", s.Paths().TasksFile())
		return nil
	}

	table := ui.Table([]string{"ID", "Title", "Repo", "Status", "Branch", "Merge"})
	shown := 0
	for _, t := range tf.Tasks {
		if statusFilter != "" && string(t.Status) != statusFilter {
			continue
		}
		table.Append([]string{
			strconv.Itoa(t.ID),
			t.Title,
			t.Repo,
			output.StatusColor(string(t.Status)),
			deref(t.Branch),
			output.StatusColor(string(derefMerge(t.MergeStatus))),
		})
		shown++
	}
	if shown > 0 {
		if err := table.Render(); err != nil {
			return err
		}
	} else {
		ui.Info("No %s tasks", statusFilter)
	}

	fmt.Fprintln(ui.Out)
	fmt.Fprintln(ui.Out, summaryLine(board.Summarize(tf)))
	return nil
}

// summaryLine renders counts in board column order plus free slots.
func summaryLine(sum *board.Summary) string {
	line := ""
	for _, st := range models.TaskStatuses {
		line += fmt.Sprintf("%s %d  ", output.StatusColor(string(st)), sum.Counts[st])
	}
	return line + "slots " + output.SlotsColor(sum.SlotsAvailable, sum.MaxParallelTasks)
}

func deref(s *string) string {
	if s == nil {
		return "-"
	}
	return *s
}

func derefMerge(m *models.MergeStatus) models.MergeStatus {
	if m == nil {
		return "-"
	}
	return *m
}
