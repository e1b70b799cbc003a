package cmd

import (
	"context"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/joescharf/taskboard/internal/git"
	"github.com/joescharf/taskboard/internal/output"
)

var reposNoGit bool

var reposCmd = &cobra.Command{
	Use:   "repos",
	Short: "List repositories tasks can target",
	Long: `List the registered repositories with their current branch, working
tree state and number of worktrees. Use --no-git to skip inspecting them.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return reposRun(git.NewClient())
	},
}

func init() {
	reposCmd.Flags().BoolVar(&reposNoGit, "no-git", false, "Do not query git for branch and worktree state")
	rootCmd.AddCommand(reposCmd)
}

func reposRun(gc git.Client) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	rf, err := s.Repos(ctx)
	if err != nil {
		return err
	}

	if len(rf.Repositories) == 0 {
		ui.Info("No repositories registered in %s", s.Paths().ReposFile())
		return nil
	}

	if reposNoGit || gc == nil {
		table := ui.Table([]string{"Name", "Path"})
		for _, r := range rf.Repositories {
			table.Append([]string{r.Name, r.Path})
		}
		return table.Render()
	}

	table := ui.Table([]string{"Name", "Path", "Branch", "State", "Worktrees", "Last Commit"})
	for _, r := range rf.Repositories {
		st, err := git.Inspect(ctx, gc, r.Path)
		if err != nil {
			ui.VerboseLog("%s: %v", r.Name, err)
			table.Append([]string{r.Name, r.Path, "-", output.Red("unavailable"), "-", "-"})
			continue
		}
		state := output.Green("clean")
		if st.Dirty {
			state = output.Yellow("dirty")
		}
		last := "-"
		if !st.LastCommitDate.IsZero() {
			last = st.LastCommitDate.Format("2006-01-02 15:04")
		}
		table.Append([]string{r.Name, r.Path, st.Branch, state, strconv.Itoa(len(st.Worktrees)), last})
	}
	return table.Render()
}
