package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os/signal"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/taskboard/internal/output"
	"github.com/joescharf/taskboard/internal/store"
	"github.com/joescharf/taskboard/internal/transcript"
	"github.com/joescharf/taskboard/internal/watch"
)

const previewLen = 160

var (
	logsRaw    bool
	logsFollow bool
)

var logsCmd = &cobra.Command{
	Use:   "logs <task-id>",
	Short: "Print a task's agent conversation",
	Long: `Print the conversation recorded in a task's agent log, one turn per
entry with tool calls and results summarized. Progress and heartbeat
records are hidden unless --raw is given. With --follow the log is
watched and new turns are printed as the agent writes them.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		id, err := strconv.Atoi(args[0])
		if err != nil || id < 0 {
			return fmt.Errorf("invalid task id %q", args[0])
		}
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return logsRun(ctx, id)
	},
}

func init() {
	logsCmd.Flags().BoolVar(&logsRaw, "raw", false, "Include progress and heartbeat records")
	logsCmd.Flags().BoolVarP(&logsFollow, "follow", "f", false, "Keep printing new turns as the log grows")
	rootCmd.AddCommand(logsCmd)
}

func logsRun(ctx context.Context, id int) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	r := &turnPrinter{w: ui.Out, raw: logsRaw}

	if !logsFollow {
		text, err := readLog(ctx, s, id)
		if err != nil {
			return err
		}
		if text == "" {
			ui.Info("No logs yet for task %d", id)
			return nil
		}
		r.render(text)
		return nil
	}

	reg, err := watch.NewRegistry(watch.Options{
		RetryInterval: viper.GetDuration("watch.retry_interval"),
		Logger:        newLogger(ui.ErrOut),
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = reg.Close() }()

	sub, err := reg.Subscribe(s.Paths().LogFile(id))
	if err != nil {
		return err
	}
	defer sub.Close()

	ui.VerboseLog("Following %s", sub.Path)
	for {
		text, err := readLog(ctx, s, id)
		if err != nil && ctx.Err() == nil {
			ui.Warning("read log: %v", err)
		}
		r.render(text)

		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-sub.C():
			if !ok {
				return nil
			}
		}
	}
}

func readLog(ctx context.Context, s store.Store, id int) (string, error) {
	text, err := s.TaskLog(ctx, id)
	if errors.Is(err, fs.ErrNotExist) {
		return "", nil
	}
	return text, err
}

// turnPrinter prints the turns of a log it has not printed yet. The log is
// append-only; if it shrinks it was replaced and is printed from the top.
type turnPrinter struct {
	w       io.Writer
	raw     bool
	printed int
}

func (p *turnPrinter) render(text string) {
	var turns []transcript.Turn
	if p.raw {
		turns = transcript.AllTurns(text)
	} else {
		turns = transcript.Conversation(text)
	}
	if len(turns) < p.printed {
		p.printed = 0
	}
	for _, t := range turns[p.printed:] {
		printTurn(p.w, t)
	}
	p.printed = len(turns)
}

func printTurn(w io.Writer, t transcript.Turn) {
	header := fmt.Sprintf("%s %s", output.Faint(fmt.Sprintf("#%d", t.Line)), output.RoleColor(string(t.Role)))
	if ts := t.Meta("timestamp"); ts != "" {
		if at, err := time.Parse(time.RFC3339Nano, ts); err == nil {
			ts = at.Local().Format("15:04:05")
		}
		header += " " + output.Faint(ts)
	}
	fmt.Fprintln(w, header)

	for _, b := range t.Blocks {
		switch b := b.(type) {
		case transcript.TextBlock:
			for line := range strings.Lines(b.Text) {
				fmt.Fprintf(w, "  %s", line)
			}
			if !strings.HasSuffix(b.Text, "\n") {
				fmt.Fprintln(w)
			}
		case transcript.ToolUseBlock:
			fmt.Fprintf(w, "  %s %s %s\n", output.Cyan("→"), b.Name, preview(string(b.Input)))
		case transcript.ToolResultBlock:
			mark := output.Green("←")
			if b.IsError {
				mark = output.Red("←")
			}
			fmt.Fprintf(w, "  %s %s\n", mark, preview(b.Text()))
		case transcript.OtherBlock:
			kind := b.Type
			if kind == "" {
				kind = string(transcript.KindOther)
			}
			fmt.Fprintf(w, "  %s\n", output.Faint("["+kind+"]"))
		}
	}
}

// preview flattens s to one line of at most previewLen runes.
func preview(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if r := []rune(s); len(r) > previewLen {
		return string(r[:previewLen]) + "..."
	}
	return s
}
