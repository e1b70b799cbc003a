package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/taskboard/internal/config"
	"github.com/joescharf/taskboard/internal/output"
	"github.com/joescharf/taskboard/internal/store"
)

// Package-level shared dependencies, initialized in cobra.OnInitialize.
var (
	ui        *output.UI
	dataStore store.Store

	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "taskboard",
	Short: "Live dashboard for agent task runs",
	Long: `taskboard serves a live view of a task registry and the agent
transcripts written by an external scheduler. It never writes to the
files it watches: tasks, repositories, logs and specs are read on every
change and pushed to connected browsers.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	DisableAutoGenTag: true,
}

// Execute is the main entry point called from main.go.
func Execute(version, commit, date string) {
	buildVersion = version
	buildCommit = commit
	buildDate = date

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig, initDeps)

	rootCmd.RunE = func(cmd *cobra.Command, args []string) error {
		return rootRun(cmd)
	}

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose output")
	rootCmd.PersistentFlags().String("config", "", "Config file (default ~/.config/taskboard/config.yaml)")
	rootCmd.PersistentFlags().String("data-dir", "", "Directory holding tasks.json, repos.json and students/")
	rootCmd.PersistentFlags().String("tasks-dir", "", "Directory holding <id>/agent.log and <id>/spec.md")
	_ = viper.BindPFlag("data_dir", rootCmd.PersistentFlags().Lookup("data-dir"))
	_ = viper.BindPFlag("tasks_dir", rootCmd.PersistentFlags().Lookup("tasks-dir"))
}

func initConfig() {
	// If --config is explicitly set, use that file
	if cfgFile, _ := rootCmd.PersistentFlags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: cannot find home directory: %v\n", err)
			os.Exit(1)
		}

		configDir := filepath.Join(home, ".config", "taskboard")
		viper.AddConfigPath(configDir)
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
	}

	viper.SetEnvPrefix("TASKBOARD")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	home, _ := os.UserHomeDir()
	setDefaults(filepath.Join(home, ".config", "taskboard"))

	// Read config file if it exists (optional)
	_ = viper.ReadInConfig()
}

func setDefaults(stateDir string) {
	viper.SetDefault("state_dir", stateDir)
	viper.SetDefault("data_dir", "./data")
	viper.SetDefault("tasks_dir", "./tasks")
	viper.SetDefault("port", 8080)
	viper.SetDefault("watch.retry_interval", time.Second)
}

func initDeps() {
	ui = output.New()
	ui.Verbose = verbose
}

// rootRun handles `taskboard` with no subcommand: show the board if the
// data directory is readable, else help.
func rootRun(cmd *cobra.Command) error {
	if _, err := getStore(); err != nil {
		return cmd.Help()
	}
	return statusRun()
}

// newPaths resolves the data and tasks directories from configuration.
func newPaths() (config.Paths, error) {
	return config.NewPaths(viper.GetString("data_dir"), viper.GetString("tasks_dir"))
}

// getStore returns the shared store, initializing it on first call.
func getStore() (store.Store, error) {
	if dataStore != nil {
		return dataStore, nil
	}

	paths, err := newPaths()
	if err != nil {
		return nil, fmt.Errorf("resolve paths: %w", err)
	}
	dataStore = store.NewFileStore(paths)
	return dataStore, nil
}

// newLogger returns a text logger on w, at Debug level with --verbose.
func newLogger(w io.Writer) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}
