package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/joescharf/taskboard/internal/api"
	"github.com/joescharf/taskboard/internal/daemon"
	"github.com/joescharf/taskboard/internal/stream"
	"github.com/joescharf/taskboard/internal/watch"
)

const shutdownTimeout = 5 * time.Second

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the dashboard and its live streams",
	Long: `Start an HTTP server with the dashboard API, the live task and log
streams, and the embedded web page. It runs in the foreground; use
'taskboard serve start' to run it in the background.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(context.Background(), shutdownSignals()...)
		defer stop()
		return serveRun(ctx, newLogger(os.Stderr))
	},
}

var serveStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the server in the background",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStartRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the background server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether the background server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.AddCommand(serveStartCmd, serveStopCmd, serveStatusCmd)
	rootCmd.AddCommand(serveCmd)

	serveCmd.PersistentFlags().IntP("port", "p", 8080, "port to listen on")
	_ = viper.BindPFlag("port", serveCmd.PersistentFlags().Lookup("port"))
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "taskboard-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "taskboard-serve.log")
}

// serveRun serves until ctx is cancelled, then closes open streams before
// shutting the listener down so long-lived responses do not hold it open.
func serveRun(ctx context.Context, logger *slog.Logger) error {
	if err := checkConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	paths, err := newPaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	s, err := getStore()
	if err != nil {
		return err
	}

	reg, err := watch.NewRegistry(watch.Options{
		RetryInterval: viper.GetDuration("watch.retry_interval"),
		Logger:        logger,
	})
	if err != nil {
		return fmt.Errorf("start watcher: %w", err)
	}
	defer func() { _ = reg.Close() }()

	streams := stream.NewManager(reg, logger)
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", viper.GetInt("port")),
		Handler:           api.NewServer(s, streams, logger).Router(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("serving dashboard",
			"addr", "http://localhost"+srv.Addr,
			"data_dir", paths.DataDir,
			"tasks_dir", paths.TasksDir,
		)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("listen: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down", "streams", streams.Active())
	streams.Shutdown()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	releasePIDFile()
	return nil
}

// releasePIDFile removes the PID file when this process owns it.
func releasePIDFile() {
	pf := pidFile()
	if pid, err := pf.Read(); err == nil && pid == os.Getpid() {
		_ = pf.Remove()
	}
}

func serveStartRun() error {
	if err := checkConfig(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (PID %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logPath := serveLogPath()
	if err := os.MkdirAll(filepath.Dir(logPath), 0o755); err != nil {
		return fmt.Errorf("create state dir: %w", err)
	}
	logFile, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	paths, err := newPaths()
	if err != nil {
		return fmt.Errorf("resolve paths: %w", err)
	}
	args := []string{
		"serve",
		"--port", strconv.Itoa(viper.GetInt("port")),
		"--data-dir", paths.DataDir,
		"--tasks-dir", paths.TasksDir,
	}
	if cfg, _ := rootCmd.PersistentFlags().GetString("config"); cfg != "" {
		args = append(args, "--config", cfg)
	}
	if verbose {
		args = append(args, "--verbose")
	}

	child := exec.Command(exe, args...)
	child.Stdout = logFile
	child.Stderr = logFile
	detach(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	if err := pf.Acquire(child.Process.Pid); err != nil {
		_ = child.Process.Kill()
		return err
	}
	_ = child.Process.Release()

	ui.Success("Server started (PID %d) on port %d", child.Process.Pid, viper.GetInt("port"))
	ui.Info("Logs: %s", logPath)
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		if pid != 0 {
			_ = pf.Remove()
		}
		return fmt.Errorf("server not running")
	}

	graceful, force := stopSignals()
	if err := pf.Signal(graceful); err != nil {
		return fmt.Errorf("signal server: %w", err)
	}
	if !pf.WaitExit(shutdownTimeout, 100*time.Millisecond) {
		ui.Warning("Server did not exit after %s, killing", shutdownTimeout)
		_ = pf.Signal(force)
	}
	_ = pf.Remove()

	ui.Success("Server stopped (PID %d)", pid)
	return nil
}

func serveStatusRun() error {
	pid, running := pidFile().IsRunning()
	if !running {
		ui.Info("Server not running")
		return nil
	}
	ui.Success("Server running (PID %d)", pid)
	ui.Info("Logs: %s", serveLogPath())
	return nil
}
