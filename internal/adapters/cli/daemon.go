package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/planfab/planfab/internal/adapters/daemon"
	"github.com/planfab/planfab/internal/config"
	"github.com/planfab/planfab/internal/core/services"
	"github.com/spf13/cobra"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Manage the scheduling daemon",
	Long:  `Start, stop and inspect the background scheduling daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the planfab daemon",
	Long: `Start the planfab background daemon.

The daemon owns the scheduling engine: it loads committed schedules into
per-machine queues and serves scheduling requests over a unix socket.`,
	RunE: runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the planfab daemon",
	Long:  `Gracefully stop the running planfab daemon.`,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	RunE:  runDaemonStatus,
}

func init() {
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
}

// newDaemonClient creates a new daemon client connected to the default socket.
func newDaemonClient() (*daemon.Client, error) {
	planfabDir, err := getPlanfabDir()
	if err != nil {
		return nil, err
	}

	client, err := daemon.NewClient(planfabDir)
	if err != nil {
		return nil, err
	}

	if err := client.Connect(); err != nil {
		return nil, err
	}

	return client, nil
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	planfabDir, err := ensurePlanfabDir()
	if err != nil {
		return err
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	daemonConfig := daemon.DefaultConfig(planfabDir)
	if cfg.Core.DataDir != "" {
		daemonConfig.DataDir = cfg.Core.DataDir
	}
	if cfg.Daemon.SocketPath != "" {
		daemonConfig.SocketPath = cfg.Daemon.SocketPath
	}
	if cfg.Daemon.PIDFile != "" {
		daemonConfig.PIDFile = cfg.Daemon.PIDFile
	}
	if cfg.Daemon.ShutdownTimeout > 0 {
		daemonConfig.ShutdownTimeout = cfg.Daemon.ShutdownTimeout
	}
	daemonConfig.WebhookURL = cfg.Notify.WebhookURL
	daemonConfig.WebhookHeaders = cfg.Notify.WebhookHeaders

	// Check if already running
	if _, err := os.Stat(daemonConfig.SocketPath); err == nil {
		return fmt.Errorf("daemon already running (socket exists: %s)", daemonConfig.SocketPath)
	}

	logLevel := cfg.Core.LogLevel
	if verbose {
		logLevel = "debug"
	}
	logger := services.NewSlogLogger(logLevel, cfg.Core.LogJSON)

	server, err := daemon.NewServer(daemonConfig, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	fmt.Printf("planfab daemon starting\n")
	fmt.Printf("  Socket: %s\n", daemonConfig.SocketPath)
	fmt.Printf("  PID: %d\n", os.Getpid())
	fmt.Println("  Press Ctrl+C to stop")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		if err := server.Start(ctx); err != nil {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		fmt.Println("\nShutting down...")
	case err := <-errCh:
		fmt.Printf("\nServer error: %v\n", err)
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), daemonConfig.ShutdownTimeout)
	defer cancel()

	_ = server.Stop(shutdownCtx)

	fmt.Println("✓ Daemon stopped")
	return nil
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	planfabDir, err := getPlanfabDir()
	if err != nil {
		return err
	}

	pidFile := filepath.Join(planfabDir, "planfab.pid")
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return fmt.Errorf("daemon not running (no PID file)")
	}

	var pid int
	if _, err := fmt.Sscanf(string(data), "%d", &pid); err != nil {
		return fmt.Errorf("invalid PID file")
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		return fmt.Errorf("process not found: %w", err)
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		return fmt.Errorf("failed to stop daemon: %w", err)
	}

	fmt.Printf("✓ Sent stop signal to daemon (PID: %d)\n", pid)
	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	client, err := newDaemonClient()
	if err != nil {
		fmt.Println("⭘ Daemon is not running")
		return nil
	}
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	status, err := client.Status(ctx)
	if err != nil {
		return fmt.Errorf("failed to query daemon: %w", err)
	}

	fmt.Println("● Daemon is running")
	if startedAt, ok := status["started_at"].(string); ok {
		fmt.Printf("  Started: %s\n", startedAt)
	}
	if uptime, ok := status["uptime"].(string); ok {
		fmt.Printf("  Uptime:  %s\n", uptime)
	}
	return nil
}
