package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/config"
	"github.com/eliteGoblin/focusd/notif_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
	"github.com/eliteGoblin/focusd/notif_mon/internal/listener"
	"github.com/eliteGoblin/focusd/notif_mon/internal/metrics"
	"github.com/eliteGoblin/focusd/notif_mon/internal/policy"
)

// How long start waits for the daemon's first status record.
const startWait = 3 * time.Second

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the notification listener in the background",
	Long: `Starts the listener daemon detached from this terminal.
The daemon attaches to the session bus, withdraws notifications from disabled
apps, and reattaches automatically if the bus or notification server restarts.

Use "install" instead to have it start with every graphical session.`,
	RunE: runStart,
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show listener status",
	Long:  `Shows whether the listener daemon is running and attached, and whether it has permission to observe notifications.`,
	RunE:  runStatus,
}

// Hidden daemon command - used for self-exec when spawning the listener
var daemonCmd = &cobra.Command{
	Use:    "daemon",
	Hidden: true,
	RunE:   runDaemon,
}

func init() {
	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runStart(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	pm := infra.NewProcessManager()
	status := infra.NewStatusFile(cfg.DataDir)

	live, err := daemon.CheckLiveness(status, pm, cfg.Listener.HeartbeatInterval, time.Now())
	if err != nil {
		return err
	}
	if live.Running {
		fmt.Fprintf(out, "Listener already running (pid %d).\n", live.Status.PID)
		return nil
	}

	if err := os.MkdirAll(cfg.DataDir, 0700); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	if err := daemon.StartDaemon(cfg.DataDir, configPath); err != nil {
		return err
	}

	deadline := time.Now().Add(startWait)
	for time.Now().Before(deadline) {
		live, err = daemon.CheckLiveness(status, pm, cfg.Listener.HeartbeatInterval, time.Now())
		if err == nil && live.Running {
			fmt.Fprintf(out, "Listener started (pid %d).\n", live.Status.PID)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}

	fmt.Fprintf(out, "Listener launched; no status yet. Check %s\n", cfg.LogFile())
	return nil
}

func runDaemon(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := createLogger(cfg)
	defer func() { _ = logger.Sync() }()

	pm := infra.NewProcessManager()
	status := infra.NewStatusFile(cfg.DataDir)

	// Single instance per data directory
	live, err := daemon.CheckLiveness(status, pm, cfg.Listener.HeartbeatInterval, time.Now())
	if err != nil {
		logger.Warn("failed to check for running listener", zap.Error(err))
	} else if live.Running && live.Status.PID != pm.GetCurrentPID() {
		logger.Info("listener already running", zap.Int("pid", live.Status.PID))
		return fmt.Errorf("listener already running (pid %d)", live.Status.PID)
	}

	prefs, err := cfg.OpenPreferenceStore()
	if err != nil {
		logger.Error("failed to open preferences", zap.Error(err))
		return fmt.Errorf("failed to open preferences: %w", err)
	}
	defer prefs.Close()

	m := metrics.New()
	store := policy.NewStore(prefs, logger)
	host := infra.NewDBusHost(pm, logger)
	agent := listener.NewAgent(policy.NewEngine(store), host, m, logger)

	runner := daemon.NewRunner(runnerConfig(cfg), host, agent, status, pm, m, logger)

	// Set up graceful shutdown
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return runner.Run(ctx)
}

func runnerConfig(cfg *config.Config) daemon.RunnerConfig {
	return daemon.RunnerConfig{
		ReconnectInterval: cfg.Listener.ReconnectInterval,
		HeartbeatInterval: cfg.Listener.HeartbeatInterval,
		MetricsAddr:       cfg.Metrics.Addr,
		Version:           Version,
	}
}

func runStatus(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	pm := infra.NewProcessManager()
	status := infra.NewStatusFile(cfg.DataDir)
	permission := infra.NewDBusPermission(cfg.Listener.SettingsCommand)
	execMode := infra.DetectExecMode()

	fmt.Fprintln(out, "\n=== notifmon Status ===")

	live, err := daemon.CheckLiveness(status, pm, cfg.Listener.HeartbeatInterval, time.Now())
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "Listener: %s\n", describeLiveness(live))

	if live.Running && live.Status.LastHeartbeat > 0 {
		fmt.Fprintf(out, "Last heartbeat: %s ago\n", live.Status.HeartbeatAge(time.Now()).Round(time.Second))
	}
	if live.Connected() && live.Status.ConnectedAt > 0 {
		fmt.Fprintf(out, "Connected since: %s\n", time.Unix(live.Status.ConnectedAt, 0).Format(time.RFC3339))
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if err := permission.Check(ctx); err != nil {
		fmt.Fprintf(out, "Permission: not granted (%v)\n", err)
		fmt.Fprintln(out, permissionHint)
	} else {
		fmt.Fprintln(out, "Permission: granted")
	}

	service := infra.NewSystemdUserManager(execMode, cfg.DataDir)
	if service.IsInstalled() {
		fmt.Fprintf(out, "Auto-start: enabled (%s)\n", service.UnitPath())
	} else {
		fmt.Fprintln(out, "Auto-start: disabled")
	}

	fmt.Fprintf(out, "\nExecution mode: %s\n", execMode.Mode)
	fmt.Fprintf(out, "Data directory: %s\n", cfg.DataDir)
	fmt.Fprintf(out, "Preference store: %s\n", cfg.Store.Backend)
	fmt.Fprintln(out, "=======================")
	return nil
}

const permissionHint = `        Run "notifmon permission --request" to open notification settings.`

func describeLiveness(l daemon.Liveness) string {
	switch {
	case l.Status == nil || !l.Running:
		return `NOT RUNNING (run "notifmon start")`
	case l.Stale:
		return fmt.Sprintf("UNRESPONSIVE (pid %d, heartbeat stopped)", l.Status.PID)
	case l.Connected():
		return fmt.Sprintf("ACTIVE (pid %d)", l.Status.PID)
	default:
		return fmt.Sprintf("INACTIVE (pid %d, waiting for the notification host)", l.Status.PID)
	}
}
