// Package main is the CLI entry point for notifmon.
package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/eliteGoblin/focusd/notif_mon/internal/config"
	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/policy"
)

var (
	// Version info (set via ldflags)
	Version   = "0.1.0"
	Commit    = "dev"
	BuildTime = "unknown"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "notifmon",
	Short: "Notification monitor - silences apps you choose",
	Long: `notifmon keeps a per-app notification policy and runs a listener that
withdraws notifications from apps you disabled as soon as they are posted.

Apps are the launchable desktop applications on this machine. Use "list" to
find them, "disable" to silence one and "start" to run the listener.`,
	Version:      Version,
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Long:  `Prints version, commit, and build time. Use --json for machine-readable output.`,
	Run:   runVersion,
}

var (
	dataDirFlag string
	configPath  string
	verbose     bool
	jsonOutput  bool
)

func init() {
	rootCmd.PersistentFlags().StringVar(&dataDirFlag, "data-dir", "", "Data directory (default ~/.notifmon, /var/lib/notifmon as root)")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (default <data-dir>/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Verbose console logging")
	versionCmd.Flags().BoolVar(&jsonOutput, "json", false, "Output version info as JSON")

	rootCmd.AddCommand(versionCmd)
}

// loadConfig applies the --data-dir and --config flags on top of config.Load.
func loadConfig() (*config.Config, error) {
	return config.Load(config.Options{
		File:     configPath,
		DataDir:  dataDirFlag,
		EnvFiles: []string{".env"},
	})
}

// createLogger builds the daemon's file logger.
func createLogger(cfg *config.Config) *zap.Logger {
	level, _ := cfg.ZapLevel()

	logPath := cfg.LogFile()
	_ = os.MkdirAll(filepath.Dir(logPath), 0700)

	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	zc.OutputPaths = []string{logPath}
	zc.ErrorOutputPaths = []string{logPath}
	zc.EncoderConfig.TimeKey = "time"
	zc.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := zc.Build()
	if err != nil {
		// Fallback to stderr if file logging fails
		logger, _ = zap.NewProduction()
	}
	return logger
}

// newCLILogger logs to the console; quiet unless --verbose.
func newCLILogger() *zap.Logger {
	zc := zap.NewDevelopmentConfig()
	zc.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if verbose {
		zc.Level = zap.NewAtomicLevelAt(zapcore.DebugLevel)
	}
	logger, err := zc.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

// session is the state shared by commands that touch preferences.
type session struct {
	cfg    *config.Config
	logger *zap.Logger
	prefs  domain.PreferenceStore
	store  *policy.Store
}

func openSession() (*session, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	logger := newCLILogger()

	prefs, err := cfg.OpenPreferenceStore()
	if err != nil {
		_ = logger.Sync()
		return nil, fmt.Errorf("failed to open preferences: %w", err)
	}

	return &session{
		cfg:    cfg,
		logger: logger,
		prefs:  prefs,
		store:  policy.NewStore(prefs, logger),
	}, nil
}

func (s *session) Close() {
	if err := s.prefs.Close(); err != nil {
		s.logger.Warn("failed to close preferences", zap.Error(err))
	}
	_ = s.logger.Sync()
}

type versionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit"`
	BuildTime string `json:"build_time"`
}

func runVersion(cmd *cobra.Command, args []string) {
	out := cmd.OutOrStdout()
	if jsonOutput {
		_ = json.NewEncoder(out).Encode(versionInfo{Version: Version, Commit: Commit, BuildTime: BuildTime})
		return
	}
	fmt.Fprintf(out, "notifmon %s (commit: %s, built: %s)\n", Version, Commit, BuildTime)
}
