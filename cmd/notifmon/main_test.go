package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eliteGoblin/focusd/notif_mon/internal/config"
	"github.com/eliteGoblin/focusd/notif_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// testEnv isolates a command run: file-backed prefs in a temp data dir,
// desktop entries from a temp XDG dir, and no reachable session bus.
func testEnv(t *testing.T) (dataDir, appsDir string) {
	t.Helper()
	home := t.TempDir()
	dataDir = filepath.Join(home, "data")
	appsDir = filepath.Join(home, "share", "applications")
	require.NoError(t, os.MkdirAll(appsDir, 0755))

	t.Setenv("HOME", home)
	t.Setenv("SUDO_USER", "")
	t.Setenv("XDG_DATA_HOME", filepath.Join(home, "share"))
	t.Setenv("XDG_DATA_DIRS", filepath.Join(home, "none"))
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(home, "config"))
	t.Setenv("DBUS_SESSION_BUS_ADDRESS", "unix:path="+filepath.Join(home, "no-bus"))
	t.Setenv("NOTIFMON_STORE_BACKEND", config.BackendFile)
	return dataDir, appsDir
}

func writeDesktop(t *testing.T, dir, id, name string) {
	t.Helper()
	content := "[Desktop Entry]\nType=Application\nName=" + name + "\nExec=" + id + "\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, id+".desktop"), []byte(content), 0644))
}

// execute runs the root command with fresh flag state.
func execute(t *testing.T, args ...string) string {
	t.Helper()
	dataDirFlag, configPath, verbose, jsonOutput = "", "", false, false
	listQuery, listFavorites, requestPermission = "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.Execute(), out.String())
	return out.String()
}

// executeErr runs the root command and returns its error.
func executeErr(t *testing.T, args ...string) error {
	t.Helper()
	dataDirFlag, configPath, verbose, jsonOutput = "", "", false, false
	listQuery, listFavorites, requestPermission = "", false, false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})

	return rootCmd.Execute()
}

func TestVersion(t *testing.T) {
	out := execute(t, "version")
	assert.Equal(t, "notifmon "+Version+" (commit: "+Commit+", built: "+BuildTime+")\n", out)

	var info versionInfo
	require.NoError(t, json.Unmarshal([]byte(execute(t, "version", "--json")), &info))
	assert.Equal(t, versionInfo{Version: Version, Commit: Commit, BuildTime: BuildTime}, info)
}

func TestListEnableFavorite(t *testing.T) {
	dataDir, appsDir := testEnv(t)
	writeDesktop(t, appsDir, "alpha", "Alpha")
	writeDesktop(t, appsDir, "beta", "beta")
	writeDesktop(t, appsDir, "zeta", "Zeta Chat")

	out := execute(t, "list", "--data-dir", dataDir)
	assert.Contains(t, out, "Total apps: 3")
	assert.Less(t, strings.Index(out, "Alpha"), strings.Index(out, "beta"))
	assert.Less(t, strings.Index(out, "beta"), strings.Index(out, "Zeta Chat"))

	out = execute(t, "disable", "zeta", "--data-dir", dataDir)
	assert.Contains(t, out, "Notifications from zeta: silenced")
	assert.Contains(t, out, "Listener is not active")

	out = execute(t, "favorite", "zeta", "--data-dir", dataDir)
	assert.Contains(t, out, "zeta added to favorites")
	assert.Contains(t, out, "Favorite apps: 1")
	assert.Contains(t, out, "Zeta Chat")

	out = execute(t, "favorite", "zeta", "--data-dir", dataDir)
	assert.Contains(t, out, "Favorite apps: 1", "favoriting twice keeps one entry")

	out = execute(t, "list", "--data-dir", dataDir)
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "* off")
	assert.Contains(t, lines[1], "Zeta Chat")

	out = execute(t, "list", "--favorites", "--data-dir", dataDir)
	assert.Contains(t, out, "Favorite apps: 1")

	out = execute(t, "list", "--query", "BET", "--data-dir", dataDir)
	assert.Contains(t, out, "Apps found: 1")
	assert.Contains(t, out, "beta")

	out = execute(t, "enable", "zeta", "--data-dir", dataDir)
	assert.Contains(t, out, "Notifications from zeta: allowed")
	assert.NotContains(t, out, "Listener is not active")

	out = execute(t, "unfavorite", "zeta", "--data-dir", dataDir)
	assert.Contains(t, out, "zeta removed from favorites")
}

func TestDisable_UnknownPackageStillStored(t *testing.T) {
	dataDir, _ := testEnv(t)

	out := execute(t, "disable", "org.example.Gone", "--data-dir", dataDir)

	assert.Contains(t, out, "not a launchable app")
	assert.Contains(t, out, "silenced")
}

func TestFavorite_UnknownPackageRejected(t *testing.T) {
	dataDir, appsDir := testEnv(t)
	writeDesktop(t, appsDir, "alpha", "Alpha")

	err := executeErr(t, "favorite", "org.example.Gone", "--data-dir", dataDir)

	assert.ErrorIs(t, err, domain.ErrNotFound)
	out := execute(t, "list", "--favorites", "--data-dir", dataDir)
	assert.Contains(t, out, "Favorite apps: 0")
}

func TestDataDirIgnoresDefaultConfigFile(t *testing.T) {
	dataDir, _ := testEnv(t)
	home := os.Getenv("HOME")
	if os.Geteuid() == 0 {
		t.Skip("default data dir lives under /var/lib when running as root")
	}
	require.NoError(t, os.MkdirAll(filepath.Join(home, ".notifmon"), 0700))
	require.NoError(t, os.WriteFile(filepath.Join(home, ".notifmon", "config.yaml"),
		[]byte("listener:\n  heartbeat_interval: 1m\n"), 0600))

	dataDirFlag = dataDir
	t.Cleanup(func() { dataDirFlag = "" })
	cfg, err := loadConfig()

	require.NoError(t, err)
	assert.Equal(t, dataDir, cfg.DataDir)
	assert.Equal(t, config.Default().Listener.HeartbeatInterval, cfg.Listener.HeartbeatInterval)
}

func TestStatus_NotRunning(t *testing.T) {
	dataDir, _ := testEnv(t)

	out := execute(t, "status", "--data-dir", dataDir)

	assert.Contains(t, out, "Listener: NOT RUNNING")
	assert.Contains(t, out, "Permission: not granted")
	assert.Contains(t, out, "notifmon permission --request")
	assert.Contains(t, out, "Auto-start: disabled")
	assert.Contains(t, out, "Preference store: file")
}

func TestDescribeLiveness(t *testing.T) {
	tests := []struct {
		name string
		live daemon.Liveness
		want string
	}{
		{name: "no record", live: daemon.Liveness{}, want: "NOT RUNNING"},
		{
			name: "dead pid",
			live: daemon.Liveness{Status: &domain.ListenerStatus{PID: 7, State: domain.StateConnected}},
			want: "NOT RUNNING",
		},
		{
			name: "stale",
			live: daemon.Liveness{Status: &domain.ListenerStatus{PID: 7, State: domain.StateConnected}, Running: true, Stale: true},
			want: "UNRESPONSIVE (pid 7",
		},
		{
			name: "active",
			live: daemon.Liveness{Status: &domain.ListenerStatus{PID: 7, State: domain.StateConnected}, Running: true},
			want: "ACTIVE (pid 7)",
		},
		{
			name: "waiting",
			live: daemon.Liveness{Status: &domain.ListenerStatus{PID: 7, State: domain.StateDisconnected}, Running: true},
			want: "INACTIVE (pid 7",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, describeLiveness(tt.live), tt.want)
		})
	}
}

func TestCreateLogger_WritesToLogFile(t *testing.T) {
	cfg := config.Default()
	cfg.DataDir = t.TempDir()
	cfg.Log.Level = "debug"

	logger := createLogger(cfg)
	logger.Debug("hello from test")
	require.NoError(t, logger.Sync())

	data, err := os.ReadFile(cfg.LogFile())
	require.NoError(t, err)
	assert.Contains(t, string(data), "hello from test")
	assert.Contains(t, string(data), `"time"`)
}

func TestRunnerConfig(t *testing.T) {
	cfg := config.Default()
	cfg.Metrics.Addr = ":9310"

	rc := runnerConfig(cfg)

	assert.Equal(t, cfg.Listener.ReconnectInterval, rc.ReconnectInterval)
	assert.Equal(t, cfg.Listener.HeartbeatInterval, rc.HeartbeatInterval)
	assert.Equal(t, ":9310", rc.MetricsAddr)
	assert.Equal(t, Version, rc.Version)
}
