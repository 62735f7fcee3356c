package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zapcore"
)

// isolate points HOME at a temp dir so no real config file or env leaks in.
func isolate(t *testing.T) string {
	t.Helper()
	home := t.TempDir()
	t.Setenv("HOME", home)
	t.Setenv("SUDO_USER", "")
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if strings.HasPrefix(key, "NOTIFMON_") {
			t.Setenv(key, "")
			os.Unsetenv(key)
		}
	}
	return home
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func TestDefault(t *testing.T) {
	isolate(t)

	cfg := Default()

	assert.NotEmpty(t, cfg.DataDir)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.Equal(t, BackendSQLCipher, cfg.Store.Backend)
	assert.Equal(t, "notifmon:", cfg.Store.RedisPrefix)
	assert.Equal(t, 5*time.Second, cfg.Listener.ReconnectInterval)
	assert.Equal(t, 30*time.Second, cfg.Listener.HeartbeatInterval)
	assert.Empty(t, cfg.Metrics.Addr)
	assert.NoError(t, cfg.Validate())
}

func TestLoad_NoFileUsesDefaults(t *testing.T) {
	isolate(t)

	cfg, err := Load(Options{})

	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad_YAMLOverridesDefaults(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", `
data_dir: /srv/notifmon
store:
  backend: file
log:
  level: debug
metrics:
  addr: 127.0.0.1:9310
`)

	cfg, err := Load(Options{File: path})

	require.NoError(t, err)
	assert.Equal(t, "/srv/notifmon", cfg.DataDir)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
	assert.Equal(t, "notifmon:", cfg.Store.RedisPrefix, "untouched nested fields keep defaults")
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "127.0.0.1:9310", cfg.Metrics.Addr)
	assert.Equal(t, 5*time.Second, cfg.Listener.ReconnectInterval)
}

func TestLoad_DefaultFileIsOptional(t *testing.T) {
	home := isolate(t)
	if os.Geteuid() == 0 {
		t.Skip("default file lives under /var/lib when running as root")
	}
	dataDir := filepath.Join(home, ".notifmon")
	require.NoError(t, os.MkdirAll(dataDir, 0700))
	writeFile(t, dataDir, "config.yaml", "store:\n  backend: file\n")

	cfg, err := Load(Options{})

	require.NoError(t, err)
	assert.Equal(t, BackendFile, cfg.Store.Backend)
}

func TestLoad_DataDirReadsOnlyItsOwnFile(t *testing.T) {
	home := isolate(t)
	if os.Geteuid() == 0 {
		t.Skip("default file lives under /var/lib when running as root")
	}
	defaultDir := filepath.Join(home, ".notifmon")
	require.NoError(t, os.MkdirAll(defaultDir, 0700))
	writeFile(t, defaultDir, "config.yaml", "store:\n  backend: file\nlog:\n  level: debug\n")

	other := t.TempDir()
	cfg, err := Load(Options{DataDir: other})

	require.NoError(t, err)
	assert.Equal(t, other, cfg.DataDir)
	assert.Equal(t, BackendSQLCipher, cfg.Store.Backend)
	assert.Equal(t, "info", cfg.Log.Level)

	writeFile(t, other, "config.yaml", "log:\n  level: warn\ndata_dir: /elsewhere\n")
	cfg, err = Load(Options{DataDir: other})

	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.Log.Level)
	assert.Equal(t, other, cfg.DataDir, "the flag wins over the file")
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	path := writeFile(t, dir, "config.yaml", "store:\n  backend: file\nlog:\n  level: warn\n")
	t.Setenv("NOTIFMON_STORE_BACKEND", "redis")
	t.Setenv("NOTIFMON_STORE_REDIS_URL", "redis://localhost:6379/2")
	t.Setenv("NOTIFMON_LISTENER_HEARTBEAT_INTERVAL", "1m")

	cfg, err := Load(Options{File: path})

	require.NoError(t, err)
	assert.Equal(t, BackendRedis, cfg.Store.Backend)
	assert.Equal(t, "redis://localhost:6379/2", cfg.Store.RedisURL)
	assert.Equal(t, time.Minute, cfg.Listener.HeartbeatInterval)
	assert.Equal(t, "warn", cfg.Log.Level, "unset env keeps file value")
}

func TestLoad_DotEnvFile(t *testing.T) {
	isolate(t)
	dir := t.TempDir()
	envFile := writeFile(t, dir, ".env", "NOTIFMON_LOG_LEVEL=error\nNOTIFMON_METRICS_ADDR=:9400\n")
	t.Cleanup(func() {
		os.Unsetenv("NOTIFMON_LOG_LEVEL")
		os.Unsetenv("NOTIFMON_METRICS_ADDR")
	})

	cfg, err := Load(Options{EnvFiles: []string{filepath.Join(dir, "missing.env"), envFile}})

	require.NoError(t, err)
	assert.Equal(t, "error", cfg.Log.Level)
	assert.Equal(t, ":9400", cfg.Metrics.Addr)
}

func TestLoad_ExplicitFileMustExist(t *testing.T) {
	isolate(t)

	_, err := Load(Options{File: filepath.Join(t.TempDir(), "nope.yaml")})

	assert.ErrorContains(t, err, "failed to read config file")
}

func TestLoad_MalformedYAML(t *testing.T) {
	isolate(t)
	path := writeFile(t, t.TempDir(), "config.yaml", "store: [unclosed\n")

	_, err := Load(Options{File: path})

	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *Config)
		wantErr string
	}{
		{name: "defaults", mutate: func(c *Config) {}},
		{name: "file backend", mutate: func(c *Config) { c.Store.Backend = BackendFile }},
		{
			name:    "redis without url",
			mutate:  func(c *Config) { c.Store.Backend = BackendRedis },
			wantErr: "redis_url is required",
		},
		{
			name: "redis with url",
			mutate: func(c *Config) {
				c.Store.Backend = BackendRedis
				c.Store.RedisURL = "redis://localhost:6379"
			},
		},
		{
			name:    "unknown backend",
			mutate:  func(c *Config) { c.Store.Backend = "leveldb" },
			wantErr: `unknown store backend "leveldb"`,
		},
		{
			name:    "bad log level",
			mutate:  func(c *Config) { c.Log.Level = "loud" },
			wantErr: "invalid log level",
		},
		{
			name:    "zero reconnect",
			mutate:  func(c *Config) { c.Listener.ReconnectInterval = 0 },
			wantErr: "reconnect_interval must be positive",
		},
		{
			name:    "empty data dir",
			mutate:  func(c *Config) { c.DataDir = "" },
			wantErr: "data_dir must be set",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()

			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestZapLevel(t *testing.T) {
	cfg := Default()
	cfg.Log.Level = "DEBUG"

	lvl, err := cfg.ZapLevel()

	require.NoError(t, err)
	assert.Equal(t, zapcore.DebugLevel, lvl)
}

func TestLogFile(t *testing.T) {
	cfg := Default()
	cfg.DataDir = "/data"
	assert.Equal(t, "/data/notifmon.log", cfg.LogFile())

	cfg.Log.File = "/var/log/custom.log"
	assert.Equal(t, "/var/log/custom.log", cfg.LogFile())
}

func TestOpenPreferenceStore(t *testing.T) {
	cfg := Default()
	cfg.DataDir = t.TempDir()

	for _, backend := range []string{BackendSQLCipher, BackendFile} {
		t.Run(backend, func(t *testing.T) {
			cfg.Store.Backend = backend

			store, err := cfg.OpenPreferenceStore()
			require.NoError(t, err)
			defer store.Close()

			require.NoError(t, store.PutBool("k", false))
			v, err := store.GetBool("k", true)
			require.NoError(t, err)
			assert.False(t, v)
		})
	}

	t.Run(BackendRedis, func(t *testing.T) {
		mr := miniredis.RunT(t)
		cfg.Store.Backend = BackendRedis
		cfg.Store.RedisURL = "redis://" + mr.Addr()

		store, err := cfg.OpenPreferenceStore()
		require.NoError(t, err)
		defer store.Close()

		require.NoError(t, store.PutStringSet("favorites", []string{"b", "a"}))
		assert.True(t, mr.Exists("notifmon:set:favorites"))
	})

	t.Run("unknown", func(t *testing.T) {
		cfg.Store.Backend = "etcd"
		store, err := cfg.OpenPreferenceStore()
		assert.Nil(t, store)
		assert.Error(t, err)
	})
}
