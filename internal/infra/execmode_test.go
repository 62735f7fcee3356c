package infra

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDetectExecMode_ReturnsCorrectPaths(t *testing.T) {
	// Root mode can only be checked when the suite itself runs as root.
	config := DetectExecMode()

	if os.Geteuid() == 0 {
		if config.Mode != ExecModeSystem {
			t.Errorf("expected system mode when euid=0, got %s", config.Mode)
		}
		if config.DataDir != "/var/lib/notifmon" {
			t.Errorf("expected /var/lib/notifmon, got %s", config.DataDir)
		}
		return
	}

	if config.Mode != ExecModeUser {
		t.Errorf("expected user mode when euid!=0, got %s", config.Mode)
	}
	expected := filepath.Join(GetRealUserHome(), ".notifmon")
	if config.DataDir != expected {
		t.Errorf("expected %s, got %s", expected, config.DataDir)
	}
	if config.IsRoot {
		t.Error("IsRoot should be false in user mode")
	}
}

func TestUserModeConfig_LogInsideDataDir(t *testing.T) {
	config := userModeConfig("/home/alice")

	if config.DataDir != "/home/alice/.notifmon" {
		t.Errorf("unexpected data dir %s", config.DataDir)
	}
	if filepath.Dir(config.LogPath) != config.DataDir {
		t.Errorf("LogPath (%s) should be inside DataDir (%s)", config.LogPath, config.DataDir)
	}
}

func TestGetRealUserHome_IgnoresUnknownSudoUser(t *testing.T) {
	t.Setenv("SUDO_USER", "no-such-user-notifmon")

	home, _ := os.UserHomeDir()
	if got := GetRealUserHome(); got != home {
		t.Errorf("expected fallback to %s, got %s", home, got)
	}
}

func TestExecMode_String(t *testing.T) {
	tests := []struct {
		mode     ExecMode
		expected string
	}{
		{ExecModeUser, "user (session)"},
		{ExecModeSystem, "system (root)"},
		{ExecMode("invalid"), "unknown"},
	}

	for _, tt := range tests {
		t.Run(string(tt.mode), func(t *testing.T) {
			if got := tt.mode.String(); got != tt.expected {
				t.Errorf("ExecMode.String() = %q, want %q", got, tt.expected)
			}
		})
	}
}
