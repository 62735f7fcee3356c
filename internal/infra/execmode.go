package infra

import (
	"os"
	"os/user"
	"path/filepath"
)

// ExecMode represents the execution mode of the application.
type ExecMode string

const (
	// ExecModeUser runs in the user's session (the normal case for a desktop agent)
	ExecModeUser ExecMode = "user"
	// ExecModeSystem runs as root with shared state under /var/lib
	ExecModeSystem ExecMode = "system"
)

// ExecModeConfig holds paths based on execution mode.
type ExecModeConfig struct {
	Mode    ExecMode
	DataDir string // Preferences, key, status file
	LogPath string // Daemon log file
	IsRoot  bool
}

// DetectExecMode determines the execution mode based on effective UID.
func DetectExecMode() *ExecModeConfig {
	if os.Geteuid() == 0 {
		return &ExecModeConfig{
			Mode:    ExecModeSystem,
			DataDir: "/var/lib/notifmon",
			LogPath: "/var/log/notifmon.log",
			IsRoot:  true,
		}
	}
	return userModeConfig(GetRealUserHome())
}

func userModeConfig(home string) *ExecModeConfig {
	dataDir := filepath.Join(home, ".notifmon")
	return &ExecModeConfig{
		Mode:    ExecModeUser,
		DataDir: dataDir,
		LogPath: filepath.Join(dataDir, "notifmon.log"),
	}
}

// String returns a human-readable description of the mode.
func (m ExecMode) String() string {
	switch m {
	case ExecModeSystem:
		return "system (root)"
	case ExecModeUser:
		return "user (session)"
	default:
		return "unknown"
	}
}

// GetRealUserHome returns the real user's home directory, even when running under sudo.
func GetRealUserHome() string {
	if sudoUser := os.Getenv("SUDO_USER"); sudoUser != "" {
		if u, err := user.Lookup(sudoUser); err == nil {
			return u.HomeDir
		}
	}
	home, _ := os.UserHomeDir()
	return home
}
