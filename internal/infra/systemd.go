package infra

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"text/template"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

const unitName = "notifmon.service"

// systemd user unit; the listener needs the user's session bus.
const userUnitTemplate = `[Unit]
Description=notifmon notification listener
After=graphical-session.target
PartOf=graphical-session.target

[Service]
Type=simple
ExecStart={{.ExecutablePath}} daemon --data-dir {{.DataDir}}
Restart=on-failure
RestartSec=10
StandardOutput=append:{{.LogPath}}
StandardError=append:{{.LogPath}}

[Install]
WantedBy=graphical-session.target
`

type unitConfig struct {
	ExecutablePath string
	DataDir        string
	LogPath        string
}

// SystemdUserManager implements domain.ServiceManager with a systemd user unit.
type SystemdUserManager struct {
	unitDir   string
	dataDir   string
	logPath   string
	systemctl func(args ...string) error
}

// NewSystemdUserManager creates a manager writing to ~/.config/systemd/user.
func NewSystemdUserManager(config *ExecModeConfig, dataDir string) *SystemdUserManager {
	configHome := os.Getenv("XDG_CONFIG_HOME")
	if configHome == "" {
		configHome = filepath.Join(GetRealUserHome(), ".config")
	}
	return NewSystemdUserManagerWithDir(filepath.Join(configHome, "systemd", "user"), dataDir, config.LogPath)
}

// NewSystemdUserManagerWithDir creates a manager for a specific unit directory (for testing).
func NewSystemdUserManagerWithDir(unitDir, dataDir, logPath string) *SystemdUserManager {
	return &SystemdUserManager{
		unitDir:   unitDir,
		dataDir:   dataDir,
		logPath:   logPath,
		systemctl: runSystemctlUser,
	}
}

func runSystemctlUser(args ...string) error {
	out, err := exec.Command("systemctl", append([]string{"--user"}, args...)...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("systemctl --user %v: %w: %s", args, err, bytes.TrimSpace(out))
	}
	return nil
}

// UnitPath returns the unit file path.
func (m *SystemdUserManager) UnitPath() string {
	return filepath.Join(m.unitDir, unitName)
}

func (m *SystemdUserManager) render(execPath string) ([]byte, error) {
	tmpl, err := template.New("unit").Parse(userUnitTemplate)
	if err != nil {
		return nil, fmt.Errorf("failed to parse unit template: %w", err)
	}

	var buf bytes.Buffer
	err = tmpl.Execute(&buf, unitConfig{
		ExecutablePath: execPath,
		DataDir:        m.dataDir,
		LogPath:        m.logPath,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to execute unit template: %w", err)
	}
	return buf.Bytes(), nil
}

// Install writes the unit, reloads systemd and enables it now.
func (m *SystemdUserManager) Install(execPath string) error {
	if err := os.MkdirAll(m.unitDir, 0755); err != nil {
		return fmt.Errorf("failed to create unit directory: %w", err)
	}

	content, err := m.render(execPath)
	if err != nil {
		return err
	}
	if err := os.WriteFile(m.UnitPath(), content, 0644); err != nil {
		return fmt.Errorf("failed to write unit file: %w", err)
	}

	if err := m.systemctl("daemon-reload"); err != nil {
		return err
	}
	return m.systemctl("enable", "--now", unitName)
}

// Uninstall disables the unit and removes the file.
func (m *SystemdUserManager) Uninstall() error {
	// Ignore errors if the unit was never enabled.
	_ = m.systemctl("disable", "--now", unitName)

	if err := os.Remove(m.UnitPath()); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove unit file: %w", err)
	}
	return m.systemctl("daemon-reload")
}

// IsInstalled checks if the unit file exists.
func (m *SystemdUserManager) IsInstalled() bool {
	_, err := os.Stat(m.UnitPath())
	return err == nil
}

// NeedsUpdate reports whether the installed unit differs from what execPath would produce.
func (m *SystemdUserManager) NeedsUpdate(execPath string) bool {
	if !m.IsInstalled() {
		return false
	}
	current, err := os.ReadFile(m.UnitPath())
	if err != nil {
		return true
	}
	expected, err := m.render(execPath)
	if err != nil {
		return true
	}
	return !bytes.Equal(current, expected)
}

// Ensure SystemdUserManager implements domain.ServiceManager.
var _ domain.ServiceManager = (*SystemdUserManager)(nil)
