package infra

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"syscall"
	"time"

	"github.com/godbus/dbus/v5"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// DefaultSettingsCommand opens the GNOME notification settings panel.
const DefaultSettingsCommand = "gnome-control-center notifications"

const probeTimeout = 3 * time.Second

// DBusPermission implements domain.PermissionProvider. The listener needs to
// become a session bus monitor; bus policy decides whether that is allowed.
type DBusPermission struct {
	settingsCommand []string

	connect func() (*dbus.Conn, error)
	start   func(name string, args ...string) error
}

// NewDBusPermission creates a permission provider launching settingsCommand on Request.
func NewDBusPermission(settingsCommand string) *DBusPermission {
	if strings.TrimSpace(settingsCommand) == "" {
		settingsCommand = DefaultSettingsCommand
	}
	return &DBusPermission{
		settingsCommand: strings.Fields(settingsCommand),
		connect:         func() (*dbus.Conn, error) { return dbus.ConnectSessionBus() },
		start:           startDetached,
	}
}

// Granted probes monitoring on a throwaway connection.
func (p *DBusPermission) Granted(ctx context.Context) bool {
	return p.probe(ctx) == nil
}

// Check is Granted with the reason for a refusal.
func (p *DBusPermission) Check(ctx context.Context) error {
	return p.probe(ctx)
}

func (p *DBusPermission) probe(ctx context.Context) error {
	conn, err := p.connect()
	if err != nil {
		return fmt.Errorf("failed to connect to session bus: %w", err)
	}
	defer conn.Close()

	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	rule := fmt.Sprintf("type='signal',interface='%s',member='NotificationClosed'", notificationsIface)
	call := conn.BusObject().CallWithContext(ctx, becomeMonitor, 0, []string{rule}, uint32(0))
	if call.Err != nil {
		if err := monitorError(call.Err); errors.Is(err, domain.ErrPermissionDenied) {
			return err
		}
		return fmt.Errorf("failed to probe bus monitoring: %w", call.Err)
	}
	return nil
}

// Request opens the platform notification settings and returns immediately.
func (p *DBusPermission) Request() error {
	if len(p.settingsCommand) == 0 {
		return errors.New("no settings command configured")
	}
	if err := p.start(p.settingsCommand[0], p.settingsCommand[1:]...); err != nil {
		return fmt.Errorf("failed to open notification settings: %w", err)
	}
	return nil
}

// startDetached starts a process in its own session without waiting for it.
func startDetached(name string, args ...string) error {
	cmd := exec.Command(name, args...)
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return err
	}
	return cmd.Process.Release()
}

// Ensure DBusPermission implements domain.PermissionProvider.
var _ domain.PermissionProvider = (*DBusPermission)(nil)
