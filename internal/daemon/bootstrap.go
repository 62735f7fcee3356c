package daemon

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
)

// StartDaemon spawns the listener daemon from the running executable.
// The daemon is detached from the parent process (runs independently).
func StartDaemon(dataDir, configPath string) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	return StartDaemonWithPath(executable, dataDir, configPath)
}

// StartDaemonWithPath spawns the daemon from a specific binary path.
func StartDaemonWithPath(binaryPath, dataDir, configPath string) error {
	// Hidden "daemon" command: notifmon daemon --data-dir ~/.notifmon
	cmd := exec.Command(binaryPath, daemonArgs(dataDir, configPath)...)

	// Detach from parent process
	cmd.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	// No stdin/stdout/stderr - fully detached
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}
	return cmd.Process.Release()
}

func daemonArgs(dataDir, configPath string) []string {
	args := []string{"daemon"}
	if dataDir != "" {
		args = append(args, "--data-dir", dataDir)
	}
	if configPath != "" {
		args = append(args, "--config", configPath)
	}
	return args
}
