package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
)

var permissionCmd = &cobra.Command{
	Use:   "permission",
	Short: "Check or request the notification listener permission",
	Long: `Checks whether the session bus lets notifmon observe notifications.
With --request, opens the desktop's notification settings and returns immediately.`,
	Args: cobra.NoArgs,
	RunE: runPermission,
}

var installCmd = &cobra.Command{
	Use:   "install",
	Short: "Start the listener with every graphical session",
	Long:  `Installs and starts a systemd user unit running the listener daemon.`,
	Args:  cobra.NoArgs,
	RunE:  runInstall,
}

var uninstallCmd = &cobra.Command{
	Use:   "uninstall",
	Short: "Remove the listener's systemd user unit",
	Args:  cobra.NoArgs,
	RunE:  runUninstall,
}

var requestPermission bool

func init() {
	permissionCmd.Flags().BoolVar(&requestPermission, "request", false, "Open notification settings")

	rootCmd.AddCommand(permissionCmd)
	rootCmd.AddCommand(installCmd)
	rootCmd.AddCommand(uninstallCmd)
}

func runPermission(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	permission := infra.NewDBusPermission(cfg.Listener.SettingsCommand)

	if requestPermission {
		if err := permission.Request(); err != nil {
			return err
		}
		fmt.Fprintln(out, "Opened notification settings.")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Second)
	defer cancel()
	if err := permission.Check(ctx); err != nil {
		fmt.Fprintf(out, "Permission: not granted (%v)\n", err)
		fmt.Fprintln(out, permissionHint)
		return nil
	}
	fmt.Fprintln(out, "Permission: granted")
	return nil
}

func runInstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	execMode := infra.DetectExecMode()
	if execMode.IsRoot {
		return fmt.Errorf("install must run as the desktop user, not root: the listener needs the user's session bus")
	}

	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	if resolved, err := filepath.EvalSymlinks(executable); err == nil {
		executable = resolved
	}

	service := infra.NewSystemdUserManager(execMode, cfg.DataDir)
	if service.IsInstalled() && !service.NeedsUpdate(executable) {
		fmt.Fprintf(cmd.OutOrStdout(), "Already installed: %s\n", service.UnitPath())
		return nil
	}
	if err := service.Install(executable); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Installed %s\n", service.UnitPath())
	return nil
}

func runUninstall(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	service := infra.NewSystemdUserManager(infra.DetectExecMode(), cfg.DataDir)
	if !service.IsInstalled() {
		fmt.Fprintln(cmd.OutOrStdout(), "Not installed.")
		return nil
	}
	if err := service.Uninstall(); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Uninstalled.")
	return nil
}
