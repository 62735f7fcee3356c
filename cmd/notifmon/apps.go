package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/eliteGoblin/focusd/notif_mon/internal/catalog"
	"github.com/eliteGoblin/focusd/notif_mon/internal/daemon"
	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/infra"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List launchable apps and their notification state",
	Long: `Lists launchable applications, favorites first, then by name.
--query filters by name or package id (case-insensitive substring);
--favorites shows favorites only.`,
	Args: cobra.NoArgs,
	RunE: runList,
}

var enableCmd = &cobra.Command{
	Use:   "enable <package>",
	Short: "Allow notifications from an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetNotifications(true),
}

var disableCmd = &cobra.Command{
	Use:   "disable <package>",
	Short: "Silence notifications from an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetNotifications(false),
}

var favoriteCmd = &cobra.Command{
	Use:   "favorite <package>",
	Short: "Pin an app to the top of the list",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetFavorite(true),
}

var unfavoriteCmd = &cobra.Command{
	Use:   "unfavorite <package>",
	Short: "Unpin an app",
	Args:  cobra.ExactArgs(1),
	RunE:  runSetFavorite(false),
}

var (
	listQuery     string
	listFavorites bool
)

func init() {
	listCmd.Flags().StringVarP(&listQuery, "query", "q", "", "Filter by name or package id")
	listCmd.Flags().BoolVar(&listFavorites, "favorites", false, "Show favorites only")

	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(enableCmd)
	rootCmd.AddCommand(disableCmd)
	rootCmd.AddCommand(favoriteCmd)
	rootCmd.AddCommand(unfavoriteCmd)
}

func runList(cmd *cobra.Command, args []string) error {
	s, err := openSession()
	if err != nil {
		return err
	}
	defer s.Close()

	_, apps, err := loadCatalog(cmd, s)
	if err != nil {
		return err
	}

	scope := domain.ScopeAll
	if listFavorites {
		scope = domain.ScopeFavorites
	}
	shown := catalog.Filter(apps, listQuery, scope)

	printApps(cmd.OutOrStdout(), scope, listQuery, shown)
	return nil
}

// loadCatalog rebuilds the sorted app list for one command.
func loadCatalog(cmd *cobra.Command, s *session) (*catalog.Catalog, []domain.AppEntry, error) {
	cat := catalog.New(infra.NewDesktopEnumerator(s.logger), s.store, nil, s.logger)
	result := <-cat.Load(cmd.Context())
	if result.Err != nil {
		return nil, nil, result.Err
	}
	return cat, result.Apps, nil
}

func printApps(out io.Writer, scope domain.Scope, query string, apps []domain.AppEntry) {
	fmt.Fprintln(out, catalog.CountLabel(scope, query, len(apps)))
	for _, a := range apps {
		star := " "
		if a.IsFavorite {
			star = "*"
		}
		state := "on"
		if !a.NotificationsEnabled {
			state = "off"
		}
		fmt.Fprintf(out, "%s %-3s  %-32s %s\n", star, state, a.DisplayName, a.PackageID)
	}
}

func runSetNotifications(enabled bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		pkg := args[0]
		out := cmd.OutOrStdout()

		cat, apps, err := loadCatalog(cmd, s)
		if err != nil {
			return err
		}
		if _, ok := catalog.Find(apps, pkg); !ok {
			fmt.Fprintf(out, "Note: %s is not a launchable app on this machine.\n", pkg)
		}

		if err := cat.SetNotifications(apps, pkg, enabled); err != nil {
			return err
		}

		if enabled {
			fmt.Fprintf(out, "Notifications from %s: allowed\n", pkg)
			return nil
		}
		fmt.Fprintf(out, "Notifications from %s: silenced\n", pkg)

		// Silencing only takes effect while the listener is attached.
		live, err := daemon.CheckLiveness(infra.NewStatusFile(s.cfg.DataDir), infra.NewProcessManager(),
			s.cfg.Listener.HeartbeatInterval, time.Now())
		if err != nil || !live.Connected() {
			fmt.Fprintln(out, "Listener is not active; notifications will not be withdrawn until it is.")
			fmt.Fprintln(out, `Run "notifmon start", then "notifmon permission --request" if it stays inactive.`)
		}
		return nil
	}
}

func runSetFavorite(favorite bool) func(cmd *cobra.Command, args []string) error {
	return func(cmd *cobra.Command, args []string) error {
		s, err := openSession()
		if err != nil {
			return err
		}
		defer s.Close()

		pkg := args[0]
		out := cmd.OutOrStdout()

		cat, apps, err := loadCatalog(cmd, s)
		if err != nil {
			return err
		}
		app, ok := catalog.Find(apps, pkg)
		if !ok {
			return fmt.Errorf("app %s: %w", pkg, domain.ErrNotFound)
		}

		if app.IsFavorite != favorite {
			if _, err := cat.ToggleFavorite(apps, pkg); err != nil {
				return err
			}
		}

		if favorite {
			fmt.Fprintf(out, "%s added to favorites\n", pkg)
		} else {
			fmt.Fprintf(out, "%s removed from favorites\n", pkg)
		}
		printApps(out, domain.ScopeFavorites, "", catalog.Filter(apps, "", domain.ScopeFavorites))
		return nil
	}
}
