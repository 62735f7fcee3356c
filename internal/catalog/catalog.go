// Package catalog builds the sorted list of launchable applications joined with
// their notification policy, and filters it for display.
package catalog

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/metrics"
)

// Catalog joins the platform's installed applications with the policy store.
type Catalog struct {
	apps    domain.AppEnumerator
	store   domain.PolicyStore
	metrics *metrics.Metrics
	logger  *zap.Logger
}

// New creates a catalog. m may be nil.
func New(apps domain.AppEnumerator, store domain.PolicyStore, m *metrics.Metrics, logger *zap.Logger) *Catalog {
	return &Catalog{
		apps:    apps,
		store:   store,
		metrics: m,
		logger:  logger,
	}
}

// Rebuild enumerates launchable applications and returns them sorted favorites
// first, then by case-insensitive name. An entry whose label or icon cannot be
// loaded is skipped; only a failed enumeration fails the rebuild.
func (c *Catalog) Rebuild(ctx context.Context) ([]domain.AppEntry, error) {
	start := time.Now()

	installed, err := c.apps.ListInstalled(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list installed apps: %w", err)
	}

	favorites := c.store.Favorites()
	entries := make([]domain.AppEntry, 0, len(installed))
	seen := make(map[string]bool, len(installed))
	skipped := 0

	for _, app := range installed {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if seen[app.PackageID] {
			continue
		}
		if !c.apps.HasLauncherEntry(app.PackageID) {
			continue
		}

		entry, err := c.load(app.PackageID, favorites)
		if err != nil {
			c.logger.Warn("skipping app",
				zap.String("package", app.PackageID),
				zap.String("source", app.Source),
				zap.Error(err))
			skipped++
			continue
		}

		seen[app.PackageID] = true
		entries = append(entries, entry)
	}

	Sort(entries)

	c.metrics.SetCatalogSize(len(entries))
	c.logger.Debug("catalog rebuilt",
		zap.Int("installed", len(installed)),
		zap.Int("entries", len(entries)),
		zap.Int("skipped", skipped),
		zap.Duration("took", time.Since(start)))

	return entries, nil
}

func (c *Catalog) load(pkg string, favorites domain.PackageSet) (domain.AppEntry, error) {
	label, err := c.apps.LoadLabel(pkg)
	if err != nil {
		return domain.AppEntry{}, fmt.Errorf("failed to load label: %w", err)
	}
	icon, err := c.apps.LoadIcon(pkg)
	if err != nil {
		return domain.AppEntry{}, fmt.Errorf("failed to load icon: %w", err)
	}

	return domain.AppEntry{
		PackageID:            pkg,
		DisplayName:          label,
		Icon:                 icon,
		NotificationsEnabled: c.store.NotificationsEnabled(pkg),
		IsFavorite:           favorites.Has(pkg),
	}, nil
}

// sortKey is computed once per entry so the comparator stays a total order.
type sortKey struct {
	rank  int // 0 for favorites, 1 otherwise
	name  string
	index int
}

// Sort orders apps in place: favorites first, then lowercase display name.
// Ties keep their current relative order.
func Sort(apps []domain.AppEntry) {
	keyed := make([]sortKey, len(apps))
	for i, a := range apps {
		rank := 1
		if a.IsFavorite {
			rank = 0
		}
		keyed[i] = sortKey{rank: rank, name: strings.ToLower(a.DisplayName), index: i}
	}

	slices.SortStableFunc(keyed, func(a, b sortKey) int {
		return cmp.Or(
			cmp.Compare(a.rank, b.rank),
			strings.Compare(a.name, b.name),
		)
	})

	sorted := make([]domain.AppEntry, len(apps))
	for i, k := range keyed {
		sorted[i] = apps[k.index]
	}
	copy(apps, sorted)
}

// ToggleFavorite flips pkg's favorite flag in the store and in apps, then re-sorts.
// Returns the new flag.
func (c *Catalog) ToggleFavorite(apps []domain.AppEntry, pkg string) (bool, error) {
	i := indexOf(apps, pkg)
	if i < 0 {
		return false, fmt.Errorf("app %s: %w", pkg, domain.ErrNotFound)
	}

	fav := !apps[i].IsFavorite
	var err error
	if fav {
		err = c.store.AddFavorite(pkg)
	} else {
		err = c.store.RemoveFavorite(pkg)
	}
	if err != nil {
		return apps[i].IsFavorite, err
	}

	apps[i].IsFavorite = fav
	Sort(apps)
	return fav, nil
}

// SetNotifications stores pkg's enabled flag and mirrors it into apps.
func (c *Catalog) SetNotifications(apps []domain.AppEntry, pkg string, enabled bool) error {
	if err := c.store.SetNotificationsEnabled(pkg, enabled); err != nil {
		return err
	}
	if i := indexOf(apps, pkg); i >= 0 {
		apps[i].NotificationsEnabled = enabled
	}
	return nil
}

// Find returns the entry for pkg.
func Find(apps []domain.AppEntry, pkg string) (domain.AppEntry, bool) {
	if i := indexOf(apps, pkg); i >= 0 {
		return apps[i], true
	}
	return domain.AppEntry{}, false
}

func indexOf(apps []domain.AppEntry, pkg string) int {
	return slices.IndexFunc(apps, func(a domain.AppEntry) bool {
		return a.PackageID == pkg
	})
}
