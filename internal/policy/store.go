package policy

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

// Store implements domain.PolicyStore on top of a PreferenceStore.
// Reads never fail: backend errors are logged and the default is returned.
type Store struct {
	prefs  domain.PreferenceStore
	logger *zap.Logger

	// favMu serializes read-modify-write of the favorites set within this process.
	favMu sync.Mutex
}

// NewStore creates a policy store backed by prefs.
func NewStore(prefs domain.PreferenceStore, logger *zap.Logger) *Store {
	return &Store{
		prefs:  prefs,
		logger: logger,
	}
}

// NotificationsEnabled returns the stored flag, true if pkg was never written.
func (s *Store) NotificationsEnabled(pkg string) bool {
	enabled, err := s.prefs.GetBool(NotificationsKey(pkg), DefaultNotificationsEnabled)
	if err != nil {
		s.logger.Warn("failed to read notification state, allowing",
			zap.String("package", pkg),
			zap.Error(err))
		return DefaultNotificationsEnabled
	}
	return enabled
}

// SetNotificationsEnabled upserts the flag for pkg.
func (s *Store) SetNotificationsEnabled(pkg string, enabled bool) error {
	if err := s.prefs.PutBool(NotificationsKey(pkg), enabled); err != nil {
		return fmt.Errorf("failed to save notification state for %s: %w", pkg, err)
	}
	s.logger.Debug("notification state saved",
		zap.String("package", pkg),
		zap.Bool("enabled", enabled))
	return nil
}

// Favorites returns a snapshot copy of the favorites set.
func (s *Store) Favorites() domain.PackageSet {
	members, err := s.prefs.GetStringSet(KeyFavorites)
	if err != nil {
		s.logger.Warn("failed to read favorites", zap.Error(err))
		return domain.NewPackageSet()
	}
	return domain.NewPackageSet(members...)
}

// IsFavorite checks favorites membership.
func (s *Store) IsFavorite(pkg string) bool {
	return s.Favorites().Has(pkg)
}

// AddFavorite adds pkg to favorites. Adding a present member is a no-op.
func (s *Store) AddFavorite(pkg string) error {
	return s.updateFavorites(func(set domain.PackageSet) { set[pkg] = struct{}{} })
}

// RemoveFavorite removes pkg from favorites. Removing an absent member is a no-op.
func (s *Store) RemoveFavorite(pkg string) error {
	return s.updateFavorites(func(set domain.PackageSet) { delete(set, pkg) })
}

func (s *Store) updateFavorites(mutate func(domain.PackageSet)) error {
	s.favMu.Lock()
	defer s.favMu.Unlock()

	members, err := s.prefs.GetStringSet(KeyFavorites)
	if err != nil {
		return fmt.Errorf("failed to read favorites: %w", err)
	}
	set := domain.NewPackageSet(members...)
	mutate(set)

	if err := s.prefs.PutStringSet(KeyFavorites, set.Sorted()); err != nil {
		return fmt.Errorf("failed to save favorites: %w", err)
	}
	return nil
}

// Ensure Store implements domain.PolicyStore.
var _ domain.PolicyStore = (*Store)(nil)
