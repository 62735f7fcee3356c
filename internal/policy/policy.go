// Package policy holds per-package notification policy and the suppression decision.
// State lives in a domain.PreferenceStore under the keys below.
package policy

const (
	// KeyFavorites is the string-set key holding favorite package identifiers.
	KeyFavorites = "favorites"

	// KeyNotificationsPrefix prefixes the per-package "notifications enabled" flag.
	KeyNotificationsPrefix = "notifications_"

	// DefaultNotificationsEnabled applies to every package never written.
	DefaultNotificationsEnabled = true
)

// NotificationsKey returns the preference key for pkg's enabled flag.
func NotificationsKey(pkg string) string {
	return KeyNotificationsPrefix + pkg
}
