// Package domain contains core business entities and interfaces.
// This is the innermost layer in Clean Architecture - no external dependencies.
package domain

import (
	"errors"
	"sort"
	"time"
)

var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrPermissionDenied is returned when the host refuses to let us observe notifications.
	ErrPermissionDenied = errors.New("notification listener permission denied")
)

// Icon is an opaque image handle owned by the platform (icon theme name or file path).
// It is never persisted.
type Icon string

// InstalledApp is one application reported by the platform enumerator.
type InstalledApp struct {
	PackageID string
	Source    string // Where the platform found it (e.g. desktop file path)
}

// AppEntry is a launchable application joined with its notification policy.
// Recreated on every catalog rebuild; only the two flags survive via PolicyStore.
type AppEntry struct {
	PackageID            string
	DisplayName          string
	Icon                 Icon
	NotificationsEnabled bool
	IsFavorite           bool
}

// Scope selects which part of the catalog a filter returns.
type Scope int

const (
	ScopeFavorites Scope = iota
	ScopeAll
)

func (s Scope) String() string {
	switch s {
	case ScopeFavorites:
		return "favorites"
	case ScopeAll:
		return "all"
	default:
		return "unknown"
	}
}

// Notification identifies a posted notification by source package and host key.
type Notification struct {
	PackageID string
	Key       string
}

// ListenerState is the attachment state of the listener agent.
type ListenerState string

const (
	StateDisconnected ListenerState = "disconnected"
	StateConnected    ListenerState = "connected"
)

// ListenerStatus is what the running agent publishes for other processes (status command).
type ListenerStatus struct {
	PID           int           `json:"pid"`
	State         ListenerState `json:"state"`
	ConnectedAt   int64         `json:"connected_at,omitempty"`
	LastHeartbeat int64         `json:"last_heartbeat"`
	Version       string        `json:"version,omitempty"`
}

// HeartbeatAge returns how long ago the agent last wrote its status.
func (s ListenerStatus) HeartbeatAge(now time.Time) time.Duration {
	if s.LastHeartbeat == 0 {
		return 0
	}
	return now.Sub(time.Unix(s.LastHeartbeat, 0))
}

// PackageSet is a set of package identifiers.
type PackageSet map[string]struct{}

// NewPackageSet builds a set from the given identifiers.
func NewPackageSet(ids ...string) PackageSet {
	s := make(PackageSet, len(ids))
	for _, id := range ids {
		s[id] = struct{}{}
	}
	return s
}

// Has reports whether id is a member.
func (s PackageSet) Has(id string) bool {
	_, ok := s[id]
	return ok
}

// Sorted returns the members in ascending order.
func (s PackageSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
