package domain

import "context"

// PreferenceStore is the durable key-value primitive scoped to this application's
// private storage. Values survive process restarts.
// Implementations: SQLCipher database (default), JSON file, Redis.
type PreferenceStore interface {
	// GetBool returns the stored value, or def if the key was never written.
	GetBool(key string, def bool) (bool, error)

	// PutBool upserts a boolean value and persists it before returning.
	PutBool(key string, value bool) error

	// GetStringSet returns the members stored under key (empty if absent).
	GetStringSet(key string) ([]string, error)

	// PutStringSet replaces the whole set stored under key.
	PutStringSet(key string, members []string) error

	// Close releases resources (e.g., database connection).
	Close() error
}

// PolicyStore holds per-package notification policy.
type PolicyStore interface {
	// NotificationsEnabled returns the stored flag, true if never set. Never fails.
	NotificationsEnabled(pkg string) bool

	// SetNotificationsEnabled upserts the flag for pkg.
	SetNotificationsEnabled(pkg string, enabled bool) error

	// Favorites returns a snapshot copy of the favorites set.
	Favorites() PackageSet

	// IsFavorite checks favorites membership.
	IsFavorite(pkg string) bool

	// AddFavorite adds pkg to favorites (idempotent).
	AddFavorite(pkg string) error

	// RemoveFavorite removes pkg from favorites (idempotent).
	RemoveFavorite(pkg string) error
}

// AppEnumerator lists applications installed on the device.
// Implementation: XDG desktop entries.
type AppEnumerator interface {
	// ListInstalled returns every application the platform reports.
	ListInstalled(ctx context.Context) ([]InstalledApp, error)

	// HasLauncherEntry reports whether pkg can be launched by the user.
	HasLauncherEntry(pkg string) bool

	// LoadLabel returns the human-readable name.
	LoadLabel(pkg string) (string, error)

	// LoadIcon returns the icon handle.
	LoadIcon(pkg string) (Icon, error)
}

// NotificationSink is the host surface the listener uses to act on notifications.
type NotificationSink interface {
	// Cancel withdraws a posted notification.
	Cancel(key string) error

	// ActiveNotifications returns currently posted notifications.
	ActiveNotifications() ([]Notification, error)
}

// ListenerCallbacks is the capability a listener registers with the host.
// The host invokes the methods serially.
type ListenerCallbacks interface {
	OnConnected(ctx context.Context)
	OnDisconnected()
	OnPosted(ctx context.Context, n Notification)
	OnRemoved(ctx context.Context, n Notification)
}

// NotificationHost delivers notification events to a registered listener.
// Implementation: freedesktop notifications on the D-Bus session bus.
type NotificationHost interface {
	NotificationSink

	// Serve attaches callbacks and blocks until ctx is canceled or the host drops.
	// OnConnected is called once attached, OnDisconnected before returning.
	Serve(ctx context.Context, callbacks ListenerCallbacks) error
}

// PermissionProvider answers whether the listener permission is granted and
// opens the platform settings surface to request it.
type PermissionProvider interface {
	// Granted reports whether the host allows observing notifications.
	Granted(ctx context.Context) bool

	// Request opens the platform settings (fire-and-forget).
	Request() error
}

// StatusRegistry persists the running agent's status for other processes.
// Implementation: hidden JSON file in the data directory.
type StatusRegistry interface {
	// Save writes the status record.
	Save(status ListenerStatus) error

	// Load returns the status record, nil if none was written.
	Load() (*ListenerStatus, error)

	// Clear removes the status record.
	Clear() error

	// Path returns the status file path (for tests).
	Path() string
}

// ProcessManager handles OS process lookups.
// Implementation: uses gopsutil for cross-platform support.
type ProcessManager interface {
	// NameOf returns the process name for a PID.
	NameOf(pid int) (string, error)

	// IsRunning checks if a PID exists and is running.
	IsRunning(pid int) bool

	// GetCurrentPID returns the current process PID.
	GetCurrentPID() int
}

// KeyProvider retrieves the encryption key for the preference database.
// Implementation: hidden key file with 0600 permissions in the data directory.
type KeyProvider interface {
	// GetKey returns the 256-bit encryption key.
	GetKey() ([]byte, error)

	// StoreKey persists the encryption key.
	StoreKey(key []byte) error

	// KeyExists reports whether a key has been stored.
	KeyExists() bool
}

// ServiceManager installs the listener as a per-user service started with the session.
// Implementation: systemd user unit.
type ServiceManager interface {
	// Install writes the service definition for execPath and starts it.
	Install(execPath string) error

	// Uninstall stops and removes the service.
	Uninstall() error

	// IsInstalled checks if the service definition exists.
	IsInstalled() bool

	// NeedsUpdate reports whether the installed definition is stale.
	NeedsUpdate(execPath string) bool
}
