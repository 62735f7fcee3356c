package policy

import "github.com/eliteGoblin/focusd/notif_mon/internal/domain"

// Engine decides whether an incoming notification is suppressed.
// The decision depends only on the store's current state for the source package.
type Engine struct {
	store domain.PolicyStore
}

// NewEngine creates a decision engine reading from store.
func NewEngine(store domain.PolicyStore) *Engine {
	return &Engine{store: store}
}

// ShouldSuppress reports whether notifications from pkg must be withdrawn.
func (e *Engine) ShouldSuppress(pkg string) bool {
	return !e.store.NotificationsEnabled(pkg)
}
