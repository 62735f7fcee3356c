// Package fixtures provides test helpers for integration tests.
package fixtures

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
)

type hostEvent struct {
	n      domain.Notification
	posted bool
}

// FakeHost is an in-memory domain.NotificationHost. Notifications posted
// while a listener is attached are delivered to it serially; those posted
// before only show up in ActiveNotifications.
type FakeHost struct {
	mu        sync.Mutex
	active    map[string]domain.Notification
	order     []string
	cancelled []domain.Notification
	attached  bool
	serves    int

	events chan hostEvent
	drop   chan error
}

// NewFakeHost creates a host with nothing posted.
func NewFakeHost() *FakeHost {
	return &FakeHost{
		active: make(map[string]domain.Notification),
		events: make(chan hostEvent, 64),
		drop:   make(chan error, 1),
	}
}

// Post publishes a notification from pkg and returns its key.
func (h *FakeHost) Post(pkg string) string {
	n := domain.Notification{PackageID: pkg, Key: uuid.NewString()}

	h.mu.Lock()
	h.active[n.Key] = n
	h.order = append(h.order, n.Key)
	attached := h.attached
	h.mu.Unlock()

	if attached {
		h.events <- hostEvent{n: n, posted: true}
	}
	return n.Key
}

// Dismiss removes a notification as if the user closed it.
func (h *FakeHost) Dismiss(key string) {
	h.mu.Lock()
	n, ok := h.active[key]
	delete(h.active, key)
	attached := h.attached
	h.mu.Unlock()

	if ok && attached {
		h.events <- hostEvent{n: n}
	}
}

// Drop detaches the current listener; Serve returns err.
func (h *FakeHost) Drop(err error) {
	h.drop <- err
}

// Serve implements domain.NotificationHost.
func (h *FakeHost) Serve(ctx context.Context, cb domain.ListenerCallbacks) error {
	h.mu.Lock()
	h.attached = true
	h.serves++
	h.mu.Unlock()

	cb.OnConnected(ctx)
	defer func() {
		h.mu.Lock()
		h.attached = false
		h.mu.Unlock()
		cb.OnDisconnected()
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-h.drop:
			return err
		case e := <-h.events:
			if e.posted {
				cb.OnPosted(ctx, e.n)
			} else {
				cb.OnRemoved(ctx, e.n)
			}
		}
	}
}

// Cancel implements domain.NotificationSink.
func (h *FakeHost) Cancel(key string) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	n, ok := h.active[key]
	if !ok {
		return fmt.Errorf("notification %s: %w", key, domain.ErrNotFound)
	}
	delete(h.active, key)
	h.cancelled = append(h.cancelled, n)
	return nil
}

// ActiveNotifications implements domain.NotificationSink, in post order.
func (h *FakeHost) ActiveNotifications() ([]domain.Notification, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]domain.Notification, 0, len(h.active))
	for _, key := range h.order {
		if n, ok := h.active[key]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

// IsActive reports whether key is still posted.
func (h *FakeHost) IsActive(key string) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	_, ok := h.active[key]
	return ok
}

// CancelledPackages returns the package of every cancelled notification, in order.
func (h *FakeHost) CancelledPackages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.cancelled))
	for i, n := range h.cancelled {
		out[i] = n.PackageID
	}
	return out
}

// Attached reports whether a listener is currently attached.
func (h *FakeHost) Attached() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.attached
}

// Serves returns how many times a listener attached.
func (h *FakeHost) Serves() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.serves
}

var _ domain.NotificationHost = (*FakeHost)(nil)
