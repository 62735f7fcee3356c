// Package listener implements the notification listener agent.
// The host attaches it, delivers posted notifications serially, and detaches it.
package listener

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/metrics"
)

// Decider answers whether a package's notifications are suppressed.
// Implementation: policy.Engine.
type Decider interface {
	ShouldSuppress(pkg string) bool
}

// Agent cancels notifications from packages the user disabled.
// It owns the listener state; the host drives every transition.
type Agent struct {
	decider Decider
	sink    domain.NotificationSink
	metrics *metrics.Metrics
	logger  *zap.Logger

	connected   atomic.Bool
	connectedAt atomic.Int64
}

// NewAgent creates a listener agent acting on sink. m may be nil.
func NewAgent(decider Decider, sink domain.NotificationSink, m *metrics.Metrics, logger *zap.Logger) *Agent {
	return &Agent{
		decider: decider,
		sink:    sink,
		metrics: m,
		logger:  logger,
	}
}

// State returns the current attachment state.
func (a *Agent) State() domain.ListenerState {
	if a.connected.Load() {
		return domain.StateConnected
	}
	return domain.StateDisconnected
}

// Running reports whether the host currently has the agent attached.
func (a *Agent) Running() bool {
	return a.connected.Load()
}

// ConnectedAt returns when the agent was last attached (zero if never).
func (a *Agent) ConnectedAt() time.Time {
	ts := a.connectedAt.Load()
	if ts == 0 {
		return time.Time{}
	}
	return time.Unix(ts, 0)
}

// OnConnected marks the agent running and sweeps notifications already posted.
func (a *Agent) OnConnected(ctx context.Context) {
	a.connected.Store(true)
	a.connectedAt.Store(time.Now().Unix())
	a.metrics.SetConnected(true)
	a.logger.Info("listener connected")

	active, err := a.sink.ActiveNotifications()
	if err != nil {
		a.logger.Error("failed to list active notifications", zap.Error(err))
		return
	}
	a.metrics.RecordSweep()

	var cancelled int
	for _, n := range active {
		if ctx.Err() != nil {
			return
		}
		if !a.decider.ShouldSuppress(n.PackageID) {
			continue
		}
		if a.cancel(n) {
			cancelled++
			a.logger.Info("cancelled existing notification",
				zap.String("package", n.PackageID),
				zap.String("key", n.Key))
		}
	}

	a.logger.Debug("connect sweep completed",
		zap.Int("active", len(active)),
		zap.Int("cancelled", cancelled))
}

// OnDisconnected marks the agent not running.
func (a *Agent) OnDisconnected() {
	a.connected.Store(false)
	a.metrics.SetConnected(false)
	a.logger.Info("listener disconnected")
}

// OnPosted cancels n immediately if its package is disabled.
func (a *Agent) OnPosted(ctx context.Context, n domain.Notification) {
	suppress := a.decider.ShouldSuppress(n.PackageID)
	a.metrics.RecordDecision(suppress)

	if !suppress {
		a.logger.Debug("notification allowed",
			zap.String("package", n.PackageID),
			zap.String("key", n.Key))
		return
	}

	if a.cancel(n) {
		a.logger.Info("notification cancelled",
			zap.String("package", n.PackageID),
			zap.String("key", n.Key))
	}
}

// OnRemoved only records the removal.
func (a *Agent) OnRemoved(ctx context.Context, n domain.Notification) {
	a.logger.Debug("notification removed",
		zap.String("package", n.PackageID),
		zap.String("key", n.Key))
}

func (a *Agent) cancel(n domain.Notification) bool {
	if err := a.sink.Cancel(n.Key); err != nil {
		a.metrics.RecordCancelFailure()
		a.logger.Warn("failed to cancel notification",
			zap.String("package", n.PackageID),
			zap.String("key", n.Key),
			zap.Error(err))
		return false
	}
	return true
}

// Ensure Agent implements domain.ListenerCallbacks.
var _ domain.ListenerCallbacks = (*Agent)(nil)
