// Package daemon runs the listener agent as a long-lived background process.
package daemon

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/eliteGoblin/focusd/notif_mon/internal/domain"
	"github.com/eliteGoblin/focusd/notif_mon/internal/metrics"
)

// Listener is the agent the host attaches. Implementation: listener.Agent.
type Listener interface {
	domain.ListenerCallbacks
	State() domain.ListenerState
	ConnectedAt() time.Time
}

// RunnerConfig holds daemon loop configuration.
type RunnerConfig struct {
	ReconnectInterval time.Duration // Wait before reattaching after the host drops us
	HeartbeatInterval time.Duration // How often to publish the status record
	MetricsAddr       string        // Empty disables the metrics server
	Version           string
}

// DefaultRunnerConfig returns default runner configuration.
func DefaultRunnerConfig() RunnerConfig {
	return RunnerConfig{
		ReconnectInterval: 5 * time.Second,
		HeartbeatInterval: 30 * time.Second,
	}
}

// Runner keeps the listener attached to the notification host.
// It reattaches after the host drops, publishes a heartbeat status record,
// and serves metrics when configured.
type Runner struct {
	config   RunnerConfig
	host     domain.NotificationHost
	listener Listener
	status   domain.StatusRegistry
	procs    domain.ProcessManager
	metrics  *metrics.Metrics
	logger   *zap.Logger

	statusMu sync.Mutex // orders heartbeat and transition writes
}

// publishingListener publishes the status record on every attach and detach.
type publishingListener struct {
	Listener
	publish func()
}

func (p publishingListener) OnConnected(ctx context.Context) {
	p.Listener.OnConnected(ctx)
	p.publish()
}

func (p publishingListener) OnDisconnected() {
	p.Listener.OnDisconnected()
	p.publish()
}

// NewRunner creates a daemon runner. m may be nil.
func NewRunner(
	config RunnerConfig,
	host domain.NotificationHost,
	listener Listener,
	status domain.StatusRegistry,
	procs domain.ProcessManager,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Runner {
	return &Runner{
		config:   config,
		host:     host,
		listener: listener,
		status:   status,
		procs:    procs,
		metrics:  m,
		logger:   logger,
	}
}

// Run blocks until ctx is canceled. The status record is removed on return.
func (r *Runner) Run(ctx context.Context) error {
	r.logger.Info("listener daemon started",
		zap.Int("pid", r.procs.GetCurrentPID()),
		zap.String("version", r.config.Version))

	defer func() {
		if err := r.status.Clear(); err != nil {
			r.logger.Warn("failed to clear status", zap.Error(err))
		}
	}()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		r.serveLoop(ctx)
		return nil
	})

	g.Go(func() error {
		r.heartbeatLoop(ctx)
		return nil
	})

	if r.config.MetricsAddr != "" && r.metrics != nil {
		g.Go(func() error {
			// A bind failure is logged, not fatal.
			if err := r.metrics.Serve(ctx, r.config.MetricsAddr, r.logger); err != nil {
				r.logger.Error("metrics server failed", zap.Error(err))
			}
			return nil
		})
	}

	err := g.Wait()
	r.logger.Info("listener daemon stopping")
	return err
}

// serveLoop attaches the listener and reattaches whenever the host drops it.
func (r *Runner) serveLoop(ctx context.Context) {
	callbacks := publishingListener{Listener: r.listener, publish: r.writeStatus}
	for {
		err := r.host.Serve(ctx, callbacks)
		if ctx.Err() != nil {
			return
		}

		switch {
		case errors.Is(err, domain.ErrPermissionDenied):
			r.logger.Warn("listener permission not granted, retrying",
				zap.Duration("retry_in", r.config.ReconnectInterval),
				zap.Error(err))
		case err != nil:
			r.logger.Warn("listener detached, reattaching",
				zap.Duration("retry_in", r.config.ReconnectInterval),
				zap.Error(err))
		default:
			r.logger.Info("listener detached, reattaching")
		}

		r.writeStatus()

		select {
		case <-ctx.Done():
			return
		case <-time.After(r.config.ReconnectInterval):
		}
	}
}

func (r *Runner) heartbeatLoop(ctx context.Context) {
	r.writeStatus()

	ticker := time.NewTicker(r.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.writeStatus()
		}
	}
}

// writeStatus publishes the current listener state for the status command.
func (r *Runner) writeStatus() {
	r.statusMu.Lock()
	defer r.statusMu.Unlock()

	status := domain.ListenerStatus{
		PID:           r.procs.GetCurrentPID(),
		State:         r.listener.State(),
		LastHeartbeat: time.Now().Unix(),
		Version:       r.config.Version,
	}
	if at := r.listener.ConnectedAt(); !at.IsZero() && status.State == domain.StateConnected {
		status.ConnectedAt = at.Unix()
	}

	if err := r.status.Save(status); err != nil {
		r.logger.Warn("failed to update heartbeat", zap.Error(err))
	}
}
