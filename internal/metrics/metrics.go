// Package metrics exposes Prometheus metrics for the listener and catalog.
// All methods are safe on a nil *Metrics so callers can run without metrics.
package metrics

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

const namespace = "notifmon"

// Decision labels for NotificationsTotal.
const (
	DecisionAllowed    = "allowed"
	DecisionSuppressed = "suppressed"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	registry *prometheus.Registry

	NotificationsTotal *prometheus.CounterVec
	CancelFailures     prometheus.Counter
	SweepsTotal        prometheus.Counter
	ListenerConnected  prometheus.Gauge
	CatalogApps        prometheus.Gauge
}

// New creates metrics registered on a private registry.
func New() *Metrics {
	reg := prometheus.NewRegistry()
	m := &Metrics{
		registry: reg,
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifications_total",
				Help:      "Posted notifications seen by the listener, by decision",
			},
			[]string{"decision"},
		),
		CancelFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cancel_failures_total",
			Help:      "Suppressed notifications the host failed to withdraw",
		}),
		SweepsTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "connect_sweeps_total",
			Help:      "Active-notification sweeps run on listener connect",
		}),
		ListenerConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "listener_connected",
			Help:      "1 while the listener is attached to the notification host",
		}),
		CatalogApps: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "catalog_apps",
			Help:      "Launchable apps in the last catalog rebuild",
		}),
	}

	reg.MustRegister(
		m.NotificationsTotal,
		m.CancelFailures,
		m.SweepsTotal,
		m.ListenerConnected,
		m.CatalogApps,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry returns the registry metrics are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// RecordDecision counts a posted-notification decision.
func (m *Metrics) RecordDecision(suppressed bool) {
	if m == nil {
		return
	}
	decision := DecisionAllowed
	if suppressed {
		decision = DecisionSuppressed
	}
	m.NotificationsTotal.WithLabelValues(decision).Inc()
}

// RecordCancelFailure counts a failed withdrawal.
func (m *Metrics) RecordCancelFailure() {
	if m == nil {
		return
	}
	m.CancelFailures.Inc()
}

// RecordSweep counts a connect sweep.
func (m *Metrics) RecordSweep() {
	if m == nil {
		return
	}
	m.SweepsTotal.Inc()
}

// SetConnected records the listener attachment state.
func (m *Metrics) SetConnected(connected bool) {
	if m == nil {
		return
	}
	if connected {
		m.ListenerConnected.Set(1)
	} else {
		m.ListenerConnected.Set(0)
	}
}

// SetCatalogSize records the number of apps in the last rebuild.
func (m *Metrics) SetCatalogSize(n int) {
	if m == nil {
		return
	}
	m.CatalogApps.Set(float64(n))
}

// Serve exposes /metrics on addr until ctx is canceled.
func (m *Metrics) Serve(ctx context.Context, addr string, logger *zap.Logger) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	srv := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	logger.Info("metrics server listening", zap.String("addr", addr))
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
