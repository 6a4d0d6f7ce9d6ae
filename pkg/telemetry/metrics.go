package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Metrics provides Prometheus metrics for watchdogs.
type Metrics struct {
	config MetricsConfig

	// Check metrics
	checksTotal   *prometheus.CounterVec
	checkDuration *prometheus.HistogramVec
	escalations   *prometheus.CounterVec

	// Listener metrics
	listenerErrors   *prometheus.CounterVec
	listenersRemoved *prometheus.CounterVec
	listeners        *prometheus.GaugeVec

	// Dispatch metrics
	queueDepth       *prometheus.GaugeVec
	dispatchBacklog  *prometheus.CounterVec
	notifierFailures *prometheus.CounterVec

	// Lifecycle
	running *prometheus.GaugeVec

	registry *prometheus.Registry
}

// NewMetrics creates a new metrics collector with the given configuration.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		// Return a no-op metrics instance
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		checksTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "checks_total",
				Help:      "Total number of completed checks by outcome",
			},
			[]string{"watchdog", "outcome"},
		),
		checkDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "check_duration_seconds",
				Help:      "Duration of checks in seconds",
				Buckets:   buckets,
			},
			[]string{"watchdog"},
		),
		escalations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "escalations_total",
				Help:      "Total number of impossible streaks escalated to failures",
			},
			[]string{"watchdog"},
		),

		listenerErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listener_errors_total",
				Help:      "Total number of listener callbacks that returned an error or panicked",
			},
			[]string{"watchdog", "callback"},
		),
		listenersRemoved: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "listeners_removed_total",
				Help:      "Total number of listeners removed after a failed callback",
			},
			[]string{"watchdog"},
		),
		listeners: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "listeners_registered",
				Help:      "Current number of registered listeners",
			},
			[]string{"watchdog"},
		),

		queueDepth: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "dispatch_queue_depth",
				Help:      "Current number of outcomes waiting for asynchronous delivery",
			},
			[]string{"watchdog"},
		),
		dispatchBacklog: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "dispatch_backlogged_total",
				Help:      "Total number of outcomes queued while the dispatch backlog exceeded the queue size",
			},
			[]string{"watchdog"},
		),
		notifierFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "notifier_failures_total",
				Help:      "Total number of notifications a notifier could not deliver",
			},
			[]string{"notifier"},
		),

		running: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "running",
				Help:      "Whether the watchdog loop is running (1=running, 0=stopped)",
			},
			[]string{"watchdog"},
		),
	}

	registry.MustRegister(
		m.checksTotal,
		m.checkDuration,
		m.escalations,
		m.listenerErrors,
		m.listenersRemoved,
		m.listeners,
		m.queueDepth,
		m.dispatchBacklog,
		m.notifierFailures,
		m.running,
	)

	return m, nil
}

// Check Metrics

// RecordCheck records a completed check with its outcome and duration.
func (m *Metrics) RecordCheck(watchdog, outcome string, duration time.Duration) {
	if m == nil || m.checksTotal == nil {
		return
	}
	m.checksTotal.WithLabelValues(watchdog, outcome).Inc()
	m.checkDuration.WithLabelValues(watchdog).Observe(duration.Seconds())
}

// RecordEscalation records an impossible streak that was escalated.
func (m *Metrics) RecordEscalation(watchdog string) {
	if m == nil || m.escalations == nil {
		return
	}
	m.escalations.WithLabelValues(watchdog).Inc()
}

// Listener Metrics

// RecordListenerError records a failed listener callback.
func (m *Metrics) RecordListenerError(watchdog, callback string) {
	if m == nil || m.listenerErrors == nil {
		return
	}
	m.listenerErrors.WithLabelValues(watchdog, callback).Inc()
}

// RecordListenerRemoved records a listener dropped from the registry.
func (m *Metrics) RecordListenerRemoved(watchdog string) {
	if m == nil || m.listenersRemoved == nil {
		return
	}
	m.listenersRemoved.WithLabelValues(watchdog).Inc()
}

// SetListeners sets the current number of registered listeners.
func (m *Metrics) SetListeners(watchdog string, count int) {
	if m == nil || m.listeners == nil {
		return
	}
	m.listeners.WithLabelValues(watchdog).Set(float64(count))
}

// Dispatch Metrics

// SetQueueDepth sets the current asynchronous dispatch queue depth.
func (m *Metrics) SetQueueDepth(watchdog string, depth int) {
	if m == nil || m.queueDepth == nil {
		return
	}
	m.queueDepth.WithLabelValues(watchdog).Set(float64(depth))
}

// RecordDispatchBacklogged records an outcome queued over the queue size.
func (m *Metrics) RecordDispatchBacklogged(watchdog string) {
	if m == nil || m.dispatchBacklog == nil {
		return
	}
	m.dispatchBacklog.WithLabelValues(watchdog).Inc()
}

// RecordNotifierFailure records a notification a notifier could not deliver.
func (m *Metrics) RecordNotifierFailure(notifier string) {
	if m == nil || m.notifierFailures == nil {
		return
	}
	m.notifierFailures.WithLabelValues(notifier).Inc()
}

// System Metrics

// SetRunning sets whether the watchdog loop is running.
func (m *Metrics) SetRunning(watchdog string, running bool) {
	if m == nil || m.running == nil {
		return
	}
	value := 0.0
	if running {
		value = 1.0
	}
	m.running.WithLabelValues(watchdog).Set(value)
}

// Registry returns the private Prometheus registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// MetricsServer serves the metrics endpoint plus any extra handlers.
type MetricsServer struct {
	server *http.Server
	logger zerolog.Logger
}

// StartMetricsServer starts an HTTP server to expose metrics. Extra handlers
// are mounted next to the metrics path. It returns nil when metrics are disabled.
func (m *Metrics) StartMetricsServer(logger zerolog.Logger, extra map[string]http.Handler) *MetricsServer {
	if m == nil || !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	for path, h := range extra {
		mux.Handle(path, h)
	}

	s := &MetricsServer{
		server: &http.Server{
			Addr:              m.config.ListenAddress,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		logger: logger,
	}

	go func() {
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			// Log error but don't fail the application
			s.logger.Error().Err(err).Str("addr", m.config.ListenAddress).Msg("metrics server error")
		}
	}()

	return s
}

// Shutdown stops the metrics server.
func (s *MetricsServer) Shutdown(ctx context.Context) error {
	if s == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}
