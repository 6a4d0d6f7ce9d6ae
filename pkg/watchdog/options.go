package watchdog

import (
	"time"

	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/rs/zerolog"
)

const (
	// DefaultCheckInterval is the sleep between two checks.
	DefaultCheckInterval = 10 * time.Second

	// DefaultQueueSize is the asynchronous backlog above which outcomes are
	// reported as backlogged.
	DefaultQueueSize = 64
)

// Option configures a Watchdog.
type Option func(*Watchdog)

// WithCheckInterval sets the sleep between two checks.
func WithCheckInterval(d time.Duration) Option {
	return func(w *Watchdog) {
		w.interval.Store(int64(d))
	}
}

// WithStartBySleeping makes the first cycle sleep before checking.
// By default the first check runs as soon as the watchdog starts.
func WithStartBySleeping(v bool) Option {
	return func(w *Watchdog) {
		w.startBySleeping = v
	}
}

// WithSubjectFunc sets the function that supplies the subject of each check.
func WithSubjectFunc(fn SubjectFunc) Option {
	return func(w *Watchdog) {
		w.subjectFunc = fn
	}
}

// WithSubject checks the same subject on every cycle.
func WithSubject(subject any) Option {
	return WithSubjectFunc(func() any { return subject })
}

// WithDispatchMode selects synchronous or asynchronous listener delivery.
func WithDispatchMode(mode DispatchMode) Option {
	return func(w *Watchdog) {
		w.mode = mode
	}
}

// WithRemoveFailedListeners controls whether a listener whose callback
// returns an error or panics is removed from the registry. Default true.
func WithRemoveFailedListeners(v bool) Option {
	return func(w *Watchdog) {
		w.removeFailed = v
	}
}

// WithQueueSize sets the asynchronous backlog above which each queued
// outcome is reported as backlogged. Outcomes are never dropped.
func WithQueueSize(n int) Option {
	return func(w *Watchdog) {
		w.queueSize = n
	}
}

// WithCheckTimeout bounds each check. A check that runs out of time is
// reported as impossible. Zero means no timeout.
func WithCheckTimeout(d time.Duration) Option {
	return func(w *Watchdog) {
		w.checkTimeout = d
	}
}

// WithLogger sets the logger. The default discards everything.
func WithLogger(logger zerolog.Logger) Option {
	return func(w *Watchdog) {
		w.logger = logger
	}
}

// WithMetrics records check and dispatch metrics in m.
func WithMetrics(m *telemetry.Metrics) Option {
	return func(w *Watchdog) {
		w.metrics = m
	}
}

// WithTracer starts a span per check cycle.
func WithTracer(t *telemetry.Tracer) Option {
	return func(w *Watchdog) {
		w.tracer = t
	}
}

// WithEvents publishes lifecycle and check events to ep.
func WithEvents(ep *telemetry.EventPublisher) Option {
	return func(w *Watchdog) {
		w.events = ep
	}
}
