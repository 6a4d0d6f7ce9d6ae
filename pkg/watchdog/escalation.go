package watchdog

import (
	"context"
	"fmt"
	"sync"

	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/rs/zerolog"
)

// DefaultMaxRetries is the number of consecutive impossible outcomes an
// EscalationListener absorbs before it reports a failure.
const DefaultMaxRetries = 3

// EscalationListener wraps a downstream Listener and turns a run of
// impossible outcomes into a single failure.
//
// OK resets the run and is forwarded. Failed is forwarded immediately and
// leaves the run untouched. Impossible is absorbed until MaxRetries
// consecutive ones have been seen; the downstream listener then receives
// one OnFailed call whose cause is an *EscalationError, and the run resets.
type EscalationListener struct {
	next       Listener
	maxRetries int
	name       string
	logger     zerolog.Logger
	metrics    *telemetry.Metrics
	events     *telemetry.EventPublisher

	mu     sync.Mutex
	causes []error
}

// EscalationOption configures an EscalationListener.
type EscalationOption func(*EscalationListener)

// WithMaxRetries sets the number of consecutive impossible outcomes that
// trigger an escalation. It must be at least 1.
func WithMaxRetries(n int) EscalationOption {
	return func(e *EscalationListener) {
		e.maxRetries = n
	}
}

// WithEscalationName labels logs, metrics and events with a watchdog name.
func WithEscalationName(name string) EscalationOption {
	return func(e *EscalationListener) {
		e.name = name
	}
}

// WithEscalationLogger sets the logger.
func WithEscalationLogger(logger zerolog.Logger) EscalationOption {
	return func(e *EscalationListener) {
		e.logger = logger
	}
}

// WithEscalationMetrics records escalations in m.
func WithEscalationMetrics(m *telemetry.Metrics) EscalationOption {
	return func(e *EscalationListener) {
		e.metrics = m
	}
}

// WithEscalationEvents publishes a check.escalated event per escalation.
func WithEscalationEvents(ep *telemetry.EventPublisher) EscalationOption {
	return func(e *EscalationListener) {
		e.events = ep
	}
}

// NewEscalationListener wraps next.
func NewEscalationListener(next Listener, opts ...EscalationOption) (*EscalationListener, error) {
	if next == nil {
		return nil, ErrNilListener
	}

	e := &EscalationListener{
		next:       next,
		maxRetries: DefaultMaxRetries,
		logger:     zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.maxRetries < 1 {
		return nil, fmt.Errorf("max retries must be at least 1, got %d", e.maxRetries)
	}
	e.logger = e.logger.With().Str("component", "escalation").Str("watchdog", e.name).Logger()

	return e, nil
}

// OnOK resets the retry state and forwards to the downstream listener.
func (e *EscalationListener) OnOK(ctx context.Context, subject any) error {
	e.Reset()
	return e.next.OnOK(ctx, subject)
}

// OnFailed forwards to the downstream listener. The retry state is kept.
func (e *EscalationListener) OnFailed(ctx context.Context, subject any, cause error) error {
	return e.next.OnFailed(ctx, subject, cause)
}

// OnImpossible records cause and escalates once the threshold is reached.
func (e *EscalationListener) OnImpossible(ctx context.Context, subject any, cause error) error {
	e.mu.Lock()
	e.causes = append(e.causes, cause)
	count := len(e.causes)
	if count < e.maxRetries {
		e.mu.Unlock()
		e.logger.Debug().
			Err(cause).
			Int("retry", count).
			Int("max_retries", e.maxRetries).
			Msg("check impossible, waiting before escalation")
		return nil
	}

	escalated := &EscalationError{
		AttemptedRetries: e.maxRetries,
		Outcomes:         e.causes,
	}
	e.causes = nil
	e.mu.Unlock()

	e.logger.Warn().
		Err(escalated).
		Int("attempts", escalated.AttemptedRetries).
		Msg("check impossible too many times, escalating to failure")
	e.metrics.RecordEscalation(e.name)
	if err := e.events.PublishCheckEscalated(e.name, escalated.AttemptedRetries, escalated.Error()); err != nil {
		e.logger.Debug().Err(err).Msg("escalation event not published")
	}

	return e.next.OnFailed(ctx, subject, escalated)
}

// RetryCount returns the number of consecutive impossible outcomes absorbed so far.
func (e *EscalationListener) RetryCount() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.causes)
}

// Reset clears the retry state.
func (e *EscalationListener) Reset() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.causes = nil
}

// MaxRetries returns the escalation threshold.
func (e *EscalationListener) MaxRetries() int {
	return e.maxRetries
}
