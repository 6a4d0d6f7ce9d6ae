package watchdog

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/rs/zerolog"
)

// Watchdog runs a Checker periodically and reports every outcome to its
// registered listeners.
//
// One goroutine per running watchdog sleeps for the check interval, runs the
// check and dispatches the outcome. Checks never overlap. A failing check or
// listener never stops the loop; only Stop or cancellation of the context
// passed to Start does.
type Watchdog struct {
	name    string
	checker Checker

	interval        atomic.Int64
	startBySleeping bool
	subjectFunc     SubjectFunc
	removeFailed    bool
	queueSize       int
	checkTimeout    time.Duration

	logger  zerolog.Logger
	metrics *telemetry.Metrics
	tracer  *telemetry.Tracer
	events  *telemetry.EventPublisher

	registry *Registry
	trigger  chan struct{}
	counters counters

	mu     sync.Mutex
	state  State
	mode   DispatchMode
	cancel context.CancelFunc
	done   chan struct{}
	last   Outcome
}

// New creates a watchdog named name that runs checker.
func New(name string, checker Checker, opts ...Option) (*Watchdog, error) {
	if checker == nil {
		return nil, errors.New("checker is nil")
	}

	w := &Watchdog{
		name:         name,
		checker:      checker,
		removeFailed: true,
		queueSize:    DefaultQueueSize,
		logger:       zerolog.Nop(),
		registry:     NewRegistry(),
		trigger:      make(chan struct{}, 1),
		done:         make(chan struct{}),
	}
	close(w.done)
	w.interval.Store(int64(DefaultCheckInterval))

	for _, opt := range opts {
		opt(w)
	}

	if w.CheckInterval() <= 0 {
		return nil, ErrInvalidInterval
	}
	if w.queueSize <= 0 {
		return nil, fmt.Errorf("queue size must be positive, got %d", w.queueSize)
	}
	if w.checkTimeout < 0 {
		return nil, fmt.Errorf("check timeout must not be negative, got %s", w.checkTimeout)
	}
	w.logger = w.logger.With().Str("component", "watchdog").Str("watchdog", name).Logger()

	return w, nil
}

// Name returns the watchdog name.
func (w *Watchdog) Name() string {
	return w.name
}

// Start launches the scheduler loop. It is permitted from the idle and
// stopped states. Cancelling ctx stops the watchdog like Stop does.
func (w *Watchdog) Start(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning || w.state == StateShuttingDown {
		return ErrAlreadyRunning
	}

	loopCtx, cancel := context.WithCancel(ctx)
	w.cancel = cancel
	w.done = make(chan struct{})
	w.state = StateRunning

	d := newDispatcher(w.mode, w.queueSize, w.deliver, w.backlogged, w.queueDepth)
	go w.run(loopCtx, cancel, d, w.done)

	w.logger.Info().
		Dur("interval", w.CheckInterval()).
		Str("mode", w.mode.String()).
		Bool("start_by_sleeping", w.startBySleeping).
		Msg("watchdog started")
	w.metrics.SetRunning(w.name, true)
	w.metrics.SetListeners(w.name, w.registry.Len())
	w.publish(w.events.PublishWatchdogStarted(w.name, w.CheckInterval()))

	return nil
}

// Stop requests termination and interrupts a pending sleep. It does not wait
// for the loop to exit; use Done or Wait for that. Stop is idempotent once
// the watchdog has been started and returns ErrNotStarted before that.
//
// An in-flight check sees its context cancelled and its outcome is not
// dispatched. Outcomes already queued for asynchronous delivery may still be
// delivered after Stop returns. A listener callback in progress runs to
// completion with a context Stop does not cancel.
func (w *Watchdog) Stop() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	switch w.state {
	case StateIdle:
		return ErrNotStarted
	case StateRunning:
		w.state = StateShuttingDown
		w.cancel()
		w.logger.Info().Msg("watchdog stopping")
	}
	return nil
}

// IsRunning reports whether the loop is running and no stop was requested.
func (w *Watchdog) IsRunning() bool {
	return w.State() == StateRunning
}

// State returns the lifecycle state.
func (w *Watchdog) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Done returns a channel that is closed once the loop and any dispatch
// worker of the current run have exited. It is closed before the first Start.
func (w *Watchdog) Done() <-chan struct{} {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.done
}

// Wait blocks until Done is closed or ctx ends.
func (w *Watchdog) Wait(ctx context.Context) error {
	select {
	case <-w.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// AddListener registers l. Registering a listener twice is a no-op.
func (w *Watchdog) AddListener(l Listener) error {
	if err := w.registry.Add(l); err != nil {
		return err
	}
	w.metrics.SetListeners(w.name, w.registry.Len())
	return nil
}

// RemoveListener unregisters l and reports whether it was registered.
func (w *Watchdog) RemoveListener(l Listener) bool {
	removed := w.registry.Remove(l)
	if removed {
		w.metrics.SetListeners(w.name, w.registry.Len())
	}
	return removed
}

// ClearListeners unregisters every listener.
func (w *Watchdog) ClearListeners() {
	w.registry.Clear()
	w.metrics.SetListeners(w.name, 0)
}

// Listeners returns the registered listeners in registration order.
func (w *Watchdog) Listeners() []Listener {
	return w.registry.Snapshot()
}

// SetSynchronous switches between synchronous and asynchronous dispatch.
// The mode cannot change while the watchdog is running.
func (w *Watchdog) SetSynchronous(synchronous bool) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.state == StateRunning || w.state == StateShuttingDown {
		return ErrRunning
	}
	if synchronous {
		w.mode = DispatchSync
	} else {
		w.mode = DispatchAsync
	}
	return nil
}

// Mode returns the dispatch mode.
func (w *Watchdog) Mode() DispatchMode {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.mode
}

// SetCheckInterval changes the sleep between checks. A running watchdog
// uses the new value from its next sleep on.
func (w *Watchdog) SetCheckInterval(d time.Duration) error {
	if d <= 0 {
		return ErrInvalidInterval
	}
	if old := time.Duration(w.interval.Swap(int64(d))); old != d {
		w.logger.Info().Dur("old", old).Dur("new", d).Msg("check interval changed")
	}
	return nil
}

// CheckInterval returns the sleep between checks.
func (w *Watchdog) CheckInterval() time.Duration {
	return time.Duration(w.interval.Load())
}

// Trigger cuts the current sleep short so the next check runs now. If a
// check is in progress, the following sleep is skipped instead.
func (w *Watchdog) Trigger() {
	select {
	case w.trigger <- struct{}{}:
	default:
	}
}

// Status returns a snapshot of the watchdog.
func (w *Watchdog) Status() Status {
	w.mu.Lock()
	st := Status{
		Name:          w.name,
		State:         w.state,
		Mode:          w.mode,
		LastOutcome:   w.last.Kind,
		LastCheckedAt: w.last.CheckedAt,
		LastDuration:  w.last.Duration,
	}
	if w.last.Cause != nil {
		st.LastCause = w.last.Cause.Error()
	}
	w.mu.Unlock()

	st.CheckInterval = w.CheckInterval()
	st.Cycles = w.counters.cycles.Load()
	st.Backlogged = w.counters.backlogged.Load()
	st.Listeners = w.registry.Len()
	return st
}

// run is the scheduler loop.
func (w *Watchdog) run(ctx context.Context, cancel context.CancelFunc, d dispatcher, done chan struct{}) {
	defer func() {
		<-d.close()
		cancel()

		w.metrics.SetRunning(w.name, false)
		w.metrics.SetQueueDepth(w.name, 0)
		cycles := w.counters.cycles.Load()
		w.publish(w.events.PublishWatchdogStopped(w.name, cycles))
		w.logger.Info().Uint64("cycles", cycles).Msg("watchdog stopped")

		// A restart is accepted only from here on, so its started metric
		// and event always follow this run's stopped ones.
		w.mu.Lock()
		w.state = StateStopped
		w.mu.Unlock()
		close(done)
	}()

	sleepFirst := w.startBySleeping
	for {
		if sleepFirst && !w.sleep(ctx) {
			return
		}
		sleepFirst = true

		if !w.active(ctx) {
			return
		}
		w.check(ctx, d)
	}
}

// sleep waits for the check interval, a trigger or cancellation. It returns
// false when the loop must exit.
func (w *Watchdog) sleep(ctx context.Context) bool {
	timer := time.NewTimer(w.CheckInterval())
	defer timer.Stop()

	select {
	case <-timer.C:
		return true
	case <-w.trigger:
		return true
	case <-ctx.Done():
		return false
	}
}

// active reports whether another check may start. It synchronizes with Stop
// so that no check begins after Stop has returned.
func (w *Watchdog) active(ctx context.Context) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state == StateRunning && ctx.Err() == nil
}

// check runs one cycle: resolve the subject, run the checker, classify and
// dispatch the outcome.
func (w *Watchdog) check(ctx context.Context, d dispatcher) {
	cycle := w.counters.cycles.Add(1)
	checkID := uuid.NewString()
	logger := w.logger.With().Uint64("cycle", cycle).Str("check_id", checkID).Logger()

	ctx, span := w.tracer.StartCheckSpan(ctx, w.name, checkID, cycle)
	defer span.End()

	started := time.Now()
	subject, err := w.subject()
	if err == nil {
		checkCtx, cancel := ctx, context.CancelFunc(func() {})
		if w.checkTimeout > 0 {
			checkCtx, cancel = context.WithTimeout(ctx, w.checkTimeout)
		}
		err = runCheck(checkCtx, w.checker, subject)
		cancel()
	}
	duration := time.Since(started)

	if err != nil && ctx.Err() != nil {
		logger.Debug().Err(err).Msg("check aborted by shutdown, outcome discarded")
		telemetry.AddEvent(span, "check.aborted")
		return
	}

	o := Classify(subject, err)
	o.CheckedAt = started
	o.Duration = duration

	w.mu.Lock()
	w.last = o
	w.mu.Unlock()

	telemetry.SetAttributes(span, telemetry.AttrOutcome.String(o.Kind.String()))
	if o.Cause != nil {
		telemetry.RecordError(span, o.Cause)
	} else {
		telemetry.RecordSuccess(span)
	}
	w.metrics.RecordCheck(w.name, o.Kind.String(), duration)
	w.publish(w.events.PublishCheck(w.name, checkID, o.Kind.String(), duration, o.Cause))

	event := logger.Debug()
	if o.Kind != OutcomeOK {
		event = logger.Warn().Err(o.Cause)
	}
	event.Str("outcome", o.Kind.String()).Dur("duration", duration).Msg("check completed")

	d.dispatch(ctx, delivery{outcome: o, checkID: checkID, cycle: cycle})
}

// subject resolves the subject of the next check.
func (w *Watchdog) subject() (subject any, err error) {
	if w.subjectFunc == nil {
		return nil, nil
	}
	defer func() {
		if r := recover(); r != nil {
			err = NewFailedError("subject function panicked", panicError(r))
		}
	}()
	return w.subjectFunc(), nil
}

// deliver hands an outcome to every registered listener. A listener that
// fails is reported and, if configured, removed; delivery continues with the
// remaining listeners either way.
func (w *Watchdog) deliver(ctx context.Context, d delivery) {
	callback := callbackName(d.outcome.Kind)

	for _, l := range w.registry.Snapshot() {
		// Skip listeners removed since the snapshot was taken.
		if !w.registry.Contains(l) {
			continue
		}

		err := notify(ctx, l, d.outcome)
		if err == nil {
			continue
		}

		lerr := &ListenerError{Listener: l, Callback: callback, Err: err}
		listener := fmt.Sprintf("%T", l)
		w.metrics.RecordListenerError(w.name, callback)
		telemetry.AddListenerEvent(telemetry.SpanFromContext(ctx), callback, err.Error())
		w.logger.Warn().
			Err(lerr).
			Str("listener", listener).
			Str("callback", callback).
			Uint64("cycle", d.cycle).
			Msg("listener callback failed")

		if w.removeFailed && w.registry.Remove(l) {
			w.metrics.RecordListenerRemoved(w.name)
			w.metrics.SetListeners(w.name, w.registry.Len())
			w.publish(w.events.PublishListenerRemoved(w.name, callback, err.Error()))
			w.logger.Warn().Str("listener", listener).Msg("failed listener removed")
		}
	}
}

// backlogged is called when an outcome is queued while the asynchronous
// backlog already exceeds the queue size. The outcome is still delivered.
func (w *Watchdog) backlogged(d delivery) {
	w.counters.backlogged.Add(1)
	w.metrics.RecordDispatchBacklogged(w.name)
	w.publish(w.events.PublishDispatchBacklogged(w.name, d.checkID, d.outcome.Kind.String()))
	w.logger.Warn().
		Str("outcome", d.outcome.Kind.String()).
		Uint64("cycle", d.cycle).
		Msg("dispatch backlog over queue size, listeners are falling behind")
}

func (w *Watchdog) queueDepth(n int) {
	w.metrics.SetQueueDepth(w.name, n)
}

// publish logs an event publishing error. Events are best effort.
func (w *Watchdog) publish(err error) {
	if err != nil {
		w.logger.Debug().Err(err).Msg("event not published")
	}
}
