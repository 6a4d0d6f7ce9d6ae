package watchdog

import (
	"context"
	"fmt"
	"sync"
)

// DispatchMode selects how outcomes reach listeners.
type DispatchMode int

const (
	// DispatchSync delivers outcomes on the scheduler goroutine, in
	// registration order. A slow listener delays the next check.
	DispatchSync DispatchMode = iota

	// DispatchAsync hands outcomes to a single worker goroutine through a
	// queue. A slow listener stalls the worker, never the scheduler, and no
	// outcome is discarded.
	DispatchAsync
)

// String returns the mode name.
func (m DispatchMode) String() string {
	if m == DispatchAsync {
		return "async"
	}
	return "sync"
}

// MarshalText implements encoding.TextMarshaler.
func (m DispatchMode) MarshalText() ([]byte, error) {
	return []byte(m.String()), nil
}

// ParseDispatchMode parses "sync" or "async".
func ParseDispatchMode(s string) (DispatchMode, error) {
	switch s {
	case "sync", "synchronous":
		return DispatchSync, nil
	case "async", "asynchronous":
		return DispatchAsync, nil
	default:
		return DispatchSync, fmt.Errorf("unknown dispatch mode %q", s)
	}
}

// delivery is one outcome on its way to the listeners.
type delivery struct {
	outcome Outcome
	checkID string
	cycle   uint64
}

// deliverFunc delivers one outcome to every registered listener.
type deliverFunc func(ctx context.Context, d delivery)

// dispatcher is the strategy that moves an outcome from the scheduler to the
// listeners. dispatch is only ever called from the scheduler goroutine.
type dispatcher interface {
	dispatch(ctx context.Context, d delivery)

	// close stops accepting outcomes. The returned channel is closed once
	// every accepted outcome has been delivered.
	close() <-chan struct{}
}

func newDispatcher(mode DispatchMode, queueSize int, deliver deliverFunc, backlogged func(delivery), depth func(int)) dispatcher {
	if mode == DispatchAsync {
		return newAsyncDispatcher(queueSize, deliver, backlogged, depth)
	}
	return &syncDispatcher{deliver: deliver}
}

// syncDispatcher delivers in the caller's goroutine. Listeners get a context
// that Stop does not cancel: a callback in flight runs to completion.
type syncDispatcher struct {
	deliver deliverFunc
}

func (s *syncDispatcher) dispatch(ctx context.Context, d delivery) {
	s.deliver(context.WithoutCancel(ctx), d)
}

func (s *syncDispatcher) close() <-chan struct{} {
	done := make(chan struct{})
	close(done)
	return done
}

// asyncDispatcher delivers from a single worker goroutine so that outcome
// and per-outcome listener order are preserved.
//
// The queue is unbounded: dropping an outcome would hide a state change from
// listeners, such as the ok that resets an escalation. Outcomes queued beyond
// limit are reported through backlogged so a stuck listener is visible.
type asyncDispatcher struct {
	mu      sync.Mutex
	cond    *sync.Cond
	pending []queued
	closed  bool

	limit      int
	done       chan struct{}
	deliver    deliverFunc
	backlogged func(delivery)
	depth      func(int)
}

// queued carries the dispatching context's values, without its
// cancellation, so that outcomes drained after Stop are still delivered.
type queued struct {
	ctx context.Context
	d   delivery
}

func newAsyncDispatcher(limit int, deliver deliverFunc, backlogged func(delivery), depth func(int)) *asyncDispatcher {
	if limit <= 0 {
		limit = DefaultQueueSize
	}
	a := &asyncDispatcher{
		limit:      limit,
		done:       make(chan struct{}),
		deliver:    deliver,
		backlogged: backlogged,
		depth:      depth,
	}
	a.cond = sync.NewCond(&a.mu)
	go a.run()
	return a
}

// dispatch never blocks on listeners.
func (a *asyncDispatcher) dispatch(ctx context.Context, d delivery) {
	a.mu.Lock()
	a.pending = append(a.pending, queued{ctx: context.WithoutCancel(ctx), d: d})
	n := len(a.pending)
	a.cond.Signal()
	a.mu.Unlock()

	a.depth(n)
	if n > a.limit {
		a.backlogged(d)
	}
}

func (a *asyncDispatcher) close() <-chan struct{} {
	a.mu.Lock()
	a.closed = true
	a.cond.Broadcast()
	a.mu.Unlock()
	return a.done
}

// run delivers queued outcomes until the dispatcher is closed and the queue
// is empty. Outcomes accepted before close are still delivered.
func (a *asyncDispatcher) run() {
	defer close(a.done)
	for {
		a.mu.Lock()
		for len(a.pending) == 0 && !a.closed {
			a.cond.Wait()
		}
		if len(a.pending) == 0 {
			a.mu.Unlock()
			return
		}
		q := a.pending[0]
		a.pending[0] = queued{}
		a.pending = a.pending[1:]
		n := len(a.pending)
		a.mu.Unlock()

		a.depth(n)
		a.deliver(q.ctx, q.d)
	}
}
