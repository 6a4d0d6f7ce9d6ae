package watchdog

import (
	"context"
	"errors"
	"strings"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/openfroyo/watchdog/pkg/telemetry"
)

func newTestWatchdog(t *testing.T, checker Checker, opts ...Option) *Watchdog {
	t.Helper()
	if checker == nil {
		checker = CheckFunc(func(context.Context, any) error { return nil })
	}
	w, err := New("test", checker, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return w
}

func TestDeliverIsolatesFailingListener(t *testing.T) {
	tests := []struct {
		name string
		a    *ListenerFuncs
	}{
		{
			name: "error",
			a: &ListenerFuncs{OK: func(context.Context, any) error {
				return errors.New("smtp down")
			}},
		},
		{
			name: "panic",
			a: &ListenerFuncs{OK: func(context.Context, any) error {
				panic("nil map")
			}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := newTestWatchdog(t, nil)
			b := newRecorder()
			_ = w.AddListener(tt.a)
			_ = w.AddListener(b)

			w.deliver(context.Background(), delivery{outcome: OK(nil)})

			if len(b.Calls()) != 1 {
				t.Fatalf("B received %d calls, want 1", len(b.Calls()))
			}
			if w.registry.Contains(tt.a) {
				t.Error("failing listener A should have been removed")
			}

			w.deliver(context.Background(), delivery{outcome: OK(nil)})

			if len(b.Calls()) != 2 {
				t.Errorf("B received %d calls, want 2", len(b.Calls()))
			}
			if got := w.Listeners(); len(got) != 1 || got[0] != b {
				t.Errorf("Listeners() = %v, want only B", got)
			}
		})
	}
}

func TestDeliverKeepsFailingListenerWhenConfigured(t *testing.T) {
	w := newTestWatchdog(t, nil, WithRemoveFailedListeners(false))
	var calls atomic.Int32
	a := &ListenerFuncs{Failed: func(context.Context, any, error) error {
		calls.Add(1)
		return errors.New("still broken")
	}}
	_ = w.AddListener(a)

	for i := 0; i < 3; i++ {
		w.deliver(context.Background(), delivery{outcome: Failed(nil, errors.New("bad"))})
	}

	if calls.Load() != 3 {
		t.Errorf("listener called %d times, want 3", calls.Load())
	}
	if !w.registry.Contains(a) {
		t.Error("listener should stay registered")
	}
}

func TestDeliverRoutesByKind(t *testing.T) {
	w := newTestWatchdog(t, nil)
	rec := newRecorder()
	_ = w.AddListener(rec)

	cause := errors.New("unreachable")
	w.deliver(context.Background(), delivery{outcome: OK("s1")})
	w.deliver(context.Background(), delivery{outcome: Failed("s2", cause)})
	w.deliver(context.Background(), delivery{outcome: Impossible("s3", cause)})

	calls := rec.Calls()
	want := []call{
		{kind: OutcomeOK, subject: "s1"},
		{kind: OutcomeFailed, subject: "s2", cause: cause},
		{kind: OutcomeImpossible, subject: "s3", cause: cause},
	}
	if len(calls) != len(want) {
		t.Fatalf("got %d calls, want %d", len(calls), len(want))
	}
	for i := range want {
		if calls[i] != want[i] {
			t.Errorf("call %d = %+v, want %+v", i, calls[i], want[i])
		}
	}
}

func TestDeliverSkipsListenerRemovedMidDispatch(t *testing.T) {
	w := newTestWatchdog(t, nil)
	b := newRecorder()
	a := &ListenerFuncs{OK: func(context.Context, any) error {
		w.RemoveListener(b)
		return nil
	}}
	_ = w.AddListener(a)
	_ = w.AddListener(b)

	w.deliver(context.Background(), delivery{outcome: OK(nil)})

	if n := len(b.Calls()); n != 0 {
		t.Errorf("removed listener received %d calls, want 0", n)
	}
}

func TestAsyncDispatcherPreservesOrder(t *testing.T) {
	var mu sync.Mutex
	var got []uint64
	deliver := func(_ context.Context, d delivery) {
		mu.Lock()
		got = append(got, d.cycle)
		mu.Unlock()
	}

	a := newAsyncDispatcher(16, deliver, func(delivery) { t.Error("unexpected drop") }, func(int) {})
	for i := uint64(1); i <= 10; i++ {
		a.dispatch(context.Background(), delivery{cycle: i})
	}
	<-a.close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 10 {
		t.Fatalf("delivered %d outcomes, want 10", len(got))
	}
	for i, c := range got {
		if c != uint64(i+1) {
			t.Fatalf("delivery %d has cycle %d, want %d", i, c, i+1)
		}
	}
}

func TestAsyncDispatcherKeepsBacklog(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var mu sync.Mutex
	var got []uint64
	deliver := func(_ context.Context, d delivery) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-release
		mu.Lock()
		got = append(got, d.cycle)
		mu.Unlock()
	}
	var backlogged atomic.Int32

	a := newAsyncDispatcher(1, deliver, func(delivery) { backlogged.Add(1) }, func(int) {})
	a.dispatch(context.Background(), delivery{cycle: 1})
	<-started // worker holds cycle 1
	a.dispatch(context.Background(), delivery{cycle: 2})
	a.dispatch(context.Background(), delivery{cycle: 3})
	a.dispatch(context.Background(), delivery{cycle: 4})

	if backlogged.Load() != 2 {
		t.Errorf("backlogged = %d, want 2", backlogged.Load())
	}

	close(release)
	<-a.close()

	mu.Lock()
	defer mu.Unlock()
	if len(got) != 4 {
		t.Fatalf("delivered %d outcomes, want 4", len(got))
	}
	for i, c := range got {
		if c != uint64(i+1) {
			t.Errorf("delivery %d has cycle %d, want %d", i, c, i+1)
		}
	}
}

func TestAsyncDispatcherCloseDrainsBacklog(t *testing.T) {
	release := make(chan struct{})
	var delivered atomic.Int32
	deliver := func(context.Context, delivery) {
		<-release
		delivered.Add(1)
	}

	a := newAsyncDispatcher(2, deliver, func(delivery) {}, func(int) {})
	for i := uint64(1); i <= 20; i++ {
		a.dispatch(context.Background(), delivery{cycle: i})
	}
	done := a.close()
	close(release)
	<-done

	if delivered.Load() != 20 {
		t.Errorf("delivered = %d, want 20", delivered.Load())
	}
}

func TestDispatchContextOutlivesCaller(t *testing.T) {
	for _, mode := range []DispatchMode{DispatchSync, DispatchAsync} {
		t.Run(mode.String(), func(t *testing.T) {
			errs := make(chan error, 1)
			deliver := func(ctx context.Context, _ delivery) {
				errs <- ctx.Err()
			}

			d := newDispatcher(mode, 1, deliver, func(delivery) {}, func(int) {})
			ctx, cancel := context.WithCancel(context.Background())
			cancel()
			d.dispatch(ctx, delivery{cycle: 1})
			<-d.close()

			if err := <-errs; err != nil {
				t.Errorf("listener context error = %v, want nil after caller cancel", err)
			}
		})
	}
}

func TestDeliverTelemetry(t *testing.T) {
	metrics, err := telemetry.NewMetrics(telemetry.DefaultConfig().Metrics)
	if err != nil {
		t.Fatalf("NewMetrics() error = %v", err)
	}
	events, err := telemetry.NewEventPublisher(telemetry.EventsConfig{Enabled: true, BufferSize: 10})
	if err != nil {
		t.Fatalf("NewEventPublisher() error = %v", err)
	}
	var types []string
	events.Subscribe(func(e telemetry.Event) { types = append(types, e.Type) }, nil)

	w := newTestWatchdog(t, nil, WithMetrics(metrics), WithEvents(events))
	_ = w.AddListener(&ListenerFuncs{OK: func(context.Context, any) error { return errors.New("broken") }})

	w.deliver(context.Background(), delivery{outcome: OK(nil)})

	if len(types) != 1 || types[0] != telemetry.EventTypeListenerRemoved {
		t.Errorf("events = %v, want [%s]", types, telemetry.EventTypeListenerRemoved)
	}

	var body strings.Builder
	if err := scrape(metrics, &body); err != nil {
		t.Fatalf("scrape: %v", err)
	}
	for _, want := range []string{
		`watchdog_listener_errors_total{callback="OnOK",watchdog="test"} 1`,
		`watchdog_listeners_removed_total{watchdog="test"} 1`,
		`watchdog_listeners_registered{watchdog="test"} 0`,
	} {
		if !strings.Contains(body.String(), want) {
			t.Errorf("metrics missing %s", want)
		}
	}
}
