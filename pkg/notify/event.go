package notify

import (
	"context"
	"sync"
	"time"

	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/openfroyo/watchdog/pkg/watchdog"
)

// EventListener turns outcomes into alert events. A failure raises an alert
// for the subject once; the next OK resolves it. Impossible outcomes are
// ignored, so wrap the listener in an EscalationListener to alert on them.
type EventListener struct {
	name   string
	events *telemetry.EventPublisher

	mu     sync.Mutex
	failed map[string]time.Time
	now    func() time.Time
}

// NewEventListener creates an alert listener publishing to events.
func NewEventListener(name string, events *telemetry.EventPublisher) *EventListener {
	return &EventListener{
		name:   name,
		events: events,
		failed: make(map[string]time.Time),
		now:    time.Now,
	}
}

// OnOK implements watchdog.Listener.
func (l *EventListener) OnOK(_ context.Context, subject any) error {
	name := subjectName(subject)

	l.mu.Lock()
	since, raised := l.failed[name]
	delete(l.failed, name)
	l.mu.Unlock()

	if !raised {
		return nil
	}
	return l.events.PublishAlertResolved(l.name, name, l.now().Sub(since))
}

// OnFailed implements watchdog.Listener.
func (l *EventListener) OnFailed(_ context.Context, subject any, cause error) error {
	name := subjectName(subject)

	l.mu.Lock()
	_, raised := l.failed[name]
	if !raised {
		l.failed[name] = l.now()
	}
	l.mu.Unlock()

	if raised {
		return nil
	}
	return l.events.PublishAlertRaised(l.name, name, cause)
}

// OnImpossible implements watchdog.Listener.
func (l *EventListener) OnImpossible(context.Context, any, error) error {
	return nil
}

// Active returns the subjects with a raised alert.
func (l *EventListener) Active() []string {
	l.mu.Lock()
	defer l.mu.Unlock()

	active := make([]string, 0, len(l.failed))
	for name := range l.failed {
		active = append(active, name)
	}
	return active
}

var _ watchdog.Listener = (*EventListener)(nil)
