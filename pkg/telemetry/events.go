package telemetry

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event represents a lifecycle or check event emitted by a watchdog.
type Event struct {
	// ID is the unique identifier for this event.
	ID string `json:"id"`

	// Timestamp is when the event occurred.
	Timestamp time.Time `json:"timestamp"`

	// Type is the event type.
	Type string `json:"type"`

	// Source identifies where the event originated.
	Source string `json:"source"`

	// Watchdog is the name of the watchdog that emitted the event.
	Watchdog string `json:"watchdog,omitempty"`

	// CheckID identifies the check cycle, if applicable.
	CheckID string `json:"check_id,omitempty"`

	// Outcome is the check outcome kind, if applicable.
	Outcome string `json:"outcome,omitempty"`

	// Message is a human-readable event message.
	Message string `json:"message"`

	// Level is the event severity level (info, warning, error).
	Level string `json:"level"`

	// Data contains additional event-specific data.
	Data map[string]interface{} `json:"data,omitempty"`
}

// EventType constants for common event types.
const (
	EventTypeWatchdogStarted    = "watchdog.started"
	EventTypeWatchdogStopped    = "watchdog.stopped"
	EventTypeCheckOK            = "check.ok"
	EventTypeCheckFailed        = "check.failed"
	EventTypeCheckImpossible    = "check.impossible"
	EventTypeCheckEscalated     = "check.escalated"
	EventTypeListenerRemoved    = "listener.removed"
	EventTypeDispatchBacklogged = "dispatch.backlogged"
	EventTypeAlertRaised        = "alert.raised"
	EventTypeAlertResolved      = "alert.resolved"
)

// EventLevel constants for event severity.
const (
	EventLevelInfo    = "info"
	EventLevelWarning = "warning"
	EventLevelError   = "error"
)

// EventSubscriber is a function that handles events.
type EventSubscriber func(event Event)

// EventFilter determines if an event should be processed.
type EventFilter func(event Event) bool

// EventPublisher manages event publishing and subscriptions.
type EventPublisher struct {
	config      EventsConfig
	buffer      chan Event
	subscribers []subscriberEntry
	wg          sync.WaitGroup
	mu          sync.RWMutex
	ctx         context.Context
	cancel      context.CancelFunc
}

type subscriberEntry struct {
	subscriber EventSubscriber
	filter     EventFilter
}

// NewEventPublisher creates a new event publisher with the given configuration.
func NewEventPublisher(cfg EventsConfig) (*EventPublisher, error) {
	if !cfg.Enabled {
		return &EventPublisher{config: cfg}, nil
	}
	if cfg.BufferSize <= 0 {
		return nil, fmt.Errorf("event buffer size must be positive, got: %d", cfg.BufferSize)
	}

	ctx, cancel := context.WithCancel(context.Background())

	ep := &EventPublisher{
		config:      cfg,
		buffer:      make(chan Event, cfg.BufferSize),
		subscribers: make([]subscriberEntry, 0),
		ctx:         ctx,
		cancel:      cancel,
	}

	if cfg.EnableAsync {
		ep.wg.Add(1)
		go ep.processEvents()
	}

	return ep, nil
}

// Publish publishes an event to all subscribers. A nil publisher discards it.
func (ep *EventPublisher) Publish(event Event) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	if event.ID == "" {
		event.ID = uuid.New().String()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now()
	}

	if ep.config.EnableAsync {
		select {
		case <-ep.ctx.Done():
			return fmt.Errorf("event publisher stopped")
		default:
		}
		select {
		case ep.buffer <- event:
			return nil
		default:
			return fmt.Errorf("event buffer full, event dropped")
		}
	}

	ep.deliverEvent(event)
	return nil
}

// PublishWatchdogStarted publishes a watchdog started event.
func (ep *EventPublisher) PublishWatchdogStarted(watchdog string, interval time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeWatchdogStarted,
		Source:   "watchdog",
		Watchdog: watchdog,
		Message:  fmt.Sprintf("Watchdog %s started with interval %s", watchdog, interval),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"interval": interval.Seconds(),
		},
	})
}

// PublishWatchdogStopped publishes a watchdog stopped event.
func (ep *EventPublisher) PublishWatchdogStopped(watchdog string, cycles uint64) error {
	return ep.Publish(Event{
		Type:     EventTypeWatchdogStopped,
		Source:   "watchdog",
		Watchdog: watchdog,
		Message:  fmt.Sprintf("Watchdog %s stopped after %d checks", watchdog, cycles),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"cycles": cycles,
		},
	})
}

// PublishCheck publishes the outcome of one check cycle. cause may be nil.
func (ep *EventPublisher) PublishCheck(watchdog, checkID, outcome string, duration time.Duration, cause error) error {
	event := Event{
		Source:   "watchdog",
		Watchdog: watchdog,
		CheckID:  checkID,
		Outcome:  outcome,
		Data: map[string]interface{}{
			"duration": duration.Seconds(),
		},
	}

	switch outcome {
	case "ok":
		event.Type = EventTypeCheckOK
		event.Level = EventLevelInfo
		event.Message = fmt.Sprintf("Check %s passed", checkID)
	case "failed":
		event.Type = EventTypeCheckFailed
		event.Level = EventLevelError
		event.Message = fmt.Sprintf("Check %s failed", checkID)
	default:
		event.Type = EventTypeCheckImpossible
		event.Level = EventLevelWarning
		event.Message = fmt.Sprintf("Check %s could not be performed", checkID)
	}
	if cause != nil {
		event.Message = fmt.Sprintf("%s: %v", event.Message, cause)
		event.Data["cause"] = cause.Error()
	}

	return ep.Publish(event)
}

// PublishCheckEscalated publishes an impossible streak escalated to a failure.
func (ep *EventPublisher) PublishCheckEscalated(watchdog string, attempts int, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeCheckEscalated,
		Source:   "escalation",
		Watchdog: watchdog,
		Outcome:  "failed",
		Message:  fmt.Sprintf("Watchdog %s escalated after %d impossible checks: %s", watchdog, attempts, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"attempts": attempts,
			"reason":   reason,
		},
	})
}

// PublishListenerRemoved publishes a listener dropped after a failed callback.
func (ep *EventPublisher) PublishListenerRemoved(watchdog, callback, reason string) error {
	return ep.Publish(Event{
		Type:     EventTypeListenerRemoved,
		Source:   "dispatch",
		Watchdog: watchdog,
		Message:  fmt.Sprintf("Listener removed from %s after %s failed: %s", watchdog, callback, reason),
		Level:    EventLevelWarning,
		Data: map[string]interface{}{
			"callback": callback,
			"reason":   reason,
		},
	})
}

// PublishDispatchBacklogged publishes an outcome queued while the dispatch
// backlog exceeded the queue size.
func (ep *EventPublisher) PublishDispatchBacklogged(watchdog, checkID, outcome string) error {
	return ep.Publish(Event{
		Type:     EventTypeDispatchBacklogged,
		Source:   "dispatch",
		Watchdog: watchdog,
		CheckID:  checkID,
		Outcome:  outcome,
		Message:  fmt.Sprintf("Dispatch backlog over queue size, %s outcome of check %s queued", outcome, checkID),
		Level:    EventLevelWarning,
	})
}

// PublishAlertRaised publishes the transition of a subject into failure.
func (ep *EventPublisher) PublishAlertRaised(notifier, subject string, cause error) error {
	reason := ""
	if cause != nil {
		reason = cause.Error()
	}
	return ep.Publish(Event{
		Type:     EventTypeAlertRaised,
		Source:   notifier,
		Watchdog: subject,
		Outcome:  "failed",
		Message:  fmt.Sprintf("Alert raised for %s: %s", subject, reason),
		Level:    EventLevelError,
		Data: map[string]interface{}{
			"reason": reason,
		},
	})
}

// PublishAlertResolved publishes the recovery of a previously failing subject.
func (ep *EventPublisher) PublishAlertResolved(notifier, subject string, downFor time.Duration) error {
	return ep.Publish(Event{
		Type:     EventTypeAlertResolved,
		Source:   notifier,
		Watchdog: subject,
		Outcome:  "ok",
		Message:  fmt.Sprintf("Alert resolved for %s after %s", subject, downFor.Round(time.Millisecond)),
		Level:    EventLevelInfo,
		Data: map[string]interface{}{
			"down_for_ms": downFor.Milliseconds(),
		},
	})
}

// Subscribe adds a new event subscriber.
func (ep *EventPublisher) Subscribe(subscriber EventSubscriber, filter EventFilter) {
	ep.mu.Lock()
	defer ep.mu.Unlock()

	ep.subscribers = append(ep.subscribers, subscriberEntry{
		subscriber: subscriber,
		filter:     filter,
	})
}

// processEvents delivers buffered events in publish order.
func (ep *EventPublisher) processEvents() {
	defer ep.wg.Done()

	for {
		select {
		case event := <-ep.buffer:
			ep.deliverEvent(event)

		case <-ep.ctx.Done():
			// Drain what was accepted before shutdown.
			for {
				select {
				case event := <-ep.buffer:
					ep.deliverEvent(event)
				default:
					return
				}
			}
		}
	}
}

// deliverEvent delivers an event to all subscribers.
func (ep *EventPublisher) deliverEvent(event Event) {
	ep.mu.RLock()
	entries := make([]subscriberEntry, len(ep.subscribers))
	copy(entries, ep.subscribers)
	ep.mu.RUnlock()

	for _, entry := range entries {
		if entry.filter != nil && !entry.filter(event) {
			continue
		}
		deliverTo(entry.subscriber, event)
	}
}

// deliverTo calls a subscriber, containing any panic it raises.
func deliverTo(subscriber EventSubscriber, event Event) {
	defer func() {
		_ = recover()
	}()
	subscriber(event)
}

// Shutdown gracefully shuts down the event publisher.
func (ep *EventPublisher) Shutdown(ctx context.Context) error {
	if ep == nil || !ep.config.Enabled {
		return nil
	}

	ep.cancel()

	done := make(chan struct{})
	go func() {
		ep.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("event publisher shutdown timeout")
	}
}

// Common event filters.

// FilterByLevel creates a filter that only allows events of a specific level or higher.
func FilterByLevel(minLevel string) EventFilter {
	levels := map[string]int{
		EventLevelInfo:    0,
		EventLevelWarning: 1,
		EventLevelError:   2,
	}

	minLevelValue := levels[minLevel]

	return func(event Event) bool {
		return levels[event.Level] >= minLevelValue
	}
}

// FilterByType creates a filter that only allows events of specific types.
func FilterByType(types ...string) EventFilter {
	typeSet := make(map[string]bool)
	for _, t := range types {
		typeSet[t] = true
	}

	return func(event Event) bool {
		return typeSet[event.Type]
	}
}

// FilterByWatchdog creates a filter that only allows events from one watchdog.
func FilterByWatchdog(name string) EventFilter {
	return func(event Event) bool {
		return event.Watchdog == name
	}
}
