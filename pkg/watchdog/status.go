package watchdog

import (
	"sync/atomic"
	"time"
)

// State is the lifecycle state of a Watchdog.
type State int32

const (
	// StateIdle means the watchdog was created but never started.
	StateIdle State = iota

	// StateRunning means the scheduler loop is active.
	StateRunning

	// StateShuttingDown means Stop was requested and the loop has not exited yet.
	StateShuttingDown

	// StateStopped means the loop and any dispatch worker have exited.
	StateStopped
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRunning:
		return "running"
	case StateShuttingDown:
		return "shutting_down"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Status is a point-in-time snapshot of a Watchdog.
type Status struct {
	Name          string        `json:"name"`
	State         State         `json:"state"`
	Mode          DispatchMode  `json:"mode"`
	CheckInterval time.Duration `json:"check_interval_ns"`
	Cycles        uint64        `json:"cycles"`
	Listeners     int           `json:"listeners"`
	Backlogged    uint64        `json:"backlogged"`

	LastOutcome   OutcomeKind   `json:"last_outcome,omitempty"`
	LastCause     string        `json:"last_cause,omitempty"`
	LastCheckedAt time.Time     `json:"last_checked_at"`
	LastDuration  time.Duration `json:"last_duration_ns,omitempty"`
}

// counters holds the per-run counters updated from the loop goroutine and
// read by Status.
type counters struct {
	cycles     atomic.Uint64
	backlogged atomic.Uint64
}
