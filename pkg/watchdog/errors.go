package watchdog

import (
	"errors"
	"fmt"
	"strings"
)

// Lifecycle and registration errors returned to the embedding application.
var (
	// ErrNotStarted is returned by Stop when the watchdog was never started.
	ErrNotStarted = errors.New("watchdog not started")

	// ErrAlreadyRunning is returned by Start when the loop is already running or shutting down.
	ErrAlreadyRunning = errors.New("watchdog already running")

	// ErrRunning is returned by setters that may only be used while the watchdog is not running.
	ErrRunning = errors.New("operation not permitted while watchdog is running")

	// ErrNilListener is returned when a nil listener is registered.
	ErrNilListener = errors.New("listener is nil")

	// ErrListenerNotComparable is returned when a listener's dynamic type cannot be compared
	// for identity. Register listeners by pointer.
	ErrListenerNotComparable = errors.New("listener type is not comparable")

	// ErrInvalidInterval is returned when a non-positive check interval is configured.
	ErrInvalidInterval = errors.New("check interval must be positive")
)

// CheckClass classifies a check error.
type CheckClass string

const (
	// ClassFailed indicates the checked condition was confirmed bad.
	ClassFailed CheckClass = "failed"

	// ClassImpossible indicates the check itself could not run,
	// e.g. because the checked resource was unreachable.
	ClassImpossible CheckClass = "impossible"
)

// CheckError is a classified error produced by a Checker.
type CheckError struct {
	// Class decides how the outcome is routed to listeners.
	Class CheckClass

	// Message is the human-readable error message.
	Message string

	// Err is the underlying error, if any.
	Err error
}

// Error implements the error interface.
func (e *CheckError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("[%s] %s", e.Class, e.Message)
	}
	if e.Message == "" {
		return fmt.Sprintf("[%s] %s", e.Class, e.Err.Error())
	}
	return fmt.Sprintf("[%s] %s: %s", e.Class, e.Message, e.Err.Error())
}

// Unwrap returns the underlying error for error chain inspection.
func (e *CheckError) Unwrap() error {
	return e.Err
}

// Is reports whether target is a CheckError of the same class.
func (e *CheckError) Is(target error) bool {
	t, ok := target.(*CheckError)
	if !ok {
		return false
	}
	return e.Class == t.Class
}

// NewFailedError creates an error signalling that the checked condition is bad.
func NewFailedError(message string, err error) *CheckError {
	return &CheckError{
		Class:   ClassFailed,
		Message: message,
		Err:     err,
	}
}

// NewImpossibleError creates an error signalling that the check could not be performed.
func NewImpossibleError(message string, err error) *CheckError {
	return &CheckError{
		Class:   ClassImpossible,
		Message: message,
		Err:     err,
	}
}

// IsImpossible returns true if err is classified as impossible.
func IsImpossible(err error) bool {
	var e *CheckError
	if errors.As(err, &e) {
		return e.Class == ClassImpossible
	}
	return false
}

// IsFailed returns true if err is explicitly classified as failed.
// Unclassified errors are also treated as failures by the scheduler.
func IsFailed(err error) bool {
	var e *CheckError
	if errors.As(err, &e) {
		return e.Class == ClassFailed
	}
	return false
}

// EscalationError is the cause carried by the failure an EscalationListener
// synthesizes after a run of impossible outcomes.
type EscalationError struct {
	// AttemptedRetries is the number of consecutive impossible outcomes observed.
	AttemptedRetries int

	// Outcomes holds the causes of those outcomes in arrival order.
	Outcomes []error
}

// Error implements the error interface.
func (e *EscalationError) Error() string {
	msgs := make([]string, 0, len(e.Outcomes))
	for _, cause := range e.Outcomes {
		if cause == nil {
			msgs = append(msgs, "<nil>")
			continue
		}
		msgs = append(msgs, cause.Error())
	}
	return fmt.Sprintf("check impossible after %d attempts: [%s]",
		e.AttemptedRetries, strings.Join(msgs, "; "))
}

// Unwrap exposes the accumulated causes to errors.Is and errors.As.
func (e *EscalationError) Unwrap() []error {
	return e.Outcomes
}

// ListenerError reports a listener callback that returned an error or panicked.
// It never leaves the dispatch boundary except through logs, metrics and events.
type ListenerError struct {
	// Listener is the listener that failed.
	Listener Listener

	// Callback names the callback that failed (OnOK, OnFailed, OnImpossible).
	Callback string

	// Err is the returned error or the recovered panic value.
	Err error
}

// Error implements the error interface.
func (e *ListenerError) Error() string {
	return fmt.Sprintf("listener %T %s: %v", e.Listener, e.Callback, e.Err)
}

// Unwrap returns the underlying error.
func (e *ListenerError) Unwrap() error {
	return e.Err
}

// panicError converts a recovered panic value into an error.
func panicError(r any) error {
	if err, ok := r.(error); ok {
		return fmt.Errorf("panic: %w", err)
	}
	return fmt.Errorf("panic: %v", r)
}
