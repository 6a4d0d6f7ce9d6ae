package watchdog

import (
	"context"
	"errors"
	"time"
)

// OutcomeKind is the result class of one check cycle.
type OutcomeKind string

const (
	// OutcomeOK indicates the check passed.
	OutcomeOK OutcomeKind = "ok"

	// OutcomeFailed indicates the checked condition is bad.
	OutcomeFailed OutcomeKind = "failed"

	// OutcomeImpossible indicates the check could not be performed.
	OutcomeImpossible OutcomeKind = "impossible"
)

// String returns the outcome kind as a string.
func (k OutcomeKind) String() string {
	return string(k)
}

// Outcome is the immutable result of one check cycle.
type Outcome struct {
	// Kind is the outcome class.
	Kind OutcomeKind

	// Subject identifies what was checked. May be nil.
	Subject any

	// Cause is the error behind a Failed or Impossible outcome. Nil for OK.
	Cause error

	// CheckedAt is when the check started.
	CheckedAt time.Time

	// Duration is how long the check took.
	Duration time.Duration
}

// OK returns an OK outcome for subject.
func OK(subject any) Outcome {
	return Outcome{Kind: OutcomeOK, Subject: subject, CheckedAt: time.Now()}
}

// Failed returns a Failed outcome for subject.
func Failed(subject any, cause error) Outcome {
	return Outcome{Kind: OutcomeFailed, Subject: subject, Cause: cause, CheckedAt: time.Now()}
}

// Impossible returns an Impossible outcome for subject.
func Impossible(subject any, cause error) Outcome {
	return Outcome{Kind: OutcomeImpossible, Subject: subject, Cause: cause, CheckedAt: time.Now()}
}

// Checker performs the actual check. It is called repeatedly from a single
// goroutine and must honour ctx cancellation to allow prompt shutdown.
//
// Returning nil reports success. Returning an error built with
// NewImpossibleError reports that the check could not be performed. Any other
// error, or a panic, reports a failure.
type Checker interface {
	Check(ctx context.Context, subject any) error
}

// CheckFunc adapts a function to the Checker interface.
type CheckFunc func(ctx context.Context, subject any) error

// Check calls f(ctx, subject).
func (f CheckFunc) Check(ctx context.Context, subject any) error {
	return f(ctx, subject)
}

// SubjectFunc supplies the subject for each check cycle.
type SubjectFunc func() any

// Classify converts the error returned by a Checker into an Outcome.
// A context.DeadlineExceeded error means the check did not finish in time and
// is reported as impossible.
func Classify(subject any, err error) Outcome {
	switch {
	case err == nil:
		return OK(subject)
	case IsImpossible(err):
		return Impossible(subject, err)
	case IsFailed(err):
		return Failed(subject, err)
	case errors.Is(err, context.DeadlineExceeded):
		return Impossible(subject, NewImpossibleError("check timed out", err))
	default:
		return Failed(subject, err)
	}
}

// runCheck invokes the checker, converting a panic into a failure.
func runCheck(ctx context.Context, checker Checker, subject any) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = NewFailedError("check panicked", panicError(r))
		}
	}()
	return checker.Check(ctx, subject)
}
