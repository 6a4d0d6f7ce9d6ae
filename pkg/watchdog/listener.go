package watchdog

import "context"

// Listener receives the outcome of every check cycle.
//
// Implementations are supplied by the embedding application. A callback that
// returns an error or panics is reported as a ListenerError and, depending on
// the watchdog configuration, removed from the registry. It never affects the
// scheduler or the remaining listeners.
type Listener interface {
	// OnOK is called when the check passed.
	OnOK(ctx context.Context, subject any) error

	// OnFailed is called when the checked condition is bad.
	OnFailed(ctx context.Context, subject any, cause error) error

	// OnImpossible is called when the check could not be performed.
	OnImpossible(ctx context.Context, subject any, cause error) error
}

// BaseListener implements Listener with no-op methods.
//
// Embed it to implement only the callbacks you need.
type BaseListener struct{}

func (BaseListener) OnOK(context.Context, any) error                { return nil }
func (BaseListener) OnFailed(context.Context, any, error) error     { return nil }
func (BaseListener) OnImpossible(context.Context, any, error) error { return nil }

// ListenerFuncs adapts plain functions to the Listener interface. Nil fields
// are ignored. Register a *ListenerFuncs so that identity is well defined.
type ListenerFuncs struct {
	OK         func(ctx context.Context, subject any) error
	Failed     func(ctx context.Context, subject any, cause error) error
	Impossible func(ctx context.Context, subject any, cause error) error
}

// OnOK implements Listener.
func (f *ListenerFuncs) OnOK(ctx context.Context, subject any) error {
	if f.OK == nil {
		return nil
	}
	return f.OK(ctx, subject)
}

// OnFailed implements Listener.
func (f *ListenerFuncs) OnFailed(ctx context.Context, subject any, cause error) error {
	if f.Failed == nil {
		return nil
	}
	return f.Failed(ctx, subject, cause)
}

// OnImpossible implements Listener.
func (f *ListenerFuncs) OnImpossible(ctx context.Context, subject any, cause error) error {
	if f.Impossible == nil {
		return nil
	}
	return f.Impossible(ctx, subject, cause)
}

// callbackName returns the Listener method invoked for an outcome kind.
func callbackName(kind OutcomeKind) string {
	switch kind {
	case OutcomeOK:
		return "OnOK"
	case OutcomeFailed:
		return "OnFailed"
	default:
		return "OnImpossible"
	}
}

// notify invokes the callback matching o on l, converting a panic into an error.
func notify(ctx context.Context, l Listener, o Outcome) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = panicError(r)
		}
	}()

	switch o.Kind {
	case OutcomeOK:
		return l.OnOK(ctx, o.Subject)
	case OutcomeFailed:
		return l.OnFailed(ctx, o.Subject, o.Cause)
	default:
		return l.OnImpossible(ctx, o.Subject, o.Cause)
	}
}
