package notify

import (
	"context"

	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// LogListener writes every outcome to a zerolog logger. Failures are logged at
// error level and impossible outcomes at warn level.
type LogListener struct {
	logger  zerolog.Logger
	okLevel zerolog.Level
}

// NewLogListener creates a listener that logs OK outcomes at okLevel.
func NewLogListener(logger zerolog.Logger, okLevel zerolog.Level) *LogListener {
	return &LogListener{
		logger:  logger.With().Str("component", "log-notifier").Logger(),
		okLevel: okLevel,
	}
}

// OnOK implements watchdog.Listener.
func (l *LogListener) OnOK(_ context.Context, subject any) error {
	l.logger.WithLevel(l.okLevel).
		Str("watchdog", subjectName(subject)).
		Str("outcome", string(watchdog.OutcomeOK)).
		Msg("Check passed")
	return nil
}

// OnFailed implements watchdog.Listener.
func (l *LogListener) OnFailed(_ context.Context, subject any, cause error) error {
	l.logger.Error().
		Err(cause).
		Str("watchdog", subjectName(subject)).
		Str("outcome", string(watchdog.OutcomeFailed)).
		Msg("Check failed")
	return nil
}

// OnImpossible implements watchdog.Listener.
func (l *LogListener) OnImpossible(_ context.Context, subject any, cause error) error {
	l.logger.Warn().
		Err(cause).
		Str("watchdog", subjectName(subject)).
		Str("outcome", string(watchdog.OutcomeImpossible)).
		Msg("Check could not be performed")
	return nil
}
