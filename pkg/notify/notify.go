// Package notify provides the built-in listeners of the watchdog daemon.
//
// Listeners receive the watchdog name as their subject. They are safe to
// share between watchdogs.
package notify

import (
	"context"
	"fmt"

	"github.com/openfroyo/watchdog/pkg/config"
	"github.com/openfroyo/watchdog/pkg/telemetry"
	"github.com/openfroyo/watchdog/pkg/watchdog"
	"github.com/rs/zerolog"
)

// Factory builds listeners from notifier configuration.
type Factory struct {
	Logger zerolog.Logger
	Events *telemetry.EventPublisher

	// NewSQSClient creates the client used by SQS notifiers. Defaults to
	// NewSQSClient.
	NewSQSClient func(ctx context.Context, cfg config.SQSNotifierConfig) (SQSClient, error)
}

// Build creates the listener described by cfg.
func (f *Factory) Build(ctx context.Context, cfg config.NotifierConfig) (watchdog.Listener, error) {
	switch cfg.Type {
	case "log":
		okLevel := zerolog.DebugLevel
		if cfg.Log != nil && cfg.Log.OKLevel != "" {
			level, err := zerolog.ParseLevel(cfg.Log.OKLevel)
			if err != nil {
				return nil, fmt.Errorf("notifier %s: %w", cfg.Name, err)
			}
			okLevel = level
		}
		return NewLogListener(f.Logger, okLevel), nil

	case "event":
		return NewEventListener(cfg.Name, f.Events), nil

	case "sqs":
		if cfg.SQS == nil {
			return nil, fmt.Errorf("notifier %s: sqs settings are required", cfg.Name)
		}
		newClient := f.NewSQSClient
		if newClient == nil {
			newClient = func(ctx context.Context, c config.SQSNotifierConfig) (SQSClient, error) {
				return NewSQSClient(ctx, c)
			}
		}
		client, err := newClient(ctx, *cfg.SQS)
		if err != nil {
			return nil, fmt.Errorf("notifier %s: %w", cfg.Name, err)
		}
		return NewSQSListener(cfg.Name, client, *cfg.SQS, f.Logger), nil

	default:
		return nil, fmt.Errorf("notifier %s: unsupported type %q", cfg.Name, cfg.Type)
	}
}

// subjectName renders a subject for logs and messages.
func subjectName(subject any) string {
	if subject == nil {
		return ""
	}
	if s, ok := subject.(string); ok {
		return s
	}
	return fmt.Sprint(subject)
}
