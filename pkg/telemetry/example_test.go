package telemetry_test

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/openfroyo/watchdog/pkg/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

// Example_basicSetup demonstrates basic telemetry setup.
func Example_basicSetup() {
	cfg := telemetry.DefaultConfig()
	cfg.ServiceVersion = "1.0.0"
	cfg.Metrics.Enabled = false

	tel, err := telemetry.NewTelemetry(cfg)
	if err != nil {
		panic(err)
	}
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	logger := telemetry.FromContext(ctx)
	logger.Info("Application started")
}

// Example_structuredLogging demonstrates component and watchdog loggers.
func Example_structuredLogging() {
	cfg := telemetry.DevelopmentConfig()
	cfg.Logging.Output = "stdout"
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	logger := tel.Logger.NewComponentLogger("watchdog").WithWatchdog("database")

	logger.Debug("Sleeping before next check")
	logger.WithError(errors.New("connection refused")).Warn("Check could not be performed")
}

// Example_checkTracing demonstrates a span around one check cycle.
func Example_checkTracing() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx, span := tel.Tracer.StartCheckSpan(context.Background(), "database", "check-1", 1)
	defer span.End()

	_ = ctx
	telemetry.SetAttributes(span, telemetry.AttrOutcome.String("ok"))
	telemetry.RecordSuccess(span)
}

// Example_metricsCollection demonstrates recording check metrics.
func Example_metricsCollection() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.ListenAddress = ":0"

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Metrics.SetRunning("database", true)
	tel.Metrics.RecordCheck("database", "ok", 12*time.Millisecond)
	tel.Metrics.RecordCheck("database", "impossible", 2*time.Second)
	tel.Metrics.RecordEscalation("database")
	tel.Metrics.SetListeners("database", 2)
}

// Example_eventPublishing demonstrates subscribing to check events.
func Example_eventPublishing() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false
	cfg.Events.EnableAsync = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	tel.Events.Subscribe(func(e telemetry.Event) {
		fmt.Println(e.Type, e.Watchdog)
	}, telemetry.FilterByType(telemetry.EventTypeCheckFailed))

	_ = tel.Events.PublishCheck("database", "check-1", "ok", time.Millisecond, nil)
	_ = tel.Events.PublishCheck("database", "check-2", "failed", time.Millisecond, errors.New("bad status"))

	// Output:
	// check.failed database
}

// Example_instrumentedOperation demonstrates StartOperation.
func Example_instrumentedOperation() {
	cfg := telemetry.DefaultConfig()
	cfg.Metrics.Enabled = false

	tel, _ := telemetry.NewTelemetry(cfg)
	defer tel.Shutdown(context.Background())

	ctx := tel.WithContext(context.Background())

	op := telemetry.StartOperation(ctx, "config.reload",
		attribute.String("config.path", "watchdog.yaml"),
	)
	op.Logger.Info("Reloading configuration")
	op.End(nil)
}
