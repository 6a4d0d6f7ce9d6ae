// Package telemetry provides observability instrumentation for watchdogs.
//
// The telemetry package integrates structured logging (zerolog), distributed tracing
// (OpenTelemetry), metrics (Prometheus), and event publishing into a unified system
// for monitoring health checks and the listeners that react to them.
//
// # Architecture
//
// The telemetry system is built on four pillars:
//
//  1. Structured Logging - Context-aware logging with zerolog
//  2. Distributed Tracing - One span per check cycle and per notification
//  3. Metrics Collection - Prometheus metrics on a private registry
//  4. Event Publishing - Ordered event stream for audit and notifications
//
// # Usage
//
// Initialize telemetry at application startup:
//
//	cfg := telemetry.DefaultConfig()
//	cfg.ServiceVersion = "1.0.0"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	tel.StartMetricsServer(nil)
//	ctx = tel.WithContext(ctx)
//
// # Structured Logging
//
//	logger := tel.Logger.NewComponentLogger("watchdog").WithWatchdog("db")
//	logger.Info("watchdog started")
//	logger.WithError(err).Error("check failed")
//
// Components that accept a zerolog.Logger directly take tel.Logger.Zerolog().
//
// # Distributed Tracing
//
//	ctx, span := tel.Tracer.StartCheckSpan(ctx, "db", checkID, cycle)
//	defer span.End()
//	if err != nil {
//	    telemetry.RecordError(span, err)
//	}
//
// Supported exporters: OTLP (production), Stdout (development), none.
//
// # Metrics
//
// All metric methods are safe on a nil or disabled *Metrics:
//
//	tel.Metrics.RecordCheck("db", "ok", duration)
//	tel.Metrics.RecordListenerError("db", "OnFailed")
//	tel.Metrics.SetQueueDepth("db", 3)
//
// Metrics are exposed in Prometheus format at the configured path (default /metrics).
//
// # Event Publishing
//
// Events are delivered to subscribers in publish order. A panicking subscriber
// does not affect the others:
//
//	tel.Events.Subscribe(func(e telemetry.Event) {
//	    fmt.Println(e.Type, e.Message)
//	}, telemetry.FilterByWatchdog("db"))
//
// Event types: watchdog.started, watchdog.stopped, check.ok, check.failed,
// check.impossible, check.escalated, listener.removed, dispatch.backlogged,
// alert.raised, alert.resolved.
package telemetry
