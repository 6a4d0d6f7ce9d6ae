package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Telemetry bundles the logger, tracer, metrics and event publisher built
// from one Config.
type Telemetry struct {
	Logger  *Logger
	Tracer  *Tracer
	Metrics *Metrics
	Events  *EventPublisher
	Config  *Config

	server *MetricsServer
}

type telemetryContextKey struct{}

// NewTelemetry validates cfg and builds every component.
func NewTelemetry(cfg *Config) (*Telemetry, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logger, err := NewLogger(cfg.Logging)
	if err != nil {
		return nil, err
	}
	tracer, err := NewTracer(cfg.Tracing, cfg.ServiceName, cfg.ServiceVersion, cfg.Environment)
	if err != nil {
		return nil, err
	}
	metrics, err := NewMetrics(cfg.Metrics)
	if err != nil {
		return nil, err
	}
	events, err := NewEventPublisher(cfg.Events)
	if err != nil {
		return nil, err
	}

	return &Telemetry{
		Logger:  logger,
		Tracer:  tracer,
		Metrics: metrics,
		Events:  events,
		Config:  cfg,
	}, nil
}

// WithContext stores t and its logger in ctx.
func (t *Telemetry) WithContext(ctx context.Context) context.Context {
	return t.Logger.WithContext(context.WithValue(ctx, telemetryContextKey{}, t))
}

// FromTelemetryContext returns the Telemetry stored in ctx, or nil.
func FromTelemetryContext(ctx context.Context) *Telemetry {
	t, _ := ctx.Value(telemetryContextKey{}).(*Telemetry)
	return t
}

// Shutdown stops the metrics server, drains pending events and flushes
// spans. Every component is shut down even if an earlier one fails.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	return errors.Join(
		t.server.Shutdown(ctx),
		t.Events.Shutdown(ctx),
		t.Tracer.Shutdown(ctx),
	)
}

// StartMetricsServer starts the metrics HTTP server if metrics are enabled.
// Extra handlers, such as a status endpoint, are served alongside it.
func (t *Telemetry) StartMetricsServer(extra map[string]http.Handler) {
	t.server = t.Metrics.StartMetricsServer(t.Logger.NewComponentLogger("metrics").Zerolog(), extra)
}

// Operation is a traced, timed unit of daemon work such as a config reload.
type Operation struct {
	Ctx    context.Context
	Span   trace.Span
	Logger *Logger

	name  string
	start time.Time
}

// StartOperation starts a span for name using the telemetry stored in ctx
// and returns a logger tagged with the operation and its trace IDs.
// Without telemetry in ctx it only times the operation.
func StartOperation(ctx context.Context, name string, attrs ...attribute.KeyValue) *Operation {
	op := &Operation{Ctx: ctx, Logger: FromContext(ctx), name: name, start: time.Now()}

	tel := FromTelemetryContext(ctx)
	if tel == nil {
		return op
	}

	op.Ctx, op.Span = tel.Tracer.Start(ctx, name, attrs...)
	op.Logger = tel.Logger.WithField("operation", name)
	if sc := op.Span.SpanContext(); sc.IsValid() {
		op.Logger = op.Logger.WithField("trace_id", sc.TraceID().String())
	}
	return op
}

// End records err on the span, logs the result and ends the span.
func (op *Operation) End(err error) {
	elapsed := time.Since(op.start)
	if err != nil {
		op.Logger.zlog.Error().Err(err).Dur("duration", elapsed).Msgf("%s failed", op.name)
	} else {
		op.Logger.zlog.Debug().Dur("duration", elapsed).Msgf("%s completed", op.name)
	}

	if op.Span == nil {
		return
	}
	if err != nil {
		RecordError(op.Span, err)
	} else {
		RecordSuccess(op.Span)
	}
	op.Span.End()
}

// RecordNotification runs fn inside a notify span and counts a failure
// against the notifier.
func RecordNotification(ctx context.Context, notifier, outcome string, fn func(ctx context.Context) error) error {
	tel := FromTelemetryContext(ctx)

	var span trace.Span
	if tel != nil {
		ctx, span = tel.Tracer.StartNotifySpan(ctx, notifier, outcome)
		defer span.End()
	}

	err := fn(ctx)

	if tel != nil {
		if err != nil {
			tel.Metrics.RecordNotifierFailure(notifier)
			RecordError(span, err)
		} else {
			RecordSuccess(span)
		}
	}

	return err
}
