package oauth

import (
	"context"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

const instrumentationName = "github.com/go-training/clickup-mcp/pkg/oauth"

// telemetry groups the broker's spans and counters. Without an installed SDK the
// global providers are no-ops.
type telemetry struct {
	tracer trace.Tracer

	authorizations metric.Int64Counter
	exchanges      metric.Int64Counter
	refreshes      metric.Int64Counter
	revocations    metric.Int64Counter
	stateRejected  metric.Int64Counter
}

func newTelemetry() *telemetry {
	meter := otel.Meter(instrumentationName)
	t := &telemetry{tracer: otel.Tracer(instrumentationName)}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
	}{
		{&t.authorizations, "oauth.authorizations.started", "Authorization URLs issued"},
		{&t.exchanges, "oauth.code.exchanges", "Authorization code exchanges"},
		{&t.refreshes, "oauth.token.refreshes", "Refresh grants"},
		{&t.revocations, "oauth.token.revocations", "Revocation requests"},
		{&t.stateRejected, "oauth.state.rejected", "Callbacks with an unknown, consumed or expired state"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc))
		if err != nil {
			slog.Warn("Failed to create oauth counter", "name", c.name, "error", err)
		}
		*c.dst = counter
	}
	return t
}

func (t *telemetry) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// finish records err on span and bumps counter with a result attribute.
func (t *telemetry) finish(ctx context.Context, span trace.Span, counter metric.Int64Counter, err error) {
	result := "success"
	if err != nil {
		result = "failure"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	if counter != nil {
		counter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", result)))
	}
	span.End()
}
