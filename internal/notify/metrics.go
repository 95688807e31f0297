package notify

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/agendaclin/agendaclin/internal/notify"

// Delivery outcomes used as the "outcome" metric attribute.
const (
	outcomeDelivered = "delivered"
	outcomeGone      = "gone"
	outcomeFailed    = "failed"
)

// dispatchMetrics holds the OpenTelemetry instruments for dispatching.
type dispatchMetrics struct {
	dispatches metric.Int64Counter
	attempts   metric.Int64Counter
	pruned     metric.Int64Counter
	duration   metric.Float64Histogram
}

func newDispatchMetrics() (*dispatchMetrics, error) {
	meter := otel.Meter(instrumentationName)

	dispatches, err := meter.Int64Counter(
		"push.dispatch.total",
		metric.WithDescription("Number of dispatch calls"),
		metric.WithUnit("{dispatch}"),
	)
	if err != nil {
		return nil, err
	}

	attempts, err := meter.Int64Counter(
		"push.delivery.attempts",
		metric.WithDescription("Delivery attempts by outcome"),
		metric.WithUnit("{attempt}"),
	)
	if err != nil {
		return nil, err
	}

	pruned, err := meter.Int64Counter(
		"push.subscriptions.pruned",
		metric.WithDescription("Subscriptions removed after a permanent-gone response"),
		metric.WithUnit("{subscription}"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"push.dispatch.duration",
		metric.WithDescription("Duration of a full fan-out in seconds"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, err
	}

	return &dispatchMetrics{
		dispatches: dispatches,
		attempts:   attempts,
		pruned:     pruned,
		duration:   duration,
	}, nil
}

func (m *dispatchMetrics) recordAttempt(ctx context.Context, kind Kind, outcome string) {
	m.attempts.Add(ctx, 1, metric.WithAttributes(
		attribute.String("push.kind", string(kind)),
		attribute.String("outcome", outcome),
	))
}

func (m *dispatchMetrics) recordDispatch(ctx context.Context, kind Kind, res *Result) {
	attrs := metric.WithAttributes(
		attribute.String("push.kind", string(kind)),
		attribute.Bool("skipped", res.Skipped),
	)
	m.dispatches.Add(ctx, 1, attrs)
	m.duration.Record(ctx, res.Duration.Seconds(), attrs)
	if res.Pruned > 0 {
		m.pruned.Add(ctx, int64(res.Pruned))
	}
}
