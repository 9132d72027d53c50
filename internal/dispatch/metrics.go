package dispatch

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics holds the OTel instruments exported for the Dispatcher
// (meter.Int64Counter/Int64UpDownCounter), covering per-session
// rate-limit rejections and concurrently hosted runs.
type Metrics struct {
	rateLimited metric.Int64Counter
	activeRuns  metric.Int64UpDownCounter
	dispatched  metric.Int64Counter
}

// NewMetrics builds the Dispatcher's instruments against the global OTel
// meter provider. meterName is typically the module path.
func NewMetrics(meterName string) (*Metrics, error) {
	meter := otel.Meter(meterName)

	rateLimited, err := meter.Int64Counter("dispatch.rate_limited",
		metric.WithDescription("Requests rejected by the per-session rate limiter"),
		metric.WithUnit("{request}"))
	if err != nil {
		return nil, err
	}

	activeRuns, err := meter.Int64UpDownCounter("dispatch.active_runs",
		metric.WithDescription("Runs currently hosted by the Dispatcher"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	dispatched, err := meter.Int64Counter("dispatch.dispatched",
		metric.WithDescription("Successfully dispatched runs, by pipeline name"),
		metric.WithUnit("{run}"))
	if err != nil {
		return nil, err
	}

	return &Metrics{rateLimited: rateLimited, activeRuns: activeRuns, dispatched: dispatched}, nil
}

func (m *Metrics) recordRateLimited(ctx context.Context, pipeline string) {
	if m == nil {
		return
	}
	m.rateLimited.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
}

func (m *Metrics) recordDispatched(ctx context.Context, pipeline string) {
	if m == nil {
		return
	}
	m.dispatched.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
	m.activeRuns.Add(ctx, 1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
}

func (m *Metrics) recordRunEnded(ctx context.Context, pipeline string) {
	if m == nil {
		return
	}
	m.activeRuns.Add(ctx, -1, metric.WithAttributes(attribute.String("pipeline", pipeline)))
}
