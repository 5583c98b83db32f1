package pc

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/thesyncim/rtcbridge"

// Metrics holds the bridge's OpenTelemetry instruments. Safe for concurrent use.
type Metrics struct {
	// EventsDispatched counts events that reached a consumer callback.
	//   attribute.String("type", ...)
	EventsDispatched metric.Int64Counter

	// EventsDropped counts events discarded without invoking anything.
	//   attribute.String("type", ...), attribute.String("reason", ...)
	EventsDropped metric.Int64Counter

	// Operations counts consumer operations by outcome of the synchronous part.
	//   attribute.String("op", ...), attribute.String("status", ...)
	Operations metric.Int64Counter
}

// NewMetrics creates the instruments on the given provider.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	m := mp.Meter(meterName)
	var err error
	met := &Metrics{}

	if met.EventsDispatched, err = m.Int64Counter("rtcbridge.events.dispatched",
		metric.WithDescription("Engine events delivered to a consumer callback."),
	); err != nil {
		return nil, err
	}
	if met.EventsDropped, err = m.Int64Counter("rtcbridge.events.dropped",
		metric.WithDescription("Engine events discarded as stale, unhandled or after close."),
	); err != nil {
		return nil, err
	}
	if met.Operations, err = m.Int64Counter("rtcbridge.operations",
		metric.WithDescription("Consumer operations issued on the bridge."),
	); err != nil {
		return nil, err
	}
	return met, nil
}

var (
	defaultMetrics     *Metrics
	defaultMetricsOnce sync.Once
)

// DefaultMetrics returns the package-level instance built on the global
// meter provider.
func DefaultMetrics() *Metrics {
	defaultMetricsOnce.Do(func() {
		var err error
		defaultMetrics, err = NewMetrics(otel.GetMeterProvider())
		if err != nil {
			panic("pc: failed to create default metrics: " + err.Error())
		}
	})
	return defaultMetrics
}

func (m *Metrics) recordDispatched(t EventType) {
	m.EventsDispatched.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("type", t.String())),
	)
}

func (m *Metrics) recordDropped(t EventType, reason string) {
	m.EventsDropped.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("type", t.String()),
			attribute.String("reason", reason),
		),
	)
}

func (m *Metrics) recordOperation(op string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
	}
	m.Operations.Add(context.Background(), 1,
		metric.WithAttributes(
			attribute.String("op", op),
			attribute.String("status", status),
		),
	)
}
