package erl

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"

	"github.com/uberbrodt/otp-go/erl/exitreason"
)

const instrumentationName = "github.com/uberbrodt/otp-go/erl"

// process instruments, created from the global meter provider. They are no-ops
// until the host application installs one.
type processMetrics struct {
	spawned metric.Int64Counter
	exited  metric.Int64Counter
	live    metric.Int64UpDownCounter
	dropped metric.Int64Counter
}

var metrics atomic.Pointer[processMetrics]

func init() {
	metrics.Store(newProcessMetrics(otel.GetMeterProvider().Meter(instrumentationName)))
}

func newProcessMetrics(meter metric.Meter) *processMetrics {
	m := &processMetrics{}
	var err error
	if m.spawned, err = meter.Int64Counter("erl.process.spawned",
		metric.WithDescription("processes spawned")); err != nil {
		otel.Handle(err)
	}
	if m.exited, err = meter.Int64Counter("erl.process.exited",
		metric.WithDescription("processes exited, by reason kind")); err != nil {
		otel.Handle(err)
	}
	if m.live, err = meter.Int64UpDownCounter("erl.process.live",
		metric.WithDescription("processes currently running")); err != nil {
		otel.Handle(err)
	}
	if m.dropped, err = meter.Int64Counter("erl.message.dropped",
		metric.WithDescription("messages sent to processes that no longer exist")); err != nil {
		otel.Handle(err)
	}
	return m
}

// SetMeterProvider recreates the runtime's instruments from [mp].
func SetMeterProvider(mp metric.MeterProvider) {
	metrics.Store(newProcessMetrics(mp.Meter(instrumentationName)))
}

func recordSpawn() {
	ctx := context.Background()
	m := metrics.Load()
	m.spawned.Add(ctx, 1)
	m.live.Add(ctx, 1)
}

func recordExit(reason *exitreason.S) {
	ctx := context.Background()
	m := metrics.Load()
	m.exited.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason.Kind())))
	m.live.Add(ctx, -1)
}

func recordDropped() {
	metrics.Load().dropped.Add(context.Background(), 1)
}
