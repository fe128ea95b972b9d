package supervisor

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/atomic"
)

const instrumentationName = "github.com/uberbrodt/otp-go/erl/supervisor"

type supervisorMetrics struct {
	restarts    metric.Int64Counter
	escalations metric.Int64Counter
}

var metrics atomic.Pointer[supervisorMetrics]

func init() {
	metrics.Store(newSupervisorMetrics(otel.GetMeterProvider().Meter(instrumentationName)))
}

func newSupervisorMetrics(meter metric.Meter) *supervisorMetrics {
	m := &supervisorMetrics{}
	var err error
	if m.restarts, err = meter.Int64Counter("erl.supervisor.restarts",
		metric.WithDescription("child restarts, by strategy")); err != nil {
		otel.Handle(err)
	}
	if m.escalations, err = meter.Int64Counter("erl.supervisor.escalations",
		metric.WithDescription("supervisors that exceeded their restart intensity")); err != nil {
		otel.Handle(err)
	}
	return m
}

// SetMeterProvider recreates the supervisor instruments from [mp].
func SetMeterProvider(mp metric.MeterProvider) {
	metrics.Store(newSupervisorMetrics(mp.Meter(instrumentationName)))
}

func recordRestart(strategy Strategy) {
	metrics.Load().restarts.Add(context.Background(), 1,
		metric.WithAttributes(attribute.String("strategy", strategy.String())))
}

func recordEscalation() {
	metrics.Load().escalations.Add(context.Background(), 1)
}
