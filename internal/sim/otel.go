package sim

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/surveyor-hil/asvsim/internal/sim"

type metrics struct {
	ticks      metric.Int64Counter
	commands   metric.Int64Counter
	dropped    metric.Int64Counter
	queueDepth metric.Int64ObservableGauge
}

func newMetrics(s *Simulator) (*metrics, error) {
	m := otel.Meter(instrumentationName)
	out := &metrics{}

	var err error
	out.ticks, err = m.Int64Counter("sim.ticks", metric.WithDescription("Simulation ticks executed"))
	if err != nil {
		return nil, fmt.Errorf("creating tick counter: %w", err)
	}
	out.commands, err = m.Int64Counter("sim.commands", metric.WithDescription("Commands applied or rejected"))
	if err != nil {
		return nil, fmt.Errorf("creating command counter: %w", err)
	}
	out.dropped, err = m.Int64Counter("sim.telemetry.dropped", metric.WithDescription("Telemetry frames dropped by slow subscribers"))
	if err != nil {
		return nil, fmt.Errorf("creating dropped counter: %w", err)
	}
	out.queueDepth, err = m.Int64ObservableGauge("sim.queue.depth", metric.WithDescription("Commands waiting for the next tick"))
	if err != nil {
		return nil, fmt.Errorf("creating queue depth gauge: %w", err)
	}
	_, err = m.RegisterCallback(func(ctx context.Context, o metric.Observer) error {
		o.ObserveInt64(out.queueDepth, int64(s.queue.Len()))
		return nil
	}, out.queueDepth)
	if err != nil {
		return nil, fmt.Errorf("registering queue depth callback: %w", err)
	}
	return out, nil
}

func (m *metrics) command(name string, err error) {
	result := "ok"
	if err != nil {
		result = "rejected"
	}
	m.commands.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("result", result),
	))
}
