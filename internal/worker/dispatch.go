package worker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/surveyor-hil/asvsim/internal/channel"
	"github.com/surveyor-hil/asvsim/internal/dispatcher"
	"github.com/surveyor-hil/asvsim/internal/influx"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// Internal dispatcher commands. They never arrive from protocol clients.
const (
	CmdTelemetry    = ":TELEMETRY:"
	CmdMissionEvent = ":MISSION:EVENT:"
)

// Source is the part of the simulator the manager records from.
type Source interface {
	Subscribe(buffer int) (channel.Receiver[core.Telemetry], func())
	SubscribeEvents(buffer int) (channel.Receiver[core.MissionEvent], func())
}

// RegisterHandlers registers the recording handlers with the dispatcher.
func (m *Manager) RegisterHandlers(d *dispatcher.Dispatcher) {
	// High-volume frames - buffered, dropped when the writer falls behind
	d.Register(CmdTelemetry, m.handleTelemetry, dispatcher.Buffered(10000))
	// Mission events are rare and must not be lost
	d.Register(CmdMissionEvent, m.handleMissionEvent, dispatcher.Buffered(1000), dispatcher.Blocking(), dispatcher.Logged())
}

// Run forwards simulator output into d until ctx is done or the simulator
// closes its streams.
func (m *Manager) Run(ctx context.Context, src Source, d *dispatcher.Dispatcher) error {
	frames, stopFrames := src.Subscribe(256)
	defer stopFrames()
	events, stopEvents := src.SubscribeEvents(64)
	defer stopEvents()

	frameCh, eventCh := frames.Receive(), events.Receive()
	for frameCh != nil || eventCh != nil {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-frameCh:
			if !ok {
				frameCh = nil
				continue
			}
			m.dispatch(d, CmdTelemetry, &t)
		case e, ok := <-eventCh:
			if !ok {
				eventCh = nil
				continue
			}
			m.dispatch(d, CmdMissionEvent, &e)
		}
	}
	return nil
}

func (m *Manager) dispatch(d *dispatcher.Dispatcher, command string, payload any) {
	_, err := d.Dispatch(dispatcher.Event{
		Command:   command,
		Source:    "sim",
		Payload:   payload,
		Timestamp: time.Now(),
	})
	switch {
	case err == nil:
		if command == CmdTelemetry {
			m.queued.Add(1)
		}
	case errors.Is(err, dispatcher.ErrClosed):
	default:
		m.errors.Add(1)
		m.deps.LogManager.WriteLog(command, err.Error(), "WARN")
	}
}

func (m *Manager) handleTelemetry(e dispatcher.Event) (any, error) {
	m.queued.Add(-1)
	t, ok := e.Payload.(*core.Telemetry)
	if !ok {
		return nil, fmt.Errorf("telemetry handler: unexpected payload %T", e.Payload)
	}

	var errs []error
	if m.backend != nil {
		if err := m.backend.RecordTelemetry(t); err != nil {
			errs = append(errs, fmt.Errorf("record telemetry tick %d: %w", t.Tick, err))
		}
	}
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePoint(influx.TelemetryPoint(t)); err != nil {
			errs = append(errs, fmt.Errorf("influx telemetry tick %d: %w", t.Tick, err))
		}
	}
	m.frames.Add(1)
	return nil, m.collect(errs)
}

func (m *Manager) handleMissionEvent(e dispatcher.Event) (any, error) {
	ev, ok := e.Payload.(*core.MissionEvent)
	if !ok {
		return nil, fmt.Errorf("mission event handler: unexpected payload %T", e.Payload)
	}

	var errs []error
	if m.backend != nil {
		if err := m.backend.RecordMissionEvent(ev); err != nil {
			errs = append(errs, fmt.Errorf("record mission event %s: %w", ev.Kind, err))
		}
	}
	if m.deps.Influx != nil {
		if err := m.deps.Influx.WritePoint(influx.MissionEventPoint(ev)); err != nil {
			errs = append(errs, fmt.Errorf("influx mission event %s: %w", ev.Kind, err))
		}
	}
	m.events.Add(1)
	return nil, m.collect(errs)
}

func (m *Manager) collect(errs []error) error {
	if len(errs) == 0 {
		return nil
	}
	m.errors.Add(1)
	return errors.Join(errs...)
}
