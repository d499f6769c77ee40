package worker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyor-hil/asvsim/internal/channel"
	"github.com/surveyor-hil/asvsim/internal/dispatcher"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// mockLogger implements dispatcher.Logger for testing
type mockLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *mockLogger) Debug(msg string, _ ...any) { l.add(msg) }
func (l *mockLogger) Info(msg string, _ ...any)  { l.add(msg) }
func (l *mockLogger) Warn(msg string, _ ...any)  { l.add(msg) }
func (l *mockLogger) Error(msg string, _ ...any) { l.add(msg) }

func (l *mockLogger) add(msg string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, msg)
}

// mockBackend implements storage.Backend for testing
type mockBackend struct {
	mu        sync.Mutex
	session   *core.Session
	ended     bool
	frames    []*core.Telemetry
	events    []*core.MissionEvent
	recordErr error
}

func (b *mockBackend) Init() error  { return nil }
func (b *mockBackend) Close() error { return nil }

func (b *mockBackend) StartSession(s *core.Session) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.session = s
	return nil
}

func (b *mockBackend) EndSession() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.ended = true
	return nil
}

func (b *mockBackend) RecordTelemetry(t *core.Telemetry) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.recordErr != nil {
		return b.recordErr
	}
	b.frames = append(b.frames, t)
	return nil
}

func (b *mockBackend) RecordMissionEvent(e *core.MissionEvent) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, e)
	return nil
}

func (b *mockBackend) counts() (int, int) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.frames), len(b.events)
}

type mockInflux struct {
	mu     sync.Mutex
	points []*influxdb2_write.Point
}

func (i *mockInflux) WritePoint(p *influxdb2_write.Point) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.points = append(i.points, p)
	return nil
}

func (i *mockInflux) names() []string {
	i.mu.Lock()
	defer i.mu.Unlock()
	out := make([]string, len(i.points))
	for n, p := range i.points {
		out[n] = p.Name()
	}
	return out
}

// mockSource replays fixed frames and events, then closes its streams.
type mockSource struct {
	frames []core.Telemetry
	events []core.MissionEvent
}

func (s *mockSource) Subscribe(int) (channel.Receiver[core.Telemetry], func()) {
	ch := channel.NewBuffered[core.Telemetry](len(s.frames))
	for _, f := range s.frames {
		ch.Send(f)
	}
	ch.Close()
	return ch, func() {}
}

func (s *mockSource) SubscribeEvents(int) (channel.Receiver[core.MissionEvent], func()) {
	ch := channel.NewBuffered[core.MissionEvent](len(s.events))
	for _, e := range s.events {
		ch.Send(e)
	}
	ch.Close()
	return ch, func() {}
}

func newTestDispatcher(t *testing.T) *dispatcher.Dispatcher {
	t.Helper()
	d, err := dispatcher.New(&mockLogger{})
	require.NoError(t, err)
	return d
}

func TestRegisterHandlers(t *testing.T) {
	d := newTestDispatcher(t)
	defer d.Close()
	NewManager(Dependencies{}, &mockBackend{}).RegisterHandlers(d)

	assert.True(t, d.HasHandler(CmdTelemetry))
	assert.True(t, d.HasHandler(CmdMissionEvent))
}

func TestRunRecordsFramesAndEvents(t *testing.T) {
	backend := &mockBackend{}
	sink := &mockInflux{}
	m := NewManager(Dependencies{Influx: sink}, backend)
	d := newTestDispatcher(t)
	m.RegisterHandlers(d)

	src := &mockSource{
		frames: []core.Telemetry{{Tick: 1}, {Tick: 2}, {Tick: 3}},
		events: []core.MissionEvent{{Kind: core.EventMissionStarted}},
	}
	require.NoError(t, m.Run(context.Background(), src, d))
	d.Close()

	frames, events := backend.counts()
	assert.Equal(t, 3, frames)
	assert.Equal(t, 1, events)
	assert.Equal(t, []uint64{1, 2, 3}, []uint64{backend.frames[0].Tick, backend.frames[1].Tick, backend.frames[2].Tick})
	assert.ElementsMatch(t, []string{"asv_telemetry", "asv_telemetry", "asv_telemetry", "asv_mission_event"}, sink.names())

	st := m.Stats()
	assert.Equal(t, Stats{Frames: 3, Events: 1}, st)
}

func TestRunStopsOnContext(t *testing.T) {
	m := NewManager(Dependencies{}, &mockBackend{})
	d := newTestDispatcher(t)
	defer d.Close()
	m.RegisterHandlers(d)

	src := &blockingSource{}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- m.Run(ctx, src, d) }()

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

// blockingSource never produces anything.
type blockingSource struct{}

func (blockingSource) Subscribe(int) (channel.Receiver[core.Telemetry], func()) {
	return channel.NewBuffered[core.Telemetry](1), func() {}
}

func (blockingSource) SubscribeEvents(int) (channel.Receiver[core.MissionEvent], func()) {
	return channel.NewBuffered[core.MissionEvent](1), func() {}
}

func TestBackendErrorsAreCounted(t *testing.T) {
	backend := &mockBackend{recordErr: errors.New("disk full")}
	m := NewManager(Dependencies{}, backend)

	_, err := m.handleTelemetry(dispatcher.Event{Command: CmdTelemetry, Payload: &core.Telemetry{Tick: 9}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "tick 9")
	assert.Contains(t, err.Error(), "disk full")
	assert.Equal(t, uint64(1), m.Stats().Errors)
	assert.Equal(t, uint64(1), m.Stats().Frames)
}

func TestHandlersRejectWrongPayload(t *testing.T) {
	m := NewManager(Dependencies{}, &mockBackend{})

	_, err := m.handleTelemetry(dispatcher.Event{Payload: "nope"})
	assert.Error(t, err)
	_, err = m.handleMissionEvent(dispatcher.Event{Payload: 42})
	assert.Error(t, err)
}

func TestInfluxOnly(t *testing.T) {
	sink := &mockInflux{}
	m := NewManager(Dependencies{Influx: sink}, nil)

	_, err := m.handleMissionEvent(dispatcher.Event{Payload: &core.MissionEvent{Kind: core.EventMissionAborted}})
	require.NoError(t, err)
	assert.Equal(t, []string{"asv_mission_event"}, sink.names())

	assert.ErrorIs(t, m.StartSession(&core.Session{ID: "x"}), ErrNoBackend)
	assert.ErrorIs(t, m.EndSession(), ErrNoBackend)
}

func TestSessionLifecycle(t *testing.T) {
	backend := &mockBackend{}
	m := NewManager(Dependencies{}, backend)

	require.NoError(t, m.StartSession(&core.Session{ID: "abc"}))
	require.NoError(t, m.EndSession())
	assert.Equal(t, "abc", backend.session.ID)
	assert.True(t, backend.ended)
	assert.Same(t, backend, m.Backend())
}
