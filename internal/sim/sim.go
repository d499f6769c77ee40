// Package sim is the simulation context: it owns the mission controller and
// the control mode, drains the command queue once per tick and publishes
// telemetry.
package sim

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/surveyor-hil/asvsim/internal/channel"
	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/mission"
	"github.com/surveyor-hil/asvsim/internal/motion"
	"github.com/surveyor-hil/asvsim/internal/queue"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// DefaultStart is where the boat sits when no start position is configured.
var DefaultStart = core.GeoPoint{Lat: 25.758326, Lon: -80.373864}

const (
	DefaultTickInterval = 100 * time.Millisecond
	DefaultQueueSize    = 256
	DefaultHoldRadius   = 2.5 // meters
)

// Options configures a Simulator.
type Options struct {
	SessionID    string
	TickInterval time.Duration
	QueueSize    int
	Start        core.VehicleState
	Motion       motion.Params
	Mission      mission.Config
	HoldRadius   float64 // station keep and go-to-ERP arrival radius, meters
	Grid         *core.GridSpec
	Logger       *slog.Logger
	Now          func() time.Time
}

// DefaultOptions returns options for a boat at DefaultStart.
func DefaultOptions() Options {
	return Options{
		TickInterval: DefaultTickInterval,
		QueueSize:    DefaultQueueSize,
		Start:        core.VehicleState{Position: DefaultStart},
		Motion:       motion.DefaultParams(),
		Mission:      mission.DefaultConfig(),
		HoldRadius:   DefaultHoldRadius,
	}
}

type pending struct {
	cmd  Command
	done func(error)
}

// Simulator is the single owner of the simulated boat.
type Simulator struct {
	opts    Options
	log     *slog.Logger
	now     func() time.Time
	model   *motion.Model
	ctrl    *mission.Controller
	queue   *queue.Queue[pending]
	metrics *metrics

	mu          sync.RWMutex
	mode        core.ControlMode
	thrust      int     // manual thrust percent
	diff        int     // manual differential percent
	heading     float64 // heading mode target
	hold        core.GeoPoint
	erp         *core.GeoPoint
	download    []core.Waypoint
	downloading bool
	expected    int
	tick        uint64
	latest      core.Telemetry

	evMu   sync.Mutex
	events []core.MissionEvent

	telemetry     *hub[core.Telemetry]
	missionEvents *hub[core.MissionEvent]
}

// New builds a simulator. Zero option fields fall back to the defaults.
func New(opts Options) (*Simulator, error) {
	def := DefaultOptions()
	if opts.TickInterval <= 0 {
		opts.TickInterval = def.TickInterval
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = def.QueueSize
	}
	if opts.Motion == (motion.Params{}) {
		opts.Motion = def.Motion
	}
	if opts.Mission == (mission.Config{}) {
		opts.Mission = def.Mission
	}
	if opts.HoldRadius <= 0 {
		opts.HoldRadius = def.HoldRadius
	}
	if opts.Start.Position == (core.GeoPoint{}) {
		opts.Start.Position = def.Start.Position
	}
	if !opts.Start.Position.Valid() {
		return nil, fmt.Errorf("start position: %w", geo.ErrInvalidCoordinates)
	}
	opts.Start.Heading = geo.NormalizeHeading(opts.Start.Heading)
	opts.Start.Speed = math.Max(0, opts.Start.Speed)
	if opts.Grid != nil {
		if err := geo.Validate(*opts.Grid); err != nil {
			return nil, err
		}
		g := *opts.Grid
		opts.Grid = &g
	}

	model, err := motion.New(opts.Motion)
	if err != nil {
		return nil, err
	}

	s := &Simulator{
		opts:          opts,
		log:           opts.Logger,
		now:           opts.Now,
		model:         model,
		queue:         queue.New[pending](opts.QueueSize),
		mode:          core.ModeStandby,
		telemetry:     newHub[core.Telemetry](),
		missionEvents: newHub[core.MissionEvent](),
	}
	if s.log == nil {
		s.log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if s.now == nil {
		s.now = time.Now
	}

	s.ctrl = mission.NewController(model, opts.Start, opts.Mission)
	s.ctrl.OnEvent(s.onControllerEvent)

	if s.metrics, err = newMetrics(s); err != nil {
		return nil, err
	}

	s.latest = s.buildTelemetry(opts.Start, 0, 0)
	return s, nil
}

// Submit queues cmd for the next tick. done, if set, is called from the
// simulation goroutine with the result of applying the command. A full
// queue rejects the command with queue.ErrFull.
func (s *Simulator) Submit(cmd Command, done func(error)) error {
	if cmd == nil {
		return fmt.Errorf("%w: nil command", motion.ErrOutOfRangeCommand)
	}
	if v, ok := cmd.(interface{ Validate() error }); ok {
		if err := v.Validate(); err != nil {
			s.metrics.command(cmd.Name(), err)
			return fmt.Errorf("%s: %w", cmd.Name(), err)
		}
	}
	if err := s.queue.Push(pending{cmd: cmd, done: done}); err != nil {
		s.metrics.command(cmd.Name(), err)
		return fmt.Errorf("%s: %w", cmd.Name(), err)
	}
	return nil
}

// Run steps the simulation on a fixed tick until ctx is done.
func (s *Simulator) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.opts.TickInterval)
	defer ticker.Stop()

	s.log.Info("simulation started",
		"session", s.opts.SessionID,
		"tick", s.opts.TickInterval,
		"lat", s.opts.Start.Position.Lat,
		"lon", s.opts.Start.Position.Lon)

	for {
		select {
		case <-ctx.Done():
			s.log.Info("simulation stopped", "ticks", s.Telemetry().Tick)
			return nil
		case <-ticker.C:
			s.Step(s.opts.TickInterval)
		}
	}
}

// Step drains the command queue in FIFO order, advances the boat by dt and
// publishes the resulting telemetry.
func (s *Simulator) Step(dt time.Duration) core.Telemetry {
	s.mu.Lock()
	for _, p := range s.queue.Drain() {
		err := p.cmd.apply(s)
		s.metrics.command(p.cmd.Name(), err)
		if err != nil {
			s.log.Warn("command rejected", "command", p.cmd.Name(), "error", err)
		} else {
			s.log.Debug("command applied", "command", p.cmd.Name(), "mode", s.mode)
		}
		if p.done != nil {
			p.done(err)
		}
	}

	prev := s.ctrl.State()
	s.ctrl.SetManual(s.manualLocked(prev))
	state, err := s.ctrl.Tick(dt)
	if err != nil {
		s.log.Error("tick failed", "error", err)
		state = prev
	}
	s.tick++

	events := s.takeEvents()
	for _, e := range events {
		if e.Kind == core.EventMissionComplete {
			s.setModeLocked(core.ModeStandby)
		}
	}
	if s.mode == core.ModeGoToERP && s.erp != nil && geo.Distance(state.Position, *s.erp) <= s.opts.HoldRadius {
		s.log.Info("reached emergency recovery point, holding station")
		s.hold = *s.erp
		s.mode = core.ModeStationKeep
	}

	thrust, diff := s.effortLocked(prev, state, dt)
	telem := s.buildTelemetry(state, thrust, diff)
	s.latest = telem
	s.mu.Unlock()

	s.metrics.ticks.Add(context.Background(), 1)
	for _, e := range events {
		s.log.Info("mission event", "kind", e.Kind, "waypoint", e.WaypointIndex, "detail", e.Detail)
		s.missionEvents.publish(e)
	}
	if dropped := s.telemetry.publish(telem); dropped > 0 {
		s.metrics.dropped.Add(context.Background(), int64(dropped))
	}
	return telem
}

// manualLocked is the command for the current control mode. Missions are
// driven by the controller itself.
func (s *Simulator) manualLocked(state core.VehicleState) motion.Command {
	switch s.mode {
	case core.ModeThruster:
		return motion.Actuation{
			Thrust:       float64(s.thrust) / 100,
			SteeringRate: float64(s.diff) / 100 * s.opts.Motion.MaxSteeringRate,
		}
	case core.ModeHeading:
		return motion.SeekBearing{Bearing: s.heading, Thrust: float64(s.thrust) / 100}
	case core.ModeStationKeep:
		return s.seekPoint(state, s.hold)
	case core.ModeGoToERP:
		if s.erp != nil {
			return s.seekPoint(state, *s.erp)
		}
	}
	return motion.Idle
}

// seekPoint steers toward p at the mission throttle, easing off close in and
// idling inside the hold radius.
func (s *Simulator) seekPoint(state core.VehicleState, p core.GeoPoint) motion.Command {
	dist := geo.Distance(state.Position, p)
	if dist <= s.opts.HoldRadius {
		return motion.Idle
	}
	cfg := s.opts.Mission
	factor := math.Max(cfg.MinTaper, math.Min(1, dist/cfg.TaperDistance))
	return motion.SeekBearing{
		Bearing: geo.Bearing(state.Position, p),
		Thrust:  s.ctrl.Throttle() * factor,
	}
}

// effortLocked reports thrust and differential percent as applied on the
// last tick.
func (s *Simulator) effortLocked(prev, next core.VehicleState, dt time.Duration) (int, int) {
	if s.mode == core.ModeThruster {
		return s.thrust, s.diff
	}
	var thrust float64
	switch c := s.ctrl.LastCommand().(type) {
	case motion.Actuation:
		thrust = c.Thrust
	case motion.SeekBearing:
		thrust = c.Thrust
	}
	rate := geo.HeadingError(prev.Heading, next.Heading) / dt.Seconds()
	diff := rate / s.opts.Motion.MaxSteeringRate * 100
	return int(math.Round(thrust * 100)), int(math.Round(diff))
}

func (s *Simulator) buildTelemetry(state core.VehicleState, thrust, diff int) core.Telemetry {
	m := s.ctrl.Mission()
	t := core.Telemetry{
		SessionID:     s.opts.SessionID,
		Time:          s.now().UTC(),
		Tick:          s.tick,
		State:         state,
		Mode:          s.reportedModeLocked(),
		Thrust:        thrust,
		Diff:          diff,
		MissionStatus: m.Status,
		WaypointIndex: m.Target,
		WaypointCount: len(m.Waypoints),
	}
	if g := s.opts.Grid; g != nil && geo.Contains(*g, state.Position) {
		if cell, err := geo.GeoToCell(*g, state.Position); err == nil {
			t.Cell = &cell
		}
	}
	return t
}

func (s *Simulator) reportedModeLocked() core.ControlMode {
	if s.downloading {
		return core.ModeFileDownload
	}
	return s.mode
}

func (s *Simulator) setModeLocked(mode core.ControlMode) {
	if s.mode != mode {
		s.log.Info("control mode changed", "from", s.mode, "to", mode)
	}
	s.mode = mode
	if mode == core.ModeStandby {
		s.thrust, s.diff = 0, 0
	}
}

func (s *Simulator) onControllerEvent(e mission.Event) {
	ev := core.MissionEvent{
		SessionID:     s.opts.SessionID,
		Time:          s.now().UTC(),
		Kind:          e.Kind,
		WaypointIndex: e.WaypointIndex,
		Position:      e.Position,
		Detail:        eventDetail(e),
	}
	s.evMu.Lock()
	s.events = append(s.events, ev)
	s.evMu.Unlock()
}

func eventDetail(e mission.Event) string {
	switch e.Kind {
	case core.EventWaypointReached:
		return fmt.Sprintf("reached waypoint %d", e.WaypointIndex)
	case core.EventTeleported:
		return fmt.Sprintf("teleported to %.6f,%.6f", e.Position.Lat, e.Position.Lon)
	default:
		return string(e.Kind)
	}
}

func (s *Simulator) takeEvents() []core.MissionEvent {
	s.evMu.Lock()
	defer s.evMu.Unlock()
	events := s.events
	s.events = nil
	return events
}

// Telemetry returns the most recently published frame.
func (s *Simulator) Telemetry() core.Telemetry {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Mission returns a snapshot of the mission.
func (s *Simulator) Mission() core.Mission {
	return s.ctrl.Mission()
}

// Mode returns the reported control mode.
func (s *Simulator) Mode() core.ControlMode {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.reportedModeLocked()
}

// ERP returns the emergency recovery point, if one was downloaded.
func (s *Simulator) ERP() (core.GeoPoint, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.erp == nil {
		return core.GeoPoint{}, false
	}
	return *s.erp, true
}

// Grid returns the configured grid, or nil.
func (s *Simulator) Grid() *core.GridSpec {
	if s.opts.Grid == nil {
		return nil
	}
	g := *s.opts.Grid
	return &g
}

// SessionID identifies this simulator run.
func (s *Simulator) SessionID() string {
	return s.opts.SessionID
}

// QueueLen is the number of commands waiting for the next tick.
func (s *Simulator) QueueLen() int {
	return s.queue.Len()
}

// Subscribe returns a telemetry feed. Frames are dropped when the
// subscriber falls behind. The returned func unsubscribes.
func (s *Simulator) Subscribe(buffer int) (channel.Receiver[core.Telemetry], func()) {
	return s.telemetry.subscribe(buffer)
}

// SubscribeEvents returns a mission event feed.
func (s *Simulator) SubscribeEvents(buffer int) (channel.Receiver[core.MissionEvent], func()) {
	return s.missionEvents.subscribe(buffer)
}

// Close ends every subscription. Call it after Run has returned.
func (s *Simulator) Close() {
	s.telemetry.close()
	s.missionEvents.close()
}
