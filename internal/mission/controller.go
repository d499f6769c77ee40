// Package mission sequences a waypoint mission on top of the motion model.
package mission

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/motion"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

var (
	// ErrNoWaypoints is returned when a mission is started or loaded empty.
	ErrNoWaypoints = errors.New("mission has no waypoints")

	// ErrMissionFinished is returned when a completed or aborted mission is
	// resumed. Only loading or starting a new mission leaves those states.
	ErrMissionFinished = fmt.Errorf("mission finished, load a new one: %w", ErrNoWaypoints)
)

const (
	DefaultArrivalRadius = 2.5  // meters
	DefaultTaperDistance = 10.0 // meters
	DefaultMinTaper      = 0.2
	DefaultThrottle      = 0.5
)

// Config tunes waypoint following.
type Config struct {
	ArrivalRadius float64 // meters; a waypoint inside this radius is reached
	TaperDistance float64 // meters; throttle tapers approaching the final waypoint
	MinTaper      float64 // lower bound of the taper factor
	Throttle      float64 // mission throttle in [0,1]
}

// DefaultConfig returns the stock waypoint-following settings.
func DefaultConfig() Config {
	return Config{
		ArrivalRadius: DefaultArrivalRadius,
		TaperDistance: DefaultTaperDistance,
		MinTaper:      DefaultMinTaper,
		Throttle:      DefaultThrottle,
	}
}

// Event is a mission transition reported to the observer.
type Event struct {
	Kind          core.MissionEventKind
	WaypointIndex int
	Position      core.GeoPoint
}

// EventFunc observes mission transitions. It is called after the
// controller's lock is released, so it may read from the controller.
type EventFunc func(Event)

// Controller owns the vehicle state and the mission. Tick is the only
// place the state advances.
type Controller struct {
	mu        sync.RWMutex
	model     *motion.Model
	cfg       Config
	state     core.VehicleState
	waypoints []core.Waypoint
	target    int
	status    core.MissionStatus
	manual    motion.Command
	last      motion.Command
	onEvent   EventFunc
}

// NewController returns a controller with no mission holding the given state.
func NewController(model *motion.Model, initial core.VehicleState, cfg Config) *Controller {
	if cfg.ArrivalRadius <= 0 {
		cfg.ArrivalRadius = DefaultArrivalRadius
	}
	if cfg.TaperDistance <= 0 {
		cfg.TaperDistance = DefaultTaperDistance
	}
	if cfg.MinTaper <= 0 || cfg.MinTaper > 1 {
		cfg.MinTaper = DefaultMinTaper
	}
	cfg.Throttle = clampUnit(cfg.Throttle)
	return &Controller{
		model:  model,
		cfg:    cfg,
		state:  initial,
		status: core.MissionPending,
		manual: motion.Idle,
		last:   motion.Idle,
	}
}

// OnEvent sets the transition observer.
func (c *Controller) OnEvent(fn EventFunc) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onEvent = fn
}

// Load replaces the mission without starting it.
func (c *Controller) Load(waypoints []core.Waypoint) error {
	if len(waypoints) == 0 {
		return ErrNoWaypoints
	}
	c.mu.Lock()
	c.waypoints = cloneWaypoints(waypoints)
	c.target = 0
	c.status = core.MissionPending
	events := []Event{{Kind: core.EventMissionLoaded, Position: c.state.Position}}
	fn := c.onEvent
	c.mu.Unlock()

	emit(fn, events)
	return nil
}

// Start replaces the mission and makes it active from the first waypoint.
func (c *Controller) Start(waypoints []core.Waypoint) error {
	if len(waypoints) == 0 {
		return ErrNoWaypoints
	}
	c.mu.Lock()
	c.waypoints = cloneWaypoints(waypoints)
	events := c.activateLocked()
	fn := c.onEvent
	c.mu.Unlock()

	emit(fn, events)
	return nil
}

// Resume activates a pending mission from its first waypoint. An active
// mission keeps going.
func (c *Controller) Resume() error {
	c.mu.Lock()
	switch {
	case len(c.waypoints) == 0:
		c.mu.Unlock()
		return ErrNoWaypoints
	case c.status.Terminal():
		status := c.status
		c.mu.Unlock()
		return fmt.Errorf("resume %s mission: %w", status, ErrMissionFinished)
	case c.status == core.MissionActive:
		c.mu.Unlock()
		return nil
	}
	events := c.activateLocked()
	fn := c.onEvent
	c.mu.Unlock()

	emit(fn, events)
	return nil
}

func (c *Controller) activateLocked() []Event {
	c.target = 0
	c.status = core.MissionActive
	return []Event{{Kind: core.EventMissionStarted, Position: c.state.Position}}
}

// Abort stops a pending or active mission. Completed and aborted missions
// are left as they are.
func (c *Controller) Abort() {
	c.mu.Lock()
	if c.status.Terminal() {
		c.mu.Unlock()
		return
	}
	c.status = core.MissionAborted
	events := []Event{{Kind: core.EventMissionAborted, WaypointIndex: c.target, Position: c.state.Position}}
	fn := c.onEvent
	c.mu.Unlock()

	emit(fn, events)
}

// SetManual sets the command applied on ticks where no mission is active.
func (c *Controller) SetManual(cmd motion.Command) {
	if cmd == nil {
		cmd = motion.Idle
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manual = cmd
}

// SetThrottle sets the mission throttle, clamped to [0,1].
func (c *Controller) SetThrottle(throttle float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg.Throttle = clampUnit(throttle)
}

// Throttle returns the mission throttle.
func (c *Controller) Throttle() float64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.cfg.Throttle
}

// Teleport replaces the vehicle state outright.
func (c *Controller) Teleport(state core.VehicleState) error {
	if !state.Position.Valid() {
		return fmt.Errorf("teleport: %w", geo.ErrInvalidCoordinates)
	}
	state.Heading = geo.NormalizeHeading(state.Heading)
	state.Speed = math.Max(0, state.Speed)

	c.mu.Lock()
	c.state = state
	events := []Event{{Kind: core.EventTeleported, WaypointIndex: c.target, Position: state.Position}}
	fn := c.onEvent
	c.mu.Unlock()

	emit(fn, events)
	return nil
}

// State returns the current vehicle state.
func (c *Controller) State() core.VehicleState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// LastCommand returns the command applied on the most recent tick.
func (c *Controller) LastCommand() motion.Command {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.last
}

// Status returns the mission status.
func (c *Controller) Status() core.MissionStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.status
}

// Mission returns a snapshot of the mission.
func (c *Controller) Mission() core.Mission {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return core.Mission{
		Waypoints: cloneWaypoints(c.waypoints),
		Target:    c.target,
		Status:    c.status,
	}
}

// Tick advances the vehicle by dt. While a mission is active the target
// waypoint is checked for arrival first (at most one advance per tick),
// then the boat seeks the current target. Otherwise the manual command is
// applied. On error nothing changes.
func (c *Controller) Tick(dt time.Duration) (core.VehicleState, error) {
	c.mu.Lock()

	var events []Event
	target, status := c.target, c.status
	cmd := c.manual

	if status == core.MissionActive {
		wp := c.waypoints[target]
		dist := geo.Distance(c.state.Position, wp.Position)
		if dist <= c.cfg.ArrivalRadius {
			events = append(events, Event{Kind: core.EventWaypointReached, WaypointIndex: target, Position: c.state.Position})
			target++
			if target >= len(c.waypoints) {
				status = core.MissionCompleted
				events = append(events, Event{Kind: core.EventMissionComplete, WaypointIndex: target - 1, Position: c.state.Position})
				cmd = motion.Idle
			}
		}
		if status == core.MissionActive {
			cmd = c.seekLocked(target)
		}
	}

	next, err := c.model.Step(c.state, cmd, dt)
	if err != nil {
		prev := c.state
		c.mu.Unlock()
		return prev, err
	}

	c.state = next
	c.last = cmd
	c.target = target
	c.status = status
	if status == core.MissionCompleted {
		c.target = len(c.waypoints) - 1
		c.manual = motion.Idle
	}
	fn := c.onEvent
	c.mu.Unlock()

	emit(fn, events)
	return next, nil
}

// seekLocked steers toward waypoint i, tapering the throttle on the final
// approach.
func (c *Controller) seekLocked(i int) motion.Command {
	wp := c.waypoints[i]
	dist := geo.Distance(c.state.Position, wp.Position)
	throttle := c.cfg.Throttle
	if i == len(c.waypoints)-1 && dist < c.cfg.TaperDistance {
		throttle *= math.Max(c.cfg.MinTaper, dist/c.cfg.TaperDistance)
	}
	return motion.SeekBearing{
		Bearing: geo.Bearing(c.state.Position, wp.Position),
		Thrust:  throttle,
	}
}

func emit(fn EventFunc, events []Event) {
	if fn == nil {
		return
	}
	for _, e := range events {
		fn(e)
	}
}

func cloneWaypoints(in []core.Waypoint) []core.Waypoint {
	if in == nil {
		return nil
	}
	out := make([]core.Waypoint, len(in))
	copy(out, in)
	return out
}

func clampUnit(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
