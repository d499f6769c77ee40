// Package motion is the kinematic model of the simulated boat. It is a pure
// function of (state, command, dt); nothing here keeps state between steps.
package motion

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// ErrOutOfRangeCommand is returned for commands carrying NaN/Inf values and
// for non-positive time steps.
var ErrOutOfRangeCommand = errors.New("command out of range")

// Command is one of Actuation or SeekBearing.
type Command interface {
	isCommand()
}

// Actuation drives the thrusters directly. Thrust is in [-1,1] and
// SteeringRate is in degrees per second (positive turns clockwise).
type Actuation struct {
	Thrust       float64
	SteeringRate float64
}

// SeekBearing turns toward Bearing while applying Thrust.
type SeekBearing struct {
	Bearing float64
	Thrust  float64
}

func (Actuation) isCommand()   {}
func (SeekBearing) isCommand() {}

// Idle is the zero actuation: no thrust, no turn.
var Idle = Actuation{}

// Params bounds the vehicle dynamics.
type Params struct {
	MaxSpeed        float64 // m/s at full thrust
	MaxAccel        float64 // m/s²
	MaxDecel        float64 // m/s²
	MaxSteeringRate float64 // deg/s
	SteeringGain    float64 // deg/s per degree of heading error
}

// DefaultParams matches the hardware the simulator stands in for.
func DefaultParams() Params {
	return Params{
		MaxSpeed:        2.0,
		MaxAccel:        0.1,
		MaxDecel:        0.2,
		MaxSteeringRate: 40,
		SteeringGain:    1.0,
	}
}

// Validate checks that every bound is finite and positive.
func (p Params) Validate() error {
	fields := []struct {
		name string
		v    float64
	}{
		{"max speed", p.MaxSpeed},
		{"max accel", p.MaxAccel},
		{"max decel", p.MaxDecel},
		{"max steering rate", p.MaxSteeringRate},
		{"steering gain", p.SteeringGain},
	}
	for _, f := range fields {
		if !finite(f.v) || f.v <= 0 {
			return fmt.Errorf("invalid motion params: %s must be positive, got %v", f.name, f.v)
		}
	}
	return nil
}

// Model steps a VehicleState forward in time.
type Model struct {
	params Params
}

// New returns a Model with the given bounds.
func New(p Params) (*Model, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	return &Model{params: p}, nil
}

// Params returns the model bounds.
func (m *Model) Params() Params {
	return m.params
}

// Step applies cmd for dt and returns the new state. The heading is updated
// first, then the speed, then the position is dead-reckoned along the new
// heading at the new speed. On error the input state is returned unchanged.
func (m *Model) Step(state core.VehicleState, cmd Command, dt time.Duration) (core.VehicleState, error) {
	if dt <= 0 {
		return state, fmt.Errorf("%w: time step %s", ErrOutOfRangeCommand, dt)
	}
	secs := dt.Seconds()

	var thrust, turn float64
	heading := geo.NormalizeHeading(state.Heading)

	switch c := cmd.(type) {
	case Actuation:
		if !finite(c.Thrust) || !finite(c.SteeringRate) {
			return state, fmt.Errorf("%w: actuation %+v", ErrOutOfRangeCommand, c)
		}
		thrust = clamp(c.Thrust, -1, 1)
		turn = clamp(c.SteeringRate, -m.params.MaxSteeringRate, m.params.MaxSteeringRate) * secs
	case SeekBearing:
		if !finite(c.Bearing) || !finite(c.Thrust) {
			return state, fmt.Errorf("%w: seek %+v", ErrOutOfRangeCommand, c)
		}
		thrust = clamp(c.Thrust, -1, 1)
		turn = m.seekTurn(heading, c.Bearing, secs)
	case nil:
		return state, fmt.Errorf("%w: nil command", ErrOutOfRangeCommand)
	default:
		return state, fmt.Errorf("%w: unsupported command %T", ErrOutOfRangeCommand, cmd)
	}

	next := core.VehicleState{
		Heading: geo.NormalizeHeading(heading + turn),
		Speed:   m.nextSpeed(math.Max(0, state.Speed), thrust, secs),
	}

	dist := next.Speed * secs
	rad := next.Heading * math.Pi / 180
	next.Position = geo.Offset(state.Position, dist*math.Cos(rad), dist*math.Sin(rad))
	return next, nil
}

// seekTurn is the proportional turn toward target, limited to the max rate
// and never past the target.
func (m *Model) seekTurn(heading, target, secs float64) float64 {
	errDeg := geo.HeadingError(heading, target)
	rate := clamp(m.params.SteeringGain*errDeg, -m.params.MaxSteeringRate, m.params.MaxSteeringRate)
	turn := rate * secs
	if math.Abs(turn) > math.Abs(errDeg) {
		turn = errDeg
	}
	return turn
}

// nextSpeed moves speed toward max(0,thrust)*MaxSpeed. Negative thrust
// brakes harder than coasting, scaled by its magnitude.
func (m *Model) nextSpeed(speed, thrust, secs float64) float64 {
	target := math.Max(0, thrust) * m.params.MaxSpeed
	if target >= speed {
		return math.Min(target, speed+m.params.MaxAccel*secs)
	}
	decel := m.params.MaxDecel
	if thrust < 0 {
		decel *= 1 - thrust
	}
	return math.Max(target, speed-decel*secs)
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
