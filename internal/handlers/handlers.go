package handlers

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/surveyor-hil/asvsim/internal/dispatcher"
	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/logging"
	"github.com/surveyor-hil/asvsim/internal/mission"
	"github.com/surveyor-hil/asvsim/internal/motion"
	"github.com/surveyor-hil/asvsim/internal/nmea"
	"github.com/surveyor-hil/asvsim/internal/queue"
	"github.com/surveyor-hil/asvsim/internal/sim"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

var (
	// ErrBadArgs is returned for sentences with missing or unparsable fields.
	ErrBadArgs = errors.New("bad arguments")
	// ErrUnsupportedMode is returned for control modes the boat knows but the
	// simulator does not model.
	ErrUnsupportedMode = errors.New("unsupported control mode")
)

// Error codes carried in PSEAE sentences.
const (
	CodeBadSentence = "BAD_SENTENCE"
	CodeBadChecksum = "BAD_CHECKSUM"
	CodeUnknown     = "UNKNOWN"
	CodeBadArgs     = "BAD_ARGS"
	CodeNoWaypoints = "NO_WAYPOINTS"
	CodeOutOfRange  = "OUT_OF_RANGE"
	CodeQueueFull   = "QUEUE_FULL"
)

// Submitter is the part of the simulator the handlers drive.
type Submitter interface {
	Submit(cmd sim.Command, done func(error)) error
	Telemetry() core.Telemetry
}

// Responder writes a framed line back to the client that sent a sentence.
// It is carried in dispatcher.Event.Payload.
type Responder interface {
	Send(line string) bool
}

// Dependencies holds all dependencies needed by handlers
type Dependencies struct {
	Sim        Submitter
	LogManager *logging.SlogManager
}

// Service turns protocol sentences into simulator commands.
type Service struct {
	deps         Dependencies
	writeLogFunc func(functionName, data, level string)
}

// NewService creates a new handler service
func NewService(deps Dependencies) *Service {
	s := &Service{deps: deps}
	s.writeLogFunc = func(functionName, data, level string) {
		if deps.LogManager != nil {
			deps.LogManager.WriteLog(functionName, data, level)
		}
	}
	return s
}

func (s *Service) writeLog(functionName, data, level string) {
	s.writeLogFunc(functionName, data, level)
}

// Register adds the client sentence handlers to d.
func (s *Service) Register(d *dispatcher.Dispatcher) {
	for _, typ := range []string{nmea.TypeCommand, nmea.TypeWaypoint, nmea.TypeThrottle} {
		d.Register(typ, s.handleCommand, dispatcher.Logged())
	}
	d.Register(nmea.TypePoll, s.handlePoll)
}

// handleCommand queues the decoded command. It has no reply; errors found
// while applying it on the next tick are reported to the client as PSEAE.
func (s *Service) handleCommand(e dispatcher.Event) (any, error) {
	sentence := nmea.Sentence{Type: e.Command, Fields: e.Args}
	cmd, err := ParseCommand(sentence)
	if err != nil {
		s.writeLog(":"+e.Command+":", sentence.Body(), "WARN")
		return nil, err
	}

	resp, _ := e.Payload.(Responder)
	done := func(err error) {
		if err == nil {
			return
		}
		s.writeLog(":"+cmd.Name()+":", err.Error(), "WARN")
		if resp != nil {
			resp.Send(nmea.Error(ErrorCode(err), err.Error()))
		}
	}
	return nil, s.deps.Sim.Submit(cmd, done)
}

func (s *Service) handlePoll(dispatcher.Event) (any, error) {
	return nmea.TelemetryFrame(s.deps.Sim.Telemetry()), nil
}

// ParseCommand decodes a client sentence into a simulator command.
func ParseCommand(st nmea.Sentence) (sim.Command, error) {
	switch st.Type {
	case nmea.TypeCommand:
		return parseControl(st)
	case nmea.TypeWaypoint:
		return parseWaypoint(st)
	case nmea.TypeThrottle:
		pct, err := intField(st, 2)
		if err != nil {
			return nil, err
		}
		return sim.SetMissionThrottle{Percent: pct}, nil
	}
	return nil, fmt.Errorf("%w: %s", dispatcher.ErrUnknownCommand, st.Type)
}

func parseControl(st nmea.Sentence) (sim.Command, error) {
	char := strings.ToUpper(st.Field(0))
	switch char {
	case "T":
		thrust, err := intField(st, 2)
		if err != nil {
			return nil, err
		}
		diff, err := intField(st, 3)
		if err != nil {
			return nil, err
		}
		return sim.SetThrusters{Thrust: thrust, Diff: diff}, nil
	case "C":
		heading, err := floatField(st, 1)
		if err != nil {
			return nil, err
		}
		thrust, err := intField(st, 2)
		if err != nil {
			return nil, err
		}
		return sim.SetHeading{Heading: heading, Thrust: thrust}, nil
	case "L":
		return sim.Standby{}, nil
	case "R":
		return sim.StationKeep{}, nil
	case "H":
		return sim.GoToERP{}, nil
	case "W":
		return sim.StartMission{}, nil
	case "S":
		return parseTeleport(st)
	case "F":
		n, err := intField(st, 1)
		if err != nil {
			return nil, err
		}
		if n == 0 {
			return sim.EndDownload{}, nil
		}
		return sim.BeginDownload{Lines: n}, nil
	}

	if mode, ok := core.ModeFromChar(char); ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedMode, mode)
	}
	return nil, fmt.Errorf("%w: PSEAC mode %q", dispatcher.ErrUnknownCommand, char)
}

// parseTeleport reads decimal degrees: PSEAC,S,<lat>,<lon>[,<heading>].
func parseTeleport(st nmea.Sentence) (sim.Command, error) {
	lat, err := floatField(st, 1)
	if err != nil {
		return nil, err
	}
	lon, err := floatField(st, 2)
	if err != nil {
		return nil, err
	}
	cmd := sim.Teleport{Position: core.GeoPoint{Lat: lat, Lon: lon}}
	if st.Field(3) != "" {
		h, err := floatField(st, 3)
		if err != nil {
			return nil, err
		}
		cmd.Heading = &h
	}
	return cmd, nil
}

func parseWaypoint(st nmea.Sentence) (sim.Command, error) {
	lat, err := nmea.ParseCoord(st.Field(0), st.Field(1))
	if err != nil {
		return nil, fmt.Errorf("%w: latitude: %w", ErrBadArgs, err)
	}
	lon, err := nmea.ParseCoord(st.Field(2), st.Field(3))
	if err != nil {
		return nil, fmt.Errorf("%w: longitude: %w", ErrBadArgs, err)
	}
	idx, err := intField(st, 4)
	if err != nil {
		return nil, err
	}
	return sim.AddWaypoint{Index: idx, Position: core.GeoPoint{Lat: lat, Lon: lon}}, nil
}

func intField(st nmea.Sentence, i int) (int, error) {
	v, err := strconv.Atoi(st.Field(i))
	if err != nil {
		return 0, fmt.Errorf("%w: %s field %d %q", ErrBadArgs, st.Type, i, st.Field(i))
	}
	return v, nil
}

func floatField(st nmea.Sentence, i int) (float64, error) {
	v, err := strconv.ParseFloat(st.Field(i), 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s field %d %q", ErrBadArgs, st.Type, i, st.Field(i))
	}
	return v, nil
}

// ErrorCode maps an error to its PSEAE code.
func ErrorCode(err error) string {
	switch {
	case errors.Is(err, nmea.ErrBadChecksum):
		return CodeBadChecksum
	case errors.Is(err, ErrBadArgs):
		return CodeBadArgs
	case errors.Is(err, nmea.ErrMalformed):
		return CodeBadSentence
	case errors.Is(err, dispatcher.ErrUnknownCommand), errors.Is(err, ErrUnsupportedMode):
		return CodeUnknown
	case errors.Is(err, mission.ErrNoWaypoints):
		return CodeNoWaypoints
	case errors.Is(err, motion.ErrOutOfRangeCommand), errors.Is(err, geo.ErrInvalidCoordinates):
		return CodeOutOfRange
	case errors.Is(err, queue.ErrFull), errors.Is(err, dispatcher.ErrQueueFull):
		return CodeQueueFull
	}
	return CodeBadArgs
}
