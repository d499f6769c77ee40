package nmea

import (
	"fmt"
	"strconv"
	"time"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

// Sentence types spoken by the boat.
const (
	TypeCommand  = "PSEAC"
	TypeWaypoint = "OIWPL"
	TypeThrottle = "PSEAR"
	TypePoll     = "PSEAQ"
	TypeGGA      = "GPGGA"
	TypeAttitude = "PSEAA"
	TypeStatus   = "PSEAD"
	TypeError    = "PSEAE"
)

// GGA is the position fix sentence.
func GGA(t time.Time, p core.GeoPoint) string {
	lat, ns := FormatLat(p.Lat, 5)
	lon, ew := FormatLon(p.Lon, 5)
	return Build(TypeGGA, t.UTC().Format("150405")+".00", lat, ns, lon, ew,
		"1", "08", "1.0", "0.0", "M", "0.0", "M", "", "")
}

// Attitude is the PSEAA sentence; only the heading is simulated.
func Attitude(heading float64) string {
	return Build(TypeAttitude, "0.0", "0.0", formatHeading(heading), "0.0", "25.0", "0.0", "0.0", "0.0", "0.0")
}

// Status is the PSEAD control status sentence.
func Status(mode core.ControlMode, heading float64, thrust, diff int) string {
	return Build(TypeStatus, mode.Char(), formatHeading(heading), strconv.Itoa(thrust), strconv.Itoa(diff))
}

// Error is the PSEAE sentence sent back to a client whose command failed.
func Error(code, msg string) string {
	return Build(TypeError, code, sanitize(msg))
}

// TelemetryFrame renders the three sentences published every tick.
func TelemetryFrame(t core.Telemetry) string {
	return GGA(t.Time, t.State.Position) +
		Attitude(t.State.Heading) +
		Status(t.Mode, t.State.Heading, t.Thrust, t.Diff)
}

// Fix is a decoded GPGGA sentence.
type Fix struct {
	Time     string
	Position core.GeoPoint
}

// ParseGGA decodes the position out of a GPGGA sentence.
func ParseGGA(s Sentence) (Fix, error) {
	if s.Type != TypeGGA || len(s.Fields) < 5 {
		return Fix{}, fmt.Errorf("%w: not a GGA sentence", ErrMalformed)
	}
	lat, err := ParseCoord(s.Fields[1], s.Fields[2])
	if err != nil {
		return Fix{}, err
	}
	lon, err := ParseCoord(s.Fields[3], s.Fields[4])
	if err != nil {
		return Fix{}, err
	}
	return Fix{Time: s.Fields[0], Position: core.GeoPoint{Lat: lat, Lon: lon}}, nil
}

// ControlStatus is a decoded PSEAD sentence.
type ControlStatus struct {
	Mode    core.ControlMode
	Heading float64
	Thrust  int
	Diff    int
}

// ParseStatus decodes a PSEAD sentence.
func ParseStatus(s Sentence) (ControlStatus, error) {
	if s.Type != TypeStatus || len(s.Fields) < 4 {
		return ControlStatus{}, fmt.Errorf("%w: not a PSEAD sentence", ErrMalformed)
	}
	mode, ok := core.ModeFromChar(s.Fields[0])
	if !ok {
		return ControlStatus{}, fmt.Errorf("%w: mode %q", ErrMalformed, s.Fields[0])
	}
	heading, err := strconv.ParseFloat(s.Fields[1], 64)
	if err != nil {
		return ControlStatus{}, fmt.Errorf("%w: heading %q", ErrMalformed, s.Fields[1])
	}
	thrust, err := strconv.Atoi(s.Fields[2])
	if err != nil {
		return ControlStatus{}, fmt.Errorf("%w: thrust %q", ErrMalformed, s.Fields[2])
	}
	diff, err := strconv.Atoi(s.Fields[3])
	if err != nil {
		return ControlStatus{}, fmt.Errorf("%w: diff %q", ErrMalformed, s.Fields[3])
	}
	return ControlStatus{Mode: mode, Heading: heading, Thrust: thrust, Diff: diff}, nil
}

func formatHeading(h float64) string {
	return strconv.FormatFloat(h, 'f', 1, 64)
}

// sanitize keeps free text from breaking the framing.
func sanitize(s string) string {
	out := make([]byte, 0, len(s))
	for i := 0; i < len(s); i++ {
		switch c := s[i]; c {
		case ',', '*', '$', '\r', '\n':
			out = append(out, ' ')
		default:
			out = append(out, c)
		}
	}
	return string(out)
}
