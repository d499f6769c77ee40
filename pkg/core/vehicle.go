// pkg/core/vehicle.go
package core

import "time"

// VehicleState is the kinematic state of the simulated boat.
// Heading is in [0,360), Speed is never negative.
type VehicleState struct {
	Position GeoPoint `json:"position"`
	Heading  float64  `json:"heading"`
	Speed    float64  `json:"speed"`
}

// ControlMode is the boat's control mode as reported in PSEAD.
type ControlMode string

const (
	ModeStandby       ControlMode = "Standby"
	ModeThruster      ControlMode = "Thruster"
	ModeHeading       ControlMode = "Heading"
	ModeSpeed         ControlMode = "Speed"
	ModeStationKeep   ControlMode = "Station Keep"
	ModeRiverNav      ControlMode = "River Nav"
	ModeWaypoint      ControlMode = "Waypoint"
	ModeAutopilot     ControlMode = "Autopilot"
	ModeCompassCal    ControlMode = "Compass Cal"
	ModeGoToERP       ControlMode = "Go To ERP"
	ModeDepth         ControlMode = "Depth"
	ModeGravityVector ControlMode = "Gravity Vector Direction"
	ModeFileDownload  ControlMode = "File Download"
	ModeBootLoader    ControlMode = "Boot Loader"
)

var modeChars = map[ControlMode]string{
	ModeStandby:       "L",
	ModeThruster:      "T",
	ModeHeading:       "C",
	ModeSpeed:         "G",
	ModeStationKeep:   "R",
	ModeRiverNav:      "N",
	ModeWaypoint:      "W",
	ModeAutopilot:     "I",
	ModeCompassCal:    "3",
	ModeGoToERP:       "H",
	ModeDepth:         "D",
	ModeGravityVector: "S",
	ModeFileDownload:  "F",
	ModeBootLoader:    "!",
}

// Char returns the single-character code used on the wire. Unknown modes
// report as standby.
func (m ControlMode) Char() string {
	if c, ok := modeChars[m]; ok {
		return c
	}
	return "L"
}

// ModeFromChar decodes a PSEAD mode character.
func ModeFromChar(c string) (ControlMode, bool) {
	for m, ch := range modeChars {
		if ch == c {
			return m, true
		}
	}
	return "", false
}

// Telemetry is one published simulator frame.
type Telemetry struct {
	SessionID     string        `json:"sessionId"`
	Time          time.Time     `json:"time"`
	Tick          uint64        `json:"tick"`
	State         VehicleState  `json:"state"`
	Mode          ControlMode   `json:"mode"`
	Thrust        int           `json:"thrust"` // percent
	Diff          int           `json:"diff"`   // percent
	MissionStatus MissionStatus `json:"missionStatus"`
	WaypointIndex int           `json:"waypointIndex"`
	WaypointCount int           `json:"waypointCount"`
	Cell          *Cell         `json:"cell,omitempty"`
}
