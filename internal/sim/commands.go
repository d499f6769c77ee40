package sim

import (
	"errors"
	"fmt"
	"math"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/mission"
	"github.com/surveyor-hil/asvsim/internal/motion"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

var (
	// ErrNotDownloading is returned for waypoint download sentences outside
	// of a download.
	ErrNotDownloading = errors.New("no waypoint download in progress")
	// ErrNoERP is returned by GoToERP before a recovery point was downloaded.
	ErrNoERP = fmt.Errorf("%w: no emergency recovery point", mission.ErrNoWaypoints)
)

// Command is a state change applied by the simulation loop. The set is
// closed: only the types in this package implement it.
type Command interface {
	Name() string
	apply(s *Simulator) error
}

// SetThrusters switches to thruster mode. Thrust and Diff are percent.
type SetThrusters struct {
	Thrust int
	Diff   int
}

// SetHeading holds a compass heading at the given thrust percent.
type SetHeading struct {
	Heading float64
	Thrust  int
}

// Standby stops the thrusters and aborts an active mission.
type Standby struct{}

// StationKeep holds the current position.
type StationKeep struct{}

// GoToERP drives to the emergency recovery point, then holds station there.
type GoToERP struct{}

// Teleport moves the boat and resets its dynamics. Heading is kept when nil.
type Teleport struct {
	Position core.GeoPoint
	Heading  *float64
}

// BeginDownload starts a waypoint download of Lines sentences.
type BeginDownload struct {
	Lines int
}

// AddWaypoint adds a downloaded waypoint. Index 0 is the emergency
// recovery point, every other index is appended to the mission.
type AddWaypoint struct {
	Index    int
	Position core.GeoPoint
}

// EndDownload finishes a waypoint download.
type EndDownload struct{}

// SetMissionThrottle sets the mission throttle percent.
type SetMissionThrottle struct {
	Percent int
}

// StartMission starts Waypoints, or the downloaded mission when nil.
type StartMission struct {
	Waypoints []core.Waypoint
}

// LoadMission replaces the mission without starting it.
type LoadMission struct {
	Waypoints []core.Waypoint
}

// AbortMission aborts the mission.
type AbortMission struct{}

func (SetThrusters) Name() string       { return "set_thrusters" }
func (SetHeading) Name() string         { return "set_heading" }
func (Standby) Name() string            { return "standby" }
func (StationKeep) Name() string        { return "station_keep" }
func (GoToERP) Name() string            { return "go_to_erp" }
func (Teleport) Name() string           { return "teleport" }
func (BeginDownload) Name() string      { return "begin_download" }
func (AddWaypoint) Name() string        { return "add_waypoint" }
func (EndDownload) Name() string        { return "end_download" }
func (SetMissionThrottle) Name() string { return "set_mission_throttle" }
func (StartMission) Name() string       { return "start_mission" }
func (LoadMission) Name() string        { return "load_mission" }
func (AbortMission) Name() string       { return "abort_mission" }

func checkPercent(name string, v, lo, hi int) error {
	if v < lo || v > hi {
		return fmt.Errorf("%w: %s %d not in [%d,%d]", motion.ErrOutOfRangeCommand, name, v, lo, hi)
	}
	return nil
}

func (c SetThrusters) Validate() error {
	if err := checkPercent("thrust", c.Thrust, -100, 100); err != nil {
		return err
	}
	return checkPercent("diff", c.Diff, -100, 100)
}

func (c SetThrusters) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.abortActiveLocked()
	s.setModeLocked(core.ModeThruster)
	s.thrust, s.diff = c.Thrust, c.Diff
	return nil
}

func (c SetHeading) Validate() error {
	if math.IsNaN(c.Heading) || math.IsInf(c.Heading, 0) {
		return fmt.Errorf("%w: heading %v", motion.ErrOutOfRangeCommand, c.Heading)
	}
	return checkPercent("thrust", c.Thrust, -100, 100)
}

func (c SetHeading) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.abortActiveLocked()
	s.setModeLocked(core.ModeHeading)
	s.heading = geo.NormalizeHeading(c.Heading)
	s.thrust, s.diff = c.Thrust, 0
	return nil
}

func (Standby) apply(s *Simulator) error {
	s.abortActiveLocked()
	s.setModeLocked(core.ModeStandby)
	return nil
}

func (StationKeep) apply(s *Simulator) error {
	s.abortActiveLocked()
	s.hold = s.ctrl.State().Position
	s.setModeLocked(core.ModeStationKeep)
	return nil
}

func (GoToERP) apply(s *Simulator) error {
	if s.erp == nil {
		return ErrNoERP
	}
	s.abortActiveLocked()
	s.setModeLocked(core.ModeGoToERP)
	return nil
}

func (c Teleport) Validate() error {
	if !c.Position.Valid() {
		return fmt.Errorf("%w: %+v", geo.ErrInvalidCoordinates, c.Position)
	}
	if c.Heading != nil && (math.IsNaN(*c.Heading) || math.IsInf(*c.Heading, 0)) {
		return fmt.Errorf("%w: heading %v", motion.ErrOutOfRangeCommand, *c.Heading)
	}
	return nil
}

func (c Teleport) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	state := core.VehicleState{Position: c.Position, Heading: s.ctrl.State().Heading}
	if c.Heading != nil {
		state.Heading = *c.Heading
	}
	if err := s.ctrl.Teleport(state); err != nil {
		return err
	}
	s.thrust, s.diff = 0, 0
	s.ctrl.SetManual(motion.Idle)
	if s.mode == core.ModeStationKeep {
		s.hold = c.Position
	}
	return nil
}

func (c BeginDownload) Validate() error {
	if c.Lines <= 0 {
		return fmt.Errorf("%w: download of %d lines", motion.ErrOutOfRangeCommand, c.Lines)
	}
	return nil
}

func (c BeginDownload) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.downloading = true
	s.download = nil
	s.expected = c.Lines
	s.log.Info("waypoint download started", "lines", c.Lines)
	return nil
}

func (c AddWaypoint) Validate() error {
	if c.Index < 0 {
		return fmt.Errorf("%w: waypoint index %d", motion.ErrOutOfRangeCommand, c.Index)
	}
	if !c.Position.Valid() {
		return fmt.Errorf("%w: %+v", geo.ErrInvalidCoordinates, c.Position)
	}
	return nil
}

func (c AddWaypoint) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if !s.downloading {
		return ErrNotDownloading
	}
	if c.Index == 0 {
		p := c.Position
		s.erp = &p
		return nil
	}
	s.download = append(s.download, core.Waypoint{Position: c.Position, Index: len(s.download)})
	return nil
}

func (EndDownload) apply(s *Simulator) error {
	if !s.downloading {
		return ErrNotDownloading
	}
	s.downloading = false
	s.log.Info("waypoint download finished", "waypoints", len(s.download), "expected_lines", s.expected)
	if len(s.download) > 0 && s.ctrl.Status() != core.MissionActive {
		return s.ctrl.Load(s.download)
	}
	return nil
}

func (c SetMissionThrottle) Validate() error {
	return checkPercent("throttle", c.Percent, 0, 100)
}

func (c SetMissionThrottle) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	s.ctrl.SetThrottle(float64(c.Percent) / 100)
	return nil
}

// Validate rejects an explicit empty waypoint list. A nil list selects the
// downloaded or loaded mission.
func (c StartMission) Validate() error {
	if c.Waypoints != nil && len(c.Waypoints) == 0 {
		return mission.ErrNoWaypoints
	}
	return nil
}

func (c StartMission) apply(s *Simulator) error {
	if err := c.Validate(); err != nil {
		return err
	}
	wps := c.Waypoints
	if wps == nil {
		wps = s.download
	}
	var err error
	if len(wps) > 0 {
		err = s.ctrl.Start(wps)
	} else {
		err = s.ctrl.Resume()
	}
	if err != nil {
		return err
	}
	s.setModeLocked(core.ModeWaypoint)
	return nil
}

func (c LoadMission) Validate() error {
	if len(c.Waypoints) == 0 {
		return mission.ErrNoWaypoints
	}
	return nil
}

func (c LoadMission) apply(s *Simulator) error {
	if err := s.ctrl.Load(c.Waypoints); err != nil {
		return err
	}
	if s.mode == core.ModeWaypoint {
		s.setModeLocked(core.ModeStandby)
	}
	return nil
}

func (AbortMission) apply(s *Simulator) error {
	s.ctrl.Abort()
	if s.mode == core.ModeWaypoint {
		s.setModeLocked(core.ModeStandby)
	}
	return nil
}

func (s *Simulator) abortActiveLocked() {
	if s.ctrl.Status() == core.MissionActive {
		s.ctrl.Abort()
	}
}
