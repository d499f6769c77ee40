// pkg/core/mission.go
package core

import "time"

// MissionStatus is the lifecycle state of a waypoint mission.
type MissionStatus string

const (
	MissionPending   MissionStatus = "pending"
	MissionActive    MissionStatus = "active"
	MissionCompleted MissionStatus = "completed"
	MissionAborted   MissionStatus = "aborted"
)

// Terminal reports whether no further waypoint advancement can happen.
func (s MissionStatus) Terminal() bool {
	return s == MissionCompleted || s == MissionAborted
}

// Mission is a read-only snapshot of the controller's mission.
type Mission struct {
	Waypoints []Waypoint    `json:"waypoints"`
	Target    int           `json:"target"`
	Status    MissionStatus `json:"status"`
}

// Session is one simulator run.
type Session struct {
	ID        string    `json:"id"`
	StartTime time.Time `json:"startTime"`
	EndTime   time.Time `json:"endTime"`
	Start     GeoPoint  `json:"start"`
	Grid      *GridSpec `json:"grid,omitempty"`
}

// MissionEventKind names a mission or vehicle lifecycle event.
type MissionEventKind string

const (
	EventMissionLoaded   MissionEventKind = "loaded"
	EventMissionStarted  MissionEventKind = "started"
	EventWaypointReached MissionEventKind = "waypoint_reached"
	EventMissionComplete MissionEventKind = "completed"
	EventMissionAborted  MissionEventKind = "aborted"
	EventTeleported      MissionEventKind = "teleported"
)

// MissionEvent is recorded whenever the mission or vehicle changes state
// outside of normal motion.
type MissionEvent struct {
	SessionID     string           `json:"sessionId"`
	Time          time.Time        `json:"time"`
	Kind          MissionEventKind `json:"kind"`
	WaypointIndex int              `json:"waypointIndex"`
	Position      GeoPoint         `json:"position"`
	Detail        string           `json:"detail,omitempty"`
}
