package model

import (
	"database/sql"
	"time"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"
)

////////////////////////
// DATABASE STRUCTURES //
////////////////////////

// DatabaseModels is a list of all the structs exported here which represent tables in the database schema
var DatabaseModels = []interface{}{
	&Session{},
	&TelemetryPoint{},
	&MissionEvent{},
}

// Session is one simulator run. Telemetry and mission events reference it
// by ID.
type Session struct {
	ID            string         `json:"id" gorm:"primaryKey;size:36"`
	StartTime     time.Time      `json:"startTime" gorm:"index:idx_session_start_time"`
	EndTime       sql.NullTime   `json:"endTime"`
	StartLat      float64        `json:"startLat"`
	StartLon      float64        `json:"startLon"`
	StartPosition geom.Point     `json:"startPosition"` // EPSG:3857
	Grid          datatypes.JSON `json:"grid"`
	GridArea      geom.Geometry  `json:"-"` // grid footprint polygon, EPSG:4326
}

func (*Session) TableName() string {
	return "sessions"
}

// TelemetryPoint is one recorded simulator frame.
type TelemetryPoint struct {
	ID            uint          `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     string        `json:"sessionId" gorm:"size:36;index:idx_telemetry_session_id"`
	Session       Session       `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time          time.Time     `json:"time" gorm:"index:idx_telemetry_time"`
	Tick          uint64        `json:"tick"`
	Lat           float64       `json:"lat"`
	Lon           float64       `json:"lon"`
	Position      geom.Point    `json:"position"` // EPSG:3857
	Heading       float32       `json:"heading"`
	Speed         float32       `json:"speed"`
	Mode          string        `json:"mode" gorm:"size:32"`
	Thrust        int16         `json:"thrust"`
	Diff          int16         `json:"diff"`
	MissionStatus string        `json:"missionStatus" gorm:"size:16"`
	WaypointIndex int           `json:"waypointIndex"`
	WaypointCount int           `json:"waypointCount"`
	CellRow       sql.NullInt32 `json:"cellRow"`
	CellCol       sql.NullInt32 `json:"cellCol"`
}

func (*TelemetryPoint) TableName() string {
	return "telemetry_points"
}

// MissionEvent is a mission or vehicle lifecycle change.
type MissionEvent struct {
	ID            uint       `json:"id" gorm:"primarykey;autoIncrement;"`
	SessionID     string     `json:"sessionId" gorm:"size:36;index:idx_mission_event_session_id"`
	Session       Session    `json:"-" gorm:"constraint:OnUpdate:CASCADE,OnDelete:CASCADE;foreignkey:SessionID;"`
	Time          time.Time  `json:"time" gorm:"index:idx_mission_event_time"`
	Kind          string     `json:"kind" gorm:"size:32;index:idx_mission_event_kind"`
	WaypointIndex int        `json:"waypointIndex"`
	Lat           float64    `json:"lat"`
	Lon           float64    `json:"lon"`
	Position      geom.Point `json:"position"` // EPSG:3857
	Detail        string     `json:"detail" gorm:"size:255"`
}

func (*MissionEvent) TableName() string {
	return "mission_events"
}
