package convert

import (
	"encoding/json"

	"github.com/surveyor-hil/asvsim/internal/model"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// SessionToCore converts a GORM Session to a core.Session.
// A grid column that does not decode leaves Grid nil.
func SessionToCore(s model.Session) core.Session {
	out := core.Session{
		ID:        s.ID,
		StartTime: s.StartTime,
		Start:     core.GeoPoint{Lat: s.StartLat, Lon: s.StartLon},
	}
	if s.EndTime.Valid {
		out.EndTime = s.EndTime.Time
	}
	if len(s.Grid) > 0 {
		var grid core.GridSpec
		if err := json.Unmarshal(s.Grid, &grid); err == nil && grid.Rows > 0 {
			out.Grid = &grid
		}
	}
	return out
}

// TelemetryPointToCore converts a GORM TelemetryPoint to a core.Telemetry.
// Positions come from the lat/lon columns, not the projected geometry.
func TelemetryPointToCore(p model.TelemetryPoint) core.Telemetry {
	out := core.Telemetry{
		SessionID: p.SessionID,
		Time:      p.Time,
		Tick:      p.Tick,
		State: core.VehicleState{
			Position: core.GeoPoint{Lat: p.Lat, Lon: p.Lon},
			Heading:  float64(p.Heading),
			Speed:    float64(p.Speed),
		},
		Mode:          core.ControlMode(p.Mode),
		Thrust:        int(p.Thrust),
		Diff:          int(p.Diff),
		MissionStatus: core.MissionStatus(p.MissionStatus),
		WaypointIndex: p.WaypointIndex,
		WaypointCount: p.WaypointCount,
	}
	if p.CellRow.Valid && p.CellCol.Valid {
		out.Cell = &core.Cell{Row: int(p.CellRow.Int32), Col: int(p.CellCol.Int32)}
	}
	return out
}

// MissionEventToCore converts a GORM MissionEvent to a core.MissionEvent.
func MissionEventToCore(e model.MissionEvent) core.MissionEvent {
	return core.MissionEvent{
		SessionID:     e.SessionID,
		Time:          e.Time,
		Kind:          core.MissionEventKind(e.Kind),
		WaypointIndex: e.WaypointIndex,
		Position:      core.GeoPoint{Lat: e.Lat, Lon: e.Lon},
		Detail:        e.Detail,
	}
}
