// Package convert provides functions to convert between GORM models and core models
package convert

import (
	"database/sql"
	"encoding/json"
	"fmt"

	geom "github.com/peterstace/simplefeatures/geom"
	"gorm.io/datatypes"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/model"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// projected converts a WGS84 position to the EPSG:3857 point stored in
// geometry columns.
func projected(p core.GeoPoint) (geom.Point, error) {
	if !p.Valid() {
		return geom.Point{}, fmt.Errorf("%w: %v,%v", geo.ErrInvalidCoordinates, p.Lat, p.Lon)
	}
	return geo.Coords3857From4326(p.Lon, p.Lat)
}

// CoreToSession converts a core.Session to a GORM model.Session.
// The grid, when set, is stored as JSON plus its footprint polygon.
func CoreToSession(s core.Session) (model.Session, error) {
	pt, err := projected(s.Start)
	if err != nil {
		return model.Session{}, fmt.Errorf("session start: %w", err)
	}

	out := model.Session{
		ID:            s.ID,
		StartTime:     s.StartTime,
		StartLat:      s.Start.Lat,
		StartLon:      s.Start.Lon,
		StartPosition: pt,
		Grid:          datatypes.JSON("null"),
	}
	if !s.EndTime.IsZero() {
		out.EndTime = sql.NullTime{Time: s.EndTime, Valid: true}
	}
	if s.Grid != nil {
		data, err := json.Marshal(s.Grid)
		if err != nil {
			return model.Session{}, fmt.Errorf("session grid: %w", err)
		}
		out.Grid = datatypes.JSON(data)

		poly, err := geo.GridPolygon(*s.Grid)
		if err != nil {
			return model.Session{}, fmt.Errorf("session grid: %w", err)
		}
		out.GridArea = poly.AsGeometry()
	}
	return out, nil
}

// CoreToTelemetryPoint converts a core.Telemetry frame to a GORM model.TelemetryPoint.
func CoreToTelemetryPoint(t core.Telemetry) (model.TelemetryPoint, error) {
	pt, err := projected(t.State.Position)
	if err != nil {
		return model.TelemetryPoint{}, fmt.Errorf("telemetry tick %d: %w", t.Tick, err)
	}

	out := model.TelemetryPoint{
		SessionID:     t.SessionID,
		Time:          t.Time,
		Tick:          t.Tick,
		Lat:           t.State.Position.Lat,
		Lon:           t.State.Position.Lon,
		Position:      pt,
		Heading:       float32(t.State.Heading),
		Speed:         float32(t.State.Speed),
		Mode:          string(t.Mode),
		Thrust:        int16(t.Thrust),
		Diff:          int16(t.Diff),
		MissionStatus: string(t.MissionStatus),
		WaypointIndex: t.WaypointIndex,
		WaypointCount: t.WaypointCount,
	}
	if t.Cell != nil {
		out.CellRow = sql.NullInt32{Int32: int32(t.Cell.Row), Valid: true}
		out.CellCol = sql.NullInt32{Int32: int32(t.Cell.Col), Valid: true}
	}
	return out, nil
}

// CoreToMissionEvent converts a core.MissionEvent to a GORM model.MissionEvent.
func CoreToMissionEvent(e core.MissionEvent) (model.MissionEvent, error) {
	pt, err := projected(e.Position)
	if err != nil {
		return model.MissionEvent{}, fmt.Errorf("mission event %s: %w", e.Kind, err)
	}
	return model.MissionEvent{
		SessionID:     e.SessionID,
		Time:          e.Time,
		Kind:          string(e.Kind),
		WaypointIndex: e.WaypointIndex,
		Lat:           e.Position.Lat,
		Lon:           e.Position.Lon,
		Position:      pt,
		Detail:        e.Detail,
	}, nil
}
