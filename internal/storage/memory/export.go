package memory

import (
	"compress/gzip"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// exportTag marks simulator recordings in the archive.
const exportTag = "simulation"

// csvHeader is the column set of the dated CSV files.
var csvHeader = []string{
	"session_id", "time", "latitude", "longitude", "heading", "speed",
	"mode", "thrust", "diff", "mission_status", "waypoint",
}

// SessionExport is the root JSON structure
type SessionExport struct {
	SessionID string          `json:"sessionId"`
	StartTime time.Time       `json:"startTime"`
	EndTime   time.Time       `json:"endTime"`
	Start     core.GeoPoint   `json:"start"`
	Grid      *core.GridSpec  `json:"grid,omitempty"`
	GridArea  json.RawMessage `json:"gridArea,omitempty"` // GeoJSON polygon
	Track     json.RawMessage `json:"track,omitempty"`    // GeoJSON line string
	Frames    [][]any         `json:"frames"`
	Events    []EventJSON     `json:"events"`
}

// EventJSON is one mission event. Offset is seconds since the session start.
type EventJSON struct {
	Offset   float64       `json:"offset"`
	Kind     string        `json:"kind"`
	Waypoint int           `json:"waypoint"`
	Position core.GeoPoint `json:"position"`
	Detail   string        `json:"detail,omitempty"`
}

// exportJSON writes the session data to a (gzipped) JSON file
func (b *Backend) exportJSON() error {
	export, err := b.buildExport()
	if err != nil {
		return err
	}

	// Build filename
	timestamp := b.session.StartTime.UTC().Format("20060102_150405")
	id := b.session.ID
	if len(id) > 8 {
		id = id[:8]
	}
	filename := fmt.Sprintf("asvsim_%s_%s.json", timestamp, id)
	if b.cfg.CompressOutput {
		filename += ".gz"
	}

	// Ensure output directory exists
	if err := os.MkdirAll(b.cfg.OutputDir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}

	outputPath := filepath.Join(b.cfg.OutputDir, filename)
	if b.cfg.CompressOutput {
		err = writeGzipJSON(outputPath, export)
	} else {
		err = writeJSON(outputPath, export)
	}
	if err != nil {
		return fmt.Errorf("failed to export session: %w", err)
	}

	b.exportPath = outputPath
	b.exportMeta = core.UploadMetadata{
		SessionID: b.session.ID,
		StartTime: b.session.StartTime,
		Duration:  b.session.EndTime.Sub(b.session.StartTime).Seconds(),
		Frames:    len(b.frames),
		Tag:       exportTag,
	}
	return nil
}

func (b *Backend) buildExport() (SessionExport, error) {
	s := b.session
	export := SessionExport{
		SessionID: s.ID,
		StartTime: s.StartTime,
		EndTime:   s.EndTime,
		Start:     s.Start,
		Grid:      s.Grid,
		Frames:    make([][]any, 0, len(b.frames)),
		Events:    make([]EventJSON, 0, len(b.events)),
	}

	if s.Grid != nil {
		poly, err := geo.GridPolygon(*s.Grid)
		if err != nil {
			return SessionExport{}, fmt.Errorf("session grid: %w", err)
		}
		if export.GridArea, err = poly.MarshalJSON(); err != nil {
			return SessionExport{}, err
		}
	}

	// Format: [tick, offset, lat, lon, heading, speed, modeChar, thrust, diff, missionStatus, waypoint]
	track := make([]core.GeoPoint, 0, len(b.frames))
	for _, f := range b.frames {
		export.Frames = append(export.Frames, []any{
			f.Tick,
			f.Time.Sub(s.StartTime).Seconds(),
			f.State.Position.Lat,
			f.State.Position.Lon,
			f.State.Heading,
			f.State.Speed,
			f.Mode.Char(),
			f.Thrust,
			f.Diff,
			string(f.MissionStatus),
			f.WaypointIndex,
		})
		track = append(track, f.State.Position)
	}
	// a boat that never moved has no track
	if ls, err := geo.LineStringFromPoints(track); err == nil {
		if export.Track, err = ls.MarshalJSON(); err != nil {
			return SessionExport{}, err
		}
	} else if !errors.Is(err, geo.ErrTooFewPoints) {
		return SessionExport{}, err
	}

	for _, e := range b.events {
		export.Events = append(export.Events, EventJSON{
			Offset:   e.Time.Sub(s.StartTime).Seconds(),
			Kind:     string(e.Kind),
			Waypoint: e.WaypointIndex,
			Position: e.Position,
			Detail:   e.Detail,
		})
	}
	return export, nil
}

// appendCSV adds one row per frame to <OutputDir>/<yyyymmdd>.csv, dated by
// the session start. The header is written when the file is new.
func (b *Backend) appendCSV() error {
	if len(b.frames) == 0 {
		return nil
	}
	path := filepath.Join(b.cfg.OutputDir, b.session.StartTime.UTC().Format("20060102")+".csv")

	_, statErr := os.Stat(path)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if os.IsNotExist(statErr) {
		if err := w.Write(csvHeader); err != nil {
			return err
		}
	}
	for _, fr := range b.frames {
		row := []string{
			fr.SessionID,
			fr.Time.UTC().Format(time.RFC3339Nano),
			strconv.FormatFloat(fr.State.Position.Lat, 'f', 7, 64),
			strconv.FormatFloat(fr.State.Position.Lon, 'f', 7, 64),
			strconv.FormatFloat(fr.State.Heading, 'f', 1, 64),
			strconv.FormatFloat(fr.State.Speed, 'f', 2, 64),
			fr.Mode.Char(),
			strconv.Itoa(fr.Thrust),
			strconv.Itoa(fr.Diff),
			string(fr.MissionStatus),
			strconv.Itoa(fr.WaypointIndex),
		}
		if err := w.Write(row); err != nil {
			return err
		}
	}
	w.Flush()
	return w.Error()
}

func writeJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	encoder := json.NewEncoder(f)
	return encoder.Encode(data)
}

func writeGzipJSON(path string, data any) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer f.Close()

	gzWriter := gzip.NewWriter(f)
	defer gzWriter.Close()

	encoder := json.NewEncoder(gzWriter)
	return encoder.Encode(data)
}
