// Package gridfile reads and writes grid_config.json, the planned survey
// grid shared with the visualizers.
package gridfile

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// DefaultName is the file name visualizers look for.
const DefaultName = "grid_config.json"

// ErrInvalidFile is returned by Read for a file whose content does not
// describe a usable grid.
var ErrInvalidFile = errors.New("invalid grid file")

// LatLon is a [lat, lon] pair.
type LatLon [2]float64

// RowCol is a [row, col] pair.
type RowCol [2]int

// Origin is the grid's anchor corner.
type Origin struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// File is the on-disk grid description.
type File struct {
	Origin         Origin   `json:"origin"`
	Rows           int      `json:"rows"`
	Cols           int      `json:"cols"`
	CellSize       float64  `json:"cell_size_meters"`
	Bearing        float64  `json:"bearing"`
	TopLeft        LatLon   `json:"top_left"`
	BottomRight    LatLon   `json:"bottom_right"`
	Waypoints      []LatLon `json:"waypoints"`
	Cells          []RowCol `json:"cells"`
	Fountains      []LatLon `json:"fountains"`
	ObstacleRadius float64  `json:"obstacle_radius"`
	BlockedCells   []LatLon `json:"blocked_cells"`
}

// New builds the file for a planned path: cells and waypoints in visiting
// order. The corner keys are derived from spec.
func New(spec core.GridSpec, cells []core.Cell, waypoints []core.Waypoint) (*File, error) {
	if len(cells) != len(waypoints) {
		return nil, fmt.Errorf("%w: %d cells for %d waypoints", ErrInvalidFile, len(cells), len(waypoints))
	}
	tl, br, err := geo.TopLeftBottomRight(spec)
	if err != nil {
		return nil, err
	}

	f := &File{
		Origin:       Origin{Lat: spec.Origin.Lat, Lon: spec.Origin.Lon},
		Rows:         spec.Rows,
		Cols:         spec.Cols,
		CellSize:     spec.CellSize,
		Bearing:      spec.Bearing,
		TopLeft:      LatLon{tl.Lat, tl.Lon},
		BottomRight:  LatLon{br.Lat, br.Lon},
		Waypoints:    make([]LatLon, len(waypoints)),
		Cells:        make([]RowCol, len(cells)),
		Fountains:    []LatLon{},
		BlockedCells: []LatLon{},
	}
	for i, wp := range waypoints {
		f.Waypoints[i] = LatLon{wp.Position.Lat, wp.Position.Lon}
	}
	for i, c := range cells {
		f.Cells[i] = RowCol{c.Row, c.Col}
	}
	return f, nil
}

// Spec returns the grid the file describes.
func (f *File) Spec() core.GridSpec {
	return core.GridSpec{
		Origin:   core.GeoPoint{Lat: f.Origin.Lat, Lon: f.Origin.Lon},
		Rows:     f.Rows,
		Cols:     f.Cols,
		CellSize: f.CellSize,
		Bearing:  f.Bearing,
	}
}

// Path returns the waypoints in visiting order.
func (f *File) Path() []core.Waypoint {
	out := make([]core.Waypoint, len(f.Waypoints))
	for i, p := range f.Waypoints {
		out[i] = core.Waypoint{Position: core.GeoPoint{Lat: p[0], Lon: p[1]}, Index: i}
	}
	return out
}

// Validate checks the grid and that every listed cell and point is usable.
func (f *File) Validate() error {
	spec := f.Spec()
	if err := geo.Validate(spec); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if len(f.Cells) > 0 && len(f.Cells) != len(f.Waypoints) {
		return fmt.Errorf("%w: %d cells for %d waypoints", ErrInvalidFile, len(f.Cells), len(f.Waypoints))
	}
	for _, c := range f.Cells {
		if !geo.InGrid(spec, core.Cell{Row: c[0], Col: c[1]}) {
			return fmt.Errorf("%w: %w: (%d,%d)", ErrInvalidFile, geo.ErrInvalidCell, c[0], c[1])
		}
	}
	for _, group := range [][]LatLon{f.Waypoints, f.Fountains, f.BlockedCells} {
		for _, p := range group {
			if !(core.GeoPoint{Lat: p[0], Lon: p[1]}).Valid() {
				return fmt.Errorf("%w: %w: %v", ErrInvalidFile, geo.ErrInvalidCoordinates, p)
			}
		}
	}
	if f.ObstacleRadius < 0 {
		return fmt.Errorf("%w: obstacle radius %v", ErrInvalidFile, f.ObstacleRadius)
	}
	return nil
}

// Read decodes and validates the file at path.
func Read(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read grid file: %w", err)
	}
	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFile, err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

// Write replaces path with f. The content goes to a temporary file in the
// same directory first, so readers never see a partial file.
func Write(path string, f *File) error {
	if err := f.Validate(); err != nil {
		return err
	}
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("encode grid file: %w", err)
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create output directory: %w", err)
	}
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(append(data, '\n')); err != nil {
		tmp.Close()
		return fmt.Errorf("write grid file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("sync grid file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close grid file: %w", err)
	}
	if err := os.Chmod(tmpName, 0644); err != nil {
		return fmt.Errorf("chmod grid file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("replace grid file: %w", err)
	}
	return nil
}
