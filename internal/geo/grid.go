package geo

import (
	"errors"
	"fmt"
	"math"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

var (
	// ErrInvalidGrid is returned for a malformed GridSpec.
	ErrInvalidGrid = errors.New("invalid grid")
	// ErrInvalidCell is returned for a cell outside the grid.
	ErrInvalidCell = errors.New("invalid cell")
)

// Validate checks that spec describes a usable grid.
func Validate(spec core.GridSpec) error {
	switch {
	case spec.Rows <= 0 || spec.Cols <= 0:
		return fmt.Errorf("%w: %dx%d cells", ErrInvalidGrid, spec.Rows, spec.Cols)
	case !(spec.CellSize > 0) || math.IsInf(spec.CellSize, 0):
		return fmt.Errorf("%w: cell size %v", ErrInvalidGrid, spec.CellSize)
	case math.IsNaN(spec.Bearing) || math.IsInf(spec.Bearing, 0):
		return fmt.Errorf("%w: bearing %v", ErrInvalidGrid, spec.Bearing)
	case !spec.Origin.Valid() || math.Abs(spec.Origin.Lat) >= 90:
		return fmt.Errorf("%w: origin %v,%v", ErrInvalidGrid, spec.Origin.Lat, spec.Origin.Lon)
	}
	return nil
}

// InGrid reports whether cell lies inside spec.
func InGrid(spec core.GridSpec, cell core.Cell) bool {
	return cell.Row >= 0 && cell.Row < spec.Rows && cell.Col >= 0 && cell.Col < spec.Cols
}

// gridToLocal rotates grid-axis meters into north/east meters.
func gridToLocal(bearing, along, across float64) (north, east float64) {
	s, c := math.Sincos(radians(bearing))
	return along*c - across*s, along*s + across*c
}

// localToGrid is the inverse of gridToLocal.
func localToGrid(bearing, north, east float64) (along, across float64) {
	s, c := math.Sincos(radians(bearing))
	return north*c + east*s, -north*s + east*c
}

// CellToGeo returns the center of cell. The cell is (col+0.5) cells along the
// bearing axis and (row+0.5) cells across it from the origin corner.
func CellToGeo(spec core.GridSpec, cell core.Cell) (core.GeoPoint, error) {
	if err := Validate(spec); err != nil {
		return core.GeoPoint{}, err
	}
	if !InGrid(spec, cell) {
		return core.GeoPoint{}, fmt.Errorf("%w: (%d,%d) outside %dx%d grid",
			ErrInvalidCell, cell.Row, cell.Col, spec.Rows, spec.Cols)
	}
	return gridPoint(spec, (float64(cell.Col)+0.5)*spec.CellSize, (float64(cell.Row)+0.5)*spec.CellSize), nil
}

// gridPoint converts grid-axis meters from the origin into a GeoPoint.
func gridPoint(spec core.GridSpec, along, across float64) core.GeoPoint {
	north, east := gridToLocal(spec.Bearing, along, across)
	return offsetFrom(spec.Origin, spec.Origin.Lat, north, east)
}

// gridCoords returns the continuous (along, across) meters of p from the origin.
func gridCoords(spec core.GridSpec, p core.GeoPoint) (along, across float64) {
	north, east := localOffset(spec.Origin, spec.Origin.Lat, p)
	return localToGrid(spec.Bearing, north, east)
}

// GeoToCell returns the cell whose center is nearest to p, clamped to the grid.
func GeoToCell(spec core.GridSpec, p core.GeoPoint) (core.Cell, error) {
	if err := Validate(spec); err != nil {
		return core.Cell{}, err
	}
	if !p.Valid() {
		return core.Cell{}, fmt.Errorf("%w: %v,%v", ErrInvalidCoordinates, p.Lat, p.Lon)
	}
	along, across := gridCoords(spec, p)
	return core.Cell{
		Row: cellIndex(across/spec.CellSize-0.5, spec.Rows),
		Col: cellIndex(along/spec.CellSize-0.5, spec.Cols),
	}, nil
}

// Contains reports whether p lies inside the grid's footprint.
func Contains(spec core.GridSpec, p core.GeoPoint) bool {
	if Validate(spec) != nil || !p.Valid() {
		return false
	}
	along, across := gridCoords(spec, p)
	const eps = 1e-6
	return along >= -eps && along <= float64(spec.Cols)*spec.CellSize+eps &&
		across >= -eps && across <= float64(spec.Rows)*spec.CellSize+eps
}

// cellIndex rounds a continuous cell coordinate and clamps it to [0,n).
func cellIndex(v float64, n int) int {
	i := math.Round(v)
	if i < 0 {
		return 0
	}
	if i > float64(n-1) {
		return n - 1
	}
	return int(i)
}
