package geo

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	orbgeo "github.com/paulmach/orb/geo"
	geom "github.com/peterstace/simplefeatures/geom"
	"github.com/wroge/wgs84"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

// GEOMETRY
// Positions are kept in EPSG:4326 (lon/lat) everywhere in memory. Rows written
// to SQL storage are projected to EPSG:3857 so planar distances in the database
// are meters. Geometry columns are WKB encoded by simplefeatures.

// ErrInvalidCoordinates is returned when the coordinates are invalid
var ErrInvalidCoordinates = errors.New("invalid coordinates provided")

// ErrTooFewPoints is returned when a line has fewer than two distinct points.
var ErrTooFewPoints = errors.New("line needs at least 2 distinct points")

// ParseGeoPoint parses "lat,lon" into a GeoPoint.
func ParseGeoPoint(s string) (core.GeoPoint, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	lat, err := strconv.ParseFloat(strings.TrimSpace(parts[0]), 64)
	if err != nil {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	lon, err := strconv.ParseFloat(strings.TrimSpace(parts[1]), 64)
	if err != nil {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	p := core.GeoPoint{Lat: lat, Lon: lon}
	if !p.Valid() {
		return core.GeoPoint{}, ErrInvalidCoordinates
	}
	return p, nil
}

// Coords3857From4326 projects a longitude/latitude pair to Web Mercator.
func Coords3857From4326(longitude, latitude float64) (geom.Point, error) {
	f := wgs84.EPSG().Transform(4326, 3857)
	x, y, _ := f(longitude, latitude, 0)
	if math.IsNaN(x) || math.IsNaN(y) || math.IsInf(x, 0) || math.IsInf(y, 0) {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("%w: %v,%v", ErrInvalidCoordinates, latitude, longitude)
	}
	pt, err := geom.NewPoint(geom.Coordinates{XY: geom.XY{X: x, Y: y}, Type: geom.DimXY})
	if err != nil {
		return geom.NewEmptyPoint(geom.DimXY), fmt.Errorf("%w: %w", ErrInvalidCoordinates, err)
	}
	return pt, nil
}

// LineStringFromPoints builds a 4326 line string. Consecutive repeats are
// collapsed and at least two distinct points must remain.
func LineStringFromPoints(points []core.GeoPoint) (geom.LineString, error) {
	flat := make([]float64, 0, len(points)*2)
	n := 0
	for i, p := range points {
		if i > 0 && p == points[i-1] {
			continue
		}
		flat = append(flat, p.Lon, p.Lat)
		n++
	}
	if n < 2 {
		return geom.LineString{}, fmt.Errorf("%w: got %d", ErrTooFewPoints, n)
	}
	ls, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.LineString{}, fmt.Errorf("line string: %w", err)
	}
	return ls, nil
}

// PathLineString returns the waypoint path in visiting order.
func PathLineString(waypoints []core.Waypoint) (geom.LineString, error) {
	points := make([]core.GeoPoint, len(waypoints))
	for i, wp := range waypoints {
		points[i] = wp.Position
	}
	return LineStringFromPoints(points)
}

// Corners returns the outer corners of the grid: the origin, the far end of
// the bearing axis, the opposite corner and the far end of the cross axis.
func Corners(spec core.GridSpec) ([4]core.GeoPoint, error) {
	if err := Validate(spec); err != nil {
		return [4]core.GeoPoint{}, err
	}
	length := float64(spec.Cols) * spec.CellSize
	width := float64(spec.Rows) * spec.CellSize
	return [4]core.GeoPoint{
		spec.Origin,
		gridPoint(spec, length, 0),
		gridPoint(spec, length, width),
		gridPoint(spec, 0, width),
	}, nil
}

// GridPolygon returns the grid footprint as a closed 4326 polygon.
func GridPolygon(spec core.GridSpec) (geom.Polygon, error) {
	corners, err := Corners(spec)
	if err != nil {
		return geom.Polygon{}, err
	}
	flat := make([]float64, 0, 10)
	for _, c := range corners {
		flat = append(flat, c.Lon, c.Lat)
	}
	flat = append(flat, corners[0].Lon, corners[0].Lat)
	ring, err := geom.NewLineString(geom.NewSequence(flat, geom.DimXY))
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("grid ring: %w", err)
	}
	poly, err := geom.NewPolygon([]geom.LineString{ring})
	if err != nil {
		return geom.Polygon{}, fmt.Errorf("grid polygon: %w", err)
	}
	return poly, nil
}

// Bounds returns the axis-aligned lon/lat bounding box of the grid.
func Bounds(spec core.GridSpec) (orb.Bound, error) {
	corners, err := Corners(spec)
	if err != nil {
		return orb.Bound{}, err
	}
	first := orb.Point{corners[0].Lon, corners[0].Lat}
	b := orb.Bound{Min: first, Max: first}
	for _, c := range corners[1:] {
		b = b.Extend(orb.Point{c.Lon, c.Lat})
	}
	return b, nil
}

// TopLeftBottomRight returns the north-west and south-east corners of the
// bounding box, the convention the visualizers use.
func TopLeftBottomRight(spec core.GridSpec) (topLeft, bottomRight core.GeoPoint, err error) {
	b, err := Bounds(spec)
	if err != nil {
		return core.GeoPoint{}, core.GeoPoint{}, err
	}
	return core.GeoPoint{Lat: b.Max.Lat(), Lon: b.Min.Lon()},
		core.GeoPoint{Lat: b.Min.Lat(), Lon: b.Max.Lon()}, nil
}

// DimensionsMeters returns the grid's extent across and along the bearing
// axis, measured on the sphere between its corners.
func DimensionsMeters(spec core.GridSpec) (height, width float64, err error) {
	corners, err := Corners(spec)
	if err != nil {
		return 0, 0, err
	}
	origin := orb.Point{corners[0].Lon, corners[0].Lat}
	width = orbgeo.DistanceHaversine(origin, orb.Point{corners[1].Lon, corners[1].Lat})
	height = orbgeo.DistanceHaversine(origin, orb.Point{corners[3].Lon, corners[3].Lat})
	return height, width, nil
}
