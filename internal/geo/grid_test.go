package geo

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

func testSpec() core.GridSpec {
	return core.GridSpec{
		Origin:   core.GeoPoint{Lat: 10.0, Lon: 20.0},
		Rows:     2,
		Cols:     2,
		CellSize: 10,
		Bearing:  0,
	}
}

func TestCellToGeo_FirstCellCenter(t *testing.T) {
	p, err := CellToGeo(testSpec(), core.Cell{Row: 0, Col: 0})
	require.NoError(t, err)

	// bearing 0: columns run north, rows run east
	wantLat := 10.0 + 5/MetersPerDegree
	wantLon := 20.0 + 5/(MetersPerDegree*math.Cos(10*math.Pi/180))
	assert.InDelta(t, wantLat, p.Lat, 1e-12)
	assert.InDelta(t, wantLon, p.Lon, 1e-12)
}

func TestCellToGeo_AxesFollowBearing(t *testing.T) {
	spec := testSpec()
	spec.Bearing = 90

	c00, err := CellToGeo(spec, core.Cell{Row: 0, Col: 0})
	require.NoError(t, err)
	c01, err := CellToGeo(spec, core.Cell{Row: 0, Col: 1})
	require.NoError(t, err)
	c10, err := CellToGeo(spec, core.Cell{Row: 1, Col: 0})
	require.NoError(t, err)

	// bearing 90: columns grow east, rows grow south
	assert.Greater(t, c01.Lon, c00.Lon)
	assert.InDelta(t, c00.Lat, c01.Lat, 1e-12)
	assert.Less(t, c10.Lat, c00.Lat)
	assert.InDelta(t, c00.Lon, c10.Lon, 1e-12)
	assert.InDelta(t, 10.0, Distance(c00, c01), 1e-4)
}

func TestCellToGeo_InvalidCell(t *testing.T) {
	cells := []core.Cell{{Row: -1, Col: 0}, {Row: 0, Col: -1}, {Row: 2, Col: 0}, {Row: 0, Col: 2}}
	for _, c := range cells {
		_, err := CellToGeo(testSpec(), c)
		assert.ErrorIs(t, err, ErrInvalidCell, "cell %+v", c)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*core.GridSpec)
	}{
		{"zero rows", func(s *core.GridSpec) { s.Rows = 0 }},
		{"negative cols", func(s *core.GridSpec) { s.Cols = -3 }},
		{"zero cell size", func(s *core.GridSpec) { s.CellSize = 0 }},
		{"negative cell size", func(s *core.GridSpec) { s.CellSize = -1 }},
		{"nan cell size", func(s *core.GridSpec) { s.CellSize = math.NaN() }},
		{"nan bearing", func(s *core.GridSpec) { s.Bearing = math.NaN() }},
		{"polar origin", func(s *core.GridSpec) { s.Origin.Lat = 90 }},
		{"bad longitude", func(s *core.GridSpec) { s.Origin.Lon = 200 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			spec := testSpec()
			tt.mutate(&spec)
			assert.ErrorIs(t, Validate(spec), ErrInvalidGrid)

			_, err := CellToGeo(spec, core.Cell{})
			assert.ErrorIs(t, err, ErrInvalidGrid)
			_, err = GeoToCell(spec, spec.Origin)
			assert.ErrorIs(t, err, ErrInvalidGrid)
		})
	}
	assert.NoError(t, Validate(testSpec()))
}

func TestGeoToCell_RoundTrip(t *testing.T) {
	specs := []core.GridSpec{
		testSpec(),
		{Origin: core.GeoPoint{Lat: 25.758326, Lon: -80.373864}, Rows: 4, Cols: 6, CellSize: 11.5, Bearing: 90},
		{Origin: core.GeoPoint{Lat: -33.9, Lon: 151.2}, Rows: 5, Cols: 3, CellSize: 4, Bearing: 37.5},
		{Origin: core.GeoPoint{Lat: 60.1, Lon: 179.9999}, Rows: 3, Cols: 3, CellSize: 25, Bearing: 200},
	}
	for _, spec := range specs {
		for r := 0; r < spec.Rows; r++ {
			for c := 0; c < spec.Cols; c++ {
				cell := core.Cell{Row: r, Col: c}
				p, err := CellToGeo(spec, cell)
				require.NoError(t, err)

				got, err := GeoToCell(spec, p)
				require.NoError(t, err)
				assert.Equal(t, cell, got, "spec %+v", spec)

				again, err := CellToGeo(spec, got)
				require.NoError(t, err)
				assert.InDelta(t, p.Lat, again.Lat, 1e-12)
				assert.InDelta(t, p.Lon, again.Lon, 1e-12)
			}
		}
	}
}

func TestGeoToCell_RoundsToNearest(t *testing.T) {
	spec := testSpec()
	center, err := CellToGeo(spec, core.Cell{Row: 1, Col: 0})
	require.NoError(t, err)

	// 3 m north and 4 m east of (1,0)'s center is still inside it
	nearby := Offset(center, 3, 4)
	got, err := GeoToCell(spec, nearby)
	require.NoError(t, err)
	assert.Equal(t, core.Cell{Row: 1, Col: 0}, got)
}

func TestGeoToCell_ClampsOutsidePoints(t *testing.T) {
	spec := testSpec()

	far, err := GeoToCell(spec, Offset(spec.Origin, 1000, 1000))
	require.NoError(t, err)
	assert.Equal(t, core.Cell{Row: 1, Col: 1}, far)

	behind, err := GeoToCell(spec, Offset(spec.Origin, -500, -500))
	require.NoError(t, err)
	assert.Equal(t, core.Cell{Row: 0, Col: 0}, behind)
}

func TestGeoToCell_InvalidPoint(t *testing.T) {
	_, err := GeoToCell(testSpec(), core.GeoPoint{Lat: math.NaN(), Lon: 0})
	assert.ErrorIs(t, err, ErrInvalidCoordinates)
}

func TestContains(t *testing.T) {
	spec := testSpec()
	center, err := CellToGeo(spec, core.Cell{Row: 1, Col: 1})
	require.NoError(t, err)

	assert.True(t, Contains(spec, center))
	assert.True(t, Contains(spec, spec.Origin))
	assert.False(t, Contains(spec, Offset(spec.Origin, -1, 0)))
	assert.False(t, Contains(spec, Offset(spec.Origin, 25, 5)))
}

func TestCornersAndBounds(t *testing.T) {
	spec := core.GridSpec{
		Origin:   core.GeoPoint{Lat: 25.758326, Lon: -80.373864},
		Rows:     4,
		Cols:     4,
		CellSize: 10,
		Bearing:  90,
	}
	topLeft, bottomRight, err := TopLeftBottomRight(spec)
	require.NoError(t, err)

	// bearing 90 puts the origin at the north-west corner
	assert.InDelta(t, spec.Origin.Lat, topLeft.Lat, 1e-12)
	assert.InDelta(t, spec.Origin.Lon, topLeft.Lon, 1e-12)
	assert.Less(t, bottomRight.Lat, topLeft.Lat)
	assert.Greater(t, bottomRight.Lon, topLeft.Lon)

	poly, err := GridPolygon(spec)
	require.NoError(t, err)
	assert.Equal(t, 5, poly.ExteriorRing().Coordinates().Length())
}

func TestDimensionsMeters(t *testing.T) {
	spec := core.GridSpec{
		Origin:   core.GeoPoint{Lat: 25.758326, Lon: -80.373864},
		Rows:     3,
		Cols:     5,
		CellSize: 8,
		Bearing:  90,
	}
	height, width, err := DimensionsMeters(spec)
	require.NoError(t, err)
	assert.InEpsilon(t, 24.0, height, 0.005)
	assert.InEpsilon(t, 40.0, width, 0.005)
}
