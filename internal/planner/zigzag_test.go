package planner

import (
	"fmt"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

func spec(rows, cols int) core.GridSpec {
	return core.GridSpec{
		Origin:   core.GeoPoint{Lat: 10.0, Lon: 20.0},
		Rows:     rows,
		Cols:     cols,
		CellSize: 10,
		Bearing:  0,
	}
}

func TestPlanZigzag_TwoByTwo(t *testing.T) {
	s := spec(2, 2)
	wps, err := PlanZigzag(s, core.Cell{Row: 0, Col: 0})
	require.NoError(t, err)
	require.Len(t, wps, 4)

	want := []core.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 1, Col: 1}, {Row: 1, Col: 0}}
	for i, wp := range wps {
		assert.Equal(t, i, wp.Index)
		got, err := geo.GeoToCell(s, wp.Position)
		require.NoError(t, err)
		assert.Equal(t, want[i], got, "waypoint %d", i)

		center, err := geo.CellToGeo(s, want[i])
		require.NoError(t, err)
		assert.Equal(t, center, wp.Position)
	}
}

func TestPlanCells_ColumnMajor(t *testing.T) {
	cells, err := PlanCells(spec(2, 2), core.Cell{}, WithOrder(ColumnMajor))
	require.NoError(t, err)
	assert.Equal(t, []core.Cell{{Row: 0, Col: 0}, {Row: 1, Col: 0}, {Row: 1, Col: 1}, {Row: 0, Col: 1}}, cells)
}

func TestPlanCells_StartSnapsToNearestCorner(t *testing.T) {
	tests := []struct {
		start core.Cell
		first core.Cell
	}{
		{core.Cell{Row: 0, Col: 0}, core.Cell{Row: 0, Col: 0}},
		{core.Cell{Row: 0, Col: 4}, core.Cell{Row: 0, Col: 4}},
		{core.Cell{Row: 3, Col: 0}, core.Cell{Row: 3, Col: 0}},
		{core.Cell{Row: 3, Col: 3}, core.Cell{Row: 3, Col: 4}},
		{core.Cell{Row: 1, Col: 2}, core.Cell{Row: 0, Col: 0}},
	}
	for _, tt := range tests {
		cells, err := PlanCells(spec(4, 5), tt.start)
		require.NoError(t, err)
		assert.Equal(t, tt.first, cells[0], "start %+v", tt.start)
	}

	cells, err := PlanCells(spec(2, 2), core.Cell{Row: 1, Col: 1})
	require.NoError(t, err)
	assert.Equal(t, []core.Cell{{Row: 1, Col: 1}, {Row: 1, Col: 0}, {Row: 0, Col: 0}, {Row: 0, Col: 1}}, cells)
}

func TestPlanCells_CoverageAndAdjacency(t *testing.T) {
	sizes := [][2]int{{1, 1}, {1, 5}, {5, 1}, {2, 3}, {3, 2}, {4, 4}, {5, 7}, {6, 3}}
	for _, size := range sizes {
		rows, cols := size[0], size[1]
		corners := []core.Cell{{Row: 0, Col: 0}, {Row: 0, Col: cols - 1}, {Row: rows - 1, Col: 0}, {Row: rows - 1, Col: cols - 1}}
		for _, order := range []Order{RowMajor, ColumnMajor} {
			for _, start := range corners {
				name := fmt.Sprintf("%dx%d/%s/%d,%d", rows, cols, order, start.Row, start.Col)
				t.Run(name, func(t *testing.T) {
					cells, err := PlanCells(spec(rows, cols), start, WithOrder(order))
					require.NoError(t, err)
					require.Len(t, cells, rows*cols)
					assert.Equal(t, start, cells[0])

					seen := make(map[core.Cell]bool, len(cells))
					for i, c := range cells {
						assert.False(t, seen[c], "cell %+v visited twice", c)
						seen[c] = true
						if i == 0 {
							continue
						}
						prev := cells[i-1]
						assert.Equal(t, 1, abs(c.Row-prev.Row)+abs(c.Col-prev.Col), "step %d: %+v -> %+v", i, prev, c)
					}
				})
			}
		}
	}
}

func TestPlanZigzag_Degenerate(t *testing.T) {
	one, err := PlanZigzag(spec(1, 1), core.Cell{})
	require.NoError(t, err)
	assert.Len(t, one, 1)

	line, err := PlanCells(spec(1, 4), core.Cell{})
	require.NoError(t, err)
	assert.Equal(t, []core.Cell{{Row: 0, Col: 0}, {Row: 0, Col: 1}, {Row: 0, Col: 2}, {Row: 0, Col: 3}}, line)

	column, err := PlanCells(spec(3, 1), core.Cell{})
	require.NoError(t, err)
	assert.Equal(t, []core.Cell{{Row: 0, Col: 0}, {Row: 1, Col: 0}, {Row: 2, Col: 0}}, column)
}

func TestPlanZigzag_Deterministic(t *testing.T) {
	a, err := PlanZigzag(spec(5, 6), core.Cell{Row: 4, Col: 0})
	require.NoError(t, err)
	b, err := PlanZigzag(spec(5, 6), core.Cell{Row: 4, Col: 0})
	require.NoError(t, err)
	assert.Equal(t, a, b)
}

func TestPlanZigzag_Errors(t *testing.T) {
	_, err := PlanZigzag(spec(0, 3), core.Cell{})
	assert.ErrorIs(t, err, geo.ErrInvalidGrid)

	_, err = PlanZigzag(spec(3, -1), core.Cell{})
	assert.ErrorIs(t, err, geo.ErrInvalidGrid)

	bad := spec(2, 2)
	bad.CellSize = 0
	_, err = PlanZigzag(bad, core.Cell{})
	assert.ErrorIs(t, err, geo.ErrInvalidGrid)

	_, err = PlanZigzag(spec(2, 2), core.Cell{Row: 2, Col: 0})
	assert.ErrorIs(t, err, geo.ErrInvalidCell)

	_, err = PlanZigzag(spec(2, 2), core.Cell{}, MinCellSize(12))
	assert.ErrorIs(t, err, geo.ErrInvalidGrid)

	_, err = PlanZigzag(spec(2, 2), core.Cell{}, MinCellSize(3))
	assert.NoError(t, err)
}

func TestParseOrder(t *testing.T) {
	o, err := ParseOrder("Column")
	require.NoError(t, err)
	assert.Equal(t, ColumnMajor, o)

	o, err = ParseOrder("")
	require.NoError(t, err)
	assert.Equal(t, RowMajor, o)

	_, err = ParseOrder("spiral")
	assert.Error(t, err)
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func TestPlanCells_TooManyCells(t *testing.T) {
	tests := []struct {
		name       string
		rows, cols int
	}{
		{"overflowing product", math.MaxInt / 2, 4},
		{"just over the bound", MaxCells/4 + 1, 4},
		{"single huge row", 1, MaxCells + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := PlanCells(spec(tt.rows, tt.cols), core.Cell{})
			assert.ErrorIs(t, err, geo.ErrInvalidGrid)
		})
	}

	cells, err := PlanCells(spec(1, MaxCells), core.Cell{})
	require.NoError(t, err)
	assert.Len(t, cells, MaxCells)
}
