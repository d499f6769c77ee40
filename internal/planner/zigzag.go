// Package planner builds boustrophedon (lawnmower) coverage paths over a grid.
package planner

import (
	"fmt"
	"strings"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// Order selects which axis the sweep runs along.
type Order int

const (
	// RowMajor sweeps each row end to end before stepping to the next row.
	RowMajor Order = iota
	// ColumnMajor sweeps each column before stepping to the next column.
	ColumnMajor
)

func (o Order) String() string {
	if o == ColumnMajor {
		return "column"
	}
	return "row"
}

// ParseOrder accepts "row" or "column" (case-insensitive).
func ParseOrder(s string) (Order, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "row", "rows", "row-major":
		return RowMajor, nil
	case "column", "columns", "col", "column-major":
		return ColumnMajor, nil
	default:
		return RowMajor, fmt.Errorf("unknown sweep order: %s", s)
	}
}

// MaxCells bounds the number of cells a single plan may cover.
const MaxCells = 1 << 20

// Option configures planning.
type Option func(*config)

type config struct {
	order       Order
	minCellSize float64
}

// WithOrder sets the sweep order.
func WithOrder(o Order) Option {
	return func(c *config) {
		c.order = o
	}
}

// MinCellSize rejects grids whose cells are smaller than m meters.
func MinCellSize(m float64) Option {
	return func(c *config) {
		c.minCellSize = m
	}
}

// PlanCells returns every grid cell exactly once in boustrophedon order.
// The sweep starts at the grid corner nearest to start and alternates
// direction on each row (or column), so consecutive cells are always
// neighbours.
func PlanCells(spec core.GridSpec, start core.Cell, opts ...Option) ([]core.Cell, error) {
	cfg := &config{}
	for _, opt := range opts {
		opt(cfg)
	}

	if err := geo.Validate(spec); err != nil {
		return nil, err
	}
	if cfg.minCellSize > 0 && spec.CellSize < cfg.minCellSize {
		return nil, fmt.Errorf("%w: cell size %.2fm below minimum %.2fm", geo.ErrInvalidGrid, spec.CellSize, cfg.minCellSize)
	}
	if spec.Rows > MaxCells/spec.Cols {
		return nil, fmt.Errorf("%w: %dx%d grid exceeds %d cells", geo.ErrInvalidGrid, spec.Rows, spec.Cols, MaxCells)
	}
	if !geo.InGrid(spec, start) {
		return nil, fmt.Errorf("%w: start (%d,%d) outside %dx%d grid",
			geo.ErrInvalidCell, start.Row, start.Col, spec.Rows, spec.Cols)
	}

	// outer is the axis we step across once per sweep, inner is swept end to end
	outerN, innerN := spec.Rows, spec.Cols
	outerStart, innerStart := start.Row, start.Col
	if cfg.order == ColumnMajor {
		outerN, innerN = innerN, outerN
		outerStart, innerStart = innerStart, outerStart
	}

	outer, outerStep := corner(outerStart, outerN)
	inner, innerStep := corner(innerStart, innerN)

	cells := make([]core.Cell, 0, spec.Rows*spec.Cols)
	for i := 0; i < outerN; i++ {
		for j := 0; j < innerN; j++ {
			if cfg.order == ColumnMajor {
				cells = append(cells, core.Cell{Row: inner, Col: outer})
			} else {
				cells = append(cells, core.Cell{Row: outer, Col: inner})
			}
			if j < innerN-1 {
				inner += innerStep
			}
		}
		innerStep = -innerStep
		outer += outerStep
	}
	return cells, nil
}

// corner snaps idx to the nearer end of [0,n) and returns the direction
// that walks back into the grid. Ties go to index 0.
func corner(idx, n int) (int, int) {
	if 2*idx <= n-1 {
		return 0, 1
	}
	return n - 1, -1
}

// PlanZigzag returns the boustrophedon path as GPS waypoints at cell centers.
func PlanZigzag(spec core.GridSpec, start core.Cell, opts ...Option) ([]core.Waypoint, error) {
	cells, err := PlanCells(spec, start, opts...)
	if err != nil {
		return nil, err
	}
	return CellsToWaypoints(spec, cells)
}

// CellsToWaypoints maps cells to waypoints in the given order.
func CellsToWaypoints(spec core.GridSpec, cells []core.Cell) ([]core.Waypoint, error) {
	waypoints := make([]core.Waypoint, 0, len(cells))
	for i, c := range cells {
		p, err := geo.CellToGeo(spec, c)
		if err != nil {
			return nil, err
		}
		waypoints = append(waypoints, core.Waypoint{Position: p, Index: i})
	}
	return waypoints, nil
}
