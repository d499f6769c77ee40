package main

import (
	"fmt"
	"io"
	"strconv"

	"github.com/surveyor-hil/asvsim/internal/config"
	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/gridfile"
	"github.com/surveyor-hil/asvsim/internal/planner"
	"github.com/surveyor-hil/asvsim/internal/sim"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// gridFromConfig returns the configured grid and the cell the sweep should
// start from.
func gridFromConfig(cfg config.GridConfig) (core.GridSpec, core.Cell, error) {
	spec := core.GridSpec{
		Origin:   core.GeoPoint{Lat: cfg.OriginLat, Lon: cfg.OriginLon},
		Rows:     cfg.Rows,
		Cols:     cfg.Cols,
		CellSize: cfg.CellSize,
		Bearing:  cfg.Bearing,
	}
	if err := geo.Validate(spec); err != nil {
		return core.GridSpec{}, core.Cell{}, fmt.Errorf("grid settings: %w", err)
	}
	return spec, core.Cell{Row: cfg.StartRow, Col: cfg.StartCol}, nil
}

// planGrid plans the zig-zag over the configured grid.
func planGrid(cfg config.GridConfig) (*gridfile.File, error) {
	spec, start, err := gridFromConfig(cfg)
	if err != nil {
		return nil, err
	}
	order, err := planner.ParseOrder(cfg.Order)
	if err != nil {
		return nil, err
	}

	cells, err := planner.PlanCells(spec, start, planner.WithOrder(order), planner.MinCellSize(cfg.MinCellSize))
	if err != nil {
		return nil, err
	}
	waypoints, err := planner.CellsToWaypoints(spec, cells)
	if err != nil {
		return nil, err
	}
	return gridfile.New(spec, cells, waypoints)
}

// missionSubmitter queues commands for the simulator.
type missionSubmitter interface {
	Submit(cmd sim.Command, done func(error)) error
}

// loadGridMission writes the planned grid file, reads it back and loads
// its sweep as the pending mission, so PSEAC,W starts the lawnmower
// without a waypoint download. If the file cannot be written or read the
// plan is loaded as computed.
func loadGridMission(cfg config.GridConfig, s missionSubmitter) (int, error) {
	f, err := planGrid(cfg)
	if err != nil {
		return 0, err
	}
	if err := gridfile.Write(cfg.File, f); err != nil {
		Logger.Warn("Failed to write grid file", "path", cfg.File, "error", err)
	} else if stored, err := gridfile.Read(cfg.File); err != nil {
		Logger.Warn("Failed to read grid file back", "path", cfg.File, "error", err)
	} else {
		f = stored
	}

	waypoints := f.Path()
	if err := s.Submit(sim.LoadMission{Waypoints: waypoints}, nil); err != nil {
		return 0, fmt.Errorf("load grid mission: %w", err)
	}
	return len(waypoints), nil
}

// runPlan writes the planned grid file to output, or to grid.file when
// output is empty.
func runPlan(out io.Writer, output string) error {
	cfg := config.GetGridConfig()
	if output == "" {
		output = cfg.File
	}
	f, err := planGrid(cfg)
	if err != nil {
		return err
	}
	if err := gridfile.Write(output, f); err != nil {
		return err
	}

	spec := f.Spec()
	height, width, err := geo.DimensionsMeters(spec)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "wrote %s: %dx%d cells of %.1fm (%.1fm x %.1fm), %d waypoints\n",
		output, spec.Rows, spec.Cols, spec.CellSize, height, width, len(f.Waypoints))
	return nil
}

// runCell prints the grid cell nearest to the given point and whether the
// point lies inside the grid.
func runCell(out io.Writer, latArg, lonArg string) error {
	lat, err := strconv.ParseFloat(latArg, 64)
	if err != nil {
		return fmt.Errorf("%w: latitude %q", errUsage, latArg)
	}
	lon, err := strconv.ParseFloat(lonArg, 64)
	if err != nil {
		return fmt.Errorf("%w: longitude %q", errUsage, lonArg)
	}

	spec, _, err := gridFromConfig(config.GetGridConfig())
	if err != nil {
		return err
	}
	p := core.GeoPoint{Lat: lat, Lon: lon}
	cell, err := geo.GeoToCell(spec, p)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "row=%d col=%d inside=%t\n", cell.Row, cell.Col, geo.Contains(spec, p))
	return nil
}
