// pkg/core/geo.go
package core

import "math"

// GeoPoint is a WGS84 position in decimal degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lon float64 `json:"lon"`
}

// Valid reports whether the point is a finite coordinate inside the
// latitude/longitude ranges.
func (p GeoPoint) Valid() bool {
	if math.IsNaN(p.Lat) || math.IsNaN(p.Lon) || math.IsInf(p.Lat, 0) || math.IsInf(p.Lon, 0) {
		return false
	}
	return p.Lat >= -90 && p.Lat <= 90 && p.Lon >= -180 && p.Lon <= 180
}

// GridSpec describes a rectangular logical grid laid over the water.
// Origin is the corner cell (0,0) grows from. Columns run along Bearing,
// rows run along Bearing+90 (clockwise).
type GridSpec struct {
	Origin   GeoPoint `json:"origin"`
	Rows     int      `json:"rows"`
	Cols     int      `json:"cols"`
	CellSize float64  `json:"cellSizeMeters"`
	Bearing  float64  `json:"bearing"`
}

// Cell addresses one grid cell.
type Cell struct {
	Row int `json:"row"`
	Col int `json:"col"`
}

// Waypoint is a mission target. Index is the visiting order.
type Waypoint struct {
	Position GeoPoint `json:"position"`
	Index    int      `json:"index"`
}
