package httpapi

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	geom "github.com/peterstace/simplefeatures/geom"

	"github.com/surveyor-hil/asvsim/internal/geo"
	"github.com/surveyor-hil/asvsim/internal/queue"
	"github.com/surveyor-hil/asvsim/internal/sim"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// MissionResponse is the body of GET /mission.
type MissionResponse struct {
	core.Mission
	Mode core.ControlMode `json:"mode"`
	ERP  *core.GeoPoint   `json:"erp,omitempty"`
}

// GridResponse is the body of GET /grid.
type GridResponse struct {
	Spec         core.GridSpec `json:"spec"`
	TopLeft      core.GeoPoint `json:"topLeft"`
	BottomRight  core.GeoPoint `json:"bottomRight"`
	HeightMeters float64       `json:"heightMeters"`
	WidthMeters  float64       `json:"widthMeters"`
	Area         geom.Polygon  `json:"area"`
}

// CellResponse is the body of GET /grid/cell.
type CellResponse struct {
	Cell   core.Cell     `json:"cell"`
	Center core.GeoPoint `json:"center"`
	Inside bool          `json:"inside"`
}

func (s *Server) health(c *gin.Context) {
	t := s.deps.Sim.Telemetry()
	body := gin.H{
		"status":       "ok",
		"session":      s.deps.Sim.SessionID(),
		"tick":         t.Tick,
		"commandQueue": s.deps.Sim.QueueLen(),
	}
	if s.deps.Clients != nil {
		body["clients"] = s.deps.Clients()
	}
	c.JSON(http.StatusOK, body)
}

func (s *Server) telemetry(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Sim.Telemetry())
}

func (s *Server) missionResponse() MissionResponse {
	resp := MissionResponse{Mission: s.deps.Sim.Mission(), Mode: s.deps.Sim.Mode()}
	if erp, ok := s.deps.Sim.ERP(); ok {
		resp.ERP = &erp
	}
	return resp
}

func (s *Server) mission(c *gin.Context) {
	c.JSON(http.StatusOK, s.missionResponse())
}

// abortMission queues an abort and waits for the tick that applies it.
func (s *Server) abortMission(c *gin.Context) {
	result := make(chan error, 1)
	err := s.deps.Sim.Submit(sim.AbortMission{}, func(err error) { result <- err })
	if errors.Is(err, queue.ErrFull) {
		errorJSON(c, http.StatusServiceUnavailable, "queue_full", err.Error())
		return
	}
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "rejected", err.Error())
		return
	}

	timer := time.NewTimer(s.deps.CommandTimeout)
	defer timer.Stop()
	select {
	case err := <-result:
		if err != nil {
			errorJSON(c, http.StatusConflict, "abort_failed", err.Error())
			return
		}
		s.deps.LogManager.WriteLog("abortMission", "mission aborted via HTTP", "INFO")
		c.JSON(http.StatusOK, s.missionResponse())
	case <-timer.C:
		// still queued; the tick will apply it
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case <-c.Request.Context().Done():
	}
}

func (s *Server) grid(c *gin.Context) {
	spec := s.deps.Sim.Grid()
	if spec == nil {
		errorJSON(c, http.StatusNotFound, "no_grid", "no survey grid configured")
		return
	}

	tl, br, err := geo.TopLeftBottomRight(*spec)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "invalid_grid", err.Error())
		return
	}
	height, width, err := geo.DimensionsMeters(*spec)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "invalid_grid", err.Error())
		return
	}
	area, err := geo.GridPolygon(*spec)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "invalid_grid", err.Error())
		return
	}

	c.JSON(http.StatusOK, GridResponse{
		Spec:         *spec,
		TopLeft:      tl,
		BottomRight:  br,
		HeightMeters: height,
		WidthMeters:  width,
		Area:         area,
	})
}

func (s *Server) gridCell(c *gin.Context) {
	spec := s.deps.Sim.Grid()
	if spec == nil {
		errorJSON(c, http.StatusNotFound, "no_grid", "no survey grid configured")
		return
	}

	lat, errLat := strconv.ParseFloat(c.Query("lat"), 64)
	lon, errLon := strconv.ParseFloat(c.Query("lon"), 64)
	if errLat != nil || errLon != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_parameter", "lat and lon must be decimal degrees")
		return
	}
	p := core.GeoPoint{Lat: lat, Lon: lon}

	cell, err := geo.GeoToCell(*spec, p)
	if err != nil {
		errorJSON(c, http.StatusBadRequest, "invalid_parameter", err.Error())
		return
	}
	center, err := geo.CellToGeo(*spec, cell)
	if err != nil {
		errorJSON(c, http.StatusInternalServerError, "invalid_grid", err.Error())
		return
	}
	c.JSON(http.StatusOK, CellResponse{Cell: cell, Center: center, Inside: geo.Contains(*spec, p)})
}
