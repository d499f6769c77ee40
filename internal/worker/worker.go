// Package worker records simulator output. Telemetry frames and mission
// events reach it through buffered dispatcher handlers and are written to
// the storage backend and, when configured, to InfluxDB.
package worker

import (
	"errors"
	"sync/atomic"

	influxdb2_write "github.com/influxdata/influxdb-client-go/v2/api/write"

	"github.com/surveyor-hil/asvsim/internal/logging"
	"github.com/surveyor-hil/asvsim/internal/storage"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// ErrNoBackend is returned by session operations when no backend is set.
var ErrNoBackend = errors.New("no storage backend")

// PointWriter receives time-series points. *influx.Manager implements it.
type PointWriter interface {
	WritePoint(point *influxdb2_write.Point) error
}

// Dependencies holds all dependencies for the worker manager
type Dependencies struct {
	LogManager *logging.SlogManager
	Influx     PointWriter
}

// Stats counts what the manager has handled since it was created.
type Stats struct {
	Frames       uint64 `json:"frames"`
	Events       uint64 `json:"events"`
	Errors       uint64 `json:"errors"`
	FramesQueued int    `json:"framesQueued"`
}

// Manager manages the recording handlers
type Manager struct {
	deps    Dependencies
	backend storage.Backend

	frames atomic.Uint64
	events atomic.Uint64
	errors atomic.Uint64
	queued atomic.Int64
}

// NewManager creates a new worker manager. backend may be nil, in which
// case only the influx sink receives data.
func NewManager(deps Dependencies, backend storage.Backend) *Manager {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	return &Manager{
		deps:    deps,
		backend: backend,
	}
}

// Backend returns the storage backend.
func (m *Manager) Backend() storage.Backend {
	return m.backend
}

// StartSession opens a recording in the backend.
func (m *Manager) StartSession(s *core.Session) error {
	if m.backend == nil {
		return ErrNoBackend
	}
	m.deps.LogManager.WriteLog("StartSession", "recording session "+s.ID, "INFO")
	return m.backend.StartSession(s)
}

// EndSession closes the recording. Call it only after the dispatcher has
// drained, so that every queued frame is part of the session.
func (m *Manager) EndSession() error {
	if m.backend == nil {
		return ErrNoBackend
	}
	m.deps.LogManager.WriteLog("EndSession", "closing recording session", "INFO")
	return m.backend.EndSession()
}

// Stats returns a snapshot of the counters.
func (m *Manager) Stats() Stats {
	return Stats{
		Frames:       m.frames.Load(),
		Events:       m.events.Load(),
		Errors:       m.errors.Load(),
		FramesQueued: int(m.queued.Load()),
	}
}
