// Package monitor periodically writes a JSON snapshot of the simulator to a
// status file that operators can tail.
package monitor

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/surveyor-hil/asvsim/internal/logging"
	"github.com/surveyor-hil/asvsim/internal/worker"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

const defaultInterval = 10 * time.Second

// SimSource is the part of the simulator the monitor reports on.
type SimSource interface {
	SessionID() string
	Telemetry() core.Telemetry
	Mission() core.Mission
	QueueLen() int
}

// Dependencies holds all dependencies for the monitor service
type Dependencies struct {
	LogManager *logging.SlogManager
	Sim        SimSource
	// optional
	Worker     interface{ Stats() worker.Stats }
	Clients    func() int
	StatusFile string
	Interval   time.Duration
	Now        func() time.Time
}

// Status is one snapshot written to the status file.
type Status struct {
	Time          time.Time          `json:"time"`
	SessionID     string             `json:"sessionId"`
	Uptime        string             `json:"uptime"`
	Tick          uint64             `json:"tick"`
	Mode          core.ControlMode   `json:"mode"`
	Position      core.GeoPoint      `json:"position"`
	Heading       float64            `json:"heading"`
	Speed         float64            `json:"speed"`
	MissionStatus core.MissionStatus `json:"missionStatus"`
	Waypoint      int                `json:"waypoint"`
	Waypoints     int                `json:"waypoints"`
	CommandQueue  int                `json:"commandQueue"`
	Clients       int                `json:"clients"`
	Recording     *worker.Stats      `json:"recording,omitempty"`
}

// Service manages status monitoring
type Service struct {
	deps      Dependencies
	started   time.Time
	isRunning bool
	mu        sync.RWMutex
	stopChan  chan struct{}
	done      chan struct{}
}

// NewService creates a new monitor service
func NewService(deps Dependencies) *Service {
	if deps.LogManager == nil {
		deps.LogManager = logging.NewSlogManager()
	}
	if deps.Interval <= 0 {
		deps.Interval = defaultInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{deps: deps, started: deps.Now()}
}

// IsRunning returns whether the status monitor is running
func (s *Service) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Snapshot collects the current status.
func (s *Service) Snapshot() Status {
	now := s.deps.Now()
	t := s.deps.Sim.Telemetry()
	st := Status{
		Time:          now,
		SessionID:     s.deps.Sim.SessionID(),
		Uptime:        now.Sub(s.started).Round(time.Second).String(),
		Tick:          t.Tick,
		Mode:          t.Mode,
		Position:      t.State.Position,
		Heading:       t.State.Heading,
		Speed:         t.State.Speed,
		MissionStatus: t.MissionStatus,
		Waypoint:      t.WaypointIndex,
		Waypoints:     len(s.deps.Sim.Mission().Waypoints),
		CommandQueue:  s.deps.Sim.QueueLen(),
	}
	if s.deps.Clients != nil {
		st.Clients = s.deps.Clients()
	}
	if s.deps.Worker != nil {
		ws := s.deps.Worker.Stats()
		st.Recording = &ws
	}
	return st
}

// WriteStatus replaces the status file content with a fresh snapshot.
func (s *Service) WriteStatus(f *os.File) error {
	data, err := json.MarshalIndent(s.Snapshot(), "", "  ")
	if err != nil {
		return fmt.Errorf("encode status: %w", err)
	}
	if err := f.Truncate(0); err != nil {
		return fmt.Errorf("truncate status file: %w", err)
	}
	if _, err := f.Seek(0, 0); err != nil {
		return fmt.Errorf("seek status file: %w", err)
	}
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("write status file: %w", err)
	}
	return nil
}

// Start starts the status monitor goroutine. It is a no-op without a
// status file.
func (s *Service) Start() error {
	if s.deps.StatusFile == "" {
		return nil
	}

	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(s.deps.StatusFile), 0755); err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create status directory: %w", err)
	}
	statusFile, err := os.Create(s.deps.StatusFile)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("create status file: %w", err)
	}
	s.isRunning = true
	s.stopChan = make(chan struct{})
	s.done = make(chan struct{})
	stop, done := s.stopChan, s.done
	s.mu.Unlock()

	go func() {
		defer close(done)
		defer statusFile.Close()
		defer func() {
			s.mu.Lock()
			s.isRunning = false
			s.mu.Unlock()
		}()

		s.deps.LogManager.Logger().Debug("Starting status monitor", "file", s.deps.StatusFile, "interval", s.deps.Interval)

		ticker := time.NewTicker(s.deps.Interval)
		defer ticker.Stop()
		for {
			if err := s.WriteStatus(statusFile); err != nil {
				s.deps.LogManager.WriteLog("monitor", err.Error(), "ERROR")
			}
			select {
			case <-stop:
				return
			case <-ticker.C:
			}
		}
	}()
	return nil
}

// Stop stops the status monitor and waits for it to exit.
func (s *Service) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	close(s.stopChan)
	done := s.done
	s.isRunning = false
	s.mu.Unlock()
	<-done
}
