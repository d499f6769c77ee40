package monitor

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyor-hil/asvsim/internal/worker"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

type fakeSim struct{}

func (fakeSim) SessionID() string { return "session-1" }
func (fakeSim) QueueLen() int     { return 2 }

func (fakeSim) Telemetry() core.Telemetry {
	return core.Telemetry{
		Tick:          42,
		Mode:          core.ModeWaypoint,
		State:         core.VehicleState{Position: core.GeoPoint{Lat: 25.5, Lon: -80.5}, Heading: 270, Speed: 1.25},
		MissionStatus: core.MissionActive,
		WaypointIndex: 3,
	}
}

func (fakeSim) Mission() core.Mission {
	return core.Mission{Waypoints: make([]core.Waypoint, 8), Target: 3, Status: core.MissionActive}
}

type fakeWorker struct{}

func (fakeWorker) Stats() worker.Stats { return worker.Stats{Frames: 40, Events: 2} }

func fixedClock() func() time.Time {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	return func() time.Time {
		now = now.Add(30 * time.Second)
		return now
	}
}

func TestSnapshot(t *testing.T) {
	s := NewService(Dependencies{
		Sim:     fakeSim{},
		Worker:  fakeWorker{},
		Clients: func() int { return 3 },
		Now:     fixedClock(),
	})

	st := s.Snapshot()
	assert.Equal(t, "session-1", st.SessionID)
	assert.Equal(t, "30s", st.Uptime)
	assert.Equal(t, uint64(42), st.Tick)
	assert.Equal(t, core.ModeWaypoint, st.Mode)
	assert.Equal(t, 8, st.Waypoints)
	assert.Equal(t, 3, st.Waypoint)
	assert.Equal(t, 2, st.CommandQueue)
	assert.Equal(t, 3, st.Clients)
	require.NotNil(t, st.Recording)
	assert.Equal(t, uint64(40), st.Recording.Frames)
}

func TestSnapshotWithoutOptionalSources(t *testing.T) {
	st := NewService(Dependencies{Sim: fakeSim{}}).Snapshot()
	assert.Zero(t, st.Clients)
	assert.Nil(t, st.Recording)
}

func TestWriteStatusReplacesContent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "status.json")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()
	_, err = f.WriteString(`{"stale": "content that is longer than a fresh snapshot would ever be, padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded padded"}`)
	require.NoError(t, err)

	s := NewService(Dependencies{Sim: fakeSim{}})
	require.NoError(t, s.WriteStatus(f))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var st Status
	require.NoError(t, json.Unmarshal(data, &st))
	assert.Equal(t, "session-1", st.SessionID)
	assert.NotContains(t, string(data), "stale")
}

func TestStartWritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run", "status.json")
	s := NewService(Dependencies{Sim: fakeSim{}, StatusFile: path, Interval: 10 * time.Millisecond})

	require.NoError(t, s.Start())
	assert.True(t, s.IsRunning())
	require.NoError(t, s.Start())

	require.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil || len(data) == 0 {
			return false
		}
		var st Status
		return json.Unmarshal(data, &st) == nil && st.Tick == 42
	}, 2*time.Second, 10*time.Millisecond)

	s.Stop()
	assert.False(t, s.IsRunning())
	s.Stop()
}

func TestStartWithoutFile(t *testing.T) {
	s := NewService(Dependencies{Sim: fakeSim{}})
	require.NoError(t, s.Start())
	assert.False(t, s.IsRunning())
}
