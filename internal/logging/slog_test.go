package logging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/surveyor-hil/asvsim/pkg/core"
)

// redirectStdout swaps the console sink for a buffer for the duration of
// the test.
func redirectStdout(t *testing.T) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	orig := osStdout
	osStdout = &buf
	t.Cleanup(func() { osStdout = orig })
	return &buf
}

func TestSetup_Sinks(t *testing.T) {
	tests := []struct {
		name        string
		withFile    bool
		console     bool
		wantFile    bool
		wantConsole bool
	}{
		{"file only", true, false, true, false},
		{"no file falls back to stdout", false, false, false, true},
		{"file and console", true, true, true, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stdout := redirectStdout(t)
			var file bytes.Buffer
			cfg := Config{Level: "info", Console: tt.console}
			if tt.withFile {
				cfg.File = &file
			}

			m := NewSlogManager()
			require.NoError(t, m.Setup(cfg))
			m.Logger().Info("waypoint reached")

			assert.Equal(t, tt.wantFile, strings.Contains(file.String(), "waypoint reached"))
			assert.Equal(t, tt.wantConsole, strings.Contains(stdout.String(), "waypoint reached"))
		})
	}
}

func TestSetup_Levels(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(Config{File: &buf, Level: "warn"}))

	m.Logger().Info("info hidden")
	m.Logger().Warn("warn shown")

	assert.NotContains(t, buf.String(), "info hidden")
	assert.Contains(t, buf.String(), "warn shown")
}

func TestSetup_UTCTimestamps(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(Config{File: &buf, Level: "info"}))
	m.Logger().Info("tick")

	line := strings.SplitN(buf.String(), " ", 2)[0]
	require.True(t, strings.HasPrefix(line, "time="), line)
	ts, err := time.Parse(time.RFC3339Nano, strings.TrimPrefix(line, "time="))
	require.NoError(t, err)
	_, offset := ts.Zone()
	assert.Zero(t, offset)
}

func TestSetup_ReplacesLogger(t *testing.T) {
	var buf1, buf2 bytes.Buffer
	m := NewSlogManager()

	require.NoError(t, m.Setup(Config{File: &buf1, Level: "info"}))
	m.Logger().Info("first")

	require.NoError(t, m.Setup(Config{File: &buf2, Level: "info"}))
	m.Logger().Info("second")

	assert.Contains(t, buf1.String(), "first")
	assert.NotContains(t, buf1.String(), "second")
	assert.Contains(t, buf2.String(), "second")
}

func TestSetup_ConcurrentWithLogging(t *testing.T) {
	m := NewSlogManager()
	require.NoError(t, m.Setup(Config{File: &lockedBuffer{}, Level: "info"}))

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			m.Logger().Info("tick", "n", i)
			m.WriteLog("step", "advanced", "debug")
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 10; i++ {
			assert.NoError(t, m.Setup(Config{File: &lockedBuffer{}, Level: "debug"}))
		}
	}()
	wg.Wait()
}

func TestLogger_DefaultBeforeSetup(t *testing.T) {
	m := NewSlogManager()
	assert.Equal(t, slog.Default(), m.Logger())
	assert.NoError(t, m.Flush(context.Background()))
	assert.NoError(t, m.Close())

	m.WriteLog("fn", "data", "info")
}

func TestWriteLog_Levels(t *testing.T) {
	tests := []struct {
		level string
		want  string
	}{
		{"debug", "level=DEBUG"},
		{"INFO", "level=INFO"},
		{"warn", "level=WARN"},
		{"WARNING", "level=WARN"},
		{"error", "level=ERROR"},
		{"unknown", "level=INFO"},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			m := NewSlogManager()
			require.NoError(t, m.Setup(Config{File: &buf, Level: "debug"}))
			buf.Reset()

			m.WriteLog(":PSEAC:", "mode rejected", tt.level)

			out := buf.String()
			assert.Contains(t, out, tt.want)
			assert.Contains(t, out, `msg="mode rejected"`)
			assert.Contains(t, out, "function=:PSEAC:")
		})
	}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input string
		want  slog.Level
	}{
		{"debug", slog.LevelDebug},
		{"DEBUG", slog.LevelDebug},
		{"info", slog.LevelInfo},
		{"warn", slog.LevelWarn},
		{"warning", slog.LevelWarn},
		{"ERROR", slog.LevelError},
		{"error+2", slog.LevelError + 2},
		{"", slog.LevelInfo},
		{"verbose", slog.LevelInfo},
	}
	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.want, parseLevel(tt.input))
		})
	}
}

func TestFanout(t *testing.T) {
	var info, debug bytes.Buffer
	f := newFanout(
		nil,
		slog.NewTextHandler(&info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(&debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	)
	require.Len(t, f, 2)
	assert.True(t, f.Enabled(context.Background(), slog.LevelDebug))

	logger := slog.New(f).With("component", "server").WithGroup("client")
	logger.Debug("connected", "id", "tcp:1")

	assert.Empty(t, info.String())
	assert.Contains(t, debug.String(), "component=server")
	assert.Contains(t, debug.String(), "client.id=tcp:1")

	assert.False(t, newFanout().Enabled(context.Background(), slog.LevelError))
	assert.Equal(t, f, f.WithGroup(""))
}

type failingHandler struct{ slog.Handler }

func (failingHandler) Enabled(context.Context, slog.Level) bool { return true }
func (failingHandler) Handle(context.Context, slog.Record) error {
	return errors.New("graylog down")
}

func TestFanout_FailingSinkDoesNotStopOthers(t *testing.T) {
	var buf bytes.Buffer
	f := newFanout(failingHandler{}, slog.NewTextHandler(&buf, nil))

	err := f.Handle(context.Background(), slog.NewRecord(time.Now(), slog.LevelInfo, "direct", 0))
	assert.EqualError(t, err, "graylog down")
	assert.Contains(t, buf.String(), "direct")
}

func TestSetup_WithOTelProvider(t *testing.T) {
	provider := sdklog.NewLoggerProvider()
	defer provider.Shutdown(context.Background())

	var buf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(Config{File: &buf, Level: "info", Provider: provider}))

	m.Logger().Info("otel integrated")
	assert.Contains(t, buf.String(), "otel integrated")
	assert.Contains(t, buf.String(), "otel=true")
	assert.NoError(t, m.Flush(context.Background()))
}

func TestSetup_GELF(t *testing.T) {
	var buf bytes.Buffer
	m := NewSlogManager()
	// UDP needs no listener to dial
	require.NoError(t, m.Setup(Config{File: &buf, Level: "info", GELFAddr: "127.0.0.1:12201"}))
	m.Logger().Info("to graylog")

	assert.Contains(t, buf.String(), "gelf=true")
	assert.NoError(t, m.Close())
	assert.NoError(t, m.Close())
}

func TestSetup_GELFBadAddress(t *testing.T) {
	m := NewSlogManager()
	assert.Error(t, m.Setup(Config{Level: "info", GELFAddr: "no-port-here"}))
}

type fakeSim struct {
	mode core.ControlMode
	m    core.Mission
	tick uint64
}

func (f *fakeSim) Mode() core.ControlMode    { return f.mode }
func (f *fakeSim) Mission() core.Mission     { return f.m }
func (f *fakeSim) Telemetry() core.Telemetry { return core.Telemetry{Tick: f.tick} }

func TestSetup_SimContext(t *testing.T) {
	src := &fakeSim{mode: core.ModeThruster}
	var buf bytes.Buffer
	m := NewSlogManager()
	require.NoError(t, m.Setup(Config{File: &buf, Level: "info", Context: SimContext(src)}))

	buf.Reset()
	m.Logger().Info("tick")
	assert.Contains(t, buf.String(), "sim.mode=Thruster")

	src.mode = core.ModeWaypoint
	src.m = core.Mission{Status: core.MissionActive, Target: 4}
	src.tick = 17
	buf.Reset()
	m.Logger().Info("advancing")

	out := buf.String()
	assert.Contains(t, out, "sim.mode=Waypoint")
	assert.Contains(t, out, "sim.mission=active")
	assert.Contains(t, out, "sim.waypoint=4")
	assert.Contains(t, out, "sim.tick=17")
}

func TestStateHandler_JSONGroup(t *testing.T) {
	var buf bytes.Buffer
	h := newStateHandler(slog.NewJSONHandler(&buf, nil), SimContext(&fakeSim{mode: core.ModeStandby, tick: 3}))
	slog.New(h).Info("idle")

	var entry struct {
		Sim struct {
			Mode string  `json:"mode"`
			Tick float64 `json:"tick"`
		} `json:"sim"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "Standby", entry.Sim.Mode)
	assert.Equal(t, float64(3), entry.Sim.Tick)
}

func TestStateHandler_EmptyProvider(t *testing.T) {
	var buf bytes.Buffer
	inner := slog.NewTextHandler(&buf, nil)
	assert.Equal(t, inner, newStateHandler(inner, nil))

	h := newStateHandler(inner, func() []slog.Attr { return nil })
	slog.New(h).Info("booting")
	assert.NotContains(t, buf.String(), "sim.")
}

type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}
