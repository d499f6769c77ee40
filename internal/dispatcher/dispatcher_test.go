package dispatcher

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testLogger struct {
	mu       sync.Mutex
	messages []string
}

func (l *testLogger) add(level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.messages = append(l.messages, fmt.Sprintf("%s: %s %v", level, msg, kv))
}

func (l *testLogger) Debug(msg string, kv ...any) { l.add("DEBUG", msg, kv) }
func (l *testLogger) Info(msg string, kv ...any)  { l.add("INFO", msg, kv) }
func (l *testLogger) Warn(msg string, kv ...any)  { l.add("WARN", msg, kv) }
func (l *testLogger) Error(msg string, kv ...any) { l.add("ERROR", msg, kv) }

func (l *testLogger) count(prefix string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, m := range l.messages {
		if strings.HasPrefix(m, prefix) {
			n++
		}
	}
	return n
}

func newTestDispatcher(t *testing.T) (*Dispatcher, *testLogger) {
	t.Helper()
	logger := &testLogger{}
	d, err := New(logger)
	require.NoError(t, err)
	t.Cleanup(d.Close)
	return d, logger
}

func TestDispatcher_SyncHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var got Event
	d.Register("PSEAC", func(e Event) (any, error) {
		got = e
		return "result", nil
	})

	result, err := d.Dispatch(Event{Command: "PSEAC", Args: []string{"1", "S"}, Source: "tcp:1"})
	require.NoError(t, err)
	assert.Equal(t, "result", result)
	assert.Equal(t, []string{"1", "S"}, got.Args)
	assert.Equal(t, "tcp:1", got.Source)
	assert.False(t, got.Timestamp.IsZero(), "timestamp filled in")
}

func TestDispatcher_KeepsTimestamp(t *testing.T) {
	d, _ := newTestDispatcher(t)
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	var got time.Time
	d.Register("PSEAR", func(e Event) (any, error) {
		got = e.Timestamp
		return nil, nil
	})
	_, err := d.Dispatch(Event{Command: "PSEAR", Timestamp: at})
	require.NoError(t, err)
	assert.Equal(t, at, got)
}

func TestDispatcher_UnknownCommand(t *testing.T) {
	d, _ := newTestDispatcher(t)

	_, err := d.Dispatch(Event{Command: "GPXYZ"})
	assert.ErrorIs(t, err, ErrUnknownCommand)
	assert.Contains(t, err.Error(), "GPXYZ")
}

func TestDispatcher_NilLogger(t *testing.T) {
	d, err := New(nil)
	require.NoError(t, err)
	defer d.Close()

	d.Register("OIWPL", func(Event) (any, error) { return nil, errors.New("boom") }, Logged())
	_, err = d.Dispatch(Event{Command: "OIWPL"})
	assert.EqualError(t, err, "boom")
}

func TestDispatcher_BufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":TELEMETRY:", func(Event) (any, error) {
		processed.Add(1)
		return nil, nil
	}, Buffered(100))

	for i := 0; i < 3; i++ {
		result, err := d.Dispatch(Event{Command: ":TELEMETRY:"})
		require.NoError(t, err)
		assert.Equal(t, Queued, result)
	}

	assert.Eventually(t, func() bool { return processed.Load() == 3 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_BufferedDropsWhenFull(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(":TELEMETRY:", func(Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(2))

	_, err := d.Dispatch(Event{Command: ":TELEMETRY:"})
	require.NoError(t, err)
	<-started

	for i := 0; i < 2; i++ {
		_, err := d.Dispatch(Event{Command: ":TELEMETRY:"})
		require.NoError(t, err)
	}
	assert.Equal(t, 2, d.QueueLen(":TELEMETRY:"))

	_, err = d.Dispatch(Event{Command: ":TELEMETRY:"})
	assert.ErrorIs(t, err, ErrQueueFull)

	close(block)
}

func TestDispatcher_BufferedBlocking(t *testing.T) {
	d, _ := newTestDispatcher(t)

	started := make(chan struct{}, 1)
	block := make(chan struct{})
	d.Register(":MISSION:EVENT:", func(Event) (any, error) {
		select {
		case started <- struct{}{}:
		default:
		}
		<-block
		return nil, nil
	}, Buffered(1), Blocking())

	_, err := d.Dispatch(Event{Command: ":MISSION:EVENT:"})
	require.NoError(t, err)
	<-started
	_, err = d.Dispatch(Event{Command: ":MISSION:EVENT:"})
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		d.Dispatch(Event{Command: ":MISSION:EVENT:"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("dispatch should have blocked")
	case <-time.After(50 * time.Millisecond):
	}

	close(block)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("dispatch still blocked after the handler resumed")
	}
}

func TestDispatcher_CloseDrainsBuffers(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":TELEMETRY:", func(Event) (any, error) {
		time.Sleep(time.Millisecond)
		processed.Add(1)
		return nil, nil
	}, Buffered(50))
	d.Register("PSEAR", func(Event) (any, error) { return "sync", nil })

	for i := 0; i < 20; i++ {
		_, err := d.Dispatch(Event{Command: ":TELEMETRY:"})
		require.NoError(t, err)
	}

	d.Close()
	assert.Equal(t, int32(20), processed.Load())

	_, err := d.Dispatch(Event{Command: ":TELEMETRY:"})
	assert.ErrorIs(t, err, ErrClosed)

	result, err := d.Dispatch(Event{Command: "PSEAR"})
	require.NoError(t, err, "unbuffered handlers survive Close")
	assert.Equal(t, "sync", result)

	d.Close()
}

func TestDispatcher_RecoversPanic(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("PSEAC", func(Event) (any, error) { panic("bad index") })
	_, err := d.Dispatch(Event{Command: "PSEAC"})
	assert.ErrorIs(t, err, ErrHandlerPanic)
	assert.Contains(t, err.Error(), "bad index")

	var after atomic.Int32
	d.Register(":TELEMETRY:", func(e Event) (any, error) {
		if e.Payload == nil {
			panic("nil frame")
		}
		after.Add(1)
		return nil, nil
	}, Buffered(4))

	_, err = d.Dispatch(Event{Command: ":TELEMETRY:"})
	require.NoError(t, err)
	_, err = d.Dispatch(Event{Command: ":TELEMETRY:", Payload: 1})
	require.NoError(t, err)

	assert.Eventually(t, func() bool { return after.Load() == 1 }, time.Second, 5*time.Millisecond,
		"worker keeps running after a panic")
	assert.Eventually(t, func() bool { return logger.count("ERROR") == 1 }, time.Second, 5*time.Millisecond)
}

func TestDispatcher_LoggedHandler(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("PSEAR", func(Event) (any, error) { return "ok", nil }, Logged())
	_, err := d.Dispatch(Event{Command: "PSEAR", Args: []string{"a", "b"}})
	require.NoError(t, err)

	assert.Equal(t, 2, logger.count("DEBUG"))
	assert.Zero(t, logger.count("ERROR"))
}

func TestDispatcher_LoggedHandlerError(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("OIWPL", func(Event) (any, error) {
		return nil, errors.New("test error")
	}, Logged())

	_, err := d.Dispatch(Event{Command: "OIWPL"})
	assert.Error(t, err)
	assert.Equal(t, 1, logger.count("ERROR"))
}

func TestDispatcher_CombinedOptions(t *testing.T) {
	d, logger := newTestDispatcher(t)

	var processed atomic.Int32
	d.Register(":MISSION:EVENT:", func(Event) (any, error) {
		processed.Add(1)
		return "done", nil
	}, Buffered(100), Logged())

	result, err := d.Dispatch(Event{Command: ":MISSION:EVENT:"})
	require.NoError(t, err)
	assert.Equal(t, Queued, result)

	assert.Eventually(t, func() bool { return processed.Load() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, logger.count("DEBUG"))
}

func TestDispatcher_HandlersAndCommands(t *testing.T) {
	d, logger := newTestDispatcher(t)

	d.Register("PSEAQ", func(Event) (any, error) { return nil, nil })
	d.Register("OIWPL", func(Event) (any, error) { return nil, nil })

	assert.True(t, d.HasHandler("PSEAQ"))
	assert.False(t, d.HasHandler("PSEAX"))
	assert.Equal(t, []string{"OIWPL", "PSEAQ"}, d.Commands())
	assert.Zero(t, d.QueueLen("PSEAQ"))

	d.Register("PSEAQ", func(Event) (any, error) { return "second", nil })
	assert.Equal(t, 1, logger.count("WARN"))
	result, err := d.Dispatch(Event{Command: "PSEAQ"})
	require.NoError(t, err)
	assert.Equal(t, "second", result)
}

func TestDispatcher_ReplaceBufferedHandler(t *testing.T) {
	d, _ := newTestDispatcher(t)

	var first, second atomic.Int32
	d.Register(":TELEMETRY:", func(Event) (any, error) { first.Add(1); return nil, nil }, Buffered(4))
	d.Register(":TELEMETRY:", func(Event) (any, error) { second.Add(1); return nil, nil }, Buffered(4))

	_, err := d.Dispatch(Event{Command: ":TELEMETRY:"})
	require.NoError(t, err)
	d.Close()

	assert.Zero(t, first.Load())
	assert.Equal(t, int32(1), second.Load())
}
