package server

import (
	"bufio"
	"context"
	"io"
	"net"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surveyor-hil/asvsim/internal/channel"
	"github.com/surveyor-hil/asvsim/internal/dispatcher"
	"github.com/surveyor-hil/asvsim/internal/handlers"
	"github.com/surveyor-hil/asvsim/internal/nmea"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

type dispatchFunc func(dispatcher.Event) (any, error)

func (f dispatchFunc) Dispatch(e dispatcher.Event) (any, error) { return f(e) }

type recorder struct {
	mu     sync.Mutex
	events []dispatcher.Event
}

func (r *recorder) Dispatch(e dispatcher.Event) (any, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
	switch e.Command {
	case nmea.TypePoll:
		return nmea.Build("PSEAD", "L", "0.0", "0", "0"), nil
	case nmea.TypeCommand:
		return nil, nil
	}
	return nil, dispatcher.ErrUnknownCommand
}

func (r *recorder) Events() []dispatcher.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]dispatcher.Event(nil), r.events...)
}

// pipeClient runs a session on one end of a pipe and returns the other end.
func pipeClient(t *testing.T, s *Server) (net.Conn, *bufio.Reader) {
	t.Helper()
	client, srv := net.Pipe()
	done := make(chan struct{})
	go func() {
		defer close(done)
		s.ServeConn(context.Background(), "pipe", srv)
	}()
	t.Cleanup(func() {
		client.Close()
		<-done
	})
	require.Eventually(t, func() bool { return s.Clients() > 0 }, time.Second, time.Millisecond)
	return client, bufio.NewReader(client)
}

func writeLine(t *testing.T, c net.Conn, line string) {
	t.Helper()
	require.NoError(t, c.SetWriteDeadline(time.Now().Add(time.Second)))
	_, err := c.Write([]byte(line))
	require.NoError(t, err)
}

func readSentence(t *testing.T, c net.Conn, r *bufio.Reader) nmea.Sentence {
	t.Helper()
	require.NoError(t, c.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	st, err := nmea.Parse(line)
	require.NoError(t, err, line)
	return st
}

func newTestServer(d Dispatcher) *Server {
	return New(Config{ErrorCode: handlers.ErrorCode, SendBuffer: 8}, d)
}

func TestPollRepliesToClient(t *testing.T) {
	rec := &recorder{}
	s := newTestServer(rec)
	c, r := pipeClient(t, s)

	writeLine(t, c, "$PSEAQ\r\n")
	st := readSentence(t, c, r)
	assert.Equal(t, "PSEAD", st.Type)

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, nmea.TypePoll, events[0].Command)
	assert.True(t, strings.HasPrefix(events[0].Source, "pipe#"))
	assert.NotNil(t, events[0].Payload)
}

func TestCommandWithoutReplyIsSilent(t *testing.T) {
	rec := &recorder{}
	s := newTestServer(rec)
	c, r := pipeClient(t, s)

	writeLine(t, c, nmea.Build("PSEAC", "T", "0", "20", "0"))
	writeLine(t, c, "$PSEAQ\r\n")

	// the poll reply is the first line the client sees
	st := readSentence(t, c, r)
	assert.Equal(t, "PSEAD", st.Type)

	events := rec.Events()
	require.Len(t, events, 2)
	assert.Equal(t, []string{"T", "0", "20", "0"}, events[0].Args)
}

func TestErrorsReplyWithPSEAE(t *testing.T) {
	tests := []struct {
		line string
		code string
	}{
		{"$PSEAC,L*00\r\n", handlers.CodeBadChecksum},
		{"$*\r\n", handlers.CodeBadSentence},
		{"$PSEAZ,1\r\n", handlers.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			s := newTestServer(&recorder{})
			c, r := pipeClient(t, s)

			writeLine(t, c, tt.line)
			st := readSentence(t, c, r)
			assert.Equal(t, nmea.TypeError, st.Type)
			assert.Equal(t, tt.code, st.Field(0))
		})
	}
}

func TestBlankLinesIgnored(t *testing.T) {
	rec := &recorder{}
	s := newTestServer(rec)
	c, r := pipeClient(t, s)

	writeLine(t, c, "\r\n\n$PSEAQ\r\n")
	readSentence(t, c, r)
	assert.Len(t, rec.Events(), 1)
}

func TestOverlongLineKeepsSession(t *testing.T) {
	rec := &recorder{}
	s := newTestServer(rec)
	c, r := pipeClient(t, s)

	long := "$PSEAC," + strings.Repeat("9", 2*maxLine) + "\r\n"
	require.NoError(t, c.SetWriteDeadline(time.Now().Add(time.Second)))
	written := make(chan error, 1)
	go func() {
		_, err := c.Write([]byte(long + "$PSEAQ\r\n"))
		written <- err
	}()

	st := readSentence(t, c, r)
	assert.Equal(t, nmea.TypeError, st.Type)
	assert.Equal(t, handlers.CodeBadSentence, st.Field(0))

	st = readSentence(t, c, r)
	assert.Equal(t, "PSEAD", st.Type)
	require.NoError(t, <-written)
	assert.Equal(t, 1, s.Clients())

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, nmea.TypePoll, events[0].Command)
}

func TestReadLine(t *testing.T) {
	input := "$PSEAQ\r\n" + strings.Repeat("x", maxLine+10) + "\n$PSEAR,1\r\ntail"
	r := bufio.NewReaderSize(strings.NewReader(input), maxLine)

	line, err := readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "$PSEAQ", line)

	_, err = readLine(r)
	assert.ErrorIs(t, err, errLineTooLong)
	assert.ErrorIs(t, err, nmea.ErrMalformed)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "$PSEAR,1", line)

	line, err = readLine(r)
	require.NoError(t, err)
	assert.Equal(t, "tail", line)

	_, err = readLine(r)
	assert.ErrorIs(t, err, io.EOF)
}

func TestAsyncReplyThroughPayload(t *testing.T) {
	s := newTestServer(dispatchFunc(func(e dispatcher.Event) (any, error) {
		resp := e.Payload.(handlers.Responder)
		go resp.Send(nmea.Error(handlers.CodeNoWaypoints, "no waypoints"))
		return nil, nil
	}))
	c, r := pipeClient(t, s)

	writeLine(t, c, "$PSEAC,W\r\n")
	st := readSentence(t, c, r)
	assert.Equal(t, handlers.CodeNoWaypoints, st.Field(0))
}

func TestBroadcastReachesEveryClient(t *testing.T) {
	s := newTestServer(&recorder{})
	c1, r1 := pipeClient(t, s)
	c2, r2 := pipeClient(t, s)
	require.Eventually(t, func() bool { return s.Clients() == 2 }, time.Second, time.Millisecond)

	line := nmea.Build("PSEAA", "0.0", "0.0", "90.0")
	assert.Equal(t, 0, s.Broadcast(line))

	assert.Equal(t, "PSEAA", readSentence(t, c1, r1).Type)
	assert.Equal(t, "PSEAA", readSentence(t, c2, r2).Type)
}

func TestSlowClientDropsInsteadOfBlocking(t *testing.T) {
	s := New(Config{SendBuffer: 1}, &recorder{})
	pipeClient(t, s) // never read

	done := make(chan int)
	go func() {
		dropped := 0
		for i := 0; i < 10; i++ {
			dropped += s.Broadcast(nmea.Build("PSEAA", "0.0"))
		}
		done <- dropped
	}()

	select {
	case dropped := <-done:
		assert.Greater(t, dropped, 0)
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow client")
	}
}

type fakeSource struct {
	ch channel.Channel[core.Telemetry]
}

func (f *fakeSource) Subscribe(int) (channel.Receiver[core.Telemetry], func()) {
	return f.ch, func() {}
}

func TestPublishSendsTelemetryFrame(t *testing.T) {
	s := newTestServer(&recorder{})
	c, r := pipeClient(t, s)

	src := &fakeSource{ch: channel.NewBuffered[core.Telemetry](1)}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	published := make(chan error, 1)
	go func() { published <- s.Publish(ctx, src) }()

	src.ch.Send(core.Telemetry{
		Time:  time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		State: core.VehicleState{Position: core.GeoPoint{Lat: 25.758326, Lon: -80.373864}, Heading: 12.5},
		Mode:  core.ModeThruster,
	})

	gga := readSentence(t, c, r)
	assert.Equal(t, nmea.TypeGGA, gga.Type)
	assert.Equal(t, "100000.00", gga.Field(0))
	assert.Equal(t, nmea.TypeAttitude, readSentence(t, c, r).Type)
	status := readSentence(t, c, r)
	assert.Equal(t, nmea.TypeStatus, status.Type)
	assert.Equal(t, "T", status.Field(0))

	cancel()
	select {
	case err := <-published:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("publish did not stop")
	}
}

func TestServeStopsOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	s := newTestServer(&recorder{})
	ctx, cancel := context.WithCancel(context.Background())
	served := make(chan error, 1)
	go func() { served <- s.Serve(ctx, ln) }()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()

	_, err = conn.Write([]byte("$PSEAQ\r\n"))
	require.NoError(t, err)
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	line, err := bufio.NewReader(conn).ReadString('\n')
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(line, "$PSEAD,"))

	cancel()
	select {
	case err := <-served:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("serve did not stop")
	}
	assert.Equal(t, 0, s.Clients())
}

func TestSessionSendAfterClose(t *testing.T) {
	a, b := net.Pipe()
	defer b.Close()
	sess := newSession("x", a, 1)
	require.NoError(t, sess.Close())
	assert.False(t, sess.Send("late"))
	assert.NoError(t, sess.Close())
	select {
	case <-sess.Done():
	default:
		t.Fatal("done not closed")
	}
}
