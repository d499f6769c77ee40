// Package server speaks the boat's NMEA line protocol to TCP clients and to
// an optional serial device.
package server

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/surveyor-hil/asvsim/internal/channel"
	"github.com/surveyor-hil/asvsim/internal/dispatcher"
	"github.com/surveyor-hil/asvsim/internal/nmea"
	"github.com/surveyor-hil/asvsim/pkg/core"
)

// DefaultAddr is the protocol port the original boat interface listens on.
const DefaultAddr = ":8003"

// maxLine bounds one protocol line.
const maxLine = 4096

// errLineTooLong is answered with a BAD_SENTENCE reply. The session stays
// open and reading resumes after the next line break.
var errLineTooLong = fmt.Errorf("%w: line longer than %d bytes", nmea.ErrMalformed, maxLine)

// Dispatcher routes a parsed sentence to its handler.
type Dispatcher interface {
	Dispatch(e dispatcher.Event) (any, error)
}

// TelemetrySource publishes one frame per simulation tick.
type TelemetrySource interface {
	Subscribe(buffer int) (channel.Receiver[core.Telemetry], func())
}

// ErrorCoder maps a dispatch error to its PSEAE code.
type ErrorCoder func(error) string

// Config configures the server.
type Config struct {
	Addr       string
	SendBuffer int
	Logger     *slog.Logger
	ErrorCode  ErrorCoder
}

// Server accepts clients, feeds their sentences to the dispatcher and
// broadcasts telemetry to every client.
type Server struct {
	cfg Config
	d   Dispatcher
	log *slog.Logger

	mu       sync.Mutex
	sessions map[*Session]struct{}
	next     int
	wg       sync.WaitGroup
}

// New creates a server. Zero config fields take defaults.
func New(cfg Config, d Dispatcher) *Server {
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}
	if cfg.SendBuffer <= 0 {
		cfg.SendBuffer = 64
	}
	if cfg.ErrorCode == nil {
		cfg.ErrorCode = func(error) string { return "BAD_ARGS" }
	}
	log := cfg.Logger
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Server{
		cfg:      cfg,
		d:        d,
		log:      log,
		sessions: make(map[*Session]struct{}),
	}
}

// ListenAndServe listens on the configured address and serves until ctx is
// done.
func (s *Server) ListenAndServe(ctx context.Context) error {
	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections from ln until ctx is done. It closes ln and
// every session before returning.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.log.Info("protocol server listening", "addr", ln.Addr().String())

	stop := context.AfterFunc(ctx, func() { ln.Close() })
	defer stop()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				s.closeAll()
				s.wg.Wait()
				return nil
			}
			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			s.closeAll()
			s.wg.Wait()
			return fmt.Errorf("accept: %w", err)
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.ServeConn(ctx, "tcp:"+conn.RemoteAddr().String(), conn)
		}()
	}
}

// ServeConn runs one client session on rw until the client disconnects or
// ctx is done.
func (s *Server) ServeConn(ctx context.Context, name string, rw io.ReadWriteCloser) {
	sess := s.add(name, rw)
	defer s.remove(sess)

	stop := context.AfterFunc(ctx, func() { sess.Close() })
	defer stop()

	writeErr := make(chan error, 1)
	go func() { writeErr <- sess.writeLoop() }()

	s.log.Info("client connected", "client", sess.ID())

	reader := bufio.NewReaderSize(rw, maxLine)
	for {
		line, err := readLine(reader)
		if errors.Is(err, errLineTooLong) {
			s.reply(sess, err)
			continue
		}
		if err != nil {
			if !isClosed(err) {
				s.log.Warn("client read failed", "client", sess.ID(), "error", err)
			}
			break
		}
		if line != "" {
			s.handleLine(sess, line)
		}
	}

	sess.Close()
	if err := <-writeErr; err != nil && !isClosed(err) {
		s.log.Warn("client write failed", "client", sess.ID(), "error", err)
	}
	s.log.Info("client disconnected", "client", sess.ID())
}

func (s *Server) handleLine(sess *Session, line string) {
	st, err := nmea.Parse(line)
	if err != nil {
		s.reply(sess, err)
		return
	}

	result, err := s.d.Dispatch(dispatcher.Event{
		Command:   st.Type,
		Args:      st.Fields,
		Source:    sess.ID(),
		Payload:   sess,
		Timestamp: time.Now(),
	})
	if err != nil {
		s.reply(sess, err)
		return
	}
	if out, ok := result.(string); ok && out != "" {
		sess.Send(out)
	}
}

func (s *Server) reply(sess *Session, err error) {
	code := s.cfg.ErrorCode(err)
	s.log.Debug("sentence rejected", "client", sess.ID(), "code", code, "error", err)
	if !sess.Send(nmea.Error(code, err.Error())) {
		s.log.Warn("client queue full, dropping error reply", "client", sess.ID())
	}
}

// Broadcast queues line for every client and returns how many clients
// could not take it.
func (s *Server) Broadcast(line string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	dropped := 0
	for sess := range s.sessions {
		if !sess.Send(line) {
			dropped++
		}
	}
	return dropped
}

// Publish broadcasts every telemetry frame from src until ctx is done or
// the source closes.
func (s *Server) Publish(ctx context.Context, src TelemetrySource) error {
	sub, unsubscribe := src.Subscribe(16)
	defer unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return nil
		case t, ok := <-sub.Receive():
			if !ok {
				return nil
			}
			if dropped := s.Broadcast(nmea.TelemetryFrame(t)); dropped > 0 {
				s.log.Debug("telemetry dropped for slow clients", "clients", dropped, "tick", t.Tick)
			}
		}
	}
}

// Clients is the number of connected sessions.
func (s *Server) Clients() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

func (s *Server) add(name string, rw io.ReadWriteCloser) *Session {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.next++
	sess := newSession(fmt.Sprintf("%s#%d", name, s.next), rw, s.cfg.SendBuffer)
	s.sessions[sess] = struct{}{}
	return sess
}

func (s *Server) remove(sess *Session) {
	s.mu.Lock()
	delete(s.sessions, sess)
	s.mu.Unlock()
	sess.Close()
}

func (s *Server) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sess := range s.sessions {
		sess.Close()
	}
}

// readLine returns the next line without its terminator. An overlong line
// is consumed up to its line break and reported as errLineTooLong.
func readLine(r *bufio.Reader) (string, error) {
	chunk, err := r.ReadSlice('\n')
	if errors.Is(err, bufio.ErrBufferFull) {
		for errors.Is(err, bufio.ErrBufferFull) {
			_, err = r.ReadSlice('\n')
		}
		if err != nil {
			return "", err
		}
		return "", errLineTooLong
	}
	if err != nil && (!errors.Is(err, io.EOF) || len(chunk) == 0) {
		return "", err
	}
	return strings.TrimRight(string(chunk), "\r\n"), nil
}

func isClosed(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, io.EOF) || errors.Is(err, io.ErrClosedPipe)
}
