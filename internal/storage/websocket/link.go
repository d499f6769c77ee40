package websocket

import (
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	ws "github.com/gorilla/websocket"

	"github.com/surveyor-hil/asvsim/pkg/streaming"
)

const (
	outboxSize  = 4096
	ackBuffer   = 16
	redialLimit = 10
	redialMax   = 30 * time.Second
	writeWait   = 10 * time.Second
	ackTimeout  = 10 * time.Second
	pingEvery   = 30 * time.Second
)

var errLinkClosed = errors.New("ingest link closed")

var dialer = &ws.Dialer{HandshakeTimeout: writeWait}

// link keeps one connection to the ingest server alive. A single
// goroutine owns the socket for writing and replaces it when it fails,
// replaying the session announcement first.
type link struct {
	log    *slog.Logger
	target string

	outbox chan []byte
	acks   chan streaming.AckMessage

	stop     chan struct{}
	stopOnce sync.Once
	done     chan struct{}
	started  atomic.Bool

	mu    sync.Mutex
	hello []byte

	dropped atomic.Uint64
}

func newLink(logger *slog.Logger) *link {
	return &link{
		log:    logger,
		outbox: make(chan []byte, outboxSize),
		acks:   make(chan streaming.AckMessage, ackBuffer),
		stop:   make(chan struct{}),
		done:   make(chan struct{}),
	}
}

// ingestURL validates rawURL and carries the secret as a query parameter.
func ingestURL(rawURL, secret string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("ingest URL: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return "", fmt.Errorf("ingest URL: unsupported scheme %q", u.Scheme)
	}
	if secret != "" {
		q := u.Query()
		q.Set("secret", secret)
		u.RawQuery = q.Encode()
	}
	return u.String(), nil
}

// open makes the first connection synchronously so configuration errors
// surface at Init.
func (l *link) open(rawURL, secret string) error {
	target, err := ingestURL(rawURL, secret)
	if err != nil {
		return err
	}
	conn, _, err := dialer.Dial(target, nil)
	if err != nil {
		return fmt.Errorf("ingest dial: %w", err)
	}
	l.target = target
	l.started.Store(true)
	go l.run(conn)
	return nil
}

func (l *link) run(conn *ws.Conn) {
	defer close(l.done)
	for conn != nil {
		err := l.pump(conn)
		conn.Close()
		if err == nil {
			return
		}
		l.log.Warn("Ingest connection lost", "error", err)
		conn = l.redial()
	}
}

// pump writes queued messages and pings until the socket fails or the link
// is stopped. A nil return means stopped.
func (l *link) pump(conn *ws.Conn) error {
	readErr := make(chan error, 1)
	go func() { readErr <- l.readAcks(conn) }()

	ping := time.NewTicker(pingEvery)
	defer ping.Stop()

	for {
		kind, data := ws.TextMessage, []byte(nil)
		select {
		case <-l.stop:
			conn.WriteControl(ws.CloseMessage,
				ws.FormatCloseMessage(ws.CloseNormalClosure, ""),
				time.Now().Add(time.Second))
			return nil
		case err := <-readErr:
			return err
		case data = <-l.outbox:
		case <-ping.C:
			kind = ws.PingMessage
		}
		if err := write(conn, kind, data); err != nil {
			return err
		}
	}
}

func write(conn *ws.Conn, kind int, data []byte) error {
	if err := conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return conn.WriteMessage(kind, data)
}

func (l *link) readAcks(conn *ws.Conn) error {
	for {
		_, msg, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		ack, ok := streaming.DecodeAck(msg)
		if !ok {
			l.log.Debug("Ignoring ingest message", "raw", string(msg))
			continue
		}
		select {
		case l.acks <- ack:
		default:
			l.log.Debug("Ack buffer full", "for", ack.For)
		}
	}
}

// redial retries with doubling backoff. It returns nil when the link is
// stopped or every attempt failed.
func (l *link) redial() *ws.Conn {
	wait := time.Second
	for attempt := 1; attempt <= redialLimit; attempt++ {
		select {
		case <-l.stop:
			return nil
		case <-time.After(wait):
		}
		wait = min(wait*2, redialMax)

		conn, _, err := dialer.Dial(l.target, nil)
		if err != nil {
			l.log.Warn("Ingest redial failed", "attempt", attempt, "error", err)
			continue
		}
		if hello := l.session(); hello != nil {
			if err := write(conn, ws.TextMessage, hello); err != nil {
				l.log.Warn("Session replay failed", "attempt", attempt, "error", err)
				conn.Close()
				continue
			}
		}
		l.log.Info("Ingest reconnected", "attempt", attempt)
		return conn
	}
	l.log.Error("Giving up on ingest server", "attempts", redialLimit)
	return nil
}

func (l *link) setSession(hello []byte) {
	l.mu.Lock()
	l.hello = hello
	l.mu.Unlock()
}

func (l *link) session() []byte {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.hello
}

// send queues data without blocking. Frames are dropped while the outbox
// is full.
func (l *link) send(data []byte) bool {
	select {
	case l.outbox <- data:
		return true
	default:
	}
	if n := l.dropped.Add(1); n == 1 || n%1000 == 0 {
		l.log.Warn("Ingest outbox full, dropping", "dropped", n)
	}
	return false
}

// sendAndWait queues data and waits for the server to ack ackFor.
func (l *link) sendAndWait(data []byte, ackFor string, timeout time.Duration) error {
	if !l.send(data) {
		return fmt.Errorf("%s: outbox full", ackFor)
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	for {
		select {
		case ack := <-l.acks:
			if ack.For == ackFor {
				return nil
			}
		case <-timer.C:
			return fmt.Errorf("%s: timeout waiting for ack", ackFor)
		case <-l.stop:
			return fmt.Errorf("%s: %w", ackFor, errLinkClosed)
		}
	}
}

// close stops the link and waits for the socket to be released.
func (l *link) close() error {
	l.stopOnce.Do(func() { close(l.stop) })
	if l.started.Load() {
		<-l.done
	}
	return nil
}
