package server

import (
	"bufio"
	"io"
	"sync"

	"github.com/surveyor-hil/asvsim/internal/channel"
)

// Session is one connected client: a TCP connection or the serial bridge.
// Outgoing lines go through a bounded queue so a stalled client never
// blocks the simulation or the other clients.
type Session struct {
	id   string
	conn io.ReadWriteCloser
	out  channel.Channel[string]

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func newSession(id string, conn io.ReadWriteCloser, buffer int) *Session {
	if buffer <= 0 {
		buffer = 1
	}
	return &Session{
		id:   id,
		conn: conn,
		out:  channel.New[string](buffer),
		done: make(chan struct{}),
	}
}

// ID identifies the client in logs and dispatcher events.
func (c *Session) ID() string { return c.id }

// Send queues a framed line for the client. It reports false when the
// queue is full or the session has ended.
func (c *Session) Send(line string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return false
	}
	return c.out.TrySend(line)
}

// Pending is the number of queued outgoing lines.
func (c *Session) Pending() int { return c.out.Len() }

// Done is closed once the session has ended.
func (c *Session) Done() <-chan struct{} { return c.done }

// Close ends the session. It is safe to call more than once.
func (c *Session) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.out.Close()
	close(c.done)
	return c.conn.Close()
}

// writeLoop drains the outgoing queue until the session is closed.
func (c *Session) writeLoop() error {
	w := bufio.NewWriter(c.conn)
	for line := range c.out.Receive() {
		if _, err := w.WriteString(line); err != nil {
			return err
		}
		if c.out.Len() == 0 {
			if err := w.Flush(); err != nil {
				return err
			}
		}
	}
	return nil
}
