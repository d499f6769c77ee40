// Package dispatcher routes protocol sentences and simulator events to
// their handlers, optionally through bounded per-command queues.
package dispatcher

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"
)

var (
	// ErrUnknownCommand is returned when no handler is registered.
	ErrUnknownCommand = errors.New("unknown command")
	// ErrQueueFull is returned by non-blocking buffered handlers.
	ErrQueueFull = errors.New("queue full")
	// ErrClosed is returned by buffered handlers after Close.
	ErrClosed = errors.New("dispatcher closed")
	// ErrHandlerPanic wraps a recovered handler panic.
	ErrHandlerPanic = errors.New("handler panic")
)

// Queued is the result of a dispatch that went to a buffered handler.
const Queued = "queued"

// Event is a routed message: a protocol sentence from a client, or an
// internal simulator event carried in Payload.
type Event struct {
	Command   string
	Args      []string
	Source    string
	Payload   any
	Timestamp time.Time
}

// HandlerFunc processes an event and returns a result.
type HandlerFunc func(Event) (any, error)

// Logger receives dispatcher diagnostics as key/value pairs.
type Logger interface {
	Debug(msg string, keysAndValues ...any)
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
	Error(msg string, keysAndValues ...any)
}

type nopLogger struct{}

func (nopLogger) Debug(string, ...any) {}
func (nopLogger) Info(string, ...any)  {}
func (nopLogger) Warn(string, ...any)  {}
func (nopLogger) Error(string, ...any) {}

// Option configures handler registration.
type Option func(*options)

type options struct {
	bufferSize int
	blocking   bool
	logged     bool
}

// Buffered runs the handler on its own goroutine behind a queue of size
// events. Dispatch then returns Queued without waiting for the result.
func Buffered(size int) Option {
	return func(o *options) { o.bufferSize = size }
}

// Blocking makes a full buffered queue wait for room instead of rejecting
// the event with ErrQueueFull.
func Blocking() Option {
	return func(o *options) { o.blocking = true }
}

// Logged logs every event and its outcome.
func Logged() Option {
	return func(o *options) { o.logged = true }
}

// Dispatcher routes events to registered handlers.
type Dispatcher struct {
	logger  Logger
	metrics *metrics

	mu       sync.RWMutex
	handlers map[string]HandlerFunc
	queues   map[string]*queue
	closed   bool
	wg       sync.WaitGroup
}

// New creates a Dispatcher. A nil logger discards diagnostics. Metrics go
// to the global OTel meter provider, a no-op until one is installed.
func New(logger Logger) (*Dispatcher, error) {
	if logger == nil {
		logger = nopLogger{}
	}
	d := &Dispatcher{
		logger:   logger,
		handlers: make(map[string]HandlerFunc),
		queues:   make(map[string]*queue),
	}
	m, err := newMetrics(d)
	if err != nil {
		return nil, err
	}
	d.metrics = m
	return d, nil
}

// Register adds the handler for command, replacing any earlier one.
func (d *Dispatcher) Register(command string, h HandlerFunc, opts ...Option) {
	o := options{}
	for _, opt := range opts {
		opt(&o)
	}

	handler := d.guarded(command, h)
	if o.bufferSize > 0 {
		handler = d.buffered(command, o.bufferSize, o.blocking, handler)
	}
	if o.logged {
		handler = d.logged(command, handler)
	}

	d.mu.Lock()
	_, replaced := d.handlers[command]
	d.handlers[command] = handler
	d.mu.Unlock()

	if replaced {
		d.logger.Warn("handler replaced", "command", command)
	}
}

// Dispatch routes an event to its registered handler.
func (d *Dispatcher) Dispatch(e Event) (any, error) {
	d.mu.RLock()
	h, ok := d.handlers[e.Command]
	d.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownCommand, e.Command)
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	return h(e)
}

// HasHandler returns true if a handler is registered for the command.
func (d *Dispatcher) HasHandler(command string) bool {
	d.mu.RLock()
	defer d.mu.RUnlock()
	_, ok := d.handlers[command]
	return ok
}

// Commands lists the registered commands in sorted order.
func (d *Dispatcher) Commands() []string {
	d.mu.RLock()
	out := make([]string, 0, len(d.handlers))
	for cmd := range d.handlers {
		out = append(out, cmd)
	}
	d.mu.RUnlock()
	sort.Strings(out)
	return out
}

// guarded turns a handler panic into an ErrHandlerPanic error and records
// the handler's duration and outcome.
func (d *Dispatcher) guarded(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (result any, err error) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				result, err = nil, fmt.Errorf("%w: %s: %v", ErrHandlerPanic, command, r)
			}
			d.metrics.handled(command, time.Since(start), err)
		}()
		return h(e)
	}
}

func (d *Dispatcher) logged(command string, h HandlerFunc) HandlerFunc {
	return func(e Event) (any, error) {
		start := time.Now()
		d.logger.Debug("handling event", "command", command, "source", e.Source, "args", len(e.Args))

		result, err := h(e)
		if err != nil {
			d.logger.Error("event failed", "command", command, "source", e.Source, "duration", time.Since(start), "error", err)
		} else {
			d.logger.Debug("event complete", "command", command, "duration", time.Since(start))
		}
		return result, err
	}
}
