package dispatcher

import "fmt"

// queue feeds one buffered handler.
type queue struct {
	events   chan Event
	blocking bool
	closed   bool // guarded by Dispatcher.mu
}

func (d *Dispatcher) buffered(command string, size int, blocking bool, h HandlerFunc) HandlerFunc {
	q := &queue{events: make(chan Event, size), blocking: blocking}

	d.mu.Lock()
	if old, ok := d.queues[command]; ok {
		old.closed = true
		close(old.events)
	}
	d.queues[command] = q
	d.mu.Unlock()

	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		for e := range q.events {
			if _, err := h(e); err != nil {
				d.logger.Error("buffered handler failed", "command", command, "source", e.Source, "error", err)
			}
		}
	}()

	return func(e Event) (any, error) {
		d.mu.RLock()
		defer d.mu.RUnlock()
		if d.closed || q.closed {
			return nil, ErrClosed
		}
		if q.blocking {
			q.events <- e
			return Queued, nil
		}
		select {
		case q.events <- e:
			return Queued, nil
		default:
			d.metrics.drop(command)
			return nil, fmt.Errorf("%w: %s", ErrQueueFull, command)
		}
	}
}

// QueueLen is the number of events waiting for command's buffered
// handler, or 0 when it has none.
func (d *Dispatcher) QueueLen(command string) int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if q, ok := d.queues[command]; ok {
		return len(q.events)
	}
	return 0
}

// Close stops accepting buffered events and waits until every buffered
// handler has drained its queue. Unbuffered handlers keep working.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	for _, q := range d.queues {
		q.closed = true
		close(q.events)
	}
	d.mu.Unlock()

	d.wg.Wait()
}
