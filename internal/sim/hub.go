package sim

import (
	"sync"

	"github.com/surveyor-hil/asvsim/internal/channel"
)

// hub fans values out to subscribers without ever blocking the publisher.
type hub[T any] struct {
	mu     sync.Mutex
	subs   map[int]channel.Channel[T]
	next   int
	closed bool
}

func newHub[T any]() *hub[T] {
	return &hub[T]{subs: make(map[int]channel.Channel[T])}
}

func (h *hub[T]) subscribe(buffer int) (channel.Receiver[T], func()) {
	if buffer <= 0 {
		buffer = 1
	}
	ch := channel.New[T](buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		ch.Close()
		return ch, func() {}
	}
	id := h.next
	h.next++
	h.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			defer h.mu.Unlock()
			if c, ok := h.subs[id]; ok {
				delete(h.subs, id)
				c.Close()
			}
		})
	}
}

// publish returns how many subscribers missed v.
func (h *hub[T]) publish(v T) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	dropped := 0
	for _, ch := range h.subs {
		if !ch.TrySend(v) {
			dropped++
		}
	}
	return dropped
}

func (h *hub[T]) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub[T]) close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for id, ch := range h.subs {
		delete(h.subs, id)
		ch.Close()
	}
}
