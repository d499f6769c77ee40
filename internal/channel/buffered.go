package channel

import "sync"

// Buffered is a bounded channel that tolerates sends after Close: they
// report false instead of panicking.
type Buffered[T any] struct {
	mu     sync.RWMutex
	ch     chan T
	closed bool
}

// NewBuffered creates a new buffered channel with the given size
func NewBuffered[T any](size int) *Buffered[T] {
	if size < 1 {
		size = 1
	}
	return &Buffered[T]{ch: make(chan T, size)}
}

// Send blocks until v is queued. It returns false once the channel is
// closed.
//
// A Send blocked on a full buffer holds off Close until a receiver makes
// room.
func (b *Buffered[T]) Send(v T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	b.ch <- v
	return true
}

// TrySend queues v without blocking and reports whether it was taken.
func (b *Buffered[T]) TrySend(v T) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return false
	}
	select {
	case b.ch <- v:
		return true
	default:
		return false
	}
}

// Receive returns the receive-only channel. It is closed by Close after
// the queued values.
func (b *Buffered[T]) Receive() <-chan T {
	return b.ch
}

// Len returns the number of items currently in the buffer
func (b *Buffered[T]) Len() int {
	return len(b.ch)
}

// Cap is the buffer size.
func (b *Buffered[T]) Cap() int {
	return cap(b.ch)
}

// Close closes the channel. It is safe to call more than once.
func (b *Buffered[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	close(b.ch)
}
