// Package queue holds commands between their arrival on a transport and
// the simulation tick that applies them.
package queue

import (
	"errors"
	"sync"
)

// ErrFull is returned by Push when a bounded queue is at capacity.
var ErrFull = errors.New("queue full")

// Queue is a FIFO safe for concurrent use. Producers Push one item at a
// time; the consumer takes everything at once with Drain.
type Queue[T any] struct {
	mu    sync.Mutex
	items []T
	limit int
}

// New returns an empty queue holding at most limit items. A limit of zero
// or less means unbounded.
func New[T any](limit int) *Queue[T] {
	return &Queue[T]{limit: max(limit, 0)}
}

func (q *Queue[T]) Push(item T) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.limit > 0 && len(q.items) >= q.limit {
		return ErrFull
	}
	q.items = append(q.items, item)
	return nil
}

// Drain returns the queued items oldest first and leaves the queue empty.
// It returns nil when nothing is queued.
func (q *Queue[T]) Drain() []T {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	out := q.items
	q.items = make([]T, 0, len(out))
	return out
}

func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Limit is zero for an unbounded queue.
func (q *Queue[T]) Limit() int {
	return q.limit
}
