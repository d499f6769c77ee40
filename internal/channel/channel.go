// Package channel provides the bounded queues between the simulation loop
// and its consumers.
package channel

// Receiver provides read access to a channel.
type Receiver[T any] interface {
	Receive() <-chan T
	Len() int
}

// Sender provides write access to a channel.
type Sender[T any] interface {
	Send(T) bool
	TrySend(T) bool
}

// Channel combines read and write access.
type Channel[T any] interface {
	Receiver[T]
	Sender[T]
	Close()
}

// New creates a channel holding up to size values. Sizes below one are
// raised to one.
func New[T any](size int) Channel[T] {
	return NewBuffered[T](size)
}
