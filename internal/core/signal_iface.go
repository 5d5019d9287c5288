package core

import "errors"

var (
	ErrBackpressure = errors.New("backpressure")
	ErrConnClosed   = errors.New("connection closed")
)

// Frame is one encoded outbound message.
type Frame []byte

// SignalConnection is the outbound side of one client transport.
// It is owned by the adapter, which must Close it.
type SignalConnection interface {
	// TrySend enqueues without blocking. It returns ErrBackpressure when the
	// outbound buffer is full and ErrConnClosed after Close.
	TrySend(Frame) error
	Close()
}
