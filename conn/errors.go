package conn

import "errors"

// Errors returned by Connection operations.
var (
	// ErrClosed indicates Send was called on a Connection that is not
	// Open (already Closing or Closed).
	ErrClosed = errors.New("conn: connection closed")

	// ErrQueueFull indicates the tx queue is at capacity and the packet
	// was not enqueued. The listener logs it; its backpressure control
	// works from the queue depth (TxLen), not from this error.
	ErrQueueFull = errors.New("conn: tx queue full")
)
