package arena

import "errors"

// Errors returned by Arena operations.
var (
	// ErrOversize indicates a requested payload size the arena cannot
	// serve; Acquire returns it for a negative size. The arena has no
	// upper size bound of its own (packet.Codec checks MaxPacketSize
	// before acquiring). Callers should treat this as a fatal framing
	// error for the connection that requested it, not retry.
	ErrOversize = errors.New("arena: requested size exceeds maximum")

	// ErrClosed indicates Acquire was called after Close.
	ErrClosed = errors.New("arena: closed")
)
