package packet

import "errors"

// Error kinds surfaced by the codec, per the wire protocol's error
// handling design. Each is a discriminated sentinel, never a bare
// string, so callers can switch on errors.Is.
var (
	// ErrShortFrame indicates Length < HeaderSize, or the supplied
	// buffer is shorter than the frame's declared Length once fully
	// drained. Fatal for the connection that produced it.
	ErrShortFrame = errors.New("packet: short frame")

	// ErrOversize indicates HeaderSize+len(payload) exceeds the
	// codec's configured MaxPacketSize. Fatal for the connection.
	ErrOversize = errors.New("packet: frame exceeds maximum size")

	// ErrIntegrity indicates the recomputed CRC32 did not match the
	// header's Checksum field. Recoverable: the frame is dropped, the
	// connection stays open.
	ErrIntegrity = errors.New("packet: checksum mismatch")
)
