// Package packet implements the binary wire format: a fixed 22-byte
// little-endian header, CRC32 payload integrity, and arena-backed
// payload ownership.
//
// Header layout (offsets, little-endian):
//
//	0  Length    uint16  total frame bytes, header + payload
//	2  OpCode    uint16  application routing key
//	4  Number    uint8   sequence tag (0 at construction => timestamp mod 256)
//	5  Type      uint8   payload schema family, opaque to this package
//	6  Flags     uint8   bitfield (FlagCompressed, FlagEncrypted, ...)
//	7  Priority  uint8   scheduling hint
//	8  Reserved  uint16  zero, reserved for future use
//	10 Checksum  uint32  CRC32 (IEEE) of payload bytes
//	14 Timestamp int64   Unix milliseconds at construction
//	22 Payload   []byte  Length-22 bytes
//
// The named fields account for 20 of the header's 22 bytes; the
// remaining 2-byte Reserved field pads the header to the wire size the
// protocol mandates and is always zero on encode, ignored on decode.
package packet

import "time"

// HeaderSize is the fixed size, in bytes, of every frame's header.
const HeaderSize = 22

// DefaultMaxPacketSize is used when a Codec is constructed with a
// non-positive maximum.
const DefaultMaxPacketSize = 16 * 1024

// Flag bits. The core treats these as opaque scheduling/transport hints;
// their semantics belong to the application layer.
const (
	FlagCompressed uint8 = 1 << 0
	FlagEncrypted  uint8 = 1 << 1
)

// Packet is a discrete message exchanged on the wire.
//
// A Packet owns its Payload by value: once constructed, Payload must not
// be mutated. Packets built by Codec.New or Codec.Decode are backed by an
// arena.Payload (a pooled buffer for small payloads, a direct allocation
// for large ones) released via Codec.Release.
type Packet struct {
	Length    uint16
	OpCode    uint16
	Number    uint8
	Type      uint8
	Flags     uint8
	Priority  uint8
	Checksum  uint32
	Timestamp int64
	Payload   []byte

	owner releaser
}

// releaser abstracts the arena payload handle so this package does not
// need to import arena directly for the Packet struct's exported shape.
type releaser interface {
	release()
}

// nowMillis is a seam so tests can control the clock; in production it
// is simply time.Now().UnixMilli().
var nowMillis = func() int64 { return time.Now().UnixMilli() }

// resolveConstructionFields applies the documented zero-substitution
// normalization: Timestamp first (so Number's derivation is based on the
// final timestamp), then Number.
func resolveConstructionFields(number uint8, timestamp int64) (uint8, int64) {
	if timestamp == 0 {
		timestamp = nowMillis()
	}
	if number == 0 {
		number = uint8(timestamp % 256)
	}
	return number, timestamp
}

// HasFlag reports whether every bit in flags is set on the packet.
func (p *Packet) HasFlag(flags uint8) bool {
	return p.Flags&flags == flags
}
