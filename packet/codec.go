package packet

import (
	"encoding/binary"
	"hash/crc32"
	"io"

	"github.com/phcnguyen/Nalix/arena"
)

// Codec encodes and decodes frames against a fixed arena and maximum
// packet size.
type Codec struct {
	arena         *arena.Arena
	maxPacketSize int
}

// NewCodec creates a Codec. maxPacketSize bounds both decode (frames
// whose declared Length exceeds it fail ErrOversize) and encode (the
// same ceiling applies to header+payload).
func NewCodec(a *arena.Arena, maxPacketSize int) *Codec {
	if maxPacketSize <= 0 {
		maxPacketSize = DefaultMaxPacketSize
	}
	return &Codec{arena: a, maxPacketSize: maxPacketSize}
}

// MaxPacketSize returns the codec's configured ceiling.
func (c *Codec) MaxPacketSize() int {
	return c.maxPacketSize
}

// arenaOwner adapts an *arena.Payload to the Packet.owner releaser
// interface.
type arenaOwner struct {
	a *arena.Arena
	p *arena.Payload
}

func (o arenaOwner) release() {
	o.a.Release(o.p)
}

// New constructs a Packet from application-supplied fields, applying the
// documented Number/Timestamp zero-substitution and copying payload into
// arena-owned storage. Fails ErrOversize if the frame the payload would
// produce exceeds MaxPacketSize.
func (c *Codec) New(opcode uint16, number, typ, flags, priority uint8, timestamp int64, payload []byte) (*Packet, error) {
	if HeaderSize+len(payload) > c.maxPacketSize {
		return nil, ErrOversize
	}

	number, timestamp = resolveConstructionFields(number, timestamp)

	p, err := c.arena.Acquire(len(payload))
	if err != nil {
		return nil, err
	}
	copy(p.Bytes, payload)

	return &Packet{
		OpCode:    opcode,
		Number:    number,
		Type:      typ,
		Flags:     flags,
		Priority:  priority,
		Timestamp: timestamp,
		Payload:   p.Bytes,
		owner:     arenaOwner{a: c.arena, p: p},
	}, nil
}

// Release returns a decoded or constructed Packet's payload storage to
// the arena. Safe to call on a Packet with no arena-owned payload.
func (c *Codec) Release(p *Packet) {
	if p == nil || p.owner == nil {
		return
	}
	p.owner.release()
}

// Decode parses one frame from buf. buf must contain at least the
// frame's declared Length bytes (buf may be longer; only buf[:Length] is
// consumed).
//
// CRC32 is always recomputed over the payload and compared to the
// header's Checksum; a mismatch fails ErrIntegrity and never yields a
// Packet, regardless of what the wire header claims.
func (c *Codec) Decode(buf []byte) (*Packet, error) {
	if len(buf) < HeaderSize {
		return nil, ErrShortFrame
	}

	length := binary.LittleEndian.Uint16(buf[0:2])
	if length < HeaderSize {
		return nil, ErrShortFrame
	}
	if int(length) > c.maxPacketSize {
		return nil, ErrOversize
	}
	if len(buf) < int(length) {
		return nil, ErrShortFrame
	}

	opcode := binary.LittleEndian.Uint16(buf[2:4])
	number := buf[4]
	typ := buf[5]
	flags := buf[6]
	priority := buf[7]
	// buf[8:10] is reserved, ignored.
	checksum := binary.LittleEndian.Uint32(buf[10:14])
	timestamp := int64(binary.LittleEndian.Uint64(buf[14:22]))

	payloadBytes := buf[HeaderSize:length]
	if crc32.ChecksumIEEE(payloadBytes) != checksum {
		return nil, ErrIntegrity
	}

	number, timestamp = resolveConstructionFields(number, timestamp)

	owned, err := c.arena.Acquire(len(payloadBytes))
	if err != nil {
		return nil, err
	}
	copy(owned.Bytes, payloadBytes)

	return &Packet{
		Length:    length,
		OpCode:    opcode,
		Number:    number,
		Type:      typ,
		Flags:     flags,
		Priority:  priority,
		Checksum:  checksum,
		Timestamp: timestamp,
		Payload:   owned.Bytes,
		owner:     arenaOwner{a: c.arena, p: owned},
	}, nil
}

// Encode writes p's header and payload to w, computing Length and
// Checksum (and applying the Number/Timestamp zero-substitution
// defensively, in case p was built without going through New or
// Decode). Fails ErrOversize if the resulting frame would exceed
// MaxPacketSize.
func (c *Codec) Encode(p *Packet, w io.Writer) error {
	length := HeaderSize + len(p.Payload)
	if length > c.maxPacketSize {
		return ErrOversize
	}

	p.Number, p.Timestamp = resolveConstructionFields(p.Number, p.Timestamp)
	p.Checksum = crc32.ChecksumIEEE(p.Payload)
	p.Length = uint16(length)

	var header [HeaderSize]byte
	binary.LittleEndian.PutUint16(header[0:2], p.Length)
	binary.LittleEndian.PutUint16(header[2:4], p.OpCode)
	header[4] = p.Number
	header[5] = p.Type
	header[6] = p.Flags
	header[7] = p.Priority
	// header[8:10] reserved, left zero.
	binary.LittleEndian.PutUint32(header[10:14], p.Checksum)
	binary.LittleEndian.PutUint64(header[14:22], uint64(p.Timestamp))

	if _, err := w.Write(header[:]); err != nil {
		return err
	}
	if len(p.Payload) == 0 {
		return nil
	}
	_, err := w.Write(p.Payload)
	return err
}
