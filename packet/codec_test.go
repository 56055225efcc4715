package packet

import (
	"bytes"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/phcnguyen/Nalix/arena"
)

func newTestCodec(t *testing.T, maxPacketSize int) *Codec {
	t.Helper()
	a := arena.New(1024, time.Hour)
	t.Cleanup(a.Close)
	return NewCodec(a, maxPacketSize)
}

// TestHappyRoundTrip is end-to-end scenario 1: opcode 0x0001, number 7,
// payload "hello" encodes to 27 bytes with CRC 0x3610A686.
func TestHappyRoundTrip(t *testing.T) {
	c := newTestCodec(t, 0)

	p, err := c.New(0x0001, 7, 0, 0, 0, 1000, []byte("hello"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	var buf bytes.Buffer
	if err := c.Encode(p, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	if buf.Len() != 27 {
		t.Fatalf("encoded length = %d, want 27", buf.Len())
	}

	b := buf.Bytes()
	if b[0] != 0x1B || b[1] != 0x00 {
		t.Fatalf("first two bytes = %#x %#x, want 0x1B 0x00", b[0], b[1])
	}

	if p.Checksum != 0x3610A686 {
		t.Fatalf("checksum = %#x, want 0x3610A686", p.Checksum)
	}

	decoded, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer c.Release(decoded)

	if diff := cmp.Diff(p, decoded, cmpopts.IgnoreUnexported(Packet{})); diff != "" {
		t.Fatalf("decoded packet mismatch (-want +got):\n%s", diff)
	}
}

// TestIntegrityFailure is end-to-end scenario 2: flipping the first
// payload byte yields ErrIntegrity. The stream-level advance past the
// dropped frame is covered by netstream's
// TestNextIntegrityErrorKeepsStreamPosition.
func TestIntegrityFailure(t *testing.T) {
	c := newTestCodec(t, 0)

	p, _ := c.New(0x0001, 7, 0, 0, 0, 1000, []byte("hello"))
	var buf bytes.Buffer
	_ = c.Encode(p, &buf)

	corrupted := append([]byte(nil), buf.Bytes()...)
	corrupted[HeaderSize] ^= 0xFF

	_, err := c.Decode(corrupted)
	if err != ErrIntegrity {
		t.Fatalf("err = %v, want ErrIntegrity", err)
	}
}

func TestEmptyPayloadFrame(t *testing.T) {
	c := newTestCodec(t, 0)

	p, _ := c.New(0x0002, 1, 0, 0, 0, 1000, nil)
	var buf bytes.Buffer
	_ = c.Encode(p, &buf)

	if buf.Len() != HeaderSize {
		t.Fatalf("encoded length = %d, want %d", buf.Len(), HeaderSize)
	}

	decoded, err := c.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer c.Release(decoded)

	if len(decoded.Payload) != 0 {
		t.Fatalf("payload length = %d, want 0", len(decoded.Payload))
	}
}

func TestDecodeShortFrame(t *testing.T) {
	c := newTestCodec(t, 0)

	if _, err := c.Decode(make([]byte, 10)); err != ErrShortFrame {
		t.Fatalf("err = %v, want ErrShortFrame", err)
	}

	buf := make([]byte, HeaderSize)
	// Length field declares a full frame that the buffer doesn't contain.
	buf[0] = 0x64
	if _, err := c.Decode(buf); err != ErrShortFrame {
		t.Fatalf("err = %v, want ErrShortFrame", err)
	}
}

func TestEncodeOversize(t *testing.T) {
	big := newTestCodec(t, 0)
	small := newTestCodec(t, HeaderSize+4)

	p, err := big.New(1, 1, 0, 0, 0, 1000, []byte("hello"))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	var buf bytes.Buffer
	if err := small.Encode(p, &buf); err != ErrOversize {
		t.Fatalf("Encode err = %v, want ErrOversize", err)
	}

	if err := big.Encode(p, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if _, err := small.Decode(buf.Bytes()); err != ErrOversize {
		t.Fatalf("Decode err = %v, want ErrOversize", err)
	}
}

func TestMaxPacketSizeBoundary(t *testing.T) {
	const maxSize = HeaderSize + 8

	c := newTestCodec(t, maxSize)

	p, err := c.New(1, 1, 0, 0, 0, 1000, bytes.Repeat([]byte{0xAB}, 8))
	if err != nil {
		t.Fatalf("New at boundary: %v", err)
	}
	var buf bytes.Buffer
	if err := c.Encode(p, &buf); err != nil {
		t.Fatalf("Encode at boundary: %v", err)
	}

	big := newTestCodec(t, 0)
	over, _ := big.New(1, 1, 0, 0, 0, 1000, bytes.Repeat([]byte{0xAB}, 9))
	var buf2 bytes.Buffer
	if err := c.Encode(over, &buf2); err != ErrOversize {
		t.Fatalf("Encode over boundary err = %v, want ErrOversize", err)
	}
}

func TestNewRejectsOversizePayload(t *testing.T) {
	c := newTestCodec(t, HeaderSize+4)

	if _, err := c.New(1, 1, 0, 0, 0, 1000, []byte("hello")); err != ErrOversize {
		t.Fatalf("New err = %v, want ErrOversize", err)
	}
}

func TestNumberZeroSubstitution(t *testing.T) {
	c := newTestCodec(t, 0)

	p, _ := c.New(1, 0, 0, 0, 0, 12345, nil)
	if p.Number != uint8(12345%256) {
		t.Fatalf("Number = %d, want %d", p.Number, uint8(12345%256))
	}
}

func TestTimestampZeroSubstitution(t *testing.T) {
	restore := nowMillis
	nowMillis = func() int64 { return 999999 }
	defer func() { nowMillis = restore }()

	c := newTestCodec(t, 0)
	p, _ := c.New(1, 0, 0, 0, 0, 0, nil)

	if p.Timestamp != 999999 {
		t.Fatalf("Timestamp = %d, want 999999", p.Timestamp)
	}
	if p.Number != uint8(999999%256) {
		t.Fatalf("Number = %d, want %d", p.Number, uint8(999999%256))
	}
}

func TestEncodeDecodeIdentity(t *testing.T) {
	c := newTestCodec(t, 0)

	p, _ := c.New(0x1234, 9, 3, FlagCompressed, 5, 42, []byte("round trip payload"))

	var buf bytes.Buffer
	if err := c.Encode(p, &buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	decoded, err := c.Decode(buf.Bytes())
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	defer c.Release(decoded)

	if diff := cmp.Diff(p, decoded, cmpopts.IgnoreUnexported(Packet{})); diff != "" {
		t.Fatalf("mismatch (-want +got):\n%s", diff)
	}
}
