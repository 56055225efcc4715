// Package netstream reads length-prefixed packet frames from an
// arbitrarily fragmented byte source.
//
// Reader tolerates partial reads: it accumulates bytes into a growable
// per-connection buffer and only hands a slice to the packet codec once
// a complete frame has arrived. State lives entirely in the buffer, so
// Reader is restartable across suspensions (blocking reads) and,
// given a source that supports read deadlines, cancellation-aware.
package netstream

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"time"

	"github.com/phcnguyen/Nalix/packet"
)

// pollInterval bounds how long a blocking Read may run before Next
// re-checks ctx, when the underlying source supports read deadlines.
const pollInterval = 200 * time.Millisecond

// readChunkSize is how much is read into the accumulation buffer per
// underlying Read call.
const readChunkSize = 4096

// deadlineSetter is implemented by net.Conn and similar sources that can
// bound a blocking Read so Next can poll for context cancellation.
type deadlineSetter interface {
	SetReadDeadline(t time.Time) error
}

// Reader yields a lazy sequence of complete frames from src.
//
// A Reader is not safe for concurrent use by multiple goroutines; it is
// intended to be owned by a single connection's receive loop.
type Reader struct {
	src   io.Reader
	codec *packet.Codec
	buf   []byte
}

// NewReader creates a Reader over src, decoding frames with codec.
func NewReader(src io.Reader, codec *packet.Codec) *Reader {
	return &Reader{src: src, codec: codec}
}

// Next blocks until one complete frame has arrived, decodes it, and
// returns it. It returns ErrProtocolViolation if the next frame's
// declared Length is out of bounds (caller must close the connection),
// a *packet.Codec error (e.g. ErrIntegrity) if decoding the frame
// failed (caller may keep the connection open), or the underlying
// source's error (including io.EOF on peer close).
//
// On any decode error the frame is still discarded from the buffer: the
// stream resyncs by skipping the whole declared frame, not by
// byte-scanning for the next plausible header.
func (r *Reader) Next(ctx context.Context) (*packet.Packet, error) {
	for {
		if len(r.buf) >= 2 {
			length := binary.LittleEndian.Uint16(r.buf[0:2])
			if int(length) < packet.HeaderSize || int(length) > r.codec.MaxPacketSize() {
				return nil, ErrProtocolViolation
			}

			if len(r.buf) >= int(length) {
				frame := r.buf[:length]
				p, err := r.codec.Decode(frame)
				r.buf = r.buf[length:]
				return p, err
			}
		}

		if err := r.fill(ctx); err != nil {
			return nil, err
		}
	}
}

// fill reads more bytes into the accumulation buffer, respecting ctx
// cancellation when src supports read deadlines.
func (r *Reader) fill(ctx context.Context) error {
	ds, pollable := r.src.(deadlineSetter)

	chunk := make([]byte, readChunkSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		if pollable {
			_ = ds.SetReadDeadline(time.Now().Add(pollInterval))
		}

		n, err := r.src.Read(chunk)
		if n > 0 {
			r.buf = append(r.buf, chunk[:n]...)
			return nil
		}
		if err == nil {
			continue
		}

		var netErr net.Error
		if pollable && errors.As(err, &netErr) && netErr.Timeout() {
			continue
		}

		return err
	}
}

// Close discards any partially-buffered frame. Safe to call more than
// once.
func (r *Reader) Close() {
	r.buf = nil
}
