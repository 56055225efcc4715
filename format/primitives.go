package format

import (
	"encoding/binary"
	"io"
	"math"
)

// registerPrimitives installs formatters for every primitive type. All
// multi-byte encodings are little-endian, per the wire format's
// little-endian-everywhere rule.
func registerPrimitives(reg *Registry) {
	_ = Register(reg, Formatter[bool]{
		Serialize: func(w Writer, v bool) error {
			b := byte(0)
			if v {
				b = 1
			}
			_, err := w.Write([]byte{b})
			return err
		},
		Deserialize: func(r Reader) (bool, error) {
			var buf [1]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return false, err
			}
			return buf[0] != 0, nil
		},
	})

	_ = Register(reg, Formatter[int8]{
		Serialize: func(w Writer, v int8) error {
			_, err := w.Write([]byte{byte(v)})
			return err
		},
		Deserialize: func(r Reader) (int8, error) {
			var buf [1]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return int8(buf[0]), nil
		},
	})

	_ = Register(reg, Formatter[uint8]{
		Serialize: func(w Writer, v uint8) error {
			_, err := w.Write([]byte{v})
			return err
		},
		Deserialize: func(r Reader) (uint8, error) {
			var buf [1]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return buf[0], nil
		},
	})

	_ = Register(reg, Formatter[int16]{
		Serialize: func(w Writer, v int16) error {
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], uint16(v))
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (int16, error) {
			var buf [2]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return int16(binary.LittleEndian.Uint16(buf[:])), nil
		},
	})

	_ = Register(reg, Formatter[uint16]{
		Serialize: func(w Writer, v uint16) error {
			var buf [2]byte
			binary.LittleEndian.PutUint16(buf[:], v)
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (uint16, error) {
			var buf [2]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return binary.LittleEndian.Uint16(buf[:]), nil
		},
	})

	_ = Register(reg, Formatter[int32]{
		Serialize: func(w Writer, v int32) error {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], uint32(v))
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (int32, error) {
			var buf [4]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return int32(binary.LittleEndian.Uint32(buf[:])), nil
		},
	})

	_ = Register(reg, Formatter[uint32]{
		Serialize: func(w Writer, v uint32) error {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], v)
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (uint32, error) {
			var buf [4]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return binary.LittleEndian.Uint32(buf[:]), nil
		},
	})

	_ = Register(reg, Formatter[int64]{
		Serialize: func(w Writer, v int64) error {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], uint64(v))
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (int64, error) {
			var buf [8]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return int64(binary.LittleEndian.Uint64(buf[:])), nil
		},
	})

	_ = Register(reg, Formatter[uint64]{
		Serialize: func(w Writer, v uint64) error {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], v)
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (uint64, error) {
			var buf [8]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return binary.LittleEndian.Uint64(buf[:]), nil
		},
	})

	_ = Register(reg, Formatter[float32]{
		Serialize: func(w Writer, v float32) error {
			var buf [4]byte
			binary.LittleEndian.PutUint32(buf[:], math.Float32bits(v))
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (float32, error) {
			var buf [4]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return math.Float32frombits(binary.LittleEndian.Uint32(buf[:])), nil
		},
	})

	_ = Register(reg, Formatter[float64]{
		Serialize: func(w Writer, v float64) error {
			var buf [8]byte
			binary.LittleEndian.PutUint64(buf[:], math.Float64bits(v))
			_, err := w.Write(buf[:])
			return err
		},
		Deserialize: func(r Reader) (float64, error) {
			var buf [8]byte
			if _, err := io.ReadFull(asReader(r), buf[:]); err != nil {
				return 0, err
			}
			return math.Float64frombits(binary.LittleEndian.Uint64(buf[:])), nil
		},
	})

	_ = Register(reg, Formatter[string]{
		Serialize: func(w Writer, v string) error {
			return writeString(w, v, reg.MaxString)
		},
		Deserialize: func(r Reader) (string, error) {
			s, _, err := readString(r, reg.MaxString)
			return s, err
		},
	})
}

// asReader adapts a Reader to io.Reader for io.ReadFull, which needs the
// stdlib interface by name.
func asReader(r Reader) io.Reader {
	if ior, ok := r.(io.Reader); ok {
		return ior
	}
	return readerFunc(r.Read)
}

type readerFunc func(p []byte) (int, error)

func (f readerFunc) Read(p []byte) (int, error) { return f(p) }
