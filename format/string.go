package format

import (
	"encoding/binary"
	"io"
)

// nullStringSentinel is the 16-bit length value that denotes a null
// string on the wire.
const nullStringSentinel = 0xFFFF

// writeString encodes s as a 16-bit little-endian byte count followed by
// its UTF-8 bytes. It fails with ErrSerializationLimit if the encoded
// length would exceed maxString or collide with the null sentinel.
func writeString(w Writer, s string, maxString int) error {
	n := len(s)
	if n >= nullStringSentinel || n > maxString {
		return ErrSerializationLimit
	}

	var lenBuf [2]byte
	binary.LittleEndian.PutUint16(lenBuf[:], uint16(n))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return err
	}
	if n == 0 {
		return nil
	}
	_, err := w.Write([]byte(s))
	return err
}

// readString decodes a length-prefixed string. The second return value
// reports whether the decoded value is null (wire length ==
// nullStringSentinel), in which case the returned string is empty.
func readString(r Reader, maxString int) (string, bool, error) {
	var lenBuf [2]byte
	if _, err := io.ReadFull(asReader(r), lenBuf[:]); err != nil {
		return "", false, err
	}
	n := binary.LittleEndian.Uint16(lenBuf[:])

	if n == nullStringSentinel {
		return "", true, nil
	}
	if int(n) > maxString {
		return "", false, ErrSerializationLimit
	}
	if n == 0 {
		return "", false, nil
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(asReader(r), buf); err != nil {
		return "", false, err
	}
	return string(buf), false, nil
}

// WriteNullableString encodes s using the string wire format's own null
// sentinel (count == 0xFFFF), distinct from the generic Nullable[T]
// one-byte flag wrapper used for non-string types.
func WriteNullableString(w Writer, s string, valid bool, maxString int) error {
	if !valid {
		var lenBuf [2]byte
		binary.LittleEndian.PutUint16(lenBuf[:], nullStringSentinel)
		_, err := w.Write(lenBuf[:])
		return err
	}
	return writeString(w, s, maxString)
}

// ReadNullableString decodes a string written by WriteNullableString,
// reporting validity via the second return value.
func ReadNullableString(r Reader, maxString int) (value string, valid bool, err error) {
	s, isNull, err := readString(r, maxString)
	if err != nil {
		return "", false, err
	}
	return s, !isNull, nil
}
