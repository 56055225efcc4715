package netstream

import "errors"

// ErrProtocolViolation indicates a frame's declared Length is outside
// [packet.HeaderSize, codec.MaxPacketSize()]. The stream is not
// byte-scanning: on this error the caller must close the connection,
// since there is no way to locate the start of the next frame.
var ErrProtocolViolation = errors.New("netstream: protocol violation")
