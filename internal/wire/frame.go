// Package wire implements the framing contract of spec.md §6: every message
// on a peer stream connection is a one-byte type tag, a big-endian uint32
// length, and that many payload bytes.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Type tags a Frame's payload kind.
type Type byte

const (
	TypeAudio Type = 0x01
	TypeText  Type = 0x02
)

func (t Type) String() string {
	switch t {
	case TypeAudio:
		return "audio"
	case TypeText:
		return "text"
	default:
		return fmt.Sprintf("unknown(0x%02x)", byte(t))
	}
}

// maxPayloadLen rejects the degenerate 2^32-1 length boundary case from
// spec.md §8 before it ever reaches the wire.
const maxPayloadLen = 1<<32 - 1

// ErrPayloadTooLarge is returned by WriteFrame when the payload length is
// maxPayloadLen (2^32-1) or more.
var ErrPayloadTooLarge = errors.New("wire: payload length exceeds uint32 range")

// Frame is one type-length-value packet (spec.md §3 "Frame").
type Frame struct {
	Type    Type
	Payload []byte
}

// WriteFrame writes t and payload to w in the §6 wire format. A length-zero
// payload is a no-op: nothing is written (spec.md §8 boundary case).
func WriteFrame(w io.Writer, t Type, payload []byte) error {
	if len(payload) == 0 {
		return nil
	}
	if len(payload) >= maxPayloadLen {
		return ErrPayloadTooLarge
	}

	header := make([]byte, 5)
	header[0] = byte(t)
	binary.BigEndian.PutUint32(header[1:], uint32(len(payload)))

	if _, err := w.Write(header); err != nil {
		return fmt.Errorf("wire: writing frame header: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("wire: writing frame payload: %w", err)
	}
	return nil
}

// ReadFrame reads exactly one frame from r. A short read on the header or
// payload (including io.EOF mid-frame) is returned as an error: per spec.md
// §6, short reads terminate the connection.
func ReadFrame(r io.Reader) (Frame, error) {
	header := make([]byte, 5)
	if _, err := io.ReadFull(r, header); err != nil {
		return Frame{}, err
	}

	t := Type(header[0])
	length := binary.BigEndian.Uint32(header[1:])

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return Frame{}, fmt.Errorf("wire: short read of %d-byte %s payload: %w", length, t, err)
	}

	return Frame{Type: t, Payload: payload}, nil
}
