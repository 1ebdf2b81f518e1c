// Package proto implements the wire framing this client speaks to a node:
// the info request/response codec and the scan command/stream codec. It has
// no knowledge of sockets or pools; callers hand it an io.Reader/io.Writer.
package proto

import (
	"encoding/binary"
	"fmt"
	"io"
)

// MaxNamespaceNameLen bounds namespace name fields accepted from the wire,
// in both info responses and partition replica strings.
const MaxNamespaceNameLen = 30

// WriteFrame writes a 2-byte big-endian length prefix followed by body.
func WriteFrame(w io.Writer, body []byte) error {
	if len(body) > 0xFFFF {
		return fmt.Errorf("proto: frame body too large: %d bytes", len(body))
	}
	var hdr [2]byte
	binary.BigEndian.PutUint16(hdr[:], uint16(len(body)))
	if _, err := w.Write(hdr[:]); err != nil {
		return fmt.Errorf("proto: write frame header: %w", err)
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("proto: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads a 2-byte big-endian length prefix and the body it names.
func ReadFrame(r io.Reader) ([]byte, error) {
	var hdr [2]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, fmt.Errorf("proto: read frame header: %w", err)
	}
	n := binary.BigEndian.Uint16(hdr[:])
	if n == 0 {
		return nil, nil
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("proto: read frame body: %w", err)
	}
	return body, nil
}
