package transport

import (
	"encoding/binary"
	"fmt"
	"io"
)

const maxFrameSize = 1 << 20

type FrameTooLargeError struct {
	Size int
}

func (e *FrameTooLargeError) Error() string {
	return fmt.Sprintf("Frame of %d bytes exceeds maximum of %d", e.Size, maxFrameSize)
}

// writeFrame writes payload prefixed with its little-endian uint32 length.
func writeFrame(w io.Writer, payload []byte) error {
	if len(payload) > maxFrameSize {
		return &FrameTooLargeError{Size: len(payload)}
	}
	buf := make([]byte, 4+len(payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(len(payload)))
	copy(buf[4:], payload)
	_, err := w.Write(buf)
	return err
}

func readFrame(r io.Reader) ([]byte, error) {
	var header [4]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return nil, err
	}
	size := int(binary.LittleEndian.Uint32(header[:]))
	if size > maxFrameSize {
		return nil, &FrameTooLargeError{Size: size}
	}
	payload := make([]byte, size)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, err
	}
	return payload, nil
}
