package protocol

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Wire shape: a 6-byte header — uint32 big-endian total length followed by a
// uint16 big-endian kind code — then totalLength-2 payload bytes. The total
// length excludes the 4 length bytes but includes the 2 kind bytes.
const (
	frameHeaderLen = 6
	kindFieldLen   = 2

	// MaxFrameSize bounds the advertised total length (kind field included).
	// Larger frames are rejected before any payload allocation.
	MaxFrameSize = 10 * 1024 * 1024
)

var (
	// ErrFrameTooLarge is returned when a frame advertises a length above
	// MaxFrameSize. Fatal for the connection.
	ErrFrameTooLarge = errors.New("frame exceeds maximum size")

	// ErrInvalidFrameLength is returned when the advertised length cannot
	// even cover the kind field. Fatal for the connection.
	ErrInvalidFrameLength = errors.New("invalid frame length")
)

// ReadFrame reads exactly one frame from r and returns its kind code and
// payload bytes. A clean end of stream — before the header, or mid-frame —
// is reported as io.EOF; the caller treats it as connection termination,
// not corruption.
func ReadFrame(r io.Reader) (Kind, []byte, error) {
	var header [frameHeaderLen]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return 0, nil, io.EOF
		}
		return 0, nil, fmt.Errorf("read frame header: %w", err)
	}

	total := binary.BigEndian.Uint32(header[0:4])
	kind := Kind(binary.BigEndian.Uint16(header[4:6]))

	if total < kindFieldLen {
		return 0, nil, fmt.Errorf("%w: advertised length %d", ErrInvalidFrameLength, total)
	}
	if total > MaxFrameSize {
		return 0, nil, fmt.Errorf("%w: advertised length %d, maximum %d", ErrFrameTooLarge, total, MaxFrameSize)
	}

	payload := make([]byte, total-kindFieldLen)
	if len(payload) > 0 {
		if _, err := io.ReadFull(r, payload); err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				return 0, nil, io.EOF
			}
			return 0, nil, fmt.Errorf("read frame payload: %w", err)
		}
	}

	return kind, payload, nil
}

// WriteFrame writes one complete frame to w. The header and payload are
// assembled into a single buffer and written with one call, so a frame is
// never left partially buffered across logical operations.
func WriteFrame(w io.Writer, kind Kind, payload []byte) error {
	total := len(payload) + kindFieldLen
	if total > MaxFrameSize {
		return fmt.Errorf("%w: payload %d bytes", ErrFrameTooLarge, len(payload))
	}

	buf := make([]byte, frameHeaderLen+len(payload))
	binary.BigEndian.PutUint32(buf[0:4], uint32(total))
	binary.BigEndian.PutUint16(buf[4:6], uint16(kind))
	copy(buf[frameHeaderLen:], payload)

	if _, err := w.Write(buf); err != nil {
		return fmt.Errorf("write frame: %w", err)
	}
	return nil
}
