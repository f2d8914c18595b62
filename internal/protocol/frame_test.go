package protocol

import (
	"bytes"
	"encoding/binary"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// chunkReader yields at most chunk bytes per Read call, forcing the codec to
// loop for complete headers and payloads.
type chunkReader struct {
	data  []byte
	chunk int
}

func (r *chunkReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}
	n := r.chunk
	if n > len(r.data) {
		n = len(r.data)
	}
	if n > len(p) {
		n = len(p)
	}
	copy(p, r.data[:n])
	r.data = r.data[n:]
	return n, nil
}

func TestFrame_RoundTrip(t *testing.T) {
	var buf bytes.Buffer
	payload := []byte("hello clipboard")

	require.NoError(t, WriteFrame(&buf, KindClipboardPush, payload))

	kind, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindClipboardPush, kind)
	assert.Equal(t, payload, got)
}

func TestFrame_EmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindHeartbeat, nil))

	kind, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, kind)
	assert.Empty(t, got)
}

func TestFrame_SplitAcrossArbitraryChunks(t *testing.T) {
	var buf bytes.Buffer
	payload := bytes.Repeat([]byte("abc123"), 100)
	require.NoError(t, WriteFrame(&buf, KindClipboardHistory, payload))
	wire := buf.Bytes()

	for _, chunk := range []int{1, 2, 3, 5, 7, 64} {
		r := &chunkReader{data: append([]byte(nil), wire...), chunk: chunk}
		kind, got, err := ReadFrame(r)
		require.NoError(t, err, "chunk size %d", chunk)
		assert.Equal(t, KindClipboardHistory, kind)
		assert.Equal(t, payload, got)
	}
}

func TestFrame_MultipleFramesSequential(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindConnect, []byte("one")))
	require.NoError(t, WriteFrame(&buf, KindHeartbeat, nil))
	require.NoError(t, WriteFrame(&buf, KindDisconnect, []byte("bye")))

	kind, p, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindConnect, kind)
	assert.Equal(t, []byte("one"), p)

	kind, _, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindHeartbeat, kind)

	kind, p, err = ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindDisconnect, kind)
	assert.Equal(t, []byte("bye"), p)

	_, _, err = ReadFrame(&buf)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_CleanEOF(t *testing.T) {
	_, _, err := ReadFrame(bytes.NewReader(nil))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_TruncatedHeaderIsEOF(t *testing.T) {
	// 3 bytes of a 6-byte header: stream termination, not corruption.
	_, _, err := ReadFrame(bytes.NewReader([]byte{0x00, 0x00, 0x01}))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_TruncatedPayloadIsEOF(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(&buf, KindClipboardPush, []byte("full payload")))
	wire := buf.Bytes()

	_, _, err := ReadFrame(bytes.NewReader(wire[:len(wire)-4]))
	assert.ErrorIs(t, err, io.EOF)
}

func TestFrame_LengthBelowKindFieldRejected(t *testing.T) {
	header := make([]byte, 6)
	binary.BigEndian.PutUint32(header[0:4], 1) // cannot cover the kind field
	binary.BigEndian.PutUint16(header[4:6], uint16(KindConnect))

	_, _, err := ReadFrame(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrInvalidFrameLength)
}

func TestFrame_OversizeRejectedBeforeAllocation(t *testing.T) {
	header := make([]byte, 6)
	binary.BigEndian.PutUint32(header[0:4], MaxFrameSize+1)
	binary.BigEndian.PutUint16(header[4:6], uint16(KindClipboardPush))

	_, _, err := ReadFrame(bytes.NewReader(header))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
}

func TestFrame_WriteOversizeRejected(t *testing.T) {
	var buf bytes.Buffer
	err := WriteFrame(&buf, KindClipboardPush, make([]byte, MaxFrameSize))
	assert.ErrorIs(t, err, ErrFrameTooLarge)
	assert.Zero(t, buf.Len(), "nothing must be written for a rejected frame")
}

func TestFrame_MaxSizeBoundaryAccepted(t *testing.T) {
	var buf bytes.Buffer
	payload := make([]byte, MaxFrameSize-kindFieldLen)
	require.NoError(t, WriteFrame(&buf, KindClipboardPush, payload))

	kind, got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, KindClipboardPush, kind)
	assert.Len(t, got, MaxFrameSize-kindFieldLen)
}

func TestFrame_ReadErrorPropagated(t *testing.T) {
	boom := errors.New("connection reset")
	r := io.MultiReader(bytes.NewReader([]byte{0x00}), &failingReader{err: boom})
	_, _, err := ReadFrame(r)
	assert.ErrorIs(t, err, boom)
}

type failingReader struct{ err error }

func (r *failingReader) Read([]byte) (int, error) { return 0, r.err }
