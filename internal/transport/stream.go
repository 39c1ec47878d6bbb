package transport

import (
	"context"
	"encoding/binary"
	"fmt"
	"io"
	"sync"
)

// maxFrameSize guards against a malformed or hostile peer claiming an
// absurd frame length and exhausting memory on the read side.
const maxFrameSize = 64 << 20 // 64 MiB

// StreamTransport frames messages over any io.ReadWriteCloser with a
// 4-byte big-endian length prefix, for duplex-bytes transports other than
// WebSocket (e.g. a Unix socket between co-located peers in tests).
type StreamTransport struct {
	rwc io.ReadWriteCloser

	writeMu sync.Mutex
	readMu  sync.Mutex
}

func NewStreamTransport(rwc io.ReadWriteCloser) *StreamTransport {
	return &StreamTransport{rwc: rwc}
}

func (t *StreamTransport) WriteFrame(_ context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	var header [4]byte
	binary.BigEndian.PutUint32(header[:], uint32(len(frame)))
	if _, err := t.rwc.Write(header[:]); err != nil {
		return fmt.Errorf("transport: write length prefix: %w", err)
	}
	if _, err := t.rwc.Write(frame); err != nil {
		return fmt.Errorf("transport: write frame: %w", err)
	}
	return nil
}

func (t *StreamTransport) ReadFrame(_ context.Context) ([]byte, error) {
	t.readMu.Lock()
	defer t.readMu.Unlock()

	var header [4]byte
	if _, err := io.ReadFull(t.rwc, header[:]); err != nil {
		return nil, err
	}
	length := binary.BigEndian.Uint32(header[:])
	if length > maxFrameSize {
		return nil, fmt.Errorf("transport: frame of %d bytes exceeds max %d", length, maxFrameSize)
	}

	frame := make([]byte, length)
	if _, err := io.ReadFull(t.rwc, frame); err != nil {
		return nil, fmt.Errorf("transport: read frame: %w", err)
	}
	return frame, nil
}

func (t *StreamTransport) Close() error {
	return t.rwc.Close()
}
