// Package transport provides the framed duplex byte channel the sync
// protocol runs over: a primary WebSocket implementation, plus a
// length-prefixed implementation for any other duplex byte stream.
// Reconnection policy is deliberately not this package's concern —
// callers establish a new Transport and re-run the handshake.
package transport

import "context"

// Transport is a framed message stream: each WriteFrame call is received
// whole by the peer's ReadFrame, with no further delimiting needed by the
// caller. Implementations carry CBOR-encoded sync protocol messages, but
// Transport itself is encoding-agnostic.
type Transport interface {
	WriteFrame(ctx context.Context, frame []byte) error
	ReadFrame(ctx context.Context) ([]byte, error)
	Close() error
}
