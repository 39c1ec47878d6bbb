package transport

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// WebSocketTransport is the primary Transport: each frame is carried as
// one binary WebSocket message, so no additional length-prefixing is
// needed on top of what the WebSocket framing already provides.
type WebSocketTransport struct {
	conn *websocket.Conn

	writeMu sync.Mutex
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Dial opens an outgoing WebSocket connection to url.
func Dial(ctx context.Context, url string) (*WebSocketTransport, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: dial %s: %w", url, err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

// Accept upgrades an incoming HTTP request to a WebSocket connection, for
// the relay's server side of a sync session.
func Accept(w http.ResponseWriter, r *http.Request) (*WebSocketTransport, error) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		return nil, fmt.Errorf("transport: upgrade: %w", err)
	}
	return &WebSocketTransport{conn: conn}, nil
}

func (t *WebSocketTransport) WriteFrame(ctx context.Context, frame []byte) error {
	t.writeMu.Lock()
	defer t.writeMu.Unlock()

	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetWriteDeadline(deadline)
	}
	return t.conn.WriteMessage(websocket.BinaryMessage, frame)
}

func (t *WebSocketTransport) ReadFrame(ctx context.Context) ([]byte, error) {
	if deadline, ok := ctx.Deadline(); ok {
		_ = t.conn.SetReadDeadline(deadline)
	}
	kind, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	if kind != websocket.BinaryMessage {
		return nil, fmt.Errorf("transport: expected binary frame, got kind %d", kind)
	}
	return data, nil
}

func (t *WebSocketTransport) Close() error {
	return t.conn.Close()
}
