package websocket

import (
	"bytes"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 12 * 1024 * 1024
)

// Transport sends each stream record as one text message. It is the
// io.Writer and io.Closer handed to the stream multiplexer.
type Transport struct {
	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func NewTransport(conn *websocket.Conn) *Transport {
	return &Transport{conn: conn}
}

func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return 0, websocket.ErrCloseSent
	}
	t.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := t.conn.WriteMessage(websocket.TextMessage, bytes.TrimSuffix(p, []byte{'\n'})); err != nil {
		return 0, err
	}
	return len(p), nil
}

// Close sends a normal close frame. The connection itself is released by
// the fiber websocket handler.
func (t *Transport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil
	}
	t.closed = true
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
	return t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeWait))
}

func (t *Transport) ping() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return websocket.ErrCloseSent
	}
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait))
}
