// conn.go abstracts the engine socket. Production uses a gorilla WebSocket
// in binary mode; tests substitute an in-memory pipe.

package engine

import (
	"context"

	"github.com/gorilla/websocket"
)

// Conn is a duplex message connection to the engine.
type Conn interface {
	// ReadMessage blocks until the next wire message arrives.
	ReadMessage() ([]byte, error)

	// WriteMessage sends one wire message. Safe for use by one writer at a
	// time; the client serializes writers.
	WriteMessage(data []byte) error

	// Close tears the connection down, unblocking any pending read.
	Close() error
}

// Dialer opens engine connections.
type Dialer interface {
	DialContext(ctx context.Context, url string) (Conn, error)
}

// wsDialer dials the engine over WebSocket.
type wsDialer struct{}

func (wsDialer) DialContext(ctx context.Context, url string) (Conn, error) {
	c, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return &wsConn{conn: c}, nil
}

type wsConn struct {
	conn *websocket.Conn
}

func (w *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := w.conn.ReadMessage()
	return data, err
}

func (w *wsConn) WriteMessage(data []byte) error {
	return w.conn.WriteMessage(websocket.BinaryMessage, data)
}

func (w *wsConn) Close() error {
	return w.conn.Close()
}
