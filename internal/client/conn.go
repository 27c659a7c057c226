// Package client is the interactive relay client: a WebSocket connection
// speaking the relay protocol, a console command parser, and a colored
// printer for server messages.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

const (
	handshakeTimeout = 5 * time.Second
	writeWait        = 10 * time.Second
)

// Conn is a client connection to the relay. Send may be called from one
// goroutine while another calls Receive.
type Conn struct {
	ws        *websocket.Conn
	writeMu   sync.Mutex
	closeOnce sync.Once
}

// Dial connects to the relay's WebSocket endpoint. origin is sent as the
// Origin header when non-empty.
func Dial(ctx context.Context, url, origin string) (*Conn, error) {
	dialer := websocket.Dialer{HandshakeTimeout: handshakeTimeout}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	ws, resp, err := dialer.DialContext(ctx, url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("dial %s: %w (status %d)", url, err, resp.StatusCode)
		}
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return &Conn{ws: ws}, nil
}

// Send writes one message as a text frame.
func (c *Conn) Send(msg protocol.ClientMessage) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("encoding %s: %w", msg.Kind, err)
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := c.ws.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return err
	}
	return c.ws.WriteMessage(websocket.TextMessage, payload)
}

// Receive blocks for the next server message. A normal close from the server
// is returned as a *websocket.CloseError.
func (c *Conn) Receive() (protocol.ServerMessage, error) {
	for {
		kind, frame, err := c.ws.ReadMessage()
		if err != nil {
			return protocol.ServerMessage{}, err
		}
		if kind != websocket.TextMessage {
			continue
		}
		return protocol.DecodeServer(frame)
	}
}

// Close sends a close frame and releases the connection. It is safe to call
// more than once.
func (c *Conn) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.writeMu.Lock()
		_ = c.ws.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		c.writeMu.Unlock()
		err = c.ws.Close()
	})
	return err
}
