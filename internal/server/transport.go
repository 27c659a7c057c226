// Package server adapts gorilla/websocket connections to the frame-oriented
// Transport used by connection agents.
package server

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// Transport errors.
var (
	// ErrUnsupportedFrame is returned for frames that are not text frames.
	// The session survives; the frame is dropped.
	ErrUnsupportedFrame = errors.New("unsupported frame type")

	// ErrTransportClosed means the peer closed the session or the transport
	// was closed locally.
	ErrTransportClosed = errors.New("transport closed")
)

// Transport is one client's framed, bidirectional connection. One goroutine
// may read while another writes. Close is idempotent and unblocks a pending
// ReadFrame.
type Transport interface {
	ReadFrame() ([]byte, error)
	WriteFrame(payload []byte) error
	WriteClose(reason string) error
	Ping() error
	Close() error
	RemoteAddr() string
}

type wsTransport struct {
	conn           *websocket.Conn
	addr           string
	maxMessageSize int64
	pongWait       time.Duration
	writeWait      time.Duration

	closeOnce sync.Once
	closeErr  error
}

// NewWebSocketTransport wraps an upgraded connection. It applies the read
// limit and keeps the read deadline moving forward on every pong.
func NewWebSocketTransport(conn *websocket.Conn, addr string, cfg Config) Transport {
	t := &wsTransport{
		conn:           conn,
		addr:           addr,
		maxMessageSize: cfg.MaxMessageSize,
		pongWait:       cfg.PongWait,
		writeWait:      cfg.WriteWait,
	}
	t.setupReadConnection()
	return t
}

// setupReadConnection configures read limits, deadlines and the pong handler.
func (t *wsTransport) setupReadConnection() {
	t.conn.SetReadLimit(t.maxMessageSize)
	_ = t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	t.conn.SetPongHandler(func(string) error {
		return t.conn.SetReadDeadline(time.Now().Add(t.pongWait))
	})
}

func (t *wsTransport) ReadFrame() ([]byte, error) {
	msgType, data, err := t.conn.ReadMessage()
	if err != nil {
		return nil, t.classifyReadError(err)
	}
	if msgType != websocket.TextMessage {
		return nil, fmt.Errorf("%w: %d", ErrUnsupportedFrame, msgType)
	}
	return data, nil
}

// classifyReadError folds the normal ways a session ends into
// ErrTransportClosed and passes anything else through.
func (t *wsTransport) classifyReadError(err error) error {
	if errors.Is(err, websocket.ErrReadLimit) {
		return fmt.Errorf("message exceeded maximum size of %d bytes: %w", t.maxMessageSize, err)
	}

	if websocket.IsCloseError(err,
		websocket.CloseNormalClosure,
		websocket.CloseGoingAway,
		websocket.CloseNoStatusReceived) {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) || isExpectedCloseError(err) {
		return fmt.Errorf("%w: %v", ErrTransportClosed, err)
	}

	return err
}

func (t *wsTransport) WriteFrame(payload []byte) error {
	if err := t.conn.SetWriteDeadline(time.Now().Add(t.writeWait)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	return t.conn.WriteMessage(websocket.TextMessage, payload)
}

func (t *wsTransport) WriteClose(reason string) error {
	msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	return t.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(t.writeWait))
}

func (t *wsTransport) Ping() error {
	return t.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(t.writeWait))
}

func (t *wsTransport) Close() error {
	t.closeOnce.Do(func() {
		if err := t.conn.Close(); err != nil && !isExpectedCloseError(err) {
			t.closeErr = err
		}
	})
	return t.closeErr
}

func (t *wsTransport) RemoteAddr() string {
	return t.addr
}
