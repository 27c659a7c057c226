package server

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/chatrelay/internal/protocol"
)

const waitTimeout = 2 * time.Second

// pipeTransport is an in-memory Transport. The test plays the client through
// inbound (frames the server will read) and outbound (frames it wrote).
type pipeTransport struct {
	inbound  chan []byte
	outbound chan []byte
	closed   chan struct{}

	closeOnce   sync.Once
	closeFrames atomic.Int32
	hangupOnce  sync.Once
}

func newPipeTransport() *pipeTransport {
	return &pipeTransport{
		inbound:  make(chan []byte, 16),
		outbound: make(chan []byte, 64),
		closed:   make(chan struct{}),
	}
}

func (p *pipeTransport) ReadFrame() ([]byte, error) {
	select {
	case frame, ok := <-p.inbound:
		if !ok {
			return nil, ErrTransportClosed
		}
		return frame, nil
	case <-p.closed:
		return nil, ErrTransportClosed
	}
}

func (p *pipeTransport) WriteFrame(payload []byte) error {
	select {
	case <-p.closed:
		return ErrTransportClosed
	default:
	}
	select {
	case p.outbound <- payload:
		return nil
	case <-p.closed:
		return ErrTransportClosed
	}
}

func (p *pipeTransport) WriteClose(string) error {
	p.closeFrames.Add(1)
	return nil
}

func (p *pipeTransport) Ping() error { return nil }

func (p *pipeTransport) Close() error {
	p.closeOnce.Do(func() { close(p.closed) })
	return nil
}

func (p *pipeTransport) RemoteAddr() string { return "pipe" }

// hangup simulates the peer closing its side.
func (p *pipeTransport) hangup() {
	p.hangupOnce.Do(func() { close(p.inbound) })
}

// pipeClient is the test's view of one connected session.
type pipeClient struct {
	t  *testing.T
	id SessionID
	tr *pipeTransport
}

func connect(t *testing.T, c *Coordinator) *pipeClient {
	t.Helper()
	tr := newPipeTransport()
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()

	id, err := c.Accept(ctx, tr)
	require.NoError(t, err)
	return &pipeClient{t: t, id: id, tr: tr}
}

func (pc *pipeClient) send(msg protocol.ClientMessage) {
	pc.t.Helper()
	frame, err := json.Marshal(msg)
	require.NoError(pc.t, err)
	pc.sendRaw(frame)
}

func (pc *pipeClient) sendRaw(frame []byte) {
	pc.t.Helper()
	select {
	case pc.tr.inbound <- frame:
	case <-time.After(waitTimeout):
		pc.t.Fatal("timed out sending frame")
	}
}

func (pc *pipeClient) expect() protocol.ServerMessage {
	pc.t.Helper()
	select {
	case frame := <-pc.tr.outbound:
		msg, err := protocol.DecodeServer(frame)
		require.NoError(pc.t, err)
		return msg
	case <-time.After(waitTimeout):
		pc.t.Fatal("timed out waiting for server message")
		return protocol.ServerMessage{}
	}
}

func (pc *pipeClient) expectNothing(d time.Duration) {
	pc.t.Helper()
	select {
	case frame := <-pc.tr.outbound:
		pc.t.Fatalf("unexpected server message: %s", frame)
	case <-time.After(d):
	}
}

func (pc *pipeClient) expectClosed() {
	pc.t.Helper()
	select {
	case <-pc.tr.closed:
	case <-time.After(waitTimeout):
		pc.t.Fatal("transport was not closed")
	}
}

func testConfig() Config {
	cfg := defaultConfig()
	cfg.DeliveryTimeout = 200 * time.Millisecond
	cfg.ShutdownTimeout = time.Second
	return cfg
}

// startCoordinator runs a coordinator for the duration of the test.
func startCoordinator(t *testing.T, cfg Config) *Coordinator {
	t.Helper()
	c := NewCoordinator(cfg, zaptest.NewLogger(t), NewMetrics(nil))

	stopped := make(chan error, 1)
	go func() { stopped <- c.Run(context.Background()) }()

	t.Cleanup(func() {
		_ = c.Shutdown(waitTimeout)
		select {
		case err := <-stopped:
			require.NoError(t, err)
		case <-time.After(waitTimeout):
			t.Error("coordinator did not stop")
		}
	})
	return c
}
