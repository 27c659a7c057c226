package server_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Tyrowin/chatrelay/internal/protocol"
	"github.com/Tyrowin/chatrelay/internal/server"
)

const testOrigin = "http://localhost:8080"

type relay struct {
	coord *server.Coordinator
	http  *httptest.Server
	wsURL string
}

// startRelay runs a coordinator behind an httptest server.
func startRelay(t *testing.T) *relay {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testOrigin}
	cfg.ShutdownTimeout = time.Second
	logger := zaptest.NewLogger(t)

	reg := prometheus.NewRegistry()
	coord := server.NewCoordinator(*cfg, logger, server.NewMetrics(reg))
	stopped := make(chan error, 1)
	go func() { stopped <- coord.Run(context.Background()) }()

	ts := httptest.NewServer(server.NewServer(*cfg, coord, logger, reg).Routes())
	t.Cleanup(func() {
		ts.Close()
		_ = coord.Shutdown(2 * time.Second)
		<-stopped
	})

	return &relay{
		coord: coord,
		http:  ts,
		wsURL: "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws",
	}
}

func (r *relay) dial(t *testing.T) *websocket.Conn {
	t.Helper()
	conn, resp, err := dialWithOrigin(r.wsURL, testOrigin)
	if resp != nil {
		_ = resp.Body.Close()
	}
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func dialWithOrigin(url, origin string) (*websocket.Conn, *http.Response, error) {
	dialer := websocket.Dialer{HandshakeTimeout: 5 * time.Second}
	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}
	return dialer.Dial(url, headers)
}

func send(t *testing.T, conn *websocket.Conn, msg protocol.ClientMessage) {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
}

func receive(t *testing.T, conn *websocket.Conn) protocol.ServerMessage {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	kind, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	require.Equal(t, websocket.TextMessage, kind)

	msg, err := protocol.DecodeServer(frame)
	require.NoError(t, err)
	return msg
}

func TestHealthHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", http.NoBody)
	rr := httptest.NewRecorder()

	server.HealthHandler(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "text/plain", rr.Header().Get("Content-Type"))
	assert.Equal(t, "Chat relay is running!", rr.Body.String())
}

func TestRoutes(t *testing.T) {
	r := startRelay(t)

	tests := []struct {
		name         string
		method       string
		path         string
		expectedCode int
		contains     string
	}{
		{name: "health", method: http.MethodGet, path: "/", expectedCode: http.StatusOK, contains: "running"},
		{name: "test page", method: http.MethodGet, path: "/test", expectedCode: http.StatusOK, contains: "SetUsername"},
		{name: "websocket rejects POST", method: http.MethodPost, path: "/ws", expectedCode: http.StatusMethodNotAllowed, contains: "only accepts GET"},
		{name: "websocket without upgrade", method: http.MethodGet, path: "/ws", expectedCode: http.StatusBadRequest},
		{name: "metrics", method: http.MethodGet, path: "/metrics", expectedCode: http.StatusOK, contains: "chatrelay_sessions"},
		{name: "unknown path", method: http.MethodGet, path: "/nope", expectedCode: http.StatusNotFound},
	}

	client := &http.Client{Timeout: 5 * time.Second}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, r.http.URL+tt.path, http.NoBody)
			require.NoError(t, err)

			resp, err := client.Do(req)
			require.NoError(t, err)
			defer func() { _ = resp.Body.Close() }()

			assert.Equal(t, tt.expectedCode, resp.StatusCode)
			if tt.contains != "" {
				body, err := io.ReadAll(resp.Body)
				require.NoError(t, err)
				assert.Contains(t, string(body), tt.contains)
			}
		})
	}
}

func TestOriginValidation(t *testing.T) {
	r := startRelay(t)

	tests := []struct {
		name    string
		origin  string
		allowed bool
	}{
		{name: "configured origin", origin: testOrigin, allowed: true},
		{name: "configured origin with different case", origin: "HTTP://LOCALHOST:8080", allowed: true},
		{name: "missing origin", origin: "", allowed: false},
		{name: "foreign origin", origin: "http://evil.example.com", allowed: false},
		{name: "malformed origin", origin: "not-a-url", allowed: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, resp, err := dialWithOrigin(r.wsURL, tt.origin)
			if resp != nil {
				defer func() { _ = resp.Body.Close() }()
			}
			if tt.allowed {
				require.NoError(t, err)
				_ = conn.Close()
				return
			}
			require.Error(t, err)
			require.NotNil(t, resp)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		})
	}
}

func TestRelayOverWebSocket(t *testing.T) {
	r := startRelay(t)

	alice := r.dial(t)
	bob := r.dial(t)

	send(t, alice, protocol.SetUsername("alice"))
	assert.Equal(t, protocol.Ok("Set username alice successfully!"), receive(t, alice))

	send(t, bob, protocol.SetUsername("alice"))
	assert.Equal(t, protocol.Err(server.ErrNameTaken.Error()), receive(t, bob))

	send(t, bob, protocol.SetUsername("bob"))
	assert.Equal(t, protocol.Ok("Set username bob successfully!"), receive(t, bob))

	send(t, bob, protocol.GetUsernames())
	assert.Equal(t, protocol.Usernames([]string{"alice", "bob"}), receive(t, bob))

	send(t, alice, protocol.TextTo("bob", "hi"))
	assert.Equal(t, protocol.TextFrom("alice", "hi"), receive(t, bob))
	assert.Equal(t, protocol.Ok("Sent message to bob"), receive(t, alice))

	send(t, alice, protocol.TextTo("carol", "hello?"))
	assert.Equal(t, protocol.Err(server.ErrRecipientMissing.Error()), receive(t, alice))
}

func TestRelayIgnoresBinaryAndMalformedFrames(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)

	require.NoError(t, conn.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"broken"`)))
	send(t, conn, protocol.GetUsernames())

	assert.Equal(t, protocol.Usernames([]string{}), receive(t, conn))
}

func TestOversizedFrameEndsSession(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)
	send(t, conn, protocol.SetUsername("loud"))
	receive(t, conn)

	big := strings.Repeat("x", int(server.NewConfig().MaxMessageSize)+1)
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)

	require.Eventually(t, func() bool {
		names, err := r.coord.Usernames(context.Background())
		return err == nil && len(names) == 0
	}, 2*time.Second, 10*time.Millisecond)
}

func TestShutdownClosesClients(t *testing.T) {
	r := startRelay(t)
	conn := r.dial(t)

	send(t, conn, protocol.SetUsername("alice"))
	receive(t, conn)

	r.coord.RequestShutdown()

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err := conn.ReadMessage()
	require.Error(t, err)
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)

	select {
	case <-r.coord.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("coordinator did not stop")
	}
	assert.Equal(t, server.StateStopped, r.coord.State())

	// The upgrade still succeeds, but the coordinator refuses the session.
	late := r.dial(t)
	require.NoError(t, late.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = late.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, websocket.CloseNormalClosure), "unexpected error: %v", err)
}
