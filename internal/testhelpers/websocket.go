// Package testhelpers provides shared utilities for testing the room relay.
//
// Recorder stands in for the WebSocket transport in signaling and relay
// tests. The WebSocket helpers drive a real server end to end with protocol
// envelopes.
package testhelpers

import (
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

// TestOrigin is the Origin header sent by ConnectWebSocket.
const TestOrigin = "http://localhost:3000"

// WebSocketURL turns an httptest server URL into the relay's ws endpoint.
func WebSocketURL(serverURL string) string {
	return "ws" + strings.TrimPrefix(serverURL, "http") + "/ws"
}

// ConnectWebSocket creates a WebSocket connection to the specified URL.
// It returns the connection or an error if connection fails.
func ConnectWebSocket(url string) (*websocket.Conn, error) {
	return ConnectWebSocketWithOrigin(url, TestOrigin)
}

// ConnectWebSocketWithOrigin dials url with the given Origin header. An empty
// origin sends no header at all.
func ConnectWebSocketWithOrigin(url, origin string) (*websocket.Conn, error) {
	dialer := websocket.Dialer{
		HandshakeTimeout: 5 * time.Second,
	}

	headers := http.Header{}
	if origin != "" {
		headers.Set("Origin", origin)
	}

	conn, resp, err := dialer.Dial(url, headers)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	return conn, err
}

// MustConnect dials url and fails the test on error. The connection is
// closed when the test ends.
func MustConnect(t *testing.T, url string) *websocket.Conn {
	t.Helper()
	conn, err := ConnectWebSocket(url)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

// SendEnvelope writes one protocol message.
func SendEnvelope(conn *websocket.Conn, action protocol.Action, payload any) error {
	env, err := protocol.New(action, payload)
	if err != nil {
		return err
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		return err
	}
	return conn.WriteMessage(websocket.TextMessage, frame)
}

// ReadEnvelope reads the next protocol message, failing the test if none
// arrives within timeout.
func ReadEnvelope(t *testing.T, conn *websocket.Conn, timeout time.Duration) protocol.Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(timeout)))
	_, frame, err := conn.ReadMessage()
	require.NoError(t, err)
	env, err := protocol.Decode(frame)
	require.NoError(t, err)
	return env
}

// ReadUntil reads messages until one with the given action arrives and
// returns it. Messages with other actions are discarded.
func ReadUntil(t *testing.T, conn *websocket.Conn, action protocol.Action, timeout time.Duration) protocol.Envelope {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for {
		remaining := time.Until(deadline)
		if remaining <= 0 {
			t.Fatalf("timed out waiting for %s", action)
		}
		env := ReadEnvelope(t, conn, remaining)
		if env.Action == action {
			return env
		}
	}
}

// ExpectSilence asserts that nothing arrives on conn for d. The read
// deadline expiring leaves conn unreadable, so call it last.
func ExpectSilence(t *testing.T, conn *websocket.Conn, d time.Duration) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(d)))
	_, frame, err := conn.ReadMessage()
	require.Error(t, err, "unexpected frame %s", frame)
}

// CloseWebSocket gracefully closes a WebSocket connection.
func CloseWebSocket(conn *websocket.Conn) error {
	err := conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	if err != nil {
		return err
	}
	return conn.Close()
}

// MakeRequest creates and executes an HTTP request, returning the response.
// It includes a 5-second timeout and fails the test if the request cannot be
// created or executed successfully.
func MakeRequest(t *testing.T, method, url string) *http.Response {
	t.Helper()

	client := &http.Client{
		Timeout: 5 * time.Second,
	}

	req, err := http.NewRequest(method, url, http.NoBody)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	return resp
}
