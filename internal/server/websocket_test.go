package server_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/server"
	"github.com/Tyrowin/roomrelay/internal/signaling"
	"github.com/Tyrowin/roomrelay/internal/testhelpers"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const (
	readTimeout = 2 * time.Second
	testRoom    = "3f2b8c1e-9a4d-4e6f-8b7a-1c2d3e4f5a6b"
)

type relayServer struct {
	hub     *server.Hub
	handler *signaling.Handler
	http    *httptest.Server
	wsURL   string
}

// startRelay runs a hub and an httptest server with the full route set. Both
// are stopped when the test ends.
func startRelay(t *testing.T) *relayServer {
	t.Helper()

	cfg := server.NewConfig()
	cfg.AllowedOrigins = []string{testhelpers.TestOrigin}
	server.SetConfig(cfg)
	t.Cleanup(func() { server.SetConfig(nil) })

	hub, handler := server.NewSignalingHub(zaptest.NewLogger(t))
	server.StartHub(hub)

	ts := httptest.NewServer(server.SetupRoutes(hub, handler.Membership()))
	t.Cleanup(func() {
		ts.Close()
		assert.NoError(t, hub.Shutdown(5*time.Second))
	})

	return &relayServer{hub: hub, handler: handler, http: ts, wsURL: testhelpers.WebSocketURL(ts.URL)}
}

// connect dials the relay and consumes the room list every new connection
// receives.
func (s *relayServer) connect(t *testing.T) *websocket.Conn {
	t.Helper()
	conn := testhelpers.MustConnect(t, s.wsURL)
	testhelpers.ReadUntil(t, conn, protocol.ActionShareRooms, readTimeout)
	return conn
}

func join(t *testing.T, conn *websocket.Conn, roomID string) {
	t.Helper()
	require.NoError(t, testhelpers.SendEnvelope(conn, protocol.ActionJoin, protocol.JoinPayload{Room: roomID}))
}

func readAddPeer(t *testing.T, conn *websocket.Conn) protocol.AddPeerPayload {
	t.Helper()
	env := testhelpers.ReadUntil(t, conn, protocol.ActionAddPeer, readTimeout)
	return testhelpers.Payload[protocol.AddPeerPayload](t, env)
}

// TestNewConnectionReceivesRoomList verifies that a fresh connection is told
// which rooms exist.
func TestNewConnectionReceivesRoomList(t *testing.T) {
	s := startRelay(t)

	first := s.connect(t)
	join(t, first, testRoom)
	testhelpers.ReadUntil(t, first, protocol.ActionShareRooms, readTimeout)

	second := testhelpers.MustConnect(t, s.wsURL)
	env := testhelpers.ReadUntil(t, second, protocol.ActionShareRooms, readTimeout)
	assert.Equal(t, []string{testRoom}, testhelpers.Payload[protocol.ShareRoomsPayload](t, env).Rooms)
}

// TestJoinRelayAndDisconnect walks two peers through a full session: join,
// offer exchange, ICE relay and teardown when one side drops.
func TestJoinRelayAndDisconnect(t *testing.T) {
	s := startRelay(t)

	alice := s.connect(t)
	join(t, alice, testRoom)
	testhelpers.ReadUntil(t, alice, protocol.ActionShareRooms, readTimeout)

	bob := s.connect(t)
	join(t, bob, testRoom)

	toAlice := readAddPeer(t, alice)
	toBob := readAddPeer(t, bob)
	assert.False(t, toAlice.CreateOffer, "existing member waits for the offer")
	assert.True(t, toBob.CreateOffer, "joiner creates the offer")
	bobID, aliceID := toAlice.PeerID, toBob.PeerID
	require.NotEmpty(t, bobID)
	require.NotEmpty(t, aliceID)
	assert.NotEqual(t, aliceID, bobID)

	offer := json.RawMessage(`{"type":"offer","sdp":"v=0\r\no=- 1 2 IN IP4 127.0.0.1\r\n"}`)
	require.NoError(t, testhelpers.SendEnvelope(bob, protocol.ActionRelaySDP,
		protocol.SessionDescriptionPayload{PeerID: aliceID, SessionDescription: offer}))

	env := testhelpers.ReadUntil(t, alice, protocol.ActionSessionDescription, readTimeout)
	sdp := testhelpers.Payload[protocol.SessionDescriptionPayload](t, env)
	assert.Equal(t, bobID, sdp.PeerID)
	assert.JSONEq(t, string(offer), string(sdp.SessionDescription))

	candidate := json.RawMessage(`{"candidate":"candidate:0 1 UDP 2122252543 192.0.2.1 50000 typ host","sdpMid":"0"}`)
	require.NoError(t, testhelpers.SendEnvelope(alice, protocol.ActionRelayICE,
		protocol.ICECandidatePayload{PeerID: bobID, ICECandidate: candidate}))

	env = testhelpers.ReadUntil(t, bob, protocol.ActionICECandidate, readTimeout)
	ice := testhelpers.Payload[protocol.ICECandidatePayload](t, env)
	assert.Equal(t, aliceID, ice.PeerID)
	assert.JSONEq(t, string(candidate), string(ice.ICECandidate))

	require.NoError(t, testhelpers.CloseWebSocket(bob))

	env = testhelpers.ReadUntil(t, alice, protocol.ActionRemovePeer, readTimeout)
	assert.Equal(t, bobID, testhelpers.Payload[protocol.RemovePeerPayload](t, env).PeerID)
	env = testhelpers.ReadUntil(t, alice, protocol.ActionShareRooms, readTimeout)
	assert.Equal(t, []string{testRoom}, testhelpers.Payload[protocol.ShareRoomsPayload](t, env).Rooms)

	assert.Eventually(t, func() bool { return s.hub.ClientCount() == 1 }, readTimeout, 10*time.Millisecond)
}

// TestLeaveKeepsConnectionOpen verifies that leave tears down peers but the
// connection can still join again.
func TestLeaveKeepsConnectionOpen(t *testing.T) {
	s := startRelay(t)

	alice := s.connect(t)
	bob := s.connect(t)
	testhelpers.ReadUntil(t, alice, protocol.ActionShareRooms, readTimeout)

	join(t, alice, testRoom)
	join(t, bob, testRoom)
	bobID := readAddPeer(t, alice).PeerID
	readAddPeer(t, bob)

	require.NoError(t, testhelpers.SendEnvelope(bob, protocol.ActionLeave, nil))

	env := testhelpers.ReadUntil(t, alice, protocol.ActionRemovePeer, readTimeout)
	assert.Equal(t, bobID, testhelpers.Payload[protocol.RemovePeerPayload](t, env).PeerID)
	testhelpers.ReadUntil(t, bob, protocol.ActionRemovePeer, readTimeout)

	join(t, bob, testRoom)
	assert.Equal(t, bobID, readAddPeer(t, alice).PeerID)
	assert.Equal(t, 2, s.hub.ClientCount())
}

// TestMalformedFramesAreIgnored verifies that garbage from a client neither
// closes its connection nor reaches other peers.
func TestMalformedFramesAreIgnored(t *testing.T) {
	s := startRelay(t)

	alice := s.connect(t)
	bob := s.connect(t)
	testhelpers.ReadUntil(t, alice, protocol.ActionShareRooms, readTimeout)

	for _, frame := range []string{"hello", `{"action":"nope"}`, `{"action":"join","payload":{"room":"lobby"}}`} {
		require.NoError(t, bob.WriteMessage(websocket.TextMessage, []byte(frame)))
	}
	require.NoError(t, bob.WriteMessage(websocket.BinaryMessage, []byte{0x01, 0x02}))

	// The connection still works afterwards.
	join(t, bob, testRoom)
	env := testhelpers.ReadUntil(t, alice, protocol.ActionShareRooms, readTimeout)
	assert.Equal(t, []string{testRoom}, testhelpers.Payload[protocol.ShareRoomsPayload](t, env).Rooms)
}

// TestRelayToUnknownPeerIsDropped verifies that a relay to an id that is not
// connected produces no traffic.
func TestRelayToUnknownPeerIsDropped(t *testing.T) {
	s := startRelay(t)

	alice := s.connect(t)
	require.NoError(t, testhelpers.SendEnvelope(alice, protocol.ActionRelayICE,
		protocol.ICECandidatePayload{PeerID: "not-a-peer", ICECandidate: json.RawMessage(`{}`)}))

	testhelpers.ExpectSilence(t, alice, 200*time.Millisecond)
}

// TestOversizedFrameClosesConnection verifies the inbound frame limit.
func TestOversizedFrameClosesConnection(t *testing.T) {
	s := startRelay(t)
	cfg := server.CurrentConfig()
	cfg.MaxMessageSize = 128
	server.SetConfig(&cfg)

	conn := s.connect(t)
	big := `{"action":"join","payload":{"room":"` + strings.Repeat("x", 256) + `"}}`
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(big)))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(readTimeout)))
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			break
		}
	}
	assert.Eventually(t, func() bool { return s.hub.ClientCount() == 0 }, readTimeout, 10*time.Millisecond)
}

// TestOriginCheck verifies the configured allow-list on the upgrade.
func TestOriginCheck(t *testing.T) {
	s := startRelay(t)

	_, err := testhelpers.ConnectWebSocketWithOrigin(s.wsURL, "http://evil.example")
	assert.Error(t, err)

	_, err = testhelpers.ConnectWebSocketWithOrigin(s.wsURL, "")
	assert.Error(t, err, "missing origin is rejected without the wildcard")

	cfg := server.CurrentConfig()
	cfg.AllowedOrigins = []string{"*"}
	server.SetConfig(&cfg)

	conn, err := testhelpers.ConnectWebSocketWithOrigin(s.wsURL, "")
	require.NoError(t, err)
	_ = conn.Close()
}

// TestRoomsEndpoint verifies the JSON room listing.
func TestRoomsEndpoint(t *testing.T) {
	s := startRelay(t)

	resp := testhelpers.MakeRequest(t, http.MethodGet, s.http.URL+"/rooms")
	var body struct {
		Rooms []string `json:"rooms"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	assert.NotNil(t, body.Rooms)
	assert.Empty(t, body.Rooms)

	conn := s.connect(t)
	join(t, conn, testRoom)
	testhelpers.ReadUntil(t, conn, protocol.ActionShareRooms, readTimeout)

	resp = testhelpers.MakeRequest(t, http.MethodGet, s.http.URL+"/rooms")
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	_ = resp.Body.Close()
	assert.Equal(t, []string{testRoom}, body.Rooms)
}

// TestHealthAndMetricsEndpoints verifies the plain HTTP routes.
func TestHealthAndMetricsEndpoints(t *testing.T) {
	s := startRelay(t)
	s.connect(t)

	resp := testhelpers.MakeRequest(t, http.MethodGet, s.http.URL+"/")
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/plain", resp.Header.Get("Content-Type"))

	resp = testhelpers.MakeRequest(t, http.MethodGet, s.http.URL+"/metrics")
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

// TestWebSocketHandlerMethodValidation verifies that only GET may upgrade.
func TestWebSocketHandlerMethodValidation(t *testing.T) {
	hub, _ := server.NewSignalingHub(zaptest.NewLogger(t))

	for _, method := range []string{http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodPatch} {
		t.Run(method, func(t *testing.T) {
			req := httptest.NewRequest(method, "/ws", nil)
			w := httptest.NewRecorder()

			server.WebSocketHandler(hub)(w, req)

			assert.Equal(t, http.StatusMethodNotAllowed, w.Code)
			assert.Equal(t, "Method not allowed. WebSocket endpoint only accepts GET requests.", strings.TrimSpace(w.Body.String()))
		})
	}
}

// TestWebSocketHandlerGETWithoutUpgrade verifies that a plain GET is refused
// by the upgrader.
func TestWebSocketHandlerGETWithoutUpgrade(t *testing.T) {
	hub, _ := server.NewSignalingHub(zaptest.NewLogger(t))
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	w := httptest.NewRecorder()

	server.WebSocketHandler(hub)(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
}
