// Package signaling implements the room join/leave protocol and the relay of
// session descriptions and ICE candidates between peers.
//
// A connection moves through Connected, any number of independent per-room
// joins, and Disconnected. Every failure in here degrades to a log line: no
// error is ever reported back to a client.
package signaling

import (
	"encoding/json"
	"errors"
	"sync"

	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/relay"
	"github.com/Tyrowin/roomrelay/internal/room"
	"go.uber.org/zap"
)

// Handler dispatches client messages to Membership and the relay Engine.
//
// mu is held across each membership change and the frames it produces, so
// every client sees add-peer, remove-peer and share-rooms in the order the
// changes were applied. Senders only enqueue, so no network write happens
// under mu.
type Handler struct {
	mu         sync.Mutex
	membership *room.Membership
	engine     *relay.Engine
	logger     *zap.Logger
}

// NewHandler wires a Handler over membership, delivering through sender.
func NewHandler(membership *room.Membership, sender relay.Sender, logger *zap.Logger) *Handler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Handler{
		membership: membership,
		engine:     relay.NewEngine(sender, membership, logger.Named("relay")),
		logger:     logger,
	}
}

// Membership returns the state the handler mutates.
func (h *Handler) Membership() *room.Membership {
	return h.membership
}

// Connect registers a new connection and shares the room list with everyone.
func (h *Handler) Connect(id room.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.membership.Connect(id)
	h.logger.Info("connection opened", zap.String("conn_id", string(id)))
	h.shareRooms()
}

// Handle decodes one inbound frame and runs the matching transition.
func (h *Handler) Handle(id room.ConnID, frame []byte) {
	env, err := protocol.Decode(frame)
	if err != nil {
		h.ignore(id, env.Action, "undecodable frame", err)
		return
	}

	switch env.Action {
	case protocol.ActionJoin:
		var payload protocol.JoinPayload
		if err := protocol.DecodePayload(env, &payload); err != nil {
			h.ignore(id, env.Action, "malformed join", err)
			return
		}
		h.Join(id, payload.Room)

	case protocol.ActionLeave:
		metrics.Inbound(string(env.Action), "handled")
		h.Leave(id)

	case protocol.ActionRelaySDP:
		var payload protocol.SessionDescriptionPayload
		if err := protocol.DecodePayload(env, &payload); err != nil {
			h.ignore(id, env.Action, "malformed relay", err)
			return
		}
		h.Relay(id, room.ConnID(payload.PeerID), env.Action, payload.SessionDescription)

	case protocol.ActionRelayICE:
		var payload protocol.ICECandidatePayload
		if err := protocol.DecodePayload(env, &payload); err != nil {
			h.ignore(id, env.Action, "malformed relay", err)
			return
		}
		h.Relay(id, room.ConnID(payload.PeerID), env.Action, payload.ICECandidate)

	default:
		h.ignore(id, env.Action, "server action sent by client", nil)
	}
}

// Join adds id to roomID. Existing members are told to expect an offer from
// id, and id is told to create an offer for each of them, so every pair has
// exactly one offering side.
func (h *Handler) Join(id room.ConnID, roomID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	peers, err := h.membership.Join(id, roomID)
	switch {
	case errors.Is(err, room.ErrAlreadyJoined):
		h.logger.Warn("already joined", zap.String("conn_id", string(id)), zap.String("room_id", roomID))
		metrics.Inbound(string(protocol.ActionJoin), "ignored")
		return
	case err != nil:
		h.ignore(id, protocol.ActionJoin, "join refused", err)
		return
	}

	for _, peer := range peers {
		h.send(peer, protocol.ActionAddPeer, protocol.AddPeerPayload{PeerID: string(id), CreateOffer: false})
		h.send(id, protocol.ActionAddPeer, protocol.AddPeerPayload{PeerID: string(peer), CreateOffer: true})
	}

	metrics.Inbound(string(protocol.ActionJoin), "handled")
	h.logger.Info("joined room",
		zap.String("conn_id", string(id)),
		zap.String("room_id", roomID),
		zap.Int("peers", len(peers)))
	h.shareRooms()
}

// Leave removes id from every room it joined, tears down each pair on both
// sides, then shares the room list once.
func (h *Handler) Leave(id room.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.teardown(id, h.membership.Leave(id))
	h.shareRooms()
}

// Disconnect runs the Leave cleanup and forgets id. Calling it for a
// connection that is already gone does nothing.
func (h *Handler) Disconnect(id room.ConnID) {
	h.mu.Lock()
	defer h.mu.Unlock()

	left, ok := h.membership.Disconnect(id)
	if !ok {
		h.logger.Debug("disconnect for unknown connection", zap.String("conn_id", string(id)))
		return
	}
	h.teardown(id, left)
	h.logger.Info("connection closed", zap.String("conn_id", string(id)), zap.Int("rooms_left", len(left)))
	h.shareRooms()
}

// Relay forwards a handshake payload from one peer to another. A target that
// is not connected makes this a no-op.
func (h *Handler) Relay(from, target room.ConnID, kind protocol.Action, payload json.RawMessage) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.membership.IsConnected(target) {
		h.logger.Debug("relay target not connected",
			zap.String("conn_id", string(from)),
			zap.String("peer_id", string(target)),
			zap.String("action", string(kind)))
		metrics.Inbound(string(kind), "ignored")
		return
	}

	switch kind {
	case protocol.ActionRelaySDP:
		h.send(target, protocol.ActionSessionDescription, protocol.SessionDescriptionPayload{
			PeerID:             string(from),
			SessionDescription: payload,
		})
	case protocol.ActionRelayICE:
		h.send(target, protocol.ActionICECandidate, protocol.ICECandidatePayload{
			PeerID:       string(from),
			ICECandidate: payload,
		})
	default:
		h.ignore(from, kind, "not a relay action", nil)
		return
	}
	metrics.Inbound(string(kind), "handled")
}

// teardown runs after id has been removed from every room in left, so the
// room fan-out reaches exactly the remaining members.
func (h *Handler) teardown(id room.ConnID, left map[string][]room.ConnID) {
	for roomID, others := range left {
		if len(others) > 0 {
			h.engine.SendToRoom(roomID, h.envelope(protocol.ActionRemovePeer, protocol.RemovePeerPayload{PeerID: string(id)}), id)
		}
		for _, other := range others {
			h.send(id, protocol.ActionRemovePeer, protocol.RemovePeerPayload{PeerID: string(other)})
		}
		h.logger.Info("left room", zap.String("conn_id", string(id)), zap.String("room_id", roomID))
	}
}

func (h *Handler) shareRooms() {
	h.engine.SendToAll(h.envelope(protocol.ActionShareRooms, protocol.ShareRoomsPayload{Rooms: h.membership.Rooms()}))
	metrics.SetMembership(h.membership.Counts())
}

func (h *Handler) send(to room.ConnID, action protocol.Action, payload any) {
	h.engine.SendTo(to, h.envelope(action, payload))
}

// envelope builds an outbound message. Payload types are fixed structs, so a
// marshalling failure is a programming error that is logged and sent bare.
func (h *Handler) envelope(action protocol.Action, payload any) protocol.Envelope {
	env, err := protocol.New(action, payload)
	if err != nil {
		h.logger.Error("encode payload", zap.String("action", string(action)), zap.Error(err))
		return protocol.Envelope{Action: action}
	}
	return env
}

func (h *Handler) ignore(id room.ConnID, action protocol.Action, reason string, err error) {
	fields := []zap.Field{zap.String("conn_id", string(id)), zap.String("action", string(action))}
	if err != nil {
		fields = append(fields, zap.Error(err))
	}
	h.logger.Warn(reason, fields...)

	label := string(action)
	if !action.IsClientAction() && !action.IsServerAction() {
		label = "unknown"
	}
	metrics.Inbound(label, "ignored")
}
