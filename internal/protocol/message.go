// Package protocol defines the JSON envelope exchanged with clients and the
// payload carried by each action.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Action tags an envelope.
type Action string

// Client to server actions.
const (
	ActionJoin     Action = "join"
	ActionLeave    Action = "leave"
	ActionRelaySDP Action = "relay-sdp"
	ActionRelayICE Action = "relay-ice"
)

// Server to client actions.
const (
	ActionShareRooms         Action = "share-rooms"
	ActionAddPeer            Action = "add-peer"
	ActionRemovePeer         Action = "remove-peer"
	ActionSessionDescription Action = "session-description"
	ActionICECandidate       Action = "ice-candidate"
)

var (
	// ErrMalformedEnvelope is returned for frames that are not a JSON envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")
	// ErrUnknownAction is returned for action tags outside the protocol.
	ErrUnknownAction = errors.New("unknown action")
	// ErrMalformedPayload is returned when a payload does not match its action.
	ErrMalformedPayload = errors.New("malformed payload")
)

// Envelope is one protocol message.
type Envelope struct {
	Action  Action          `json:"action"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// JoinPayload is sent by a client entering a room.
type JoinPayload struct {
	Room string `json:"room"`
}

// ShareRoomsPayload lists every room that currently has members.
type ShareRoomsPayload struct {
	Rooms []string `json:"rooms"`
}

// AddPeerPayload tells the recipient to open a peer connection to PeerID.
// Exactly one side of each pair receives CreateOffer=true.
type AddPeerPayload struct {
	PeerID      string `json:"peerID"`
	CreateOffer bool   `json:"createOffer"`
}

// RemovePeerPayload tells the recipient to close its connection to PeerID.
type RemovePeerPayload struct {
	PeerID string `json:"peerID"`
}

// SessionDescriptionPayload carries an SDP offer or answer. The description
// is forwarded without inspection.
type SessionDescriptionPayload struct {
	PeerID             string          `json:"peerID"`
	SessionDescription json.RawMessage `json:"sessionDescription"`
}

// ICECandidatePayload carries one connectivity candidate, forwarded without
// inspection.
type ICECandidatePayload struct {
	PeerID       string          `json:"peerID"`
	ICECandidate json.RawMessage `json:"iceCandidate"`
}

// IsClientAction reports whether a client may send a.
func (a Action) IsClientAction() bool {
	switch a {
	case ActionJoin, ActionLeave, ActionRelaySDP, ActionRelayICE:
		return true
	}
	return false
}

// IsServerAction reports whether a is emitted by the server.
func (a Action) IsServerAction() bool {
	switch a {
	case ActionShareRooms, ActionAddPeer, ActionRemovePeer, ActionSessionDescription, ActionICECandidate:
		return true
	}
	return false
}

// New builds an envelope with payload marshalled to JSON. A nil payload
// produces an envelope without a payload field.
func New(action Action, payload any) (Envelope, error) {
	env := Envelope{Action: action}
	if payload == nil {
		return env, nil
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return Envelope{}, fmt.Errorf("encode %s payload: %w", action, err)
	}
	env.Payload = raw
	return env, nil
}

// Encode marshals env into a frame.
func Encode(env Envelope) ([]byte, error) {
	data, err := json.Marshal(env)
	if err != nil {
		return nil, fmt.Errorf("encode %s envelope: %w", env.Action, err)
	}
	return data, nil
}

// Decode parses a frame into an envelope and checks the action tag.
func Decode(frame []byte) (Envelope, error) {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return Envelope{}, fmt.Errorf("%w: %v", ErrMalformedEnvelope, err)
	}
	if env.Action == "" {
		return Envelope{}, fmt.Errorf("%w: missing action", ErrMalformedEnvelope)
	}
	if !env.Action.IsClientAction() && !env.Action.IsServerAction() {
		return env, fmt.Errorf("%w: %q", ErrUnknownAction, env.Action)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope payload into v.
func DecodePayload(env Envelope, v any) error {
	if len(env.Payload) == 0 || string(env.Payload) == "null" {
		return fmt.Errorf("%w: %s has no payload", ErrMalformedPayload, env.Action)
	}
	if err := json.Unmarshal(env.Payload, v); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrMalformedPayload, env.Action, err)
	}
	return nil
}
