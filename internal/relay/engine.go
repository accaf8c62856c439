// Package relay addresses protocol envelopes to one connection, to the
// members of a room, or to every connection.
package relay

import (
	"slices"

	"github.com/Tyrowin/roomrelay/internal/metrics"
	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
	"go.uber.org/zap"
)

// Sender hands one encoded frame to the transport. It returns false when the
// connection is gone or cannot accept the frame; callers treat that as a
// dropped delivery, never as an error.
type Sender interface {
	Send(id room.ConnID, frame []byte) bool
}

// Engine fans envelopes out over a Sender. Recipient lists are snapshots
// taken from Membership, so no lock is held while sending.
type Engine struct {
	sender     Sender
	membership *room.Membership
	logger     *zap.Logger
}

// NewEngine returns an Engine over sender and membership.
func NewEngine(sender Sender, membership *room.Membership, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{sender: sender, membership: membership, logger: logger}
}

// SendTo delivers env to a single connection.
func (e *Engine) SendTo(id room.ConnID, env protocol.Envelope) bool {
	return e.fanOut(env, []room.ConnID{id}) == 1
}

// SendToRoom delivers env to every member of roomID except the excluded ids.
func (e *Engine) SendToRoom(roomID string, env protocol.Envelope, exclude ...room.ConnID) int {
	members := e.membership.MembersOf(roomID)
	targets := members[:0]
	for _, id := range members {
		if !slices.Contains(exclude, id) {
			targets = append(targets, id)
		}
	}
	return e.fanOut(env, targets)
}

// SendToAll delivers env to every registered connection.
func (e *Engine) SendToAll(env protocol.Envelope) int {
	return e.fanOut(env, e.membership.Connections())
}

func (e *Engine) fanOut(env protocol.Envelope, targets []room.ConnID) int {
	if len(targets) == 0 {
		return 0
	}
	frame, err := protocol.Encode(env)
	if err != nil {
		e.logger.Error("dropping unencodable envelope", zap.String("action", string(env.Action)), zap.Error(err))
		return 0
	}

	delivered := 0
	for _, id := range targets {
		if e.sender.Send(id, frame) {
			delivered++
			continue
		}
		e.logger.Debug("delivery dropped", zap.String("action", string(env.Action)), zap.String("conn_id", string(id)))
	}
	metrics.Outbound(string(env.Action), delivered, len(targets)-delivered)
	return delivered
}
