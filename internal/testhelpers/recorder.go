package testhelpers

import (
	"encoding/json"
	"sync"
	"testing"

	"github.com/Tyrowin/roomrelay/internal/protocol"
	"github.com/Tyrowin/roomrelay/internal/room"
)

// Recorder is an in-memory Sender that keeps every frame per connection.
// Connections marked with Gone reject frames like a departed transport.
type Recorder struct {
	mu     sync.Mutex
	frames map[room.ConnID][]protocol.Envelope
	gone   map[room.ConnID]bool
}

// NewRecorder returns an empty Recorder.
func NewRecorder() *Recorder {
	return &Recorder{
		frames: make(map[room.ConnID][]protocol.Envelope),
		gone:   make(map[room.ConnID]bool),
	}
}

// Send records frame for id unless id is gone.
func (r *Recorder) Send(id room.ConnID, frame []byte) bool {
	env, err := protocol.Decode(frame)
	if err != nil {
		return false
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.gone[id] {
		return false
	}
	r.frames[id] = append(r.frames[id], env)
	return true
}

// Gone makes every later Send to id fail.
func (r *Recorder) Gone(id room.ConnID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.gone[id] = true
}

// Frames returns the envelopes received by id.
func (r *Recorder) Frames(id room.ConnID) []protocol.Envelope {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]protocol.Envelope(nil), r.frames[id]...)
}

// Actions returns the action tags received by id, in order.
func (r *Recorder) Actions(id room.ConnID) []protocol.Action {
	frames := r.Frames(id)
	out := make([]protocol.Action, 0, len(frames))
	for _, env := range frames {
		out = append(out, env.Action)
	}
	return out
}

// Reset forgets all recorded frames.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = make(map[room.ConnID][]protocol.Envelope)
}

// Payload decodes the payload of env into v and fails the test on error.
func Payload[T any](t *testing.T, env protocol.Envelope) T {
	t.Helper()
	var v T
	if err := json.Unmarshal(env.Payload, &v); err != nil {
		t.Fatalf("decode %s payload: %v", env.Action, err)
	}
	return v
}
