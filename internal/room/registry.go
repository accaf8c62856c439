package room

import "sort"

// Registry records every active connection and the rooms it has joined.
type Registry struct {
	conns map[ConnID]map[string]struct{}
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{conns: make(map[ConnID]map[string]struct{})}
}

// Connect records connID with no joined rooms. Connecting twice keeps the
// existing joined set.
func (r *Registry) Connect(connID ConnID) {
	if _, ok := r.conns[connID]; ok {
		return
	}
	r.conns[connID] = make(map[string]struct{})
}

// IsConnected reports whether connID is registered.
func (r *Registry) IsConnected(connID ConnID) bool {
	_, ok := r.conns[connID]
	return ok
}

// JoinedRooms returns the sorted rooms connID belongs to.
func (r *Registry) JoinedRooms(connID ConnID) []string {
	return sortedKeys(r.conns[connID])
}

// RecordJoin adds roomID to the joined set of connID.
func (r *Registry) RecordJoin(connID ConnID, roomID string) {
	rooms, ok := r.conns[connID]
	if !ok {
		rooms = make(map[string]struct{})
		r.conns[connID] = rooms
	}
	rooms[roomID] = struct{}{}
}

// RecordLeave removes roomID from the joined set of connID.
func (r *Registry) RecordLeave(connID ConnID, roomID string) {
	delete(r.conns[connID], roomID)
}

// DropConnection forgets connID and returns the rooms it was in.
func (r *Registry) DropConnection(connID ConnID) []string {
	rooms := sortedKeys(r.conns[connID])
	delete(r.conns, connID)
	return rooms
}

// Connections returns every registered connection in sorted order.
func (r *Registry) Connections() []ConnID {
	out := make([]ConnID, 0, len(r.conns))
	for id := range r.conns {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Len returns the number of registered connections.
func (r *Registry) Len() int {
	return len(r.conns)
}

func sortedKeys(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
