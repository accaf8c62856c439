package room

import (
	"errors"
	"fmt"
	"sync"
)

var (
	// ErrInvalidRoom is returned for room ids that are not version-4 UUIDs.
	ErrInvalidRoom = errors.New("room id is not a v4 uuid")
	// ErrAlreadyJoined is returned when a connection joins a room twice.
	ErrAlreadyJoined = errors.New("already joined")
	// ErrUnknownConnection is returned for connections that are not registered.
	ErrUnknownConnection = errors.New("unknown connection")
)

// Membership is the single owner of room state. Each method applies its
// Directory and Registry changes under one lock, so a connection is in a
// room's member set iff the room is in the connection's joined set.
type Membership struct {
	mu        sync.RWMutex
	directory *Directory
	registry  *Registry
}

// NewMembership returns an empty Membership.
func NewMembership() *Membership {
	return &Membership{
		directory: NewDirectory(),
		registry:  NewRegistry(),
	}
}

// Connect registers connID with no rooms.
func (m *Membership) Connect(connID ConnID) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registry.Connect(connID)
}

// Join adds connID to roomID and returns the members that were already
// there, read under the same lock as the insert.
func (m *Membership) Join(connID ConnID, roomID string) ([]ConnID, error) {
	if !IsValidRoomID(roomID) {
		return nil, fmt.Errorf("join %q: %w", roomID, ErrInvalidRoom)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.IsConnected(connID) {
		return nil, fmt.Errorf("join %q as %s: %w", roomID, connID, ErrUnknownConnection)
	}
	if m.directory.Has(roomID, connID) {
		return nil, fmt.Errorf("join %q as %s: %w", roomID, connID, ErrAlreadyJoined)
	}

	peers := m.directory.MembersOf(roomID)
	m.directory.Add(roomID, connID)
	m.registry.RecordJoin(connID, roomID)
	return peers, nil
}

// Leave removes connID from every valid room it joined. The result maps each
// left room to the other members present at the time of removal.
func (m *Membership) Leave(connID ConnID) map[string][]ConnID {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.leaveLocked(connID)
}

// Disconnect leaves every room and forgets connID. The bool is false when
// connID was not registered, which makes repeated calls harmless.
func (m *Membership) Disconnect(connID ConnID) (map[string][]ConnID, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if !m.registry.IsConnected(connID) {
		return nil, false
	}
	left := m.leaveLocked(connID)
	m.registry.DropConnection(connID)
	return left, true
}

func (m *Membership) leaveLocked(connID ConnID) map[string][]ConnID {
	left := make(map[string][]ConnID)
	for _, roomID := range m.registry.JoinedRooms(connID) {
		if !IsValidRoomID(roomID) {
			continue
		}
		var others []ConnID
		for _, member := range m.directory.MembersOf(roomID) {
			if member != connID {
				others = append(others, member)
			}
		}
		m.directory.Remove(roomID, connID)
		m.registry.RecordLeave(connID, roomID)
		left[roomID] = others
	}
	return left
}

// MembersOf returns the current members of roomID.
func (m *Membership) MembersOf(roomID string) []ConnID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.directory.MembersOf(roomID)
}

// JoinedRooms returns the rooms connID is in.
func (m *Membership) JoinedRooms(connID ConnID) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.JoinedRooms(connID)
}

// Rooms returns the ids of all non-empty rooms.
func (m *Membership) Rooms() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.directory.ListValidRooms()
}

// Connections returns every registered connection.
func (m *Membership) Connections() []ConnID {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Connections()
}

// IsConnected reports whether connID is registered.
func (m *Membership) IsConnected(connID ConnID) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.IsConnected(connID)
}

// Counts returns the number of connections and rooms.
func (m *Membership) Counts() (connections, rooms int) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.registry.Len(), m.directory.Len()
}
