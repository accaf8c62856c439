// Package room tracks which connections are in which rooms.
//
// Directory maps a room to its members and Registry maps a connection to the
// rooms it joined. Neither is safe for concurrent use; Membership owns one of
// each behind a single lock so that both sides always change together.
package room

import "sort"

// Directory maps room ids to member sets. A room exists only while it has
// at least one member.
type Directory struct {
	rooms map[string]map[ConnID]struct{}
}

// NewDirectory returns an empty Directory.
func NewDirectory() *Directory {
	return &Directory{rooms: make(map[string]map[ConnID]struct{})}
}

// MembersOf returns the members of roomID, or an empty slice when the room
// is unknown.
func (d *Directory) MembersOf(roomID string) []ConnID {
	members := d.rooms[roomID]
	out := make([]ConnID, 0, len(members))
	for id := range members {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// Has reports whether connID is a member of roomID.
func (d *Directory) Has(roomID string, connID ConnID) bool {
	_, ok := d.rooms[roomID][connID]
	return ok
}

// Add inserts connID into roomID, creating the room on first insert.
func (d *Directory) Add(roomID string, connID ConnID) {
	members, ok := d.rooms[roomID]
	if !ok {
		members = make(map[ConnID]struct{})
		d.rooms[roomID] = members
	}
	members[connID] = struct{}{}
}

// Remove deletes connID from roomID and drops the room once it is empty.
func (d *Directory) Remove(roomID string, connID ConnID) {
	members, ok := d.rooms[roomID]
	if !ok {
		return
	}
	delete(members, connID)
	if len(members) == 0 {
		delete(d.rooms, roomID)
	}
}

// ListValidRooms returns every tracked room id in sorted order. Only valid
// ids are admitted, so the filter below never removes anything in practice.
func (d *Directory) ListValidRooms() []string {
	out := make([]string, 0, len(d.rooms))
	for id, members := range d.rooms {
		if len(members) == 0 || !IsValidRoomID(id) {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Len returns the number of rooms.
func (d *Directory) Len() int {
	return len(d.rooms)
}
