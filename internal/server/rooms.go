// Package server maintains the room membership index via the RoomTable
// type: which connections belong to which rooms.
package server

import "sync"

// RoomTable exclusively owns the room-to-connections index. Entries hold
// connection ids only, never connection state; rooms materialize on first
// join and disappear when their last member leaves.
type RoomTable struct {
	mu      sync.RWMutex
	members map[string]map[string]struct{} // room id -> connection ids
	joined  map[string]map[string]struct{} // connection id -> room ids
}

// NewRoomTable creates an empty membership table.
func NewRoomTable() *RoomTable {
	return &RoomTable{
		members: make(map[string]map[string]struct{}),
		joined:  make(map[string]map[string]struct{}),
	}
}

// Join validates the room identifier and adds the connection to the room.
// It reports whether the membership is new; joining an already-joined room
// leaves the table unchanged.
func (t *RoomTable) Join(connID, roomID string) (bool, error) {
	if err := ValidateRoomID(roomID); err != nil {
		return false, err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	room, ok := t.members[roomID]
	if !ok {
		room = make(map[string]struct{})
		t.members[roomID] = room
	}
	if _, member := room[connID]; member {
		return false, nil
	}
	room[connID] = struct{}{}

	rooms, ok := t.joined[connID]
	if !ok {
		rooms = make(map[string]struct{})
		t.joined[connID] = rooms
	}
	rooms[roomID] = struct{}{}
	return true, nil
}

// Leave removes the connection from the room. Unknown memberships are a
// no-op.
func (t *RoomTable) Leave(connID, roomID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.removeLocked(connID, roomID)
}

// LeaveAll removes the connection from every room it belongs to in one
// step under the table lock and returns the rooms that were left.
func (t *RoomTable) LeaveAll(connID string) []string {
	t.mu.Lock()
	defer t.mu.Unlock()

	rooms := t.joined[connID]
	if len(rooms) == 0 {
		delete(t.joined, connID)
		return nil
	}

	left := make([]string, 0, len(rooms))
	for roomID := range rooms {
		left = append(left, roomID)
	}
	for _, roomID := range left {
		t.removeLocked(connID, roomID)
	}
	return left
}

func (t *RoomTable) removeLocked(connID, roomID string) {
	if room, ok := t.members[roomID]; ok {
		delete(room, connID)
		if len(room) == 0 {
			delete(t.members, roomID)
		}
	}
	if rooms, ok := t.joined[connID]; ok {
		delete(rooms, roomID)
		if len(rooms) == 0 {
			delete(t.joined, connID)
		}
	}
}

// MembersOf returns a snapshot of the room's member connection ids as of
// the call. Joins after the snapshot are not included.
func (t *RoomTable) MembersOf(roomID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	room := t.members[roomID]
	if len(room) == 0 {
		return nil
	}
	snapshot := make([]string, 0, len(room))
	for connID := range room {
		snapshot = append(snapshot, connID)
	}
	return snapshot
}

// CountOf returns the room's current member count.
func (t *RoomTable) CountOf(roomID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.members[roomID])
}

// IsMember reports whether the connection currently belongs to the room.
func (t *RoomTable) IsMember(connID, roomID string) bool {
	t.mu.RLock()
	defer t.mu.RUnlock()
	_, ok := t.members[roomID][connID]
	return ok
}

// RoomsOf returns a snapshot of the rooms the connection belongs to.
func (t *RoomTable) RoomsOf(connID string) []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	rooms := t.joined[connID]
	if len(rooms) == 0 {
		return nil
	}
	snapshot := make([]string, 0, len(rooms))
	for roomID := range rooms {
		snapshot = append(snapshot, roomID)
	}
	return snapshot
}
