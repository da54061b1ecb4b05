// Package presence tracks which users are online per group. The registry is
// the one process-wide mutable resource shared by all connections; it is
// mutated only by join and disconnect cleanup, and every mutation returns the
// snapshot that must be broadcast, so readers never observe a stale closure
// over the set.
//
// State is deliberately process-memory only. Running more than one server
// instance requires backing this with a shared store; the Add/Remove/Snapshot
// surface is the seam for that.
package presence

import (
	"sort"
	"sync"
)

// Registry maps group ids to the set of online user ids. A user is present in
// a group while they hold at least one live connection joined to that room,
// so membership is reference-counted per connection.
type Registry struct {
	mu    sync.RWMutex
	rooms map[string]map[string]int // groupID -> userID -> live connection count
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{rooms: make(map[string]map[string]int)}
}

// Add records one connection of user joining the group and returns the fresh
// presence snapshot for broadcast.
func (r *Registry) Add(groupID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[groupID]
	if !ok {
		room = make(map[string]int)
		r.rooms[groupID] = room
	}
	room[userID]++
	return snapshotLocked(room)
}

// Remove drops one connection of user from the group. When the user's last
// connection leaves, the user disappears from the snapshot; when the group's
// set becomes empty the entry is deleted outright. Returns the fresh snapshot
// (empty for a deleted group).
func (r *Registry) Remove(groupID, userID string) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	room, ok := r.rooms[groupID]
	if !ok {
		return []string{}
	}
	if n, ok := room[userID]; ok {
		if n <= 1 {
			delete(room, userID)
		} else {
			room[userID] = n - 1
		}
	}
	if len(room) == 0 {
		delete(r.rooms, groupID)
		return []string{}
	}
	return snapshotLocked(room)
}

// Snapshot returns the current set of online user ids for a group, sorted for
// deterministic output. Returns an empty slice for unknown groups.
func (r *Registry) Snapshot(groupID string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	room, ok := r.rooms[groupID]
	if !ok {
		return []string{}
	}
	return snapshotLocked(room)
}

// Rooms returns the number of groups with at least one online user.
func (r *Registry) Rooms() int {
	r.mu.RLock()
	n := len(r.rooms)
	r.mu.RUnlock()
	return n
}

func snapshotLocked(room map[string]int) []string {
	out := make([]string, 0, len(room))
	for id := range room {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
