package realtime

import (
	"sync"

	"github.com/samber/lo"

	"github.com/aswatji/serverchat/internal/metrics"
)

// Registry tracks connected sessions and which of them belong to each chat room.
// Rooms exist only while they have members.
type Registry struct {
	mu       sync.RWMutex
	rooms    map[string]map[*Session]struct{}
	sessions map[*Session]struct{}
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		rooms:    make(map[string]map[*Session]struct{}),
		sessions: make(map[*Session]struct{}),
	}
}

// Register adds a session to the connected set. Closed sessions are ignored.
func (r *Registry) Register(s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Closed() {
		return false
	}
	r.sessions[s] = struct{}{}
	metrics.ConnectedSessions.Set(float64(len(r.sessions)))
	return true
}

// Unregister removes a session from the connected set.
func (r *Registry) Unregister(s *Session) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sessions, s)
	metrics.ConnectedSessions.Set(float64(len(r.sessions)))
}

// Sessions returns a snapshot of every connected session.
func (r *Registry) Sessions() []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.sessions)
}

// Join adds s to the chat's room, creating the room if needed. Joining twice
// is a no-op. It reports whether s was added.
func (r *Registry) Join(chatID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if s.Closed() {
		return false
	}
	room, ok := r.rooms[chatID]
	if !ok {
		room = make(map[*Session]struct{})
		r.rooms[chatID] = room
	}
	if _, member := room[s]; member {
		return false
	}
	room[s] = struct{}{}
	s.addRoom(chatID)
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return true
}

// Leave removes s from the chat's room and drops the room once empty.
// It reports whether s was a member.
func (r *Registry) Leave(chatID string, s *Session) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.leaveLocked(chatID, s)
}

// LeaveAll removes s from every room it belongs to and returns those rooms.
func (r *Registry) LeaveAll(s *Session) []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	left := []string{}
	for _, chatID := range s.Rooms() {
		if r.leaveLocked(chatID, s) {
			left = append(left, chatID)
		}
	}
	return left
}

func (r *Registry) leaveLocked(chatID string, s *Session) bool {
	s.removeRoom(chatID)

	room, ok := r.rooms[chatID]
	if !ok {
		return false
	}
	if _, member := room[s]; !member {
		return false
	}
	delete(room, s)
	if len(room) == 0 {
		delete(r.rooms, chatID)
	}
	metrics.ActiveRooms.Set(float64(len(r.rooms)))
	return true
}

// Members returns a snapshot of the sessions in a room.
func (r *Registry) Members(chatID string) []*Session {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return lo.Keys(r.rooms[chatID])
}

// RoomCount returns the number of non-empty rooms.
func (r *Registry) RoomCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms)
}

// SessionCount returns the number of connected sessions.
func (r *Registry) SessionCount() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}
