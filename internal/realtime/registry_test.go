package realtime

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_JoinIsIdempotent(t *testing.T) {
	r := NewRegistry()
	s := NewSession(4)

	assert.True(t, r.Join("chat-1", s))
	assert.False(t, r.Join("chat-1", s))

	assert.Len(t, r.Members("chat-1"), 1)
	assert.Equal(t, 1, r.RoomCount())
	assert.True(t, s.InRoom("chat-1"))
}

func TestRegistry_LeaveDropsEmptyRoom(t *testing.T) {
	r := NewRegistry()
	a, b := NewSession(4), NewSession(4)

	r.Join("chat-1", a)
	r.Join("chat-1", b)

	assert.True(t, r.Leave("chat-1", a))
	assert.Equal(t, 1, r.RoomCount())
	assert.Equal(t, []*Session{b}, r.Members("chat-1"))

	assert.True(t, r.Leave("chat-1", b))
	assert.Equal(t, 0, r.RoomCount())
	assert.Empty(t, r.Members("chat-1"))

	assert.False(t, r.Leave("chat-1", b), "leaving a room twice is a no-op")
	assert.False(t, r.Leave("never-joined", a))
}

func TestRegistry_LeaveAll(t *testing.T) {
	r := NewRegistry()
	s, other := NewSession(4), NewSession(4)

	r.Join("chat-1", s)
	r.Join("chat-2", s)
	r.Join("chat-2", other)

	left := r.LeaveAll(s)
	assert.ElementsMatch(t, []string{"chat-1", "chat-2"}, left)
	assert.Empty(t, s.Rooms())
	assert.Equal(t, 1, r.RoomCount())
	assert.Equal(t, []*Session{other}, r.Members("chat-2"))
}

func TestRegistry_MembersIsSnapshot(t *testing.T) {
	r := NewRegistry()
	a, b := NewSession(4), NewSession(4)
	r.Join("chat-1", a)

	members := r.Members("chat-1")
	r.Join("chat-1", b)

	assert.Len(t, members, 1)
	assert.Len(t, r.Members("chat-1"), 2)
}

func TestRegistry_ClosedSessionsAreRejected(t *testing.T) {
	r := NewRegistry()
	s := NewSession(4)
	s.Close("gone")

	assert.False(t, r.Register(s))
	assert.False(t, r.Join("chat-1", s))
	assert.Equal(t, 0, r.SessionCount())
	assert.Equal(t, 0, r.RoomCount())
}

func TestRegistry_ConcurrentJoinLeave(t *testing.T) {
	r := NewRegistry()
	sessions := make([]*Session, 50)
	for i := range sessions {
		sessions[i] = NewSession(4)
		require.True(t, r.Register(sessions[i]))
	}

	var wg sync.WaitGroup
	for _, s := range sessions {
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				r.Join("hot", s)
				_ = r.Members("hot")
				r.Leave("hot", s)
			}
			r.Join("hot", s)
		}(s)
	}
	wg.Wait()

	assert.Len(t, r.Members("hot"), len(sessions))
	assert.Equal(t, len(sessions), r.SessionCount())

	for _, s := range sessions {
		r.LeaveAll(s)
		r.Unregister(s)
	}
	assert.Equal(t, 0, r.RoomCount())
	assert.Equal(t, 0, r.SessionCount())
}
