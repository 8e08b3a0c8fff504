package realtime

import (
	"errors"
	"sync"

	"github.com/samber/lo"

	"github.com/aswatji/serverchat/internal/ids"
)

var (
	// ErrSessionClosed is returned by Send after Close.
	ErrSessionClosed = errors.New("session closed")
	// ErrSendBufferFull is returned by Send when the outbound queue is full.
	ErrSendBufferFull = errors.New("send buffer full")
)

const defaultSendBuffer = 256

// Session is one live client connection. It owns a bounded outbound queue
// that the transport drains, and mirrors the rooms it has joined.
type Session struct {
	id   string
	send chan []byte
	done chan struct{}

	mu      sync.Mutex
	closed  bool
	reason  string
	rooms   map[string]struct{}
	onClose func(s *Session, reason string)
}

// NewSession creates a session with an outbound queue of the given size.
func NewSession(buffer int) *Session {
	if buffer <= 0 {
		buffer = defaultSendBuffer
	}
	return &Session{
		id:    ids.NewSessionID(),
		send:  make(chan []byte, buffer),
		done:  make(chan struct{}),
		rooms: make(map[string]struct{}),
	}
}

// ID returns the opaque connection handle.
func (s *Session) ID() string {
	return s.id
}

// Send enqueues a frame without blocking.
func (s *Session) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Outbound is drained by the transport's write loop.
func (s *Session) Outbound() <-chan []byte {
	return s.send
}

// Done is closed when the session closes.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Closed reports whether Close has run.
func (s *Session) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

// CloseReason returns the reason passed to Close.
func (s *Session) CloseReason() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reason
}

// Close marks the session closed and runs the disconnect hook. Only the
// first call has any effect; it reports whether this call closed it.
func (s *Session) Close(reason string) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.closed = true
	s.reason = reason
	close(s.done)
	hook := s.onClose
	s.mu.Unlock()

	if hook != nil {
		hook(s, reason)
	}
	return true
}

// Rooms returns the chat ids the session has joined.
func (s *Session) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Keys(s.rooms)
}

// InRoom reports whether the session has joined chatID.
func (s *Session) InRoom(chatID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.rooms[chatID]
	return ok
}

func (s *Session) setCloseHook(fn func(*Session, string)) {
	s.mu.Lock()
	s.onClose = fn
	s.mu.Unlock()
}

func (s *Session) addRoom(chatID string) {
	s.mu.Lock()
	s.rooms[chatID] = struct{}{}
	s.mu.Unlock()
}

func (s *Session) removeRoom(chatID string) {
	s.mu.Lock()
	delete(s.rooms, chatID)
	s.mu.Unlock()
}
