package ids

import (
	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

// NewUUIDv7 generates a time-ordered UUID v7, used for users and chats.
func NewUUIDv7() string {
	return uuid.Must(uuid.NewV7()).String()
}

// NewMessageID generates a ULID. Lexical order matches creation order,
// which breaks sent_at ties deterministically.
func NewMessageID() string {
	return ulid.Make().String()
}

// NewSessionID generates the opaque handle of a realtime connection.
func NewSessionID() string {
	return ulid.Make().String()
}
