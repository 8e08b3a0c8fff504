package models

import "time"

// Chat is a conversation between exactly two users. User1ID is always the
// lexicographically smaller id, see CanonicalPair.
type Chat struct {
	ID        string    `json:"chat_id"`
	User1ID   string    `json:"user1_id"`
	User2ID   string    `json:"user2_id"`
	CreatedAt time.Time `json:"created_at"`
	User1     *UserRef  `json:"user1,omitempty"`
	User2     *UserRef  `json:"user2,omitempty"`
	Messages  []Message `json:"messages,omitempty"`
}

// HasParticipant reports whether userID is one of the two chat members.
func (c *Chat) HasParticipant(userID string) bool {
	return c.User1ID == userID || c.User2ID == userID
}

// Partner returns the other participant of the chat.
func (c *Chat) Partner(userID string) string {
	if c.User1ID == userID {
		return c.User2ID
	}
	return c.User1ID
}

// CanonicalPair orders a participant pair so {a,b} and {b,a} map to the same row.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}
