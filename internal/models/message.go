package models

import "time"

// Message represents a persisted chat message.
type Message struct {
	ID        string     `json:"message_id"` // ULID
	ChatID    string     `json:"chat_id"`
	SenderID  string     `json:"sender_id"`
	Content   string     `json:"content"`
	SentAt    time.Time  `json:"sent_at"`
	UpdatedAt *time.Time `json:"updated_at,omitempty"`
	Sender    *UserRef   `json:"sender,omitempty"`
}
