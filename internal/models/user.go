package models

import "time"

// User represents a chat participant.
type User struct {
	ID        string    `json:"uid"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserRef is the public profile embedded in chats and messages.
type UserRef struct {
	UID   string `json:"uid"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Ref returns the embeddable profile of u.
func (u *User) Ref() *UserRef {
	return &UserRef{UID: u.ID, Name: u.Name, Email: u.Email}
}
