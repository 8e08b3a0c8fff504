package store

import (
	"context"
	"errors"

	"github.com/aswatji/serverchat/internal/models"
)

var (
	// ErrNotFound is returned when a referenced user, chat or message does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is returned on unique constraint violations (duplicate email).
	ErrConflict = errors.New("already exists")
	// ErrConstraint is returned when a foreign key points at a missing row.
	ErrConstraint = errors.New("referenced record does not exist")
	// ErrNotParticipant is returned when a message sender is not one of the chat's two users.
	ErrNotParticipant = errors.New("sender is not a participant of the chat")
)

// DataStore defines the interface for persistent storage of users, chats and messages.
// Both PostgresStore and SQLiteStore implement this interface.
type DataStore interface {
	// Connection management
	Close()
	Ping(ctx context.Context) error

	// User operations
	CreateUser(ctx context.Context, name, email string) (*models.User, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	ListUsers(ctx context.Context, limit int) ([]models.User, error)
	UpdateUser(ctx context.Context, id string, name, email *string) (*models.User, error)
	DeleteUser(ctx context.Context, id string) error

	// Chat operations. CreateChat reports whether a new row was inserted.
	CreateChat(ctx context.Context, userA, userB string) (*models.Chat, bool, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
	ListUserChats(ctx context.Context, userID string) ([]models.Chat, error)
	DeleteChat(ctx context.Context, id string) error

	// Message operations. A limit <= 0 on ListChatMessages returns the whole history.
	CreateMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error)
	GetMessage(ctx context.Context, id string) (*models.Message, error)
	ListChatMessages(ctx context.Context, chatID string, limit, offset int) ([]models.Message, error)
	UpdateMessage(ctx context.Context, id, content string) (*models.Message, error)
	DeleteMessage(ctx context.Context, id string) error
}
