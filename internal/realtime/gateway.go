//go:generate go run go.uber.org/mock/mockgen -source=gateway.go -destination=../mocks/mock_gateway.go -package=mocks

package realtime

import (
	"context"

	"github.com/aswatji/serverchat/internal/models"
)

// Gateway is the slice of the persistence layer the engine depends on.
type Gateway interface {
	CreateMessage(ctx context.Context, chatID, senderID, content string) (*models.Message, error)
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetChat(ctx context.Context, id string) (*models.Chat, error)
}

// MessageHook receives every persisted message after it has been delivered.
// Hooks are best-effort and never affect the send result.
type MessageHook interface {
	Name() string
	HandleMessage(ctx context.Context, msg *models.Message) error
}
