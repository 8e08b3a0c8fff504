package events

import (
	"context"

	"github.com/aswatji/serverchat/internal/models"
)

type chatLookup interface {
	GetChat(ctx context.Context, id string) (*models.Chat, error)
}

type recentRecorder interface {
	RecordLastMessage(ctx context.Context, chat *models.Chat, msg *models.Message) error
}

// RecentChatsHook projects each persisted message into the Redis recent-chats
// read model of both participants.
type RecentChatsHook struct {
	chats  chatLookup
	recent recentRecorder
}

// NewRecentChatsHook creates the hook. chats is usually the relational store
// and recent the Redis store.
func NewRecentChatsHook(chats chatLookup, recent recentRecorder) *RecentChatsHook {
	return &RecentChatsHook{chats: chats, recent: recent}
}

// Name identifies the hook in logs and metrics.
func (h *RecentChatsHook) Name() string {
	return "recent_chats"
}

// HandleMessage records msg as the last message of its chat.
func (h *RecentChatsHook) HandleMessage(ctx context.Context, msg *models.Message) error {
	chat, err := h.chats.GetChat(ctx, msg.ChatID)
	if err != nil {
		return err
	}
	return h.recent.RecordLastMessage(ctx, chat, msg)
}
