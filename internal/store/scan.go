package store

import (
	"time"

	"github.com/aswatji/serverchat/internal/models"
)

// rowScanner is satisfied by pgx.Row, pgx.Rows, *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanChat(row rowScanner) (*models.Chat, error) {
	var (
		chat   models.Chat
		u1, u2 models.UserRef
	)
	err := row.Scan(
		&chat.ID, &chat.User1ID, &chat.User2ID, &chat.CreatedAt,
		&u1.Name, &u1.Email, &u2.Name, &u2.Email,
	)
	if err != nil {
		return nil, err
	}
	u1.UID, u2.UID = chat.User1ID, chat.User2ID
	chat.User1, chat.User2 = &u1, &u2
	return &chat, nil
}

func scanMessage(row rowScanner) (*models.Message, error) {
	var (
		msg         models.Message
		name, email *string
	)
	err := row.Scan(
		&msg.ID, &msg.ChatID, &msg.SenderID, &msg.Content, &msg.SentAt, &msg.UpdatedAt,
		&name, &email,
	)
	if err != nil {
		return nil, err
	}
	msg.Sender = &models.UserRef{UID: msg.SenderID}
	if name != nil {
		msg.Sender.Name = *name
	}
	if email != nil {
		msg.Sender.Email = *email
	}
	return &msg, nil
}

// lastMessageRow holds the nullable columns of a chat's latest message.
type lastMessageRow struct {
	ID       *string
	SenderID *string
	Content  *string
	SentAt   *time.Time
}

func (r lastMessageRow) messages(chatID string) []models.Message {
	if r.ID == nil {
		return nil
	}
	msg := models.Message{ID: *r.ID, ChatID: chatID}
	if r.SenderID != nil {
		msg.SenderID = *r.SenderID
	}
	if r.Content != nil {
		msg.Content = *r.Content
	}
	if r.SentAt != nil {
		msg.SentAt = *r.SentAt
	}
	return []models.Message{msg}
}
