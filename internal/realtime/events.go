package realtime

import (
	"encoding/json"
	"time"

	"github.com/aswatji/serverchat/internal/models"
)

// Inbound event names.
const (
	EventJoinChat    = "join_chat"
	EventLeaveChat   = "leave_chat"
	EventSendMessage = "send_message"
	EventTypingStart = "typing_start"
	EventTypingStop  = "typing_stop"
	EventMessageRead = "message_read"
	EventUserStatus  = "user_status"
)

// Outbound event names.
const (
	EventUserJoined        = "user_joined"
	EventUserLeft          = "user_left"
	EventNewMessage        = "new_message"
	EventMessageSent       = "message_sent"
	EventError             = "error"
	EventUserTyping        = "user_typing"
	EventMessageReadStatus = "message_read_status"
	EventUserStatusUpdate  = "user_status_update"
)

// Envelope is the wire format of every frame in both directions.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

// Encode builds an outbound frame.
func Encode(event string, data any) ([]byte, error) {
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	return json.Marshal(Envelope{Event: event, Data: raw})
}

// SendMessageRequest is the payload of send_message.
type SendMessageRequest struct {
	ChatID  string `json:"chat_id"`
	SentBy  string `json:"sent_by"`
	Content string `json:"content"`
}

// TypingRequest is the payload of typing_start and typing_stop.
type TypingRequest struct {
	ChatID   string `json:"chat_id"`
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
}

// ReadRequest is the payload of message_read.
type ReadRequest struct {
	ChatID    string `json:"chat_id"`
	MessageID string `json:"message_id"`
	UserID    string `json:"user_id"`
}

// StatusRequest is the payload of user_status.
type StatusRequest struct {
	UserID string `json:"user_id"`
	Status string `json:"status"`
}

// RoomNotice is the payload of user_joined and user_left.
type RoomNotice struct {
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// NewMessage is the payload of new_message.
type NewMessage struct {
	MessageID string          `json:"message_id"`
	ChatID    string          `json:"chat_id"`
	SenderID  string          `json:"sender_id"`
	Content   string          `json:"content"`
	SentAt    time.Time       `json:"sent_at"`
	Sender    *models.UserRef `json:"sender"`
}

func newMessagePayload(msg *models.Message) NewMessage {
	return NewMessage{
		MessageID: msg.ID,
		ChatID:    msg.ChatID,
		SenderID:  msg.SenderID,
		Content:   msg.Content,
		SentAt:    msg.SentAt,
		Sender:    msg.Sender,
	}
}

// MessageSent acknowledges a persisted send to its originator.
type MessageSent struct {
	Success   bool      `json:"success"`
	MessageID string    `json:"message_id"`
	Timestamp time.Time `json:"timestamp"`
}

// ErrorNotice is the payload of error. Details are only set in development.
type ErrorNotice struct {
	Message string `json:"message"`
	Details string `json:"details,omitempty"`
}

// TypingNotice is the payload of user_typing.
type TypingNotice struct {
	UserID   string `json:"user_id"`
	UserName string `json:"user_name,omitempty"`
	IsTyping bool   `json:"isTyping"`
}

// ReadStatus is the payload of message_read_status.
type ReadStatus struct {
	MessageID string    `json:"message_id"`
	ReadBy    string    `json:"read_by"`
	ReadAt    time.Time `json:"read_at"`
}

// StatusUpdate is the payload of user_status_update. UserID is set for
// explicit presence, SocketID for disconnects.
type StatusUpdate struct {
	UserID    string    `json:"user_id,omitempty"`
	SocketID  string    `json:"socket_id,omitempty"`
	Status    string    `json:"status"`
	Timestamp time.Time `json:"timestamp"`
	Reason    string    `json:"reason,omitempty"`
}
