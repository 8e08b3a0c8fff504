package serverchat

import (
	"context"
	"encoding/json"
	"net/url"
	"strings"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/aswatji/serverchat/internal/realtime"
)

// Stream is a websocket connection to the realtime endpoint.
type Stream struct {
	conn *websocket.Conn
	wmu  sync.Mutex
}

// Dial opens a stream against the client's base URL.
func (c *Client) Dial(ctx context.Context) (*Stream, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return nil, err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"

	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, err
	}
	return &Stream{conn: conn}, nil
}

// Emit sends one event.
func (s *Stream) Emit(event string, data any) error {
	frame, err := realtime.Encode(event, data)
	if err != nil {
		return err
	}
	s.wmu.Lock()
	defer s.wmu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, frame)
}

// Join subscribes the stream to a chat room.
func (s *Stream) Join(chatID string) error {
	return s.Emit(realtime.EventJoinChat, chatID)
}

// Leave unsubscribes the stream from a chat room.
func (s *Stream) Leave(chatID string) error {
	return s.Emit(realtime.EventLeaveChat, chatID)
}

// Send persists and broadcasts a message over the stream.
func (s *Stream) Send(chatID, senderID, content string) error {
	return s.Emit(realtime.EventSendMessage, realtime.SendMessageRequest{
		ChatID:  chatID,
		SentBy:  senderID,
		Content: content,
	})
}

// Next blocks until the next server event arrives.
func (s *Stream) Next() (*realtime.Envelope, error) {
	_, frame, err := s.conn.ReadMessage()
	if err != nil {
		return nil, err
	}
	var env realtime.Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		return nil, err
	}
	return &env, nil
}

// Close sends a close frame and closes the connection.
func (s *Stream) Close() error {
	s.wmu.Lock()
	s.conn.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	s.wmu.Unlock()
	return s.conn.Close()
}
