package realtime

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aswatji/serverchat/internal/metrics"
)

// Dispatcher decodes inbound frames and routes them to the engine.
type Dispatcher struct {
	engine *Engine
}

// NewDispatcher creates a dispatcher for the given engine.
func NewDispatcher(engine *Engine) *Dispatcher {
	return &Dispatcher{engine: engine}
}

// Dispatch handles one inbound frame from s. Malformed frames and unknown
// events are reported to s; the connection stays open.
func (d *Dispatcher) Dispatch(ctx context.Context, s *Session, frame []byte) error {
	var env Envelope
	if err := json.Unmarshal(frame, &env); err != nil {
		err = fmt.Errorf("%w: malformed frame: %w", ErrValidationFailed, err)
		d.engine.Reject(s, "Invalid message format", err)
		return err
	}

	metrics.EventsReceived.WithLabelValues(eventLabel(env.Event)).Inc()

	switch env.Event {
	case EventJoinChat:
		chatID, err := decodeChatID(env.Data)
		if err != nil {
			return d.invalid(s, env.Event, err)
		}
		return d.engine.JoinRoom(s, chatID)

	case EventLeaveChat:
		chatID, err := decodeChatID(env.Data)
		if err != nil {
			return d.invalid(s, env.Event, err)
		}
		return d.engine.LeaveRoom(s, chatID)

	case EventSendMessage:
		var req SendMessageRequest
		if err := decodeData(env.Data, &req); err != nil {
			return d.invalid(s, env.Event, err)
		}
		return d.engine.SendMessage(ctx, s, req)

	case EventTypingStart, EventTypingStop:
		var req TypingRequest
		if err := decodeData(env.Data, &req); err != nil {
			return d.invalid(s, env.Event, err)
		}
		d.engine.Typing(s, req, env.Event == EventTypingStart)
		return nil

	case EventMessageRead:
		var req ReadRequest
		if err := decodeData(env.Data, &req); err != nil {
			return d.invalid(s, env.Event, err)
		}
		d.engine.ReadReceipt(s, req)
		return nil

	case EventUserStatus:
		var req StatusRequest
		if err := decodeData(env.Data, &req); err != nil {
			return d.invalid(s, env.Event, err)
		}
		d.engine.Presence(s, req)
		return nil

	default:
		err := fmt.Errorf("%w: unknown event %q", ErrValidationFailed, env.Event)
		d.engine.Reject(s, "Unknown event", err)
		return err
	}
}

func (d *Dispatcher) invalid(s *Session, event string, err error) error {
	err = fmt.Errorf("%w: %s payload: %w", ErrValidationFailed, event, err)
	d.engine.Reject(s, "Invalid "+event+" payload", err)
	return err
}

// decodeChatID accepts either a bare chat id string or {"chatId": "..."}.
func decodeChatID(data json.RawMessage) (string, error) {
	if len(data) == 0 {
		return "", nil
	}
	var id string
	if err := json.Unmarshal(data, &id); err == nil {
		return id, nil
	}
	var obj struct {
		ChatID    string `json:"chatId"`
		ChatIDAlt string `json:"chat_id"`
	}
	if err := json.Unmarshal(data, &obj); err != nil {
		return "", err
	}
	if obj.ChatID != "" {
		return obj.ChatID, nil
	}
	return obj.ChatIDAlt, nil
}

func decodeData(data json.RawMessage, v any) error {
	if len(data) == 0 || strings.TrimSpace(string(data)) == "null" {
		return nil
	}
	return json.Unmarshal(data, v)
}

// eventLabel bounds metric cardinality to the known event names.
func eventLabel(event string) string {
	switch event {
	case EventJoinChat, EventLeaveChat, EventSendMessage, EventTypingStart,
		EventTypingStop, EventMessageRead, EventUserStatus:
		return event
	}
	return "unknown"
}
