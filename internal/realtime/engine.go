package realtime

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/aswatji/serverchat/internal/metrics"
	"github.com/aswatji/serverchat/internal/models"
)

var (
	// ErrValidationFailed is returned when an inbound event is missing required fields.
	ErrValidationFailed = errors.New("validation failed")
	// ErrNotPersisted is returned when a message could not be stored.
	ErrNotPersisted = errors.New("message not persisted")
	// ErrDeliveryFailed wraps per-session delivery errors. It is logged, never returned.
	ErrDeliveryFailed = errors.New("delivery failed")
)

// Engine applies inbound events: it persists messages and fans frames out
// to room members.
type Engine struct {
	gw          Gateway
	registry    *Registry
	logger      zerolog.Logger
	hooks       []MessageHook
	hookTimeout time.Duration
	details     bool

	hookWG sync.WaitGroup
}

// Option configures an Engine.
type Option func(*Engine)

// WithHooks registers side-channel hooks.
func WithHooks(hooks ...MessageHook) Option {
	return func(e *Engine) {
		e.hooks = append(e.hooks, hooks...)
	}
}

// WithHookTimeout bounds each hook invocation.
func WithHookTimeout(d time.Duration) Option {
	return func(e *Engine) {
		e.hookTimeout = d
	}
}

// WithErrorDetails includes underlying error text in error events.
func WithErrorDetails(enabled bool) Option {
	return func(e *Engine) {
		e.details = enabled
	}
}

// NewEngine creates an engine over a gateway and registry.
func NewEngine(gw Gateway, registry *Registry, logger zerolog.Logger, opts ...Option) *Engine {
	e := &Engine{
		gw:          gw,
		registry:    registry,
		logger:      logger.With().Str("component", "realtime").Logger(),
		hookTimeout: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Registry returns the room registry the engine delivers through.
func (e *Engine) Registry() *Registry {
	return e.registry
}

// Connect registers a new session and arranges for its cleanup on close.
func (e *Engine) Connect(s *Session) {
	s.setCloseHook(e.handleClose)
	e.registry.Register(s)
	e.logger.Info().Str("session", s.ID()).Msg("session connected")
}

// Disconnect closes the session. Cleanup runs once however often it is called.
func (e *Engine) Disconnect(s *Session, reason string) {
	s.Close(reason)
}

func (e *Engine) handleClose(s *Session, reason string) {
	left := e.registry.LeaveAll(s)
	e.registry.Unregister(s)

	e.logger.Info().
		Str("session", s.ID()).
		Str("reason", reason).
		Strs("rooms", left).
		Msg("session disconnected")

	e.broadcastAll(EventUserStatusUpdate, StatusUpdate{
		SocketID:  s.ID(),
		Status:    "offline",
		Timestamp: time.Now().UTC(),
		Reason:    reason,
	}, s)
}

// JoinRoom subscribes s to a chat and notifies the other members.
func (e *Engine) JoinRoom(s *Session, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		err := fmt.Errorf("%w: chat id is required", ErrValidationFailed)
		e.reject(s, "Chat ID is required", err)
		return err
	}

	e.registry.Join(chatID, s)
	e.logger.Debug().Str("session", s.ID()).Str("chat", chatID).Msg("joined chat")

	e.broadcastRoom(chatID, EventUserJoined, RoomNotice{
		Message:   fmt.Sprintf("User %s joined the chat", s.ID()),
		Timestamp: time.Now().UTC(),
	}, s)
	return nil
}

// LeaveRoom unsubscribes s from a chat and notifies the remaining members.
func (e *Engine) LeaveRoom(s *Session, chatID string) error {
	chatID = strings.TrimSpace(chatID)
	if chatID == "" {
		err := fmt.Errorf("%w: chat id is required", ErrValidationFailed)
		e.reject(s, "Chat ID is required", err)
		return err
	}

	e.registry.Leave(chatID, s)
	e.logger.Debug().Str("session", s.ID()).Str("chat", chatID).Msg("left chat")

	e.broadcastRoom(chatID, EventUserLeft, RoomNotice{
		Message:   fmt.Sprintf("User %s left the chat", s.ID()),
		Timestamp: time.Now().UTC(),
	}, s)
	return nil
}

// SendMessage persists a message and delivers it to every member of the
// chat, the sender included, then acknowledges the sender.
func (e *Engine) SendMessage(ctx context.Context, s *Session, req SendMessageRequest) error {
	chatID := strings.TrimSpace(req.ChatID)
	senderID := strings.TrimSpace(req.SentBy)
	content := strings.TrimSpace(req.Content)

	if chatID == "" || senderID == "" || req.Content == "" {
		err := fmt.Errorf("%w: chat_id, sent_by and content are required", ErrValidationFailed)
		e.reject(s, "chat_id, sent_by, and content are required", err)
		return err
	}
	if content == "" {
		err := fmt.Errorf("%w: empty content", ErrValidationFailed)
		e.reject(s, "Message content cannot be empty", err)
		return err
	}

	msg, err := e.gw.CreateMessage(ctx, chatID, senderID, content)
	if err != nil {
		metrics.PersistFailures.Inc()
		e.logger.Error().Err(err).
			Str("session", s.ID()).
			Str("chat", chatID).
			Msg("failed to persist message")
		err = fmt.Errorf("%w: %w", ErrNotPersisted, err)
		e.reject(s, "Failed to send message", err)
		return err
	}
	metrics.MessagesPersisted.WithLabelValues("socket").Inc()

	e.deliver(ctx, msg)

	e.sendTo(s, EventMessageSent, MessageSent{
		Success:   true,
		MessageID: msg.ID,
		Timestamp: msg.SentAt,
	})

	e.runHooks(msg)
	return nil
}

// PublishMessage delivers a message that was persisted outside the socket
// path, such as through the REST API. No acknowledgement is sent.
func (e *Engine) PublishMessage(ctx context.Context, msg *models.Message) {
	e.deliver(ctx, msg)
	e.runHooks(msg)
}

// deliver resolves the sender profile and fans new_message out to the room.
func (e *Engine) deliver(ctx context.Context, msg *models.Message) {
	if msg.Sender == nil || msg.Sender.Name == "" {
		user, err := e.gw.GetUser(ctx, msg.SenderID)
		if err != nil {
			e.logger.Warn().Err(err).
				Str("message", msg.ID).
				Str("sender", msg.SenderID).
				Msg("sender lookup failed, delivering without profile")
			msg.Sender = &models.UserRef{UID: msg.SenderID}
		} else {
			msg.Sender = user.Ref()
		}
	}

	e.broadcastRoom(msg.ChatID, EventNewMessage, newMessagePayload(msg), nil)
}

// Typing relays a typing indicator to the other members of the chat.
func (e *Engine) Typing(s *Session, req TypingRequest, isTyping bool) {
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		return
	}
	notice := TypingNotice{UserID: req.UserID, IsTyping: isTyping}
	if isTyping {
		notice.UserName = req.UserName
	}
	e.broadcastRoom(chatID, EventUserTyping, notice, s)
}

// ReadReceipt relays a read receipt to the other members of the chat.
func (e *Engine) ReadReceipt(s *Session, req ReadRequest) {
	chatID := strings.TrimSpace(req.ChatID)
	if chatID == "" {
		return
	}
	e.broadcastRoom(chatID, EventMessageReadStatus, ReadStatus{
		MessageID: req.MessageID,
		ReadBy:    req.UserID,
		ReadAt:    time.Now().UTC(),
	}, s)
}

// Presence relays a status change to every other connected session.
func (e *Engine) Presence(s *Session, req StatusRequest) {
	e.broadcastAll(EventUserStatusUpdate, StatusUpdate{
		UserID:    req.UserID,
		Status:    req.Status,
		Timestamp: time.Now().UTC(),
	}, s)
}

// Reject reports a failed event to its originator.
func (e *Engine) Reject(s *Session, message string, err error) {
	e.reject(s, message, err)
}

func (e *Engine) reject(s *Session, message string, err error) {
	notice := ErrorNotice{Message: message}
	if e.details && err != nil {
		notice.Details = err.Error()
	}
	e.sendTo(s, EventError, notice)
}

func (e *Engine) sendTo(s *Session, event string, data any) {
	frame, err := Encode(event, data)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return
	}
	e.push(s, event, frame)
}

// broadcastRoom sends one frame to a snapshot of the room, skipping except.
func (e *Engine) broadcastRoom(chatID, event string, data any, except *Session) int {
	return e.fanout(e.registry.Members(chatID), event, data, except)
}

// broadcastAll sends one frame to every connected session, skipping except.
func (e *Engine) broadcastAll(event string, data any, except *Session) int {
	return e.fanout(e.registry.Sessions(), event, data, except)
}

func (e *Engine) fanout(targets []*Session, event string, data any, except *Session) int {
	frame, err := Encode(event, data)
	if err != nil {
		e.logger.Error().Err(err).Str("event", event).Msg("failed to encode frame")
		return 0
	}

	delivered := 0
	for _, target := range targets {
		if target == except {
			continue
		}
		if e.push(target, event, frame) {
			delivered++
		}
	}
	metrics.FanoutSize.Observe(float64(delivered))
	return delivered
}

// push enqueues a frame on one session. A failure never affects other recipients.
func (e *Engine) push(s *Session, event string, frame []byte) bool {
	err := s.Send(frame)
	if err == nil {
		return true
	}

	reason := "buffer_full"
	if errors.Is(err, ErrSessionClosed) {
		reason = "closed"
	}
	metrics.DeliveryFailures.WithLabelValues(reason).Inc()
	e.logger.Warn().
		Err(fmt.Errorf("%w: %w", ErrDeliveryFailed, err)).
		Str("session", s.ID()).
		Str("event", event).
		Msg("dropping frame")
	return false
}

func (e *Engine) runHooks(msg *models.Message) {
	if len(e.hooks) == 0 {
		return
	}
	snapshot := *msg
	for _, hook := range e.hooks {
		e.hookWG.Add(1)
		go func(hook MessageHook) {
			defer e.hookWG.Done()

			ctx, cancel := context.WithTimeout(context.Background(), e.hookTimeout)
			defer cancel()

			// Each hook gets its own copy.
			m := snapshot
			if err := hook.HandleMessage(ctx, &m); err != nil {
				metrics.SideChannelFailures.WithLabelValues(hook.Name()).Inc()
				e.logger.Warn().Err(err).
					Str("hook", hook.Name()).
					Str("message", snapshot.ID).
					Msg("message hook failed")
			}
		}(hook)
	}
}

// Wait blocks until in-flight hooks have finished.
func (e *Engine) Wait() {
	e.hookWG.Wait()
}
