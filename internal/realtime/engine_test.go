package realtime_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aswatji/serverchat/internal/mocks"
	"github.com/aswatji/serverchat/internal/models"
	"github.com/aswatji/serverchat/internal/realtime"
	"github.com/aswatji/serverchat/internal/store"
)

type frame struct {
	Event string
	Data  map[string]any
}

// drain returns every frame queued on s without blocking.
func drain(t *testing.T, s *realtime.Session) []frame {
	t.Helper()
	var frames []frame
	for {
		select {
		case raw := <-s.Outbound():
			var env realtime.Envelope
			require.NoError(t, json.Unmarshal(raw, &env))
			f := frame{Event: env.Event}
			if len(env.Data) > 0 {
				require.NoError(t, json.Unmarshal(env.Data, &f.Data))
			}
			frames = append(frames, f)
		default:
			return frames
		}
	}
}

func events(frames []frame) []string {
	out := make([]string, len(frames))
	for i, f := range frames {
		out[i] = f.Event
	}
	return out
}

func newEngine(t *testing.T, opts ...realtime.Option) (*realtime.Engine, *mocks.MockGateway) {
	t.Helper()
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	return realtime.NewEngine(gw, realtime.NewRegistry(), zerolog.Nop(), opts...), gw
}

func connect(e *realtime.Engine) *realtime.Session {
	s := realtime.NewSession(16)
	e.Connect(s)
	return s
}

func persisted(chatID, senderID, content string) *models.Message {
	return &models.Message{
		ID:       "01HZZZZZZZZZZZZZZZZZZZZZZZ",
		ChatID:   chatID,
		SenderID: senderID,
		Content:  content,
		SentAt:   time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC),
	}
}

func TestEngine_SendMessageDeliversOnceToEveryMember(t *testing.T) {
	e, gw := newEngine(t)
	ctx := context.Background()

	a, b := connect(e), connect(e)
	outsider := connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))
	require.NoError(t, e.JoinRoom(b, "chat-1"))
	drain(t, a)
	drain(t, b)

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-a", "hello").
		Return(persisted("chat-1", "user-a", "hello"), nil)
	gw.EXPECT().GetUser(gomock.Any(), "user-a").
		Return(&models.User{ID: "user-a", Name: "Alice", Email: "a@example.com"}, nil)

	err := e.SendMessage(ctx, a, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-a", Content: "  hello  "})
	require.NoError(t, err)

	fromA := drain(t, a)
	assert.Equal(t, []string{realtime.EventNewMessage, realtime.EventMessageSent}, events(fromA))
	assert.Equal(t, "hello", fromA[0].Data["content"])
	assert.Equal(t, true, fromA[1].Data["success"])
	assert.Equal(t, "01HZZZZZZZZZZZZZZZZZZZZZZZ", fromA[1].Data["message_id"])

	fromB := drain(t, b)
	require.Equal(t, []string{realtime.EventNewMessage}, events(fromB))
	assert.Equal(t, "hello", fromB[0].Data["content"])
	sender, ok := fromB[0].Data["sender"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "Alice", sender["name"])

	assert.Empty(t, drain(t, outsider))
}

func TestEngine_SendMessageRejectsEmptyContent(t *testing.T) {
	e, _ := newEngine(t)

	a, b := connect(e), connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))
	require.NoError(t, e.JoinRoom(b, "chat-1"))
	drain(t, a)
	drain(t, b)

	for _, content := range []string{"", "   ", "\n\t"} {
		err := e.SendMessage(context.Background(), a, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-a", Content: content})
		assert.ErrorIs(t, err, realtime.ErrValidationFailed)
	}

	assert.Equal(t, []string{realtime.EventError, realtime.EventError, realtime.EventError}, events(drain(t, a)))
	assert.Empty(t, drain(t, b))
}

func TestEngine_SendMessageRequiresFields(t *testing.T) {
	e, _ := newEngine(t)
	a := connect(e)

	err := e.SendMessage(context.Background(), a, realtime.SendMessageRequest{Content: "hi"})
	assert.ErrorIs(t, err, realtime.ErrValidationFailed)

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Equal(t, "chat_id, sent_by, and content are required", got[0].Data["message"])
}

func TestEngine_PersistFailureIsNeverBroadcast(t *testing.T) {
	e, gw := newEngine(t)

	a, b := connect(e), connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))
	require.NoError(t, e.JoinRoom(b, "chat-1"))
	drain(t, a)
	drain(t, b)

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-z", "hi").
		Return(nil, store.ErrNotParticipant)

	err := e.SendMessage(context.Background(), a, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-z", Content: "hi"})
	assert.ErrorIs(t, err, realtime.ErrNotPersisted)
	assert.ErrorIs(t, err, store.ErrNotParticipant)

	fromA := drain(t, a)
	require.Equal(t, []string{realtime.EventError}, events(fromA))
	assert.Equal(t, "Failed to send message", fromA[0].Data["message"])
	assert.NotContains(t, fromA[0].Data, "details")

	assert.Empty(t, drain(t, b))
}

func TestEngine_ErrorDetailsInDevelopment(t *testing.T) {
	e, gw := newEngine(t, realtime.WithErrorDetails(true))
	a := connect(e)

	gw.EXPECT().CreateMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		Return(nil, errors.New("connection refused"))

	_ = e.SendMessage(context.Background(), a, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "u", Content: "hi"})

	got := drain(t, a)
	require.Len(t, got, 1)
	assert.Contains(t, got[0].Data["details"], "connection refused")
}

func TestEngine_SenderLookupFailureStillDelivers(t *testing.T) {
	e, gw := newEngine(t)
	a := connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-a", "hi").
		Return(persisted("chat-1", "user-a", "hi"), nil)
	gw.EXPECT().GetUser(gomock.Any(), "user-a").Return(nil, store.ErrNotFound)

	require.NoError(t, e.SendMessage(context.Background(), a, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-a", Content: "hi"}))

	got := drain(t, a)
	require.Equal(t, []string{realtime.EventNewMessage, realtime.EventMessageSent}, events(got))
	assert.Equal(t, map[string]any{"uid": "user-a"}, got[0].Data["sender"])
}

func TestEngine_JoinAndLeaveNotifyOthersOnly(t *testing.T) {
	e, _ := newEngine(t)
	a, b := connect(e), connect(e)

	require.NoError(t, e.JoinRoom(a, "chat-1"))
	require.NoError(t, e.JoinRoom(b, "chat-1"))

	assert.Equal(t, []string{realtime.EventUserJoined}, events(drain(t, a)))
	assert.Empty(t, drain(t, b))

	require.NoError(t, e.LeaveRoom(b, "chat-1"))
	assert.Equal(t, []string{realtime.EventUserLeft}, events(drain(t, a)))
	assert.Empty(t, drain(t, b))

	assert.ErrorIs(t, e.JoinRoom(a, " "), realtime.ErrValidationFailed)
	assert.Equal(t, []string{realtime.EventError}, events(drain(t, a)))
}

func TestEngine_TypingAndReadStayInRoom(t *testing.T) {
	e, _ := newEngine(t)
	a, b, c := connect(e), connect(e), connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))
	require.NoError(t, e.JoinRoom(b, "chat-1"))
	drain(t, a)

	e.Typing(a, realtime.TypingRequest{ChatID: "chat-1", UserID: "user-a", UserName: "Alice"}, true)
	e.Typing(a, realtime.TypingRequest{ChatID: "chat-1", UserID: "user-a", UserName: "Alice"}, false)
	e.ReadReceipt(b, realtime.ReadRequest{ChatID: "chat-1", MessageID: "m1", UserID: "user-b"})
	e.Typing(a, realtime.TypingRequest{UserID: "user-a"}, true)

	fromB := drain(t, b)
	require.Equal(t, []string{realtime.EventUserTyping, realtime.EventUserTyping}, events(fromB))
	assert.Equal(t, true, fromB[0].Data["isTyping"])
	assert.Equal(t, "Alice", fromB[0].Data["user_name"])
	assert.Equal(t, false, fromB[1].Data["isTyping"])
	assert.NotContains(t, fromB[1].Data, "user_name")

	fromA := drain(t, a)
	require.Equal(t, []string{realtime.EventMessageReadStatus}, events(fromA))
	assert.Equal(t, "user-b", fromA[0].Data["read_by"])

	assert.Empty(t, drain(t, c))
}

func TestEngine_PresenceReachesEveryoneElse(t *testing.T) {
	e, _ := newEngine(t)
	a, b, c := connect(e), connect(e), connect(e)
	require.NoError(t, e.JoinRoom(b, "chat-1"))

	e.Presence(a, realtime.StatusRequest{UserID: "user-a", Status: "online"})

	assert.Empty(t, drain(t, a))
	for _, s := range []*realtime.Session{b, c} {
		got := drain(t, s)
		require.Equal(t, []string{realtime.EventUserStatusUpdate}, events(got))
		assert.Equal(t, "online", got[0].Data["status"])
	}
}

func TestEngine_DisconnectLeavesRoomsAndAnnouncesOffline(t *testing.T) {
	e, gw := newEngine(t)
	a, b := connect(e), connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))
	require.NoError(t, e.JoinRoom(a, "chat-2"))
	require.NoError(t, e.JoinRoom(b, "chat-1"))
	drain(t, a)
	drain(t, b)

	e.Disconnect(a, "client namespace disconnect")
	e.Disconnect(a, "again")

	assert.Empty(t, e.Registry().Members("chat-2"))
	assert.Len(t, e.Registry().Members("chat-1"), 1)
	assert.Equal(t, 1, e.Registry().SessionCount())

	fromB := drain(t, b)
	require.Equal(t, []string{realtime.EventUserStatusUpdate}, events(fromB))
	assert.Equal(t, a.ID(), fromB[0].Data["socket_id"])
	assert.Equal(t, "offline", fromB[0].Data["status"])
	assert.Equal(t, "client namespace disconnect", fromB[0].Data["reason"])

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-b", "still there?").
		Return(persisted("chat-1", "user-b", "still there?"), nil)
	gw.EXPECT().GetUser(gomock.Any(), "user-b").Return(&models.User{ID: "user-b", Name: "Bob"}, nil)

	require.NoError(t, e.SendMessage(context.Background(), b, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-b", Content: "still there?"}))
	assert.Empty(t, drain(t, a))
}

func TestEngine_SlowConsumerDoesNotBlockOthers(t *testing.T) {
	e, gw := newEngine(t)

	slow := realtime.NewSession(1)
	e.Connect(slow)
	fast := connect(e)
	require.NoError(t, e.JoinRoom(slow, "chat-1"))
	require.NoError(t, e.JoinRoom(fast, "chat-1"))
	// slow's single slot now holds user_joined from fast.

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-f", "hi").
		Return(persisted("chat-1", "user-f", "hi"), nil)
	gw.EXPECT().GetUser(gomock.Any(), "user-f").Return(&models.User{ID: "user-f", Name: "F"}, nil)

	require.NoError(t, e.SendMessage(context.Background(), fast, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-f", Content: "hi"}))

	assert.Equal(t, []string{realtime.EventNewMessage, realtime.EventMessageSent}, events(drain(t, fast)))
	assert.Equal(t, []string{realtime.EventUserJoined}, events(drain(t, slow)))
	assert.False(t, slow.Closed())
}

func TestEngine_HooksRunAfterDelivery(t *testing.T) {
	ctrl := gomock.NewController(t)
	gw := mocks.NewMockGateway(ctrl)
	hook := mocks.NewMockMessageHook(ctrl)
	e := realtime.NewEngine(gw, realtime.NewRegistry(), zerolog.Nop(), realtime.WithHooks(hook))
	a := connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-a", "hi").
		Return(persisted("chat-1", "user-a", "hi"), nil)
	gw.EXPECT().GetUser(gomock.Any(), "user-a").Return(&models.User{ID: "user-a", Name: "A"}, nil)
	hook.EXPECT().HandleMessage(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, msg *models.Message) error {
			assert.Equal(t, "hi", msg.Content)
			return errors.New("redis down")
		})
	hook.EXPECT().Name().Return("recent_chats").AnyTimes()

	require.NoError(t, e.SendMessage(context.Background(), a, realtime.SendMessageRequest{ChatID: "chat-1", SentBy: "user-a", Content: "hi"}))
	e.Wait()

	assert.Equal(t, []string{realtime.EventNewMessage, realtime.EventMessageSent}, events(drain(t, a)))
}

func TestEngine_PublishMessageHasNoAck(t *testing.T) {
	e, gw := newEngine(t)
	a := connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))

	gw.EXPECT().GetUser(gomock.Any(), "user-b").Return(&models.User{ID: "user-b", Name: "Bob"}, nil)

	e.PublishMessage(context.Background(), persisted("chat-1", "user-b", "via rest"))

	got := drain(t, a)
	require.Equal(t, []string{realtime.EventNewMessage}, events(got))
	assert.Equal(t, "via rest", got[0].Data["content"])
}

func TestEngine_TypingAndReadUseTrimmedChatID(t *testing.T) {
	e, _ := newEngine(t)
	a, b := connect(e), connect(e)
	require.NoError(t, e.JoinRoom(a, " chat-1 "))
	require.NoError(t, e.JoinRoom(b, "chat-1"))
	drain(t, a)

	e.Typing(a, realtime.TypingRequest{ChatID: " chat-1 ", UserID: "user-a"}, true)
	e.ReadReceipt(a, realtime.ReadRequest{ChatID: "chat-1 ", MessageID: "m1", UserID: "user-a"})

	assert.Equal(t, []string{realtime.EventUserTyping, realtime.EventMessageReadStatus}, events(drain(t, b)))
	assert.Equal(t, 1, e.Registry().RoomCount())
}

// funcHook adapts a function to realtime.MessageHook.
type funcHook struct {
	name string
	fn   func(msg *models.Message)
}

func (h funcHook) Name() string { return h.name }

func (h funcHook) HandleMessage(_ context.Context, msg *models.Message) error {
	h.fn(msg)
	return nil
}

func TestEngine_HooksGetIndependentCopies(t *testing.T) {
	seen := make(chan string, 1)
	mutate := funcHook{name: "mutate", fn: func(msg *models.Message) { msg.Content = "changed" }}
	record := funcHook{name: "record", fn: func(msg *models.Message) { seen <- msg.Content }}

	e, gw := newEngine(t, realtime.WithHooks(mutate, record))
	a := connect(e)
	require.NoError(t, e.JoinRoom(a, "chat-1"))

	gw.EXPECT().GetUser(gomock.Any(), "user-a").Return(&models.User{ID: "user-a", Name: "A"}, nil)

	msg := persisted("chat-1", "user-a", "hi")
	e.PublishMessage(context.Background(), msg)
	e.Wait()

	assert.Equal(t, "hi", <-seen)
	assert.Equal(t, "hi", msg.Content)
}
