package realtime_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/aswatji/serverchat/internal/models"
	"github.com/aswatji/serverchat/internal/realtime"
)

func TestDispatcher_JoinChatPayloadShapes(t *testing.T) {
	e, _ := newEngine(t)
	d := realtime.NewDispatcher(e)
	ctx := context.Background()

	a := connect(e)
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"join_chat","data":"chat-1"}`)))
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"join_chat","data":{"chatId":"chat-2"}}`)))

	assert.ElementsMatch(t, []string{"chat-1", "chat-2"}, a.Rooms())

	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"leave_chat","data":"chat-1"}`)))
	assert.Equal(t, []string{"chat-2"}, a.Rooms())
	assert.Empty(t, drain(t, a))
}

func TestDispatcher_MalformedAndUnknown(t *testing.T) {
	e, _ := newEngine(t)
	d := realtime.NewDispatcher(e)
	ctx := context.Background()
	a := connect(e)

	err := d.Dispatch(ctx, a, []byte(`{not json`))
	assert.ErrorIs(t, err, realtime.ErrValidationFailed)

	err = d.Dispatch(ctx, a, []byte(`{"event":"teleport","data":{}}`))
	assert.ErrorIs(t, err, realtime.ErrValidationFailed)

	err = d.Dispatch(ctx, a, []byte(`{"event":"send_message","data":"oops"}`))
	assert.ErrorIs(t, err, realtime.ErrValidationFailed)

	got := drain(t, a)
	require.Equal(t, []string{realtime.EventError, realtime.EventError, realtime.EventError}, events(got))
	assert.Equal(t, "Invalid message format", got[0].Data["message"])
	assert.Equal(t, "Unknown event", got[1].Data["message"])
	assert.False(t, a.Closed())
}

func TestDispatcher_SendMessage(t *testing.T) {
	e, gw := newEngine(t)
	d := realtime.NewDispatcher(e)
	ctx := context.Background()
	a := connect(e)
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"join_chat","data":"chat-1"}`)))

	gw.EXPECT().CreateMessage(gomock.Any(), "chat-1", "user-a", "hey").
		Return(persisted("chat-1", "user-a", "hey"), nil)
	gw.EXPECT().GetUser(gomock.Any(), "user-a").Return(&models.User{ID: "user-a", Name: "A"}, nil)

	frame := []byte(`{"event":"send_message","data":{"chat_id":"chat-1","sent_by":"user-a","content":"hey"}}`)
	require.NoError(t, d.Dispatch(ctx, a, frame))

	assert.Equal(t, []string{realtime.EventNewMessage, realtime.EventMessageSent}, events(drain(t, a)))
}

func TestDispatcher_EphemeralEvents(t *testing.T) {
	e, _ := newEngine(t)
	d := realtime.NewDispatcher(e)
	ctx := context.Background()
	a, b := connect(e), connect(e)
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"join_chat","data":"chat-1"}`)))
	require.NoError(t, d.Dispatch(ctx, b, []byte(`{"event":"join_chat","data":"chat-1"}`)))
	drain(t, a)

	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"typing_start","data":{"chat_id":"chat-1","user_id":"user-a","user_name":"A"}}`)))
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"typing_stop","data":{"chat_id":"chat-1","user_id":"user-a"}}`)))
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"message_read","data":{"chat_id":"chat-1","message_id":"m1","user_id":"user-a"}}`)))
	require.NoError(t, d.Dispatch(ctx, a, []byte(`{"event":"user_status","data":{"user_id":"user-a","status":"away"}}`)))

	assert.Equal(t, []string{
		realtime.EventUserTyping,
		realtime.EventUserTyping,
		realtime.EventMessageReadStatus,
		realtime.EventUserStatusUpdate,
	}, events(drain(t, b)))
	assert.Empty(t, drain(t, a))
}
