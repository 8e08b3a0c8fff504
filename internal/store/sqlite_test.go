package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aswatji/serverchat/internal/models"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := NewSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func mustUser(t *testing.T, s *SQLiteStore, name string) *models.User {
	t.Helper()
	u, err := s.CreateUser(context.Background(), name, strings.ToLower(name)+"@example.com")
	require.NoError(t, err)
	return u
}

func TestSQLiteStore_UserLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	alice := mustUser(t, s, "Alice")
	assert.NotEmpty(t, alice.ID)

	got, err := s.GetUser(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", got.Name)
	assert.Equal(t, "alice@example.com", got.Email)

	_, err = s.CreateUser(ctx, "Other", "alice@example.com")
	assert.ErrorIs(t, err, ErrConflict)

	name := "Alice B"
	updated, err := s.UpdateUser(ctx, alice.ID, &name, nil)
	require.NoError(t, err)
	assert.Equal(t, "Alice B", updated.Name)
	assert.Equal(t, "alice@example.com", updated.Email)

	_, err = s.UpdateUser(ctx, "missing", &name, nil)
	assert.ErrorIs(t, err, ErrNotFound)

	users, err := s.ListUsers(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, users, 1)

	require.NoError(t, s.DeleteUser(ctx, alice.ID))
	_, err = s.GetUser(ctx, alice.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.DeleteUser(ctx, alice.ID), ErrNotFound)
}

func TestSQLiteStore_CreateChatIsCanonical(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustUser(t, s, "X")
	y := mustUser(t, s, "Y")

	first, created, err := s.CreateChat(ctx, x.ID, y.ID)
	require.NoError(t, err)
	assert.True(t, created)

	second, created, err := s.CreateChat(ctx, y.ID, x.ID)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)

	lo, hi := models.CanonicalPair(x.ID, y.ID)
	assert.Equal(t, lo, second.User1ID)
	assert.Equal(t, hi, second.User2ID)
	require.NotNil(t, second.User1)
	assert.Equal(t, lo, second.User1.UID)
}

func TestSQLiteStore_CreateChatUnknownUser(t *testing.T) {
	s := newTestStore(t)
	x := mustUser(t, s, "X")

	_, _, err := s.CreateChat(context.Background(), x.ID, "nobody")
	assert.ErrorIs(t, err, ErrConstraint)
}

func TestSQLiteStore_CreateMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustUser(t, s, "X")
	y := mustUser(t, s, "Y")
	z := mustUser(t, s, "Z")
	chat, _, err := s.CreateChat(ctx, x.ID, y.ID)
	require.NoError(t, err)

	t.Run("participant", func(t *testing.T) {
		msg, err := s.CreateMessage(ctx, chat.ID, x.ID, "hi")
		require.NoError(t, err)
		assert.NotEmpty(t, msg.ID)
		assert.Equal(t, chat.ID, msg.ChatID)
		assert.False(t, msg.SentAt.IsZero())

		got, err := s.GetMessage(ctx, msg.ID)
		require.NoError(t, err)
		assert.Equal(t, "hi", got.Content)
		require.NotNil(t, got.Sender)
		assert.Equal(t, "X", got.Sender.Name)
	})

	t.Run("not a participant", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, chat.ID, z.ID, "hello")
		assert.ErrorIs(t, err, ErrNotParticipant)
	})

	t.Run("unknown chat", func(t *testing.T) {
		_, err := s.CreateMessage(ctx, "missing", x.ID, "hello")
		assert.ErrorIs(t, err, ErrNotFound)
	})
}

func TestSQLiteStore_ListChatMessagesPaging(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustUser(t, s, "X")
	y := mustUser(t, s, "Y")
	chat, _, err := s.CreateChat(ctx, x.ID, y.ID)
	require.NoError(t, err)

	for _, c := range []string{"1", "2", "3", "4", "5"} {
		_, err := s.CreateMessage(ctx, chat.ID, x.ID, c)
		require.NoError(t, err)
	}

	contents := func(msgs []models.Message) []string {
		out := make([]string, len(msgs))
		for i, m := range msgs {
			out[i] = m.Content
		}
		return out
	}

	all, err := s.ListChatMessages(ctx, chat.ID, 0, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"1", "2", "3", "4", "5"}, contents(all))

	page1, err := s.ListChatMessages(ctx, chat.ID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, []string{"4", "5"}, contents(page1))

	page3, err := s.ListChatMessages(ctx, chat.ID, 2, 4)
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, contents(page3))
}

func TestSQLiteStore_ListUserChatsCarriesLastMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustUser(t, s, "X")
	y := mustUser(t, s, "Y")
	z := mustUser(t, s, "Z")

	withY, _, err := s.CreateChat(ctx, x.ID, y.ID)
	require.NoError(t, err)
	_, _, err = s.CreateChat(ctx, z.ID, x.ID)
	require.NoError(t, err)

	_, err = s.CreateMessage(ctx, withY.ID, x.ID, "first")
	require.NoError(t, err)
	_, err = s.CreateMessage(ctx, withY.ID, y.ID, "second")
	require.NoError(t, err)

	chats, err := s.ListUserChats(ctx, x.ID)
	require.NoError(t, err)
	require.Len(t, chats, 2)

	for _, c := range chats {
		if c.ID == withY.ID {
			require.Len(t, c.Messages, 1)
			assert.Equal(t, "second", c.Messages[0].Content)
		} else {
			assert.Empty(t, c.Messages)
		}
	}
}

func TestSQLiteStore_Cascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustUser(t, s, "X")
	y := mustUser(t, s, "Y")
	chat, _, err := s.CreateChat(ctx, x.ID, y.ID)
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, chat.ID, y.ID, "bye")
	require.NoError(t, err)

	require.NoError(t, s.DeleteUser(ctx, x.ID))

	_, err = s.GetChat(ctx, chat.ID)
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = s.GetMessage(ctx, msg.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestSQLiteStore_UpdateAndDeleteMessage(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	x := mustUser(t, s, "X")
	y := mustUser(t, s, "Y")
	chat, _, err := s.CreateChat(ctx, x.ID, y.ID)
	require.NoError(t, err)
	msg, err := s.CreateMessage(ctx, chat.ID, x.ID, "draft")
	require.NoError(t, err)

	updated, err := s.UpdateMessage(ctx, msg.ID, "final")
	require.NoError(t, err)
	assert.Equal(t, "final", updated.Content)
	assert.NotNil(t, updated.UpdatedAt)

	require.NoError(t, s.DeleteMessage(ctx, msg.ID))
	assert.ErrorIs(t, s.DeleteMessage(ctx, msg.ID), ErrNotFound)

	_, err = s.UpdateMessage(ctx, msg.ID, "again")
	assert.ErrorIs(t, err, ErrNotFound)
}
