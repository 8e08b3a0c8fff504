package realtime

import (
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSession_SendAndDrain(t *testing.T) {
	s := NewSession(2)
	require.NoError(t, s.Send([]byte("a")))
	require.NoError(t, s.Send([]byte("b")))

	assert.ErrorIs(t, s.Send([]byte("c")), ErrSendBufferFull)

	assert.Equal(t, []byte("a"), <-s.Outbound())
	require.NoError(t, s.Send([]byte("c")))
}

func TestSession_SendAfterClose(t *testing.T) {
	s := NewSession(2)
	assert.True(t, s.Close("bye"))

	assert.ErrorIs(t, s.Send([]byte("x")), ErrSessionClosed)
	assert.True(t, s.Closed())
	assert.Equal(t, "bye", s.CloseReason())

	select {
	case <-s.Done():
	default:
		t.Fatal("done channel not closed")
	}
}

func TestSession_CloseRunsHookOnce(t *testing.T) {
	s := NewSession(2)
	var calls atomic.Int32
	s.setCloseHook(func(got *Session, reason string) {
		assert.Same(t, s, got)
		assert.Equal(t, "first", reason)
		calls.Add(1)
	})

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			s.Close("first")
		}()
	}
	wg.Wait()
	s.Close("second")

	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, "first", s.CloseReason())
}

func TestSession_ClosedBeforeHookRuns(t *testing.T) {
	s := NewSession(2)
	s.setCloseHook(func(got *Session, _ string) {
		assert.ErrorIs(t, got.Send([]byte("late")), ErrSessionClosed)
	})
	s.Close("bye")
}
