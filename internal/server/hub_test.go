package server

import (
	"context"
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_ShutdownWithoutClients(t *testing.T) {
	h := NewHub(logging.Discard())
	go h.Run()

	require.NoError(t, h.Shutdown(time.Second))
	assert.Equal(t, 0, h.Len())
}

func TestHub_CallsAfterShutdownDoNotBlock(t *testing.T) {
	h := NewHub(logging.Discard())
	go h.Run()
	require.NoError(t, h.Shutdown(time.Second))

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.Broadcast([]byte("x"), "")
		h.SendTo("c1", []byte("x"))
		h.Unregister(&Client{})
		assert.False(t, h.Register(&Client{}))
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("hub call blocked after shutdown")
	}
}

func TestHub_SendToUnknownConnection(t *testing.T) {
	h := NewHub(logging.Discard())
	go h.Run()
	defer func() { _ = h.Shutdown(time.Second) }()

	h.SendTo("missing", []byte("x"))
	assert.False(t, h.CloseConnection("missing"))
	assert.Equal(t, 0, h.Len())
}

func TestHub_ShutdownTimeout(t *testing.T) {
	h := NewHub(logging.Discard())
	go h.Run()

	h.wg.Add(1)
	defer h.wg.Done()

	err := h.Shutdown(20 * time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
