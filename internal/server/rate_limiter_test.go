package server

import (
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/config"
	"github.com/stretchr/testify/assert"
)

func TestChatLimiter_BurstThenRefill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	l := newChatLimiter(config.RateLimitConfig{Burst: 3, RefillInterval: time.Second})
	l.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		assert.True(t, l.allow(), "event %d", i)
	}
	assert.False(t, l.allow())

	now = now.Add(time.Second / 2)
	assert.True(t, l.allow())
	assert.False(t, l.allow())

	now = now.Add(time.Hour)
	for i := 0; i < 3; i++ {
		assert.True(t, l.allow())
	}
	assert.False(t, l.allow(), "idle time must not grow the burst")
}

func TestChatLimiter_InvalidSettings(t *testing.T) {
	l := newChatLimiter(config.RateLimitConfig{})
	assert.Equal(t, time.Second, l.emission)
	assert.Equal(t, time.Second, l.window)
}
