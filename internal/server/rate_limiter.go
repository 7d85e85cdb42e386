package server

import (
	"sync"
	"time"

	"github.com/Tyrowin/chatroom/internal/config"
)

// chatLimiter throttles chat events of one connection with the generic cell
// rate algorithm: up to Burst events at once, then one per
// RefillInterval/Burst.
type chatLimiter struct {
	mu       sync.Mutex
	emission time.Duration
	window   time.Duration
	tat      time.Time
	now      func() time.Time
}

func newChatLimiter(cfg config.RateLimitConfig) *chatLimiter {
	burst := cfg.Burst
	if burst <= 0 {
		burst = 1
	}
	interval := cfg.RefillInterval
	if interval <= 0 {
		interval = time.Second
	}

	emission := interval / time.Duration(burst)
	return &chatLimiter{
		emission: emission,
		window:   emission * time.Duration(burst),
		now:      time.Now,
	}
}

func (l *chatLimiter) allow() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	tat := l.tat
	if tat.Before(now) {
		tat = now
	}

	next := tat.Add(l.emission)
	if next.Sub(now) > l.window {
		return false
	}
	l.tat = next
	return true
}
