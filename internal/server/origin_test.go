package server

import (
	"net/http/httptest"
	"testing"

	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/stretchr/testify/assert"
)

func TestOriginPolicy(t *testing.T) {
	p := newOriginPolicy([]string{"HTTP://LocalHost:8080", " https://chat.example.com ", "not a url", ""}, logging.Discard())

	tests := []struct {
		origin string
		want   bool
	}{
		{"http://localhost:8080", true},
		{"https://chat.example.com", true},
		{"https://CHAT.example.com", true},
		{"http://chat.example.com", false},
		{"http://localhost:9090", false},
		{"null", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.origin, func(t *testing.T) {
			r := httptest.NewRequest("GET", "/ws", nil)
			if tt.origin != "" {
				r.Header.Set("Origin", tt.origin)
			}
			assert.Equal(t, tt.want, p.check(r))
		})
	}
}

func TestOriginPolicy_Wildcard(t *testing.T) {
	p := newOriginPolicy([]string{"*"}, logging.Discard())

	r := httptest.NewRequest("GET", "/ws", nil)
	r.Header.Set("Origin", "https://anywhere.example")
	assert.True(t, p.check(r))

	r.Header.Del("Origin")
	assert.False(t, p.check(r))
}
