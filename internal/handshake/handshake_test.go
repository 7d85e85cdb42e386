package handshake

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/Tyrowin/chatroom/internal/auth"
	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/presence"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubVerifier map[string]string

func (s stubVerifier) Verify(token string) (auth.Claim, error) {
	subject, ok := s[token]
	if !ok {
		return auth.Claim{}, common.ErrAuthInvalid
	}
	return auth.Claim{Subject: subject, ExpiresAt: time.Now().Add(time.Hour)}, nil
}

type stubUsers map[string]int64

func (s stubUsers) UserID(_ context.Context, username string) (int64, error) {
	id, ok := s[username]
	if !ok {
		return 0, common.ErrUnknownUser
	}
	return id, nil
}

func newGate() (*Gate, *presence.Registry) {
	reg := presence.NewRegistry()
	tokens := stubVerifier{"tok-alice": "alice", "tok-bob": "bob", "tok-ghost": "ghost"}
	users := stubUsers{"alice": 1, "bob": 2}
	return NewGate(tokens, users, reg), reg
}

func TestGate_Admits(t *testing.T) {
	g, reg := newGate()

	s, err := g.Admit(context.Background(), Request{ClaimedIdentity: "alice", Token: "tok-alice", ConnectionID: "c1"})
	require.NoError(t, err)
	assert.Equal(t, presence.Session{Identity: "alice", ConnectionID: "c1", UserID: 1}, s)

	got, ok := reg.LookupByConnection("c1")
	require.True(t, ok)
	assert.Equal(t, s, got)
}

func TestGate_FailuresLeavePresenceUnchanged(t *testing.T) {
	tests := []struct {
		name    string
		req     Request
		wantErr error
	}{
		{"missing token", Request{ClaimedIdentity: "alice", ConnectionID: "c2"}, common.ErrAuthInvalid},
		{"missing username", Request{Token: "tok-alice", ConnectionID: "c2"}, common.ErrAuthInvalid},
		{"invalid token", Request{ClaimedIdentity: "alice", Token: "forged", ConnectionID: "c2"}, common.ErrAuthInvalid},
		{"subject mismatch", Request{ClaimedIdentity: "alice", Token: "tok-bob", ConnectionID: "c2"}, common.ErrAuthInvalid},
		{"unknown user", Request{ClaimedIdentity: "ghost", Token: "tok-ghost", ConnectionID: "c2"}, common.ErrUnknownUser},
		{"already connected", Request{ClaimedIdentity: "bob", Token: "tok-bob", ConnectionID: "c2"}, common.ErrAlreadyConnected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, reg := newGate()
			_, err := reg.Admit("bob", "c1", 2)
			require.NoError(t, err)
			before := reg.Sessions()

			_, err = g.Admit(context.Background(), tt.req)
			assert.True(t, errors.Is(err, tt.wantErr), "got %v, want %v", err, tt.wantErr)
			assert.Equal(t, before, reg.Sessions())
		})
	}
}

func TestGate_ConcurrentHandshakesSameIdentity(t *testing.T) {
	g, reg := newGate()

	var wg sync.WaitGroup
	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := g.Admit(context.Background(), Request{
				ClaimedIdentity: "alice",
				Token:           "tok-alice",
				ConnectionID:    fmt.Sprintf("c%d", i),
			})
			results <- err
		}(i)
	}
	wg.Wait()
	close(results)

	var ok, dup int
	for err := range results {
		switch {
		case err == nil:
			ok++
		case errors.Is(err, common.ErrAlreadyConnected):
			dup++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 1, dup)
	assert.Equal(t, 1, reg.Len())
}
