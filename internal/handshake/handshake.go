// Package handshake admits or rejects a new connection before any chat
// traffic flows on it.
package handshake

import (
	"context"
	"errors"
	"fmt"

	"github.com/Tyrowin/chatroom/internal/auth"
	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/presence"
)

// Request carries the handshake query of a connection attempt.
type Request struct {
	ClaimedIdentity string
	Token           string
	ConnectionID    string
}

type TokenVerifier interface {
	Verify(token string) (auth.Claim, error)
}

type UserResolver interface {
	UserID(ctx context.Context, username string) (int64, error)
}

type Admitter interface {
	Admit(identity, connectionID string, userID int64) (presence.Session, error)
}

// Gate runs the handshake. Only the final Admit mutates shared state, so a
// failure at any earlier step leaves presence untouched.
type Gate struct {
	tokens   TokenVerifier
	users    UserResolver
	presence Admitter
}

func NewGate(tokens TokenVerifier, users UserResolver, presence Admitter) *Gate {
	return &Gate{tokens: tokens, users: users, presence: presence}
}

// Admit verifies the token, resolves the user id and registers the session.
// Errors wrap common.ErrAuthInvalid, common.ErrUnknownUser or
// common.ErrAlreadyConnected.
func (g *Gate) Admit(ctx context.Context, req Request) (presence.Session, error) {
	if req.ClaimedIdentity == "" || req.Token == "" {
		return presence.Session{}, fmt.Errorf("%w: missing username or token", common.ErrAuthInvalid)
	}

	claim, err := g.tokens.Verify(req.Token)
	if err != nil {
		return presence.Session{}, err
	}
	if claim.Subject != req.ClaimedIdentity {
		return presence.Session{}, fmt.Errorf("%w: token subject %q does not match %q",
			common.ErrAuthInvalid, claim.Subject, req.ClaimedIdentity)
	}

	userID, err := g.users.UserID(ctx, req.ClaimedIdentity)
	if err != nil {
		if errors.Is(err, common.ErrUnknownUser) {
			return presence.Session{}, err
		}
		return presence.Session{}, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	return g.presence.Admit(req.ClaimedIdentity, req.ConnectionID, userID)
}
