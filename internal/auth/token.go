// Package auth issues and verifies bearer tokens and checks user credentials.
package auth

import (
	"context"
	"crypto/rsa"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claim is the verified identity extracted from a bearer token.
type Claim struct {
	Subject   string
	IssuedAt  time.Time
	ExpiresAt time.Time
	TokenID   string
}

// Claims is the JWT payload. LoggedInAs mirrors the subject.
type Claims struct {
	jwt.RegisteredClaims
	LoggedInAs string `json:"logged_in_as"`
}

// UserLookup resolves a username to its numeric id.
type UserLookup interface {
	UserID(ctx context.Context, username string) (int64, error)
}

// TokenVerifier signs and validates stateless bearer tokens. Tokens are not
// persisted, so they cannot be revoked before they expire.
type TokenVerifier struct {
	method    jwt.SigningMethod
	signKey   any
	verifyKey any
	users     UserLookup
	now       func() time.Time
}

// NewHMACVerifier signs tokens with HS256 and the given secret.
func NewHMACVerifier(secret []byte, users UserLookup) *TokenVerifier {
	return &TokenVerifier{
		method:    jwt.SigningMethodHS256,
		signKey:   secret,
		verifyKey: secret,
		users:     users,
		now:       time.Now,
	}
}

// NewRSAVerifier signs tokens with RS256.
func NewRSAVerifier(key *rsa.PrivateKey, users UserLookup) *TokenVerifier {
	return &TokenVerifier{
		method:    jwt.SigningMethodRS256,
		signKey:   key,
		verifyKey: &key.PublicKey,
		users:     users,
		now:       time.Now,
	}
}

// NewRSAVerifierFromFile loads a PEM encoded RSA private key.
func NewRSAVerifierFromFile(path string, users UserLookup) (*TokenVerifier, error) {
	pem, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read signing key: %w", err)
	}
	key, err := jwt.ParseRSAPrivateKeyFromPEM(pem)
	if err != nil {
		return nil, fmt.Errorf("parse signing key: %w", err)
	}
	return NewRSAVerifier(key, users), nil
}

// Issue creates a token for subject valid for ttl. It fails with
// common.ErrUnknownUser when the subject does not exist.
func (v *TokenVerifier) Issue(ctx context.Context, subject string, ttl time.Duration) (string, error) {
	if _, err := v.users.UserID(ctx, subject); err != nil {
		if errors.Is(err, common.ErrNotFound) || errors.Is(err, common.ErrUnknownUser) {
			return "", fmt.Errorf("issue token for %q: %w", subject, common.ErrUnknownUser)
		}
		return "", fmt.Errorf("issue token for %q: %w", subject, err)
	}

	iat := v.now().Truncate(time.Second)
	token := jwt.NewWithClaims(v.method, Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(iat),
			ExpiresAt: jwt.NewNumericDate(iat.Add(ttl)),
			ID:        uuid.NewString(),
		},
		LoggedInAs: subject,
	})

	signed, err := token.SignedString(v.signKey)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// Verify validates the token and returns its claim. Every failure is
// reported as common.ErrAuthInvalid.
func (v *TokenVerifier) Verify(tokenString string) (Claim, error) {
	claims := &Claims{}

	token, err := jwt.ParseWithClaims(tokenString, claims, func(*jwt.Token) (any, error) {
		return v.verifyKey, nil
	},
		jwt.WithValidMethods([]string{v.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(v.now),
	)
	if err != nil {
		return Claim{}, fmt.Errorf("%w: %v", common.ErrAuthInvalid, err)
	}
	if !token.Valid {
		return Claim{}, common.ErrAuthInvalid
	}

	subject := claims.LoggedInAs
	if subject == "" {
		subject = claims.Subject
	}
	if subject == "" || (claims.Subject != "" && claims.Subject != subject) {
		return Claim{}, fmt.Errorf("%w: missing or inconsistent subject", common.ErrAuthInvalid)
	}

	claim := Claim{
		Subject: subject,
		TokenID: claims.ID,
	}
	if claims.IssuedAt != nil {
		claim.IssuedAt = claims.IssuedAt.Time
	}
	if claims.ExpiresAt != nil {
		claim.ExpiresAt = claims.ExpiresAt.Time
	}
	return claim, nil
}
