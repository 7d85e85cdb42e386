package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Tyrowin/chatroom/internal/common"
	"golang.org/x/crypto/bcrypt"
)

const passwordHashCost = 10

// User is a stored account.
type User struct {
	ID           int64
	Username     string
	PasswordHash []byte
}

// UserRepository persists accounts.
type UserRepository interface {
	CreateUser(ctx context.Context, username string, passwordHash []byte) (int64, error)
	UserByName(ctx context.Context, username string) (User, error)
	UserNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Authenticator checks credentials against the user repository and resolves
// user ids and display names for the rest of the server.
type Authenticator struct {
	repo UserRepository
}

func NewAuthenticator(repo UserRepository) *Authenticator {
	return &Authenticator{repo: repo}
}

// CreateUser hashes password with bcrypt and stores a new account.
func (a *Authenticator) CreateUser(ctx context.Context, username, password string) (int64, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return 0, errors.New("username and password are required")
	}

	if _, err := a.repo.UserByName(ctx, username); err == nil {
		return 0, fmt.Errorf("user %q: %w", username, common.ErrAlreadyExists)
	} else if !errors.Is(err, common.ErrNotFound) {
		return 0, err
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), passwordHashCost)
	if err != nil {
		return 0, fmt.Errorf("hash password: %w", err)
	}

	return a.repo.CreateUser(ctx, username, hash)
}

// Login returns the user id when password matches, common.ErrAuthInvalid otherwise.
func (a *Authenticator) Login(ctx context.Context, username, password string) (int64, error) {
	user, err := a.repo.UserByName(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, common.ErrAuthInvalid
		}
		return 0, err
	}

	if err := bcrypt.CompareHashAndPassword(user.PasswordHash, []byte(password)); err != nil {
		return 0, common.ErrAuthInvalid
	}
	return user.ID, nil
}

// UserID resolves username to its id, common.ErrUnknownUser if absent.
func (a *Authenticator) UserID(ctx context.Context, username string) (int64, error) {
	user, err := a.repo.UserByName(ctx, username)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return 0, fmt.Errorf("user %q: %w", username, common.ErrUnknownUser)
		}
		return 0, err
	}
	return user.ID, nil
}

// UserNames resolves many ids with a single repository call.
func (a *Authenticator) UserNames(ctx context.Context, ids []int64) (map[int64]string, error) {
	if len(ids) == 0 {
		return map[int64]string{}, nil
	}
	return a.repo.UserNames(ctx, ids)
}
