package auth

import (
	"context"
	"sync"

	"github.com/Tyrowin/chatroom/internal/common"
)

type fakeUsers struct {
	mu     sync.Mutex
	nextID int64
	byName map[string]User
	calls  int
}

func newFakeUsers() *fakeUsers {
	return &fakeUsers{byName: map[string]User{}}
}

func (f *fakeUsers) CreateUser(_ context.Context, username string, hash []byte) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.byName[username] = User{ID: f.nextID, Username: username, PasswordHash: hash}
	return f.nextID, nil
}

func (f *fakeUsers) UserByName(_ context.Context, username string) (User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.byName[username]
	if !ok {
		return User{}, common.ErrNotFound
	}
	return u, nil
}

func (f *fakeUsers) UserNames(_ context.Context, ids []int64) (map[int64]string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	out := make(map[int64]string, len(ids))
	for _, u := range f.byName {
		for _, id := range ids {
			if u.ID == id {
				out[id] = u.Username
			}
		}
	}
	return out, nil
}
