// Package presence tracks which identities are online and which connection
// belongs to whom. It enforces a single live session per identity.
package presence

import (
	"fmt"
	"sort"
	"sync"

	"github.com/Tyrowin/chatroom/internal/common"
)

// Session binds an identity to one live connection.
type Session struct {
	Identity     string
	ConnectionID string
	UserID       int64
}

type slot struct {
	session Session
	live    bool
}

// Registry stores sessions in an arena of slots indexed both by identity and
// by connection id. Every operation runs under one mutex so the two indices
// always agree.
type Registry struct {
	mu         sync.Mutex
	slots      []slot
	free       []int
	byIdentity map[string]int
	byConn     map[string]int
}

func NewRegistry() *Registry {
	return &Registry{
		byIdentity: make(map[string]int),
		byConn:     make(map[string]int),
	}
}

// Admit creates a session. It fails with common.ErrAlreadyConnected when the
// identity or the connection id already has one; the existing session is
// left in place.
func (r *Registry) Admit(identity, connectionID string, userID int64) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.byIdentity[identity]; ok {
		return Session{}, fmt.Errorf("identity %q: %w", identity, common.ErrAlreadyConnected)
	}
	if _, ok := r.byConn[connectionID]; ok {
		return Session{}, fmt.Errorf("connection %q: %w", connectionID, common.ErrAlreadyConnected)
	}

	s := Session{Identity: identity, ConnectionID: connectionID, UserID: userID}

	var idx int
	if n := len(r.free); n > 0 {
		idx = r.free[n-1]
		r.free = r.free[:n-1]
		r.slots[idx] = slot{session: s, live: true}
	} else {
		idx = len(r.slots)
		r.slots = append(r.slots, slot{session: s, live: true})
	}

	r.byIdentity[identity] = idx
	r.byConn[connectionID] = idx
	return s, nil
}

// Release removes the session owning connectionID.
func (r *Registry) Release(connectionID string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byConn[connectionID]
	if !ok {
		return Session{}, fmt.Errorf("connection %q: %w", connectionID, common.ErrUnknownConnection)
	}
	return r.removeLocked(idx), nil
}

// ReleaseByIdentity removes the session of identity. The caller is
// responsible for closing the returned connection.
func (r *Registry) ReleaseByIdentity(identity string) (Session, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byIdentity[identity]
	if !ok {
		return Session{}, fmt.Errorf("identity %q: %w", identity, common.ErrUnknownSession)
	}
	return r.removeLocked(idx), nil
}

func (r *Registry) removeLocked(idx int) Session {
	s := r.slots[idx].session
	delete(r.byIdentity, s.Identity)
	delete(r.byConn, s.ConnectionID)
	r.slots[idx] = slot{}
	r.free = append(r.free, idx)
	return s
}

func (r *Registry) Lookup(identity string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byIdentity[identity]
	if !ok {
		return Session{}, false
	}
	return r.slots[idx].session, true
}

func (r *Registry) LookupByConnection(connectionID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	idx, ok := r.byConn[connectionID]
	if !ok {
		return Session{}, false
	}
	return r.slots[idx].session, true
}

// Sessions returns a snapshot of live sessions sorted by identity.
func (r *Registry) Sessions() []Session {
	r.mu.Lock()
	out := make([]Session, 0, len(r.byIdentity))
	for _, sl := range r.slots {
		if sl.live {
			out = append(out, sl.session)
		}
	}
	r.mu.Unlock()

	sort.Slice(out, func(i, j int) bool { return out[i].Identity < out[j].Identity })
	return out
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.byIdentity)
}
