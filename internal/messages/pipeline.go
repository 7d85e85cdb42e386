// Package messages persists chat posts, fans them out, serves history and
// enforces author-only deletion.
package messages

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/Tyrowin/chatroom/internal/presence"
)

// Message is a stored chat post. Ids are assigned by the store and strictly
// increase in insertion order.
type Message struct {
	ID        int64
	AuthorID  int64
	Timestamp int64
	Body      []byte
}

// Entry is a history item with its author resolved to a display name.
type Entry struct {
	PostID     int64
	AuthorName string
	Body       []byte
	Timestamp  int64
}

// Store is the durable message log.
type Store interface {
	InsertMessage(ctx context.Context, authorID, timestamp int64, body []byte) (int64, error)
	// LastMessages returns up to limit most recent messages in ascending id order.
	LastMessages(ctx context.Context, limit int) ([]Message, error)
	MessageAuthor(ctx context.Context, postID int64) (int64, error)
	// DeleteMessage removes postID only if authorID wrote it and reports whether a row went away.
	DeleteMessage(ctx context.Context, postID, authorID int64) (bool, error)
}

// NameResolver maps user ids to display names in one round trip.
type NameResolver interface {
	UserNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// Notifier delivers pipeline results to connected clients.
type Notifier interface {
	// MessagePosted goes to every admitted connection, the sender included.
	MessagePosted(ctx context.Context, author presence.Session, msg Message)
	// MessageRemoved goes to every admitted connection except exceptConn.
	MessageRemoved(ctx context.Context, postID int64, exceptConn string)
}

type Pipeline struct {
	store      Store
	names      NameResolver
	notifier   Notifier
	logger     logging.Logger
	historyMax int
	now        func() time.Time

	// mu orders store writes with their broadcast so peers see posts in id order.
	mu sync.Mutex
}

func NewPipeline(store Store, names NameResolver, notifier Notifier, logger logging.Logger, historyMax int) *Pipeline {
	return &Pipeline{
		store:      store,
		names:      names,
		notifier:   notifier,
		logger:     logger.With("component", "messages"),
		historyMax: historyMax,
		now:        time.Now,
	}
}

// Send stamps, persists and broadcasts body. Nothing is broadcast when the
// store write fails.
func (p *Pipeline) Send(ctx context.Context, session presence.Session, body []byte) (Message, error) {
	if session.Identity == "" || session.ConnectionID == "" {
		return Message{}, common.ErrUnknownSession
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	msg := Message{
		AuthorID:  session.UserID,
		Timestamp: p.now().UnixMilli(),
		Body:      body,
	}

	id, err := p.store.InsertMessage(ctx, msg.AuthorID, msg.Timestamp, msg.Body)
	if err != nil {
		p.logger.Error(ctx, "message insert failed", "username", session.Identity, "error", err)
		return Message{}, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	msg.ID = id

	p.notifier.MessagePosted(ctx, session, msg)
	return msg, nil
}

// History returns the last limit posts, oldest first, with author names
// resolved through a single batched lookup.
func (p *Pipeline) History(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 {
		return []Entry{}, nil
	}
	if p.historyMax > 0 && limit > p.historyMax {
		limit = p.historyMax
	}

	msgs, err := p.store.LastMessages(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}

	ids := make([]int64, 0, len(msgs))
	seen := make(map[int64]struct{}, len(msgs))
	for _, m := range msgs {
		if _, ok := seen[m.AuthorID]; ok {
			continue
		}
		seen[m.AuthorID] = struct{}{}
		ids = append(ids, m.AuthorID)
	}

	names := map[int64]string{}
	if len(ids) > 0 {
		names, err = p.names.UserNames(ctx, ids)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
		}
	}

	entries := make([]Entry, 0, len(msgs))
	for _, m := range msgs {
		entries = append(entries, Entry{
			PostID:     m.ID,
			AuthorName: names[m.AuthorID],
			Body:       m.Body,
			Timestamp:  m.Timestamp,
		})
	}
	return entries, nil
}

// DeleteIfAuthor removes postID when session wrote it and tells every other
// connection. Non-authors get common.ErrForbidden, missing posts
// common.ErrNotFound.
func (p *Pipeline) DeleteIfAuthor(ctx context.Context, session presence.Session, postID int64) error {
	author, err := p.store.MessageAuthor(ctx, postID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return common.ErrNotFound
		}
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	if author != session.UserID {
		return common.ErrForbidden
	}

	deleted, err := p.store.DeleteMessage(ctx, postID, session.UserID)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrStoreUnavailable, err)
	}
	if !deleted {
		// Lost a race with another delete of the same post.
		return common.ErrNotFound
	}

	p.notifier.MessageRemoved(ctx, postID, session.ConnectionID)
	return nil
}
