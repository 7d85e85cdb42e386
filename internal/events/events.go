// Package events exports chat activity to a message broker.
package events

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Routing keys of exported events.
const (
	PresenceConnected    = "presence.connected"
	PresenceDisconnected = "presence.disconnected"
	MessagePosted        = "chat.message.posted"
	MessageRemoved       = "chat.message.removed"
	UploadCompleted      = "upload.completed"
	UploadFailed         = "upload.failed"
)

type Envelope struct {
	ID         string    `json:"id"`
	Type       string    `json:"type"`
	OccurredAt time.Time `json:"occurred_at"`
	Data       any       `json:"data"`
}

func NewEnvelope(kind string, data any) Envelope {
	return Envelope{
		ID:         uuid.NewString(),
		Type:       kind,
		OccurredAt: time.Now().UTC(),
		Data:       data,
	}
}

type Presence struct {
	Username     string `json:"username"`
	ConnectionID string `json:"connection_id"`
}

type Message struct {
	PostID    int64  `json:"post_id"`
	Username  string `json:"username"`
	Timestamp int64  `json:"timestamp,omitempty"`
	Size      int    `json:"size,omitempty"`
}

type Upload struct {
	Owner  string `json:"owner"`
	Name   string `json:"name"`
	Stored string `json:"stored,omitempty"`
	Size   int64  `json:"size,omitempty"`
}

// Publisher sends one envelope, routed by its Type.
type Publisher interface {
	Publish(ctx context.Context, env Envelope) error
	Close() error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Publish(context.Context, Envelope) error { return nil }
func (Nop) Close() error                            { return nil }
