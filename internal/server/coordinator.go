package server

import (
	"context"
	"errors"
	"time"

	"github.com/Tyrowin/chatroom/internal/common"
	"github.com/Tyrowin/chatroom/internal/config"
	"github.com/Tyrowin/chatroom/internal/events"
	"github.com/Tyrowin/chatroom/internal/handshake"
	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/Tyrowin/chatroom/internal/messages"
	"github.com/Tyrowin/chatroom/internal/metrics"
	"github.com/Tyrowin/chatroom/internal/presence"
	"github.com/Tyrowin/chatroom/internal/protocol"
	"github.com/Tyrowin/chatroom/internal/transfer"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// UserDirectory resolves user ids and display names.
type UserDirectory interface {
	UserID(ctx context.Context, username string) (int64, error)
	UserNames(ctx context.Context, ids []int64) (map[int64]string, error)
}

// TokenService signs and checks bearer tokens.
type TokenService interface {
	handshake.TokenVerifier
	Issue(ctx context.Context, subject string, ttl time.Duration) (string, error)
}

// Credentials checks a username and password pair.
type Credentials interface {
	Login(ctx context.Context, username, password string) (int64, error)
}

// Emitter exports activity events without blocking.
type Emitter interface {
	Emit(kind string, data any) bool
}

// Deps are the collaborators of the coordinator and the HTTP handlers.
type Deps struct {
	Tokens      TokenService
	Credentials Credentials
	Users       UserDirectory
	Messages    messages.Store
	Files       transfer.Storage
	Events      Emitter
	Metrics     *metrics.Metrics
	Logger      logging.Logger
}

type options struct {
	MaxMessageSize int64
	RateLimit      config.RateLimitConfig
}

// Coordinator drives the lifecycle of every connection: handshake,
// attachment to the hub, event dispatch and teardown.
type Coordinator struct {
	opts      options
	gate      *handshake.Gate
	presence  *presence.Registry
	pipeline  *messages.Pipeline
	transfers *transfer.Manager
	hub       *Hub
	events    Emitter
	metrics   *metrics.Metrics
	logger    logging.Logger
	newConnID func() string
}

func NewCoordinator(cfg *config.Config, deps Deps) *Coordinator {
	logger := deps.Logger.With("component", "coordinator")

	emitter := deps.Events
	if emitter == nil {
		emitter = nopEmitter{}
	}
	m := deps.Metrics
	if m == nil {
		m = metrics.New()
	}

	reg := presence.NewRegistry()
	c := &Coordinator{
		opts: options{
			MaxMessageSize: cfg.MaxMessageSize,
			RateLimit:      cfg.RateLimit,
		},
		gate:     handshake.NewGate(deps.Tokens, deps.Users, reg),
		presence: reg,
		transfers: transfer.NewManager(deps.Files, transfer.Limits{
			SliceMin: cfg.Upload.SliceMin,
			SliceMax: cfg.Upload.SliceMax,
			MaxSize:  cfg.Upload.MaxSize,
		}, deps.Logger),
		hub:       NewHub(deps.Logger),
		events:    emitter,
		metrics:   m,
		logger:    logger,
		newConnID: uuid.NewString,
	}
	c.pipeline = messages.NewPipeline(deps.Messages, deps.Users, c, deps.Logger, cfg.HistoryMax)
	return c
}

type nopEmitter struct{}

func (nopEmitter) Emit(string, any) bool { return true }

func (c *Coordinator) Hub() *Hub {
	return c.hub
}

func (c *Coordinator) Presence() *presence.Registry {
	return c.presence
}

// Connect runs the handshake for a new connection attempt under a freshly
// allocated connection id.
func (c *Coordinator) Connect(ctx context.Context, username, token string) (presence.Session, error) {
	session, err := c.gate.Admit(ctx, handshake.Request{
		ClaimedIdentity: username,
		Token:           token,
		ConnectionID:    c.newConnID(),
	})
	if err != nil {
		c.metrics.HandshakeRejected(rejectReason(err))
		c.logger.Info(ctx, "handshake rejected", "username", username, "error", err)
		return presence.Session{}, err
	}

	c.logger.Info(ctx, "handshake accepted", "username", session.Identity, "connection_id", session.ConnectionID)
	return session, nil
}

func rejectReason(err error) string {
	switch {
	case errors.Is(err, common.ErrAlreadyConnected):
		return "already_connected"
	case errors.Is(err, common.ErrUnknownUser):
		return "unknown_user"
	case errors.Is(err, common.ErrAuthInvalid):
		return "auth"
	default:
		return "error"
	}
}

// Abort releases a session whose transport never came up.
func (c *Coordinator) Abort(ctx context.Context, session presence.Session) {
	if _, err := c.presence.Release(session.ConnectionID); err != nil {
		c.logger.Warn(ctx, "abort of unknown session", "connection_id", session.ConnectionID, "error", err)
	}
}

// Attach binds an upgraded websocket to an admitted session, starts its
// pumps and announces the user to everyone else.
func (c *Coordinator) Attach(ctx context.Context, session presence.Session, conn *websocket.Conn, addr string) (*Client, bool) {
	client := newClient(conn, c, session.ConnectionID, session.Identity, addr)
	if !c.hub.Register(client) {
		c.Abort(ctx, session)
		client.closeConnection()
		return nil, false
	}
	c.joined(ctx, client)
	return client, true
}

func (c *Coordinator) joined(ctx context.Context, client *Client) {
	c.metrics.Connected()
	c.broadcast(ctx, protocol.EventUserConnect, protocol.UserPresence{Username: client.identity}, client.connID)
	c.events.Emit(events.PresenceConnected, events.Presence{Username: client.identity, ConnectionID: client.connID})
}

// Disconnect tears down everything owned by client. Running it more than
// once for the same client has no further effect.
func (c *Coordinator) Disconnect(ctx context.Context, client *Client) {
	client.disconnectOnce.Do(func() {
		if _, err := c.presence.Release(client.connID); err != nil {
			c.logger.Info(ctx, "disconnect without live session", "connection_id", client.connID, "error", err)
		}

		if n := c.transfers.Abandon(client.connID); n > 0 {
			c.logger.Info(ctx, "abandoned unfinished uploads", "connection_id", client.connID, "count", n)
		}
		c.metrics.SetActiveTransfers(c.transfers.Active())
		c.metrics.Disconnected()

		c.broadcast(ctx, protocol.EventUserDisconnect, protocol.UserPresence{Username: client.identity}, client.connID)
		c.events.Emit(events.PresenceDisconnected, events.Presence{Username: client.identity, ConnectionID: client.connID})
	})
}

// Logout ends the session of identity and closes its connection.
func (c *Coordinator) Logout(ctx context.Context, identity string) error {
	session, err := c.presence.ReleaseByIdentity(identity)
	if err != nil {
		return err
	}
	c.hub.CloseConnection(session.ConnectionID)
	c.logger.Info(ctx, "session logged out", "username", identity, "connection_id", session.ConnectionID)
	return nil
}

// Dispatch decodes one inbound frame of client and routes it.
func (c *Coordinator) Dispatch(ctx context.Context, client *Client, raw []byte) {
	msg, err := protocol.Decode(raw)
	if err != nil {
		client.logger.Warn(ctx, "invalid frame", "error", err)
		return
	}
	c.metrics.Event(msg.Event())

	session, ok := c.presence.LookupByConnection(client.connID)
	if !ok {
		client.logger.Info(ctx, "frame from connection without session", "event", msg.Event(), "error", common.ErrUnknownSession)
		return
	}

	if _, isSlice := msg.(protocol.UploadSlice); !isSlice && !client.allow() {
		c.metrics.RateLimited()
		client.logger.Warn(ctx, "rate limit exceeded, discarding frame", "event", msg.Event(),
			"burst", c.opts.RateLimit.Burst, "interval", c.opts.RateLimit.RefillInterval)
		return
	}

	switch m := msg.(type) {
	case protocol.ChatMessage:
		c.handleChatMessage(ctx, client, session, m)
	case protocol.ChatGet:
		c.handleChatGet(ctx, client, m)
	case protocol.ChatDelete:
		c.handleChatDelete(ctx, client, session, m)
	case protocol.UploadSlice:
		c.handleUploadSlice(ctx, client, session, m)
	}
}

func (c *Coordinator) handleChatMessage(ctx context.Context, client *Client, session presence.Session, m protocol.ChatMessage) {
	if m.Username != "" && m.Username != session.Identity {
		client.logger.Warn(ctx, "message username does not match session, using session identity", "claimed", m.Username)
	}
	if _, err := c.pipeline.Send(ctx, session, []byte(m.Payload)); err != nil {
		client.logger.Error(ctx, "message not sent", "error", err)
	}
}

func (c *Coordinator) handleChatGet(ctx context.Context, client *Client, m protocol.ChatGet) {
	entries, err := c.pipeline.History(ctx, m.Last)
	if err != nil {
		client.logger.Error(ctx, "history unavailable", "error", err)
		return
	}

	out := protocol.History{History: make([]protocol.HistoryEntry, 0, len(entries))}
	for _, e := range entries {
		out.History = append(out.History, protocol.HistoryEntry{
			PostID:    e.PostID,
			Username:  e.AuthorName,
			Payload:   string(e.Body),
			Timestamp: e.Timestamp,
		})
	}
	c.sendTo(ctx, client, protocol.EventChatHistory, out)
}

func (c *Coordinator) handleChatDelete(ctx context.Context, client *Client, session presence.Session, m protocol.ChatDelete) {
	if err := c.pipeline.DeleteIfAuthor(ctx, session, m.PostID); err != nil {
		client.logger.Info(ctx, "delete refused", "postid", m.PostID, "error", err)
	}
}

func (c *Coordinator) handleUploadSlice(ctx context.Context, client *Client, session presence.Session, m protocol.UploadSlice) {
	res := c.transfers.Receive(ctx, client.connID, transfer.Slice{
		Owner:     session.Identity,
		Name:      m.Name,
		Type:      m.Type,
		Size:      m.Size,
		SliceSize: m.SliceSize,
		Data:      m.Data,
	})
	c.metrics.SetActiveTransfers(c.transfers.Active())

	switch res.State {
	case transfer.NeedSlice:
		c.sendTo(ctx, client, protocol.EventUploadRequestSlice, protocol.SliceRequest{Name: res.Name, CurrentSlice: res.NextSlice})
	case transfer.Completed:
		c.metrics.UploadCompleted(res.Size)
		c.events.Emit(events.UploadCompleted, events.Upload{Owner: session.Identity, Name: res.Name, Stored: res.Stored, Size: res.Size})
		c.sendTo(ctx, client, protocol.EventUploadEnd, protocol.UploadEnd{Name: res.Name, Local: res.Stored})
	case transfer.Failed:
		c.metrics.UploadFailed()
		c.events.Emit(events.UploadFailed, events.Upload{Owner: session.Identity, Name: res.Name})
		client.logger.Warn(ctx, "upload failed", "name", res.Name, "error", res.Err)
		c.sendTo(ctx, client, protocol.EventUploadError, protocol.UploadError{Name: res.Name})
	}
}

// MessagePosted implements messages.Notifier.
func (c *Coordinator) MessagePosted(ctx context.Context, author presence.Session, msg messages.Message) {
	c.broadcast(ctx, protocol.EventChatMessage, protocol.ChatPosted{
		Username:  author.Identity,
		Payload:   string(msg.Body),
		Timestamp: msg.Timestamp,
		PostID:    msg.ID,
	}, "")
	c.metrics.MessagePosted()
	c.events.Emit(events.MessagePosted, events.Message{
		PostID:    msg.ID,
		Username:  author.Identity,
		Timestamp: msg.Timestamp,
		Size:      len(msg.Body),
	})
}

// MessageRemoved implements messages.Notifier.
func (c *Coordinator) MessageRemoved(ctx context.Context, postID int64, exceptConn string) {
	c.broadcast(ctx, protocol.EventChatRemove, protocol.ChatRemove{PostID: postID}, exceptConn)
	c.metrics.MessageRemoved()

	username := ""
	if s, ok := c.presence.LookupByConnection(exceptConn); ok {
		username = s.Identity
	}
	c.events.Emit(events.MessageRemoved, events.Message{PostID: postID, Username: username})
}

func (c *Coordinator) broadcast(ctx context.Context, event string, data any, exceptConn string) {
	payload, err := protocol.Encode(event, data)
	if err != nil {
		c.logger.Error(ctx, "encode failed", "event", event, "error", err)
		return
	}
	c.hub.Broadcast(payload, exceptConn)
}

func (c *Coordinator) sendTo(ctx context.Context, client *Client, event string, data any) {
	payload, err := protocol.Encode(event, data)
	if err != nil {
		c.logger.Error(ctx, "encode failed", "event", event, "error", err)
		return
	}
	c.hub.SendTo(client.connID, payload)
}
