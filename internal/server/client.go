package server

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/Tyrowin/chatroom/internal/logging"
	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	sendBufferSize = 256
)

// Client is one admitted websocket connection. Frames read from it are
// handed to the coordinator in arrival order by readPump; writePump is the
// only writer on the socket.
type Client struct {
	conn           *websocket.Conn
	send           chan []byte
	hub            *Hub
	coordinator    *Coordinator
	connID         string
	identity       string
	addr           string
	closed         bool
	maxMessageSize int64
	limiter        *chatLimiter
	logger         logging.Logger

	done           chan struct{}
	closeOnce      sync.Once
	disconnectOnce sync.Once
}

func newClient(conn *websocket.Conn, coordinator *Coordinator, connID, identity, addr string) *Client {
	opts := coordinator.opts
	if conn != nil {
		conn.SetReadLimit(opts.MaxMessageSize)
	}

	return &Client{
		conn:           conn,
		send:           make(chan []byte, sendBufferSize),
		hub:            coordinator.hub,
		coordinator:    coordinator,
		connID:         connID,
		identity:       identity,
		addr:           addr,
		maxMessageSize: opts.MaxMessageSize,
		limiter:        newChatLimiter(opts.RateLimit),
		logger:         coordinator.logger.With("connection_id", connID, "username", identity),
		done:           make(chan struct{}),
	}
}

func (c *Client) ConnectionID() string {
	return c.connID
}

func (c *Client) Identity() string {
	return c.identity
}

func (c *Client) setupReadConnection() {
	if err := c.conn.SetReadDeadline(time.Now().Add(pongWait)); err != nil {
		c.logger.Warn(context.Background(), "set read deadline failed", "error", err)
	}
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
}

// handleReadError logs err at a level matching how expected it is.
func (c *Client) handleReadError(err error) {
	ctx := context.Background()

	switch {
	case errors.Is(err, websocket.ErrReadLimit):
		c.logger.Warn(ctx, "frame exceeded maximum size", "limit", c.maxMessageSize)
	case websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway, websocket.CloseNoStatusReceived):
		c.logger.Info(ctx, "client disconnected")
	case errors.Is(err, io.EOF) || isExpectedCloseError(err):
		c.logger.Info(ctx, "connection closed", "error", err)
	case websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure):
		c.logger.Warn(ctx, "unexpected websocket close", "error", err)
	default:
		c.logger.Info(ctx, "websocket read ended", "error", err)
	}
}

func (c *Client) readPump() {
	defer func() {
		close(c.done)
		c.hub.Unregister(c)
		c.closeConnection()
		c.coordinator.Disconnect(context.Background(), c)
	}()

	c.setupReadConnection()

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			c.handleReadError(err)
			return
		}
		c.coordinator.Dispatch(context.Background(), c, raw)
	}
}

// allow reports whether the connection may send another chat event now.
func (c *Client) allow() bool {
	return c.limiter == nil || c.limiter.allow()
}

func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.closeConnection()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if !c.handleMessage(message, ok) {
				return
			}
		case <-ticker.C:
			if !c.handlePing() {
				return
			}
		case <-c.done:
			return
		}
	}
}

func (c *Client) closeConnection() {
	c.closeOnce.Do(func() {
		if c.conn == nil {
			return
		}
		if err := c.conn.Close(); err != nil && !isExpectedCloseError(err) {
			c.logger.Warn(context.Background(), "error closing connection", "error", err)
		}
	})
}

// handleMessage writes one queued frame and returns false when the pump
// should stop.
func (c *Client) handleMessage(message []byte, ok bool) bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}

	if !ok {
		_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
		return false
	}

	if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
		if !isExpectedCloseError(err) {
			c.logger.Warn(context.Background(), "write failed", "error", err)
		}
		return false
	}
	return true
}

func (c *Client) handlePing() bool {
	if err := c.conn.SetWriteDeadline(time.Now().Add(writeWait)); err != nil {
		return false
	}
	if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
		c.logger.Info(context.Background(), "ping failed", "error", err)
		return false
	}
	return true
}
