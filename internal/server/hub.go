package server

import (
	"context"
	"sync"
	"time"

	"github.com/Tyrowin/chatroom/internal/logging"
)

// Hub owns the set of attached clients and fans frames out to them. Client
// registration, removal and broadcasts are serialized through Run so peers
// observe broadcasts in the order they were submitted.
type Hub struct {
	clients    map[*Client]struct{}
	byConn     map[string]*Client
	broadcast  chan broadcastMessage
	direct     chan directMessage
	register   chan *Client
	unregister chan *Client
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
	logger     logging.Logger
}

type directMessage struct {
	connID  string
	payload []byte
}

// broadcastMessage is delivered to every client except the one holding
// exceptConn, when set.
type broadcastMessage struct {
	exceptConn string
	payload    []byte
}

func NewHub(logger logging.Logger) *Hub {
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[*Client]struct{}),
		byConn:     make(map[string]*Client),
		broadcast:  make(chan broadcastMessage),
		direct:     make(chan directMessage),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
		logger:     logger.With("component", "hub"),
	}
}

// Register attaches client and starts its pumps. It returns false once the
// hub is shutting down.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.ctx.Done():
		return false
	}
}

func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.ctx.Done():
	}
}

// Broadcast queues payload for every attached client except exceptConn.
func (h *Hub) Broadcast(payload []byte, exceptConn string) {
	select {
	case h.broadcast <- broadcastMessage{exceptConn: exceptConn, payload: payload}:
	case <-h.ctx.Done():
	}
}

// SendTo queues payload for a single connection. It goes through the hub
// loop like broadcasts, so a reply never overtakes a broadcast submitted
// before it.
func (h *Hub) SendTo(connID string, payload []byte) {
	select {
	case h.direct <- directMessage{connID: connID, payload: payload}:
	case <-h.ctx.Done():
	}
}

// CloseConnection closes the transport of connID. The client's read pump
// then fails and runs the normal disconnect path.
func (h *Hub) CloseConnection(connID string) bool {
	h.mutex.RLock()
	client, ok := h.byConn[connID]
	h.mutex.RUnlock()
	if !ok {
		return false
	}
	client.closeConnection()
	return true
}

// Len returns the number of attached clients.
func (h *Hub) Len() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *Hub) safeSend(client *Client, message []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	if _, exists := h.clients[client]; !exists || client.closed {
		return false
	}

	select {
	case client.send <- message:
		return true
	default:
		return false
	}
}

// Run is the hub event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn(h.ctx, "nil client registration skipped")
				continue
			}

			h.mutex.Lock()
			client.closed = false
			h.clients[client] = struct{}{}
			h.byConn[client.connID] = client
			clientCount := len(h.clients)
			h.mutex.Unlock()
			h.logger.Info(h.ctx, "client registered", "connection_id", client.connID, "addr", client.addr, "clients", clientCount)

			h.wg.Add(2)
			go func() {
				defer h.wg.Done()
				client.writePump()
			}()
			go func() {
				defer h.wg.Done()
				client.readPump()
			}()

		case client := <-h.unregister:
			if h.remove(client) {
				h.logger.Info(h.ctx, "client unregistered", "connection_id", client.connID, "clients", h.Len())
			}

		case msg := <-h.broadcast:
			h.handleBroadcast(msg)

		case msg := <-h.direct:
			h.handleDirect(msg)
		}
	}
}

func (h *Hub) handleBroadcast(msg broadcastMessage) {
	for _, client := range h.getClientSnapshot() {
		if msg.exceptConn != "" && client.connID == msg.exceptConn {
			continue
		}
		if !h.safeSend(client, msg.payload) {
			h.drop(client)
		}
	}
}

func (h *Hub) handleDirect(msg directMessage) {
	h.mutex.RLock()
	client, ok := h.byConn[msg.connID]
	h.mutex.RUnlock()
	if !ok {
		h.logger.Debug(h.ctx, "reply to detached connection dropped", "connection_id", msg.connID)
		return
	}
	if !h.safeSend(client, msg.payload) {
		h.drop(client)
	}
}

// drop detaches a client that cannot keep up and closes its socket.
func (h *Hub) drop(client *Client) {
	if h.remove(client) {
		h.logger.Warn(h.ctx, "client dropped, send buffer full", "connection_id", client.connID)
		client.closeConnection()
	}
}

// remove detaches client and closes its send channel, which stops the
// write pump. It reports whether the client was attached.
func (h *Hub) remove(client *Client) bool {
	h.mutex.Lock()
	if _, ok := h.clients[client]; !ok {
		h.mutex.Unlock()
		return false
	}
	delete(h.clients, client)
	if h.byConn[client.connID] == client {
		delete(h.byConn, client.connID)
	}
	client.closed = true
	h.mutex.Unlock()

	close(client.send)
	return true
}

func (h *Hub) getClientSnapshot() []*Client {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	clients := make([]*Client, 0, len(h.clients))
	for client := range h.clients {
		clients = append(clients, client)
	}
	return clients
}

func (h *Hub) shutdownClients() {
	clients := h.getClientSnapshot()
	for _, client := range clients {
		client.closeConnection()
	}
	h.logger.Info(context.Background(), "closed client connections", "count", len(clients))
}

// Shutdown stops Run, closes every connection and waits up to timeout for
// the client pumps to exit.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-time.After(timeout):
		h.logger.Warn(context.Background(), "hub shutdown timeout reached, some client goroutines are still running")
		return context.DeadlineExceeded
	}
}
