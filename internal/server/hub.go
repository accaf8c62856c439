package server

import (
	"context"
	"sync"
	"time"

	"github.com/Tyrowin/roomrelay/internal/room"
	"go.uber.org/zap"
)

// SessionHandler receives the lifecycle and inbound frames of every
// connection the Hub manages.
type SessionHandler interface {
	Connect(id room.ConnID)
	Handle(id room.ConnID, frame []byte)
	Disconnect(id room.ConnID)
}

// Hub manages all WebSocket client connections and routes outbound frames to
// them by connection id. Registration and removal are serialized through Run.
type Hub struct {
	clients    map[room.ConnID]*Client
	register   chan *Client
	unregister chan *Client
	handler    SessionHandler
	logger     *zap.Logger
	mutex      sync.RWMutex
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
	done       chan struct{}
}

// NewHub creates a Hub that reports connection events to handler.
// SetHandler must be called before Run when handler is nil.
func NewHub(handler SessionHandler, logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Hub{
		clients:    make(map[room.ConnID]*Client),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		handler:    handler,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
		done:       make(chan struct{}),
	}
}

// SetHandler installs the session handler. The handler usually needs the Hub
// as its Sender, so the two are built in either order.
func (h *Hub) SetHandler(handler SessionHandler) {
	h.handler = handler
}

// Send queues frame for the connection with the given id. It never blocks:
// an unknown id, a closed client or a full send buffer all return false.
func (h *Hub) Send(id room.ConnID, frame []byte) bool {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	client, exists := h.clients[id]
	if !exists || client.closed {
		return false
	}

	select {
	case client.send <- frame:
		return true
	default:
		h.logger.Warn("send buffer full", zap.String("conn_id", string(id)), zap.String("addr", client.addr))
		return false
	}
}

// ClientCount returns the number of registered clients.
func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

// Run starts the hub's event loop. It returns after Shutdown is called.
func (h *Hub) Run() {
	defer close(h.done)

	for {
		select {
		case <-h.ctx.Done():
			h.shutdownClients()
			return

		case client := <-h.register:
			if client == nil {
				h.logger.Warn("received nil client registration; skipping")
				continue
			}
			h.addClient(client)

		case client := <-h.unregister:
			h.removeClient(client)
		}
	}
}

func (h *Hub) registerClient(client *Client) {
	select {
	case h.register <- client:
	case <-h.done:
		h.logger.Info("hub stopped; rejecting connection", zap.String("addr", client.addr))
		client.closeConnection()
	}
}

// unregisterClient falls back to direct removal once Run has returned, so a
// read pump exiting during shutdown never blocks on the channel.
func (h *Hub) unregisterClient(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
		h.removeClient(client)
	}
}

func (h *Hub) addClient(client *Client) {
	h.mutex.Lock()
	client.closed = false
	h.clients[client.id] = client
	clientCount := len(h.clients)
	h.mutex.Unlock()

	h.logger.Info("client registered",
		zap.String("conn_id", string(client.id)),
		zap.String("addr", client.addr),
		zap.Int("clients", clientCount))

	// The client is reachable before Connect so it receives the first room list.
	h.handler.Connect(client.id)

	h.wg.Add(2)
	go func() {
		defer h.wg.Done()
		client.writePump()
	}()
	go func() {
		defer h.wg.Done()
		client.readPump()
	}()
}

func (h *Hub) removeClient(client *Client) {
	h.mutex.RLock()
	current, exists := h.clients[client.id]
	h.mutex.RUnlock()
	if !exists || current != client {
		return
	}

	h.handler.Disconnect(client.id)

	h.mutex.Lock()
	if current, exists := h.clients[client.id]; !exists || current != client {
		h.mutex.Unlock()
		return
	}
	delete(h.clients, client.id)
	client.closed = true
	clientCount := len(h.clients)
	h.mutex.Unlock()

	// Close the channel after releasing the lock
	close(client.send)
	h.logger.Info("client unregistered",
		zap.String("conn_id", string(client.id)),
		zap.String("addr", client.addr),
		zap.Int("clients", clientCount))
}

// shutdownClients closes every socket; each read pump then runs its own
// disconnect cleanup.
func (h *Hub) shutdownClients() {
	h.logger.Info("shutting down all client connections")

	h.mutex.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mutex.RUnlock()

	for _, client := range clients {
		client.closeConnection()
	}

	h.logger.Info("closed client connections", zap.Int("count", len(clients)))
}

// Shutdown initiates graceful shutdown of the hub and waits for all client
// goroutines to finish, or for timeout to pass.
func (h *Hub) Shutdown(timeout time.Duration) error {
	h.logger.Info("initiating hub shutdown")

	h.cancel()
	<-h.done

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		h.logger.Info("hub shutdown completed")
		return nil
	case <-time.After(timeout):
		h.logger.Warn("hub shutdown timeout reached, some goroutines may still be running")
		return context.DeadlineExceeded
	}
}
