// Package live is the websocket channel that pushes new notifications to
// every connected app in real time.
package live

import (
	"context"
	"net/http"
	"sort"
	"sync"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/iliyamo/homewatch/internal/metrics"
)

// Message is the frame written to clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

const (
	messageTypePing = "ping"
	messageTypePong = "pong"
)

// Hub tracks connected clients and fans broadcasts out to them.
type Hub struct {
	clients    map[*Client]bool
	broadcast  chan Message
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
	upgrader   websocket.Upgrader
	log        *zap.Logger
}

// NewHub creates a Hub.  Run must be started before clients connect.
func NewHub(log *zap.Logger) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		broadcast:  make(chan Message, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		log: log,
	}
}

// Run processes registrations and broadcasts until ctx is cancelled, then
// closes every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			n := h.closeAll()
			h.log.Info("live hub stopped", zap.Int("clients_closed", n))
			return
		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			total := len(h.clients)
			h.mu.Unlock()
			metrics.LiveClients.Set(float64(total))
			h.log.Debug("live client connected", zap.String("user_id", c.userID), zap.Int("total_clients", total))
		case c := <-h.unregister:
			h.remove(c)
		case m := <-h.broadcast:
			h.fanOut(m)
		}
	}
}

// Broadcast queues event for every connected client.  It never blocks; when
// the queue is full the event is dropped.
func (h *Hub) Broadcast(event string, payload any) {
	select {
	case h.broadcast <- Message{Type: event, Data: payload}:
	default:
		h.log.Warn("live broadcast queue full, dropping event", zap.String("event", event))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ServeWS upgrades the request and attaches the connection to the hub on
// behalf of userID.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request, userID string) error {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return err
	}
	c := newClient(h, conn, userID)
	select {
	case h.register <- c:
	case <-h.done:
		_ = conn.Close()
		return nil
	}
	c.start()
	return nil
}

func (h *Hub) remove(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(total))
	h.log.Debug("live client disconnected", zap.String("user_id", c.userID), zap.Int("total_clients", total))
}

// fanOut delivers m in client id order; clients whose buffer is full are
// dropped.
func (h *Hub) fanOut(m Message) {
	h.mu.Lock()
	clients := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	sort.Slice(clients, func(i, j int) bool { return clients[i].id < clients[j].id })

	for _, c := range clients {
		select {
		case c.send <- m:
		default:
			close(c.send)
			delete(h.clients, c)
			h.log.Warn("dropping slow live client", zap.String("user_id", c.userID))
		}
	}
	total := len(h.clients)
	h.mu.Unlock()
	metrics.LiveClients.Set(float64(total))
}

func (h *Hub) closeAll() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := len(h.clients)
	for c := range h.clients {
		close(c.send)
		delete(h.clients, c)
	}
	metrics.LiveClients.Set(0)
	return n
}
