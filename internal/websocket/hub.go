package websocket

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/lehrershow/songsubmit/internal/logger"
)

const broadcastBufferSize = 64

// Event is the message pushed to staff dashboards
type Event struct {
	Type       string `json:"type"`
	Submission any    `json:"submission"`
}

// ConnectionGauge tracks open connections
type ConnectionGauge interface {
	IncWSConnections()
	DecWSConnections()
}

// Hub maintains the set of connected staff clients and broadcasts events to
// all of them.
type Hub struct {
	clients map[*Client]bool

	register   chan *Client
	unregister chan *Client
	broadcast  chan []byte
	done       chan struct{}

	gauge ConnectionGauge
	log   *logger.Logger
	mu    sync.RWMutex
}

// NewHub creates a new Hub. gauge may be nil.
func NewHub(gauge ConnectionGauge) *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		broadcast:  make(chan []byte, broadcastBufferSize),
		done:       make(chan struct{}),
		gauge:      gauge,
		log:        logger.Default().WithComponent("websocket"),
	}
}

// Run starts the hub's main loop. It returns when ctx is cancelled, closing
// every client.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for client := range h.clients {
				h.remove(client)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			h.clients[client] = true
			h.mu.Unlock()
			if h.gauge != nil {
				h.gauge.IncWSConnections()
			}

		case client := <-h.unregister:
			h.mu.Lock()
			if h.clients[client] {
				h.remove(client)
			}
			h.mu.Unlock()

		case message := <-h.broadcast:
			h.mu.Lock()
			for client := range h.clients {
				select {
				case client.send <- message:
				default:
					// slow consumer
					h.log.Warn(context.Background(), "dropping slow live feed client", logger.Fields{
						"subject": client.subject,
					})
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held
func (h *Hub) remove(client *Client) {
	delete(h.clients, client)
	close(client.send)
	if h.gauge != nil {
		h.gauge.DecWSConnections()
	}
}

// Register adds client to the hub. It reports false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes client from the hub
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

// Publish queues an event for every connected client. It never blocks: when
// the queue is full the event is dropped.
func (h *Hub) Publish(eventType string, payload any) {
	data, err := json.Marshal(Event{Type: eventType, Submission: payload})
	if err != nil {
		h.log.Error(context.Background(), "failed to encode live feed event", err, logger.Fields{"type": eventType})
		return
	}

	select {
	case h.broadcast <- data:
	default:
		h.log.Warn(context.Background(), "live feed queue full, event dropped", logger.Fields{"type": eventType})
	}
}

// TotalClients returns the total number of connected clients.
func (h *Hub) TotalClients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
