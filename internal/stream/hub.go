package stream

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/blackmichael/studio-posts/internal/domain"
)

const clientBuffer = 64

// Hub fans post events out to connected stream clients. Slow clients drop
// events rather than block publishers.
type Hub struct {
	logger *slog.Logger

	mu      sync.RWMutex
	clients map[*Client]struct{}
}

// Client is one registered subscriber.
type Client struct {
	Send chan []byte
}

var _ domain.EventPublisher = (*Hub)(nil)

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		logger:  logger,
		clients: map[*Client]struct{}{},
	}
}

// Register adds a client and returns it.
func (h *Hub) Register() *Client {
	c := &Client{Send: make(chan []byte, clientBuffer)}

	h.mu.Lock()
	defer h.mu.Unlock()
	h.clients[c] = struct{}{}
	return c
}

// Unregister removes a client and closes its Send channel. It is safe to
// call more than once.
func (h *Hub) Unregister(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.Send)
	}
}

// Clients returns the number of registered clients.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Publish encodes the event and broadcasts it to every client.
func (h *Hub) Publish(event domain.Event) {
	payload, err := json.Marshal(toMessage(event))
	if err != nil {
		h.logger.Error("failed to encode stream event", "type", event.Type, "error", err)
		return
	}

	// Held for the whole loop so Unregister cannot close a channel mid-send.
	h.mu.RLock()
	defer h.mu.RUnlock()

	for c := range h.clients {
		select {
		case c.Send <- payload:
		default:
			h.logger.Warn("stream client is slow, dropping event", "type", event.Type)
		}
	}
}

type postMessage struct {
	ID         int64    `json:"id"`
	PhotoPaths []string `json:"photo_paths"`
	Caption    string   `json:"caption"`
}

type eventMessage struct {
	Type string       `json:"type"`
	ID   int64        `json:"id"`
	Post *postMessage `json:"post,omitempty"`
}

func toMessage(event domain.Event) eventMessage {
	msg := eventMessage{Type: event.Type, ID: event.PostID}
	if event.Post != nil {
		msg.Post = &postMessage{
			ID:         event.Post.ID,
			PhotoPaths: event.Post.Photos,
			Caption:    event.Post.Caption,
		}
	}
	return msg
}
