package realtime

import (
	"sync"

	"github.com/google/uuid"

	"github.com/eddykim0118/kivo/internal/platform/logger"
)

const clientBuffer = 16

// Client is one open event stream. Outbound is closed by Hub.CloseClient.
type Client struct {
	ID       uuid.UUID
	UserID   string
	Outbound chan JobEvent
	done     chan struct{}
}

func (c *Client) Done() <-chan struct{} { return c.done }

// Hub fans job events out to the streams of the job's owner. It is fed by a
// single bus forwarder per process.
type Hub struct {
	mu     sync.RWMutex
	log    *logger.Logger
	byUser map[string]map[*Client]bool
}

func NewHub(log *logger.Logger) *Hub {
	return &Hub{
		log:    log.With("component", "JobEventHub"),
		byUser: make(map[string]map[*Client]bool),
	}
}

func (h *Hub) Subscribe(userID string) *Client {
	c := &Client{
		ID:       uuid.New(),
		UserID:   userID,
		Outbound: make(chan JobEvent, clientBuffer),
		done:     make(chan struct{}),
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.byUser[userID]
	if !ok {
		clients = make(map[*Client]bool)
		h.byUser[userID] = clients
	}
	clients[c] = true
	h.log.Debug("Event stream opened", "client_id", c.ID, "user_id", userID)
	return c
}

// Broadcast never blocks; a client whose buffer is full misses the event and
// can catch up through the status endpoint.
func (h *Hub) Broadcast(ev JobEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.byUser[ev.UserID] {
		select {
		case c.Outbound <- ev:
		default:
			h.log.Warn("Dropping job event; outbound buffer full", "client_id", c.ID, "job_id", ev.JobID)
		}
	}
}

func (h *Hub) CloseClient(c *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.byUser[c.UserID]
	if !ok || !clients[c] {
		return
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.byUser, c.UserID)
	}
	close(c.done)
	close(c.Outbound)
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, clients := range h.byUser {
		n += len(clients)
	}
	return n
}
