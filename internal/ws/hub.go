package ws

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/google/uuid"
)

// AllSessions subscribes a client to the events of every session
var AllSessions = uuid.Nil

// Hub fans session events out to websocket clients. A client receives the
// events of its own session plus those of every session when it subscribed
// to AllSessions, filtered by the event types it asked for.
type Hub struct {
	clients    map[*Client]bool
	sessions   map[uuid.UUID]map[*Client]bool
	broadcast  chan Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

func NewHub() *Hub {
	return &Hub{
		clients:    make(map[*Client]bool),
		sessions:   make(map[uuid.UUID]map[*Client]bool),
		broadcast:  make(chan Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Run serves the hub until ctx is done, then disconnects every client
func (h *Hub) Run(ctx context.Context) {
	defer h.shutdown()

	for {
		select {
		case <-ctx.Done():
			return
		case client := <-h.register:
			h.addClient(client)
		case client := <-h.unregister:
			h.removeClient(client)
		case event := <-h.broadcast:
			h.broadcastToSession(event)
		}
	}
}

func (h *Hub) shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	close(h.done)
	for client := range h.clients {
		close(client.send)
	}
	h.clients = make(map[*Client]bool)
	h.sessions = make(map[uuid.UUID]map[*Client]bool)
}

// Register adds a client. It returns false once the hub stopped.
func (h *Hub) Register(client *Client) bool {
	select {
	case h.register <- client:
		return true
	case <-h.done:
		return false
	}
}

// Unregister removes a client
func (h *Hub) Unregister(client *Client) {
	select {
	case h.unregister <- client:
	case <-h.done:
	}
}

func (h *Hub) addClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.clients[client] = true

	if h.sessions[client.sub.SessionID] == nil {
		h.sessions[client.sub.SessionID] = make(map[*Client]bool)
	}
	h.sessions[client.sub.SessionID][client] = true
}

func (h *Hub) removeClient(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.dropClient(client)
}

// dropClient needs h.mu held
func (h *Hub) dropClient(client *Client) {
	if _, ok := h.clients[client]; !ok {
		return
	}
	delete(h.clients, client)
	delete(h.sessions[client.sub.SessionID], client)

	if len(h.sessions[client.sub.SessionID]) == 0 {
		delete(h.sessions, client.sub.SessionID)
	}

	close(client.send)
}

func (h *Hub) broadcastToSession(event Event) {
	h.mu.Lock()
	defer h.mu.Unlock()

	message, err := json.Marshal(event)
	if err != nil {
		return
	}

	targets := make([]*Client, 0)
	collect := func(subscribers map[*Client]bool) {
		for client := range subscribers {
			if client.sub.Wants(event.Type) {
				targets = append(targets, client)
			}
		}
	}
	collect(h.sessions[event.SessionID])
	if event.SessionID != AllSessions {
		collect(h.sessions[AllSessions])
	}

	for _, client := range targets {
		select {
		case client.send <- message:
		default:
			// slow consumer
			h.dropClient(client)
		}
	}
}

// BroadcastToSession queues an event for the subscribers of sessionID. It
// never blocks; events are dropped when the queue is full.
func (h *Hub) BroadcastToSession(sessionID uuid.UUID, eventType string, data any) {
	select {
	case h.broadcast <- newEvent(sessionID, eventType, data):
	default:
	}
}

// GetConnectedClients returns the clients subscribed to sessionID
func (h *Hub) GetConnectedClients(sessionID uuid.UUID) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.sessions[sessionID])
}
