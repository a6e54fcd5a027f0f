package devserver

import (
	"sync"
	"sync/atomic"
)

const outgoingBuffer = 64

// Client is one live stream subscribed to a session, over either transport.
type Client struct {
	SessionID string
	Outgoing  chan []byte

	done     chan struct{}
	stopOnce sync.Once
	kicked   atomic.Bool
}

func newClient(sessionID string) *Client {
	return &Client{
		SessionID: sessionID,
		Outgoing:  make(chan []byte, outgoingBuffer),
		done:      make(chan struct{}),
	}
}

// send queues data without blocking. It reports false when the client is
// gone or its buffer is full.
func (c *Client) send(data []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Outgoing <- data:
		return true
	default:
		return false
	}
}

// stop ends the client's stream. An abrupt stop drops the transport without
// a close handshake.
func (c *Client) stop(abrupt bool) {
	c.stopOnce.Do(func() {
		c.kicked.Store(abrupt)
		close(c.done)
	})
}

// Message is one entry of a session's history.
type Message struct {
	Role    string
	Content string
}

type session struct {
	id      string
	clients map[*Client]bool
	history []Message
	turn    sync.Mutex
}

// Hub tracks sessions, their live clients and their history. History
// outlives connections so a reconnecting client resumes the same session.
type Hub struct {
	sessions map[string]*session
	mu       sync.RWMutex
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{
		sessions: make(map[string]*session),
	}
}

func (h *Hub) sessionLocked(id string) *session {
	s, ok := h.sessions[id]
	if !ok {
		s = &session{id: id, clients: make(map[*Client]bool)}
		h.sessions[id] = s
	}
	return s
}

// Register adds a client to its session.
func (h *Hub) Register(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sessionLocked(client.SessionID).clients[client] = true
}

// Unregister removes a client from its session.
func (h *Hub) Unregister(client *Client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[client.SessionID]; ok {
		delete(s.clients, client)
	}
}

// ClientCount returns the number of connected clients across sessions.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	n := 0
	for _, s := range h.sessions {
		n += len(s.clients)
	}
	return n
}

// SessionClients returns the number of clients connected to a session.
func (h *Hub) SessionClients(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	if s, ok := h.sessions[id]; ok {
		return len(s.clients)
	}
	return 0
}

// Broadcast queues data for every client of a session and returns how many
// accepted it.
func (h *Hub) Broadcast(id string, data []byte) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return 0
	}
	n := 0
	for client := range s.clients {
		if client.send(data) {
			n++
		}
	}
	return n
}

// Append adds a message to a session's history.
func (h *Hub) Append(id string, msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()
	s := h.sessionLocked(id)
	s.history = append(s.history, msg)
}

// History returns a copy of a session's history.
func (h *Hub) History(id string) []Message {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return nil
	}
	return append([]Message(nil), s.history...)
}

// ClearHistory drops a session's history.
func (h *Hub) ClearHistory(id string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.sessions[id]; ok {
		s.history = nil
	}
}

// lockTurn serializes replies within a session and returns the unlock func.
func (h *Hub) lockTurn(id string) func() {
	h.mu.Lock()
	s := h.sessionLocked(id)
	h.mu.Unlock()
	s.turn.Lock()
	return s.turn.Unlock
}

// Kick drops every client of a session without a close handshake and
// returns how many were dropped.
func (h *Hub) Kick(id string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	s, ok := h.sessions[id]
	if !ok {
		return 0
	}
	for client := range s.clients {
		client.stop(true)
	}
	return len(s.clients)
}

// CloseAll ends every client stream gracefully.
func (h *Hub) CloseAll() {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, s := range h.sessions {
		for client := range s.clients {
			client.stop(false)
		}
	}
}
