// Package hub fans owner-scoped update messages out to every open feed
// connection of that owner.
package hub

import (
	"encoding/json"
	"sync"
)

type Writer interface {
	Write(message []byte) error
	Close() error
}

type Connection struct {
	OwnerID string
	Writer  Writer
}

// Update is the envelope every feed message is sent in.
type Update struct {
	Type string `json:"type"`
	Body any    `json:"body,omitempty"`
}

type Hub struct {
	mu          sync.RWMutex
	connections map[string]map[*Connection]struct{}
}

func New() *Hub {
	return &Hub{connections: make(map[string]map[*Connection]struct{})}
}

func (h *Hub) Register(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.connections[conn.OwnerID] == nil {
		h.connections[conn.OwnerID] = make(map[*Connection]struct{})
	}
	h.connections[conn.OwnerID][conn] = struct{}{}
}

func (h *Hub) Unregister(conn *Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()

	set := h.connections[conn.OwnerID]
	if set == nil {
		return
	}
	delete(set, conn)
	if len(set) == 0 {
		delete(h.connections, conn.OwnerID)
	}
}

// Connections reports how many feeds the owner has open.
func (h *Hub) Connections(ownerID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.connections[ownerID])
}

// Publish encodes u and broadcasts it to the owner.
func (h *Hub) Publish(ownerID string, u Update) error {
	message, err := json.Marshal(u)
	if err != nil {
		return err
	}
	h.Broadcast(ownerID, message)
	return nil
}

// Broadcast writes message to each of the owner's connections. A connection
// whose write fails is closed and dropped.
func (h *Hub) Broadcast(ownerID string, message []byte) {
	h.mu.RLock()
	set := h.connections[ownerID]
	conns := make([]*Connection, 0, len(set))
	for c := range set {
		conns = append(conns, c)
	}
	h.mu.RUnlock()

	var failed []*Connection
	for _, c := range conns {
		if err := c.Writer.Write(message); err != nil {
			failed = append(failed, c)
		}
	}
	for _, c := range failed {
		_ = c.Writer.Close()
		h.Unregister(c)
	}
}
