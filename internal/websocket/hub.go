package websocket

import (
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// writeTimeout bounds a single frame write to a slow browser.
const writeTimeout = 10 * time.Second

// Client is one websocket session of a team member.
// Writes are serialized; gorilla connections allow one concurrent writer.
type Client struct {
	SessionID string

	conn    *websocket.Conn
	writeMu sync.Mutex
}

// Conn returns the underlying WebSocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// WriteMessage writes a text frame.
func (c *Client) WriteMessage(msg []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, msg)
}

// WriteJSON encodes v and writes it as a text frame.
func (c *Client) WriteJSON(v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	return c.WriteMessage(payload)
}

// Hub tracks open sessions per team member. A member may have several
// (one per browser tab).
type Hub struct {
	mu           sync.RWMutex
	clients      map[string]map[*Client]struct{} // memberID -> sessions
	maxPerMember int
}

// NewHub creates a Hub with a per-member session limit.
func NewHub(maxPerMember int) *Hub {
	if maxPerMember <= 0 {
		maxPerMember = 10
	}
	return &Hub{
		clients:      make(map[string]map[*Client]struct{}),
		maxPerMember: maxPerMember,
	}
}

// Register adds a session for memberID. Over the per-member limit the
// connection is closed with a policy violation and nil is returned.
func (h *Hub) Register(memberID, sessionID string, conn *websocket.Conn) *Client {
	h.mu.Lock()
	defer h.mu.Unlock()

	sessions, ok := h.clients[memberID]
	if !ok {
		sessions = make(map[*Client]struct{})
		h.clients[memberID] = sessions
	}

	if len(sessions) >= h.maxPerMember {
		log.Printf("websocket: member %s exceeded max connections (%d), closing new connection", memberID, h.maxPerMember)
		_ = conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "too many connections for this member"),
			time.Now().Add(time.Second),
		)
		_ = conn.Close()
		return nil
	}

	client := &Client{SessionID: sessionID, conn: conn}
	sessions[client] = struct{}{}
	return client
}

// Unregister removes a session and closes its connection.
func (h *Hub) Unregister(memberID string, client *Client) {
	if client == nil {
		return
	}

	h.mu.Lock()
	if sessions, ok := h.clients[memberID]; ok {
		delete(sessions, client)
		if len(sessions) == 0 {
			delete(h.clients, memberID)
		}
	}
	h.mu.Unlock()

	_ = client.conn.Close()
}

// Send writes msg to every session of memberID. Sessions that fail to take
// the write are dropped.
func (h *Hub) Send(memberID string, msg []byte) {
	h.mu.RLock()
	sessions := make([]*Client, 0, len(h.clients[memberID]))
	for client := range h.clients[memberID] {
		sessions = append(sessions, client)
	}
	h.mu.RUnlock()

	for _, client := range sessions {
		if err := client.WriteMessage(msg); err != nil {
			log.Printf("websocket: failed to write message for member %s: %v", memberID, err)
			h.Unregister(memberID, client)
		}
	}
}

// ActiveConnections returns the number of open sessions of memberID.
func (h *Hub) ActiveConnections(memberID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return len(h.clients[memberID])
}

// MemberIDs returns the members with at least one open session.
func (h *Hub) MemberIDs() []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	ids := make([]string, 0, len(h.clients))
	for id := range h.clients {
		ids = append(ids, id)
	}
	return ids
}
