package api

import (
	"context"
	"log"
	"net/http"
	"net/url"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/vdavid/fieldinbox/internal/auth"
	"github.com/vdavid/fieldinbox/internal/imap"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/metrics"
	"github.com/vdavid/fieldinbox/internal/models"
	ws "github.com/vdavid/fieldinbox/internal/websocket"
)

// IdleStarter runs new-mail ingestion for a team member until ctx is done.
type IdleStarter interface {
	StartIdleListener(ctx context.Context, memberID string, notifier imap.Notifier)
}

// WebSocketHandler handles the /api/v1/ws endpoint. Every connection gets its
// own inbox controller; two tabs of the same member are independent.
type WebSocketHandler struct {
	resolve auth.Resolver
	hub     *ws.Hub
	deps    inbox.Collaborators
	metrics *metrics.Metrics
	// idle is nil when IMAP ingestion is disabled.
	idle IdleStarter

	mu          sync.Mutex
	idleCancels map[string]context.CancelFunc
	sessions    map[string]map[*session]struct{} // memberID -> open sessions
}

// NewWebSocketHandler creates a new WebSocketHandler instance.
func NewWebSocketHandler(resolve auth.Resolver, hub *ws.Hub, deps inbox.Collaborators, m *metrics.Metrics, idle IdleStarter) *WebSocketHandler {
	return &WebSocketHandler{
		resolve:     resolve,
		hub:         hub,
		deps:        deps,
		metrics:     m,
		idle:        idle,
		idleCancels: make(map[string]context.CancelFunc),
		sessions:    make(map[string]map[*session]struct{}),
	}
}

var wsUpgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		// The server runs behind a reverse proxy that enforces the origin.
		return true
	},
}

// maxCommandSize bounds one incoming command frame.
const maxCommandSize = 64 << 10

// Handle authenticates, upgrades the connection and starts a session.
// The token comes from ?token= since browsers cannot set headers on websocket
// connections; the remaining query parameters are the initial inbox location.
func (h *WebSocketHandler) Handle(w http.ResponseWriter, r *http.Request) {
	token, err := auth.RequestToken(r)
	if err != nil {
		log.Printf("WebSocketHandler: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	member, ok := auth.Authenticate(w, r, h.resolve, token)
	if !ok {
		return
	}

	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("WebSocketHandler: failed to upgrade connection for member %s: %v", member.ID, err)
		return
	}
	conn.SetReadLimit(maxCommandSize)

	client := h.hub.Register(member.ID, uuid.NewString(), conn)
	if client == nil {
		log.Printf("WebSocketHandler: Connection rejected for member %s (max connections exceeded)", member.ID)
		return
	}

	h.metrics.SessionOpened()
	h.ensureIdleListener(member.ID)

	location := r.URL.Query()
	location.Del("token")

	go h.serve(member, client, location)
}

// serve runs one session until the browser disconnects.
func (h *WebSocketHandler) serve(member *models.TeamMember, client *ws.Client, location url.Values) {
	controller := inbox.New(
		inbox.Identity{CompanyID: member.CompanyID, TeamMemberID: member.ID},
		h.deps,
		inbox.Options{Metrics: h.metrics},
	)
	s := newSession(client, controller, location)
	log.Printf("WebSocketHandler: session %s opened for member %s", client.SessionID, member.ID)

	s.start()
	h.addSession(member.ID, s)
	s.readLoop()
	h.removeSession(member.ID, s)
	s.stop()

	h.hub.Unregister(member.ID, client)
	h.metrics.SessionClosed()
	log.Printf("WebSocketHandler: session %s closed for member %s", client.SessionID, member.ID)

	if h.hub.ActiveConnections(member.ID) == 0 {
		h.stopIdleListener(member.ID)
	}
}

// ensureIdleListener starts IMAP IDLE ingestion for the member if it is not
// already running.
func (h *WebSocketHandler) ensureIdleListener(memberID string) {
	if h.idle == nil {
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()

	if _, exists := h.idleCancels[memberID]; exists {
		return
	}

	idleCtx, cancel := context.WithCancel(context.Background())
	h.idleCancels[memberID] = cancel

	go func() {
		h.idle.StartIdleListener(idleCtx, memberID, sessionNotifier{h: h})

		// An entry whose context is still live is ours: the listener gave up on its own.
		h.mu.Lock()
		if idleCtx.Err() == nil {
			cancel()
			delete(h.idleCancels, memberID)
		}
		h.mu.Unlock()
	}()
}

func (h *WebSocketHandler) stopIdleListener(memberID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if cancel, exists := h.idleCancels[memberID]; exists {
		log.Printf("WebSocketHandler: No active connections remaining for member %s, stopping IDLE listener", memberID)
		cancel()
		delete(h.idleCancels, memberID)
	}
}

// Shutdown stops every IDLE listener.
func (h *WebSocketHandler) Shutdown() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for memberID, cancel := range h.idleCancels {
		cancel()
		delete(h.idleCancels, memberID)
	}
}

func (h *WebSocketHandler) addSession(memberID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[memberID] == nil {
		h.sessions[memberID] = make(map[*session]struct{})
	}
	h.sessions[memberID][s] = struct{}{}
}

func (h *WebSocketHandler) removeSession(memberID string, s *session) {
	h.mu.Lock()
	defer h.mu.Unlock()

	delete(h.sessions[memberID], s)
	if len(h.sessions[memberID]) == 0 {
		delete(h.sessions, memberID)
	}
}

func (h *WebSocketHandler) memberSessions(memberID string) []*session {
	h.mu.Lock()
	defer h.mu.Unlock()

	out := make([]*session, 0, len(h.sessions[memberID]))
	for s := range h.sessions[memberID] {
		out = append(out, s)
	}
	return out
}

// sessionNotifier forwards new-mail pushes to the member's browsers and
// refreshes the list of each of their open sessions.
type sessionNotifier struct {
	h *WebSocketHandler
}

func (n sessionNotifier) ActiveConnections(memberID string) int {
	return n.h.hub.ActiveConnections(memberID)
}

func (n sessionNotifier) Send(memberID string, payload []byte) {
	n.h.hub.Send(memberID, payload)
	for _, s := range n.h.memberSessions(memberID) {
		s.refresh()
	}
}
