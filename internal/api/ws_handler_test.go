package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/imap"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil/mocks"
	ws "github.com/vdavid/fieldinbox/internal/websocket"
)

var alice = &models.TeamMember{ID: "member-1", CompanyID: "acme", Name: "Alice"}

func resolveAlice(ctx context.Context, token string) (*models.TeamMember, error) {
	if token == "good" {
		return alice, nil
	}
	return nil, db.ErrTeamMemberNotFound
}

// blockingIdle records the members it was started for and blocks until cancelled.
type blockingIdle struct {
	mu      sync.Mutex
	started []string
	stopped chan string
}

func (b *blockingIdle) StartIdleListener(ctx context.Context, memberID string, _ imap.Notifier) {
	b.mu.Lock()
	b.started = append(b.started, memberID)
	b.mu.Unlock()
	<-ctx.Done()
	b.stopped <- memberID
}

func (b *blockingIdle) Started() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.started...)
}

func dialSession(t *testing.T, handler *WebSocketHandler, query string) *websocket.Conn {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(server.Close)

	conn, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+"?"+query, nil)
	require.NoError(t, err)
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	return conn
}

// readUntil reads server messages until match returns true. It returns the
// matching message and everything read before it.
func readUntil(t *testing.T, conn *websocket.Conn, match func(ServerMessage) bool) (ServerMessage, []ServerMessage) {
	t.Helper()
	var seen []ServerMessage
	for {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var msg ServerMessage
		require.NoError(t, conn.ReadJSON(&msg))
		if match(msg) {
			return msg, seen
		}
		seen = append(seen, msg)
	}
}

func ofType(messageType string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == messageType }
}

func resultFor(requestID string) func(ServerMessage) bool {
	return func(m ServerMessage) bool { return m.Type == MessageResult && m.RequestID == requestID }
}

func TestWebSocketHandler_Session(t *testing.T) {
	list := mocks.NewListQuerier(t)
	mutator := mocks.NewMutator(t)

	items := []*models.Communication{
		{ID: "c1", Type: models.TypeCall, Status: models.StatusRead, Tags: []string{models.StarredTag}, CreatedAt: time.Now()},
		{ID: "team-1", Type: models.TypeTeam, Channel: models.TeamsChannel, CreatedAt: time.Now()},
	}
	list.On("ListCommunications", mock.Anything, "acme", mock.MatchedBy(func(q inbox.ListQuery) bool {
		return q.Descriptor.MailboxOwnerID == "member-1" && q.Page.Limit == inbox.PageSize
	})).Return(items, nil)
	mutator.On("ToggleStar", mock.Anything, "acme", "c1", false).Return(nil).Once()
	mutator.On("Archive", mock.Anything, "acme", "c1").Return(errors.New("mailbox is read-only")).Once()

	idle := &blockingIdle{stopped: make(chan string, 1)}
	handler := NewWebSocketHandler(resolveAlice, ws.NewHub(5), inbox.Collaborators{List: list, Mutations: mutator}, nil, idle)

	conn := dialSession(t, handler, "token=good&folder=inbox&compose=email")

	t.Run("loads the initial list without team messages", func(t *testing.T) {
		msg, _ := readUntil(t, conn, func(m ServerMessage) bool {
			return m.Type == MessageState && m.State != nil && len(m.State.Communications) > 0
		})
		require.Len(t, msg.State.Communications, 1)
		assert.Equal(t, "c1", msg.State.Communications[0].ID)
		assert.Equal(t, []string{"c1"}, msg.State.StarredIDs)
	})

	t.Run("writes back the location without the compose intent or token", func(t *testing.T) {
		msg, _ := readUntil(t, conn, ofType(MessageLocation))
		assert.Equal(t, "folder=inbox", msg.Location)

		compose, _ := readUntil(t, conn, ofType(MessageCompose))
		assert.Equal(t, "email", compose.Compose)
	})

	t.Run("selecting writes the id into the location", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Command{ID: "r0", Type: "select", CommunicationID: "c1"}))

		msg, _ := readUntil(t, conn, ofType(MessageLocation))
		assert.Equal(t, "folder=inbox&id=c1", msg.Location)
		result, _ := readUntil(t, conn, resultFor("r0"))
		assert.Empty(t, result.Error)
	})

	t.Run("runs a command and reports its notice", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Command{ID: "r1", Type: "star", CommunicationID: "c1"}))

		result, seen := readUntil(t, conn, resultFor("r1"))
		assert.Empty(t, result.Error)

		var notices []string
		for _, m := range seen {
			if m.Type == MessageNotice {
				notices = append(notices, m.Notice.Message)
			}
		}
		assert.Contains(t, notices, "Removed star")
	})

	t.Run("reports a reverted mutation", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Command{ID: "r2", Type: "archive", CommunicationID: "c1"}))

		result, seen := readUntil(t, conn, resultFor("r2"))
		assert.Equal(t, "mailbox is read-only", result.Error)

		var last *inbox.Snapshot
		for _, m := range seen {
			if m.Type == MessageState {
				last = m.State
			}
		}
		require.NotNil(t, last)
		require.Len(t, last.Communications, 1, "archived item is put back")
	})

	t.Run("rejects unknown commands", func(t *testing.T) {
		require.NoError(t, conn.WriteJSON(Command{ID: "r3", Type: "teleport"}))

		result, _ := readUntil(t, conn, resultFor("r3"))
		assert.Contains(t, result.Error, "unknown command")
	})

	t.Run("new mail refreshes the list", func(t *testing.T) {
		sessionNotifier{h: handler}.Send("member-1", []byte(`{"type":"new_communication","count":1}`))

		_, _ = readUntil(t, conn, ofType("new_communication"))
		list.AssertNumberOfCalls(t, "ListCommunications", 2)
	})

	t.Run("runs IDLE while connected and stops it on disconnect", func(t *testing.T) {
		assert.Eventually(t, func() bool { return len(idle.Started()) == 1 }, 3*time.Second, 10*time.Millisecond)
		assert.Equal(t, []string{"member-1"}, idle.Started())

		require.NoError(t, conn.Close())
		select {
		case memberID := <-idle.stopped:
			assert.Equal(t, "member-1", memberID)
		case <-time.After(3 * time.Second):
			t.Fatal("IDLE listener was not stopped after the last session closed")
		}
	})
}

func TestWebSocketHandler_RejectsUnknownToken(t *testing.T) {
	handler := NewWebSocketHandler(resolveAlice, ws.NewHub(5), inbox.Collaborators{}, nil, nil)
	server := httptest.NewServer(http.HandlerFunc(handler.Handle))
	t.Cleanup(server.Close)

	for _, query := range []string{"", "?token=bad"} {
		_, resp, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(server.URL, "http")+query, nil)
		require.Error(t, err)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		_ = resp.Body.Close()
	}
}
