package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/url"
	"sync"
	"time"

	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	ws "github.com/vdavid/fieldinbox/internal/websocket"
)

// commandTimeout bounds a single browser command, including its remote calls.
const commandTimeout = 30 * time.Second

// Server message types.
const (
	MessageState          = "state"
	MessageNotice         = "notice"
	MessageLocation       = "location"
	MessageCompose        = "compose"
	MessageScrollToLatest = "scroll_to_latest"
	MessageResult         = "result"
)

// ServerMessage is pushed to the browser.
type ServerMessage struct {
	Type      string          `json:"type"`
	State     *inbox.Snapshot `json:"state,omitempty"`
	Notice    *inbox.Notice   `json:"notice,omitempty"`
	Location  string          `json:"location,omitempty"`
	Compose   string          `json:"compose,omitempty"`
	RequestID string          `json:"request_id,omitempty"`
	Error     string          `json:"error,omitempty"`
}

// Command is sent by the browser. Which fields are read depends on Type.
type Command struct {
	ID              string                 `json:"id"`
	Type            string                 `json:"type"`
	Location        string                 `json:"location,omitempty"`
	Search          string                 `json:"search,omitempty"`
	CommunicationID string                 `json:"communication_id,omitempty"`
	IDs             []string               `json:"ids,omitempty"`
	Notes           string                 `json:"notes,omitempty"`
	On              bool                   `json:"on,omitempty"`
	ChannelID       string                 `json:"channel_id,omitempty"`
	Body            string                 `json:"body,omitempty"`
	SMS             *models.SendSMSRequest `json:"sms,omitempty"`
	AssigneeID      *string                `json:"assignee_id,omitempty"`
}

var errUnknownCommand = errors.New("unknown command")

// session binds one websocket client to one controller.
type session struct {
	client     *ws.Client
	controller *inbox.Controller

	ctx         context.Context
	cancel      context.CancelFunc
	commands    sync.WaitGroup
	unsubscribe func()

	locMu    sync.Mutex
	location url.Values
	written  string
}

func newSession(client *ws.Client, controller *inbox.Controller, location url.Values) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		client:     client,
		controller: controller,
		ctx:        ctx,
		cancel:     cancel,
		location:   location,
	}
}

// start subscribes to controller events and applies the initial location.
func (s *session) start() {
	s.unsubscribe = s.controller.Subscribe(s.onEvent)

	ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
	defer cancel()
	if err := s.navigate(ctx, s.currentLocation()); err != nil {
		log.Printf("Session: initial navigation failed for %s: %v", s.client.SessionID, err)
	}
}

// stop cancels running commands, waits for them and tears down the controller.
func (s *session) stop() {
	s.cancel()
	s.commands.Wait()
	if s.unsubscribe != nil {
		s.unsubscribe()
	}
	s.controller.Close()
}

// readLoop decodes commands until the connection closes. Commands run
// concurrently so a slow fetch does not hold up a star or an archive.
func (s *session) readLoop() {
	conn := s.client.Conn()
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}

		var cmd Command
		if err := json.Unmarshal(data, &cmd); err != nil {
			s.send(ServerMessage{Type: MessageResult, Error: "invalid command"})
			continue
		}

		s.commands.Add(1)
		go func() {
			defer s.commands.Done()
			ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
			defer cancel()

			result := ServerMessage{Type: MessageResult, RequestID: cmd.ID}
			if err := s.dispatch(ctx, cmd); err != nil {
				result.Error = err.Error()
			}
			s.send(result)
		}()
	}
}

func (s *session) dispatch(ctx context.Context, cmd Command) error {
	c := s.controller
	switch cmd.Type {
	case "navigate":
		q, err := url.ParseQuery(cmd.Location)
		if err != nil {
			return fmt.Errorf("invalid location: %w", err)
		}
		q.Del("token")
		s.setLocation(q)
		return s.navigate(ctx, q)
	case "search":
		s.updateLocation(func(q url.Values) {
			if cmd.Search == "" {
				q.Del(inbox.ParamSearch)
			} else {
				q.Set(inbox.ParamSearch, cmd.Search)
			}
		})
		return c.SetSearch(ctx, cmd.Search)
	case "refresh":
		return c.Refresh(ctx)
	case "select":
		return c.Select(ctx, cmd.CommunicationID)
	case "archive":
		return c.Archive(ctx, cmd.CommunicationID)
	case "star":
		return c.ToggleStar(ctx, cmd.CommunicationID)
	case "delete":
		ids := cmd.IDs
		if len(ids) == 0 && cmd.CommunicationID != "" {
			ids = []string{cmd.CommunicationID}
		}
		return c.Delete(ctx, ids...)
	case "spam":
		return c.ToggleSpam(ctx, cmd.CommunicationID)
	case "retry":
		return c.RetrySend(ctx, cmd.CommunicationID)
	case "save_notes":
		return c.SaveNotes(ctx, cmd.CommunicationID, cmd.Notes)
	case "notes_draft":
		return c.SetNotesDraft(cmd.Notes)
	case "reply_mode":
		return c.SetReplyMode(cmd.On)
	case "assign":
		return c.Assign(ctx, cmd.CommunicationID, cmd.AssigneeID)
	case "open_channel":
		return c.OpenChannel(ctx, cmd.ChannelID)
	case "close_channel":
		c.CloseChannel()
		return nil
	case "search_channel":
		return c.SearchChannel(ctx, cmd.Search)
	case "send_channel_message":
		return c.SendChannelMessage(ctx, cmd.Body)
	case "send_sms":
		if cmd.SMS == nil {
			return inbox.ErrEmptyMessage
		}
		return c.SendSMS(ctx, *cmd.SMS)
	default:
		return fmt.Errorf("%w: %q", errUnknownCommand, cmd.Type)
	}
}

// refresh reloads the list after new communications were stored.
func (s *session) refresh() {
	ctx, cancel := context.WithTimeout(s.ctx, commandTimeout)
	defer cancel()
	if err := s.controller.Refresh(ctx); err != nil {
		log.Printf("Session: refresh failed for %s: %v", s.client.SessionID, err)
	}
}

// navigate applies q, then writes back the resulting location and hands the
// compose intent to the browser once.
func (s *session) navigate(ctx context.Context, q url.Values) error {
	nav := inbox.ParseNavigation(q)
	err := s.controller.Navigate(ctx, nav)

	s.send(ServerMessage{Type: MessageState, State: s.snapshot()})
	s.syncLocation(true)
	if nav.Compose != "" {
		s.send(ServerMessage{Type: MessageCompose, Compose: nav.Compose})
	}
	return err
}

func (s *session) onEvent(ev inbox.Event) {
	switch ev.Kind {
	case inbox.EventNotice:
		s.send(ServerMessage{Type: MessageNotice, Notice: ev.Notice})
	case inbox.EventScrollToLatest:
		s.send(ServerMessage{Type: MessageScrollToLatest})
	case inbox.EventSelection, inbox.EventChannel:
		s.send(ServerMessage{Type: MessageState, State: s.snapshot()})
		s.syncLocation(false)
	default:
		s.send(ServerMessage{Type: MessageState, State: s.snapshot()})
	}
}

func (s *session) snapshot() *inbox.Snapshot {
	snap := s.controller.Snapshot()
	return &snap
}

// syncLocation writes the selection and the open channel into the location and
// sends it when it changed (or always, when force is set). The browser replaces
// its history entry with it.
func (s *session) syncLocation(force bool) {
	selectedID := ""
	if selected := s.controller.Selected(); selected != nil {
		selectedID = selected.ID
	}
	channelID := s.controller.ChannelID()

	s.locMu.Lock()
	s.location = inbox.Location(s.location, selectedID, channelID)
	encoded := s.location.Encode()
	changed := encoded != s.written
	s.written = encoded
	s.locMu.Unlock()

	if changed || force {
		s.send(ServerMessage{Type: MessageLocation, Location: encoded})
	}
}

func (s *session) currentLocation() url.Values {
	s.locMu.Lock()
	defer s.locMu.Unlock()

	q := make(url.Values, len(s.location))
	for k, v := range s.location {
		q[k] = append([]string(nil), v...)
	}
	return q
}

func (s *session) setLocation(q url.Values) {
	s.locMu.Lock()
	s.location = q
	s.locMu.Unlock()
}

func (s *session) updateLocation(fn func(q url.Values)) {
	s.locMu.Lock()
	fn(s.location)
	s.locMu.Unlock()
}

func (s *session) send(msg ServerMessage) {
	if err := s.client.WriteJSON(msg); err != nil {
		log.Printf("Session: failed to write %s message to %s: %v", msg.Type, s.client.SessionID, err)
	}
}
