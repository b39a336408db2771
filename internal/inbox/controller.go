package inbox

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"github.com/vdavid/fieldinbox/internal/metrics"
	"github.com/vdavid/fieldinbox/internal/models"
)

var (
	// ErrCommunicationNotFound is returned when an id is not in the current list.
	ErrCommunicationNotFound = errors.New("communication not found")
	// ErrNotSelectable is returned when selecting a team-channel message.
	ErrNotSelectable = errors.New("communication cannot be selected")
	// ErrNoChannel is returned by channel operations when no channel is open.
	ErrNoChannel = errors.New("no channel is open")
	// ErrEmptyMessage is returned when sending a blank message.
	ErrEmptyMessage = errors.New("message body is empty")
	// ErrNotRetryable is returned when retrying a send that did not fail.
	ErrNotRetryable = errors.New("only failed messages can be retried")
	// ErrNoSelection is returned by operations that need a selected item.
	ErrNoSelection = errors.New("no communication is selected")
)

// backgroundTimeout bounds fire-and-forget remote calls.
const backgroundTimeout = 30 * time.Second

// ContentKind is the kind of payload shown in the detail pane.
type ContentKind string

const (
	ContentNone      ContentKind = "none"
	ContentEmail     ContentKind = "email"
	ContentSMS       ContentKind = "sms"
	ContentChannel   ContentKind = "channel"
	ContentCall      ContentKind = "call"
	ContentVoicemail ContentKind = "voicemail"
)

// Options tunes a Controller.
type Options struct {
	Metrics *metrics.Metrics
	// Now returns the current time. Defaults to time.Now.
	Now func() time.Time
}

// Controller is the inbox synchronization state machine for one open view.
// It owns the communication list, the selection, the content caches and the
// open team channel. All methods are safe for concurrent use; remote calls are
// made without holding the lock, and their results are applied only if the
// state they target is still current.
type Controller struct {
	identity Identity
	deps     Collaborators
	metrics  *metrics.Metrics
	now      func() time.Time

	mu sync.Mutex

	filter         Filter
	filterKey      string
	lastFetchedKey string
	inFlight       map[string]bool // filter keys with a list fetch running

	communications []*models.Communication
	starred        map[string]struct{}
	loading        bool
	listError      string

	selectedID     string
	selected       *models.Communication
	content        ContentKind
	contentLoading bool
	emailContent   *models.EmailContent
	smsThread      []models.SMSMessage
	replyMode      bool
	notesDraft     string

	emailCache map[string]models.EmailContent
	smsCache   map[string][]models.SMSMessage

	channel channelView
	tempSeq int

	listenersMu  sync.Mutex
	listeners    map[int]func(Event)
	nextListener int

	background sync.WaitGroup
}

// New creates a Controller for the given identity.
func New(identity Identity, deps Collaborators, opts Options) *Controller {
	c := &Controller{
		identity:  identity,
		deps:      deps,
		metrics:   opts.Metrics,
		now:       opts.Now,
		listeners: make(map[int]func(Event)),
	}
	if c.now == nil {
		c.now = time.Now
	}
	c.resetLocked()
	return c
}

// Identity returns the company and team member the controller acts for.
func (c *Controller) Identity() Identity {
	return c.identity
}

// Reset drops all state and caches and closes the open channel subscription.
// Listeners stay registered.
func (c *Controller) Reset() {
	c.mu.Lock()
	sub := c.channel.sub
	c.resetLocked()
	c.mu.Unlock()

	closeSubscription(sub)
	c.emit(Event{Kind: EventList})
	c.emit(Event{Kind: EventSelection})
}

func (c *Controller) resetLocked() {
	c.filter = DefaultFilter()
	c.filterKey = c.filter.Key()
	c.lastFetchedKey = ""
	c.inFlight = make(map[string]bool)
	c.communications = nil
	c.starred = make(map[string]struct{})
	c.loading = false
	c.listError = ""
	c.clearSelectionLocked()
	c.emailCache = make(map[string]models.EmailContent)
	c.smsCache = make(map[string][]models.SMSMessage)
	c.channel = channelView{}
}

// Close tears down the channel subscription and waits for fire-and-forget calls.
func (c *Controller) Close() {
	c.CloseChannel()
	c.Wait()
}

// Wait blocks until all fire-and-forget remote calls have returned.
func (c *Controller) Wait() {
	c.background.Wait()
}

// Snapshot is a point-in-time copy of the controller state.
type Snapshot struct {
	Filter         Filter                  `json:"filter"`
	Communications []*models.Communication `json:"communications"`
	StarredIDs     []string                `json:"starred_ids"`
	Loading        bool                    `json:"loading"`
	ListError      string                  `json:"list_error,omitempty"`
	SelectedID     string                  `json:"selected_id,omitempty"`
	Content        ContentKind             `json:"content"`
	ContentLoading bool                    `json:"content_loading"`
	EmailContent   *models.EmailContent    `json:"email_content,omitempty"`
	SMSThread      []models.SMSMessage     `json:"sms_thread,omitempty"`
	ChannelID      string                  `json:"channel_id,omitempty"`
	ChannelThread  []models.ChannelMessage `json:"channel_thread,omitempty"`
	ReplyMode      bool                    `json:"reply_mode"`
	NotesDraft     string                  `json:"notes_draft,omitempty"`
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Filter:         c.filter,
		Communications: make([]*models.Communication, 0, len(c.communications)),
		StarredIDs:     make([]string, 0, len(c.starred)),
		Loading:        c.loading,
		ListError:      c.listError,
		SelectedID:     c.selectedID,
		Content:        c.content,
		ContentLoading: c.contentLoading,
		ChannelID:      c.channel.id,
		ReplyMode:      c.replyMode,
		NotesDraft:     c.notesDraft,
	}
	for _, item := range c.communications {
		s.Communications = append(s.Communications, item.Clone())
	}
	for id := range c.starred {
		s.StarredIDs = append(s.StarredIDs, id)
	}
	sort.Strings(s.StarredIDs)
	if c.emailContent != nil {
		content := *c.emailContent
		s.EmailContent = &content
	}
	if c.smsThread != nil {
		s.SMSThread = append([]models.SMSMessage(nil), c.smsThread...)
	}
	if c.channel.messages != nil {
		s.ChannelThread = append([]models.ChannelMessage(nil), c.channel.messages...)
	}
	return s
}

// IsStarred reports whether id is in the starred set.
func (c *Controller) IsStarred(id string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.starred[id]
	return ok
}

// SetReplyMode toggles the reply composer of the selected item.
func (c *Controller) SetReplyMode(on bool) error {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	c.replyMode = on
	c.mu.Unlock()

	c.emit(Event{Kind: EventContent})
	return nil
}

// SetNotesDraft stores the uncommitted notes buffer of the selected item.
func (c *Controller) SetNotesDraft(text string) error {
	c.mu.Lock()
	if c.selected == nil {
		c.mu.Unlock()
		return ErrNoSelection
	}
	c.notesDraft = text
	c.mu.Unlock()

	c.emit(Event{Kind: EventContent})
	return nil
}

// clearSelectionLocked drops the selection and every piece of transient content
// attached to it.
func (c *Controller) clearSelectionLocked() {
	c.selectedID = ""
	c.selected = nil
	c.clearTransientLocked()
	c.content = ContentNone
}

func (c *Controller) clearTransientLocked() {
	c.replyMode = false
	c.notesDraft = ""
	c.emailContent = nil
	c.smsThread = nil
	c.contentLoading = false
}

func (c *Controller) indexLocked(id string) int {
	for i, item := range c.communications {
		if item.ID == id {
			return i
		}
	}
	return -1
}

func (c *Controller) findLocked(id string) *models.Communication {
	if i := c.indexLocked(id); i >= 0 {
		return c.communications[i]
	}
	return nil
}

// removeLocked removes id from the list and reports whether the selection was cleared.
func (c *Controller) removeLocked(id string) bool {
	i := c.indexLocked(id)
	if i < 0 {
		return false
	}
	c.communications = append(c.communications[:i:i], c.communications[i+1:]...)
	if c.selectedID == id {
		c.clearSelectionLocked()
		return true
	}
	return false
}

// runBackground runs a fire-and-forget remote call detached from ctx cancellation.
func (c *Controller) runBackground(ctx context.Context, name string, fn func(ctx context.Context) error) {
	bgCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), backgroundTimeout)
	c.background.Add(1)
	go func() {
		defer c.background.Done()
		defer cancel()
		if err := callRemote(bgCtx, fn); err != nil {
			log.Printf("Inbox: %s failed for company %s: %v", name, c.identity.CompanyID, err)
		}
	}()
}

// callRemote invokes a collaborator and turns a panic into an error so that no
// failure escapes an asynchronous handler.
func callRemote(ctx context.Context, fn func(ctx context.Context) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("remote call panicked: %v", r)
		}
	}()
	return fn(ctx)
}

func closeSubscription(sub Subscription) {
	if sub == nil {
		return
	}
	if err := sub.Close(); err != nil {
		log.Printf("Inbox: failed to close realtime subscription: %v", err)
	}
}
