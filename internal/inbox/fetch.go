package inbox

import (
	"context"
	"fmt"
	"log"
	"strings"
	"unicode"

	"github.com/vdavid/fieldinbox/internal/models"
)

// SetFilter applies new filter inputs. When the filter key changes the list is
// emptied at once, the dedup key is invalidated and exactly one fetch runs.
func (c *Controller) SetFilter(ctx context.Context, f Filter) error {
	c.mu.Lock()
	key := f.Key()
	if key == c.filterKey {
		c.mu.Unlock()
		return nil
	}
	c.filter = f
	c.filterKey = key
	c.communications = nil
	c.lastFetchedKey = ""
	c.loading = true
	c.mu.Unlock()

	c.emit(Event{Kind: EventList})
	return c.FetchList(ctx, false)
}

// SetSearch changes only the free-text search input.
func (c *Controller) SetSearch(ctx context.Context, query string) error {
	c.mu.Lock()
	f := c.filter
	c.mu.Unlock()

	f.Search = strings.TrimSpace(query)
	return c.SetFilter(ctx, f)
}

// Filter returns the active filter inputs.
func (c *Controller) Filter() Filter {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.filter
}

// Refresh re-fetches the list even if it is already loaded for the current filter.
func (c *Controller) Refresh(ctx context.Context) error {
	return c.FetchList(ctx, true)
}

// FetchList loads the communication list for the current filter.
//
// A request for a key that is already in flight returns immediately without
// effect. Otherwise the fetch runs when the key differs from the last completed
// fetch, when manual is set, or when the list is empty. Responses for a key that
// is no longer current are discarded.
func (c *Controller) FetchList(ctx context.Context, manual bool) error {
	c.mu.Lock()
	key := c.filterKey
	if c.inFlight[key] {
		c.mu.Unlock()
		c.metrics.ListFetch("dropped")
		return nil
	}
	if !manual && key == c.lastFetchedKey && len(c.communications) > 0 {
		c.mu.Unlock()
		c.metrics.ListFetch("skipped")
		return nil
	}
	c.inFlight[key] = true
	c.loading = true
	query := ListQuery{
		Descriptor: Resolve(c.filter, c.identity.TeamMemberID),
		Page:       Page{Limit: PageSize, Offset: 0},
		SortField:  "created_at",
		SortDesc:   true,
	}
	c.mu.Unlock()

	items, err := c.listCommunications(ctx, query)

	c.mu.Lock()
	delete(c.inFlight, key)
	if key != c.filterKey {
		c.mu.Unlock()
		c.metrics.ListFetch("stale")
		return nil
	}
	c.loading = false

	if err != nil {
		c.listError = errorMessage(err)
		c.mu.Unlock()

		c.metrics.ListFetch("error")
		c.emit(Event{Kind: EventList})
		c.notifyError("list fetch", err)
		return fmt.Errorf("failed to fetch communications: %w", err)
	}

	visible := ExcludeTeamMessages(items)
	c.communications = visible
	c.listError = ""
	c.lastFetchedKey = key
	for _, item := range visible {
		if item.HasTag(models.StarredTag) {
			c.starred[item.ID] = struct{}{}
		}
	}

	selectionChanged := false
	if c.selected != nil {
		if fresh := c.findLocked(c.selectedID); fresh == nil || c.selected.IsTeamChannelMessage() {
			c.clearSelectionLocked()
			selectionChanged = true
		} else {
			c.selected = fresh
		}
	}
	c.mu.Unlock()

	c.metrics.ListFetch("success")
	c.emit(Event{Kind: EventList})
	if selectionChanged {
		c.emit(Event{Kind: EventSelection})
	}
	return nil
}

func (c *Controller) listCommunications(ctx context.Context, q ListQuery) ([]*models.Communication, error) {
	var items []*models.Communication
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		items, err = c.deps.List.ListCommunications(ctx, c.identity.CompanyID, q)
		return err
	})
	return items, err
}

// ExcludeTeamMessages drops team-channel messages from a raw list result.
// It is applied before any other filtering or display.
func ExcludeTeamMessages(items []*models.Communication) []*models.Communication {
	visible := make([]*models.Communication, 0, len(items))
	for _, item := range items {
		if item == nil || item.IsTeamChannelMessage() {
			continue
		}
		visible = append(visible, item)
	}
	return visible
}

// Select makes id the selected communication and loads its content.
// An empty id clears the selection and selecting the current item again is a
// no-op. Selecting an unread item marks it read locally right away; the remote
// mark-read is fire-and-forget.
func (c *Controller) Select(ctx context.Context, id string) error {
	c.mu.Lock()
	if id == "" {
		c.clearSelectionLocked()
		c.mu.Unlock()
		c.emit(Event{Kind: EventSelection})
		return nil
	}

	item := c.findLocked(id)
	if item == nil {
		c.mu.Unlock()
		return ErrCommunicationNotFound
	}
	if item.IsTeamChannelMessage() {
		c.mu.Unlock()
		return ErrNotSelectable
	}
	// Re-selecting keeps the notes draft and reply mode.
	if c.selected != nil && c.selectedID == id {
		c.mu.Unlock()
		return nil
	}

	sub := c.channel.sub
	c.channel = channelView{}
	c.clearSelectionLocked()
	c.selectedID = id
	c.selected = item
	c.content = contentKindFor(item.Type)

	markRead := item.IsUnread()
	if markRead {
		item.Status = models.StatusRead
	}
	target := item.Clone()
	c.mu.Unlock()

	closeSubscription(sub)
	c.emit(Event{Kind: EventSelection})

	if markRead {
		c.runBackground(ctx, "mark read", func(ctx context.Context) error {
			return c.deps.Mutations.MarkRead(ctx, c.identity.CompanyID, target.Type, target.ID)
		})
	}

	switch target.Type {
	case models.TypeEmail:
		c.loadEmailContent(ctx, target)
	case models.TypeSMS:
		c.loadSMSThread(ctx, target)
	}
	return nil
}

// Selected returns a copy of the selected communication, or nil.
func (c *Controller) Selected() *models.Communication {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected.Clone()
}

func contentKindFor(t models.CommunicationType) ContentKind {
	switch t {
	case models.TypeEmail:
		return ContentEmail
	case models.TypeSMS:
		return ContentSMS
	case models.TypeCall:
		return ContentCall
	case models.TypeVoicemail:
		return ContentVoicemail
	default:
		return ContentNone
	}
}

// loadEmailContent serves the body from the cache, from the inline fields, or
// from the remote fetcher, in that order.
func (c *Controller) loadEmailContent(ctx context.Context, item *models.Communication) {
	c.mu.Lock()
	if cached, ok := c.emailCache[item.ID]; ok {
		c.emailContent = &cached
		c.mu.Unlock()
		c.metrics.ContentFetch("email", "cache")
		c.emit(Event{Kind: EventContent})
		return
	}
	if item.Body != "" || item.BodyHTML != "" {
		content := models.EmailContent{HTML: item.BodyHTML, Text: item.Body}
		c.emailCache[item.ID] = content
		c.emailContent = &content
		c.mu.Unlock()
		c.metrics.ContentFetch("email", "inline")
		c.emit(Event{Kind: EventContent})
		return
	}
	c.contentLoading = true
	c.mu.Unlock()
	c.emit(Event{Kind: EventContent})

	var content *models.EmailContent
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		content, err = c.deps.Email.FetchEmailContent(ctx, c.identity.CompanyID, item.ID)
		return err
	})

	c.mu.Lock()
	if err == nil && content != nil {
		c.emailCache[item.ID] = *content
	}
	if c.selectedID != item.ID {
		c.mu.Unlock()
		c.metrics.ContentFetch("email", "stale")
		return
	}
	c.contentLoading = false
	if err != nil || content == nil {
		c.emailContent = nil
		c.mu.Unlock()
		log.Printf("Inbox: failed to fetch email content for %s: %v", item.ID, err)
		c.metrics.ContentFetch("email", "error")
		c.emit(Event{Kind: EventContent})
		return
	}
	applied := *content
	c.emailContent = &applied
	c.mu.Unlock()

	c.metrics.ContentFetch("email", "remote")
	c.emit(Event{Kind: EventContent})
}

// loadSMSThread loads the conversation with the item's counterpart phone number.
func (c *Controller) loadSMSThread(ctx context.Context, item *models.Communication) {
	phone := NormalizePhone(item.CounterpartAddress())

	c.mu.Lock()
	if cached, ok := c.smsCache[phone]; ok {
		c.smsThread = append([]models.SMSMessage(nil), cached...)
		c.mu.Unlock()
		c.metrics.ContentFetch("sms", "cache")
		c.emit(Event{Kind: EventContent})
		return
	}
	c.contentLoading = true
	c.mu.Unlock()
	c.emit(Event{Kind: EventContent})

	var messages []models.SMSMessage
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		messages, err = c.deps.SMS.FetchSMSConversation(ctx, c.identity.CompanyID, phone)
		return err
	})

	hasUnread := false
	if err == nil {
		for i := range messages {
			if messages[i].Direction == models.DirectionInbound &&
				(messages[i].Status == models.StatusUnread || messages[i].Status == models.StatusNew) {
				messages[i].Status = models.StatusRead
				hasUnread = true
			}
		}
	}

	c.mu.Lock()
	if err == nil {
		c.smsCache[phone] = append([]models.SMSMessage(nil), messages...)
	}
	if c.selectedID != item.ID {
		c.mu.Unlock()
		c.metrics.ContentFetch("sms", "stale")
		c.markConversationRead(ctx, phone, hasUnread)
		return
	}
	c.contentLoading = false
	if err != nil {
		c.smsThread = nil
		c.mu.Unlock()
		log.Printf("Inbox: failed to fetch SMS conversation for %s: %v", item.ID, err)
		c.metrics.ContentFetch("sms", "error")
		c.emit(Event{Kind: EventContent})
		return
	}
	c.smsThread = messages
	c.mu.Unlock()

	c.metrics.ContentFetch("sms", "remote")
	c.emit(Event{Kind: EventContent})
	c.markConversationRead(ctx, phone, hasUnread)
}

func (c *Controller) markConversationRead(ctx context.Context, phone string, hasUnread bool) {
	if !hasUnread {
		return
	}
	c.runBackground(ctx, "mark conversation read", func(ctx context.Context) error {
		return c.deps.Mutations.MarkConversationRead(ctx, c.identity.CompanyID, phone)
	})
}

// NormalizePhone reduces a phone number to E.164-like form so that the same
// counterpart always maps to the same cache key. Ten-digit numbers are treated
// as North American.
func NormalizePhone(raw string) string {
	raw = strings.TrimSpace(raw)
	var digits strings.Builder
	for _, r := range raw {
		if unicode.IsDigit(r) {
			digits.WriteRune(r)
		}
	}
	d := digits.String()
	switch {
	case d == "":
		return raw
	case len(d) == 10:
		return "+1" + d
	case len(d) == 11 && d[0] == '1':
		return "+" + d
	case strings.HasPrefix(raw, "+"):
		return "+" + d
	default:
		return d
	}
}
