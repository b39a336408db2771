package inbox

import (
	"context"
	"fmt"
	"log"
	"slices"
	"strings"

	"github.com/vdavid/fieldinbox/internal/models"
)

// CommunicationsTable is the table whose inserts feed channel views.
const CommunicationsTable = "communications"

// channelSubscriptionPrefix names realtime subscriptions, one per open channel.
const channelSubscriptionPrefix = "channel-messages-"

type pendingSend struct {
	tempID string
	body   string
}

// channelView is the open team channel. The zero value means no channel is open.
type channelView struct {
	id       string
	search   string
	messages []models.ChannelMessage
	sub      Subscription
	// pending lists optimistic sends in send order.
	pending []pendingSend
}

func (v *channelView) indexOf(id string) int {
	for i := range v.messages {
		if v.messages[i].ID == id {
			return i
		}
	}
	return -1
}

func (v *channelView) removeMessage(id string) {
	if i := v.indexOf(id); i >= 0 {
		v.messages = append(v.messages[:i:i], v.messages[i+1:]...)
	}
}

// removePending drops an optimistic entry from both the queue and the thread.
func (v *channelView) removePending(tempID string) {
	for i, p := range v.pending {
		if p.tempID == tempID {
			v.pending = append(v.pending[:i:i], v.pending[i+1:]...)
			break
		}
	}
	v.removeMessage(tempID)
}

// reconcileSent drops the oldest optimistic entry carrying body.
func (v *channelView) reconcileSent(body string) {
	for _, p := range v.pending {
		if p.body == body {
			v.removePending(p.tempID)
			return
		}
	}
}

// CoarseMatch is the server-side stage of the realtime pipeline: the row belongs
// to the subscribed company.
func CoarseMatch(row models.RowInsert, companyID string) bool {
	return row.CompanyID == companyID
}

// FineMatch is the client-side stage: the row's tags contain the channel id.
func FineMatch(row models.RowInsert, channelID string) bool {
	return channelID != "" && slices.Contains(row.Tags, channelID)
}

// MatchesChannel reports whether a realtime insert belongs to the channel view.
// Both stages must pass before the row is fetched.
func MatchesChannel(row models.RowInsert, companyID, channelID string) bool {
	if row.Table != "" && row.Table != CommunicationsTable {
		return false
	}
	return CoarseMatch(row, companyID) && FineMatch(row, channelID)
}

// ChannelID returns the id of the open channel, or "".
func (c *Controller) ChannelID() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channel.id
}

// OpenChannel shows the thread of a team channel. It clears the selection,
// subscribes to inserts for the (channel, company) pair and loads the history.
// Messages that arrive over realtime while the history loads are kept.
func (c *Controller) OpenChannel(ctx context.Context, channelID string) error {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		c.CloseChannel()
		return nil
	}

	c.mu.Lock()
	if c.channel.id == channelID {
		c.mu.Unlock()
		return nil
	}
	oldSub := c.channel.sub
	selectionCleared := c.selectedID != ""
	c.clearSelectionLocked()
	c.channel = channelView{id: channelID}
	c.content = ContentChannel
	c.contentLoading = true
	c.mu.Unlock()

	closeSubscription(oldSub)
	if selectionCleared {
		c.emit(Event{Kind: EventSelection})
	}
	c.emit(Event{Kind: EventChannel})

	c.subscribeChannel(channelID)
	c.loadChannelMessages(ctx, channelID, "")
	return nil
}

func (c *Controller) subscribeChannel(channelID string) {
	if c.deps.Realtime == nil {
		return
	}

	var sub Subscription
	err := callRemote(context.Background(), func(context.Context) error {
		var err error
		sub, err = c.deps.Realtime.Subscribe(
			c.identity.CompanyID,
			channelSubscriptionPrefix+channelID,
			CommunicationsTable,
			func(row models.RowInsert) { c.handleChannelInsert(channelID, row) },
		)
		return err
	})
	if err != nil {
		log.Printf("Inbox: failed to subscribe to channel %s: %v", channelID, err)
		c.metrics.Realtime("subscribe_error")
		return
	}

	c.mu.Lock()
	if c.channel.id != channelID {
		c.mu.Unlock()
		closeSubscription(sub)
		return
	}
	c.channel.sub = sub
	c.mu.Unlock()
}

func (c *Controller) loadChannelMessages(ctx context.Context, channelID, search string) {
	var fetched []models.ChannelMessage
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		fetched, err = c.deps.Channels.FetchChannelMessages(ctx, c.identity.CompanyID, channelID,
			c.identity.TeamMemberID, Page{Limit: PageSize, Offset: 0}, search)
		return err
	})

	c.mu.Lock()
	if c.channel.id != channelID || c.channel.search != search {
		c.mu.Unlock()
		c.metrics.ContentFetch("channel", "stale")
		return
	}
	c.contentLoading = false
	if err != nil {
		c.mu.Unlock()
		log.Printf("Inbox: failed to fetch messages for channel %s: %v", channelID, err)
		c.metrics.ContentFetch("channel", "error")
		c.emit(Event{Kind: EventChannel})
		return
	}

	// Keep whatever arrived meanwhile, in arrival order, after the history.
	merged := make([]models.ChannelMessage, 0, len(fetched)+len(c.channel.messages))
	merged = append(merged, fetched...)
	for _, m := range c.channel.messages {
		if !containsMessage(merged, m.ID) {
			merged = append(merged, m)
		}
	}
	c.channel.messages = merged

	hasUnread := false
	for _, m := range fetched {
		if m.Direction == models.DirectionInbound && m.ReadAt == nil {
			hasUnread = true
			break
		}
	}
	c.mu.Unlock()

	c.metrics.ContentFetch("channel", "remote")
	c.emit(Event{Kind: EventChannel})
	c.emit(Event{Kind: EventScrollToLatest})

	if hasUnread && search == "" {
		c.markChannelRead(ctx, channelID)
	}
}

func containsMessage(messages []models.ChannelMessage, id string) bool {
	for i := range messages {
		if messages[i].ID == id {
			return true
		}
	}
	return false
}

// SearchChannel reloads the open channel restricted to messages matching query.
// An empty query restores the full history.
func (c *Controller) SearchChannel(ctx context.Context, query string) error {
	query = strings.TrimSpace(query)

	c.mu.Lock()
	channelID := c.channel.id
	if channelID == "" {
		c.mu.Unlock()
		return ErrNoChannel
	}
	c.channel.search = query
	c.channel.messages = pendingMessages(c.channel)
	c.contentLoading = true
	c.mu.Unlock()

	c.emit(Event{Kind: EventChannel})
	c.loadChannelMessages(ctx, channelID, query)
	return nil
}

// pendingMessages returns the optimistic entries of v that are still shown.
func pendingMessages(v channelView) []models.ChannelMessage {
	var out []models.ChannelMessage
	for _, m := range v.messages {
		if m.IsTemporary() {
			out = append(out, m)
		}
	}
	return out
}

// CloseChannel tears down the channel view and its subscription.
func (c *Controller) CloseChannel() {
	c.mu.Lock()
	wasOpen := c.channel.id != ""
	sub := c.channel.sub
	c.channel = channelView{}
	if c.content == ContentChannel {
		c.content = ContentNone
		c.contentLoading = false
	}
	c.mu.Unlock()

	closeSubscription(sub)
	if wasOpen {
		c.emit(Event{Kind: EventChannel})
	}
}

// handleChannelInsert merges one realtime insert into the thread of channelID.
// It runs on the subscriber's goroutine and never panics out.
func (c *Controller) handleChannelInsert(channelID string, row models.RowInsert) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("Inbox: realtime handler panicked for channel %s: %v", channelID, r)
			c.metrics.Realtime("error")
		}
	}()

	if !MatchesChannel(row, c.identity.CompanyID, channelID) {
		c.metrics.Realtime("ignored")
		return
	}

	c.mu.Lock()
	current := c.channel.id == channelID
	c.mu.Unlock()
	if !current {
		c.metrics.Realtime("stale")
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), backgroundTimeout)
	defer cancel()

	var msg *models.ChannelMessage
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		msg, err = c.deps.Channels.FetchChannelMessage(ctx, c.identity.CompanyID, row.ID, c.identity.TeamMemberID)
		return err
	})
	if err != nil || msg == nil {
		log.Printf("Inbox: failed to fetch realtime message %s: %v", row.ID, err)
		c.metrics.Realtime("error")
		return
	}

	c.mu.Lock()
	if c.channel.id != channelID {
		c.mu.Unlock()
		c.metrics.Realtime("stale")
		return
	}
	if c.channel.indexOf(msg.ID) >= 0 {
		c.mu.Unlock()
		c.metrics.Realtime("duplicate")
		return
	}
	if msg.Direction == models.DirectionOutbound && msg.Sender != nil && msg.Sender.ID == c.identity.TeamMemberID {
		c.channel.reconcileSent(msg.Body)
	}
	c.channel.messages = append(c.channel.messages, *msg)
	unread := msg.Direction == models.DirectionInbound && msg.ReadAt == nil
	c.mu.Unlock()

	c.metrics.Realtime("merged")
	c.emit(Event{Kind: EventChannel})
	c.emit(Event{Kind: EventScrollToLatest})

	if unread {
		c.markChannelRead(ctx, channelID)
	}
}

func (c *Controller) markChannelRead(ctx context.Context, channelID string) {
	c.runBackground(ctx, "mark channel read", func(ctx context.Context) error {
		return c.deps.Mutations.MarkChannelRead(ctx, c.identity.CompanyID, channelID, c.identity.TeamMemberID)
	})
}

// SendChannelMessage posts body to the open channel. A temporary entry is shown
// at once and replaced by the authoritative message when the send response or
// the realtime insert arrives, whichever comes first.
func (c *Controller) SendChannelMessage(ctx context.Context, body string) error {
	body = strings.TrimSpace(body)
	if body == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	channelID := c.channel.id
	if channelID == "" {
		c.mu.Unlock()
		return ErrNoChannel
	}
	now := c.now()
	tempID := fmt.Sprintf("%s%d", models.TempIDPrefix, now.UnixMilli())
	if c.channel.indexOf(tempID) >= 0 {
		c.tempSeq++
		tempID = fmt.Sprintf("%s-%d", tempID, c.tempSeq)
	}
	c.channel.messages = append(c.channel.messages, models.ChannelMessage{
		ID:        tempID,
		ChannelID: channelID,
		Body:      body,
		CreatedAt: now,
		ReadAt:    &now,
		Direction: models.DirectionOutbound,
		Sender:    &models.Sender{ID: c.identity.TeamMemberID},
	})
	c.channel.pending = append(c.channel.pending, pendingSend{tempID: tempID, body: body})
	c.mu.Unlock()

	c.emit(Event{Kind: EventChannel})
	c.emit(Event{Kind: EventScrollToLatest})

	var sent *models.ChannelMessage
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		sent, err = c.deps.Mutations.SendChannelMessage(ctx, c.identity.CompanyID, channelID, c.identity.TeamMemberID, body)
		return err
	})

	c.mu.Lock()
	if c.channel.id != channelID {
		c.mu.Unlock()
		if err != nil {
			c.metrics.Mutation("send_channel_message", "error")
			c.notifyError("send channel message", err)
			return err
		}
		c.metrics.Mutation("send_channel_message", "success")
		return nil
	}
	c.channel.removePending(tempID)
	if err == nil && sent != nil && c.channel.indexOf(sent.ID) < 0 {
		c.channel.messages = append(c.channel.messages, *sent)
	}
	c.mu.Unlock()

	c.emit(Event{Kind: EventChannel})
	if err != nil {
		c.metrics.Mutation("send_channel_message", "error")
		c.notifyError("send channel message", err)
		return err
	}
	c.metrics.Mutation("send_channel_message", "success")
	c.emit(Event{Kind: EventScrollToLatest})
	return nil
}
