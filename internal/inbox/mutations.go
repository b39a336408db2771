package inbox

import (
	"context"
	"sort"

	"github.com/vdavid/fieldinbox/internal/models"
)

// Archive removes id from the list at once and archives it remotely. On failure
// the item is put back, ordered by creation time; the selection is not restored.
func (c *Controller) Archive(ctx context.Context, id string) error {
	c.mu.Lock()
	exists := c.indexLocked(id) >= 0
	c.mu.Unlock()
	if !exists {
		return ErrCommunicationNotFound
	}

	tx := Optimistic[*models.Communication]{
		Apply: func() *models.Communication {
			c.mu.Lock()
			item := c.findLocked(id)
			var snapshot *models.Communication
			if item != nil {
				snapshot = item.Clone()
			}
			selectionCleared := c.removeLocked(id)
			c.mu.Unlock()

			c.emit(Event{Kind: EventList})
			if selectionCleared {
				c.emit(Event{Kind: EventSelection})
			}
			return snapshot
		},
		Remote: func(ctx context.Context) error {
			return c.deps.Mutations.Archive(ctx, c.identity.CompanyID, id)
		},
		Revert: func(snapshot *models.Communication) {
			if snapshot == nil {
				return
			}
			c.mu.Lock()
			if c.indexLocked(snapshot.ID) < 0 {
				c.communications = append(c.communications, snapshot)
				sortByCreatedAtDesc(c.communications)
			}
			c.mu.Unlock()
			c.emit(Event{Kind: EventList})
		},
	}

	if err := tx.Run(ctx); err != nil {
		c.metrics.Mutation("archive", "reverted")
		c.notifyError("archive", err)
		return err
	}
	c.metrics.Mutation("archive", "success")
	c.notifySuccess("Conversation archived")
	return nil
}

func sortByCreatedAtDesc(items []*models.Communication) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].CreatedAt.After(items[j].CreatedAt)
	})
}

type starSnapshot struct {
	wasStarred bool
	tags       []string
}

// ToggleStar flips the starred state of id. Both the starred set and the item's
// tags change at once; a failed remote call restores both exactly.
func (c *Controller) ToggleStar(ctx context.Context, id string) error {
	c.mu.Lock()
	exists := c.indexLocked(id) >= 0
	_, starred := c.starred[id]
	c.mu.Unlock()
	if !exists {
		return ErrCommunicationNotFound
	}
	star := !starred

	tx := Optimistic[starSnapshot]{
		Apply: func() starSnapshot {
			c.mu.Lock()
			_, wasStarred := c.starred[id]
			snapshot := starSnapshot{wasStarred: wasStarred}
			if item := c.findLocked(id); item != nil {
				snapshot.tags = models.CloneTags(item.Tags)
				if star {
					item.Tags = withTag(item.Tags, models.StarredTag)
				} else {
					item.Tags = withoutTag(item.Tags, models.StarredTag)
				}
			}
			if star {
				c.starred[id] = struct{}{}
			} else {
				delete(c.starred, id)
			}
			c.mu.Unlock()

			c.emit(Event{Kind: EventList})
			return snapshot
		},
		Remote: func(ctx context.Context) error {
			return c.deps.Mutations.ToggleStar(ctx, c.identity.CompanyID, id, star)
		},
		Revert: func(snapshot starSnapshot) {
			c.mu.Lock()
			if snapshot.wasStarred {
				c.starred[id] = struct{}{}
			} else {
				delete(c.starred, id)
			}
			if item := c.findLocked(id); item != nil {
				item.Tags = snapshot.tags
			}
			c.mu.Unlock()
			c.emit(Event{Kind: EventList})
		},
	}

	if err := tx.Run(ctx); err != nil {
		c.metrics.Mutation("star", "reverted")
		c.notifyError("star", err)
		return err
	}
	c.metrics.Mutation("star", "success")
	if star {
		c.notifySuccess("Starred")
	} else {
		c.notifySuccess("Removed star")
	}
	return nil
}

// withTag returns tags plus tag, without duplicating it.
func withTag(tags []string, tag string) []string {
	for _, t := range tags {
		if t == tag {
			return models.CloneTags(tags)
		}
	}
	out := make([]string, 0, len(tags)+1)
	out = append(out, tags...)
	return append(out, tag)
}

// withoutTag returns tags minus tag. An empty result collapses to nil.
func withoutTag(tags []string, tag string) []string {
	out := make([]string, 0, len(tags))
	for _, t := range tags {
		if t != tag {
			out = append(out, t)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// Delete removes communications permanently. Nothing changes locally until the
// remote call succeeds, and there is no undo.
func (c *Controller) Delete(ctx context.Context, ids ...string) error {
	if len(ids) == 0 {
		return nil
	}

	err := callRemote(ctx, func(ctx context.Context) error {
		return c.deps.Mutations.DeleteCommunications(ctx, c.identity.CompanyID, ids)
	})
	if err != nil {
		c.metrics.Mutation("delete", "error")
		c.notifyError("delete", err)
		return err
	}

	c.mu.Lock()
	selectionCleared := false
	for _, id := range ids {
		if c.removeLocked(id) {
			selectionCleared = true
		}
		delete(c.starred, id)
	}
	c.mu.Unlock()

	c.metrics.Mutation("delete", "success")
	c.emit(Event{Kind: EventList})
	if selectionCleared {
		c.emit(Event{Kind: EventSelection})
	}
	if len(ids) == 1 {
		c.notifySuccess("Conversation deleted")
	} else {
		c.notifySuccess("Conversations deleted")
	}
	return nil
}

// ToggleSpam moves id into or out of spam. The item leaves the list when its new
// state no longer matches the folder being viewed.
func (c *Controller) ToggleSpam(ctx context.Context, id string) error {
	c.mu.Lock()
	exists := c.indexLocked(id) >= 0
	c.mu.Unlock()
	if !exists {
		return ErrCommunicationNotFound
	}

	var status models.Status
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		status, err = c.deps.Mutations.ToggleSpam(ctx, c.identity.CompanyID, id)
		return err
	})
	if err != nil {
		c.metrics.Mutation("spam", "error")
		c.notifyError("spam", err)
		return err
	}

	isSpam := status == models.StatusSpam
	c.mu.Lock()
	selectionCleared := false
	if isSpam != (c.filter.Folder == FolderSpam) {
		selectionCleared = c.removeLocked(id)
	} else if item := c.findLocked(id); item != nil {
		item.Status = status
	}
	c.mu.Unlock()

	c.metrics.Mutation("spam", "success")
	c.emit(Event{Kind: EventList})
	if selectionCleared {
		c.emit(Event{Kind: EventSelection})
	}
	if isSpam {
		c.notifySuccess("Marked as spam")
	} else {
		c.notifySuccess("Moved out of spam")
	}
	return nil
}

// RetrySend re-sends a failed outbound communication.
func (c *Controller) RetrySend(ctx context.Context, id string) error {
	c.mu.Lock()
	item := c.findLocked(id)
	failed := item != nil && item.Status == models.StatusFailed
	c.mu.Unlock()
	if item == nil {
		return ErrCommunicationNotFound
	}
	if !failed {
		return ErrNotRetryable
	}

	err := callRemote(ctx, func(ctx context.Context) error {
		return c.deps.Mutations.RetryFailedSend(ctx, c.identity.CompanyID, id)
	})
	if err != nil {
		c.metrics.Mutation("retry_send", "error")
		c.notifyError("retry send", err)
		return err
	}

	c.mu.Lock()
	if item := c.findLocked(id); item != nil {
		item.Status = models.StatusSent
	}
	c.mu.Unlock()

	c.metrics.Mutation("retry_send", "success")
	c.emit(Event{Kind: EventList})
	c.notifySuccess("Message sent")
	return nil
}

// SaveNotes stores the internal notes of id. When id is selected its
// uncommitted notes buffer is cleared.
func (c *Controller) SaveNotes(ctx context.Context, id, notes string) error {
	c.mu.Lock()
	exists := c.indexLocked(id) >= 0
	c.mu.Unlock()
	if !exists {
		return ErrCommunicationNotFound
	}

	var update *models.NotesUpdate
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		update, err = c.deps.Mutations.SaveInternalNotes(ctx, c.identity.CompanyID, id, notes, c.identity.TeamMemberID)
		return err
	})
	if err != nil {
		c.metrics.Mutation("notes", "error")
		c.notifyError("save notes", err)
		return err
	}

	c.mu.Lock()
	if item := c.findLocked(id); item != nil && update != nil {
		savedNotes := update.Notes
		updatedAt := update.UpdatedAt
		updatedBy := update.UpdatedBy
		item.InternalNotes = &savedNotes
		item.NotesUpdatedAt = &updatedAt
		item.NotesUpdatedBy = &updatedBy
	}
	if c.selectedID == id {
		c.notesDraft = ""
	}
	c.mu.Unlock()

	c.metrics.Mutation("notes", "success")
	c.emit(Event{Kind: EventList})
	c.emit(Event{Kind: EventContent})
	c.notifySuccess("Notes saved")
	return nil
}

// Assign sets or clears the team member responsible for id. With the "me"
// assignment filter active, an item assigned elsewhere leaves the list.
func (c *Controller) Assign(ctx context.Context, id string, memberID *string) error {
	c.mu.Lock()
	exists := c.indexLocked(id) >= 0
	c.mu.Unlock()
	if !exists {
		return ErrCommunicationNotFound
	}

	err := callRemote(ctx, func(ctx context.Context) error {
		return c.deps.Mutations.Assign(ctx, c.identity.CompanyID, id, memberID)
	})
	if err != nil {
		c.metrics.Mutation("assign", "error")
		c.notifyError("assign", err)
		return err
	}

	assignedToMe := memberID != nil && *memberID == c.identity.TeamMemberID
	c.mu.Lock()
	selectionCleared := false
	if c.filter.Assigned == AssignedToMe && !assignedToMe {
		selectionCleared = c.removeLocked(id)
	} else if item := c.findLocked(id); item != nil {
		if memberID == nil {
			item.AssignedTo = nil
		} else {
			assignee := *memberID
			item.AssignedTo = &assignee
		}
	}
	c.mu.Unlock()

	c.metrics.Mutation("assign", "success")
	c.emit(Event{Kind: EventList})
	if selectionCleared {
		c.emit(Event{Kind: EventSelection})
	}
	c.notifySuccess("Assignment updated")
	return nil
}

// SendSMS sends an SMS or MMS. When the conversation with the recipient is open,
// the sent message is appended to it and to its cache entry.
func (c *Controller) SendSMS(ctx context.Context, req models.SendSMSRequest) error {
	if req.Body == "" && len(req.MediaURLs) == 0 {
		return ErrEmptyMessage
	}

	var sent *models.SMSMessage
	err := callRemote(ctx, func(ctx context.Context) error {
		var err error
		sent, err = c.deps.Mutations.SendSMS(ctx, c.identity.CompanyID, c.identity.TeamMemberID, req)
		return err
	})
	if err != nil {
		c.metrics.Mutation("send_sms", "error")
		c.notifyError("send SMS", err)
		return err
	}

	phone := NormalizePhone(req.To)
	c.mu.Lock()
	if sent != nil {
		if cached, ok := c.smsCache[phone]; ok {
			c.smsCache[phone] = append(cached, *sent)
		}
		if c.selected != nil && c.selected.Type == models.TypeSMS &&
			NormalizePhone(c.selected.CounterpartAddress()) == phone {
			c.smsThread = append(c.smsThread, *sent)
		}
	}
	c.mu.Unlock()

	c.metrics.Mutation("send_sms", "success")
	c.emit(Event{Kind: EventContent})
	c.notifySuccess("Message sent")
	return nil
}
