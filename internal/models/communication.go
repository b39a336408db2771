package models

import (
	"strings"
	"time"
)

// CommunicationType is the kind of contact a Communication represents.
type CommunicationType string

const (
	TypeEmail     CommunicationType = "email"
	TypeSMS       CommunicationType = "sms"
	TypeCall      CommunicationType = "call"
	TypeVoicemail CommunicationType = "voicemail"
	// TypeTeam is a post in an internal team channel stored as a communication row.
	TypeTeam CommunicationType = "team"
)

// Direction tells whether a Communication was received or sent.
type Direction string

const (
	DirectionInbound  Direction = "inbound"
	DirectionOutbound Direction = "outbound"
)

// Status is the delivery or read state of a Communication.
// The folder statuses (archive, trash, spam) are stored in the same column.
type Status string

const (
	StatusUnread    Status = "unread"
	StatusNew       Status = "new"
	StatusRead      Status = "read"
	StatusFailed    Status = "failed"
	StatusSent      Status = "sent"
	StatusDelivered Status = "delivered"
	StatusArchive   Status = "archive"
	StatusTrash     Status = "trash"
	StatusSpam      Status = "spam"
)

const (
	// StarredTag marks a starred Communication.
	StarredTag = "starred"
	// TeamsChannel is the channel value of team-channel messages.
	TeamsChannel = "teams"
	// ChannelAddressPrefix prefixes the to-address of team-channel messages.
	ChannelAddressPrefix = "channel:"
)

// Communication is one email, SMS, call, voicemail or team-channel message.
type Communication struct {
	ID             string            `json:"id"`
	CompanyID      string            `json:"company_id"`
	Type           CommunicationType `json:"type"`
	Direction      Direction         `json:"direction"`
	Status         Status            `json:"status"`
	FromAddress    string            `json:"from_address"`
	FromName       string            `json:"from_name,omitempty"`
	ToAddress      string            `json:"to_address"`
	ToName         string            `json:"to_name,omitempty"`
	Subject        string            `json:"subject,omitempty"`
	Body           string            `json:"body,omitempty"`
	BodyHTML       string            `json:"body_html,omitempty"`
	CreatedAt      time.Time         `json:"created_at"`
	Tags           []string          `json:"tags"`
	Channel        string            `json:"channel,omitempty"`
	CustomerID     *string           `json:"customer_id,omitempty"`
	JobID          *string           `json:"job_id,omitempty"`
	InternalNotes  *string           `json:"internal_notes,omitempty"`
	NotesUpdatedAt *time.Time        `json:"notes_updated_at,omitempty"`
	NotesUpdatedBy *string           `json:"notes_updated_by,omitempty"`
	AssignedTo     *string           `json:"assigned_to,omitempty"`
	MailboxOwnerID *string           `json:"mailbox_owner_id,omitempty"`
	Category       string            `json:"category,omitempty"`
	IsDraft        bool              `json:"is_draft"`
	IsArchived     bool              `json:"is_archived"`
	IMAPUID        *int64            `json:"-"`
	IMAPFolderName string            `json:"-"`
}

// IsTeamChannelMessage reports whether c is a team-channel post.
// Such rows never belong in the general inbox.
func (c *Communication) IsTeamChannelMessage() bool {
	if c == nil {
		return false
	}
	return c.Channel == TeamsChannel || strings.HasPrefix(c.ToAddress, ChannelAddressPrefix)
}

// HasTag reports whether the tag collection contains tag.
func (c *Communication) HasTag(tag string) bool {
	for _, t := range c.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// IsUnread reports whether c still needs a read-state transition.
func (c *Communication) IsUnread() bool {
	return c.Status == StatusUnread || c.Status == StatusNew
}

// CounterpartAddress returns the address of the other party: the sender for
// inbound items, the recipient for outbound ones.
func (c *Communication) CounterpartAddress() string {
	if c.Direction == DirectionOutbound {
		return c.ToAddress
	}
	return c.FromAddress
}

// Clone returns a deep copy of c.
func (c *Communication) Clone() *Communication {
	if c == nil {
		return nil
	}
	clone := *c
	clone.Tags = CloneTags(c.Tags)
	return &clone
}

// CloneTags copies a tag collection, keeping nil as nil.
func CloneTags(tags []string) []string {
	if tags == nil {
		return nil
	}
	out := make([]string, len(tags))
	copy(out, tags)
	return out
}

// CommunicationsResponse is the list payload returned by the REST endpoint.
type CommunicationsResponse struct {
	Communications []*Communication `json:"communications"`
	Pagination     PaginationInfo   `json:"pagination"`
}

// PaginationInfo describes the page that was returned.
type PaginationInfo struct {
	Offset  int `json:"offset"`
	PerPage int `json:"per_page"`
}
