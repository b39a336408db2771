package models

import (
	"strings"
	"time"
)

// TempIDPrefix prefixes identifiers of optimistic, not yet confirmed messages.
const TempIDPrefix = "temp-"

// ChannelMessage is a post in an internal team channel.
type ChannelMessage struct {
	ID          string       `json:"id"`
	ChannelID   string       `json:"channel_id"`
	Body        string       `json:"body"`
	BodyHTML    string       `json:"body_html,omitempty"`
	CreatedAt   time.Time    `json:"created_at"`
	ReadAt      *time.Time   `json:"read_at"`
	Direction   Direction    `json:"direction"`
	Sender      *Sender      `json:"sender"`
	Attachments []Attachment `json:"attachments,omitempty"`
	Tags        []string     `json:"tags,omitempty"`
}

// IsTemporary reports whether m is an optimistic entry awaiting confirmation.
func (m *ChannelMessage) IsTemporary() bool {
	return strings.HasPrefix(m.ID, TempIDPrefix)
}

// Sender is the denormalized identity of a channel message author.
type Sender struct {
	ID        string `json:"id"`
	Name      string `json:"name,omitempty"`
	AvatarURL string `json:"avatar_url,omitempty"`
	Email     string `json:"email,omitempty"`
}

// Attachment is file metadata attached to a channel message.
type Attachment struct {
	URL      string `json:"url"`
	Type     string `json:"type"`
	Filename string `json:"filename"`
}

// TeamMember is a user of a company account.
type TeamMember struct {
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	AvatarURL string    `json:"avatar_url,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// RowInsert is a realtime notification that a row was inserted.
// The payload is partial: consumers re-fetch the row for the full shape.
type RowInsert struct {
	Table     string    `json:"table"`
	ID        string    `json:"id"`
	CompanyID string    `json:"company_id"`
	Tags      []string  `json:"tags"`
	Type      string    `json:"type"`
	Direction Direction `json:"direction"`
	Status    Status    `json:"status"`
	Channel   string    `json:"channel"`
	SenderID  *string   `json:"sender_id"`
}
