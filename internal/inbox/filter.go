package inbox

import (
	"encoding/json"

	"github.com/vdavid/fieldinbox/internal/models"
)

// Folder names accepted by the filter.
const (
	FolderInbox    = "inbox"
	FolderDraft    = "draft"
	FolderArchived = "archived"
	FolderSent     = "sent"
	FolderStarred  = "starred"
	FolderArchive  = "archive"
	FolderTrash    = "trash"
	FolderSpam     = "spam"
	FolderOther    = "other"
)

// Inbox scopes.
const (
	InboxPersonal = "personal"
	InboxCompany  = "company"
	InboxAll      = "all"
)

// AssignedToMe is the only accepted assignment filter value.
const AssignedToMe = "me"

// TypeAll disables the communication type filter.
const TypeAll = "all"

var companyCategories = map[string]bool{
	"support": true,
	"sales":   true,
	"billing": true,
	"general": true,
}

// Filter holds the six user-controlled inputs that select the list.
type Filter struct {
	Folder    string `json:"folder"`
	InboxType string `json:"inbox_type"`
	Category  string `json:"category,omitempty"`
	Assigned  string `json:"assigned,omitempty"`
	Type      string `json:"type"`
	Search    string `json:"search,omitempty"`
}

// DefaultFilter is the filter of a freshly opened inbox.
func DefaultFilter() Filter {
	return Filter{Folder: FolderInbox, InboxType: InboxPersonal, Type: TypeAll}
}

// Key serializes all six inputs in a fixed order. Two filters with equal keys
// produce the same query.
func (f Filter) Key() string {
	tuple := [6]string{f.Folder, f.InboxType, f.Category, f.Assigned, f.Type, f.Search}
	// Marshalling a fixed-size string array cannot fail.
	encoded, _ := json.Marshal(tuple)
	return string(encoded)
}

// Descriptor is the resolved query handed to the list collaborator.
// Nil pointers and empty strings mean "no constraint".
type Descriptor struct {
	IsDraft        *bool                    `json:"is_draft,omitempty"`
	IsArchived     *bool                    `json:"is_archived,omitempty"`
	Direction      models.Direction         `json:"direction,omitempty"`
	Status         models.Status            `json:"status,omitempty"`
	StarredOnly    bool                     `json:"starred_only,omitempty"`
	InboxType      string                   `json:"inbox_type"`
	MailboxOwnerID string                   `json:"mailbox_owner_id,omitempty"`
	CompanyInbox   bool                     `json:"company_inbox,omitempty"` // rows outside every personal mailbox
	Category       string                   `json:"category,omitempty"`
	AssignedTo     string                   `json:"assigned_to,omitempty"`
	Type           models.CommunicationType `json:"type,omitempty"`
	Search         string                   `json:"search,omitempty"`
}

// Resolve maps a Filter to a Descriptor for the given team member.
func Resolve(f Filter, teamMemberID string) Descriptor {
	d := Descriptor{
		InboxType: f.InboxType,
		Search:    f.Search,
	}

	switch f.Folder {
	case FolderDraft:
		d.IsDraft = boolPtr(true)
	case FolderArchived:
		d.IsArchived = boolPtr(true)
	case FolderSent:
		d.IsDraft = boolPtr(false)
		d.IsArchived = boolPtr(false)
		d.Direction = models.DirectionOutbound
	case FolderInbox:
		d.IsDraft = boolPtr(false)
		d.IsArchived = boolPtr(false)
	case FolderStarred:
		d.IsDraft = boolPtr(false)
		d.IsArchived = boolPtr(false)
		d.StarredOnly = true
	case FolderArchive, FolderTrash, FolderSpam:
		d.Status = models.Status(f.Folder)
	}

	switch f.InboxType {
	case InboxPersonal:
		d.MailboxOwnerID = teamMemberID
	case InboxCompany:
		d.CompanyInbox = true
		if companyCategories[f.Category] {
			d.Category = f.Category
		}
	}

	if f.Assigned == AssignedToMe {
		d.AssignedTo = teamMemberID
	}

	if f.Type != "" && f.Type != TypeAll {
		d.Type = models.CommunicationType(f.Type)
	}

	return d
}

func boolPtr(v bool) *bool {
	return &v
}
