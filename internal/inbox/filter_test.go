package inbox

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vdavid/fieldinbox/internal/models"
)

func TestResolve(t *testing.T) {
	const me = "member-42"

	tests := []struct {
		name   string
		filter Filter
		check  func(t *testing.T, d Descriptor)
	}{
		{
			name:   "sent folder in personal inbox",
			filter: Filter{Folder: FolderSent, InboxType: InboxPersonal, Type: TypeAll},
			check: func(t *testing.T, d Descriptor) {
				assert.Equal(t, models.DirectionOutbound, d.Direction)
				if assert.NotNil(t, d.IsDraft) {
					assert.False(t, *d.IsDraft)
				}
				if assert.NotNil(t, d.IsArchived) {
					assert.False(t, *d.IsArchived)
				}
				assert.Equal(t, me, d.MailboxOwnerID)
				assert.Empty(t, d.Category)
				assert.Empty(t, d.Status)
			},
		},
		{
			name:   "draft folder only constrains drafts",
			filter: Filter{Folder: FolderDraft, InboxType: InboxAll},
			check: func(t *testing.T, d Descriptor) {
				if assert.NotNil(t, d.IsDraft) {
					assert.True(t, *d.IsDraft)
				}
				assert.Nil(t, d.IsArchived)
				assert.Empty(t, d.Direction)
				assert.Empty(t, d.MailboxOwnerID)
			},
		},
		{
			name:   "archived folder",
			filter: Filter{Folder: FolderArchived, InboxType: InboxAll},
			check: func(t *testing.T, d Descriptor) {
				assert.Nil(t, d.IsDraft)
				if assert.NotNil(t, d.IsArchived) {
					assert.True(t, *d.IsArchived)
				}
			},
		},
		{
			name:   "inbox folder",
			filter: Filter{Folder: FolderInbox, InboxType: InboxAll},
			check: func(t *testing.T, d Descriptor) {
				assert.False(t, *d.IsDraft)
				assert.False(t, *d.IsArchived)
				assert.Empty(t, d.Direction)
				assert.False(t, d.StarredOnly)
			},
		},
		{
			name:   "starred folder",
			filter: Filter{Folder: FolderStarred, InboxType: InboxAll},
			check: func(t *testing.T, d Descriptor) {
				assert.False(t, *d.IsDraft)
				assert.False(t, *d.IsArchived)
				assert.True(t, d.StarredOnly)
			},
		},
		{
			name:   "status folders map to status",
			filter: Filter{Folder: FolderTrash, InboxType: InboxAll},
			check: func(t *testing.T, d Descriptor) {
				assert.Equal(t, models.StatusTrash, d.Status)
				assert.False(t, d.CompanyInbox)
				assert.Nil(t, d.IsDraft)
				assert.Nil(t, d.IsArchived)
			},
		},
		{
			name:   "category applies in company inbox",
			filter: Filter{Folder: FolderInbox, InboxType: InboxCompany, Category: "billing"},
			check: func(t *testing.T, d Descriptor) {
				assert.Equal(t, "billing", d.Category)
				assert.Empty(t, d.MailboxOwnerID)
				assert.True(t, d.CompanyInbox)
			},
		},
		{
			name:   "unknown category is omitted",
			filter: Filter{Folder: FolderInbox, InboxType: InboxCompany, Category: "marketing"},
			check: func(t *testing.T, d Descriptor) {
				assert.Empty(t, d.Category)
			},
		},
		{
			name:   "category is ignored outside the company inbox",
			filter: Filter{Folder: FolderInbox, InboxType: InboxPersonal, Category: "sales"},
			check: func(t *testing.T, d Descriptor) {
				assert.Empty(t, d.Category)
			},
		},
		{
			name:   "assigned to me and type",
			filter: Filter{Folder: FolderInbox, InboxType: InboxAll, Assigned: AssignedToMe, Type: "sms"},
			check: func(t *testing.T, d Descriptor) {
				assert.Equal(t, me, d.AssignedTo)
				assert.Equal(t, models.TypeSMS, d.Type)
			},
		},
		{
			name:   "type all is no constraint",
			filter: Filter{Folder: FolderInbox, InboxType: InboxAll, Type: TypeAll, Search: "boiler"},
			check: func(t *testing.T, d Descriptor) {
				assert.Empty(t, d.Type)
				assert.Equal(t, "boiler", d.Search)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.check(t, Resolve(tt.filter, me))
		})
	}
}

func TestFilter_Key(t *testing.T) {
	a := Filter{Folder: FolderInbox, InboxType: InboxPersonal, Type: TypeAll}
	b := Filter{Type: TypeAll, InboxType: InboxPersonal, Folder: FolderInbox}
	assert.Equal(t, a.Key(), b.Key())

	c := a
	c.Search = "x"
	assert.NotEqual(t, a.Key(), c.Key())

	// Values must not bleed across fields.
	d := Filter{Folder: "a", InboxType: "b"}
	e := Filter{Folder: "a\",\"b"}
	assert.NotEqual(t, d.Key(), e.Key())
}
