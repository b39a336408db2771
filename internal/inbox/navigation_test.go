package inbox_test

import (
	"context"
	"net/url"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

func TestParseNavigation(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		nav := inbox.ParseNavigation(url.Values{})
		assert.Equal(t, inbox.DefaultFilter(), nav.Filter)
		assert.Empty(t, nav.ChannelID)
		assert.Empty(t, nav.SelectedID)
	})

	t.Run("all parameters", func(t *testing.T) {
		q, err := url.ParseQuery("inbox=company&folder=sent&category=sales&assigned=me&type=sms&channel=ch-1&id=c-9&compose=sms")
		require.NoError(t, err)

		nav := inbox.ParseNavigation(q)
		assert.Equal(t, inbox.Filter{
			Folder:    inbox.FolderSent,
			InboxType: inbox.InboxCompany,
			Category:  "sales",
			Assigned:  inbox.AssignedToMe,
			Type:      "sms",
		}, nav.Filter)
		assert.Equal(t, "ch-1", nav.ChannelID)
		assert.Equal(t, "c-9", nav.SelectedID)
		assert.Equal(t, "sms", nav.Compose)
	})
}

func TestLocation(t *testing.T) {
	q := url.Values{"folder": {"inbox"}, "compose": {"email"}, "channel": {"old"}}

	out := inbox.Location(q, "c-1", "")
	assert.Equal(t, "c-1", out.Get("id"))
	assert.False(t, out.Has("channel"))
	assert.False(t, out.Has("compose"))
	assert.Equal(t, "inbox", out.Get("folder"))

	// The input is left alone.
	assert.Equal(t, "email", q.Get("compose"))
}

func TestNavigate_SelectsItem(t *testing.T) {
	h := newHarness(t)

	item := email("c-1", time.Minute)
	item.Body = "hello"
	h.list.On("ListCommunications", mock.Anything, testCompanyID, mock.MatchedBy(func(q inbox.ListQuery) bool {
		return q.Descriptor.Direction == models.DirectionOutbound
	})).Return([]*models.Communication{item}, nil).Once()

	q, err := url.ParseQuery("folder=sent&id=c-1")
	require.NoError(t, err)
	require.NoError(t, h.ctrl.Navigate(context.Background(), inbox.ParseNavigation(q)))

	snap := h.ctrl.Snapshot()
	assert.Equal(t, inbox.FolderSent, snap.Filter.Folder)
	assert.Equal(t, "c-1", snap.SelectedID)

	// An id that is not loaded is ignored.
	q.Set("id", "missing")
	require.NoError(t, h.ctrl.Navigate(context.Background(), inbox.ParseNavigation(q)))
	assert.Equal(t, "c-1", h.ctrl.Snapshot().SelectedID)
}
