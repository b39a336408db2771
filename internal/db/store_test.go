package db

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil"
)

func TestStore_SMS(t *testing.T) {
	pool := testutil.NewTestDB(t)
	store := NewStore(pool)
	ctx := context.Background()
	me := createMember(t, pool, acme, "me")

	const phone = "+15551234567"
	first := insert(t, pool, models.Communication{Type: models.TypeSMS, FromAddress: phone, Body: "Is Tuesday ok?", CreatedAt: day})
	insert(t, pool, models.Communication{Type: models.TypeSMS, FromAddress: "+15550000000", Body: "Someone else", CreatedAt: day.Add(time.Minute)})

	sent, err := store.SendSMS(ctx, acme, me, models.SendSMSRequest{To: "(555) 123-4567", Body: "Tuesday works"})
	require.NoError(t, err)
	assert.Equal(t, models.DirectionOutbound, sent.Direction)
	assert.Equal(t, models.StatusSent, sent.Status)
	assert.NotEmpty(t, sent.ID)

	t.Run("conversation is both directions, oldest first", func(t *testing.T) {
		messages, err := store.FetchSMSConversation(ctx, acme, "555-123-4567")
		require.NoError(t, err)
		require.Len(t, messages, 2)
		assert.Equal(t, first.ID, messages[0].ID)
		assert.Equal(t, sent.ID, messages[1].ID)
	})

	t.Run("mark conversation read", func(t *testing.T) {
		require.NoError(t, store.MarkConversationRead(ctx, acme, "5551234567"))

		got, err := GetCommunication(ctx, pool, acme, first.ID)
		require.NoError(t, err)
		assert.Equal(t, models.StatusRead, got.Status)
	})

	t.Run("sent SMS is in the sender's inbox", func(t *testing.T) {
		ids := listIDs(t, pool, inbox.Filter{Folder: inbox.FolderSent, InboxType: inbox.InboxPersonal, Type: inbox.TypeAll}, me)
		assert.Equal(t, []string{sent.ID}, ids)
	})
}

func TestStore_Channels(t *testing.T) {
	pool := testutil.NewTestDB(t)
	store := NewStore(pool)
	ctx := context.Background()
	ana := createMember(t, pool, acme, "ana")
	bo := createMember(t, pool, acme, "bo")

	first, err := InsertChannelMessage(ctx, pool, acme, "ops", bo, "Van 2 needs tyres", []models.Attachment{
		{URL: "https://cdn.test/tyre.jpg", Type: "image/jpeg", Filename: "tyre.jpg"},
	})
	require.NoError(t, err)
	second, err := InsertChannelMessage(ctx, pool, acme, "ops", ana, "Booked for Friday", nil)
	require.NoError(t, err)
	_, err = InsertChannelMessage(ctx, pool, acme, "sales", bo, "Other channel", nil)
	require.NoError(t, err)

	t.Run("history is oldest first, relative to the viewer", func(t *testing.T) {
		messages, err := store.FetchChannelMessages(ctx, acme, "ops", ana, inbox.Page{Limit: inbox.PageSize}, "")
		require.NoError(t, err)
		require.Len(t, messages, 2)

		assert.Equal(t, first, messages[0].ID)
		assert.Equal(t, "ops", messages[0].ChannelID)
		assert.Equal(t, models.DirectionInbound, messages[0].Direction)
		assert.Nil(t, messages[0].ReadAt)
		require.NotNil(t, messages[0].Sender)
		assert.Equal(t, bo, messages[0].Sender.ID)
		assert.Equal(t, "bo", messages[0].Sender.Name)
		require.Len(t, messages[0].Attachments, 1)
		assert.Equal(t, "tyre.jpg", messages[0].Attachments[0].Filename)
		assert.Equal(t, []string{"ops"}, messages[0].Tags)

		assert.Equal(t, second, messages[1].ID)
		assert.Equal(t, models.DirectionOutbound, messages[1].Direction)
		assert.NotNil(t, messages[1].ReadAt)
	})

	t.Run("page keeps the newest messages", func(t *testing.T) {
		messages, err := store.FetchChannelMessages(ctx, acme, "ops", ana, inbox.Page{Limit: 1}, "")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, second, messages[0].ID)
	})

	t.Run("search", func(t *testing.T) {
		messages, err := store.FetchChannelMessages(ctx, acme, "ops", ana, inbox.Page{Limit: inbox.PageSize}, "TYRES")
		require.NoError(t, err)
		require.Len(t, messages, 1)
		assert.Equal(t, first, messages[0].ID)
	})

	t.Run("marking read sets read time for that viewer only", func(t *testing.T) {
		require.NoError(t, store.MarkChannelRead(ctx, acme, "ops", ana))

		forAna, err := store.FetchChannelMessage(ctx, acme, first, ana)
		require.NoError(t, err)
		assert.NotNil(t, forAna.ReadAt)

		forBo, err := store.FetchChannelMessage(ctx, acme, second, bo)
		require.NoError(t, err)
		assert.Nil(t, forBo.ReadAt)
		assert.Equal(t, models.DirectionInbound, forBo.Direction)
	})

	t.Run("unknown message", func(t *testing.T) {
		_, err := store.FetchChannelMessage(ctx, acme, "00000000-0000-0000-0000-000000000000", ana)
		assert.ErrorIs(t, err, ErrChannelMessageNotFound)
	})

	t.Run("send returns the stored message", func(t *testing.T) {
		msg, err := store.SendChannelMessage(ctx, acme, "ops", ana, "Done")
		require.NoError(t, err)
		assert.Equal(t, "Done", msg.Body)
		assert.Equal(t, "ops", msg.ChannelID)
		assert.Equal(t, models.DirectionOutbound, msg.Direction)
		assert.False(t, msg.IsTemporary())
	})

	t.Run("channel rows stay out of the inbox list", func(t *testing.T) {
		ids := listIDs(t, pool, inbox.Filter{Folder: inbox.FolderInbox, InboxType: inbox.InboxAll, Type: inbox.TypeAll}, ana)
		assert.Empty(t, ids)
	})
}
