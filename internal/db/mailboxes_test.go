package db

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil"
)

func TestMailboxes(t *testing.T) {
	pool := testutil.NewTestDB(t)
	ctx := context.Background()
	memberID := createMember(t, pool, "acme", "ana")

	_, err := GetMailbox(ctx, pool, memberID)
	assert.ErrorIs(t, err, ErrMailboxNotFound)

	mailbox := &models.Mailbox{
		MemberID:              memberID,
		EmailAddress:          "ana@acme.test",
		IMAPServerHostname:    "imap.acme.test:993",
		IMAPUsername:          "ana",
		EncryptedIMAPPassword: []byte{1, 2, 3},
		SMTPServerHostname:    "smtp.acme.test:587",
		SMTPUsername:          "ana",
		EncryptedSMTPPassword: []byte{4, 5, 6},
	}
	require.NoError(t, SaveMailbox(ctx, pool, mailbox))

	got, err := GetMailbox(ctx, pool, memberID)
	require.NoError(t, err)
	assert.Equal(t, "imap.acme.test:993", got.IMAPServerHostname)
	assert.Equal(t, []byte{1, 2, 3}, got.EncryptedIMAPPassword)
	assert.Equal(t, int64(0), got.LastSeenUID)

	t.Run("last seen UID only moves forward", func(t *testing.T) {
		require.NoError(t, UpdateLastSeenUID(ctx, pool, memberID, 40))
		require.NoError(t, UpdateLastSeenUID(ctx, pool, memberID, 12))

		got, err := GetMailbox(ctx, pool, memberID)
		require.NoError(t, err)
		assert.Equal(t, int64(40), got.LastSeenUID)
	})

	t.Run("update keeps the last seen UID", func(t *testing.T) {
		mailbox.IMAPServerHostname = "imap2.acme.test:993"
		require.NoError(t, SaveMailbox(ctx, pool, mailbox))

		got, err := GetMailbox(ctx, pool, memberID)
		require.NoError(t, err)
		assert.Equal(t, "imap2.acme.test:993", got.IMAPServerHostname)
		assert.Equal(t, int64(40), got.LastSeenUID)
	})

	t.Run("list", func(t *testing.T) {
		mailboxes, err := ListMailboxes(ctx, pool)
		require.NoError(t, err)
		require.Len(t, mailboxes, 1)
		assert.Equal(t, memberID, mailboxes[0].MemberID)
	})
}
