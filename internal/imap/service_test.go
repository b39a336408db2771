package imap

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil"
)

const testCompanyID = "company-imap"

type serviceFixture struct {
	pool     *pgxpool.Pool
	server   *testutil.TestIMAPServer
	service  *Service
	memberID string
}

func newServiceFixture(t *testing.T) *serviceFixture {
	t.Helper()

	ctx := context.Background()
	pool := testutil.NewTestDB(t)
	server := testutil.NewTestIMAPServer(t)
	encryptor := testutil.NewTestEncryptor(t)

	member := &models.TeamMember{CompanyID: testCompanyID, Name: "Desk", Email: "desk@fieldco.test"}
	require.NoError(t, db.CreateTeamMember(ctx, pool, member, ""))

	imapPassword, err := encryptor.Encrypt(server.Password())
	require.NoError(t, err)
	smtpPassword, err := encryptor.Encrypt("unused")
	require.NoError(t, err)

	require.NoError(t, db.SaveMailbox(ctx, pool, &models.Mailbox{
		MemberID:              member.ID,
		EmailAddress:          "desk@fieldco.test",
		IMAPServerHostname:    server.Address,
		IMAPUsername:          server.Username(),
		EncryptedIMAPPassword: imapPassword,
		SMTPServerHostname:    "127.0.0.1:1",
		SMTPUsername:          "desk",
		EncryptedSMTPPassword: smtpPassword,
	}))

	service := NewService(pool, NewPool(false), encryptor)
	t.Cleanup(service.Close)

	return &serviceFixture{pool: pool, server: server, service: service, memberID: member.ID}
}

func (f *serviceFixture) emails(t *testing.T) []*models.Communication {
	t.Helper()

	items, err := db.ListCommunications(context.Background(), f.pool, testCompanyID, inbox.ListQuery{
		Page:     inbox.Page{Limit: 100},
		SortDesc: true,
	})
	require.NoError(t, err)
	return items
}

func findBySubject(items []*models.Communication, subject string) *models.Communication {
	for _, c := range items {
		if c.Subject == subject {
			return c
		}
	}
	return nil
}

func TestService_SyncInbox(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	f.server.AddMessage(t, InboxFolder, testutil.TestMessage{
		MessageID: "<boiler@test>",
		From:      "Ana <ana@example.com>",
		To:        "desk@fieldco.test",
		Subject:   "Boiler service",
		Text:      "Can you come Friday?",
	})

	inserted, err := f.service.SyncInbox(ctx, f.memberID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, inserted, 1)

	stored := findBySubject(f.emails(t), "Boiler service")
	require.NotNil(t, stored)
	assert.Equal(t, "ana@example.com", stored.FromAddress)
	assert.Equal(t, models.StatusUnread, stored.Status)
	assert.Contains(t, stored.Body, "Can you come Friday?")

	t.Run("second sync stores nothing new", func(t *testing.T) {
		inserted, err := f.service.SyncInbox(ctx, f.memberID)
		require.NoError(t, err)
		assert.Equal(t, 0, inserted)
	})

	t.Run("picks up mail that arrived since", func(t *testing.T) {
		before := len(f.emails(t))
		f.server.AddMessage(t, InboxFolder, testutil.TestMessage{
			MessageID: "<gutter@test>",
			From:      "bo@example.com",
			To:        "desk@fieldco.test",
			Subject:   "Gutter quote",
			Text:      "How much?",
			Seen:      true,
		})

		inserted, err := f.service.SyncInbox(ctx, f.memberID)
		require.NoError(t, err)
		assert.Equal(t, 1, inserted)

		items := f.emails(t)
		assert.Len(t, items, before+1)
		gutter := findBySubject(items, "Gutter quote")
		require.NotNil(t, gutter)
		assert.Equal(t, models.StatusRead, gutter.Status)
	})
}

func TestService_FetchEmailContent(t *testing.T) {
	f := newServiceFixture(t)
	ctx := context.Background()

	uid := f.server.AddMessage(t, InboxFolder, testutil.TestMessage{
		MessageID: "<invoice@test>",
		From:      "ana@example.com",
		To:        "desk@fieldco.test",
		Subject:   "Invoice",
		Text:      "Invoice attached",
		HTML:      "<p>Invoice attached</p>",
	})

	// A row that only knows where the message lives.
	imapUID := int64(uid)
	ownerID := f.memberID
	c := &models.Communication{
		CompanyID:      testCompanyID,
		Type:           models.TypeEmail,
		Direction:      models.DirectionInbound,
		Status:         models.StatusUnread,
		Subject:        "Invoice",
		MailboxOwnerID: &ownerID,
		IMAPUID:        &imapUID,
		IMAPFolderName: InboxFolder,
	}
	require.NoError(t, db.InsertCommunication(ctx, f.pool, c))

	content, err := f.service.FetchEmailContent(ctx, testCompanyID, c.ID)
	require.NoError(t, err)
	assert.Contains(t, content.HTML, "<p>Invoice attached</p>")
	assert.Contains(t, content.Text, "Invoice attached")

	t.Run("stores the body for next time", func(t *testing.T) {
		stored, err := db.GetCommunication(ctx, f.pool, testCompanyID, c.ID)
		require.NoError(t, err)
		assert.Contains(t, stored.BodyHTML, "<p>Invoice attached</p>")
	})

	t.Run("email without a source", func(t *testing.T) {
		orphan := &models.Communication{
			CompanyID: testCompanyID,
			Type:      models.TypeEmail,
			Direction: models.DirectionInbound,
			Status:    models.StatusUnread,
		}
		require.NoError(t, db.InsertCommunication(ctx, f.pool, orphan))

		_, err := f.service.FetchEmailContent(ctx, testCompanyID, orphan.ID)
		assert.ErrorIs(t, err, ErrNoMailboxSource)
	})

	t.Run("unknown id", func(t *testing.T) {
		_, err := f.service.FetchEmailContent(ctx, testCompanyID, "00000000-0000-0000-0000-000000000000")
		assert.ErrorIs(t, err, db.ErrCommunicationNotFound)
	})
}

type recordingNotifier struct {
	mu       sync.Mutex
	active   int
	payloads [][]byte
}

func (n *recordingNotifier) ActiveConnections(string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.active
}

func (n *recordingNotifier) Send(_ string, payload []byte) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.payloads = append(n.payloads, payload)
}

func (n *recordingNotifier) sent() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.payloads)
}

func TestService_StartIdleListener(t *testing.T) {
	f := newServiceFixture(t)

	f.server.AddMessage(t, InboxFolder, testutil.TestMessage{
		MessageID: "<idle@test>",
		From:      "ana@example.com",
		To:        "desk@fieldco.test",
		Subject:   "Arrived before connect",
		Text:      "hello",
	})

	notifier := &recordingNotifier{active: 1}
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		f.service.StartIdleListener(ctx, f.memberID, notifier)
	}()

	assert.Eventually(t, func() bool { return notifier.sent() > 0 }, 10*time.Second, 50*time.Millisecond)
	assert.NotNil(t, findBySubject(f.emails(t), "Arrived before connect"))

	cancel()
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("idle listener did not stop after cancel")
	}
}
