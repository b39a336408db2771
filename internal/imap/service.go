package imap

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/crypto"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

// InboxFolder is the only folder ingested and watched.
const InboxFolder = "INBOX"

// ErrNoMailboxSource is returned for an email that has neither a stored body
// nor a mailbox UID to fetch it from.
var ErrNoMailboxSource = errors.New("email has no mailbox source")

// Service reads email from team members' mailboxes and stores it as
// communications.
type Service struct {
	pool      *pgxpool.Pool
	clients   *Pool
	encryptor *crypto.Encryptor
}

var _ inbox.EmailContentFetcher = (*Service)(nil)

// NewService creates a Service. It owns clients and closes them on Close.
func NewService(pool *pgxpool.Pool, clients *Pool, encryptor *crypto.Encryptor) *Service {
	return &Service{
		pool:      pool,
		clients:   clients,
		encryptor: encryptor,
	}
}

// credentials loads the mailbox of memberID and decrypts its IMAP password.
func (s *Service) credentials(ctx context.Context, memberID string) (*models.Mailbox, Credentials, error) {
	mailbox, err := db.GetMailbox(ctx, s.pool, memberID)
	if err != nil {
		return nil, Credentials{}, fmt.Errorf("failed to get mailbox: %w", err)
	}

	password, err := s.encryptor.Decrypt(mailbox.EncryptedIMAPPassword)
	if err != nil {
		return nil, Credentials{}, fmt.Errorf("failed to decrypt IMAP password: %w", err)
	}

	return mailbox, Credentials{
		Server:   mailbox.IMAPServerHostname,
		Username: mailbox.IMAPUsername,
		Password: password,
	}, nil
}

// FetchEmailContent returns the body of an email. A stored body is returned
// as is; otherwise the message is read from its owner's mailbox and stored.
func (s *Service) FetchEmailContent(ctx context.Context, companyID, communicationID string) (*models.EmailContent, error) {
	c, err := db.GetCommunication(ctx, s.pool, companyID, communicationID)
	if err != nil {
		return nil, err
	}
	if c.Body != "" || c.BodyHTML != "" {
		return &models.EmailContent{HTML: c.BodyHTML, Text: c.Body}, nil
	}
	if c.MailboxOwnerID == nil || c.IMAPUID == nil {
		return nil, ErrNoMailboxSource
	}

	ownerID := *c.MailboxOwnerID
	_, creds, err := s.credentials(ctx, ownerID)
	if err != nil {
		return nil, err
	}

	folder := c.IMAPFolderName
	if folder == "" {
		folder = InboxFolder
	}

	var content *models.EmailContent
	err = s.clients.WithWorker(ownerID, creds, func(cl *client.Client) error {
		if _, err := cl.Select(folder, true); err != nil {
			return fmt.Errorf("failed to select folder %s: %w", folder, err)
		}
		msg, err := FetchFullMessage(cl, uint32(*c.IMAPUID))
		if err != nil {
			return err
		}
		content, err = messageContent(msg)
		return err
	})
	if err != nil {
		return nil, err
	}

	if err := db.SaveEmailContent(ctx, s.pool, companyID, communicationID, *content); err != nil {
		log.Printf("IMAP: failed to store content of %s: %v", communicationID, err)
	}

	return content, nil
}

// SyncInbox stores INBOX messages newer than the mailbox's last seen UID and
// returns how many rows were inserted. Messages already stored are skipped.
func (s *Service) SyncInbox(ctx context.Context, memberID string) (int, error) {
	mailbox, creds, err := s.credentials(ctx, memberID)
	if err != nil {
		return 0, err
	}
	member, err := db.GetTeamMember(ctx, s.pool, memberID)
	if err != nil {
		return 0, err
	}

	var messages []*imap.Message
	err = s.clients.WithWorker(memberID, creds, func(cl *client.Client) error {
		if _, err := cl.Select(InboxFolder, true); err != nil {
			return fmt.Errorf("failed to select INBOX: %w", err)
		}
		messages, err = FetchSince(cl, uint32(mailbox.LastSeenUID))
		return err
	})
	if err != nil {
		return 0, err
	}

	inserted := 0
	var lastUID int64
	for _, msg := range messages {
		c, messageID, err := ToCommunication(msg, mailbox, member.CompanyID, InboxFolder)
		if err != nil {
			log.Printf("IMAP: skipping UID %d for member %s: %v", msg.Uid, memberID, err)
			continue
		}

		isNew, err := db.SaveIMAPEmail(ctx, s.pool, c, messageID)
		if err != nil {
			return inserted, err
		}
		if isNew {
			inserted++
		}
		lastUID = max(lastUID, int64(msg.Uid))
	}

	if lastUID > 0 {
		if err := db.UpdateLastSeenUID(ctx, s.pool, memberID, lastUID); err != nil {
			return inserted, err
		}
	}

	return inserted, nil
}

// Close logs out every IMAP connection.
func (s *Service) Close() {
	s.clients.Close()
}
