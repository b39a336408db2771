package imap

import (
	"fmt"
	"html"
	"io"
	"log"
	"strings"
	"time"

	"github.com/emersion/go-imap"
	"github.com/jhillyerd/enmime"
	"github.com/vdavid/fieldinbox/internal/models"
)

// ParseContent reads a raw RFC 822 message into its text and HTML bodies.
// A message without an HTML part gets one built from the text.
func ParseContent(r io.Reader) (*models.EmailContent, error) {
	envelope, err := enmime.ReadEnvelope(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse email body: %w", err)
	}

	content := &models.EmailContent{
		Text: envelope.Text,
		HTML: envelope.HTML,
	}
	if content.HTML == "" && content.Text != "" {
		content.HTML = strings.ReplaceAll(html.EscapeString(content.Text), "\n", "<br>")
	}
	return content, nil
}

// messageContent parses the body section of msg, if it was fetched.
func messageContent(msg *imap.Message) (*models.EmailContent, error) {
	body := msg.GetBody(fullMessageSection)
	if body == nil {
		return nil, fmt.Errorf("message %d has no body section", msg.Uid)
	}
	return ParseContent(body)
}

// ToCommunication maps a fetched message of mailbox into an email row.
// Mail sent from the mailbox's own address is outbound.
func ToCommunication(msg *imap.Message, mailbox *models.Mailbox, companyID, folder string) (*models.Communication, string, error) {
	if msg == nil {
		return nil, "", fmt.Errorf("imap message is nil")
	}

	uid := int64(msg.Uid)
	ownerID := mailbox.MemberID
	c := &models.Communication{
		CompanyID:      companyID,
		Type:           models.TypeEmail,
		Direction:      models.DirectionInbound,
		Status:         models.StatusUnread,
		ToAddress:      mailbox.EmailAddress,
		MailboxOwnerID: &ownerID,
		IMAPUID:        &uid,
		IMAPFolderName: folder,
		CreatedAt:      msg.InternalDate,
	}

	for _, flag := range msg.Flags {
		if flag == imap.SeenFlag {
			c.Status = models.StatusRead
		}
	}

	var messageID string
	if env := msg.Envelope; env != nil {
		messageID = env.MessageId
		c.Subject = env.Subject
		if !env.Date.IsZero() {
			c.CreatedAt = env.Date
		}
		if len(env.From) > 0 && env.From[0] != nil {
			c.FromAddress = env.From[0].Address()
			c.FromName = env.From[0].PersonalName
		}
		if len(env.To) > 0 && env.To[0] != nil {
			c.ToAddress = env.To[0].Address()
			c.ToName = env.To[0].PersonalName
		}
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now()
	}
	if strings.EqualFold(c.FromAddress, mailbox.EmailAddress) {
		c.Direction = models.DirectionOutbound
		c.Status = models.StatusSent
	}

	if content, err := messageContent(msg); err != nil {
		// Headers are enough to list the email; the body is fetched again on open.
		log.Printf("IMAP: failed to parse body of UID %d: %v", msg.Uid, err)
	} else {
		c.Body = content.Text
		c.BodyHTML = content.HTML
	}

	return c, messageID, nil
}
