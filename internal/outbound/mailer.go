package outbound

import (
	"bytes"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jhillyerd/enmime"
	"github.com/vdavid/fieldinbox/internal/crypto"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
)

// ErrNotFailed is returned when asked to retry something that did not fail.
var ErrNotFailed = errors.New("communication is not a failed send")

// ErrNoSender is returned for a failed email without a mailbox to send it from.
var ErrNoSender = errors.New("email has no sending mailbox")

const noSubject = "(no subject)"

// Mailer re-sends failed outbound communications.
type Mailer struct {
	pool      *pgxpool.Pool
	encryptor *crypto.Encryptor
	useTLS    bool
	now       func() time.Time
}

// NewMailer creates a Mailer. Without useTLS, SMTP runs in plain text, which
// is only meant for tests.
func NewMailer(pool *pgxpool.Pool, encryptor *crypto.Encryptor, useTLS bool) *Mailer {
	return &Mailer{
		pool:      pool,
		encryptor: encryptor,
		useTLS:    useTLS,
		now:       time.Now,
	}
}

// RetryFailedSend re-delivers a failed outbound communication and marks it
// sent. Email goes out over the owner's SMTP server; other types are handed
// back to their provider by flipping the status.
func (m *Mailer) RetryFailedSend(ctx context.Context, companyID, id string) error {
	c, err := db.GetCommunication(ctx, m.pool, companyID, id)
	if err != nil {
		return err
	}
	if c.Status != models.StatusFailed || c.Direction != models.DirectionOutbound {
		return ErrNotFailed
	}

	if c.Type != models.TypeEmail {
		if err := db.SetStatus(ctx, m.pool, companyID, id, models.StatusSent); err != nil {
			return err
		}
		log.Printf("Outbound: re-sent %s %s", c.Type, id)
		return nil
	}

	if err := m.resendEmail(ctx, c); err != nil {
		return err
	}
	// The email is out, so a failed status write must not invite a second send.
	if err := db.SetStatus(ctx, m.pool, companyID, id, models.StatusSent); err != nil {
		log.Printf("Outbound: delivered %s but failed to mark it sent: %v", id, err)
		return nil
	}
	log.Printf("Outbound: re-sent %s %s", c.Type, id)
	return nil
}

func (m *Mailer) resendEmail(ctx context.Context, c *models.Communication) error {
	if c.MailboxOwnerID == nil {
		return ErrNoSender
	}
	mailbox, err := db.GetMailbox(ctx, m.pool, *c.MailboxOwnerID)
	if err != nil {
		return fmt.Errorf("failed to get mailbox: %w", err)
	}
	password, err := m.encryptor.Decrypt(mailbox.EncryptedSMTPPassword)
	if err != nil {
		return fmt.Errorf("failed to decrypt SMTP password: %w", err)
	}

	data, err := BuildMessage(mailbox, c, m.now())
	if err != nil {
		return err
	}

	return m.deliver(ctx, mailbox, password, []string{c.ToAddress}, data)
}

// BuildMessage renders c as an RFC 822 message from mailbox.
func BuildMessage(mailbox *models.Mailbox, c *models.Communication, date time.Time) ([]byte, error) {
	subject := c.Subject
	if subject == "" {
		subject = noSubject
	}

	builder := enmime.Builder().
		From(c.FromName, mailbox.EmailAddress).
		To(c.ToName, c.ToAddress).
		Subject(subject).
		Date(date).
		Text([]byte(c.Body))
	if c.BodyHTML != "" {
		builder = builder.HTML([]byte(c.BodyHTML))
	}

	part, err := builder.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build message: %w", err)
	}

	var buf bytes.Buffer
	if err := part.Encode(&buf); err != nil {
		return nil, fmt.Errorf("failed to encode message: %w", err)
	}
	return buf.Bytes(), nil
}

// deliver submits data over SMTP, upgrading with STARTTLS when enabled. The
// dial is bound to ctx and its deadline also caps every SMTP command.
func (m *Mailer) deliver(ctx context.Context, mailbox *models.Mailbox, password string, to []string, data []byte) error {
	addr := mailbox.SMTPServerHostname
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to dial SMTP server: %w", err)
	}

	var c *smtp.Client
	if m.useTLS {
		host, _, err := net.SplitHostPort(addr)
		if err != nil {
			host = addr
		}
		c, err = smtp.NewClientStartTLS(conn, &tls.Config{ServerName: host})
		if err != nil {
			return fmt.Errorf("failed to start TLS with %s: %w", addr, err)
		}
	} else {
		c = smtp.NewClient(conn)
	}
	defer func() {
		_ = c.Close()
	}()

	if deadline, ok := ctx.Deadline(); ok {
		c.CommandTimeout = time.Until(deadline)
		c.SubmissionTimeout = time.Until(deadline)
	}

	if err := c.Auth(sasl.NewPlainClient("", mailbox.SMTPUsername, password)); err != nil {
		return fmt.Errorf("failed to authenticate: %w", err)
	}
	if err := c.SendMail(mailbox.EmailAddress, to, bytes.NewReader(data)); err != nil {
		return fmt.Errorf("failed to send mail: %w", err)
	}
	return c.Quit()
}
