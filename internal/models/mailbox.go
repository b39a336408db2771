package models

import (
	"time"
)

// Mailbox holds the email server settings of a team member. Passwords are
// stored encrypted and never serialized.
type Mailbox struct {
	MemberID              string    `json:"member_id"`
	EmailAddress          string    `json:"email_address"`
	IMAPServerHostname    string    `json:"imap_server_hostname"`
	IMAPUsername          string    `json:"imap_username"`
	EncryptedIMAPPassword []byte    `json:"-"`
	SMTPServerHostname    string    `json:"smtp_server_hostname"`
	SMTPUsername          string    `json:"smtp_username"`
	EncryptedSMTPPassword []byte    `json:"-"`
	LastSeenUID           int64     `json:"-"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// MailboxRequest is the payload for saving mailbox settings.
// Empty passwords keep the stored ones.
type MailboxRequest struct {
	EmailAddress       string `json:"email_address"`
	IMAPServerHostname string `json:"imap_server_hostname"`
	IMAPUsername       string `json:"imap_username"`
	IMAPPassword       string `json:"imap_password"`
	SMTPServerHostname string `json:"smtp_server_hostname"`
	SMTPUsername       string `json:"smtp_username"`
	SMTPPassword       string `json:"smtp_password"`
}

// MailboxResponse is the mailbox settings payload. Passwords are never included.
type MailboxResponse struct {
	EmailAddress       string `json:"email_address"`
	IMAPServerHostname string `json:"imap_server_hostname"`
	IMAPUsername       string `json:"imap_username"`
	IMAPPasswordSet    bool   `json:"imap_password_set"`
	SMTPServerHostname string `json:"smtp_server_hostname"`
	SMTPUsername       string `json:"smtp_username"`
	SMTPPasswordSet    bool   `json:"smtp_password_set"`
}
