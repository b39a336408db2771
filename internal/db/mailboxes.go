package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/models"
)

// ErrMailboxNotFound is returned when a team member has no mailbox configured.
var ErrMailboxNotFound = errors.New("mailbox not found")

const mailboxColumns = `
	member_id::text,
	email_address,
	imap_server_hostname,
	imap_username,
	encrypted_imap_password,
	smtp_server_hostname,
	smtp_username,
	encrypted_smtp_password,
	last_seen_uid,
	created_at,
	updated_at`

func scanMailbox(row pgx.Row) (*models.Mailbox, error) {
	var m models.Mailbox
	err := row.Scan(
		&m.MemberID,
		&m.EmailAddress,
		&m.IMAPServerHostname,
		&m.IMAPUsername,
		&m.EncryptedIMAPPassword,
		&m.SMTPServerHostname,
		&m.SMTPUsername,
		&m.EncryptedSMTPPassword,
		&m.LastSeenUID,
		&m.CreatedAt,
		&m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// GetMailbox returns the mailbox of the given team member.
func GetMailbox(ctx context.Context, pool *pgxpool.Pool, memberID string) (*models.Mailbox, error) {
	m, err := scanMailbox(pool.QueryRow(ctx,
		`SELECT `+mailboxColumns+` FROM mailboxes WHERE member_id = $1`, memberID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrMailboxNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get mailbox: %w", err)
	}

	return m, nil
}

// ListMailboxes returns every configured mailbox.
func ListMailboxes(ctx context.Context, pool *pgxpool.Pool) ([]*models.Mailbox, error) {
	rows, err := pool.Query(ctx, `SELECT `+mailboxColumns+` FROM mailboxes ORDER BY member_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list mailboxes: %w", err)
	}
	defer rows.Close()

	var mailboxes []*models.Mailbox
	for rows.Next() {
		m, err := scanMailbox(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mailbox: %w", err)
		}
		mailboxes = append(mailboxes, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mailboxes: %w", err)
	}

	return mailboxes, nil
}

// SaveMailbox creates or replaces the mailbox settings of m.MemberID.
// The last seen UID survives updates.
func SaveMailbox(ctx context.Context, pool *pgxpool.Pool, m *models.Mailbox) error {
	_, err := pool.Exec(ctx, `
		INSERT INTO mailboxes (
			member_id,
			email_address,
			imap_server_hostname,
			imap_username,
			encrypted_imap_password,
			smtp_server_hostname,
			smtp_username,
			encrypted_smtp_password
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (member_id) DO UPDATE SET
			email_address = EXCLUDED.email_address,
			imap_server_hostname = EXCLUDED.imap_server_hostname,
			imap_username = EXCLUDED.imap_username,
			encrypted_imap_password = EXCLUDED.encrypted_imap_password,
			smtp_server_hostname = EXCLUDED.smtp_server_hostname,
			smtp_username = EXCLUDED.smtp_username,
			encrypted_smtp_password = EXCLUDED.encrypted_smtp_password,
			updated_at = NOW()
	`,
		m.MemberID,
		m.EmailAddress,
		m.IMAPServerHostname,
		m.IMAPUsername,
		m.EncryptedIMAPPassword,
		m.SMTPServerHostname,
		m.SMTPUsername,
		m.EncryptedSMTPPassword,
	)
	if err != nil {
		return fmt.Errorf("failed to save mailbox: %w", err)
	}

	return nil
}

// UpdateLastSeenUID records the highest INBOX UID ingested for memberID.
// It never moves backwards.
func UpdateLastSeenUID(ctx context.Context, pool *pgxpool.Pool, memberID string, uid int64) error {
	if _, err := pool.Exec(ctx, `
		UPDATE mailboxes SET last_seen_uid = GREATEST(last_seen_uid, $2)
		WHERE member_id = $1
	`, memberID, uid); err != nil {
		return fmt.Errorf("failed to update last seen UID: %w", err)
	}
	return nil
}
