package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/models"
)

// GetSMSConversation returns every SMS exchanged with phone, oldest first.
// Phone numbers are stored normalized, so phone must be normalized too.
func GetSMSConversation(ctx context.Context, pool *pgxpool.Pool, companyID, phone string) ([]models.SMSMessage, error) {
	rows, err := pool.Query(ctx, `
		SELECT id::text, direction, status, body, media_urls, created_at
		FROM communications
		WHERE company_id = $1
		  AND type = 'sms'
		  AND ((direction = 'inbound' AND from_address = $2) OR (direction = 'outbound' AND to_address = $2))
		ORDER BY created_at, id
	`, companyID, phone)
	if err != nil {
		return nil, fmt.Errorf("failed to get SMS conversation: %w", err)
	}
	defer rows.Close()

	messages := []models.SMSMessage{}
	for rows.Next() {
		var m models.SMSMessage
		if err := rows.Scan(&m.ID, &m.Direction, &m.Status, &m.Body, &m.MediaURLs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan SMS message: %w", err)
		}
		messages = append(messages, m)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating SMS messages: %w", err)
	}

	return messages, nil
}

// MarkConversationRead marks every unread inbound SMS from phone read.
func MarkConversationRead(ctx context.Context, pool *pgxpool.Pool, companyID, phone string) error {
	if _, err := pool.Exec(ctx, `
		UPDATE communications SET status = 'read'
		WHERE company_id = $1
		  AND type = 'sms'
		  AND direction = 'inbound'
		  AND from_address = $2
		  AND status IN ('unread', 'new')
	`, companyID, phone); err != nil {
		return fmt.Errorf("failed to mark conversation read: %w", err)
	}
	return nil
}

// InsertOutboundSMS records an SMS sent by a team member. The row lands in the
// member's sent folder.
func InsertOutboundSMS(ctx context.Context, pool *pgxpool.Pool, companyID, memberID string, req models.SendSMSRequest) (*models.SMSMessage, error) {
	m := models.SMSMessage{
		Direction: models.DirectionOutbound,
		Status:    models.StatusSent,
		Body:      req.Body,
		MediaURLs: req.MediaURLs,
	}

	err := pool.QueryRow(ctx, `
		INSERT INTO communications (
			company_id, type, direction, status, to_address, body, media_urls,
			customer_id, job_id, mailbox_owner_id, sender_id
		) VALUES ($1, 'sms', 'outbound', 'sent', $2, $3, $4, $5, $6, $7, $7)
		RETURNING id::text, created_at
	`, companyID, req.To, req.Body, req.MediaURLs, req.CustomerID, req.JobID, memberID).Scan(&m.ID, &m.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to insert SMS: %w", err)
	}

	return &m, nil
}
