package db

import (
	"context"
	"errors"
	"fmt"
	"slices"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

// ErrChannelMessageNotFound is returned when a team-channel message does not exist.
var ErrChannelMessageNotFound = errors.New("channel message not found")

// channelMessageSelect reads team-channel rows as seen by the viewer ($2):
// direction and read state are relative to that member.
const channelMessageSelect = `
	SELECT
		c.id::text,
		substring(c.to_address FROM 9),
		c.body,
		c.body_html,
		c.created_at,
		CASE
			WHEN c.sender_id = $2 THEN c.created_at
			WHEN r.last_read_at >= c.created_at THEN r.last_read_at
		END,
		CASE WHEN c.sender_id = $2 THEN 'outbound' ELSE 'inbound' END,
		c.tags,
		m.id::text,
		m.name,
		m.avatar_url,
		m.email
	FROM communications c
	LEFT JOIN team_members m ON m.id = c.sender_id
	LEFT JOIN channel_reads r
		ON r.company_id = c.company_id
		AND r.channel_id = substring(c.to_address FROM 9)
		AND r.member_id = $2
	WHERE c.company_id = $1 AND c.type = 'team'`

func scanChannelMessage(row pgx.Row) (*models.ChannelMessage, error) {
	var (
		msg                                       models.ChannelMessage
		senderID, senderName, senderAvatar, email *string
	)
	err := row.Scan(
		&msg.ID,
		&msg.ChannelID,
		&msg.Body,
		&msg.BodyHTML,
		&msg.CreatedAt,
		&msg.ReadAt,
		&msg.Direction,
		&msg.Tags,
		&senderID,
		&senderName,
		&senderAvatar,
		&email,
	)
	if err != nil {
		return nil, err
	}
	if senderID != nil {
		msg.Sender = &models.Sender{ID: *senderID}
		if senderName != nil {
			msg.Sender.Name = *senderName
		}
		if senderAvatar != nil {
			msg.Sender.AvatarURL = *senderAvatar
		}
		if email != nil {
			msg.Sender.Email = *email
		}
	}
	return &msg, nil
}

// ListChannelMessages returns the newest page of a channel's messages, oldest
// first. A non-empty search restricts the page to matching bodies.
func ListChannelMessages(ctx context.Context, pool *pgxpool.Pool, companyID, channelID, viewerID string, page inbox.Page, search string) ([]models.ChannelMessage, error) {
	limit := page.Limit
	if limit <= 0 {
		limit = inbox.PageSize
	}

	sql := channelMessageSelect + ` AND $3 = ANY(c.tags) AND c.to_address = $4`
	args := []any{companyID, viewerID, channelID, models.ChannelAddressPrefix + channelID}
	if search != "" {
		sql += ` AND c.body ILIKE $5`
		args = append(args, "%"+escapeLike(search)+"%")
	}
	sql += fmt.Sprintf(` ORDER BY c.created_at DESC, c.id DESC LIMIT %d OFFSET %d`, limit, page.Offset)

	rows, err := pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list channel messages: %w", err)
	}
	defer rows.Close()

	messages := []models.ChannelMessage{}
	for rows.Next() {
		msg, err := scanChannelMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan channel message: %w", err)
		}
		messages = append(messages, *msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating channel messages: %w", err)
	}

	slices.Reverse(messages)

	if err := attachAttachments(ctx, pool, messages); err != nil {
		return nil, err
	}

	return messages, nil
}

// GetChannelMessage returns one team-channel message as seen by viewerID.
func GetChannelMessage(ctx context.Context, pool *pgxpool.Pool, companyID, messageID, viewerID string) (*models.ChannelMessage, error) {
	msg, err := scanChannelMessage(pool.QueryRow(ctx,
		channelMessageSelect+` AND c.id = $3`, companyID, viewerID, messageID))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrChannelMessageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get channel message: %w", err)
	}

	messages := []models.ChannelMessage{*msg}
	if err := attachAttachments(ctx, pool, messages); err != nil {
		return nil, err
	}

	return &messages[0], nil
}

func attachAttachments(ctx context.Context, pool *pgxpool.Pool, messages []models.ChannelMessage) error {
	if len(messages) == 0 {
		return nil
	}

	index := make(map[string]int, len(messages))
	ids := make([]string, 0, len(messages))
	for i, m := range messages {
		index[m.ID] = i
		ids = append(ids, m.ID)
	}

	rows, err := pool.Query(ctx, `
		SELECT communication_id::text, url, type, filename
		FROM communication_attachments
		WHERE communication_id = ANY($1::uuid[])
		ORDER BY filename, id
	`, ids)
	if err != nil {
		return fmt.Errorf("failed to get attachments: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var commID string
		var a models.Attachment
		if err := rows.Scan(&commID, &a.URL, &a.Type, &a.Filename); err != nil {
			return fmt.Errorf("failed to scan attachment: %w", err)
		}
		if i, ok := index[commID]; ok {
			messages[i].Attachments = append(messages[i].Attachments, a)
		}
	}

	return rows.Err()
}

// InsertChannelMessage posts body to a team channel as senderID. The row is
// tagged with the channel id so realtime subscribers can match it.
func InsertChannelMessage(ctx context.Context, pool *pgxpool.Pool, companyID, channelID, senderID, body string, attachments []models.Attachment) (string, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	var id string
	err = tx.QueryRow(ctx, `
		INSERT INTO communications (
			company_id, type, direction, status, to_address, body, tags, channel, sender_id
		) VALUES ($1, 'team', 'outbound', 'sent', $2, $3, $4, $5, $6)
		RETURNING id::text
	`, companyID, models.ChannelAddressPrefix+channelID, body, []string{channelID}, models.TeamsChannel, senderID).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("failed to insert channel message: %w", err)
	}

	for _, a := range attachments {
		if _, err := tx.Exec(ctx, `
			INSERT INTO communication_attachments (communication_id, url, type, filename)
			VALUES ($1, $2, $3, $4)
		`, id, a.URL, a.Type, a.Filename); err != nil {
			return "", fmt.Errorf("failed to insert attachment: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return "", fmt.Errorf("failed to commit channel message: %w", err)
	}

	return id, nil
}

// MarkChannelRead records that memberID has read the channel up to now.
func MarkChannelRead(ctx context.Context, pool *pgxpool.Pool, companyID, channelID, memberID string) error {
	if _, err := pool.Exec(ctx, `
		INSERT INTO channel_reads (company_id, channel_id, member_id, last_read_at)
		VALUES ($1, $2, $3, now())
		ON CONFLICT (company_id, channel_id, member_id) DO UPDATE SET last_read_at = EXCLUDED.last_read_at
	`, companyID, channelID, memberID); err != nil {
		return fmt.Errorf("failed to mark channel read: %w", err)
	}
	return nil
}
