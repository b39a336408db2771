package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

// ErrCommunicationNotFound is returned when a communication does not exist in the company.
var ErrCommunicationNotFound = errors.New("communication not found")

const communicationColumns = `
	id::text,
	company_id,
	type,
	direction,
	status,
	from_address,
	from_name,
	to_address,
	to_name,
	subject,
	body,
	body_html,
	created_at,
	tags,
	channel,
	customer_id,
	job_id,
	internal_notes,
	notes_updated_at,
	notes_updated_by::text,
	assigned_to::text,
	mailbox_owner_id::text,
	category,
	is_draft,
	is_archived,
	imap_uid,
	imap_folder_name`

func scanCommunication(row pgx.Row) (*models.Communication, error) {
	var c models.Communication
	err := row.Scan(
		&c.ID,
		&c.CompanyID,
		&c.Type,
		&c.Direction,
		&c.Status,
		&c.FromAddress,
		&c.FromName,
		&c.ToAddress,
		&c.ToName,
		&c.Subject,
		&c.Body,
		&c.BodyHTML,
		&c.CreatedAt,
		&c.Tags,
		&c.Channel,
		&c.CustomerID,
		&c.JobID,
		&c.InternalNotes,
		&c.NotesUpdatedAt,
		&c.NotesUpdatedBy,
		&c.AssignedTo,
		&c.MailboxOwnerID,
		&c.Category,
		&c.IsDraft,
		&c.IsArchived,
		&c.IMAPUID,
		&c.IMAPFolderName,
	)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// queryBuilder collects WHERE clauses with numbered placeholders.
type queryBuilder struct {
	clauses []string
	args    []any
}

// arg registers v and returns its placeholder.
func (b *queryBuilder) arg(v any) string {
	b.args = append(b.args, v)
	return fmt.Sprintf("$%d", len(b.args))
}

func (b *queryBuilder) where(clause string) {
	b.clauses = append(b.clauses, clause)
}

// sortColumns whitelists the columns a list may be ordered by.
var sortColumns = map[string]string{
	"created_at": "created_at",
	"subject":    "subject",
	"status":     "status",
}

// ListCommunications returns one page of the company's communications matching q.
// Team-channel rows are never returned.
func ListCommunications(ctx context.Context, pool *pgxpool.Pool, companyID string, q inbox.ListQuery) ([]*models.Communication, error) {
	b := &queryBuilder{}
	b.where("company_id = " + b.arg(companyID))
	b.where("type <> 'team'")

	d := q.Descriptor
	if d.IsDraft != nil {
		b.where("is_draft = " + b.arg(*d.IsDraft))
	}
	if d.IsArchived != nil {
		b.where("is_archived = " + b.arg(*d.IsArchived))
	}
	if d.Direction != "" {
		b.where("direction = " + b.arg(string(d.Direction)))
	}
	if d.Status != "" {
		b.where("status = " + b.arg(string(d.Status)))
	}
	if d.StarredOnly {
		b.where(b.arg(models.StarredTag) + " = ANY(tags)")
	}
	if d.MailboxOwnerID != "" {
		b.where("mailbox_owner_id = " + b.arg(d.MailboxOwnerID))
	}
	if d.CompanyInbox {
		b.where("mailbox_owner_id IS NULL")
	}
	if d.Category != "" {
		b.where("category = " + b.arg(d.Category))
	}
	if d.AssignedTo != "" {
		b.where("assigned_to = " + b.arg(d.AssignedTo))
	}
	if d.Type != "" {
		b.where("type = " + b.arg(string(d.Type)))
	}
	if d.Search != "" {
		p := b.arg("%" + escapeLike(d.Search) + "%")
		b.where(fmt.Sprintf(
			"(subject ILIKE %[1]s OR body ILIKE %[1]s OR from_address ILIKE %[1]s OR from_name ILIKE %[1]s OR to_address ILIKE %[1]s OR to_name ILIKE %[1]s)", p))
	}

	sortColumn, ok := sortColumns[q.SortField]
	if !ok {
		sortColumn = "created_at"
	}
	order := "ASC"
	if q.SortDesc {
		order = "DESC"
	}
	limit := q.Page.Limit
	if limit <= 0 {
		limit = inbox.PageSize
	}

	sql := fmt.Sprintf(`SELECT %s FROM communications WHERE %s ORDER BY %s %s, id LIMIT %s OFFSET %s`,
		communicationColumns,
		strings.Join(b.clauses, " AND "),
		sortColumn, order,
		b.arg(limit), b.arg(q.Page.Offset),
	)

	rows, err := pool.Query(ctx, sql, b.args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list communications: %w", err)
	}
	defer rows.Close()

	var items []*models.Communication
	for rows.Next() {
		c, err := scanCommunication(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan communication: %w", err)
		}
		items = append(items, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating communications: %w", err)
	}

	return items, nil
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// GetCommunication returns a communication of the company by id.
func GetCommunication(ctx context.Context, pool *pgxpool.Pool, companyID, id string) (*models.Communication, error) {
	c, err := scanCommunication(pool.QueryRow(ctx,
		`SELECT `+communicationColumns+` FROM communications WHERE company_id = $1 AND id = $2`,
		companyID, id))

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommunicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get communication: %w", err)
	}

	return c, nil
}

// InsertCommunication stores a new communication and fills in its id and creation time.
func InsertCommunication(ctx context.Context, pool *pgxpool.Pool, c *models.Communication) error {
	createdAt := c.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	err := pool.QueryRow(ctx, `
		INSERT INTO communications (
			company_id,
			type,
			direction,
			status,
			from_address,
			from_name,
			to_address,
			to_name,
			subject,
			body,
			body_html,
			created_at,
			tags,
			channel,
			customer_id,
			job_id,
			assigned_to,
			mailbox_owner_id,
			category,
			is_draft,
			is_archived,
			imap_uid,
			imap_folder_name
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21, $22, $23)
		RETURNING id::text, created_at
	`,
		c.CompanyID,
		string(c.Type),
		string(c.Direction),
		string(c.Status),
		c.FromAddress,
		c.FromName,
		c.ToAddress,
		c.ToName,
		c.Subject,
		c.Body,
		c.BodyHTML,
		createdAt,
		c.Tags,
		c.Channel,
		c.CustomerID,
		c.JobID,
		c.AssignedTo,
		c.MailboxOwnerID,
		c.Category,
		c.IsDraft,
		c.IsArchived,
		c.IMAPUID,
		c.IMAPFolderName,
	).Scan(&c.ID, &c.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert communication: %w", err)
	}

	return nil
}

// SaveIMAPEmail stores an email fetched from a mailbox. It reports false when
// the (owner, folder, uid) triple is already stored.
func SaveIMAPEmail(ctx context.Context, pool *pgxpool.Pool, c *models.Communication, messageID string) (bool, error) {
	err := pool.QueryRow(ctx, `
		INSERT INTO communications (
			company_id,
			type,
			direction,
			status,
			from_address,
			from_name,
			to_address,
			to_name,
			subject,
			body,
			body_html,
			created_at,
			mailbox_owner_id,
			imap_uid,
			imap_folder_name,
			message_id_header
		) VALUES ($1, 'email', $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (mailbox_owner_id, imap_folder_name, imap_uid) WHERE imap_uid IS NOT NULL DO NOTHING
		RETURNING id::text, created_at
	`,
		c.CompanyID,
		string(c.Direction),
		string(c.Status),
		c.FromAddress,
		c.FromName,
		c.ToAddress,
		c.ToName,
		c.Subject,
		c.Body,
		c.BodyHTML,
		c.CreatedAt,
		c.MailboxOwnerID,
		c.IMAPUID,
		c.IMAPFolderName,
		messageID,
	).Scan(&c.ID, &c.CreatedAt)

	if errors.Is(err, pgx.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to save email: %w", err)
	}

	return true, nil
}

// SaveEmailContent stores the body of an email after it was fetched lazily.
func SaveEmailContent(ctx context.Context, pool *pgxpool.Pool, companyID, id string, content models.EmailContent) error {
	return execOne(ctx, pool, "save email content", `
		UPDATE communications SET body = $3, body_html = $4
		WHERE company_id = $1 AND id = $2
	`, companyID, id, content.Text, content.HTML)
}

// execOne runs a statement that must affect exactly one communication.
func execOne(ctx context.Context, pool *pgxpool.Pool, action, sql string, args ...any) error {
	tag, err := pool.Exec(ctx, sql, args...)
	if err != nil {
		return fmt.Errorf("failed to %s: %w", action, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrCommunicationNotFound
	}
	return nil
}

// ArchiveCommunication moves a communication to the archive.
func ArchiveCommunication(ctx context.Context, pool *pgxpool.Pool, companyID, id string) error {
	return execOne(ctx, pool, "archive communication", `
		UPDATE communications SET is_archived = TRUE
		WHERE company_id = $1 AND id = $2
	`, companyID, id)
}

// SetStarred adds or removes the starred tag. Removing the last tag leaves NULL.
func SetStarred(ctx context.Context, pool *pgxpool.Pool, companyID, id string, starred bool) error {
	sql := `
		UPDATE communications
		SET tags = NULLIF(array_remove(tags, $3), '{}')
		WHERE company_id = $1 AND id = $2
	`
	if starred {
		sql = `
			UPDATE communications
			SET tags = CASE
				WHEN $3 = ANY(COALESCE(tags, '{}')) THEN tags
				ELSE array_append(COALESCE(tags, '{}'), $3)
			END
			WHERE company_id = $1 AND id = $2
		`
	}
	return execOne(ctx, pool, "set starred", sql, companyID, id, models.StarredTag)
}

// ToggleSpam moves a communication into or out of spam and returns the new status.
func ToggleSpam(ctx context.Context, pool *pgxpool.Pool, companyID, id string) (models.Status, error) {
	var status models.Status
	err := pool.QueryRow(ctx, `
		UPDATE communications
		SET status = CASE WHEN status = 'spam' THEN 'read' ELSE 'spam' END
		WHERE company_id = $1 AND id = $2
		RETURNING status
	`, companyID, id).Scan(&status)

	if errors.Is(err, pgx.ErrNoRows) {
		return "", ErrCommunicationNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to toggle spam: %w", err)
	}

	return status, nil
}

// DeleteCommunications permanently removes communications of the company.
func DeleteCommunications(ctx context.Context, pool *pgxpool.Pool, companyID string, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := pool.Exec(ctx, `
		DELETE FROM communications WHERE company_id = $1 AND id = ANY($2::uuid[])
	`, companyID, ids); err != nil {
		return fmt.Errorf("failed to delete communications: %w", err)
	}
	return nil
}

// SetStatus overwrites the status of a communication.
func SetStatus(ctx context.Context, pool *pgxpool.Pool, companyID, id string, status models.Status) error {
	return execOne(ctx, pool, "set status", `
		UPDATE communications SET status = $3 WHERE company_id = $1 AND id = $2
	`, companyID, id, string(status))
}

// MarkRead marks an unread or new communication read. Already-read rows are left alone.
func MarkRead(ctx context.Context, pool *pgxpool.Pool, companyID, id string) error {
	if _, err := pool.Exec(ctx, `
		UPDATE communications SET status = 'read'
		WHERE company_id = $1 AND id = $2 AND status IN ('unread', 'new')
	`, companyID, id); err != nil {
		return fmt.Errorf("failed to mark read: %w", err)
	}
	return nil
}

// SaveInternalNotes stores the notes and returns who saved them and when.
func SaveInternalNotes(ctx context.Context, pool *pgxpool.Pool, companyID, id, notes, memberID string) (*models.NotesUpdate, error) {
	var update models.NotesUpdate
	err := pool.QueryRow(ctx, `
		UPDATE communications
		SET internal_notes = $3, notes_updated_at = now(), notes_updated_by = $4
		WHERE company_id = $1 AND id = $2
		RETURNING internal_notes, notes_updated_at, notes_updated_by::text
	`, companyID, id, notes, memberID).Scan(&update.Notes, &update.UpdatedAt, &update.UpdatedBy)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrCommunicationNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to save internal notes: %w", err)
	}

	return &update, nil
}

// Assign sets the responsible team member. A nil memberID unassigns.
func Assign(ctx context.Context, pool *pgxpool.Pool, companyID, id string, memberID *string) error {
	return execOne(ctx, pool, "assign communication", `
		UPDATE communications SET assigned_to = $3 WHERE company_id = $1 AND id = $2
	`, companyID, id, memberID)
}
