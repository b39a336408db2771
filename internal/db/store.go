package db

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

// Store exposes the database functions as the inbox controller's collaborators.
// Retrying a failed send needs a transport and lives elsewhere.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a Store that uses the given database pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var (
	_ inbox.ListQuerier            = (*Store)(nil)
	_ inbox.SMSConversationFetcher = (*Store)(nil)
	_ inbox.ChannelFetcher         = (*Store)(nil)
)

func (s *Store) ListCommunications(ctx context.Context, companyID string, q inbox.ListQuery) ([]*models.Communication, error) {
	return ListCommunications(ctx, s.pool, companyID, q)
}

func (s *Store) FetchSMSConversation(ctx context.Context, companyID, phone string) ([]models.SMSMessage, error) {
	return GetSMSConversation(ctx, s.pool, companyID, inbox.NormalizePhone(phone))
}

func (s *Store) FetchChannelMessages(ctx context.Context, companyID, channelID, viewerID string, page inbox.Page, search string) ([]models.ChannelMessage, error) {
	return ListChannelMessages(ctx, s.pool, companyID, channelID, viewerID, page, search)
}

func (s *Store) FetchChannelMessage(ctx context.Context, companyID, messageID, viewerID string) (*models.ChannelMessage, error) {
	return GetChannelMessage(ctx, s.pool, companyID, messageID, viewerID)
}

func (s *Store) Archive(ctx context.Context, companyID, id string) error {
	return ArchiveCommunication(ctx, s.pool, companyID, id)
}

func (s *Store) ToggleStar(ctx context.Context, companyID, id string, starred bool) error {
	return SetStarred(ctx, s.pool, companyID, id, starred)
}

func (s *Store) ToggleSpam(ctx context.Context, companyID, id string) (models.Status, error) {
	return ToggleSpam(ctx, s.pool, companyID, id)
}

func (s *Store) DeleteCommunications(ctx context.Context, companyID string, ids []string) error {
	return DeleteCommunications(ctx, s.pool, companyID, ids)
}

// MarkRead marks a single communication read. The type is accepted for
// callers that route read receipts per channel; all types share one table.
func (s *Store) MarkRead(ctx context.Context, companyID string, _ models.CommunicationType, id string) error {
	return MarkRead(ctx, s.pool, companyID, id)
}

func (s *Store) MarkConversationRead(ctx context.Context, companyID, phone string) error {
	return MarkConversationRead(ctx, s.pool, companyID, inbox.NormalizePhone(phone))
}

func (s *Store) MarkChannelRead(ctx context.Context, companyID, channelID, memberID string) error {
	return MarkChannelRead(ctx, s.pool, companyID, channelID, memberID)
}

func (s *Store) SaveInternalNotes(ctx context.Context, companyID, id, notes, memberID string) (*models.NotesUpdate, error) {
	return SaveInternalNotes(ctx, s.pool, companyID, id, notes, memberID)
}

func (s *Store) Assign(ctx context.Context, companyID, id string, memberID *string) error {
	return Assign(ctx, s.pool, companyID, id, memberID)
}

// SendSMS records the outbound message. Delivery to a carrier is out of scope;
// the row is what the inbox shows.
func (s *Store) SendSMS(ctx context.Context, companyID, memberID string, req models.SendSMSRequest) (*models.SMSMessage, error) {
	req.To = inbox.NormalizePhone(req.To)
	return InsertOutboundSMS(ctx, s.pool, companyID, memberID, req)
}

// SendChannelMessage posts body and returns the stored message as the sender sees it.
func (s *Store) SendChannelMessage(ctx context.Context, companyID, channelID, memberID, body string) (*models.ChannelMessage, error) {
	id, err := InsertChannelMessage(ctx, s.pool, companyID, channelID, memberID, body, nil)
	if err != nil {
		return nil, err
	}
	return GetChannelMessage(ctx, s.pool, companyID, id, memberID)
}
