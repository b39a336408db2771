package inbox

import (
	"context"

	"github.com/vdavid/fieldinbox/internal/models"
)

// PageSize is the fixed number of communications requested per list fetch.
const PageSize = 50

// Page selects a window of results.
type Page struct {
	Limit  int
	Offset int
}

// ListQuery is what the controller asks the list collaborator for.
type ListQuery struct {
	Descriptor Descriptor
	Page       Page
	SortField  string
	SortDesc   bool
}

// ListQuerier returns the communications matching a resolved filter.
type ListQuerier interface {
	ListCommunications(ctx context.Context, companyID string, q ListQuery) ([]*models.Communication, error)
}

// EmailContentFetcher returns the full body of an email.
type EmailContentFetcher interface {
	FetchEmailContent(ctx context.Context, companyID, communicationID string) (*models.EmailContent, error)
}

// SMSConversationFetcher returns the ordered conversation with a phone number.
type SMSConversationFetcher interface {
	FetchSMSConversation(ctx context.Context, companyID, phone string) ([]models.SMSMessage, error)
}

// ChannelFetcher reads team-channel messages.
type ChannelFetcher interface {
	// FetchChannelMessages returns the messages of a channel, oldest first.
	FetchChannelMessages(ctx context.Context, companyID, channelID, viewerID string, page Page, search string) ([]models.ChannelMessage, error)

	// FetchChannelMessage returns a single message with its sender identity.
	FetchChannelMessage(ctx context.Context, companyID, messageID, viewerID string) (*models.ChannelMessage, error)
}

// Mutator performs the remote side of every user action.
type Mutator interface {
	Archive(ctx context.Context, companyID, id string) error
	ToggleStar(ctx context.Context, companyID, id string, starred bool) error
	// ToggleSpam flips the spam state and returns the resulting status.
	ToggleSpam(ctx context.Context, companyID, id string) (models.Status, error)
	DeleteCommunications(ctx context.Context, companyID string, ids []string) error
	RetryFailedSend(ctx context.Context, companyID, id string) error
	MarkRead(ctx context.Context, companyID string, commType models.CommunicationType, id string) error
	MarkConversationRead(ctx context.Context, companyID, phone string) error
	MarkChannelRead(ctx context.Context, companyID, channelID, memberID string) error
	SaveInternalNotes(ctx context.Context, companyID, id, notes, memberID string) (*models.NotesUpdate, error)
	Assign(ctx context.Context, companyID, id string, memberID *string) error
	SendSMS(ctx context.Context, companyID, memberID string, req models.SendSMSRequest) (*models.SMSMessage, error)
	SendChannelMessage(ctx context.Context, companyID, channelID, memberID, body string) (*models.ChannelMessage, error)
}

// Subscriber opens realtime row-insert subscriptions. The only server-side
// predicate it supports is equality on the company id.
type Subscriber interface {
	Subscribe(companyID, name, table string, handler func(models.RowInsert)) (Subscription, error)
}

// Subscription is an open realtime subscription.
type Subscription interface {
	Close() error
}

// Collaborators groups everything the controller talks to.
type Collaborators struct {
	List      ListQuerier
	Email     EmailContentFetcher
	SMS       SMSConversationFetcher
	Channels  ChannelFetcher
	Mutations Mutator
	Realtime  Subscriber
}

// Identity is the company and team member a controller acts for.
type Identity struct {
	CompanyID    string
	TeamMemberID string
}
