package api

import (
	"context"

	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/inbox"
)

// Retrier re-sends a failed outbound communication.
type Retrier interface {
	RetryFailedSend(ctx context.Context, companyID, id string) error
}

// mutations is the database store plus the outbound re-delivery path.
type mutations struct {
	*db.Store
	retrier Retrier
}

func (m mutations) RetryFailedSend(ctx context.Context, companyID, id string) error {
	return m.retrier.RetryFailedSend(ctx, companyID, id)
}

var _ inbox.Mutator = mutations{}

// NewCollaborators wires the production collaborators of every controller:
// lists, SMS and channels from the store, email bodies from the mailbox,
// retries through the outbound mailer and realtime inserts from the listener.
func NewCollaborators(store *db.Store, email inbox.EmailContentFetcher, retrier Retrier, realtime inbox.Subscriber) inbox.Collaborators {
	return inbox.Collaborators{
		List:      store,
		Email:     email,
		SMS:       store,
		Channels:  store,
		Mutations: mutations{Store: store, retrier: retrier},
		Realtime:  realtime,
	}
}
