package inbox_test

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/mock"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil/mocks"
)

const (
	testCompanyID = "company-1"
	testMemberID  = "member-1"
)

var baseTime = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type harness struct {
	list     *mocks.ListQuerier
	email    *mocks.EmailContentFetcher
	sms      *mocks.SMSConversationFetcher
	channels *mocks.ChannelFetcher
	mut      *mocks.Mutator
	rt       *mocks.Subscriber
	ctrl     *inbox.Controller

	mu     sync.Mutex
	events []inbox.Event
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{
		list:     mocks.NewListQuerier(t),
		email:    mocks.NewEmailContentFetcher(t),
		sms:      mocks.NewSMSConversationFetcher(t),
		channels: mocks.NewChannelFetcher(t),
		mut:      mocks.NewMutator(t),
		rt:       mocks.NewSubscriber(t),
	}
	h.ctrl = inbox.New(
		inbox.Identity{CompanyID: testCompanyID, TeamMemberID: testMemberID},
		inbox.Collaborators{
			List:      h.list,
			Email:     h.email,
			SMS:       h.sms,
			Channels:  h.channels,
			Mutations: h.mut,
			Realtime:  h.rt,
		},
		inbox.Options{Now: func() time.Time { return baseTime }},
	)
	h.ctrl.Subscribe(func(ev inbox.Event) {
		h.mu.Lock()
		h.events = append(h.events, ev)
		h.mu.Unlock()
	})
	t.Cleanup(h.ctrl.Wait)
	return h
}

// notices returns the notices emitted so far.
func (h *harness) notices() []inbox.Notice {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []inbox.Notice
	for _, ev := range h.events {
		if ev.Kind == inbox.EventNotice && ev.Notice != nil {
			out = append(out, *ev.Notice)
		}
	}
	return out
}

func (h *harness) countEvents(kind inbox.EventKind) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, ev := range h.events {
		if ev.Kind == kind {
			n++
		}
	}
	return n
}

// load makes the controller fetch items as its first list.
func (h *harness) load(t *testing.T, items ...*models.Communication) {
	t.Helper()
	h.list.On("ListCommunications", mock.Anything, testCompanyID, mock.Anything).
		Return(items, nil).Once()
	if err := h.ctrl.Refresh(context.Background()); err != nil {
		t.Fatalf("Failed to load list: %v", err)
	}
}

func email(id string, age time.Duration) *models.Communication {
	return &models.Communication{
		ID:          id,
		CompanyID:   testCompanyID,
		Type:        models.TypeEmail,
		Direction:   models.DirectionInbound,
		Status:      models.StatusRead,
		FromAddress: id + "@example.com",
		ToAddress:   "office@example.com",
		Subject:     "Subject " + id,
		CreatedAt:   baseTime.Add(-age),
	}
}

func ids(items []*models.Communication) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		out = append(out, item.ID)
	}
	return out
}

func formatMillis(ts time.Time) string {
	return strconv.FormatInt(ts.UnixMilli(), 10)
}
