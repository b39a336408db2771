package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil/mocks"
)

func TestCommunicationsHandler_GetCommunications(t *testing.T) {
	t.Run("returns 401 without a member", func(t *testing.T) {
		handler := NewCommunicationsHandler(mocks.NewListQuerier(t))
		verifyAuthCheck(t, handler.GetCommunications, http.MethodGet, "/api/v1/communications")
	})

	t.Run("resolves the location into a query and hides team messages", func(t *testing.T) {
		list := mocks.NewListQuerier(t)
		handler := NewCommunicationsHandler(list)

		list.On("ListCommunications", mock.Anything, "acme", mock.MatchedBy(func(q inbox.ListQuery) bool {
			d := q.Descriptor
			return d.Category == "billing" &&
				d.MailboxOwnerID == "" &&
				d.Type == models.TypeSMS &&
				d.AssignedTo == "member-1" &&
				q.Page == inbox.Page{Limit: 10, Offset: 20} &&
				q.SortDesc
		})).Return([]*models.Communication{
			{ID: "sms-1", Type: models.TypeSMS, CreatedAt: time.Now()},
			{ID: "team-1", Type: models.TypeTeam, ToAddress: models.ChannelAddressPrefix + "general"},
		}, nil).Once()

		rr := httptest.NewRecorder()
		url := "/api/v1/communications?inbox=company&category=billing&type=sms&assigned=me&offset=20&limit=10"
		handler.GetCommunications(rr, requestAs(http.MethodGet, url, alice, nil))
		require.Equal(t, http.StatusOK, rr.Code)

		var response models.CommunicationsResponse
		require.NoError(t, json.NewDecoder(rr.Body).Decode(&response))
		require.Len(t, response.Communications, 1)
		assert.Equal(t, "sms-1", response.Communications[0].ID)
		assert.Equal(t, models.PaginationInfo{Offset: 20, PerPage: 10}, response.Pagination)
	})

	t.Run("caps the page size and returns an empty array", func(t *testing.T) {
		list := mocks.NewListQuerier(t)
		handler := NewCommunicationsHandler(list)

		list.On("ListCommunications", mock.Anything, "acme", mock.MatchedBy(func(q inbox.ListQuery) bool {
			return q.Page.Limit == maxPageSize
		})).Return(nil, nil).Once()

		rr := httptest.NewRecorder()
		handler.GetCommunications(rr, requestAs(http.MethodGet, "/api/v1/communications?limit=5000", alice, nil))
		require.Equal(t, http.StatusOK, rr.Code)
		assert.JSONEq(t, `{"communications":[],"pagination":{"offset":0,"per_page":200}}`, rr.Body.String())
	})

	t.Run("returns 500 when the query fails", func(t *testing.T) {
		list := mocks.NewListQuerier(t)
		handler := NewCommunicationsHandler(list)
		list.On("ListCommunications", mock.Anything, "acme", mock.Anything).Return(nil, errors.New("db down")).Once()

		rr := httptest.NewRecorder()
		handler.GetCommunications(rr, requestAs(http.MethodGet, "/api/v1/communications", alice, nil))
		assert.Equal(t, http.StatusInternalServerError, rr.Code)
	})
}

type recordingRetrier struct {
	calls []string
}

func (r *recordingRetrier) RetryFailedSend(_ context.Context, companyID, id string) error {
	r.calls = append(r.calls, companyID+"/"+id)
	return nil
}

func TestNewCollaborators_RoutesRetryToTheMailer(t *testing.T) {
	retrier := &recordingRetrier{}
	deps := NewCollaborators(nil, nil, retrier, nil)

	require.NoError(t, deps.Mutations.RetryFailedSend(context.Background(), "acme", "c9"))
	assert.Equal(t, []string{"acme/c9"}, retrier.calls)
}
