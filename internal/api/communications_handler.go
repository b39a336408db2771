package api

import (
	"log"
	"net/http"

	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

// maxPageSize caps the limit a REST client may ask for.
const maxPageSize = 200

// CommunicationsHandler serves the communication list over plain HTTP, for
// clients that do not hold a websocket session.
type CommunicationsHandler struct {
	list inbox.ListQuerier
}

// NewCommunicationsHandler creates a new CommunicationsHandler instance.
func NewCommunicationsHandler(list inbox.ListQuerier) *CommunicationsHandler {
	return &CommunicationsHandler{list: list}
}

// GetCommunications returns one page of the list selected by the inbox
// location parameters (inbox, folder, category, assigned, type, q).
func (h *CommunicationsHandler) GetCommunications(w http.ResponseWriter, r *http.Request) {
	member, ok := MemberFromRequest(w, r)
	if !ok {
		return
	}

	nav := inbox.ParseNavigation(r.URL.Query())
	page := ParsePaginationParams(r, inbox.PageSize, maxPageSize)

	items, err := h.list.ListCommunications(r.Context(), member.CompanyID, inbox.ListQuery{
		Descriptor: inbox.Resolve(nav.Filter, member.ID),
		Page:       page,
		SortField:  "created_at",
		SortDesc:   true,
	})
	if err != nil {
		log.Printf("CommunicationsHandler: Failed to list communications: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	items = inbox.ExcludeTeamMessages(items)
	if items == nil {
		items = []*models.Communication{}
	}

	writeJSON(w, http.StatusOK, models.CommunicationsResponse{
		Communications: items,
		Pagination: models.PaginationInfo{
			Offset:  page.Offset,
			PerPage: page.Limit,
		},
	})
}
