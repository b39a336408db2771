package api

import (
	"errors"
	"log"
	"net/http"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
)

// AuthStatusResponse tells the browser who it is signed in as and whether the
// member still has to set up a mailbox.
type AuthStatusResponse struct {
	Member          *models.TeamMember `json:"member"`
	IsSetupComplete bool               `json:"is_setup_complete"`
}

type AuthHandler struct {
	pool *pgxpool.Pool
}

func NewAuthHandler(pool *pgxpool.Pool) *AuthHandler {
	return &AuthHandler{pool: pool}
}

func (h *AuthHandler) GetAuthStatus(w http.ResponseWriter, r *http.Request) {
	member, ok := MemberFromRequest(w, r)
	if !ok {
		return
	}

	_, err := db.GetMailbox(r.Context(), h.pool, member.ID)
	if err != nil && !errors.Is(err, db.ErrMailboxNotFound) {
		log.Printf("AuthHandler: Failed to check setup status: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, AuthStatusResponse{
		Member:          member,
		IsSetupComplete: err == nil,
	})
}
