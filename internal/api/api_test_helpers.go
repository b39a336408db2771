package api

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/auth"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
)

// createTestMember inserts a team member of company acme.
func createTestMember(t *testing.T, pool *pgxpool.Pool, name string) *models.TeamMember {
	t.Helper()

	member := &models.TeamMember{
		CompanyID: "acme",
		Name:      name,
		Email:     name + "@acme.test",
	}
	require.NoError(t, db.CreateTeamMember(context.Background(), pool, member, ""))
	return member
}

// requestAs creates a request with member authenticated in its context.
func requestAs(method, url string, member *models.TeamMember, body io.Reader) *http.Request {
	req := httptest.NewRequest(method, url, body)
	return req.WithContext(auth.WithMember(req.Context(), member))
}

// verifyAuthCheck checks that the handler returns 401 when no member is in context.
func verifyAuthCheck(t *testing.T, handlerFunc http.HandlerFunc, method, url string) {
	t.Helper()
	req := httptest.NewRequest(method, url, nil)
	rr := httptest.NewRecorder()
	handlerFunc(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code, "Expected status 401 when no team member in context")
}
