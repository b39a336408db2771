package auth

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
)

func stubResolver(tokens map[string]*models.TeamMember) Resolver {
	return func(ctx context.Context, token string) (*models.TeamMember, error) {
		if token == "broken" {
			return nil, errors.New("connection refused")
		}
		member, ok := tokens[token]
		if !ok {
			return nil, db.ErrTeamMemberNotFound
		}
		return member, nil
	}
}

func TestRequireAuth(t *testing.T) {
	alice := &models.TeamMember{ID: "member-1", CompanyID: "acme", Name: "Alice"}
	resolve := stubResolver(map[string]*models.TeamMember{"valid_token_12345": alice})

	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		member, ok := GetMemberFromContext(r.Context())
		if !ok {
			t.Error("Expected team member in context")
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(member.ID))
	})
	authHandler := RequireAuth(resolve, handler)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"allows request with valid Bearer token", "Bearer valid_token_12345", http.StatusOK},
		{"accepts a lowercase scheme", "bearer valid_token_12345", http.StatusOK},
		{"rejects request without Authorization header", "", http.StatusUnauthorized},
		{"rejects invalid Authorization format", "InvalidFormat", http.StatusUnauthorized},
		{"rejects wrong auth scheme", "Basic abcd_abcd_abcd", http.StatusUnauthorized},
		{"rejects empty token", "Bearer ", http.StatusUnauthorized},
		{"rejects unknown token", "Bearer nope", http.StatusUnauthorized},
		{"fails when the lookup fails", "Bearer broken", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}

			rr := httptest.NewRecorder()
			authHandler.ServeHTTP(rr, req)

			assert.Equal(t, tt.want, rr.Code)
			if tt.want == http.StatusOK {
				assert.Equal(t, "member-1", rr.Body.String())
			}
		})
	}
}

func TestRequestToken(t *testing.T) {
	t.Run("prefers the query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws?token=from-query", nil)
		req.Header.Set("Authorization", "Bearer from-header")

		token, err := RequestToken(req)
		require.NoError(t, err)
		assert.Equal(t, "from-query", token)
	})

	t.Run("falls back to the Authorization header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)
		req.Header.Set("Authorization", "Bearer from-header")

		token, err := RequestToken(req)
		require.NoError(t, err)
		assert.Equal(t, "from-header", token)
	})

	t.Run("errors without any token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/ws", nil)

		_, err := RequestToken(req)
		assert.ErrorIs(t, err, ErrNoToken)
	})
}

func TestGetMemberFromContext(t *testing.T) {
	t.Run("returns the member when present", func(t *testing.T) {
		member := &models.TeamMember{ID: "member-1"}
		got, ok := GetMemberFromContext(WithMember(context.Background(), member))
		assert.True(t, ok)
		assert.Same(t, member, got)
	})

	t.Run("returns false when not present", func(t *testing.T) {
		got, ok := GetMemberFromContext(context.Background())
		assert.False(t, ok)
		assert.Nil(t, got)
	})
}
