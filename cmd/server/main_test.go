package main

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vdavid/fieldinbox/internal/config"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
	"github.com/vdavid/fieldinbox/internal/testutil"
)

func TestHandleRoot(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	w := httptest.NewRecorder()

	handleRoot(w, req)

	res := w.Result()
	defer func() { _ = res.Body.Close() }()

	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/plain", res.Header.Get("Content-Type"))

	body, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "Field Inbox API is running", string(body))
}

func TestNewApp(t *testing.T) {
	pool := testutil.NewTestDB(t)
	cfg := &config.Config{
		Environment:             "test",
		EncryptionKeyBase64:     testutil.TestEncryptionKey,
		MaxConnectionsPerMember: 5,
	}

	a, err := newApp(cfg, pool, prometheus.NewRegistry())
	require.NoError(t, err)
	t.Cleanup(a.imap.Close)

	server := httptest.NewServer(a.handler)
	t.Cleanup(server.Close)

	member := &models.TeamMember{CompanyID: "acme", Name: "Alice", Email: "alice@acme.test"}
	require.NoError(t, db.CreateTeamMember(context.Background(), pool, member, "secret-token"))

	get := func(t *testing.T, path, token string) *http.Response {
		t.Helper()
		req, err := http.NewRequest(http.MethodGet, server.URL+path, nil)
		require.NoError(t, err)
		if token != "" {
			req.Header.Set("Authorization", "Bearer "+token)
		}
		resp, err := http.DefaultClient.Do(req)
		require.NoError(t, err)
		t.Cleanup(func() { _ = resp.Body.Close() })
		return resp
	}

	t.Run("exposes metrics", func(t *testing.T) {
		resp := get(t, "/metrics", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), "go_goroutines")
	})

	t.Run("requires a token for the API", func(t *testing.T) {
		assert.Equal(t, http.StatusUnauthorized, get(t, "/api/v1/communications", "").StatusCode)
		assert.Equal(t, http.StatusUnauthorized, get(t, "/api/v1/communications", "wrong").StatusCode)
	})

	t.Run("serves the list to a known member", func(t *testing.T) {
		resp := get(t, "/api/v1/communications?folder=inbox", "secret-token")
		assert.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	})

	t.Run("reports setup as incomplete before a mailbox exists", func(t *testing.T) {
		resp := get(t, "/api/v1/auth/status", "secret-token")
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Contains(t, string(body), `"is_setup_complete":false`)
	})
}
