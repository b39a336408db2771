package api

import (
	"bytes"
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/vdavid/fieldinbox/internal/auth"
	"github.com/vdavid/fieldinbox/internal/inbox"
	"github.com/vdavid/fieldinbox/internal/models"
)

// MemberFromRequest returns the authenticated team member and writes 401 when
// there is none. Returns (member, true) on success.
func MemberFromRequest(w http.ResponseWriter, r *http.Request) (*models.TeamMember, bool) {
	member, ok := auth.GetMemberFromContext(r.Context())
	if !ok {
		log.Println("API: No team member in context")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	return member, true
}

// ParsePaginationParams parses offset and limit from query parameters.
// Missing or invalid values fall back to offset 0 and defaultLimit; limit is
// capped at maxLimit.
func ParsePaginationParams(r *http.Request, defaultLimit, maxLimit int) inbox.Page {
	page := inbox.Page{Limit: defaultLimit}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if parsed, err := strconv.Atoi(offsetStr); err == nil && parsed >= 0 {
			page.Offset = parsed
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if parsed, err := strconv.Atoi(limitStr); err == nil && parsed > 0 {
			page.Limit = parsed
		}
	}
	if page.Limit > maxLimit {
		page.Limit = maxLimit
	}

	return page
}

// writeJSON encodes v to a buffer first so a failed encode never leaves a
// partial body behind.
func writeJSON(w http.ResponseWriter, status int, v any) {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(v); err != nil {
		log.Printf("API: Failed to encode response: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err := w.Write(buf.Bytes()); err != nil {
		log.Printf("API: Failed to write response: %v", err)
	}
}
