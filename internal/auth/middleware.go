package auth

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/db"
	"github.com/vdavid/fieldinbox/internal/models"
)

type contextKey string

// MemberKey is the context key used to store the authenticated team member.
const MemberKey contextKey = "team_member"

// ErrNoToken is returned when a request carries no bearer token.
var ErrNoToken = errors.New("no bearer token")

// Resolver looks up the team member owning an API token. It returns
// db.ErrTeamMemberNotFound for unknown tokens.
type Resolver func(ctx context.Context, token string) (*models.TeamMember, error)

// DBResolver resolves tokens against the team_members table.
func DBResolver(pool *pgxpool.Pool) Resolver {
	return func(ctx context.Context, token string) (*models.TeamMember, error) {
		return db.GetTeamMemberByToken(ctx, pool, token)
	}
}

// RequireAuth checks for a valid bearer token in the Authorization header and
// stores the team member in the request context. Unknown tokens get 401.
func RequireAuth(resolve Resolver, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, err := BearerToken(r.Header.Get("Authorization"))
		if err != nil {
			log.Printf("Auth: %v", err)
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		member, ok := Authenticate(w, r, resolve, token)
		if !ok {
			return
		}

		next.ServeHTTP(w, r.WithContext(WithMember(r.Context(), member)))
	})
}

// Authenticate resolves token and writes the HTTP error itself when that fails.
func Authenticate(w http.ResponseWriter, r *http.Request, resolve Resolver, token string) (*models.TeamMember, bool) {
	member, err := resolve(r.Context(), token)
	if errors.Is(err, db.ErrTeamMemberNotFound) {
		log.Println("Auth: Unknown token")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return nil, false
	}
	if err != nil {
		log.Printf("Auth: Failed to resolve token: %v", err)
		http.Error(w, "Internal server error", http.StatusInternalServerError)
		return nil, false
	}
	return member, true
}

// BearerToken parses an Authorization header of the form "Bearer <token>".
// The scheme is case-insensitive (RFC 7235).
func BearerToken(header string) (string, error) {
	if header == "" {
		return "", ErrNoToken
	}

	fields := strings.Fields(header)
	if len(fields) < 2 || !strings.EqualFold(fields[0], "Bearer") {
		return "", errors.New("invalid Authorization header format")
	}

	token := strings.TrimSpace(strings.Join(fields[1:], " "))
	if token == "" {
		return "", ErrNoToken
	}
	return token, nil
}

// RequestToken returns the token of a websocket upgrade request. Browsers
// cannot set headers on websocket connections, so ?token= is read first and the
// Authorization header second.
func RequestToken(r *http.Request) (string, error) {
	if token := strings.TrimSpace(r.URL.Query().Get("token")); token != "" {
		return token, nil
	}
	return BearerToken(r.Header.Get("Authorization"))
}

// WithMember returns ctx carrying member.
func WithMember(ctx context.Context, member *models.TeamMember) context.Context {
	return context.WithValue(ctx, MemberKey, member)
}

// GetMemberFromContext returns the authenticated team member.
func GetMemberFromContext(ctx context.Context) (*models.TeamMember, bool) {
	member, ok := ctx.Value(MemberKey).(*models.TeamMember)
	return member, ok && member != nil
}
