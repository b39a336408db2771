package db

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vdavid/fieldinbox/internal/models"
)

// ErrTeamMemberNotFound is returned when no team member matches.
var ErrTeamMemberNotFound = errors.New("team member not found")

// CreateTeamMember inserts a team member. A non-empty apiToken lets the member
// authenticate with it.
func CreateTeamMember(ctx context.Context, pool *pgxpool.Pool, member *models.TeamMember, apiToken string) error {
	var token *string
	if apiToken != "" {
		token = &apiToken
	}

	err := pool.QueryRow(ctx, `
		INSERT INTO team_members (company_id, name, email, avatar_url, api_token)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id::text, created_at
	`, member.CompanyID, member.Name, member.Email, member.AvatarURL, token).Scan(&member.ID, &member.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create team member: %w", err)
	}

	return nil
}

// GetTeamMemberByToken returns the team member owning apiToken.
func GetTeamMemberByToken(ctx context.Context, pool *pgxpool.Pool, apiToken string) (*models.TeamMember, error) {
	return getTeamMember(ctx, pool, `WHERE api_token = $1`, apiToken)
}

// GetTeamMember returns a team member by id.
func GetTeamMember(ctx context.Context, pool *pgxpool.Pool, id string) (*models.TeamMember, error) {
	return getTeamMember(ctx, pool, `WHERE id = $1`, id)
}

func getTeamMember(ctx context.Context, pool *pgxpool.Pool, where string, arg any) (*models.TeamMember, error) {
	var member models.TeamMember
	err := pool.QueryRow(ctx, `
		SELECT id::text, company_id, name, email, avatar_url, created_at
		FROM team_members
		`+where, arg).Scan(
		&member.ID,
		&member.CompanyID,
		&member.Name,
		&member.Email,
		&member.AvatarURL,
		&member.CreatedAt,
	)

	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrTeamMemberNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get team member: %w", err)
	}

	return &member, nil
}
