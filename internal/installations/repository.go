// Package installations manages Slack workspace installations and the bot
// tokens they carry, including rotation-enrolled token refresh.
package installations

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var ErrInstallationNotFound = errors.New("installation not found")

// Installation is one connected Slack workspace.
type Installation struct {
	ID                uuid.UUID
	UserID            uuid.UUID
	TeamID            string
	TeamName          string
	BotToken          string
	RefreshToken      string
	TokenExpiresAt    *time.Time
	MonitoredChannels []string
}

// Repository provides data access for Slack installations.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new installations repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const installationColumns = `
	id, user_id, team_id, COALESCE(team_name, ''), bot_token,
	COALESCE(refresh_token, ''), token_expires_at, COALESCE(monitored_channels, '{}')
`

func scanInstallation(row pgx.Row) (Installation, error) {
	var inst Installation
	err := row.Scan(
		&inst.ID, &inst.UserID, &inst.TeamID, &inst.TeamName, &inst.BotToken,
		&inst.RefreshToken, &inst.TokenExpiresAt, &inst.MonitoredChannels,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Installation{}, ErrInstallationNotFound
	}
	return inst, err
}

// GetByTeamID returns the installation for a Slack workspace.
func (r *Repository) GetByTeamID(ctx context.Context, teamID string) (Installation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+installationColumns+`
		FROM slack_installations
		WHERE team_id = $1
	`, teamID)
	return scanInstallation(row)
}

// GetByUserID returns the tenant's installation.
func (r *Repository) GetByUserID(ctx context.Context, userID uuid.UUID) (Installation, error) {
	row := r.pool.QueryRow(ctx, `
		SELECT `+installationColumns+`
		FROM slack_installations
		WHERE user_id = $1
	`, userID)
	return scanInstallation(row)
}

// UpdateTokens persists a refreshed token pair.
func (r *Repository) UpdateTokens(ctx context.Context, id uuid.UUID, botToken, refreshToken string, expiresAt *time.Time) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE slack_installations
		SET bot_token = $2, refresh_token = $3, token_expires_at = $4, updated_at = now()
		WHERE id = $1
	`, id, botToken, refreshToken, expiresAt)
	return err
}
