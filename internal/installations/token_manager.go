package installations

import (
	"context"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/singleflight"

	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

// expiryBuffer is how long before the recorded expiry a token is already
// treated as expired, so a refresh lands before Slack starts rejecting it.
const expiryBuffer = 5 * time.Minute

// InstallationStore is the subset of the repository the token manager needs.
type InstallationStore interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (Installation, error)
	UpdateTokens(ctx context.Context, id uuid.UUID, botToken, refreshToken string, expiresAt *time.Time) error
}

// TokenRefresher exchanges a refresh token for a new token pair.
type TokenRefresher interface {
	Refresh(ctx context.Context, refreshToken string) (slack.RefreshedToken, error)
}

// TokenManager hands out usable bot tokens. Installations without a refresh
// token are static; rotation-enrolled ones are refreshed ahead of expiry.
// A refresh that fails falls back to the stored token: a possibly stale
// token that Slack may still accept beats a guaranteed failure.
type TokenManager struct {
	store          InstallationStore
	refresher      TokenRefresher
	log            *logger.Logger
	refreshTimeout time.Duration
	now            func() time.Time
	group          singleflight.Group
}

// NewTokenManager creates a token manager.
func NewTokenManager(store InstallationStore, refresher TokenRefresher, refreshTimeout time.Duration, log *logger.Logger) *TokenManager {
	if refreshTimeout <= 0 {
		refreshTimeout = 10 * time.Second
	}
	return &TokenManager{
		store:          store,
		refresher:      refresher,
		log:            log,
		refreshTimeout: refreshTimeout,
		now:            time.Now,
	}
}

// BotToken returns a bot token for the tenant's installation, refreshing it
// first when rotation is enabled and the stored token is at or near expiry.
// Concurrent callers for the same tenant share one refresh.
func (m *TokenManager) BotToken(ctx context.Context, userID uuid.UUID) (string, error) {
	inst, err := m.store.GetByUserID(ctx, userID)
	if err != nil {
		return "", err
	}

	// Static token: not enrolled in rotation.
	if inst.RefreshToken == "" {
		return inst.BotToken, nil
	}

	if inst.TokenExpiresAt != nil && m.now().Before(inst.TokenExpiresAt.Add(-expiryBuffer)) {
		return inst.BotToken, nil
	}

	token, _, _ := m.group.Do(userID.String(), func() (interface{}, error) {
		return m.refresh(ctx, inst), nil
	})
	return token.(string), nil
}

// refresh attempts a token refresh and returns the token to use. Any failure
// is logged and the stored token is returned instead.
func (m *TokenManager) refresh(ctx context.Context, inst Installation) string {
	refreshCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), m.refreshTimeout)
	defer cancel()

	refreshed, err := m.refresher.Refresh(refreshCtx, inst.RefreshToken)
	if err != nil {
		m.log.Warn("token refresh failed, using stored token",
			"team_id", inst.TeamID, "error", err.Error())
		return inst.BotToken
	}

	if err := m.store.UpdateTokens(refreshCtx, inst.ID, refreshed.AccessToken, refreshed.RefreshToken, refreshed.ExpiresAt); err != nil {
		m.log.DatabaseError("update slack tokens", err)
	}
	return refreshed.AccessToken
}
