// Package profiles provides data access for tenant profiles and their
// inbound email addresses. Usage counters are mutated only through atomic
// increment statements; the core never read-modifies-writes them.
package profiles

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	ErrProfileNotFound = errors.New("profile not found")
	ErrAddressNotFound = errors.New("inbound address not found")
)

// Profile is the tenant's scoring configuration and subscription snapshot.
type Profile struct {
	ID                   uuid.UUID
	Niche                string
	Tone                 string
	BookingLink          string
	BusinessName         string
	CustomInstructions   string
	SubscriptionStatus   string
	TrialEndsAt          *time.Time
	LeadsUsedThisMonth   int
	PlanLeadLimit        int
	RepliesSentThisMonth int
}

// Repository provides data access for tenant profiles.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new profiles repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// GetByID returns the profile for a tenant.
func (r *Repository) GetByID(ctx context.Context, userID uuid.UUID) (Profile, error) {
	var p Profile
	err := r.pool.QueryRow(ctx, `
		SELECT id, COALESCE(niche, ''), COALESCE(tone, ''), COALESCE(booking_link, ''),
		       COALESCE(business_name, ''), COALESCE(custom_instructions, ''),
		       subscription_status, trial_ends_at,
		       leads_used_this_month, plan_lead_limit, replies_sent_this_month
		FROM profiles
		WHERE id = $1
	`, userID).Scan(
		&p.ID, &p.Niche, &p.Tone, &p.BookingLink, &p.BusinessName, &p.CustomInstructions,
		&p.SubscriptionStatus, &p.TrialEndsAt,
		&p.LeadsUsedThisMonth, &p.PlanLeadLimit, &p.RepliesSentThisMonth,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return Profile{}, ErrProfileNotFound
	}
	return p, err
}

// ResolveInboundAddress maps an inbound email address to its tenant.
// Inactive addresses resolve to ErrAddressNotFound.
func (r *Repository) ResolveInboundAddress(ctx context.Context, address string) (uuid.UUID, error) {
	var userID uuid.UUID
	err := r.pool.QueryRow(ctx, `
		SELECT user_id
		FROM email_addresses
		WHERE inbound_address = $1 AND is_active = true
	`, address).Scan(&userID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, ErrAddressNotFound
	}
	return userID, err
}

// HasActiveAddress reports whether the tenant has an active inbound email
// address configured.
func (r *Repository) HasActiveAddress(ctx context.Context, userID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM email_addresses WHERE user_id = $1 AND is_active = true
		)
	`, userID).Scan(&exists)
	return exists, err
}

// IncrementLeadsUsed bumps the monthly lead counter by one, atomically.
func (r *Repository) IncrementLeadsUsed(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET leads_used_this_month = leads_used_this_month + 1, updated_at = now()
		WHERE id = $1
	`, userID)
	return err
}

// IncrementRepliesSent bumps the monthly reply counter by one, atomically.
func (r *Repository) IncrementRepliesSent(ctx context.Context, userID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE profiles
		SET replies_sent_this_month = replies_sent_this_month + 1, updated_at = now()
		WHERE id = $1
	`, userID)
	return err
}
