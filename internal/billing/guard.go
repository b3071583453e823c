package billing

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/google/uuid"

	"adecis_backend/internal/profiles"
)

// warningThreshold is the usage percentage at which the soft warning fires.
const warningThreshold = 80

// Usage is the quota snapshot attached to a decision.
type Usage struct {
	Used       int `json:"used"`
	Limit      int `json:"limit"`
	Percentage int `json:"percentage,omitempty"`
}

// Decision is the outcome of a quota check. Reason and Warning are
// user-facing strings, rendered verbatim in notifications and API errors.
type Decision struct {
	Allowed bool
	Reason  string
	Warning string
	Usage   *Usage
}

// ProfileStore is the subset of the profiles repository the guard reads.
type ProfileStore interface {
	GetByID(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
}

// Guard answers the two admission questions: may this tenant score another
// lead, and may they send another reply. Checks are read-only snapshots;
// the reply claim downstream is the real serialization point, so a stale
// read here can at worst admit one extra attempt that the claim rejects.
type Guard struct {
	store ProfileStore
	now   func() time.Time
}

// NewGuard creates a quota guard.
func NewGuard(store ProfileStore) *Guard {
	return &Guard{store: store, now: time.Now}
}

// subscriptionDenial runs the checks shared by both quota questions.
// An empty string means the subscription itself is fine.
func (g *Guard) subscriptionDenial(p profiles.Profile, trialEndedReason string) string {
	if p.SubscriptionStatus == "trialing" {
		if p.TrialEndsAt != nil && p.TrialEndsAt.Before(g.now()) {
			return trialEndedReason
		}
		return ""
	}
	if p.SubscriptionStatus != "active" {
		return "Subscription inactive. Upgrade to continue."
	}
	return ""
}

// CanProcessLead decides whether another inbound message may be scored.
func (g *Guard) CanProcessLead(ctx context.Context, userID uuid.UUID) (Decision, error) {
	p, err := g.store.GetByID(ctx, userID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return Decision{Allowed: false, Reason: "User not found"}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	if reason := g.subscriptionDenial(p, "Your free trial has ended. Upgrade to keep scoring leads."); reason != "" {
		return Decision{Allowed: false, Reason: reason}, nil
	}

	used := p.LeadsUsedThisMonth
	limit := p.PlanLeadLimit
	if limit <= 0 {
		limit = planFor(p.SubscriptionStatus).LeadLimit
	}
	percentage := int(math.Round(float64(used) / float64(limit) * 100))
	usage := &Usage{Used: used, Limit: limit, Percentage: percentage}

	if used >= limit {
		return Decision{
			Allowed: false,
			Reason:  fmt.Sprintf("You've used all %d leads this month. Resets next month or upgrade for more.", limit),
			Usage:   usage,
		}, nil
	}

	decision := Decision{Allowed: true, Usage: usage}
	if percentage >= warningThreshold {
		decision.Warning = fmt.Sprintf("You've used %d of %d leads this month (%d remaining).", used, limit, limit-used)
	}
	return decision, nil
}

// CanSendReply decides whether another suggested reply may be dispatched.
func (g *Guard) CanSendReply(ctx context.Context, userID uuid.UUID) (Decision, error) {
	p, err := g.store.GetByID(ctx, userID)
	if errors.Is(err, profiles.ErrProfileNotFound) {
		return Decision{Allowed: false, Reason: "User not found"}, nil
	}
	if err != nil {
		return Decision{}, err
	}

	if reason := g.subscriptionDenial(p, "Your free trial has ended. Upgrade to send replies."); reason != "" {
		return Decision{Allowed: false, Reason: reason}, nil
	}

	plan := planFor(p.SubscriptionStatus)
	used := p.RepliesSentThisMonth
	usage := &Usage{Used: used, Limit: plan.ReplyLimit}

	if used >= plan.ReplyLimit {
		reason := fmt.Sprintf("You've used all %d free replies. Upgrade to Pro for unlimited replies.", plan.ReplyLimit)
		if p.SubscriptionStatus == "active" {
			reason = "You've reached the reply limit this month."
		}
		return Decision{Allowed: false, Reason: reason, Usage: usage}, nil
	}

	return Decision{Allowed: true, Usage: usage}, nil
}
