package leads

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"adecis_backend/internal/billing"
	"adecis_backend/internal/events"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/apperr"
	"adecis_backend/platform/logger"
)

// LeadStore is the repository surface the service uses.
type LeadStore interface {
	List(ctx context.Context, userID uuid.UUID, filter ListFilter) (ListResult, error)
	GetByID(ctx context.Context, id, userID uuid.UUID) (Lead, error)
	ClaimReply(ctx context.Context, id, userID uuid.UUID) (ClaimedLead, error)
	ReleaseReplyClaim(ctx context.Context, id uuid.UUID) error
	ReplySent(ctx context.Context, id, userID uuid.UUID) (bool, error)
	SetFeedback(ctx context.Context, id, userID uuid.UUID, feedback string) error
}

// ReplyQuota answers whether the tenant may send another reply.
type ReplyQuota interface {
	CanSendReply(ctx context.Context, userID uuid.UUID) (billing.Decision, error)
}

// TokenSource provides a usable bot token for the tenant's installation.
type TokenSource interface {
	BotToken(ctx context.Context, userID uuid.UUID) (string, error)
}

// MessagePoster posts one message to the outbound channel.
type MessagePoster interface {
	PostMessage(ctx context.Context, msg slack.ChatMessage) error
}

// ReplyCounter increments the monthly reply counter.
type ReplyCounter interface {
	IncrementRepliesSent(ctx context.Context, userID uuid.UUID) error
}

// InstallationSource looks up the tenant's Slack installation.
type InstallationSource interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (installations.Installation, error)
}

// EmailAddressChecker reports whether the tenant has an active inbound
// email address.
type EmailAddressChecker interface {
	HasActiveAddress(ctx context.Context, userID uuid.UUID) (bool, error)
}

// Service implements the lead-facing user actions: listing, the one-shot
// reply protocol, and feedback.
type Service struct {
	store     LeadStore
	quota     ReplyQuota
	tokens    TokenSource
	clientFor func(token string) MessagePoster
	counter   ReplyCounter
	installs  InstallationSource
	emails    EmailAddressChecker
	bus       events.Bus
	log       *logger.Logger
}

// NewService creates a leads service. clientFor builds a channel client
// bound to one bot token.
func NewService(
	store LeadStore,
	quota ReplyQuota,
	tokens TokenSource,
	clientFor func(token string) MessagePoster,
	counter ReplyCounter,
	installs InstallationSource,
	emails EmailAddressChecker,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		store:     store,
		quota:     quota,
		tokens:    tokens,
		clientFor: clientFor,
		counter:   counter,
		installs:  installs,
		emails:    emails,
		bus:       bus,
		log:       log,
	}
}

// ListResponse is the lead list payload, including channel connection flags
// so the caller can prompt for missing integrations.
type ListResponse struct {
	Leads       []Lead          `json:"leads"`
	Total       int             `json:"total"`
	Page        int             `json:"page"`
	TotalPages  int             `json:"totalPages"`
	Connections ConnectionFlags `json:"connections"`
}

// ConnectionFlags reports which inbound channels the tenant has linked.
type ConnectionFlags struct {
	Slack bool `json:"slack"`
	Email bool `json:"email"`
}

// List returns one page of the user's leads with connection status.
func (s *Service) List(ctx context.Context, userID uuid.UUID, filter ListFilter) (ListResponse, error) {
	result, err := s.store.List(ctx, userID, filter)
	if err != nil {
		return ListResponse{}, apperr.Wrap(apperr.KindInternal, "failed to load leads", err)
	}

	flags := ConnectionFlags{}
	if _, err := s.installs.GetByUserID(ctx, userID); err == nil {
		flags.Slack = true
	} else if !errors.Is(err, installations.ErrInstallationNotFound) {
		s.log.DatabaseError("check slack connection", err)
	}
	if active, err := s.emails.HasActiveAddress(ctx, userID); err != nil {
		s.log.DatabaseError("check email connection", err)
	} else {
		flags.Email = active
	}

	return ListResponse{
		Leads:       result.Leads,
		Total:       result.Total,
		Page:        result.Page,
		TotalPages:  result.TotalPages,
		Connections: flags,
	}, nil
}

// Get returns a single lead owned by the user.
func (s *Service) Get(ctx context.Context, userID, leadID uuid.UUID) (Lead, error) {
	lead, err := s.store.GetByID(ctx, leadID, userID)
	if errors.Is(err, ErrLeadNotFound) {
		return Lead{}, apperr.NotFound("Lead not found")
	}
	if err != nil {
		return Lead{}, apperr.Wrap(apperr.KindInternal, "failed to load lead", err)
	}
	return lead, nil
}

// ReplyResponse is the success payload of a reply send.
type ReplyResponse struct {
	OK          bool      `json:"ok"`
	ReplySent   bool      `json:"reply_sent"`
	ReplySentAt time.Time `json:"reply_sent_at"`
}

// SendReply dispatches the lead's suggested reply into its originating
// Slack thread, at most once. The claim happens before any validation that
// requires the row's contents; every failure after the claim releases it so
// a retry can succeed.
func (s *Service) SendReply(ctx context.Context, userID, leadID uuid.UUID) (ReplyResponse, error) {
	decision, err := s.quota.CanSendReply(ctx, userID)
	if err != nil {
		return ReplyResponse{}, apperr.Wrap(apperr.KindInternal, "failed to check reply quota", err)
	}
	if !decision.Allowed {
		details := map[string]interface{}{"upgrade_required": true}
		if decision.Usage != nil {
			details["usage"] = map[string]interface{}{
				"used":  decision.Usage.Used,
				"limit": decision.Usage.Limit,
			}
		}
		return ReplyResponse{}, apperr.Forbidden(decision.Reason).WithDetails(details)
	}

	claimed, err := s.store.ClaimReply(ctx, leadID, userID)
	if errors.Is(err, ErrLeadNotFound) {
		return ReplyResponse{}, s.disambiguateFailedClaim(ctx, userID, leadID)
	}
	if err != nil {
		return ReplyResponse{}, apperr.Wrap(apperr.KindInternal, "Failed to process reply", err)
	}

	if claimed.SuggestedReply == "" {
		s.rollback(ctx, leadID)
		return ReplyResponse{}, apperr.BadRequest("No suggested reply available")
	}
	if claimed.Source != "slack" {
		s.rollback(ctx, leadID)
		return ReplyResponse{}, apperr.BadRequest("Send reply is currently only supported for Slack leads")
	}
	if claimed.SlackThreadTS == "" || claimed.SlackChannelID == "" {
		s.rollback(ctx, leadID)
		return ReplyResponse{}, apperr.BadRequest("Missing Slack thread information for this lead")
	}

	token, err := s.tokens.BotToken(ctx, userID)
	if err != nil || token == "" {
		s.rollback(ctx, leadID)
		return ReplyResponse{}, apperr.BadRequest("Slack not connected. Please reconnect in Settings.")
	}

	err = s.clientFor(token).PostMessage(ctx, slack.ChatMessage{
		Channel:  claimed.SlackChannelID,
		ThreadTS: claimed.SlackThreadTS,
		Text:     claimed.SuggestedReply,
	})
	if err != nil {
		s.rollback(ctx, leadID)
		s.log.Error("failed to send slack reply", "lead_id", leadID, "error", err.Error())
		return ReplyResponse{}, apperr.BadGateway("Failed to send reply to Slack. The bot may not have access to this channel.")
	}

	// Best effort: the reply is already out, a failed increment must not
	// surface as a send failure.
	if err := s.counter.IncrementRepliesSent(ctx, userID); err != nil {
		s.log.DatabaseError("increment replies sent", err)
	}

	return ReplyResponse{OK: true, ReplySent: true, ReplySentAt: claimed.ReplySentAt}, nil
}

// disambiguateFailedClaim re-reads the lead to tell "not found" from
// "already sent" from a transient failure.
func (s *Service) disambiguateFailedClaim(ctx context.Context, userID, leadID uuid.UUID) error {
	sent, err := s.store.ReplySent(ctx, leadID, userID)
	if errors.Is(err, ErrLeadNotFound) {
		return apperr.NotFound("Lead not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "Failed to process reply", err)
	}
	if sent {
		return apperr.Conflict("Reply already sent")
	}
	return apperr.Internal("Failed to process reply")
}

func (s *Service) rollback(ctx context.Context, leadID uuid.UUID) {
	if err := s.store.ReleaseReplyClaim(ctx, leadID); err != nil {
		s.log.DatabaseError("release reply claim", err)
	}
}

// RecordFeedback overwrites the lead's feedback. Not claim-guarded;
// re-submission simply rewrites the value.
func (s *Service) RecordFeedback(ctx context.Context, userID, leadID uuid.UUID, feedback string) error {
	if feedback != "positive" && feedback != "negative" {
		return apperr.BadRequest("Invalid feedback")
	}

	err := s.store.SetFeedback(ctx, leadID, userID, feedback)
	if errors.Is(err, ErrLeadNotFound) {
		return apperr.NotFound("Lead not found")
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "failed to record feedback", err)
	}

	s.bus.Publish(ctx, events.LeadFeedbackRecorded{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		UserID:    userID,
		Feedback:  feedback,
	})
	return nil
}
