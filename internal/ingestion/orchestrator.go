// Package ingestion receives inbound webhooks (Slack events and
// interactions, forwarded email) and runs them through the scoring
// pipeline: dedup, rate limits, quota, scoring, lead storage, and the
// scored-lead event.
package ingestion

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"adecis_backend/internal/billing"
	"adecis_backend/internal/events"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/leads"
	"adecis_backend/internal/profiles"
	"adecis_backend/internal/scoring"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

// scoringFailureNotice is posted into the originating thread when the
// reasoning service fails, so the sender's message is not silently ignored.
const scoringFailureNotice = "Sorry, I couldn't analyze this message right now. Please try again later."

// threadContextLimit caps how many prior thread messages feed the prompt.
const threadContextLimit = 5

// InstallationSource resolves Slack workspaces to installations.
type InstallationSource interface {
	GetByTeamID(ctx context.Context, teamID string) (installations.Installation, error)
}

// ProfileSource provides tenant profiles and usage increments.
type ProfileSource interface {
	GetByID(ctx context.Context, userID uuid.UUID) (profiles.Profile, error)
	ResolveInboundAddress(ctx context.Context, address string) (uuid.UUID, error)
	IncrementLeadsUsed(ctx context.Context, userID uuid.UUID) error
}

// LeadQuota decides whether a tenant may score another lead.
type LeadQuota interface {
	CanProcessLead(ctx context.Context, userID uuid.UUID) (billing.Decision, error)
}

// EventLimiter provides dedup and the named rate limits. Implementations
// fail open: a limiter backend outage never drops a legitimate event.
type EventLimiter interface {
	IsDuplicate(ctx context.Context, eventID string) bool
	AllowSlackEvent(ctx context.Context, teamID string) bool
	AllowEmail(ctx context.Context, userID string) bool
	AllowScoring(ctx context.Context, userID string) bool
}

// Scorer runs the scoring round trip.
type Scorer interface {
	Score(ctx context.Context, input scoring.Input) (scoring.Result, error)
}

// ChatClient is the Slack API surface the orchestrator uses.
type ChatClient interface {
	PostMessage(ctx context.Context, msg slack.ChatMessage) error
	UserRealName(ctx context.Context, userID string) (string, error)
	ThreadMessages(ctx context.Context, channel, threadTS string, limit int) ([]string, error)
}

// LeadStore persists scored leads.
type LeadStore interface {
	Create(ctx context.Context, lead *leads.Lead) error
}

// SlackMessage is one inbound channel message, already unwrapped from the
// webhook envelope.
type SlackMessage struct {
	TeamID   string
	Channel  string
	User     string
	Text     string
	TS       string
	ThreadTS string
}

// InboundEmail is one parsed forwarded email.
type InboundEmail struct {
	To         string
	From       string
	SenderName string
	Subject    string
	TextBody   string
	SpamScore  float64
}

// Orchestrator composes the ingestion pipeline for both source channels.
type Orchestrator struct {
	installs   InstallationSource
	profilesrc ProfileSource
	quota      LeadQuota
	limiter    EventLimiter
	scorer     Scorer
	store      LeadStore
	clientFor  func(token string) ChatClient
	bus        events.Bus
	log        *logger.Logger
}

// NewOrchestrator creates an ingestion orchestrator.
func NewOrchestrator(
	installs InstallationSource,
	profilesrc ProfileSource,
	quota LeadQuota,
	limiter EventLimiter,
	scorer Scorer,
	store LeadStore,
	clientFor func(token string) ChatClient,
	bus events.Bus,
	log *logger.Logger,
) *Orchestrator {
	return &Orchestrator{
		installs:   installs,
		profilesrc: profilesrc,
		quota:      quota,
		limiter:    limiter,
		scorer:     scorer,
		store:      store,
		clientFor:  clientFor,
		bus:        bus,
		log:        log,
	}
}

// ProcessSlackMessage runs the Slack ingestion continuation. The webhook has
// already been acknowledged; failures here are logged, never retried.
func (o *Orchestrator) ProcessSlackMessage(ctx context.Context, msg SlackMessage) {
	log := o.log.WithTeamID(msg.TeamID)

	inst, err := o.installs.GetByTeamID(ctx, msg.TeamID)
	if err != nil {
		log.Warn("no installation for team", "error", err.Error())
		return
	}

	profile, err := o.profilesrc.GetByID(ctx, inst.UserID)
	if err != nil {
		log.Warn("no profile for installation", "error", err.Error())
		return
	}

	// Empty monitored set means every channel is monitored.
	if len(inst.MonitoredChannels) > 0 && !contains(inst.MonitoredChannels, msg.Channel) {
		return
	}

	if !o.limiter.AllowSlackEvent(ctx, msg.TeamID) {
		return
	}

	client := o.clientFor(inst.BotToken)

	decision, err := o.quota.CanProcessLead(ctx, inst.UserID)
	if err != nil {
		log.Error("quota check failed", "error", err.Error())
		return
	}
	if !decision.Allowed {
		reason := decision.Reason
		if reason == "" {
			reason = "Unable to process this lead right now."
		}
		o.post(ctx, client, slack.ChatMessage{Channel: msg.Channel, ThreadTS: msg.TS, Text: reason})
		return
	}

	senderName := "Someone"
	if name, err := client.UserRealName(ctx, msg.User); err == nil && name != "" {
		senderName = name
	}

	threadContext := ""
	if msg.ThreadTS != "" {
		if messages, err := client.ThreadMessages(ctx, msg.Channel, msg.ThreadTS, threadContextLimit); err == nil && len(messages) > 1 {
			threadContext = strings.Join(messages[:len(messages)-1], "\n---\n")
		}
	}

	if !o.limiter.AllowScoring(ctx, inst.UserID.String()) {
		return
	}

	result, err := o.scorer.Score(ctx, scoring.Input{
		Message:       msg.Text,
		ThreadContext: threadContext,
		Source:        "slack",
		SenderName:    senderName,
		Profile:       profileContext(profile),
	})
	if err != nil {
		log.Error("scoring failed for slack lead", "error", err.Error())
		o.post(ctx, client, slack.ChatMessage{Channel: msg.Channel, ThreadTS: msg.TS, Text: scoringFailureNotice})
		return
	}

	lead := &leads.Lead{
		UserID:           inst.UserID,
		Source:           "slack",
		SourceID:         msg.TS,
		SourceChannel:    msg.Channel,
		SenderName:       senderName,
		SenderIdentifier: msg.User,
		RawMessage:       msg.Text,
		ThreadContext:    threadContext,
		IntentScore:      result.Score.IntentScore,
		IntentLabel:      result.Score.IntentLabel,
		SummaryBullets:   result.Score.SummaryBullets,
		SuggestedReply:   result.Score.SuggestedReply,
		ModelUsed:        result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		AILatencyMs:      result.LatencyMs,
		SlackThreadTS:    msg.TS,
		SlackChannelID:   msg.Channel,
	}
	if err := o.store.Create(ctx, lead); err != nil {
		log.DatabaseError("insert slack lead", err)
		return
	}

	if err := o.profilesrc.IncrementLeadsUsed(ctx, inst.UserID); err != nil {
		log.DatabaseError("increment leads used", err)
	}

	o.bus.Publish(ctx, events.LeadScored{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		UserID:       inst.UserID,
		Source:       "slack",
		SenderName:   senderName,
		IntentScore:  result.Score.IntentScore,
		IntentLabel:  result.Score.IntentLabel,
		Summary:      result.Score.SummaryBullets,
		Reply:        result.Score.SuggestedReply,
		QuotaWarning: decision.Warning,
		ChannelID:    msg.Channel,
		ThreadTS:     msg.TS,
	})
}

// ProcessEmail runs the email ingestion pipeline. Every drop is silent by
// design: the sender is an external party that must never see errors.
func (o *Orchestrator) ProcessEmail(ctx context.Context, email InboundEmail) {
	if email.SpamScore > 5.0 {
		return
	}

	userID, err := o.profilesrc.ResolveInboundAddress(ctx, email.To)
	if err != nil {
		return
	}
	log := o.log.WithUserID(userID.String())

	if !o.limiter.AllowEmail(ctx, userID.String()) {
		return
	}

	decision, err := o.quota.CanProcessLead(ctx, userID)
	if err != nil || !decision.Allowed {
		return
	}

	profile, err := o.profilesrc.GetByID(ctx, userID)
	if err != nil {
		return
	}

	message := email.TextBody
	if email.Subject != "" {
		message = fmt.Sprintf("Subject: %s\n\n%s", email.Subject, email.TextBody)
	}

	if !o.limiter.AllowScoring(ctx, userID.String()) {
		return
	}

	result, err := o.scorer.Score(ctx, scoring.Input{
		Message:    message,
		Source:     "email",
		SenderName: email.SenderName,
		Profile:    profileContext(profile),
	})
	if err != nil {
		log.Error("scoring failed for email lead", "error", err.Error())
		return
	}

	lead := &leads.Lead{
		UserID:           userID,
		Source:           "email",
		SourceID:         email.From,
		SourceChannel:    email.To,
		SenderName:       email.SenderName,
		SenderIdentifier: email.From,
		RawMessage:       message,
		IntentScore:      result.Score.IntentScore,
		IntentLabel:      result.Score.IntentLabel,
		SummaryBullets:   result.Score.SummaryBullets,
		SuggestedReply:   result.Score.SuggestedReply,
		ModelUsed:        result.Model,
		PromptTokens:     result.Usage.PromptTokens,
		CompletionTokens: result.Usage.CompletionTokens,
		AILatencyMs:      result.LatencyMs,
	}
	if err := o.store.Create(ctx, lead); err != nil {
		log.DatabaseError("insert email lead", err)
		return
	}

	if err := o.profilesrc.IncrementLeadsUsed(ctx, userID); err != nil {
		log.DatabaseError("increment leads used", err)
	}

	o.bus.Publish(ctx, events.LeadScored{
		BaseEvent:    events.NewBaseEvent(),
		LeadID:       lead.ID,
		UserID:       userID,
		Source:       "email",
		SenderName:   email.SenderName,
		IntentScore:  result.Score.IntentScore,
		IntentLabel:  result.Score.IntentLabel,
		Summary:      result.Score.SummaryBullets,
		Reply:        result.Score.SuggestedReply,
		QuotaWarning: decision.Warning,
	})
}

func (o *Orchestrator) post(ctx context.Context, client ChatClient, msg slack.ChatMessage) {
	if err := client.PostMessage(ctx, msg); err != nil {
		o.log.Error("failed to post slack notice", "channel", msg.Channel, "error", err.Error())
	}
}

func profileContext(p profiles.Profile) scoring.ProfileContext {
	niche := p.Niche
	if niche == "" {
		niche = "other"
	}
	tone := p.Tone
	if tone == "" {
		tone = "professional"
	}
	return scoring.ProfileContext{
		Niche:              niche,
		Tone:               tone,
		BookingLink:        p.BookingLink,
		BusinessName:       p.BusinessName,
		CustomInstructions: p.CustomInstructions,
	}
}

func contains(values []string, target string) bool {
	for _, v := range values {
		if v == target {
			return true
		}
	}
	return false
}
