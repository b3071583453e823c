// Package notifier delivers scored-lead notifications into Slack. It
// subscribes to the event bus so ingestion never blocks on notification
// delivery.
package notifier

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"adecis_backend/internal/events"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

// MessagePoster posts one message to Slack.
type MessagePoster interface {
	PostMessage(ctx context.Context, msg slack.ChatMessage) error
}

// InstallationSource looks up the tenant's Slack installation.
type InstallationSource interface {
	GetByUserID(ctx context.Context, userID uuid.UUID) (installations.Installation, error)
}

// Service posts the formatted scoring result for each scored lead.
type Service struct {
	installs  InstallationSource
	clientFor func(token string) MessagePoster
	log       *logger.Logger
}

// NewService creates the notifier and subscribes it to the bus.
func NewService(bus events.Bus, installs InstallationSource, clientFor func(token string) MessagePoster, log *logger.Logger) *Service {
	s := &Service{installs: installs, clientFor: clientFor, log: log}
	bus.Subscribe(events.LeadScored{}.EventName(), events.HandlerFunc(s.handleLeadScored))
	return s
}

func (s *Service) handleLeadScored(ctx context.Context, event events.Event) error {
	scored, ok := event.(events.LeadScored)
	if !ok {
		return fmt.Errorf("unexpected event type %T", event)
	}

	inst, err := s.installs.GetByUserID(ctx, scored.UserID)
	if err != nil {
		// Email-only tenants have no installation; nothing to deliver to.
		return nil
	}

	channel := scored.ChannelID
	threadTS := scored.ThreadTS
	text := fmt.Sprintf("Lead from %s — %s intent", scored.SenderName, strings.ToUpper(scored.IntentLabel))

	if scored.Source == "email" {
		// Email leads land in the first monitored channel, unthreaded.
		if len(inst.MonitoredChannels) == 0 {
			return nil
		}
		channel = inst.MonitoredChannels[0]
		threadTS = ""
		text = fmt.Sprintf("New email lead from %s — %s intent", scored.SenderName, strings.ToUpper(scored.IntentLabel))
	}
	if channel == "" {
		return nil
	}

	blocks := slack.FormatLeadResult(
		scored.IntentLabel, scored.IntentScore, scored.Summary, scored.Reply,
		scored.SenderName, scored.LeadID, scored.Source,
	)
	if scored.QuotaWarning != "" {
		blocks = append(blocks, slack.QuotaWarningBlock(scored.QuotaWarning))
	}

	err = s.clientFor(inst.BotToken).PostMessage(ctx, slack.ChatMessage{
		Channel:  channel,
		ThreadTS: threadTS,
		Text:     text,
		Blocks:   blocks,
	})
	if err != nil {
		s.log.Error("failed to deliver lead notification",
			"lead_id", scored.LeadID, "channel", channel, "error", err.Error())
	}
	return err
}
