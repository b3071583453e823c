// Package events provides domain event definitions for decoupled
// communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"adecis_backend/platform/events"
	"adecis_backend/platform/logger"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
	InMemoryBus = events.InMemoryBus
)

// Re-export platform functions
var (
	NewBaseEvent = events.NewBaseEvent
)

// NewInMemoryBus creates a new in-memory event bus.
func NewInMemoryBus(log *logger.Logger) *InMemoryBus {
	return events.NewInMemoryBus(log)
}

// LeadScored is published after a lead has been scored and persisted.
// The notifier subscribes to deliver the result into Slack.
type LeadScored struct {
	BaseEvent
	LeadID       uuid.UUID `json:"leadId"`
	UserID       uuid.UUID `json:"userId"`
	Source       string    `json:"source"`
	SenderName   string    `json:"senderName"`
	IntentScore  float64   `json:"intentScore"`
	IntentLabel  string    `json:"intentLabel"`
	Summary      []string  `json:"summary"`
	Reply        string    `json:"reply"`
	QuotaWarning string    `json:"quotaWarning,omitempty"`

	// Slack addressing for the notification. For slack-sourced leads this is
	// the originating channel/thread; for email leads the channel is chosen
	// by the notifier from the installation.
	ChannelID string `json:"channelId,omitempty"`
	ThreadTS  string `json:"threadTs,omitempty"`
}

func (e LeadScored) EventName() string { return "leads.scored" }

// LeadFeedbackRecorded is published when feedback is stored for a lead,
// from either the dashboard or a Slack button press.
type LeadFeedbackRecorded struct {
	BaseEvent
	LeadID   uuid.UUID `json:"leadId"`
	UserID   uuid.UUID `json:"userId"`
	Feedback string    `json:"feedback"`
}

func (e LeadFeedbackRecorded) EventName() string { return "leads.feedback_recorded" }
