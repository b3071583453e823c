package notifier

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"

	"adecis_backend/internal/events"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

type fakeInstalls struct {
	inst installations.Installation
	err  error
}

func (f *fakeInstalls) GetByUserID(_ context.Context, _ uuid.UUID) (installations.Installation, error) {
	if f.err != nil {
		return installations.Installation{}, f.err
	}
	return f.inst, nil
}

type fakePoster struct {
	mu     sync.Mutex
	posted []slack.ChatMessage
}

func (f *fakePoster) PostMessage(_ context.Context, msg slack.ChatMessage) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.posted = append(f.posted, msg)
	return nil
}

func scoredEvent(source string) events.LeadScored {
	return events.LeadScored{
		BaseEvent:   events.NewBaseEvent(),
		LeadID:      uuid.New(),
		UserID:      uuid.New(),
		Source:      source,
		SenderName:  "Dana Client",
		IntentScore: 0.82,
		IntentLabel: "high",
		Summary:     []string{"Wants a website", "Budget mentioned"},
		Reply:       "Thanks for reaching out.",
		ChannelID:   "C01",
		ThreadTS:    "1724800000.000100",
	}
}

func setup(installs *fakeInstalls) (*fakePoster, events.Bus) {
	log := logger.New("development")
	bus := events.NewInMemoryBus(log)
	poster := &fakePoster{}
	NewService(bus, installs, func(string) MessagePoster { return poster }, log)
	return poster, bus
}

func TestSlackLeadNotificationThreaded(t *testing.T) {
	installs := &fakeInstalls{inst: installations.Installation{
		UserID:   uuid.New(),
		BotToken: "xoxb-1",
	}}
	poster, bus := setup(installs)

	if err := bus.PublishSync(context.Background(), scoredEvent("slack")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(poster.posted) != 1 {
		t.Fatalf("posted %d messages, want 1", len(poster.posted))
	}
	msg := poster.posted[0]
	if msg.Channel != "C01" || msg.ThreadTS != "1724800000.000100" {
		t.Errorf("addressing = %q/%q, want originating thread", msg.Channel, msg.ThreadTS)
	}
	if msg.Text != "Lead from Dana Client — HIGH intent" {
		t.Errorf("text = %q", msg.Text)
	}
	if len(msg.Blocks) == 0 {
		t.Error("notification must carry blocks")
	}
}

func TestEmailLeadNotificationFirstMonitoredChannel(t *testing.T) {
	installs := &fakeInstalls{inst: installations.Installation{
		UserID:            uuid.New(),
		BotToken:          "xoxb-1",
		MonitoredChannels: []string{"C77", "C88"},
	}}
	poster, bus := setup(installs)

	event := scoredEvent("email")
	event.ChannelID = ""
	event.ThreadTS = ""
	if err := bus.PublishSync(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	if len(poster.posted) != 1 {
		t.Fatalf("posted %d messages, want 1", len(poster.posted))
	}
	msg := poster.posted[0]
	if msg.Channel != "C77" {
		t.Errorf("channel = %q, want first monitored channel", msg.Channel)
	}
	if msg.ThreadTS != "" {
		t.Error("email notifications are unthreaded")
	}
	if msg.Text != "New email lead from Dana Client — HIGH intent" {
		t.Errorf("text = %q", msg.Text)
	}
}

func TestNoInstallationNoDelivery(t *testing.T) {
	installs := &fakeInstalls{err: installations.ErrInstallationNotFound}
	poster, bus := setup(installs)

	if err := bus.PublishSync(context.Background(), scoredEvent("email")); err != nil {
		t.Fatalf("publish failed: %v", err)
	}
	if len(poster.posted) != 0 {
		t.Error("no installation means nothing to deliver")
	}
}

func TestQuotaWarningAppendedAsContext(t *testing.T) {
	installs := &fakeInstalls{inst: installations.Installation{
		UserID:   uuid.New(),
		BotToken: "xoxb-1",
	}}
	poster, bus := setup(installs)

	event := scoredEvent("slack")
	event.QuotaWarning = "You've used 20 of 25 leads this month (5 remaining)."
	if err := bus.PublishSync(context.Background(), event); err != nil {
		t.Fatalf("publish failed: %v", err)
	}

	blocks := poster.posted[0].Blocks
	last := blocks[len(blocks)-1]
	if last.Type != "context" {
		t.Errorf("last block type = %q, want context warning", last.Type)
	}
}
