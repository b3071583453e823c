package leads

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"adecis_backend/internal/billing"
	"adecis_backend/internal/events"
	"adecis_backend/internal/installations"
	"adecis_backend/internal/slack"
	"adecis_backend/platform/apperr"
	"adecis_backend/platform/logger"
)

// fakeLeadStore serializes conditional updates with a mutex, mirroring the
// atomicity the database gives the real repository.
type fakeLeadStore struct {
	mu   sync.Mutex
	lead Lead
}

func (s *fakeLeadStore) List(_ context.Context, _ uuid.UUID, _ ListFilter) (ListResult, error) {
	return ListResult{Leads: []Lead{s.lead}, Total: 1, Page: 1, TotalPages: 1}, nil
}

func (s *fakeLeadStore) GetByID(_ context.Context, id, userID uuid.UUID) (Lead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lead.ID != id || s.lead.UserID != userID {
		return Lead{}, ErrLeadNotFound
	}
	return s.lead, nil
}

func (s *fakeLeadStore) ClaimReply(_ context.Context, id, userID uuid.UUID) (ClaimedLead, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lead.ID != id || s.lead.UserID != userID || s.lead.ReplySent {
		return ClaimedLead{}, ErrLeadNotFound
	}
	now := time.Now()
	s.lead.ReplySent = true
	s.lead.ReplySentAt = &now
	return ClaimedLead{
		ID:             s.lead.ID,
		Source:         s.lead.Source,
		SuggestedReply: s.lead.SuggestedReply,
		SlackThreadTS:  s.lead.SlackThreadTS,
		SlackChannelID: s.lead.SlackChannelID,
		ReplySentAt:    now,
	}, nil
}

func (s *fakeLeadStore) ReleaseReplyClaim(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lead.ID == id {
		s.lead.ReplySent = false
		s.lead.ReplySentAt = nil
	}
	return nil
}

func (s *fakeLeadStore) ReplySent(_ context.Context, id, userID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lead.ID != id || s.lead.UserID != userID {
		return false, ErrLeadNotFound
	}
	return s.lead.ReplySent, nil
}

func (s *fakeLeadStore) SetFeedback(_ context.Context, id, userID uuid.UUID, feedback string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.lead.ID != id || s.lead.UserID != userID {
		return ErrLeadNotFound
	}
	s.lead.Feedback = feedback
	return nil
}

func (s *fakeLeadStore) replySent() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lead.ReplySent
}

type allowAllQuota struct{}

func (allowAllQuota) CanSendReply(_ context.Context, _ uuid.UUID) (billing.Decision, error) {
	return billing.Decision{Allowed: true, Usage: &billing.Usage{Used: 1, Limit: 5}}, nil
}

type denyQuota struct{}

func (denyQuota) CanSendReply(_ context.Context, _ uuid.UUID) (billing.Decision, error) {
	return billing.Decision{
		Allowed: false,
		Reason:  "You've used all 5 free replies. Upgrade to Pro for unlimited replies.",
		Usage:   &billing.Usage{Used: 5, Limit: 5},
	}, nil
}

type staticTokens struct {
	token string
	err   error
}

func (t staticTokens) BotToken(_ context.Context, _ uuid.UUID) (string, error) {
	return t.token, t.err
}

type fakePoster struct {
	mu   sync.Mutex
	sent []slack.ChatMessage
	err  error
}

func (p *fakePoster) PostMessage(_ context.Context, msg slack.ChatMessage) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *fakePoster) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.sent)
}

type fakeCounter struct {
	mu    sync.Mutex
	calls int
	err   error
}

func (c *fakeCounter) IncrementRepliesSent(_ context.Context, _ uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return c.err
}

type noInstalls struct{}

func (noInstalls) GetByUserID(_ context.Context, _ uuid.UUID) (installations.Installation, error) {
	return installations.Installation{}, installations.ErrInstallationNotFound
}

type noEmails struct{}

func (noEmails) HasActiveAddress(_ context.Context, _ uuid.UUID) (bool, error) {
	return false, nil
}

func slackLead(userID uuid.UUID) Lead {
	return Lead{
		ID:             uuid.New(),
		UserID:         userID,
		Source:         "slack",
		SuggestedReply: "Thanks for reaching out. Happy to discuss your project.",
		SlackThreadTS:  "1724800000.000100",
		SlackChannelID: "C01ABC",
	}
}

func newTestService(store *fakeLeadStore, quota ReplyQuota, tokens TokenSource, poster *fakePoster, counter *fakeCounter) *Service {
	log := logger.New("development")
	return NewService(
		store, quota, tokens,
		func(string) MessagePoster { return poster },
		counter, noInstalls{}, noEmails{},
		events.NewInMemoryBus(log), log,
	)
}

func TestSendReplySuccess(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	poster := &fakePoster{}
	counter := &fakeCounter{}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, poster, counter)

	result, err := svc.SendReply(context.Background(), userID, store.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK || !result.ReplySent {
		t.Errorf("result = %+v, want ok + reply_sent", result)
	}
	if poster.count() != 1 {
		t.Errorf("posted %d messages, want 1", poster.count())
	}
	if counter.calls != 1 {
		t.Errorf("reply counter incremented %d times, want 1", counter.calls)
	}
	if !store.replySent() {
		t.Error("reply_sent must remain true after success")
	}
}

func TestSendReplyQuotaDenied(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	poster := &fakePoster{}
	svc := newTestService(store, denyQuota{}, staticTokens{token: "xoxb-1"}, poster, &fakeCounter{})

	_, err := svc.SendReply(context.Background(), userID, store.lead.ID)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("err = %v, want forbidden", err)
	}

	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		t.Fatal("expected *apperr.Error")
	}
	details, ok := domainErr.Details.(map[string]interface{})
	if !ok {
		t.Fatal("expected details map")
	}
	if details["upgrade_required"] != true {
		t.Error("details must carry upgrade_required=true")
	}
	if store.replySent() {
		t.Error("quota denial must not claim the lead")
	}
	if poster.count() != 0 {
		t.Error("quota denial must not post")
	}
}

func TestSendReplyLeadNotFound(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, &fakePoster{}, &fakeCounter{})

	_, err := svc.SendReply(context.Background(), userID, uuid.New())
	if !apperr.Is(err, apperr.KindNotFound) {
		t.Errorf("err = %v, want not found", err)
	}
}

func TestSendReplyAlreadySent(t *testing.T) {
	userID := uuid.New()
	lead := slackLead(userID)
	lead.ReplySent = true
	store := &fakeLeadStore{lead: lead}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, &fakePoster{}, &fakeCounter{})

	_, err := svc.SendReply(context.Background(), userID, lead.ID)
	if !apperr.Is(err, apperr.KindConflict) {
		t.Errorf("err = %v, want conflict", err)
	}
}

func TestSendReplyRollbackPaths(t *testing.T) {
	userID := uuid.New()

	tests := []struct {
		name     string
		mutate   func(*Lead)
		tokens   TokenSource
		postErr  error
		wantKind apperr.Kind
	}{
		{
			name:     "no draft reply",
			mutate:   func(l *Lead) { l.SuggestedReply = "" },
			tokens:   staticTokens{token: "xoxb-1"},
			wantKind: apperr.KindBadRequest,
		},
		{
			name:     "email source",
			mutate:   func(l *Lead) { l.Source = "email" },
			tokens:   staticTokens{token: "xoxb-1"},
			wantKind: apperr.KindBadRequest,
		},
		{
			name:     "missing thread addressing",
			mutate:   func(l *Lead) { l.SlackThreadTS = "" },
			tokens:   staticTokens{token: "xoxb-1"},
			wantKind: apperr.KindBadRequest,
		},
		{
			name:     "token acquisition fails",
			mutate:   func(l *Lead) {},
			tokens:   staticTokens{err: errors.New("no installation")},
			wantKind: apperr.KindBadRequest,
		},
		{
			name:     "dispatch fails",
			mutate:   func(l *Lead) {},
			tokens:   staticTokens{token: "xoxb-1"},
			postErr:  errors.New("channel_not_found"),
			wantKind: apperr.KindBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			lead := slackLead(userID)
			tt.mutate(&lead)
			store := &fakeLeadStore{lead: lead}
			poster := &fakePoster{err: tt.postErr}
			counter := &fakeCounter{}
			svc := newTestService(store, allowAllQuota{}, tt.tokens, poster, counter)

			_, err := svc.SendReply(context.Background(), userID, lead.ID)
			if !apperr.Is(err, tt.wantKind) {
				t.Fatalf("err = %v, want kind %v", err, tt.wantKind)
			}
			if store.replySent() {
				t.Error("claim must be released after failure")
			}
			if counter.calls != 0 {
				t.Error("counter must not be incremented on failure")
			}
		})
	}
}

func TestSendReplyEmailSourceMessage(t *testing.T) {
	userID := uuid.New()
	lead := slackLead(userID)
	lead.Source = "email"
	store := &fakeLeadStore{lead: lead}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, &fakePoster{}, &fakeCounter{})

	_, err := svc.SendReply(context.Background(), userID, lead.ID)
	var domainErr *apperr.Error
	if !errors.As(err, &domainErr) {
		t.Fatal("expected *apperr.Error")
	}
	if domainErr.Message != "Send reply is currently only supported for Slack leads" {
		t.Errorf("message = %q", domainErr.Message)
	}
	if store.replySent() {
		t.Error("no claim may persist for an email-source lead")
	}
}

func TestSendReplyConcurrentOneWinner(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	poster := &fakePoster{}
	counter := &fakeCounter{}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, poster, counter)

	const attempts = 8
	results := make([]error, attempts)
	var wg sync.WaitGroup
	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := svc.SendReply(context.Background(), userID, store.lead.ID)
			results[i] = err
		}(i)
	}
	wg.Wait()

	winners := 0
	for _, err := range results {
		if err == nil {
			winners++
			continue
		}
		if !apperr.Is(err, apperr.KindConflict) {
			t.Errorf("loser got %v, want conflict", err)
		}
	}
	if winners != 1 {
		t.Errorf("winners = %d, want exactly 1", winners)
	}
	if poster.count() != 1 {
		t.Errorf("posted %d messages, want exactly 1", poster.count())
	}
}

func TestSendReplyRetrySucceedsAfterDispatchFailure(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	poster := &fakePoster{err: errors.New("slack down")}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, poster, &fakeCounter{})

	if _, err := svc.SendReply(context.Background(), userID, store.lead.ID); err == nil {
		t.Fatal("first attempt should fail")
	}

	poster.mu.Lock()
	poster.err = nil
	poster.mu.Unlock()

	result, err := svc.SendReply(context.Background(), userID, store.lead.ID)
	if err != nil {
		t.Fatalf("retry failed: %v", err)
	}
	if !result.OK {
		t.Error("retry must succeed after the claim was released")
	}
}

func TestSendReplyCounterFailureDoesNotFailSend(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	counter := &fakeCounter{err: errors.New("db down")}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, &fakePoster{}, counter)

	result, err := svc.SendReply(context.Background(), userID, store.lead.ID)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !result.OK {
		t.Error("send must succeed even if the usage increment fails")
	}
}

func TestRecordFeedback(t *testing.T) {
	userID := uuid.New()
	store := &fakeLeadStore{lead: slackLead(userID)}
	svc := newTestService(store, allowAllQuota{}, staticTokens{token: "xoxb-1"}, &fakePoster{}, &fakeCounter{})

	if err := svc.RecordFeedback(context.Background(), userID, store.lead.ID, "positive"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lead.Feedback != "positive" {
		t.Errorf("feedback = %q, want positive", store.lead.Feedback)
	}

	// Overwrite is allowed.
	if err := svc.RecordFeedback(context.Background(), userID, store.lead.ID, "negative"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if store.lead.Feedback != "negative" {
		t.Errorf("feedback = %q, want negative", store.lead.Feedback)
	}

	if err := svc.RecordFeedback(context.Background(), userID, store.lead.ID, "meh"); !apperr.Is(err, apperr.KindBadRequest) {
		t.Errorf("err = %v, want bad request for invalid feedback", err)
	}
}
