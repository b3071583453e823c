package installations

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"

	"adecis_backend/internal/slack"
	"adecis_backend/platform/logger"
)

type fakeStore struct {
	mu      sync.Mutex
	inst    Installation
	getErr  error
	updates int
}

func (s *fakeStore) GetByUserID(_ context.Context, _ uuid.UUID) (Installation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return Installation{}, s.getErr
	}
	return s.inst, nil
}

func (s *fakeStore) UpdateTokens(_ context.Context, _ uuid.UUID, botToken, refreshToken string, expiresAt *time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.updates++
	s.inst.BotToken = botToken
	s.inst.RefreshToken = refreshToken
	s.inst.TokenExpiresAt = expiresAt
	return nil
}

type fakeRefresher struct {
	mu     sync.Mutex
	calls  int
	result slack.RefreshedToken
	err    error
	delay  time.Duration
}

func (r *fakeRefresher) Refresh(_ context.Context, _ string) (slack.RefreshedToken, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.delay > 0 {
		time.Sleep(r.delay)
	}
	return r.result, r.err
}

func testManager(store *fakeStore, refresher *fakeRefresher) *TokenManager {
	return NewTokenManager(store, refresher, time.Second, logger.New("development"))
}

func TestBotTokenStaticInstallation(t *testing.T) {
	store := &fakeStore{inst: Installation{
		ID:       uuid.New(),
		BotToken: "xoxb-static",
	}}
	refresher := &fakeRefresher{}
	mgr := testManager(store, refresher)

	token, err := mgr.BotToken(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "xoxb-static" {
		t.Errorf("token = %q, want xoxb-static", token)
	}
	if refresher.calls != 0 {
		t.Errorf("refresher called %d times for static installation", refresher.calls)
	}
}

func TestBotTokenFreshTokenSkipsRefresh(t *testing.T) {
	expires := time.Now().Add(time.Hour)
	store := &fakeStore{inst: Installation{
		ID:             uuid.New(),
		BotToken:       "xoxb-fresh",
		RefreshToken:   "xoxe-refresh",
		TokenExpiresAt: &expires,
	}}
	refresher := &fakeRefresher{}
	mgr := testManager(store, refresher)

	token, err := mgr.BotToken(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "xoxb-fresh" {
		t.Errorf("token = %q, want xoxb-fresh", token)
	}
	if refresher.calls != 0 {
		t.Errorf("refresher called %d times for fresh token", refresher.calls)
	}
}

func TestBotTokenRefreshesNearExpiry(t *testing.T) {
	// Inside the 5-minute buffer: must refresh.
	expires := time.Now().Add(2 * time.Minute)
	newExpiry := time.Now().Add(12 * time.Hour)
	store := &fakeStore{inst: Installation{
		ID:             uuid.New(),
		BotToken:       "xoxb-old",
		RefreshToken:   "xoxe-old",
		TokenExpiresAt: &expires,
	}}
	refresher := &fakeRefresher{result: slack.RefreshedToken{
		AccessToken:  "xoxb-new",
		RefreshToken: "xoxe-new",
		ExpiresAt:    &newExpiry,
	}}
	mgr := testManager(store, refresher)

	token, err := mgr.BotToken(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "xoxb-new" {
		t.Errorf("token = %q, want xoxb-new", token)
	}
	if store.updates != 1 {
		t.Errorf("UpdateTokens called %d times, want 1", store.updates)
	}
	if store.inst.RefreshToken != "xoxe-new" {
		t.Errorf("stored refresh token = %q, want xoxe-new", store.inst.RefreshToken)
	}
}

func TestBotTokenFallsBackToStaleOnRefreshFailure(t *testing.T) {
	expires := time.Now().Add(-time.Minute)
	store := &fakeStore{inst: Installation{
		ID:             uuid.New(),
		BotToken:       "xoxb-stale",
		RefreshToken:   "xoxe-refresh",
		TokenExpiresAt: &expires,
	}}
	refresher := &fakeRefresher{err: errors.New("oauth provider down")}
	mgr := testManager(store, refresher)

	token, err := mgr.BotToken(context.Background(), uuid.New())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "xoxb-stale" {
		t.Errorf("token = %q, want stale fallback xoxb-stale", token)
	}
	if store.updates != 0 {
		t.Errorf("UpdateTokens called %d times after failed refresh", store.updates)
	}
}

func TestBotTokenConcurrentCallersShareOneRefresh(t *testing.T) {
	expires := time.Now().Add(-time.Minute)
	newExpiry := time.Now().Add(12 * time.Hour)
	store := &fakeStore{inst: Installation{
		ID:             uuid.New(),
		BotToken:       "xoxb-old",
		RefreshToken:   "xoxe-old",
		TokenExpiresAt: &expires,
	}}
	refresher := &fakeRefresher{
		result: slack.RefreshedToken{AccessToken: "xoxb-new", RefreshToken: "xoxe-new", ExpiresAt: &newExpiry},
		delay:  50 * time.Millisecond,
	}
	mgr := testManager(store, refresher)
	userID := uuid.New()

	var wg sync.WaitGroup
	tokens := make([]string, 8)
	for i := range tokens {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			token, err := mgr.BotToken(context.Background(), userID)
			if err != nil {
				t.Errorf("unexpected error: %v", err)
			}
			tokens[i] = token
		}(i)
	}
	wg.Wait()

	for i, token := range tokens {
		if token != "xoxb-new" {
			t.Errorf("tokens[%d] = %q, want xoxb-new", i, token)
		}
	}
	if refresher.calls != 1 {
		t.Errorf("refresher called %d times, want 1", refresher.calls)
	}
}

func TestBotTokenPropagatesLookupError(t *testing.T) {
	store := &fakeStore{getErr: ErrInstallationNotFound}
	mgr := testManager(store, &fakeRefresher{})

	if _, err := mgr.BotToken(context.Background(), uuid.New()); !errors.Is(err, ErrInstallationNotFound) {
		t.Errorf("err = %v, want ErrInstallationNotFound", err)
	}
}
