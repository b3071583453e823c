package cache

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"adecis_backend/platform/logger"
)

const (
	keyPrefix = "adecis"

	dedupTTL   = 5 * time.Minute
	windowSize = time.Minute
)

// Per-minute caps for the named limiters.
const (
	SlackEventLimit = 30 // per team
	EmailLimit      = 20 // per tenant
	ScoringLimit    = 10 // per tenant
)

// Limiter provides sliding-window rate limiting and event deduplication on
// top of a shared redis instance.
type Limiter struct {
	client *redis.Client
	log    *logger.Logger
	now    func() time.Time
}

// NewLimiter creates a Limiter. client may be nil (cache disabled), in which
// case every check allows.
func NewLimiter(client *redis.Client, log *logger.Logger) *Limiter {
	return &Limiter{client: client, log: log, now: time.Now}
}

// IsDuplicate atomically sets a short-lived marker for the event ID and
// reports whether the marker already existed. A redis failure reports
// not-a-duplicate: processing an event twice is recoverable, dropping it
// is not.
func (l *Limiter) IsDuplicate(ctx context.Context, eventID string) bool {
	if l.client == nil {
		return false
	}

	key := fmt.Sprintf("%s:dedup:%s", keyPrefix, eventID)
	created, err := l.client.SetNX(ctx, key, "1", dedupTTL).Result()
	if err != nil {
		l.log.CacheFailOpen("dedup", err)
		return false
	}
	return !created
}

// AllowSlackEvent checks the per-team slack event limiter.
func (l *Limiter) AllowSlackEvent(ctx context.Context, teamID string) bool {
	return l.allow(ctx, "slack", teamID, SlackEventLimit)
}

// AllowEmail checks the per-tenant inbound email limiter.
func (l *Limiter) AllowEmail(ctx context.Context, userID string) bool {
	return l.allow(ctx, "email", userID, EmailLimit)
}

// AllowScoring checks the per-tenant scoring-call limiter.
func (l *Limiter) AllowScoring(ctx context.Context, userID string) bool {
	return l.allow(ctx, "ai", userID, ScoringLimit)
}

// allow implements a weighted two-bucket sliding window: the previous
// minute's count is weighted by how much of it still overlaps the trailing
// 60s window. Any redis failure allows the request through.
func (l *Limiter) allow(ctx context.Context, name, identifier string, limit int) bool {
	if l.client == nil {
		return true
	}

	now := l.now()
	bucket := now.UnixMilli() / windowSize.Milliseconds()
	elapsed := float64(now.UnixMilli()%windowSize.Milliseconds()) / float64(windowSize.Milliseconds())

	currentKey := fmt.Sprintf("%s:%s:%s:%d", keyPrefix, name, identifier, bucket)
	previousKey := fmt.Sprintf("%s:%s:%s:%d", keyPrefix, name, identifier, bucket-1)

	pipe := l.client.Pipeline()
	currentCmd := pipe.Incr(ctx, currentKey)
	pipe.Expire(ctx, currentKey, 2*windowSize)
	previousCmd := pipe.Get(ctx, previousKey)

	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		l.log.CacheFailOpen("ratelimit:"+name, err)
		return true
	}

	current := currentCmd.Val()
	var previous int64
	if raw, err := previousCmd.Result(); err == nil {
		previous, _ = strconv.ParseInt(raw, 10, 64)
	}

	weighted := float64(previous)*(1-elapsed) + float64(current)
	if weighted > float64(limit) {
		l.log.RateLimitExceeded(identifier, name)
		return false
	}
	return true
}
