package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/medianamer-platform/medianamer/internal/config"
	"github.com/medianamer-platform/medianamer/internal/metrics"
)

// Operation names the rate-limited surfaces. Single-resource operations
// share one budget; bulk gets its own, tighter one.
type Operation string

const (
	OpRename  Operation = "rename"
	OpSuggest Operation = "suggest"
	OpBulk    Operation = "rename_bulk"
)

const keyPrefix = "ratelimit:"

// Limit is a fixed-window budget: at most Max admitted requests per Window.
type Limit struct {
	Max    int
	Window time.Duration
}

// LimitExceededError reports a full window and when it resets.
type LimitExceededError struct {
	Operation  Operation
	Max        int
	RetryAfter time.Duration
}

func (e *LimitExceededError) Error() string {
	return fmt.Sprintf("rate limit exceeded for %s: max %d requests, retry in %s",
		e.Operation, e.Max, e.RetryAfter.Round(time.Second))
}

// Limiter enforces fixed-window limits per (owner, operation) on Redis.
// The window starts at the first request and the counter is a single INCR,
// so concurrent requests cannot admit more than Max (the source design's
// read-then-write race is deliberately tightened here).
type Limiter struct {
	rdb          redis.Cmdable
	limits       map[Operation]Limit
	exemptAdmins bool
}

func New(rdb redis.Cmdable, cfg config.RateLimitConfig, debug bool) *Limiter {
	return &Limiter{
		rdb: rdb,
		limits: map[Operation]Limit{
			OpRename:  {Max: cfg.SingleMax, Window: cfg.SingleWindow},
			OpSuggest: {Max: cfg.SingleMax, Window: cfg.SingleWindow},
			OpBulk:    {Max: cfg.BulkMax, Window: cfg.BulkWindow},
		},
		exemptAdmins: cfg.ExemptAdmins && debug,
	}
}

// Admit reports whether the owner may perform op now. It returns a
// *LimitExceededError when the window is full. On Redis errors it fails
// open (allows the request) so an infra outage cannot block all users.
func (l *Limiter) Admit(ctx context.Context, ownerID string, op Operation, admin bool) error {
	if l.exemptAdmins && admin {
		return nil
	}

	limit, ok := l.limits[op]
	if !ok {
		return fmt.Errorf("unknown operation %q", op)
	}

	key := key(ownerID, op)

	// ExpireNX on every call starts the window on the first request and
	// re-arms a counter that lost its expiry, without sliding an active one.
	pipe := l.rdb.Pipeline()
	incr := pipe.Incr(ctx, key)
	pipe.ExpireNX(ctx, key, limit.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		slog.Warn("rate limiter: redis error, failing open", "error", err, "owner", ownerID, "operation", op)
		return nil
	}
	count := incr.Val()

	if count > int64(limit.Max) {
		retryAfter := limit.Window
		if ttl, err := l.rdb.TTL(ctx, key).Result(); err == nil && ttl > 0 {
			retryAfter = ttl
		}
		metrics.RateLimitRejectionsTotal.WithLabelValues(string(op)).Inc()
		return &LimitExceededError{Operation: op, Max: limit.Max, RetryAfter: retryAfter}
	}

	return nil
}

// Usage returns the admitted count in the current window and the time until
// it resets. A missing window reports zero usage.
func (l *Limiter) Usage(ctx context.Context, ownerID string, op Operation) (int, time.Duration, error) {
	key := key(ownerID, op)

	count, err := l.rdb.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("reading window counter: %w", err)
	}

	ttl, err := l.rdb.TTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("reading window ttl: %w", err)
	}
	if ttl < 0 {
		ttl = 0
	}

	if limit, ok := l.limits[op]; ok && count > int64(limit.Max) {
		count = int64(limit.Max)
	}
	return int(count), ttl, nil
}

func key(ownerID string, op Operation) string {
	return keyPrefix + string(op) + ":" + ownerID
}
