package ingestion

import (
	"context"
	"fmt"
	"time"

	"github.com/flowmetry/backend/internal/infrastructure/ratelimit"
	"go.uber.org/zap"
)

// Decision is the outcome of a rate limit check for one request
type Decision struct {
	Allowed   bool
	Limit     int64
	Remaining int64
	ResetAt   time.Time
}

// RateLimiterConfig holds fixed-window limiter settings
type RateLimiterConfig struct {
	Window      time.Duration
	APIKeyLimit int64
	IPLimit     int64
}

// RateLimiter enforces a fixed-window request quota per caller
// identity. Callers presenting a known API key get the higher limit;
// everyone else is limited by source IP.
type RateLimiter struct {
	store  ratelimit.CounterStore
	config RateLimiterConfig
	logger *zap.Logger
	now    func() time.Time
}

// NewRateLimiter creates a rate limiter backed by the given counter store
func NewRateLimiter(store ratelimit.CounterStore, config RateLimiterConfig, logger *zap.Logger) *RateLimiter {
	if config.Window <= 0 {
		config.Window = time.Hour
	}
	return &RateLimiter{
		store:  store,
		config: config,
		logger: logger,
		now:    time.Now,
	}
}

// Check counts the request against the caller's window and decides
// whether it may proceed. If the counter store is unreachable the
// request is allowed, with Remaining reported as zero.
func (l *RateLimiter) Check(ctx context.Context, identity string, hasAPIKey bool) Decision {
	limit := l.config.IPLimit
	scope := "ip"
	if hasAPIKey {
		limit = l.config.APIKeyLimit
		scope = "api_key"
	}

	now := l.now()
	windowStart := now.Truncate(l.config.Window)
	resetAt := windowStart.Add(l.config.Window)
	key := fmt.Sprintf("%s:%s:%d", scope, identity, windowStart.Unix())

	count, err := l.store.Increment(ctx, key, l.config.Window)
	if err != nil {
		l.logger.Warn("Rate limit store unavailable, allowing request",
			zap.String("scope", scope),
			zap.Error(err))
		return Decision{Allowed: true, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}

	if count > limit {
		// Undo the increment so stored counts never exceed the limit
		if err := l.store.Decrement(ctx, key); err != nil {
			l.logger.Warn("Failed to roll back over-limit increment", zap.Error(err))
		}
		return Decision{Allowed: false, Limit: limit, Remaining: 0, ResetAt: resetAt}
	}

	return Decision{Allowed: true, Limit: limit, Remaining: limit - count, ResetAt: resetAt}
}
