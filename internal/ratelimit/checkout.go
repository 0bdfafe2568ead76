package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"strings"

	redis "github.com/redis/go-redis/v9"
	"github.com/smallbiznis/hireboard/internal/config"
)

const keyCheckoutUser = "checkout:user:%s"

// CheckoutLimiter caps how fast one user can open checkout sessions.
type CheckoutLimiter struct {
	enabled bool
	bucket  *TokenBucket
	rate    float64
	burst   int
}

func NewCheckoutLimiter(cfg config.Config, client *redis.Client) (*CheckoutLimiter, error) {
	limitCfg := cfg.RateLimit
	if !limitCfg.Enabled {
		return &CheckoutLimiter{}, nil
	}
	if client == nil {
		return nil, errors.New("rate limiting requires REDIS_ADDR")
	}
	if limitCfg.CheckoutRate <= 0 || limitCfg.CheckoutBurst <= 0 {
		return nil, errors.New("checkout rate limit must be positive")
	}
	return &CheckoutLimiter{
		enabled: true,
		bucket:  NewTokenBucket(client),
		rate:    limitCfg.CheckoutRate,
		burst:   limitCfg.CheckoutBurst,
	}, nil
}

func (l *CheckoutLimiter) Enabled() bool {
	return l != nil && l.enabled
}

func (l *CheckoutLimiter) Allow(ctx context.Context, userID string) (*RateLimitResult, error) {
	if !l.Enabled() {
		return &RateLimitResult{Allowed: true}, nil
	}
	return l.bucket.Allow(ctx, fmt.Sprintf(keyCheckoutUser, strings.TrimSpace(userID)), l.rate, l.burst)
}
