package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// One hash per key holds {tokens, ts}. The clock is the redis server's so
// every API replica refills against the same time source.
//
// Reply: {allowed (0|1), tokens left, milliseconds until the next token}.
const tokenBucketScript = `
local rate  = tonumber(ARGV[1])
local burst = tonumber(ARGV[2])
local ttlMs = tonumber(ARGV[3])

local t = redis.call("TIME")
local nowMs = t[1] * 1000 + math.floor(t[2] / 1000)

local state = redis.call("HMGET", KEYS[1], "tokens", "ts")
local tokens = burst
local prev = tonumber(state[1])
if prev ~= nil then
  local elapsed = math.max(0, nowMs - (tonumber(state[2]) or nowMs))
  tokens = math.min(burst, prev + elapsed * rate / 1000)
end

local allowed = 0
local waitMs = 0
if tokens >= 1 then
  allowed = 1
  tokens = tokens - 1
else
  waitMs = math.ceil((1 - tokens) * 1000 / rate)
end

redis.call("HSET", KEYS[1], "tokens", tostring(tokens), "ts", nowMs)
redis.call("PEXPIRE", KEYS[1], ttlMs)
return {allowed, tostring(tokens), waitMs}
`

var (
	ErrNotConfigured = errors.New("rate limiter not configured")
	ErrInvalidBucket = errors.New("rate limiter bucket is invalid")
)

type TokenBucket struct {
	client *redis.Client
	script *redis.Script
}

type RateLimitResult struct {
	Allowed    bool
	Limit      int
	Remaining  int
	RetryAfter time.Duration
}

func NewTokenBucket(client *redis.Client) *TokenBucket {
	if client == nil {
		return nil
	}
	return &TokenBucket{client: client, script: redis.NewScript(tokenBucketScript)}
}

// Allow takes one token from the bucket at key. The bucket refills at rate
// tokens per second and holds at most burst.
func (t *TokenBucket) Allow(ctx context.Context, key string, rate float64, burst int) (*RateLimitResult, error) {
	if t == nil || t.client == nil {
		return nil, ErrNotConfigured
	}
	if key == "" || rate <= 0 || burst <= 0 {
		return nil, ErrInvalidBucket
	}

	idle := idleTTL(rate, burst)
	reply, err := t.script.Run(ctx, t.client, []string{key}, rate, burst, idle.Milliseconds()).Slice()
	if err != nil {
		return nil, err
	}
	result, err := parseBucketReply(reply)
	if err != nil {
		return nil, err
	}
	result.Limit = burst
	return result, nil
}

func parseBucketReply(reply []any) (*RateLimitResult, error) {
	if len(reply) != 3 {
		return nil, fmt.Errorf("token bucket: unexpected reply length %d", len(reply))
	}
	allowed, ok := reply[0].(int64)
	if !ok {
		return nil, fmt.Errorf("token bucket: allowed flag is %T", reply[0])
	}
	tokensText, ok := reply[1].(string)
	if !ok {
		return nil, fmt.Errorf("token bucket: tokens is %T", reply[1])
	}
	tokens, err := strconv.ParseFloat(tokensText, 64)
	if err != nil {
		return nil, fmt.Errorf("token bucket: %w", err)
	}
	waitMs, ok := reply[2].(int64)
	if !ok {
		return nil, fmt.Errorf("token bucket: wait is %T", reply[2])
	}

	return &RateLimitResult{
		Allowed:    allowed == 1,
		Remaining:  int(math.Floor(tokens)),
		RetryAfter: time.Duration(waitMs) * time.Millisecond,
	}, nil
}

// idleTTL keeps an untouched bucket for two full refills, never under a second.
func idleTTL(rate float64, burst int) time.Duration {
	refill := time.Duration(float64(burst) / rate * float64(time.Second))
	return max(2*refill, time.Second)
}
