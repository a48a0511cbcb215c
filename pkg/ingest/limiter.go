package ingest

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// tokenBucketScript implements an atomic refill-and-consume token bucket in
// Redis, so webhook admission is rate-limited consistently across every
// replica of the ingestion bridge rather than per-process.
// KEYS[1] = bucket key ("ingest:<participant>")
// ARGV[1] = refill rate (tokens per second)
// ARGV[2] = capacity (burst size)
// ARGV[3] = cost (tokens to consume, normally 1 per webhook call)
// ARGV[4] = current unix time in seconds (float)
var tokenBucketScript = redis.NewScript(`
local key = KEYS[1]
local rate = tonumber(ARGV[1])
local capacity = tonumber(ARGV[2])
local cost = tonumber(ARGV[3])
local now = tonumber(ARGV[4])

local state = redis.call("HMGET", key, "tokens", "last_refill")
local tokens = tonumber(state[1])
local last_refill = tonumber(state[2])

if not tokens or not last_refill then
    tokens = capacity
    last_refill = now
end

local elapsed = now - last_refill
if elapsed > 0 then
    tokens = math.min(capacity, tokens + elapsed * rate)
    last_refill = now
end

local allowed = 0
if tokens >= cost then
    tokens = tokens - cost
    allowed = 1
end

redis.call("HMSET", key, "tokens", tokens, "last_refill", last_refill)
redis.call("EXPIRE", key, 60)

return {allowed, tokens}
`)

// RatePolicy bounds how often one participant may submit ingestion
// webhooks: RPM tokens refill per minute, up to a Burst-sized bucket.
type RatePolicy struct {
	RPM   int
	Burst int
}

// Limiter is a Redis-backed distributed rate limiter for webhook
// admission, keyed per participant so one noisy attestor can't starve
// another's ingestion.
type Limiter struct {
	client *redis.Client
}

// NewLimiter builds a Limiter against the given Redis address.
func NewLimiter(addr, password string, db int) *Limiter {
	return &Limiter{client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})}
}

// Allow consumes cost tokens from participantID's bucket under policy,
// reporting whether the call should proceed.
func (l *Limiter) Allow(ctx context.Context, participantID string, policy RatePolicy, cost int) (bool, error) {
	key := fmt.Sprintf("ingest:%s", participantID)

	rate := float64(policy.RPM) / 60.0
	if rate <= 0 {
		rate = 1.0
	}
	now := float64(time.Now().UnixMicro()) / 1e6

	res, err := tokenBucketScript.Run(ctx, l.client, []string{key}, rate, policy.Burst, cost, now).Result()
	if err != nil {
		return false, fmt.Errorf("ingest: rate limiter error: %w", err)
	}

	results, ok := res.([]interface{})
	if !ok || len(results) != 2 {
		return false, fmt.Errorf("ingest: unexpected rate limiter response")
	}
	allowed, _ := results[0].(int64)
	return allowed == 1, nil
}
