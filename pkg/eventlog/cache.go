package eventlog

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/mcp-tool-shop-org/repomesh/pkg/canon"
)

// cacheSetIfFreshScript atomically stores a parsed-event blob keyed by log
// fingerprint, but only if the stored fingerprint hasn't moved on since the
// caller last observed it. This prevents a slow parser racing a newer
// admission from clobbering a fresher cache entry with stale data.
// KEYS[1] = cache key
// ARGV[1] = expected previous fingerprint (empty string if none expected)
// ARGV[2] = new fingerprint
// ARGV[3] = serialized payload
// ARGV[4] = TTL seconds
var cacheSetIfFreshScript = redis.NewScript(`
local key = KEYS[1]
local expected_fp = ARGV[1]
local new_fp = ARGV[2]
local payload = ARGV[3]
local ttl = tonumber(ARGV[4])

local current = redis.call("HGET", key, "fingerprint")

if expected_fp == "" then
    if current ~= false then
        return 0
    end
elseif current ~= expected_fp then
    return 0
end

redis.call("HSET", key, "fingerprint", new_fp, "payload", payload)
redis.call("EXPIRE", key, ttl)
return 1
`)

// Cache provides a Redis-backed cache of parsed event-log state, keyed by a
// fingerprint of the underlying log bytes (its length and content hash).
// Admission always remains authoritative; the cache only accelerates reads
// (e.g. repeated verifyRelease calls against an unchanged log).
type Cache struct {
	client *redis.Client
	ttl    int
}

// NewCache builds a Cache against the given Redis address.
func NewCache(addr, password string, db int, ttlSeconds int) *Cache {
	return &Cache{
		client: redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db}),
		ttl:    ttlSeconds,
	}
}

// Fingerprint derives a cheap fingerprint for log content: its byte length
// and the hex SHA-256 of the raw bytes, concatenated. A cache consumer compares this against
// its last-known fingerprint before trusting a cached payload.
func Fingerprint(logBytes []byte) string {
	return fmt.Sprintf("%d:%s", len(logBytes), canon.HashBytes(logBytes))
}

// StoreIfFresh writes payload under key if the cache's current fingerprint
// still matches expectedPrevFingerprint (or the key is empty/missing when
// expectedPrevFingerprint is ""). Returns false if a newer write already
// landed, meaning the caller's parsed payload is stale and should be
// discarded rather than cached.
func (c *Cache) StoreIfFresh(ctx context.Context, key, expectedPrevFingerprint, newFingerprint string, payload []byte) (bool, error) {
	res, err := cacheSetIfFreshScript.Run(ctx, c.client, []string{key}, expectedPrevFingerprint, newFingerprint, string(payload), c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("eventlog: cache store failed: %w", err)
	}
	stored, _ := res.(int64)
	return stored == 1, nil
}

// Get retrieves the cached fingerprint and payload for key, if any.
func (c *Cache) Get(ctx context.Context, key string) (fingerprint string, payload []byte, found bool, err error) {
	res, err := c.client.HMGet(ctx, key, "fingerprint", "payload").Result()
	if err != nil {
		return "", nil, false, fmt.Errorf("eventlog: cache get failed: %w", err)
	}
	if len(res) != 2 || res[0] == nil || res[1] == nil {
		return "", nil, false, nil
	}
	fp, _ := res[0].(string)
	pl, _ := res[1].(string)
	if fp == "" {
		return "", nil, false, nil
	}
	return fp, []byte(pl), true, nil
}
