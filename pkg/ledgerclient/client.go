// Package ledgerclient talks to the external public ledger the anchor
// engine anchors partitions against: submitting self-addressed payments
// carrying an anchor memo, and fetching back transactions by hash during
// anchor-proof replay.
package ledgerclient

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/mcp-tool-shop-org/repomesh/pkg/kernel/retry"
	"github.com/mcp-tool-shop-org/repomesh/pkg/rmerror"
)

// SubmitResult is what the external ledger returns for a submitted
// anchoring transaction.
type SubmitResult struct {
	TxHash            string
	TransactionResult string // ledger-native result code, e.g. "tesSUCCESS"
}

// Client is the consumed contract for the external public ledger: submit a
// self-addressed payment carrying a hex memo, and fetch a transaction's
// memos back by hash. Both operations are retriable; transport failures
// surface as ExternalLedgerUnavailable, a warn-class kind.
type Client interface {
	Submit(ctx context.Context, hexMemo string) (SubmitResult, error)
	FetchMemo(ctx context.Context, txHash string) (hexMemo string, err error)
}

// defaultPolicy bounds external-ledger I/O to 3 attempts in all (the first
// try plus 2 retries); the 10s per-request timeout lives in HTTPClient. Backoff
// delays are computed by pkg/kernel/retry's deterministic-jitter formula, so
// retry timing stays reproducible in tests rather than depending on a random
// source.
var defaultPolicy = retry.BackoffPolicy{PolicyID: "ledgerclient", BaseMs: 200, MaxMs: 5000, MaxJitterMs: 250, MaxAttempts: 3}

func computeBackoff(adapterID string, attempt int, policy retry.BackoffPolicy) time.Duration {
	return retry.ComputeBackoff(retry.BackoffParams{
		PolicyID:     policy.PolicyID,
		AdapterID:    adapterID,
		AttemptIndex: attempt,
	}, policy)
}

// breakerState names the circuit breaker's three states.
type breakerState string

const (
	breakerClosed   breakerState = "closed"
	breakerOpen     breakerState = "open"
	breakerHalfOpen breakerState = "half_open"
)

type circuitBreaker struct {
	mu           sync.Mutex
	threshold    int
	resetTimeout time.Duration
	failures     int
	lastFailure  time.Time
	state        breakerState
}

func newCircuitBreaker(threshold int, resetTimeout time.Duration) *circuitBreaker {
	return &circuitBreaker{threshold: threshold, resetTimeout: resetTimeout, state: breakerClosed}
}

func (b *circuitBreaker) allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == breakerOpen {
		if time.Since(b.lastFailure) > b.resetTimeout {
			b.state = breakerHalfOpen
			return true
		}
		return false
	}
	return true
}

func (b *circuitBreaker) success() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = breakerClosed
	b.failures = 0
}

func (b *circuitBreaker) failure() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.failures++
	b.lastFailure = time.Now()
	if b.failures >= b.threshold {
		b.state = breakerOpen
	}
}

// ResilientClient wraps an inner Client with rate limiting, bounded
// exponential backoff, and circuit breaking so anchor production and
// anchor-proof replay degrade gracefully rather than hammering the
// external ledger during an outage.
type ResilientClient struct {
	inner   Client
	limiter *rate.Limiter
	breaker *circuitBreaker
	policy  retry.BackoffPolicy
	sleep   func(time.Duration)
}

// NewResilientClient wraps inner with the default retry policy: 3 attempts,
// exponential backoff on a 200ms base (400ms before the second attempt,
// 800ms before the third), deterministic jitter up to 250ms, and a
// circuit breaker that opens after 5 consecutive failures for 10s.
func NewResilientClient(inner Client, requestsPerSecond float64) *ResilientClient {
	return &ResilientClient{
		inner:   inner,
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
		breaker: newCircuitBreaker(5, 10*time.Second),
		policy:  defaultPolicy,
		sleep:   time.Sleep,
	}
}

// WithSleep overrides the sleep function, for deterministic tests.
func (c *ResilientClient) WithSleep(sleep func(time.Duration)) *ResilientClient {
	c.sleep = sleep
	return c
}

func (c *ResilientClient) Submit(ctx context.Context, hexMemo string) (SubmitResult, error) {
	if !c.breaker.allow() {
		return SubmitResult{}, rmerror.New(rmerror.KindExternalLedgerUnavailable, "circuit breaker open")
	}
	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(computeBackoff("submit", attempt, c.policy))
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return SubmitResult{}, rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "rate limiter wait")
		}
		result, err := c.inner.Submit(ctx, hexMemo)
		if err == nil {
			c.breaker.success()
			return result, nil
		}
		lastErr = err
	}
	c.breaker.failure()
	return SubmitResult{}, rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, lastErr, "submit failed after %d attempts", c.policy.MaxAttempts)
}

func (c *ResilientClient) FetchMemo(ctx context.Context, txHash string) (string, error) {
	if !c.breaker.allow() {
		return "", rmerror.New(rmerror.KindExternalLedgerUnavailable, "circuit breaker open")
	}
	var lastErr error
	for attempt := 0; attempt < c.policy.MaxAttempts; attempt++ {
		if attempt > 0 {
			c.sleep(computeBackoff("fetch", attempt, c.policy))
		}
		if err := c.limiter.Wait(ctx); err != nil {
			return "", rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, err, "rate limiter wait")
		}
		memo, err := c.inner.FetchMemo(ctx, txHash)
		if err == nil {
			c.breaker.success()
			return memo, nil
		}
		lastErr = err
	}
	c.breaker.failure()
	return "", rmerror.Wrap(rmerror.KindExternalLedgerUnavailable, lastErr, "fetch memo failed after %d attempts", c.policy.MaxAttempts)
}
