package governance

import (
	"fmt"
	"sync"
	"time"

	"github.com/deskmesh/deskmesh/pkg/domain"
)

// LimitScope identifies which bucket in the admission chain rejected a
// request.
type LimitScope string

const (
	// ScopeGlobalMinute is the shared per-minute ceiling.
	ScopeGlobalMinute LimitScope = "global_minute"
	// ScopeGlobalHour is the shared per-hour ceiling.
	ScopeGlobalHour LimitScope = "global_hour"
	// ScopeUserMinute is the per-identity per-minute limit.
	ScopeUserMinute LimitScope = "user_minute"
	// ScopeUserHour is the per-identity per-hour limit.
	ScopeUserHour LimitScope = "user_hour"
)

// RateLimitError reports an admission rejection with the wait until the
// failing bucket has a token again.
type RateLimitError struct {
	RetryAfter time.Duration
	Scope      LimitScope
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded (%s); retry after %.1fs", e.Scope, e.RetryAfter.Seconds())
}

// TierLimits defines per-identity rate limit settings for one service tier.
type TierLimits struct {
	RequestsPerMinute int
	RequestsPerHour   int
	BurstSize         int
}

// DefaultTierLimits returns the built-in tier table.
func DefaultTierLimits() map[domain.Tier]TierLimits {
	return map[domain.Tier]TierLimits{
		domain.TierPlatinum: {RequestsPerMinute: 100, RequestsPerHour: 5000, BurstSize: 20},
		domain.TierGold:     {RequestsPerMinute: 60, RequestsPerHour: 2000, BurstSize: 15},
		domain.TierSilver:   {RequestsPerMinute: 30, RequestsPerHour: 1000, BurstSize: 10},
		domain.TierStandard: {RequestsPerMinute: 10, RequestsPerHour: 300, BurstSize: 5},
	}
}

// RateLimiterConfig defines global ceilings and per-tier overrides.
type RateLimiterConfig struct {
	GlobalPerMinute int
	GlobalPerHour   int
	EnableGlobal    bool
	Tiers           map[domain.Tier]TierLimits
}

// DefaultRateLimiterConfig returns the baseline limiter settings.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		GlobalPerMinute: 1000,
		GlobalPerHour:   50000,
		EnableGlobal:    true,
		Tiers:           DefaultTierLimits(),
	}
}

// RateLimiter implements token-bucket admission control with a global scope
// shared across all callers and a per-identity scope keyed by caller ID.
//
// A check consumes one token from each bucket in a fixed order: global
// minute, global hour, identity minute, identity hour. The first empty
// bucket fails the whole check; tokens already consumed from earlier buckets
// in the chain are not refunded.
type RateLimiter struct {
	mu    sync.Mutex
	users map[string]*userBuckets
	tiers map[domain.Tier]TierLimits

	enableGlobal bool
	globalMinute *tokenBucket
	globalHour   *tokenBucket

	now func() time.Time
}

type userBuckets struct {
	minute *tokenBucket
	hour   *tokenBucket
}

// NewRateLimiter creates a limiter with the provided configuration. Missing
// tier entries fall back to the built-in table.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.GlobalPerMinute <= 0 {
		cfg.GlobalPerMinute = 1000
	}
	if cfg.GlobalPerHour <= 0 {
		cfg.GlobalPerHour = 50000
	}

	tiers := DefaultTierLimits()
	for tier, limits := range cfg.Tiers {
		tiers[tier] = limits
	}

	now := time.Now
	return &RateLimiter{
		users:        make(map[string]*userBuckets),
		tiers:        tiers,
		enableGlobal: cfg.EnableGlobal,
		globalMinute: newTokenBucket(cfg.GlobalPerMinute, float64(cfg.GlobalPerMinute)/60.0, now()),
		globalHour:   newTokenBucket(cfg.GlobalPerHour, float64(cfg.GlobalPerHour)/3600.0, now()),
		now:          now,
	}
}

// Check admits or rejects one request for the given identity. It returns a
// *RateLimitError when any bucket in the chain is empty.
func (rl *RateLimiter) Check(userID string, tier domain.Tier) error {
	now := rl.now()

	if rl.enableGlobal {
		if !rl.globalMinute.take(now) {
			return &RateLimitError{RetryAfter: rl.globalMinute.waitTime(now), Scope: ScopeGlobalMinute}
		}
		if !rl.globalHour.take(now) {
			return &RateLimitError{RetryAfter: rl.globalHour.waitTime(now), Scope: ScopeGlobalHour}
		}
	}

	buckets := rl.userBucketsFor(userID, tier, now)

	if !buckets.minute.take(now) {
		return &RateLimitError{RetryAfter: buckets.minute.waitTime(now), Scope: ScopeUserMinute}
	}
	if !buckets.hour.take(now) {
		return &RateLimitError{RetryAfter: buckets.hour.waitTime(now), Scope: ScopeUserHour}
	}
	return nil
}

// RemainingRequests reports current post-refill token counts without
// consuming any.
type RemainingRequests struct {
	PerMinute int `json:"remaining_per_minute"`
	PerHour   int `json:"remaining_per_hour"`
}

// Remaining returns the identity's current token counts. Buckets are created
// lazily with tier defaults if the identity has not been seen before.
func (rl *RateLimiter) Remaining(userID string, tier domain.Tier) RemainingRequests {
	now := rl.now()
	buckets := rl.userBucketsFor(userID, tier, now)
	return RemainingRequests{
		PerMinute: buckets.minute.remaining(now),
		PerHour:   buckets.hour.remaining(now),
	}
}

// Reset discards the identity's buckets so the next request starts with a
// full burst allowance.
func (rl *RateLimiter) Reset(userID string) {
	rl.mu.Lock()
	delete(rl.users, userID)
	rl.mu.Unlock()
}

// CleanupInactive evicts per-identity state untouched within the threshold
// and returns the number of identities removed.
func (rl *RateLimiter) CleanupInactive(threshold time.Duration) int {
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	removed := 0
	for userID, buckets := range rl.users {
		if now.Sub(buckets.minute.lastTouched()) > threshold {
			delete(rl.users, userID)
			removed++
		}
	}
	return removed
}

func (rl *RateLimiter) userBucketsFor(userID string, tier domain.Tier, now time.Time) *userBuckets {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	if buckets, ok := rl.users[userID]; ok {
		return buckets
	}

	limits, ok := rl.tiers[tier]
	if !ok {
		limits = rl.tiers[domain.TierStandard]
	}

	buckets := &userBuckets{
		minute: newTokenBucket(limits.BurstSize, float64(limits.RequestsPerMinute)/60.0, now),
		hour:   newTokenBucket(limits.RequestsPerHour, float64(limits.RequestsPerHour)/3600.0, now),
	}
	rl.users[userID] = buckets
	return buckets
}

// tokenBucket holds up to capacity tokens and refills lazily at a fixed rate
// whenever it is accessed. The token count is always in [0, capacity].
type tokenBucket struct {
	mu         sync.Mutex
	capacity   float64
	rate       float64 // tokens per second
	tokens     float64
	lastRefill time.Time
}

func newTokenBucket(capacity int, rate float64, now time.Time) *tokenBucket {
	if capacity <= 0 {
		capacity = 1
	}
	if rate <= 0 {
		rate = 1
	}
	return &tokenBucket{
		capacity:   float64(capacity),
		rate:       rate,
		tokens:     float64(capacity),
		lastRefill: now,
	}
}

// take attempts to consume one token, refilling first.
func (tb *tokenBucket) take(now time.Time) bool {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1.0 {
		tb.tokens -= 1.0
		return true
	}
	return false
}

// waitTime returns how long until one token is available.
func (tb *tokenBucket) waitTime(now time.Time) time.Duration {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	if tb.tokens >= 1.0 {
		return 0
	}
	needed := 1.0 - tb.tokens
	return time.Duration(needed / tb.rate * float64(time.Second))
}

func (tb *tokenBucket) remaining(now time.Time) int {
	tb.mu.Lock()
	defer tb.mu.Unlock()

	tb.refill(now)
	return int(tb.tokens)
}

func (tb *tokenBucket) lastTouched() time.Time {
	tb.mu.Lock()
	defer tb.mu.Unlock()
	return tb.lastRefill
}

func (tb *tokenBucket) refill(now time.Time) {
	elapsed := now.Sub(tb.lastRefill).Seconds()
	if elapsed > 0 {
		tb.tokens += elapsed * tb.rate
		if tb.tokens > tb.capacity {
			tb.tokens = tb.capacity
		}
	}
	tb.lastRefill = now
}
