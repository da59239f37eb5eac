package slack

import (
	"sync"
	"time"
)

// RateLimitConfig holds inbound rate limiting configuration for Slack
type RateLimitConfig struct {
	Enabled           bool `yaml:"enabled"`
	MessagesPerMinute int  `yaml:"messages_per_minute"` // default: 20
	BurstSize         int  `yaml:"burst_size"`          // default: 5
}

// DefaultRateLimitConfig returns default rate limit configuration
func DefaultRateLimitConfig() *RateLimitConfig {
	return &RateLimitConfig{
		Enabled:           true,
		MessagesPerMinute: 20,
		BurstSize:         5,
	}
}

// RateLimiter implements per-channel token bucket rate limiting
type RateLimiter struct {
	config  *RateLimitConfig
	buckets map[string]*tokenBucket
	now     func() time.Time
	mu      sync.Mutex
}

type tokenBucket struct {
	tokens     float64
	lastRefill time.Time
}

// NewRateLimiter creates a new rate limiter with the given configuration
func NewRateLimiter(config *RateLimitConfig) *RateLimiter {
	if config == nil {
		config = DefaultRateLimitConfig()
	}
	return &RateLimiter{
		config:  config,
		buckets: make(map[string]*tokenBucket),
		now:     time.Now,
	}
}

func (r *RateLimiter) burst() float64 {
	burst := r.config.MessagesPerMinute
	if r.config.BurstSize > 0 && r.config.BurstSize < burst {
		burst = r.config.BurstSize
	}
	return float64(burst)
}

// Allow reports whether one more message from key may be handled now.
func (r *RateLimiter) Allow(key string) bool {
	if !r.config.Enabled {
		return true
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	b, ok := r.buckets[key]
	if !ok {
		b = &tokenBucket{tokens: r.burst(), lastRefill: now}
		r.buckets[key] = b
	}

	rate := float64(r.config.MessagesPerMinute) / 60.0 // per second
	b.tokens += now.Sub(b.lastRefill).Seconds() * rate
	if limit := r.burst(); b.tokens > limit {
		b.tokens = limit
	}
	b.lastRefill = now

	if b.tokens >= 1 {
		b.tokens--
		return true
	}
	return false
}

// Cleanup removes buckets that haven't been used for maxAge.
func (r *RateLimiter) Cleanup(maxAge time.Duration) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.now().Add(-maxAge)
	for key, b := range r.buckets {
		if b.lastRefill.Before(cutoff) {
			delete(r.buckets, key)
		}
	}
}
