package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// RateLimiter paces calls to a shared external provider. It is a thin
// token bucket on top of x/time/rate.
type RateLimiter struct {
	limiter *rate.Limiter
}

// RateLimiterConfig configures a rate limiter.
type RateLimiterConfig struct {
	MaxTokens  int     // Maximum bucket capacity (burst)
	RefillRate float64 // Tokens added per second
}

// DefaultRateLimiterConfig returns default configuration.
func DefaultRateLimiterConfig() RateLimiterConfig {
	return RateLimiterConfig{
		MaxTokens:  5,
		RefillRate: 0.5,
	}
}

// PerMinute builds a config allowing rpm requests per minute. A non-positive
// rpm disables limiting.
func PerMinute(rpm int) RateLimiterConfig {
	if rpm <= 0 {
		return RateLimiterConfig{}
	}
	burst := rpm / 10
	if burst < 1 {
		burst = 1
	}
	return RateLimiterConfig{
		MaxTokens:  burst,
		RefillRate: float64(rpm) / 60,
	}
}

// NewRateLimiter creates a new rate limiter. A zero refill rate yields an
// unlimited limiter.
func NewRateLimiter(cfg RateLimiterConfig) *RateLimiter {
	if cfg.RefillRate <= 0 {
		return &RateLimiter{limiter: rate.NewLimiter(rate.Inf, 0)}
	}
	burst := cfg.MaxTokens
	if burst < 1 {
		burst = 1
	}
	return &RateLimiter{limiter: rate.NewLimiter(rate.Limit(cfg.RefillRate), burst)}
}

// Acquire blocks until a token is available or context is cancelled.
func (r *RateLimiter) Acquire(ctx context.Context) error {
	return r.limiter.Wait(ctx)
}

// TryAcquire attempts to acquire a token without blocking.
func (r *RateLimiter) TryAcquire() bool {
	return r.limiter.Allow()
}

// Available returns the current number of available tokens.
func (r *RateLimiter) Available() float64 {
	return r.limiter.TokensAt(time.Now())
}

// MaxTokens returns the maximum capacity.
func (r *RateLimiter) MaxTokens() int {
	return r.limiter.Burst()
}

// RefillRate returns the refill rate in tokens per second.
func (r *RateLimiter) RefillRate() float64 {
	return float64(r.limiter.Limit())
}

// RateLimiterRegistry hands out one limiter per provider so judges sharing a
// backend share its budget.
type RateLimiterRegistry struct {
	limiters map[string]*RateLimiter
	configs  map[string]RateLimiterConfig
	fallback RateLimiterConfig
	mu       sync.Mutex
}

// NewRateLimiterRegistry creates a registry whose unknown providers use fallback.
func NewRateLimiterRegistry(fallback RateLimiterConfig) *RateLimiterRegistry {
	return &RateLimiterRegistry{
		limiters: make(map[string]*RateLimiter),
		configs:  make(map[string]RateLimiterConfig),
		fallback: fallback,
	}
}

// Get returns the rate limiter for a provider.
func (r *RateLimiterRegistry) Get(provider string) *RateLimiter {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limiter, ok := r.limiters[provider]; ok {
		return limiter
	}

	cfg, ok := r.configs[provider]
	if !ok {
		cfg = r.fallback
	}
	limiter := NewRateLimiter(cfg)
	r.limiters[provider] = limiter
	return limiter
}

// SetConfig updates the configuration for a provider.
func (r *RateLimiterRegistry) SetConfig(provider string, cfg RateLimiterConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.configs[provider] = cfg
	r.limiters[provider] = NewRateLimiter(cfg)
}

// RateLimiterStatus contains status information.
type RateLimiterStatus struct {
	Available  float64
	MaxTokens  int
	RefillRate float64
}

// Status returns rate limiter status for all providers in use.
func (r *RateLimiterRegistry) Status() map[string]RateLimiterStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	status := make(map[string]RateLimiterStatus, len(r.limiters))
	for name, limiter := range r.limiters {
		status[name] = RateLimiterStatus{
			Available:  limiter.Available(),
			MaxTokens:  limiter.MaxTokens(),
			RefillRate: limiter.RefillRate(),
		}
	}
	return status
}

// List returns the provider names with active limiters, sorted.
func (r *RateLimiterRegistry) List() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.limiters))
	for name := range r.limiters {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
