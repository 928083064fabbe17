// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package ratelimit implements a token-bucket rate limiter keyed by
// service and action. Buckets are shared process-wide through a Registry
// so every caller hitting the same upstream paces against the same budget.
package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Config describes one bucket.
type Config struct {
	// Capacity is the maximum token count (burst allowance).
	Capacity float64
	// RefillRate is tokens added per second.
	RefillRate float64
}

// Validate checks that the config describes a usable bucket.
func (c Config) Validate() error {
	if c.Capacity <= 0 {
		return fmt.Errorf("capacity must be positive, got %v", c.Capacity)
	}
	if c.RefillRate <= 0 {
		return fmt.Errorf("refill rate must be positive, got %v", c.RefillRate)
	}
	return nil
}

// Bucket is a single token bucket. All methods are safe for concurrent use.
type Bucket struct {
	mu         sync.Mutex
	capacity   float64
	refillRate float64
	tokens     float64
	lastRefill time.Time

	// now is swapped in tests.
	now func() time.Time
	// sleep is swapped in tests.
	sleep func(ctx context.Context, d time.Duration) error
}

// NewBucket creates a full bucket.
func NewBucket(cfg Config) (*Bucket, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	b := &Bucket{
		capacity:   cfg.Capacity,
		refillRate: cfg.RefillRate,
		tokens:     cfg.Capacity,
		now:        time.Now,
		sleep:      sleepCtx,
	}
	b.lastRefill = b.now()
	return b, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// refill must be called with the mutex held.
func (b *Bucket) refill() {
	now := b.now()
	elapsed := now.Sub(b.lastRefill).Seconds()
	if elapsed > 0 {
		b.tokens = min(b.capacity, b.tokens+elapsed*b.refillRate)
		b.lastRefill = now
	}
}

// Acquire blocks until n tokens are available or ctx is done.
func (b *Bucket) Acquire(ctx context.Context, n float64) error {
	if n > b.capacity {
		return fmt.Errorf("requested %v tokens exceeds capacity %v", n, b.capacity)
	}

	for {
		b.mu.Lock()
		b.refill()

		if b.tokens >= n {
			b.tokens -= n
			b.mu.Unlock()
			return nil
		}

		wait := time.Duration((n - b.tokens) / b.refillRate * float64(time.Second))
		b.mu.Unlock()

		if err := b.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// TryAcquire takes n tokens without blocking. It reports whether the tokens
// were taken.
func (b *Bucket) TryAcquire(n float64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	if b.tokens >= n {
		b.tokens -= n
		return true
	}
	return false
}

// Available returns the current token count after refill.
func (b *Bucket) Available() float64 {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.refill()
	return b.tokens
}

// Registry hands out buckets by key. Keys follow "service:action", with
// "service" alone covering all actions of that service.
type Registry struct {
	mu       sync.Mutex
	buckets  map[string]*Bucket
	defaults map[string]Config
	fallback Config
}

// Key builds a registry key for a service and action.
func Key(service, action string) string {
	if action == "" || action == "*" {
		return service
	}
	return service + ":" + action
}

// DefaultConfigs are the built-in per-service budgets. Tracker schemas may
// override them per action.
func DefaultConfigs() map[string]Config {
	return map[string]Config{
		"tmdb":           {Capacity: 4, RefillRate: 4},
		"tracker:upload": {Capacity: 1, RefillRate: 1},
		"tracker:search": {Capacity: 2, RefillRate: 2},
		"imagehost":      {Capacity: 1, RefillRate: 1},
		"flaresolverr":   {Capacity: 2, RefillRate: 0.5},
		"qbittorrent":    {Capacity: 10, RefillRate: 5},
		"prowlarr":       {Capacity: 5, RefillRate: 2},
	}
}

// NewRegistry creates a registry with the given per-key defaults. Unknown
// keys fall back to 1 token/s with a burst of 5.
func NewRegistry(defaults map[string]Config) *Registry {
	if defaults == nil {
		defaults = DefaultConfigs()
	}
	return &Registry{
		buckets:  make(map[string]*Bucket),
		defaults: defaults,
		fallback: Config{Capacity: 5, RefillRate: 1},
	}
}

// Get returns the bucket for key, creating it from defaults on first use.
func (r *Registry) Get(key string) *Bucket {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.buckets[key]; ok {
		return b
	}

	cfg, ok := r.defaults[key]
	if !ok {
		cfg = r.fallback
	}

	b, err := NewBucket(cfg)
	if err != nil {
		// Defaults are validated at construction; a bad override falls
		// back rather than panicking mid-pipeline.
		b, _ = NewBucket(r.fallback)
	}
	r.buckets[key] = b
	return b
}

// Configure installs or replaces the config for key. An existing bucket is
// rebuilt so schema overrides apply immediately.
func (r *Registry) Configure(key string, cfg Config) error {
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("rate limit for %q: %w", key, err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.defaults[key] = cfg
	if _, ok := r.buckets[key]; ok {
		b, err := NewBucket(cfg)
		if err != nil {
			return err
		}
		r.buckets[key] = b
	}
	return nil
}

// Acquire is shorthand for Get(key).Acquire(ctx, 1).
func (r *Registry) Acquire(ctx context.Context, key string) error {
	return r.Get(key).Acquire(ctx, 1)
}
