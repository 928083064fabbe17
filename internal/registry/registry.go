// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package registry bundles the process-wide rate limiter and circuit
// breaker registries and wraps outbound service calls with both plus the
// retry policy. Every external call in the pipeline goes through Call so
// pacing and failure isolation are shared across workers.
package registry

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/pkg/breaker"
	"github.com/seedarr/seedarr/pkg/ratelimit"
	"github.com/seedarr/seedarr/pkg/retryx"
)

// Registry holds the shared guards for external services.
type Registry struct {
	Limits   *ratelimit.Registry
	Breakers *breaker.Registry
	Retry    retryx.Options
}

// New builds a registry from configuration. Configured rate limit
// overrides replace the built-in defaults per key.
func New(cfg *domain.Config) *Registry {
	limits := ratelimit.NewRegistry(ratelimit.DefaultConfigs())
	for key, rl := range cfg.RateLimits {
		if err := limits.Configure(key, ratelimit.Config{Capacity: rl.Capacity, RefillRate: rl.RefillRate}); err != nil {
			log.Warn().Err(err).Str("key", key).Msg("registry: ignoring invalid rate limit override")
		}
	}

	breakerCfg := breaker.DefaultConfig()
	if cfg.Breaker.FailureThreshold > 0 {
		breakerCfg.FailureThreshold = cfg.Breaker.FailureThreshold
	}
	if cfg.Breaker.WindowSeconds > 0 {
		breakerCfg.Window = time.Duration(cfg.Breaker.WindowSeconds) * time.Second
	}
	if cfg.Breaker.OpenSeconds > 0 {
		breakerCfg.OpenDuration = time.Duration(cfg.Breaker.OpenSeconds) * time.Second
	}

	retryOpts := retryx.DefaultOptions()
	if cfg.Retry.MaxAttempts > 0 {
		retryOpts.MaxAttempts = uint(cfg.Retry.MaxAttempts)
	}
	if cfg.Retry.BaseDelaySeconds > 0 {
		retryOpts.BaseDelay = time.Duration(cfg.Retry.BaseDelaySeconds) * time.Second
	}
	if cfg.Retry.MaxDelaySeconds > 0 {
		retryOpts.MaxDelay = time.Duration(cfg.Retry.MaxDelaySeconds) * time.Second
	}

	return &Registry{
		Limits:   limits,
		Breakers: breaker.NewRegistry(breakerCfg),
		Retry:    retryOpts,
	}
}

// Call runs fn against service guarded by the service's rate limit bucket
// and circuit breaker, retrying retryable failures. The action selects a
// per-action bucket ("tracker:upload"); pass "" for the service-wide one.
func (r *Registry) Call(ctx context.Context, service, action string, fn func(ctx context.Context) error) error {
	key := ratelimit.Key(service, action)
	br := r.Breakers.Get(service)

	return retryx.Do(ctx, r.Retry, func(ctx context.Context) error {
		if err := r.Limits.Acquire(ctx, key); err != nil {
			return errkind.Wrap(errkind.KindUserCancelled, err, "rate limit wait interrupted")
		}

		if err := br.Allow(); err != nil {
			return errkind.Wrap(errkind.KindCircuitOpen, err, "%s circuit open", service)
		}

		err := fn(ctx)
		if err == nil {
			br.Success()
			return nil
		}

		// Only availability failures trip the breaker; rejections the
		// service itself produced (auth, validation, duplicates) do not.
		switch errkind.KindOf(err) {
		case errkind.KindNetworkTransient, errkind.KindExternalUnavailable:
			br.Failure()
		}
		return err
	})
}
