// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package registry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/pkg/breaker"
)

func testConfig() *domain.Config {
	return &domain.Config{
		Retry: domain.RetryConfig{MaxAttempts: 3, BaseDelaySeconds: 1, MaxDelaySeconds: 1},
		RateLimits: map[string]domain.RateLimitConfig{
			"fastsvc": {Capacity: 100, RefillRate: 100},
		},
	}
}

func TestRegistry_CallRetriesTransientFailures(t *testing.T) {
	t.Parallel()

	r := New(testConfig())
	// Keep backoff waits out of the test.
	r.Retry.BaseDelay = time.Millisecond
	r.Retry.MaxDelay = time.Millisecond

	calls := 0
	err := r.Call(context.Background(), "fastsvc", "", func(ctx context.Context) error {
		calls++
		if calls < 3 {
			return errkind.New(errkind.KindNetworkTransient, "connection reset")
		}
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestRegistry_CallDoesNotRetryPermanentFailures(t *testing.T) {
	t.Parallel()

	r := New(testConfig())
	r.Retry.BaseDelay = time.Millisecond
	r.Retry.MaxDelay = time.Millisecond

	calls := 0
	err := r.Call(context.Background(), "fastsvc", "", func(ctx context.Context) error {
		calls++
		return errkind.New(errkind.KindTrackerPermanent, "upload rejected")
	})
	require.Error(t, err)
	assert.Equal(t, errkind.KindTrackerPermanent, errkind.KindOf(err))
	assert.Equal(t, 1, calls)
}

func TestRegistry_CallTripsBreaker(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = domain.BreakerConfig{FailureThreshold: 2, WindowSeconds: 60, OpenSeconds: 60}

	r := New(cfg)
	r.Retry.BaseDelay = time.Millisecond
	r.Retry.MaxDelay = time.Millisecond

	fail := func(ctx context.Context) error {
		return errkind.New(errkind.KindExternalUnavailable, "bad gateway")
	}

	ctx := context.Background()
	require.Error(t, r.Call(ctx, "fastsvc", "", fail))
	require.Error(t, r.Call(ctx, "fastsvc", "", fail))

	// The third call is rejected without invoking fn.
	calls := 0
	err := r.Call(ctx, "fastsvc", "", func(ctx context.Context) error {
		calls++
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, breaker.ErrOpen)
	assert.Equal(t, errkind.KindCircuitOpen, errkind.KindOf(err))
	assert.Zero(t, calls)
}

func TestRegistry_CallSkipsBreakerForRejections(t *testing.T) {
	t.Parallel()

	cfg := testConfig()
	cfg.Retry.MaxAttempts = 1
	cfg.Breaker = domain.BreakerConfig{FailureThreshold: 2, WindowSeconds: 60, OpenSeconds: 60}

	r := New(cfg)
	r.Retry.BaseDelay = time.Millisecond

	ctx := context.Background()
	for range 5 {
		err := r.Call(ctx, "fastsvc", "", func(ctx context.Context) error {
			return errkind.New(errkind.KindValidation, "missing field")
		})
		require.Error(t, err)
	}

	// Validation rejections never open the circuit.
	err := r.Call(ctx, "fastsvc", "", func(ctx context.Context) error { return nil })
	assert.NoError(t, err)
}
