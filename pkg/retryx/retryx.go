// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package retryx wraps retry-go with the error taxonomy used across the
// external-service layer: transient network failures and 5xx/429 responses
// are retried with exponential backoff, everything else fails fast.
package retryx

import (
	"context"
	"time"

	"github.com/avast/retry-go"

	"github.com/seedarr/seedarr/internal/errkind"
)

// Options tunes one wrapped operation.
type Options struct {
	// MaxAttempts is the total number of attempts, including the first.
	MaxAttempts uint
	// BaseDelay seeds the exponential backoff (2^attempt * BaseDelay).
	BaseDelay time.Duration
	// MaxDelay caps a single backoff wait.
	MaxDelay time.Duration
	// OnRetry is invoked before each re-attempt.
	OnRetry func(attempt uint, err error)
}

// DefaultOptions match the documented retry policy: 5 attempts, 1s base,
// 30s cap.
func DefaultOptions() Options {
	return Options{
		MaxAttempts: 5,
		BaseDelay:   time.Second,
		MaxDelay:    30 * time.Second,
	}
}

// Do runs fn with retries. The classification lives in errkind: fn should
// return classified errors (or raw transport errors, which classify as
// transient). A Retry-After hint from a 429 stretches the wait when it
// exceeds the computed backoff.
func Do(ctx context.Context, opts Options, fn func(ctx context.Context) error) error {
	if opts.MaxAttempts == 0 {
		opts.MaxAttempts = DefaultOptions().MaxAttempts
	}
	if opts.BaseDelay <= 0 {
		opts.BaseDelay = DefaultOptions().BaseDelay
	}
	if opts.MaxDelay <= 0 {
		opts.MaxDelay = DefaultOptions().MaxDelay
	}

	retryOpts := []retry.Option{
		retry.Attempts(opts.MaxAttempts),
		retry.Delay(opts.BaseDelay),
		retry.MaxDelay(opts.MaxDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(func(err error) bool {
			if ctx.Err() != nil {
				return false
			}
			return errkind.IsRetryable(err)
		}),
		retry.DelayType(func(n uint, err error, config *retry.Config) time.Duration {
			delay := retry.BackOffDelay(n, err, config)
			if after := errkind.RetryAfterOf(err); after > delay {
				delay = after
			}
			return delay
		}),
	}

	if opts.OnRetry != nil {
		retryOpts = append(retryOpts, retry.OnRetry(func(n uint, err error) {
			opts.OnRetry(n, err)
		}))
	}

	return retry.Do(func() error {
		if err := ctx.Err(); err != nil {
			return retry.Unrecoverable(errkind.Wrap(errkind.KindUserCancelled, err, "cancelled"))
		}
		return fn(ctx)
	}, retryOpts...)
}
