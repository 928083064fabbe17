// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package errkind classifies failures from external services and the
// pipeline into a fixed taxonomy. The worker and retry wrapper consult the
// kind to decide between requeue-with-backoff and terminal failure.
package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"syscall"
	"time"
)

// Kind identifies a failure class.
type Kind string

const (
	KindNetworkTransient    Kind = "network_transient"
	KindRateLimited         Kind = "rate_limited"
	KindCircuitOpen         Kind = "circuit_open"
	KindAuthRejected        Kind = "auth_rejected"
	KindValidation          Kind = "validation"
	KindDuplicateRelease    Kind = "duplicate_release"
	KindTrackerPermanent    Kind = "tracker_permanent"
	KindExternalUnavailable Kind = "external_unavailable"
	KindInternalInvariant   Kind = "internal_invariant"
	KindUserCancelled       Kind = "user_cancelled"
)

// Retryable reports whether a failure of this kind may succeed on a later
// attempt. CircuitOpen is retryable only after a delay; the worker handles
// that by requeueing instead of retrying inline.
func (k Kind) Retryable() bool {
	switch k {
	case KindNetworkTransient, KindRateLimited, KindCircuitOpen, KindExternalUnavailable:
		return true
	default:
		return false
	}
}

// Error carries a classified failure. StatusCode and RetryAfter are zero
// when not applicable.
type Error struct {
	Kind       Kind
	Message    string
	StatusCode int
	RetryAfter time.Duration
	Err        error
}

func (e *Error) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s (HTTP %d): %s", e.Kind, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// New creates a classified error.
func New(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap classifies an underlying error.
func Wrap(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf extracts the kind from err, classifying raw transport errors when
// no *Error is present. Unclassified errors map to InternalInvariant so they
// fail terminally rather than retry forever.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}

	var ce *Error
	if errors.As(err, &ce) {
		return ce.Kind
	}

	if errors.Is(err, context.Canceled) {
		return KindUserCancelled
	}
	if isTransientNetErr(err) {
		return KindNetworkTransient
	}

	return KindInternalInvariant
}

// IsRetryable reports whether err should be retried.
func IsRetryable(err error) bool {
	return KindOf(err).Retryable()
}

// RetryAfterOf returns the server-suggested retry delay, if any.
func RetryAfterOf(err error) time.Duration {
	var ce *Error
	if errors.As(err, &ce) {
		return ce.RetryAfter
	}
	return 0
}

// FromHTTPStatus classifies an HTTP response status. retryAfter comes from
// the Retry-After header and only matters for 429.
func FromHTTPStatus(status int, retryAfter time.Duration, body string) *Error {
	switch {
	case status == http.StatusTooManyRequests:
		return &Error{Kind: KindRateLimited, Message: truncate(body), StatusCode: status, RetryAfter: retryAfter}
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return &Error{Kind: KindAuthRejected, Message: truncate(body), StatusCode: status}
	case status == http.StatusRequestTimeout:
		return &Error{Kind: KindNetworkTransient, Message: truncate(body), StatusCode: status}
	case status == http.StatusBadGateway || status == http.StatusServiceUnavailable || status == http.StatusGatewayTimeout:
		return &Error{Kind: KindNetworkTransient, Message: truncate(body), StatusCode: status}
	case status >= 500:
		return &Error{Kind: KindExternalUnavailable, Message: truncate(body), StatusCode: status}
	case status >= 400:
		return &Error{Kind: KindTrackerPermanent, Message: truncate(body), StatusCode: status}
	default:
		return &Error{Kind: KindInternalInvariant, Message: fmt.Sprintf("unexpected status %d", status), StatusCode: status}
	}
}

// FromTransportErr classifies a transport-level error from an HTTP round
// trip. Context cancellation stays UserCancelled so it is never retried.
func FromTransportErr(err error) *Error {
	if errors.Is(err, context.Canceled) {
		return Wrap(KindUserCancelled, err, "request cancelled")
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Wrap(KindNetworkTransient, err, "request timed out")
	}
	if isTransientNetErr(err) {
		return Wrap(KindNetworkTransient, err, "network error")
	}
	return Wrap(KindExternalUnavailable, err, "transport error")
}

func isTransientNetErr(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return true
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return true
	}
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return true
	}

	return false
}

func truncate(s string) string {
	const limit = 500
	if len(s) > limit {
		return s[:limit]
	}
	if s == "" {
		return "request failed"
	}
	return s
}
