// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package errkind

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromHTTPStatus(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name          string
		status        int
		wantKind      Kind
		wantRetryable bool
	}{
		{name: "429 rate limited", status: 429, wantKind: KindRateLimited, wantRetryable: true},
		{name: "401 auth", status: 401, wantKind: KindAuthRejected},
		{name: "403 auth", status: 403, wantKind: KindAuthRejected},
		{name: "408 transient", status: 408, wantKind: KindNetworkTransient, wantRetryable: true},
		{name: "404 permanent", status: 404, wantKind: KindTrackerPermanent},
		{name: "422 permanent", status: 422, wantKind: KindTrackerPermanent},
		{name: "502 transient", status: 502, wantKind: KindNetworkTransient, wantRetryable: true},
		{name: "503 transient", status: 503, wantKind: KindNetworkTransient, wantRetryable: true},
		{name: "504 transient", status: 504, wantKind: KindNetworkTransient, wantRetryable: true},
		{name: "500 external", status: 500, wantKind: KindExternalUnavailable, wantRetryable: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			err := FromHTTPStatus(tt.status, 0, "boom")
			assert.Equal(t, tt.wantKind, err.Kind)
			assert.Equal(t, tt.wantRetryable, IsRetryable(err))
			assert.Equal(t, tt.status, err.StatusCode)
		})
	}
}

func TestFromHTTPStatusRetryAfter(t *testing.T) {
	t.Parallel()

	err := FromHTTPStatus(429, 7*time.Second, "slow down")
	assert.Equal(t, 7*time.Second, RetryAfterOf(err))

	wrapped := fmt.Errorf("upload: %w", err)
	assert.Equal(t, 7*time.Second, RetryAfterOf(wrapped))
	assert.Equal(t, KindRateLimited, KindOf(wrapped))
}

func TestKindOfTransportErrors(t *testing.T) {
	t.Parallel()

	assert.Equal(t, KindUserCancelled, KindOf(context.Canceled))
	assert.Equal(t, KindNetworkTransient, KindOf(&net.DNSError{Err: "no such host", Name: "tracker.example"}))
	assert.Equal(t, KindNetworkTransient, KindOf(fmt.Errorf("dial: %w", syscall.ECONNREFUSED)))
	assert.Equal(t, KindInternalInvariant, KindOf(errors.New("some logic bug")))
}

func TestFromTransportErr(t *testing.T) {
	t.Parallel()

	require.Equal(t, KindUserCancelled, FromTransportErr(context.Canceled).Kind)
	require.Equal(t, KindNetworkTransient, FromTransportErr(context.DeadlineExceeded).Kind)
	require.Equal(t, KindNetworkTransient, FromTransportErr(syscall.ECONNRESET).Kind)
}

func TestErrorFormatting(t *testing.T) {
	t.Parallel()

	err := New(KindValidation, "missing required field %q", "tmdb_id")
	assert.Equal(t, `validation: missing required field "tmdb_id"`, err.Error())
	assert.False(t, IsRetryable(err))

	httpErr := FromHTTPStatus(503, 0, "maintenance")
	assert.Contains(t, httpErr.Error(), "HTTP 503")
}
