// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package flaresolverr

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/seedarr/seedarr/internal/domain"
	"github.com/seedarr/seedarr/internal/errkind"
	"github.com/seedarr/seedarr/internal/registry"
	"github.com/seedarr/seedarr/pkg/breaker"
)

func testGuards(maxAttempts int) *registry.Registry {
	r := registry.New(&domain.Config{
		Retry: domain.RetryConfig{MaxAttempts: maxAttempts},
		RateLimits: map[string]domain.RateLimitConfig{
			"flaresolverr": {Capacity: 100, RefillRate: 100},
		},
	})
	r.Retry.BaseDelay = time.Millisecond
	r.Retry.MaxDelay = time.Millisecond
	return r
}

func TestService_GetReusesSession(t *testing.T) {
	t.Parallel()

	var created int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&cmd))

		switch cmd["cmd"] {
		case "sessions.create":
			created++
			json.NewEncoder(w).Encode(map[string]any{"status": "ok", "session": cmd["session"]})
		case "request.get":
			assert.NotEmpty(t, cmd["session"])
			json.NewEncoder(w).Encode(map[string]any{
				"status": "ok",
				"solution": map[string]any{
					"url":       cmd["url"],
					"status":    200,
					"response":  "<html>ok</html>",
					"userAgent": "Mozilla/5.0",
					"cookies":   []map[string]any{{"name": "cf_clearance", "value": "token"}},
				},
			})
		default:
			t.Errorf("unexpected cmd %v", cmd["cmd"])
		}
	}))
	defer srv.Close()

	svc := NewService(domain.FlareSolverrConfig{URL: srv.URL, SessionTTLMinutes: 30}, testGuards(1))

	for range 3 {
		sol, err := svc.Get(context.Background(), "https://tracker.example/login")
		require.NoError(t, err)
		assert.Equal(t, 200, sol.Status)
		require.Len(t, sol.Cookies, 1)
		assert.Equal(t, "cf_clearance", sol.Cookies[0].Name)
	}

	// One browser session serves all three requests.
	assert.Equal(t, 1, created)
}

func TestService_NotConfigured(t *testing.T) {
	t.Parallel()

	svc := NewService(domain.FlareSolverrConfig{}, testGuards(1))
	assert.False(t, svc.Enabled())

	_, err := svc.Get(context.Background(), "https://tracker.example")
	require.Error(t, err)
	assert.Equal(t, errkind.KindValidation, errkind.KindOf(err))
}

func TestService_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "solver crashed", http.StatusBadGateway)
	}))
	defer srv.Close()

	guards := testGuards(1)
	svc := NewService(domain.FlareSolverrConfig{URL: srv.URL}, guards)

	ctx := context.Background()
	for range 3 {
		_, err := svc.Get(ctx, "https://tracker.example")
		require.Error(t, err)
	}

	// Three transport failures open the circuit; the next call is
	// rejected without reaching the solver.
	_, err := svc.Get(ctx, "https://tracker.example")
	require.Error(t, err)
	assert.ErrorIs(t, err, breaker.ErrOpen)
}

func TestService_SolverError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var cmd map[string]any
		json.NewDecoder(r.Body).Decode(&cmd)
		if cmd["cmd"] == "sessions.create" {
			json.NewEncoder(w).Encode(map[string]any{"status": "ok"})
			return
		}
		json.NewEncoder(w).Encode(map[string]any{"status": "error", "message": "challenge not solved"})
	}))
	defer srv.Close()

	svc := NewService(domain.FlareSolverrConfig{URL: srv.URL}, testGuards(1))

	_, err := svc.Get(context.Background(), "https://tracker.example")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "challenge not solved")
}
