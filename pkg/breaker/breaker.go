// Copyright (c) 2026, the seedarr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package breaker implements a circuit breaker for flaky dependencies,
// primarily the FlareSolverr Cloudflare-bypass service.
package breaker

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// State is the breaker state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

// ErrOpen is returned when the breaker rejects a call without invoking the
// underlying service.
var ErrOpen = errors.New("circuit breaker open")

// Config tunes a breaker.
type Config struct {
	// FailureThreshold is the number of failures within Window that opens
	// the circuit.
	FailureThreshold int
	// Window bounds how far back failures count toward the threshold.
	Window time.Duration
	// OpenDuration is how long the circuit stays open before admitting a
	// probe.
	OpenDuration time.Duration
}

// DefaultConfig matches the documented defaults: 3 failures in 60s open the
// circuit for 60s.
func DefaultConfig() Config {
	return Config{
		FailureThreshold: 3,
		Window:           time.Minute,
		OpenDuration:     time.Minute,
	}
}

// Breaker guards one named dependency. Safe for concurrent use.
type Breaker struct {
	name string
	cfg  Config

	mu            sync.Mutex
	state         State
	failures      int
	windowStart   time.Time
	openedAt      time.Time
	probeInFlight bool

	now func() time.Time
}

// New creates a closed breaker.
func New(name string, cfg Config) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = DefaultConfig().FailureThreshold
	}
	if cfg.Window <= 0 {
		cfg.Window = DefaultConfig().Window
	}
	if cfg.OpenDuration <= 0 {
		cfg.OpenDuration = DefaultConfig().OpenDuration
	}

	return &Breaker{
		name:  name,
		cfg:   cfg,
		state: StateClosed,
		now:   time.Now,
	}
}

// Allow reports whether a call may proceed. In half-open state only a single
// probe is admitted; further callers are rejected until the probe reports.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return nil
	case StateOpen:
		if b.now().Sub(b.openedAt) >= b.cfg.OpenDuration {
			b.state = StateHalfOpen
			b.probeInFlight = true
			return nil
		}
		return b.openErr()
	case StateHalfOpen:
		if b.probeInFlight {
			return b.openErr()
		}
		b.probeInFlight = true
		return nil
	}

	return fmt.Errorf("breaker %s: unknown state %q", b.name, b.state)
}

func (b *Breaker) openErr() error {
	remaining := b.cfg.OpenDuration - b.now().Sub(b.openedAt)
	if remaining < 0 {
		remaining = 0
	}
	return fmt.Errorf("%w: %s unavailable, retry in %s", ErrOpen, b.name, remaining.Round(time.Second))
}

// Success records a successful call and closes the circuit.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = StateClosed
	b.failures = 0
	b.probeInFlight = false
}

// Failure records a failed call. In closed state it counts toward the
// threshold; a failed probe reopens the circuit and restarts the timer.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.openedAt = now
		b.probeInFlight = false
		return
	case StateOpen:
		return
	}

	if b.failures == 0 || now.Sub(b.windowStart) > b.cfg.Window {
		b.windowStart = now
		b.failures = 0
	}
	b.failures++

	if b.failures >= b.cfg.FailureThreshold {
		b.state = StateOpen
		b.openedAt = now
	}
}

// Do runs fn under the breaker.
func (b *Breaker) Do(fn func() error) error {
	if err := b.Allow(); err != nil {
		return err
	}
	if err := fn(); err != nil {
		b.Failure()
		return err
	}
	b.Success()
	return nil
}

// Status is a snapshot for health endpoints.
type Status struct {
	Name     string    `json:"name"`
	State    State     `json:"state"`
	Failures int       `json:"failures"`
	OpenedAt time.Time `json:"openedAt,omitzero"`
}

// Status returns the current snapshot.
func (b *Breaker) Status() Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	s := Status{Name: b.name, State: b.state, Failures: b.failures}
	if b.state != StateClosed {
		s.OpenedAt = b.openedAt
	}
	return s
}

// Registry hands out breakers by name so all callers of a dependency share
// its state.
type Registry struct {
	mu       sync.Mutex
	breakers map[string]*Breaker
	cfg      Config
}

// NewRegistry creates a registry; cfg applies to breakers created on first
// use.
func NewRegistry(cfg Config) *Registry {
	return &Registry{
		breakers: make(map[string]*Breaker),
		cfg:      cfg,
	}
}

// Get returns the breaker for name, creating it if needed.
func (r *Registry) Get(name string) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	if b, ok := r.breakers[name]; ok {
		return b
	}
	b := New(name, r.cfg)
	r.breakers[name] = b
	return b
}

// Statuses lists the status of every breaker created so far.
func (r *Registry) Statuses() []Status {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Status, 0, len(r.breakers))
	for _, b := range r.breakers {
		out = append(out, b.Status())
	}
	return out
}
