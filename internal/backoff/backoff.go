// Package backoff implements the exponential delay + jitter, rolling
// window breaker policy of spec §4.2, ported line-for-line from
// manager/runner/backoff.py (BackoffPolicy / BackoffState).
package backoff

import (
	"math/rand/v2"
	"time"
)

// Policy holds the immutable-per-node backoff knobs (spec §3
// BackoffPolicy).
type Policy struct {
	Base                time.Duration
	Factor              float64
	Max                 time.Duration
	Jitter              time.Duration
	ResetAfterOK        time.Duration
	Window              time.Duration
	MaxRestartsInWindow int
}

// DefaultPolicy mirrors manager/runner/backoff.py's BackoffPolicy
// defaults (base_sec=0.5, factor=2.0, max_sec=30.0, jitter_sec=0.4,
// reset_after_ok_sec=60.0, window_sec=300.0, max_restarts_in_window=20).
func DefaultPolicy() Policy {
	return Policy{
		Base:                500 * time.Millisecond,
		Factor:              2.0,
		Max:                 30 * time.Second,
		Jitter:              400 * time.Millisecond,
		ResetAfterOK:        60 * time.Second,
		Window:              300 * time.Second,
		MaxRestartsInWindow: 20,
	}
}

// State is the mutable per-node backoff bookkeeping (spec §3
// BackoffState), mutated only by that node's own supervision loop.
type State struct {
	policy       Policy
	attempt      int
	recentStarts []time.Time
}

// NewState returns a fresh State governed by policy.
func NewState(policy Policy) *State {
	return &State{policy: policy}
}

// Attempt reports the current attempt counter, for tests/observability.
func (s *State) Attempt() int { return s.attempt }

// NextDelayWithJitter returns the delay to sleep before the next start
// attempt: clamp(base * factor^(k-1), 0, max) + uniform(-jitter,
// +jitter), clamped to >= 0 (spec §4.2). Attempt is incremented on
// every start by RegisterStart, so the first delay uses k=1 there —
// this method only reads the current attempt, it does not advance it.
func (s *State) NextDelayWithJitter() time.Duration {
	k := s.attempt
	if k < 1 {
		k = 1
	}
	delay := float64(s.policy.Base) * pow(s.policy.Factor, k-1)
	max := float64(s.policy.Max)
	if delay > max {
		delay = max
	}
	if delay < 0 {
		delay = 0
	}
	if s.policy.Jitter > 0 {
		jitter := float64(s.policy.Jitter)
		delay += (rand.Float64()*2 - 1) * jitter
	}
	if delay < 0 {
		delay = 0
	}
	return time.Duration(delay)
}

func pow(base float64, exp int) float64 {
	result := 1.0
	for i := 0; i < exp; i++ {
		result *= base
	}
	return result
}

// RegisterStart appends the current monotonic time to recentStarts,
// evicts entries older than Window, and increments attempt. attempt is
// incremented on every start, including the first (spec §4.2 tie-break).
func (s *State) RegisterStart(now time.Time) {
	s.recentStarts = append(s.recentStarts, now)
	s.evictOld(now)
	s.attempt++
}

func (s *State) evictOld(now time.Time) {
	cutoff := now.Add(-s.policy.Window)
	kept := s.recentStarts[:0]
	for _, t := range s.recentStarts {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	s.recentStarts = kept
}

// ResetIfUptimeGood resets attempt to 0 when uptime >= ResetAfterOK.
// Does not clear recentStarts (spec §4.2 tie-break).
func (s *State) ResetIfUptimeGood(uptime time.Duration) {
	if uptime >= s.policy.ResetAfterOK {
		s.attempt = 0
	}
}

// TooManyRestarts reports a breaker trip: more than
// MaxRestartsInWindow starts fell within the rolling window (spec
// §4.2). Evicts stale entries against now before counting.
func (s *State) TooManyRestarts(now time.Time) bool {
	s.evictOld(now)
	return len(s.recentStarts) > s.policy.MaxRestartsInWindow
}
