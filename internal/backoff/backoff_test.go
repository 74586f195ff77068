package backoff

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestState_NextDelayWithJitter_GrowsExponentiallyAndClamps(t *testing.T) {
	policy := Policy{
		Base:   100 * time.Millisecond,
		Factor: 2.0,
		Max:    1 * time.Second,
		Jitter: 0,
	}
	s := NewState(policy)
	now := time.Unix(0, 0)

	s.RegisterStart(now)
	assert.Equal(t, 100*time.Millisecond, s.NextDelayWithJitter())

	s.RegisterStart(now)
	assert.Equal(t, 200*time.Millisecond, s.NextDelayWithJitter())

	s.RegisterStart(now)
	assert.Equal(t, 400*time.Millisecond, s.NextDelayWithJitter())

	for i := 0; i < 10; i++ {
		s.RegisterStart(now)
	}
	assert.Equal(t, policy.Max, s.NextDelayWithJitter())
}

func TestState_NextDelayWithJitter_StaysWithinJitterBounds(t *testing.T) {
	policy := Policy{
		Base:   1 * time.Second,
		Factor: 2.0,
		Max:    10 * time.Second,
		Jitter: 400 * time.Millisecond,
	}
	s := NewState(policy)
	s.RegisterStart(time.Unix(0, 0))

	for i := 0; i < 50; i++ {
		d := s.NextDelayWithJitter()
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, 1*time.Second+400*time.Millisecond)
	}
}

func TestState_ResetIfUptimeGood(t *testing.T) {
	policy := DefaultPolicy()
	s := NewState(policy)
	now := time.Unix(0, 0)
	s.RegisterStart(now)
	s.RegisterStart(now)
	assert.Equal(t, 2, s.Attempt())

	s.ResetIfUptimeGood(policy.ResetAfterOK)
	assert.Equal(t, 0, s.Attempt())
}

func TestState_ResetIfUptimeGood_NoopWhenTooShort(t *testing.T) {
	policy := DefaultPolicy()
	s := NewState(policy)
	s.RegisterStart(time.Unix(0, 0))

	s.ResetIfUptimeGood(policy.ResetAfterOK - time.Second)
	assert.Equal(t, 1, s.Attempt())
}

func TestState_TooManyRestarts(t *testing.T) {
	policy := Policy{Window: 10 * time.Second, MaxRestartsInWindow: 3}
	s := NewState(policy)
	base := time.Unix(1000, 0)

	for i := 0; i < 3; i++ {
		s.RegisterStart(base.Add(time.Duration(i) * time.Second))
		assert.False(t, s.TooManyRestarts(base.Add(time.Duration(i)*time.Second)))
	}

	s.RegisterStart(base.Add(3 * time.Second))
	assert.True(t, s.TooManyRestarts(base.Add(3*time.Second)))
}

func TestState_TooManyRestarts_EvictsOutsideWindow(t *testing.T) {
	policy := Policy{Window: 5 * time.Second, MaxRestartsInWindow: 1}
	s := NewState(policy)
	base := time.Unix(2000, 0)

	s.RegisterStart(base)
	s.RegisterStart(base.Add(1 * time.Second))
	assert.True(t, s.TooManyRestarts(base.Add(1*time.Second)))

	// Past the window, the first two starts have aged out.
	assert.False(t, s.TooManyRestarts(base.Add(10*time.Second)))
}
