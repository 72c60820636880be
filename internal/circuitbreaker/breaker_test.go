package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock drives cooldowns without sleeping.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func newTestBreaker(threshold int) (*Breaker, *fakeClock) {
	clock := &fakeClock{t: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
	b := New(threshold, time.Minute)
	b.now = clock.Now
	return b, clock
}

func trip(b *Breaker, key string, n int) {
	for i := 0; i < n; i++ {
		b.RecordFailure(key)
	}
}

func TestBreaker_TripsAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(3)

	trip(b, "backend", 2)
	assert.True(t, b.Allow("backend"), "below threshold")

	b.RecordFailure("backend")
	assert.False(t, b.Allow("backend"))
	assert.Equal(t, StateOpen, b.State("backend"))
}

func TestBreaker_SingleProbeAfterCooldown(t *testing.T) {
	b, clock := newTestBreaker(2)
	trip(b, "backend", 2)

	clock.Advance(59 * time.Second)
	assert.False(t, b.Allow("backend"), "still cooling down")

	clock.Advance(time.Second)
	assert.True(t, b.Allow("backend"), "probe admitted")
	assert.Equal(t, StateHalfOpen, b.State("backend"))
	assert.False(t, b.Allow("backend"), "only one probe at a time")
}

func TestBreaker_ProbeOutcome(t *testing.T) {
	t.Run("success closes", func(t *testing.T) {
		b, clock := newTestBreaker(2)
		trip(b, "backend", 2)
		clock.Advance(time.Minute)
		require.True(t, b.Allow("backend"))

		b.RecordSuccess("backend")
		assert.Equal(t, StateClosed, b.State("backend"))
		assert.True(t, b.Allow("backend"))
	})

	t.Run("failure reopens", func(t *testing.T) {
		b, clock := newTestBreaker(2)
		trip(b, "backend", 2)
		clock.Advance(time.Minute)
		require.True(t, b.Allow("backend"))

		b.RecordFailure("backend")
		assert.Equal(t, StateOpen, b.State("backend"))
		assert.False(t, b.Allow("backend"), "cooldown restarts")
	})
}

func TestBreaker_SuccessResetsCount(t *testing.T) {
	b, _ := newTestBreaker(3)
	trip(b, "backend", 2)
	b.RecordSuccess("backend")
	b.RecordFailure("backend")
	assert.True(t, b.Allow("backend"))
}

func TestBreaker_KeysAreIndependent(t *testing.T) {
	b, _ := newTestBreaker(2)
	trip(b, "backend", 2)

	assert.False(t, b.Allow("backend"))
	assert.True(t, b.Allow("hypernative"))
	assert.Equal(t, StateClosed, b.State("unknown"))
	assert.Equal(t, map[string]State{"backend": StateOpen}, b.States())
}

func TestBreaker_OnTransition(t *testing.T) {
	b, _ := newTestBreaker(2)

	got := make(chan [2]State, 4)
	b.OnTransition(func(key string, from, to State) {
		got <- [2]State{from, to}
	})
	trip(b, "backend", 2)

	select {
	case tr := <-got:
		assert.Equal(t, [2]State{StateClosed, StateOpen}, tr)
	case <-time.After(time.Second):
		t.Fatal("no transition reported")
	}
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "closed", StateClosed.String())
	assert.Equal(t, "open", StateOpen.String())
	assert.Equal(t, "half_open", StateHalfOpen.String())
	assert.Equal(t, "unknown", State(99).String())
}

func TestExecute_RejectsWhenOpen(t *testing.T) {
	b, _ := newTestBreaker(1)
	boom := errors.New("boom")

	err := b.Execute(context.Background(), "rpc", func(context.Context) error { return boom })
	assert.ErrorIs(t, err, boom)

	called := false
	err = b.Execute(context.Background(), "rpc", func(context.Context) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, ErrOpen)
	assert.False(t, called, "fn must not run while open")
}

func TestExecute_CancelledCallerNotCounted(t *testing.T) {
	b, _ := newTestBreaker(1)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_ = b.Execute(ctx, "rpc", func(ctx context.Context) error { return ctx.Err() })
	assert.Equal(t, StateClosed, b.State("rpc"))
}

func TestExecute_CancelledProbeLetsNextCallerProbe(t *testing.T) {
	b, clock := newTestBreaker(1)
	b.RecordFailure("rpc")
	clock.Advance(time.Minute)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = b.Execute(ctx, "rpc", func(ctx context.Context) error { return ctx.Err() })

	assert.Equal(t, StateOpen, b.State("rpc"))
	assert.True(t, b.Allow("rpc"), "abandoned probe does not restart the cooldown")
}
