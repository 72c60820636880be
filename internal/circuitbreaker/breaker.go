// Package circuitbreaker guards calls to analysis sources with a per-key
// circuit breaker. Keys are source names such as "backend" or
// "hypernative"; each key trips independently.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// State is the position of one circuit.
type State int

const (
	StateClosed   State = iota // calls flow through
	StateOpen                  // calls are rejected
	StateHalfOpen              // one probe call is in flight
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half_open"
	default:
		return "unknown"
	}
}

// ErrOpen is returned by Execute when the circuit for a key is open.
var ErrOpen = errors.New("circuit open")

var transitions = prometheus.NewCounterVec(prometheus.CounterOpts{
	Namespace: "safeshield",
	Subsystem: "circuitbreaker",
	Name:      "state_transitions_total",
	Help:      "Circuit breaker state transitions by source, from-state, and to-state.",
}, []string{"key", "from_state", "to_state"})

func init() {
	prometheus.MustRegister(transitions)
}

// circuit is the state of one key. All methods run under Breaker.mu.
type circuit struct {
	state    State
	failures int
	openedAt time.Time
}

// Breaker trips a key open after threshold consecutive failures and lets a
// single probe through once cooldown has passed.
type Breaker struct {
	threshold int
	cooldown  time.Duration
	now       func() time.Time

	mu       sync.Mutex
	circuits map[string]*circuit
	onChange func(key string, from, to State)
}

// New creates a breaker. Non-positive arguments fall back to 5 failures and
// a 30 second cooldown.
func New(threshold int, cooldown time.Duration) *Breaker {
	if threshold <= 0 {
		threshold = 5
	}
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}
	return &Breaker{
		threshold: threshold,
		cooldown:  cooldown,
		now:       time.Now,
		circuits:  make(map[string]*circuit),
	}
}

// OnTransition registers a callback run (in its own goroutine) on every
// state change.
func (b *Breaker) OnTransition(fn func(key string, from, to State)) {
	b.mu.Lock()
	b.onChange = fn
	b.mu.Unlock()
}

// Allow reports whether a call for key may proceed. An open circuit whose
// cooldown has passed admits exactly one probe.
func (b *Breaker) Allow(key string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		return true
	}
	switch c.state {
	case StateOpen:
		if b.now().Sub(c.openedAt) < b.cooldown {
			return false
		}
		b.move(key, c, StateHalfOpen)
		return true
	case StateHalfOpen:
		return false
	default:
		return true
	}
}

// RecordSuccess closes the circuit and clears its failure count.
func (b *Breaker) RecordSuccess(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if c := b.circuits[key]; c != nil {
		c.failures = 0
		b.move(key, c, StateClosed)
	}
}

// RecordFailure counts a failure. A failed probe reopens the circuit.
func (b *Breaker) RecordFailure(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c := b.circuits[key]
	if c == nil {
		c = &circuit{}
		b.circuits[key] = c
	}
	c.failures++

	if c.state == StateHalfOpen || (c.state == StateClosed && c.failures >= b.threshold) {
		c.openedAt = b.now()
		b.move(key, c, StateOpen)
	}
}

// State returns the state of key. Unknown keys are closed.
func (b *Breaker) State(key string) State {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.circuits[key]; c != nil {
		return c.state
	}
	return StateClosed
}

// States returns the state of every key that has seen a failure.
func (b *Breaker) States() map[string]State {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make(map[string]State, len(b.circuits))
	for key, c := range b.circuits {
		out[key] = c.state
	}
	return out
}

// Execute runs fn when the circuit for key allows it and records the
// outcome. A cancelled caller says nothing about the source, so its probe
// slot is handed back without a verdict.
func (b *Breaker) Execute(ctx context.Context, key string, fn func(ctx context.Context) error) error {
	if !b.Allow(key) {
		return ErrOpen
	}
	err := fn(ctx)
	switch {
	case err == nil:
		b.RecordSuccess(key)
	case ctx.Err() != nil:
		b.abandonProbe(key)
	default:
		b.RecordFailure(key)
	}
	return err
}

// abandonProbe returns a half-open circuit to open with its cooldown already
// elapsed, so the next caller probes immediately.
func (b *Breaker) abandonProbe(key string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if c := b.circuits[key]; c != nil && c.state == StateHalfOpen {
		c.openedAt = b.now().Add(-b.cooldown)
		b.move(key, c, StateOpen)
	}
}

// move changes state. Caller holds b.mu.
func (b *Breaker) move(key string, c *circuit, to State) {
	from := c.state
	if from == to {
		return
	}
	c.state = to
	transitions.WithLabelValues(key, from.String(), to.String()).Inc()
	if fn := b.onChange; fn != nil {
		go fn(key, from, to)
	}
}
