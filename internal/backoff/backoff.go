// Package backoff provides the retry policy shared by the telemetry
// listeners: exponential growth up to a cap, reset on success, and a single
// escalation followed by a long cooldown after too many consecutive
// failures.
package backoff

import "time"

// Policy parameterizes a retry ladder.
type Policy struct {
	// Base is the first delay after a failure.
	Base time.Duration
	// Multiplier grows the delay after each consecutive failure.
	Multiplier float64
	// Cap bounds the delay reached through multiplication.
	Cap time.Duration
	// EscalateAfter is the number of consecutive failures that triggers a
	// one-time escalation and the cooldown.
	EscalateAfter int
	// Cooldown is the pause taken after escalation before the ladder
	// restarts from Base.
	Cooldown time.Duration
}

// DefaultPolicy mirrors the telemetry listener's production settings:
// 10s base doubling to a 5 minute cap, escalation after 10 failures.
func DefaultPolicy() Policy {
	return Policy{
		Base:          10 * time.Second,
		Multiplier:    2,
		Cap:           5 * time.Minute,
		EscalateAfter: 10,
		Cooldown:      5 * time.Minute,
	}
}

func (p Policy) normalized() Policy {
	if p.Base <= 0 {
		p.Base = 10 * time.Second
	}
	if p.Multiplier < 1 {
		p.Multiplier = 2
	}
	if p.Cap < p.Base {
		p.Cap = p.Base
	}
	if p.EscalateAfter <= 0 {
		p.EscalateAfter = 10
	}
	if p.Cooldown <= 0 {
		p.Cooldown = p.Cap
	}
	return p
}

// State tracks the position in the retry ladder. It is not safe for
// concurrent use; each listener owns its own State.
type State struct {
	policy   Policy
	delay    time.Duration
	failures int
}

// New returns a State at the bottom of the ladder.
func New(policy Policy) *State {
	p := policy.normalized()
	return &State{policy: p, delay: p.Base}
}

// Success resets the ladder after a successful attempt.
func (s *State) Success() {
	s.delay = s.policy.Base
	s.failures = 0
}

// Failures returns the current consecutive failure count.
func (s *State) Failures() int {
	return s.failures
}

// Next records a failure and returns the delay to wait before the next
// attempt. escalate is true exactly once per ladder run-through, when the
// consecutive failure count reaches the policy threshold; the returned
// delay is then the long cooldown and the ladder restarts afterwards.
func (s *State) Next() (delay time.Duration, escalate bool) {
	s.failures++
	if s.failures >= s.policy.EscalateAfter {
		s.failures = 0
		s.delay = s.policy.Base
		return s.policy.Cooldown, true
	}

	delay = s.delay
	next := time.Duration(float64(s.delay) * s.policy.Multiplier)
	if next > s.policy.Cap {
		next = s.policy.Cap
	}
	s.delay = next
	return delay, false
}
