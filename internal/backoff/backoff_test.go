package backoff

import (
	"testing"
	"time"
)

func TestLadderDoublesUpToCap(t *testing.T) {
	state := New(Policy{
		Base:          10 * time.Second,
		Multiplier:    2,
		Cap:           80 * time.Second,
		EscalateAfter: 100,
		Cooldown:      time.Hour,
	})

	want := []time.Duration{
		10 * time.Second,
		20 * time.Second,
		40 * time.Second,
		80 * time.Second,
		80 * time.Second,
	}
	for i, expected := range want {
		delay, escalate := state.Next()
		if escalate {
			t.Fatalf("unexpected escalation at attempt %d", i)
		}
		if delay != expected {
			t.Fatalf("attempt %d: expected delay %v, got %v", i, expected, delay)
		}
	}
}

func TestSuccessResetsLadder(t *testing.T) {
	state := New(Policy{Base: time.Second, Multiplier: 2, Cap: time.Minute, EscalateAfter: 100, Cooldown: time.Hour})

	state.Next()
	state.Next()
	state.Success()

	delay, escalate := state.Next()
	if escalate {
		t.Fatalf("unexpected escalation after reset")
	}
	if delay != time.Second {
		t.Fatalf("expected delay to restart at base, got %v", delay)
	}
}

func TestEscalationFiresOnceThenCoolsDown(t *testing.T) {
	state := New(Policy{Base: time.Second, Multiplier: 2, Cap: 8 * time.Second, EscalateAfter: 3, Cooldown: time.Minute})

	if _, escalate := state.Next(); escalate {
		t.Fatalf("unexpected escalation on first failure")
	}
	if _, escalate := state.Next(); escalate {
		t.Fatalf("unexpected escalation on second failure")
	}

	delay, escalate := state.Next()
	if !escalate {
		t.Fatalf("expected escalation on third consecutive failure")
	}
	if delay != time.Minute {
		t.Fatalf("expected cooldown delay, got %v", delay)
	}

	// The ladder restarts from base after the cooldown.
	delay, escalate = state.Next()
	if escalate {
		t.Fatalf("expected no immediate re-escalation after cooldown")
	}
	if delay != time.Second {
		t.Fatalf("expected delay back at base after cooldown, got %v", delay)
	}
}

func TestNormalizationAppliesDefaults(t *testing.T) {
	state := New(Policy{})
	delay, escalate := state.Next()
	if escalate {
		t.Fatalf("unexpected escalation with default policy")
	}
	if delay != 10*time.Second {
		t.Fatalf("expected default base of 10s, got %v", delay)
	}
}
