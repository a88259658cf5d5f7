package device

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/example/plugwarden/internal/backoff"
)

type recordingChannel struct {
	mu        sync.Mutex
	commands  []string
	publishFn func(ctx context.Context, deviceID string, state PowerState) error

	subscribeFn func(ctx context.Context, deviceID string) (<-chan Sample, error)
}

func (c *recordingChannel) Publish(ctx context.Context, deviceID string, state PowerState) error {
	c.mu.Lock()
	c.commands = append(c.commands, deviceID+":"+string(state))
	c.mu.Unlock()
	if c.publishFn != nil {
		return c.publishFn(ctx, deviceID, state)
	}
	return nil
}

func (c *recordingChannel) Subscribe(ctx context.Context, deviceID string) (<-chan Sample, error) {
	if c.subscribeFn != nil {
		return c.subscribeFn(ctx, deviceID)
	}
	ch := make(chan Sample)
	close(ch)
	return ch, nil
}

func (c *recordingChannel) Commands() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.commands))
	copy(out, c.commands)
	return out
}

// DefaultListenerPolicyForTest keeps listener tests fast: millisecond
// delays and a low escalation threshold.
func DefaultListenerPolicyForTest() backoff.Policy {
	return backoff.Policy{
		Base:          time.Millisecond,
		Multiplier:    2,
		Cap:           5 * time.Millisecond,
		EscalateAfter: 3,
		Cooldown:      time.Millisecond,
	}
}

func newTestPlug(channel Channel) *Plug {
	return NewPlug(Config{Name: "plug1", TopicPrefix: "tasmota_512W10", Active: true}, channel, nil)
}

func TestObserveUpdatesTelemetryAndClearsError(t *testing.T) {
	plug := newTestPlug(&recordingChannel{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	// Force the plug into error first.
	plug.Observe(Sample{Power: 12, Timestamp: base})
	if entered, _ := plug.CheckStale(base.Add(2*time.Minute), DefaultStaleThreshold, true); !entered {
		t.Fatalf("expected stale transition")
	}
	if _, ok := plug.LastPower(); ok {
		t.Fatalf("expected power reading invalidated while in error")
	}

	plug.Observe(Sample{Power: 45.5, Timestamp: base.Add(3 * time.Minute)})
	if plug.InError() {
		t.Fatalf("expected telemetry to clear error state")
	}
	power, ok := plug.LastPower()
	if !ok || power != 45.5 {
		t.Fatalf("unexpected power reading: %v %v", power, ok)
	}
}

func TestCheckStaleEdgeFiresOnce(t *testing.T) {
	plug := newTestPlug(&recordingChannel{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	plug.Observe(Sample{Power: 30, Timestamp: base})

	// 81 seconds of silence crosses the 80s threshold.
	entered, inError := plug.CheckStale(base.Add(81*time.Second), DefaultStaleThreshold, true)
	if !entered || !inError {
		t.Fatalf("expected first check to report the transition edge, got entered=%v inError=%v", entered, inError)
	}

	entered, inError = plug.CheckStale(base.Add(3*time.Minute), DefaultStaleThreshold, true)
	if entered {
		t.Fatalf("expected no repeated edge while remaining in error")
	}
	if !inError {
		t.Fatalf("expected plug to remain in error")
	}
}

func TestCheckStaleWithinThresholdStaysHealthy(t *testing.T) {
	plug := newTestPlug(&recordingChannel{})
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	plug.Observe(Sample{Power: 30, Timestamp: base})

	entered, inError := plug.CheckStale(base.Add(79*time.Second), DefaultStaleThreshold, true)
	if entered || inError {
		t.Fatalf("expected plug within threshold to stay healthy")
	}
}

func TestCheckStaleNeverSeenRespectsGrace(t *testing.T) {
	plug := newTestPlug(&recordingChannel{})
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	if entered, inError := plug.CheckStale(now, DefaultStaleThreshold, false); entered || inError {
		t.Fatalf("expected never-seen plug to be spared on the first tick")
	}
	if entered, inError := plug.CheckStale(now.Add(2*time.Minute), DefaultStaleThreshold, true); !entered || !inError {
		t.Fatalf("expected never-seen plug to enter error once grace expired")
	}
}

func TestErrorMinutesAccrual(t *testing.T) {
	plug := newTestPlug(&recordingChannel{})
	plug.AccrueError(2)
	plug.AccrueError(2)
	if plug.ErrorMinutes() != 4 {
		t.Fatalf("expected 4 error minutes, got %d", plug.ErrorMinutes())
	}
	plug.ClearErrorMinutes()
	if plug.ErrorMinutes() != 0 {
		t.Fatalf("expected cleared error minutes, got %d", plug.ErrorMinutes())
	}
}

func TestHolidayCountdownFloorsAtZero(t *testing.T) {
	plug := newTestPlug(&recordingChannel{})

	if got := plug.AddHolidayMinutes(5); got != 5 {
		t.Fatalf("expected 5 holiday minutes, got %d", got)
	}
	plug.DecrementHoliday(2)
	if plug.HolidayMinutes() != 3 {
		t.Fatalf("expected 3 holiday minutes, got %d", plug.HolidayMinutes())
	}
	plug.DecrementHoliday(10)
	if plug.HolidayMinutes() != 0 {
		t.Fatalf("expected holiday countdown to floor at 0, got %d", plug.HolidayMinutes())
	}

	if got := plug.AddHolidayMinutes(-7); got != 0 {
		t.Fatalf("expected negative adjustment to floor at 0, got %d", got)
	}
}

func TestSendCommandRecordsStateOnlyOnSuccess(t *testing.T) {
	broken := true
	channel := &recordingChannel{
		publishFn: func(ctx context.Context, deviceID string, state PowerState) error {
			if broken {
				return errors.New("broker unreachable")
			}
			return nil
		},
	}
	plug := newTestPlug(channel)

	err := plug.SendCommand(context.Background(), PowerOff)
	if err == nil {
		t.Fatalf("expected command failure to surface")
	}
	if plug.LastCommand() != "" {
		t.Fatalf("failed command must not count as delivered, got %q", plug.LastCommand())
	}

	broken = false
	if err := plug.SendCommand(context.Background(), PowerOff); err != nil {
		t.Fatalf("SendCommand failed: %v", err)
	}
	if plug.LastCommand() != PowerOff {
		t.Fatalf("expected commanded state recorded, got %q", plug.LastCommand())
	}
	if got := channel.Commands(); len(got) != 2 || got[1] != "plug1:OFF" {
		t.Fatalf("unexpected published commands: %v", got)
	}
}

func TestListenerFeedsSamplesAndStopsOnCancel(t *testing.T) {
	samples := make(chan Sample, 2)
	channel := &recordingChannel{
		subscribeFn: func(ctx context.Context, deviceID string) (<-chan Sample, error) {
			return samples, nil
		},
	}
	plug := newTestPlug(channel)
	listener := NewListener(plug, channel, DefaultListenerPolicyForTest(), nil, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		listener.Run(ctx)
		close(done)
	}()

	samples <- Sample{Power: 33, Timestamp: time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)}

	deadline := time.After(2 * time.Second)
	for {
		if power, ok := plug.LastPower(); ok && power == 33 {
			break
		}
		select {
		case <-deadline:
			t.Fatalf("timed out waiting for sample to reach plug")
		case <-time.After(10 * time.Millisecond):
		}
	}

	cancel()
	close(samples)
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("listener did not stop after cancellation")
	}
}

func TestListenerEscalatesAfterRepeatedFailures(t *testing.T) {
	channel := &recordingChannel{
		subscribeFn: func(ctx context.Context, deviceID string) (<-chan Sample, error) {
			return nil, errors.New("broker unreachable")
		},
	}
	plug := newTestPlug(channel)

	escalations := make(chan string, 1)
	listener := NewListener(plug, channel, DefaultListenerPolicyForTest(), func(ctx context.Context, text string) {
		select {
		case escalations <- text:
		default:
		}
	}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go listener.Run(ctx)

	select {
	case <-escalations:
	case <-time.After(2 * time.Second):
		t.Fatalf("expected escalation after repeated subscribe failures")
	}
}
