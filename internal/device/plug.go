// Package device models a managed smart plug: live telemetry, the
// staleness watchdog, holiday suspension, and command dispatch through the
// transport channel.
package device

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// DefaultStaleThreshold is how long a plug may stay silent before the
// watchdog declares it in error.
const DefaultStaleThreshold = 80 * time.Second

// DefaultCommandTimeout bounds a single relay command.
const DefaultCommandTimeout = 5 * time.Second

// Plug holds the runtime state of one managed smart plug. Telemetry fields
// are written by the plug's listener goroutine and read by the enforcement
// tick, so they sit behind the plug's own mutex; attachment to a user is
// tracked by the orchestrator, not here.
type Plug struct {
	name        string
	topicPrefix string

	channel        Channel
	commandTimeout time.Duration
	logger         *slog.Logger

	mu             sync.Mutex
	lastPower      *float64
	lastSeen       time.Time
	inError        bool
	errorMinutes   int
	active         bool
	holidayMinutes int
	lastCommand    PowerState
}

// Config describes a plug at construction time.
type Config struct {
	Name           string
	TopicPrefix    string
	Active         bool
	CommandTimeout time.Duration
}

// NewPlug returns a plug wired to the given transport channel.
func NewPlug(cfg Config, channel Channel, logger *slog.Logger) *Plug {
	if logger == nil {
		logger = slog.Default()
	}
	timeout := cfg.CommandTimeout
	if timeout <= 0 {
		timeout = DefaultCommandTimeout
	}
	return &Plug{
		name:           cfg.Name,
		topicPrefix:    cfg.TopicPrefix,
		channel:        channel,
		commandTimeout: timeout,
		active:         cfg.Active,
		logger:         logger.With("plug", cfg.Name),
	}
}

// Name returns the plug's administrative name.
func (p *Plug) Name() string { return p.name }

// TopicPrefix returns the plug's transport address prefix.
func (p *Plug) TopicPrefix() string { return p.topicPrefix }

// Observe ingests one telemetry sample: it refreshes the power reading and
// last-seen time and clears any error state.
func (p *Plug) Observe(sample Sample) {
	p.mu.Lock()
	defer p.mu.Unlock()
	power := sample.Power
	p.lastPower = &power
	p.lastSeen = sample.Timestamp
	p.inError = false
}

// LastPower returns the most recent power reading, or false when the plug
// has never reported or the watchdog invalidated the reading.
func (p *Plug) LastPower() (float64, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.lastPower == nil {
		return 0, false
	}
	return *p.lastPower, true
}

// LastSeen returns the timestamp of the latest telemetry, zero if none.
func (p *Plug) LastSeen() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastSeen
}

// InError reports whether the watchdog currently holds the plug in error.
func (p *Plug) InError() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.inError
}

// ErrorMinutes returns the accumulated minutes spent in error.
func (p *Plug) ErrorMinutes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.errorMinutes
}

// ClearErrorMinutes zeroes the error accumulator at the daily boundary.
func (p *Plug) ClearErrorMinutes() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorMinutes = 0
}

// CheckStale runs the watchdog transition for one tick. graceExpired is
// false on the very first tick so a plug that has never reported is not
// condemned before its listener had a chance to connect. entered is true
// only on the OK->error edge, so callers can broadcast exactly once.
func (p *Plug) CheckStale(now time.Time, threshold time.Duration, graceExpired bool) (entered, inError bool) {
	if threshold <= 0 {
		threshold = DefaultStaleThreshold
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	stale := false
	switch {
	case !p.lastSeen.IsZero():
		stale = now.Sub(p.lastSeen) > threshold
	default:
		stale = graceExpired
	}

	if !stale {
		p.inError = false
		return false, false
	}
	if p.inError {
		return false, true
	}
	p.inError = true
	p.lastPower = nil
	return true, true
}

// AccrueError adds one tick-interval of error time.
func (p *Plug) AccrueError(minutes int) {
	if minutes <= 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.errorMinutes += minutes
}

// Active reports the administrative enabled flag.
func (p *Plug) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.active
}

// SetActive flips the administrative enabled flag.
func (p *Plug) SetActive(active bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.active = active
}

// HolidayMinutes returns the remaining holiday suspension countdown.
func (p *Plug) HolidayMinutes() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.holidayMinutes
}

// AddHolidayMinutes extends (or with a negative delta shortens) the holiday
// countdown, floored at zero.
func (p *Plug) AddHolidayMinutes(delta int) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holidayMinutes += delta
	if p.holidayMinutes < 0 {
		p.holidayMinutes = 0
	}
	return p.holidayMinutes
}

// DecrementHoliday counts the holiday down by one tick interval, floored
// at zero.
func (p *Plug) DecrementHoliday(minutes int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.holidayMinutes -= minutes
	if p.holidayMinutes < 0 {
		p.holidayMinutes = 0
	}
}

// LastCommand returns the most recently commanded state, "" if none yet.
// The orchestrator uses it to avoid duplicate off-notifications.
func (p *Plug) LastCommand() PowerState {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastCommand
}

// SendCommand publishes a relay command with a bounded timeout. A transport
// failure is logged and returned but intentionally not retried here: the
// next enforcement tick re-observes and corrects any inconsistency. The
// commanded state is recorded only after a successful publish, so a failed
// command does not count as delivered.
func (p *Plug) SendCommand(ctx context.Context, state PowerState) error {
	p.mu.Lock()
	channel := p.channel
	timeout := p.commandTimeout
	p.mu.Unlock()

	if channel == nil {
		return fmt.Errorf("device %s: no channel configured", p.name)
	}

	cmdCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if err := channel.Publish(cmdCtx, p.name, state); err != nil {
		p.logger.Error("command failed", "state", string(state), "error", err)
		return fmt.Errorf("device %s: command %s: %w", p.name, state, err)
	}
	p.mu.Lock()
	p.lastCommand = state
	p.mu.Unlock()
	p.logger.Info("command sent", "state", string(state))
	return nil
}
