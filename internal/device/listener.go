package device

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/example/plugwarden/internal/backoff"
)

// DefaultTelemetryPeriod is the reporting interval requested from devices
// that support telemetry configuration.
const DefaultTelemetryPeriod = 30 * time.Second

// Listener keeps one plug's telemetry stream alive for the life of its
// context, restarting the subscription under the backoff policy and
// escalating to the administrator once per run through the ladder.
type Listener struct {
	plug     *Plug
	channel  Channel
	policy   backoff.Policy
	escalate func(ctx context.Context, text string)
	logger   *slog.Logger
	now      func() time.Time
	period   time.Duration
}

// ListenerOption adjusts listener construction.
type ListenerOption func(*Listener)

// WithListenerClock overrides the sample timestamp clock.
func WithListenerClock(now func() time.Time) ListenerOption {
	return func(l *Listener) {
		if now != nil {
			l.now = now
		}
	}
}

// WithTelemetryPeriod overrides the reporting period requested from the
// device on stream start.
func WithTelemetryPeriod(period time.Duration) ListenerOption {
	return func(l *Listener) {
		if period > 0 {
			l.period = period
		}
	}
}

// NewListener builds a listener for the plug. escalate may be nil when no
// administrator channel exists.
func NewListener(plug *Plug, channel Channel, policy backoff.Policy, escalate func(ctx context.Context, text string), logger *slog.Logger, opts ...ListenerOption) *Listener {
	if logger == nil {
		logger = slog.Default()
	}
	l := &Listener{
		plug:     plug,
		channel:  channel,
		policy:   policy,
		escalate: escalate,
		logger:   logger.With("component", "listener", "plug", plug.Name()),
		now:      time.Now,
		period:   DefaultTelemetryPeriod,
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Run blocks until ctx is cancelled, consuming telemetry and feeding it
// into the plug. Stream termination is retried on the backoff ladder;
// cancellation is a clean exit.
func (l *Listener) Run(ctx context.Context) {
	state := backoff.New(l.policy)

	for {
		if ctx.Err() != nil {
			l.logger.Info("listener stopped")
			return
		}

		err := l.listenOnce(ctx, state)
		if ctx.Err() != nil {
			l.logger.Info("listener stopped")
			return
		}

		delay, escalate := state.Next()
		if escalate {
			l.logger.Error("telemetry unreachable, escalating", "cooldown", delay)
			if l.escalate != nil {
				l.escalate(ctx, fmt.Sprintf("Plug %s: telemetry unreachable after repeated retries, pausing for %s.", l.plug.Name(), delay))
			}
		} else {
			l.logger.Warn("telemetry stream ended, retrying", "error", err, "delay", delay)
		}

		select {
		case <-ctx.Done():
			l.logger.Info("listener stopped")
			return
		case <-time.After(delay):
		}
	}
}

func (l *Listener) listenOnce(ctx context.Context, state *backoff.State) error {
	samples, err := l.channel.Subscribe(ctx, l.plug.Name())
	if err != nil {
		return fmt.Errorf("subscribe %s: %w", l.plug.Name(), err)
	}

	state.Success()
	l.logger.Info("telemetry stream established")

	if configurator, ok := l.channel.(TelemetryConfigurator); ok {
		if err := configurator.ConfigureTelemetry(ctx, l.plug.Name(), l.period); err != nil {
			l.logger.Warn("failed to configure telemetry period", "error", err)
		}
	}

	for sample := range samples {
		if sample.Timestamp.IsZero() {
			sample.Timestamp = l.now()
		}
		l.plug.Observe(sample)
		l.logger.Debug("telemetry sample", "power", sample.Power)
	}
	return fmt.Errorf("telemetry stream for %s terminated", l.plug.Name())
}
