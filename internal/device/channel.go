package device

import (
	"context"
	"time"
)

// PowerState is a commanded plug relay state.
type PowerState string

const (
	// PowerOn commands the relay closed.
	PowerOn PowerState = "ON"
	// PowerOff commands the relay open.
	PowerOff PowerState = "OFF"
)

// Sample is one telemetry reading from a plug.
type Sample struct {
	// Power is the instantaneous draw in watts.
	Power float64
	// Timestamp is when the reading was taken.
	Timestamp time.Time
}

// Channel is the transport port the enforcement core speaks through. A
// concrete adapter (MQTT in production, a recorder in tests) implements it;
// the core never depends on a specific wire protocol.
type Channel interface {
	// Publish sends a relay command for the device. Implementations bound
	// the call with their own timeout; an error means the command may not
	// have taken effect.
	Publish(ctx context.Context, deviceID string, state PowerState) error

	// Subscribe starts a telemetry stream for the device. The returned
	// channel is closed when the stream terminates (transport error or
	// context cancellation); callers restart it under their backoff policy.
	Subscribe(ctx context.Context, deviceID string) (<-chan Sample, error)
}

// TelemetryConfigurator is optionally implemented by channels whose devices
// accept a reporting-period configuration command.
type TelemetryConfigurator interface {
	ConfigureTelemetry(ctx context.Context, deviceID string, period time.Duration) error
}

// Registrar is optionally implemented by channels that need a device's
// transport address (the MQTT topic prefix) before commands or subscriptions
// can be routed.
type Registrar interface {
	RegisterDevice(deviceID, address string)
}
