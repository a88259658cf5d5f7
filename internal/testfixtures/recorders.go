package testfixtures

import (
	"context"
	"sync"
	"time"

	"github.com/example/plugwarden/internal/device"
)

// RecordingNotifier captures broadcast and admin messages for later
// inspection.
type RecordingNotifier struct {
	mu       sync.Mutex
	messages []string
	admin    []string
}

// Broadcast records the message and always succeeds.
func (n *RecordingNotifier) Broadcast(_ context.Context, text string) error {
	n.mu.Lock()
	n.messages = append(n.messages, text)
	n.mu.Unlock()
	return nil
}

// NotifyAdmin records the message and always succeeds.
func (n *RecordingNotifier) NotifyAdmin(_ context.Context, text string) error {
	n.mu.Lock()
	n.admin = append(n.admin, text)
	n.mu.Unlock()
	return nil
}

// Messages returns a copy of everything broadcast so far.
func (n *RecordingNotifier) Messages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.messages))
	copy(out, n.messages)
	return out
}

// AdminMessages returns a copy of the direct admin notifications.
func (n *RecordingNotifier) AdminMessages() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]string, len(n.admin))
	copy(out, n.admin)
	return out
}

// Reset discards recorded messages.
func (n *RecordingNotifier) Reset() {
	n.mu.Lock()
	n.messages = nil
	n.admin = nil
	n.mu.Unlock()
}

// Command is a recorded power command.
type Command struct {
	DeviceID string
	State    device.PowerState
}

// ScriptedChannel is a device.Channel fake. Published commands are recorded;
// subscriptions drain a per-device sample script.
type ScriptedChannel struct {
	mu       sync.Mutex
	commands []Command
	scripts  map[string][]device.Sample
	publish  func(ctx context.Context, deviceID string, state device.PowerState) error
}

// NewScriptedChannel returns an empty channel fake.
func NewScriptedChannel() *ScriptedChannel {
	return &ScriptedChannel{scripts: make(map[string][]device.Sample)}
}

// Script queues samples to be delivered to the next subscriber for deviceID.
func (c *ScriptedChannel) Script(deviceID string, samples ...device.Sample) {
	c.mu.Lock()
	c.scripts[deviceID] = append(c.scripts[deviceID], samples...)
	c.mu.Unlock()
}

// FailPublish makes subsequent Publish calls return err until reset with nil.
func (c *ScriptedChannel) FailPublish(err error) {
	c.mu.Lock()
	if err == nil {
		c.publish = nil
	} else {
		c.publish = func(context.Context, string, device.PowerState) error { return err }
	}
	c.mu.Unlock()
}

// Publish records the command.
func (c *ScriptedChannel) Publish(ctx context.Context, deviceID string, state device.PowerState) error {
	c.mu.Lock()
	fail := c.publish
	c.commands = append(c.commands, Command{DeviceID: deviceID, State: state})
	c.mu.Unlock()
	if fail != nil {
		return fail(ctx, deviceID, state)
	}
	return nil
}

// Subscribe delivers the scripted samples for deviceID and closes the stream.
func (c *ScriptedChannel) Subscribe(ctx context.Context, deviceID string) (<-chan device.Sample, error) {
	c.mu.Lock()
	samples := c.scripts[deviceID]
	delete(c.scripts, deviceID)
	c.mu.Unlock()

	out := make(chan device.Sample, len(samples))
	for _, sample := range samples {
		out <- sample
	}
	close(out)
	return out, nil
}

// Commands returns a copy of the recorded commands.
func (c *ScriptedChannel) Commands() []Command {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Command, len(c.commands))
	copy(out, c.commands)
	return out
}

// CommandsFor returns the recorded states for a single device, in order.
func (c *ScriptedChannel) CommandsFor(deviceID string) []device.PowerState {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []device.PowerState
	for _, cmd := range c.commands {
		if cmd.DeviceID == deviceID {
			out = append(out, cmd.State)
		}
	}
	return out
}

// Sample builds a telemetry sample at the given power and time.
func Sample(power float64, at time.Time) device.Sample {
	return device.Sample{Power: power, Timestamp: at}
}
