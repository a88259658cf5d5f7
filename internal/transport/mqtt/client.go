// Package mqtt adapts the device channel to Tasmota smart plugs over MQTT.
//
// Commands go to cmnd/<prefix>/POWER, telemetry arrives on
// tele/<prefix>/SENSOR, and the reporting period is set through
// cmnd/<prefix>/TelePeriod.
package mqtt

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/example/plugwarden/internal/device"
)

const subscribeQoS = 1

// Options configures the broker connection.
type Options struct {
	Broker   string
	Port     int
	Username string
	Password string
	ClientID string
	// ConnectTimeout bounds the initial connect. Zero means 10 seconds.
	ConnectTimeout time.Duration
}

// Client implements device.Channel on top of a paho MQTT connection.
type Client struct {
	client paho.Client
	logger *slog.Logger

	mu     sync.RWMutex
	routes map[string]string
}

// New builds a client for the given broker. Call Connect before use.
func New(opts Options, logger *slog.Logger) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	if opts.ConnectTimeout <= 0 {
		opts.ConnectTimeout = 10 * time.Second
	}

	pahoOpts := paho.NewClientOptions().
		AddBroker(fmt.Sprintf("tcp://%s:%d", opts.Broker, opts.Port)).
		SetClientID(opts.ClientID).
		SetUsername(opts.Username).
		SetPassword(opts.Password).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(true).
		SetOrderMatters(false)
	pahoOpts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Warn("mqtt connection lost", "error", err)
	}
	pahoOpts.OnConnect = func(paho.Client) {
		logger.Info("mqtt connected", "broker", opts.Broker)
	}

	return &Client{
		client: paho.NewClient(pahoOpts),
		logger: logger,
		routes: make(map[string]string),
	}
}

// Connect establishes the broker session.
func (c *Client) Connect(ctx context.Context) error {
	token := c.client.Connect()
	if err := c.wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt connect: %w", err)
	}
	return nil
}

// Close disconnects from the broker, allowing in-flight messages to drain.
func (c *Client) Close() {
	c.client.Disconnect(250)
}

// RegisterDevice maps a device name to its Tasmota topic prefix.
func (c *Client) RegisterDevice(deviceID, topicPrefix string) {
	c.mu.Lock()
	c.routes[deviceID] = topicPrefix
	c.mu.Unlock()
}

func (c *Client) prefixFor(deviceID string) (string, error) {
	c.mu.RLock()
	prefix, ok := c.routes[deviceID]
	c.mu.RUnlock()
	if !ok {
		return "", fmt.Errorf("mqtt: no topic prefix registered for %s", deviceID)
	}
	return prefix, nil
}

// Publish sends a relay command.
func (c *Client) Publish(ctx context.Context, deviceID string, state device.PowerState) error {
	prefix, err := c.prefixFor(deviceID)
	if err != nil {
		return err
	}
	topic := fmt.Sprintf("cmnd/%s/POWER", prefix)
	token := c.client.Publish(topic, subscribeQoS, false, string(state))
	if err := c.wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// ConfigureTelemetry sets the device's sensor reporting period.
func (c *Client) ConfigureTelemetry(ctx context.Context, deviceID string, period time.Duration) error {
	prefix, err := c.prefixFor(deviceID)
	if err != nil {
		return err
	}
	seconds := int(period.Seconds())
	if seconds < 10 {
		seconds = 10 // Tasmota's minimum TelePeriod
	}
	topic := fmt.Sprintf("cmnd/%s/TelePeriod", prefix)
	token := c.client.Publish(topic, subscribeQoS, false, strconv.Itoa(seconds))
	if err := c.wait(ctx, token); err != nil {
		return fmt.Errorf("mqtt publish %s: %w", topic, err)
	}
	return nil
}

// Subscribe starts the telemetry stream for a device. The returned channel
// closes when the context is cancelled; slow consumers drop samples rather
// than block the paho router.
func (c *Client) Subscribe(ctx context.Context, deviceID string) (<-chan device.Sample, error) {
	prefix, err := c.prefixFor(deviceID)
	if err != nil {
		return nil, err
	}
	topic := fmt.Sprintf("tele/%s/SENSOR", prefix)
	stream := newTelemetryStream(16)

	handler := func(_ paho.Client, msg paho.Message) {
		sample, err := ParseSensorPayload(msg.Payload())
		if err != nil {
			c.logger.Warn("unparseable telemetry", "topic", msg.Topic(), "error", err)
			return
		}
		if !stream.deliver(sample) {
			c.logger.Warn("telemetry sample dropped", "device", deviceID)
		}
	}

	token := c.client.Subscribe(topic, subscribeQoS, handler)
	if err := c.wait(ctx, token); err != nil {
		return nil, fmt.Errorf("mqtt subscribe %s: %w", topic, err)
	}

	go func() {
		<-ctx.Done()
		unsub := c.client.Unsubscribe(topic)
		unsub.WaitTimeout(5 * time.Second)
		stream.close()
	}()
	return stream.out, nil
}

// telemetryStream guards the sample channel against the shutdown path: a
// paho handler may still be in flight after Unsubscribe times out, so close
// and deliver serialize on the stream's mutex.
type telemetryStream struct {
	mu     sync.Mutex
	closed bool
	out    chan device.Sample
}

func newTelemetryStream(buffer int) *telemetryStream {
	return &telemetryStream{out: make(chan device.Sample, buffer)}
}

// deliver reports false when the sample was dropped, either because the
// stream is closed or the consumer is lagging.
func (s *telemetryStream) deliver(sample device.Sample) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	select {
	case s.out <- sample:
		return true
	default:
		return false
	}
}

func (s *telemetryStream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}
	s.closed = true
	close(s.out)
}

func (c *Client) wait(ctx context.Context, token paho.Token) error {
	select {
	case <-token.Done():
		return token.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
