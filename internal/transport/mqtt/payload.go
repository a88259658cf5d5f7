package mqtt

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/example/plugwarden/internal/device"
)

// tasmotaTime is the timestamp layout Tasmota uses in SENSOR messages. It
// carries no zone; readings are interpreted in local time.
const tasmotaTime = "2006-01-02T15:04:05"

type sensorMessage struct {
	Time   string `json:"Time"`
	Energy *struct {
		Power json.Number `json:"Power"`
	} `json:"ENERGY"`
}

// ParseSensorPayload extracts a power sample from a tele/.../SENSOR message.
// Messages without an ENERGY block (plugs without metering, or other sensor
// types on the same prefix) are rejected.
func ParseSensorPayload(payload []byte) (device.Sample, error) {
	var msg sensorMessage
	if err := json.Unmarshal(payload, &msg); err != nil {
		return device.Sample{}, fmt.Errorf("decoding sensor payload: %w", err)
	}
	if msg.Energy == nil {
		return device.Sample{}, fmt.Errorf("sensor payload has no ENERGY block")
	}
	power, err := msg.Energy.Power.Float64()
	if err != nil {
		return device.Sample{}, fmt.Errorf("decoding ENERGY.Power: %w", err)
	}

	sample := device.Sample{Power: power}
	if msg.Time != "" {
		if ts, err := time.ParseInLocation(tasmotaTime, msg.Time, time.Local); err == nil {
			sample.Timestamp = ts
		}
	}
	return sample, nil
}
