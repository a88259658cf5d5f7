package mqtt

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSensorPayload(t *testing.T) {
	payload := []byte(`{"Time":"2026-03-02T15:04:05","ENERGY":{"TotalStartTime":"2025-01-01T00:00:00","Total":12.5,"Power":42,"ApparentPower":50,"Voltage":230,"Current":0.217}}`)

	sample, err := ParseSensorPayload(payload)
	require.NoError(t, err)
	assert.Equal(t, 42.0, sample.Power)
	assert.True(t, sample.Timestamp.Equal(time.Date(2026, 3, 2, 15, 4, 5, 0, time.Local)))
}

func TestParseSensorPayloadFractionalPower(t *testing.T) {
	sample, err := ParseSensorPayload([]byte(`{"ENERGY":{"Power":17.3}}`))
	require.NoError(t, err)
	assert.Equal(t, 17.3, sample.Power)
	assert.True(t, sample.Timestamp.IsZero(), "timestamp should be zero without a Time field")
}

func TestParseSensorPayloadRejectsNonEnergy(t *testing.T) {
	cases := map[string]string{
		"no energy block": `{"Time":"2026-03-02T15:04:05","AM2301":{"Temperature":21.5}}`,
		"not json":        `POWER ON`,
		"bad power":       `{"ENERGY":{"Power":"high"}}`,
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := ParseSensorPayload([]byte(payload))
			assert.Error(t, err)
		})
	}
}
