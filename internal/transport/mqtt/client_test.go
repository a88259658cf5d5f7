package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/example/plugwarden/internal/device"
)

func TestTelemetryStreamDeliversInOrder(t *testing.T) {
	stream := newTelemetryStream(2)

	require.True(t, stream.deliver(device.Sample{Power: 10}))
	require.True(t, stream.deliver(device.Sample{Power: 20}))

	first := <-stream.out
	second := <-stream.out
	assert.Equal(t, 10.0, first.Power)
	assert.Equal(t, 20.0, second.Power)
}

func TestTelemetryStreamDropsWhenConsumerLags(t *testing.T) {
	stream := newTelemetryStream(1)

	require.True(t, stream.deliver(device.Sample{Power: 10}))
	assert.False(t, stream.deliver(device.Sample{Power: 20}), "full buffer must drop, not block")

	kept := <-stream.out
	assert.Equal(t, 10.0, kept.Power)
}

func TestTelemetryStreamDropsAfterClose(t *testing.T) {
	stream := newTelemetryStream(1)
	stream.close()

	assert.False(t, stream.deliver(device.Sample{Power: 10}), "closed stream must drop silently")
	_, open := <-stream.out
	assert.False(t, open, "channel should be closed")

	stream.close() // idempotent
}
