package homeassistant

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakePublisher struct {
	messages map[string]interface{}
	err      error
}

func newFakePublisher() *fakePublisher {
	return &fakePublisher{messages: map[string]interface{}{}}
}

func (f *fakePublisher) PublishRetain(topic string, payload interface{}) error {
	if f.err != nil {
		return f.err
	}
	f.messages[topic] = payload
	return nil
}

func (f *fakePublisher) StatusTopic() string { return "fiscal/sync/status" }

func TestDiscoveryManager_Register(t *testing.T) {
	pub := newFakePublisher()
	dm := NewDiscoveryManager(pub, config.MQTTConfig{})

	require.NoError(t, dm.Register())
	assert.Len(t, pub.messages, 5)

	raw, ok := pub.messages["homeassistant/sensor/fiscal_offline/pending/config"]
	require.True(t, ok)
	pending := raw.(SensorConfig)
	assert.Equal(t, "fiscal_offline_pending", pending.UniqueID)
	assert.Equal(t, "fiscal/sync/status/queue", pending.StateTopic)
	assert.Equal(t, "{{ value_json.pending }}", pending.ValueTemplate)
	assert.Equal(t, "fiscal/sync/status", pending.AvailabilityTopic)

	raw, ok = pub.messages["homeassistant/binary_sensor/fiscal_offline/api_online/config"]
	require.True(t, ok)
	online := raw.(SensorConfig)
	assert.Equal(t, "connectivity", online.DeviceClass)
	assert.Equal(t, "fiscal/sync/status/connectivity", online.StateTopic)

	encoded, err := json.Marshal(online)
	require.NoError(t, err)
	assert.NotContains(t, string(encoded), "value_template")
}

func TestDiscoveryManager_CustomPrefixAndErrors(t *testing.T) {
	pub := newFakePublisher()
	dm := NewDiscoveryManager(pub, config.MQTTConfig{DiscoveryPrefix: "ha"})
	assert.Equal(t, "ha/sensor/fiscal_offline/failed/config", dm.DiscoveryTopic(ComponentSensor, "failed"))

	pub.err = errors.New("not connected")
	assert.Error(t, dm.Register())
}

func TestStatePublisher(t *testing.T) {
	pub := newFakePublisher()
	calls := 0
	sp := NewStatePublisher(pub, func(ctx context.Context) (models.QueueStats, error) {
		calls++
		return models.QueueStats{Pending: 3, Total: 3}, nil
	})

	bus := events.NewBus()
	detach := sp.Attach(bus)

	bus.Emit(events.Event{Type: events.OperationCompleted})
	assert.Equal(t, 0, calls)

	bus.Emit(events.Event{Type: events.QueueEmpty})
	assert.Equal(t, 1, calls)
	assert.Equal(t, models.QueueStats{Pending: 3, Total: 3}, pub.messages["fiscal/sync/status/queue"])

	detach()
	bus.Emit(events.Event{Type: events.QueueEmpty})
	assert.Equal(t, 1, calls)

	sp.PublishConnectivity(false)
	assert.Equal(t, "OFF", pub.messages["fiscal/sync/status/connectivity"])
	sp.PublishConnectivity(true)
	assert.Equal(t, "ON", pub.messages["fiscal/sync/status/connectivity"])
}
