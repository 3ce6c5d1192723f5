package mqtt

import (
	"encoding/json"
	"testing"

	"fiscal-offline-go/config"
	"fiscal-offline-go/internal/core/models"
	"fiscal-offline-go/internal/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type published struct {
	topic   string
	payload []byte
	retain  bool
}

func newTestClient() (*Client, *[]published) {
	c := NewClient(config.MQTTConfig{Topic: "fiscal/sync"})
	var out []published
	c.publishFn = func(topic string, payload []byte, retain bool) error {
		out = append(out, published{topic, payload, retain})
		return nil
	}
	return c, &out
}

func TestClient_Topics(t *testing.T) {
	c, _ := newTestClient()

	assert.Equal(t, "fiscal/sync/events/queue_empty", c.EventTopic(events.QueueEmpty))
	assert.Equal(t, "fiscal/sync/connectivity", c.ConnectivityTopic())
	assert.Equal(t, "fiscal/sync/status", c.StatusTopic())
}

func TestClient_AttachPublishesEvents(t *testing.T) {
	c, out := newTestClient()
	bus := events.NewBus()
	detach := c.Attach(bus)

	bus.Emit(events.Event{
		Type:  events.BatchSyncCompleted,
		Batch: &models.BatchSyncResult{Total: 3, SuccessCount: 2, FailureCount: 1},
	})

	require.Len(t, *out, 1)
	msg := (*out)[0]
	assert.Equal(t, "fiscal/sync/events/batch_sync_completed", msg.topic)
	assert.False(t, msg.retain)

	var decoded events.Message
	require.NoError(t, json.Unmarshal(msg.payload, &decoded))
	assert.Equal(t, 3, decoded.Total)
	assert.Equal(t, 2, decoded.SuccessCount)
	assert.Equal(t, 1, decoded.FailureCount)

	detach()
	bus.Emit(events.Event{Type: events.QueueEmpty})
	assert.Len(t, *out, 1)
}

func TestClient_PublishMessageEncodesPayload(t *testing.T) {
	c, out := newTestClient()

	require.NoError(t, c.PublishRetain("a", "online"))
	require.NoError(t, c.Publish("b", map[string]int{"pending": 2}))

	require.Len(t, *out, 2)
	assert.Equal(t, "online", string((*out)[0].payload))
	assert.True(t, (*out)[0].retain)
	assert.JSONEq(t, `{"pending":2}`, string((*out)[1].payload))
}

func TestClient_PublishWithoutBroker(t *testing.T) {
	c := NewClient(config.MQTTConfig{Topic: "fiscal/sync"})
	assert.Error(t, c.Publish("x", "y"))
	assert.NoError(t, c.Start(), "disabled client starts as a no-op")
}

func TestClient_ConnectivityMessages(t *testing.T) {
	c, _ := newTestClient()

	var got []bool
	c.OnConnectivity(func(online bool) { got = append(got, online) })

	c.handleMessage("fiscal/sync/connectivity", []byte("offline"))
	c.handleMessage("fiscal/sync/connectivity", []byte(`{"online":true}`))
	c.handleMessage("fiscal/sync/connectivity", []byte("maybe"))
	c.handleMessage("other/topic", []byte("online"))

	assert.Equal(t, []bool{false, true}, got)
}

func TestParseConnectivity(t *testing.T) {
	cases := map[string]struct {
		online bool
		ok     bool
	}{
		"online":           {true, true},
		" UP ":             {true, true},
		"1":                {true, true},
		"offline":          {false, true},
		"down":             {false, true},
		`{"online":false}`: {false, true},
		`{"online":true}`:  {true, true},
		`{"status":"x"}`:   {false, false},
		"":                 {false, false},
	}

	for payload, want := range cases {
		online, ok := ParseConnectivity([]byte(payload))
		assert.Equal(t, want.ok, ok, payload)
		assert.Equal(t, want.online, online, payload)
	}
}

func TestClient_OnConnectHandlers(t *testing.T) {
	c, _ := newTestClient()
	calls := 0
	c.OnConnect(func() { calls++ })
	c.OnConnect(func() { calls++ })

	c.notifyConnected()
	assert.Equal(t, 2, calls)
}
