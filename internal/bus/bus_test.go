package bus

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBus_PublishReachesAllSubscribers(t *testing.T) {
	b := New()

	var first, second []interface{}
	b.Subscribe("ticker:BTCUSDT", func(ev Event) { first = append(first, ev.Payload) })
	b.Subscribe("ticker:BTCUSDT", func(ev Event) { second = append(second, ev.Payload) })

	b.Publish("ticker:BTCUSDT", 42)

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, 42, first[0])
}

func TestBus_TopicsAreIsolated(t *testing.T) {
	b := New()

	var got int
	b.Subscribe("kline:BTCUSDT:1m", func(Event) { got++ })

	b.Publish("kline:ETHUSDT:1m", nil)
	b.Publish("kline:BTCUSDT:5m", nil)

	assert.Zero(t, got)
}

func TestBus_CancelStopsDelivery(t *testing.T) {
	b := New()

	var got int
	sub := b.Subscribe("alert", func(Event) { got++ })

	b.Publish("alert", nil)
	sub.Cancel()
	b.Publish("alert", nil)

	assert.Equal(t, 1, got)
	assert.Zero(t, b.SubscriberCount("alert"), "topic is dropped with its last subscriber")
}

func TestBus_CancelIsIdempotent(t *testing.T) {
	b := New()
	sub := b.Subscribe("alert", func(Event) {})

	sub.Cancel()
	assert.NotPanics(t, sub.Cancel)
}

func TestBus_EventCarriesTopicAndTimestamp(t *testing.T) {
	b := New()

	var got Event
	b.Subscribe("alert", func(ev Event) { got = ev })
	b.Publish("alert", "payload")

	assert.Equal(t, "alert", got.Topic)
	assert.Equal(t, "payload", got.Payload)
	assert.False(t, got.Timestamp.IsZero())
}

func TestBus_PublishWithoutSubscribersIsNoop(t *testing.T) {
	b := New()
	assert.NotPanics(t, func() { b.Publish("nobody", 1) })
}
