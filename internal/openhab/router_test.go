package openhab

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func stateEvent(item, state string) DomainEvent {
	return DomainEvent{Item: item, Type: ItemStateEvent, State: state}
}

func TestRouter_DeliversInSubscriptionOrder(t *testing.T) {
	r := NewRouter(nil)
	topic := ItemTopic("Light", ItemStateEvent)

	var order []string
	r.Subscribe(topic, func(Event) { order = append(order, "s1") })
	r.Subscribe(topic, func(Event) { order = append(order, "s2") })
	r.Subscribe(topic, func(Event) { order = append(order, "s3") })

	for i := 0; i < 3; i++ {
		r.Publish(topic, stateEvent("Light", "ON"))
	}

	assert.Equal(t, []string{
		"s1", "s2", "s3",
		"s1", "s2", "s3",
		"s1", "s2", "s3",
	}, order)
}

func TestRouter_OrderPreservedAfterUnsubscribe(t *testing.T) {
	r := NewRouter(nil)
	topic := ItemTopic("Light", ItemStateEvent)

	var order []string
	r.Subscribe(topic, func(Event) { order = append(order, "a") })
	sb := r.Subscribe(topic, func(Event) { order = append(order, "b") })
	r.Subscribe(topic, func(Event) { order = append(order, "c") })
	require.True(t, r.Unsubscribe(sb))
	r.Subscribe(topic, func(Event) { order = append(order, "d") })

	r.Publish(topic, stateEvent("Light", "ON"))
	assert.Equal(t, []string{"a", "c", "d"}, order)

	assert.False(t, r.Unsubscribe(sb), "second unsubscribe is a no-op")
}

func TestRouter_UnsubscribeDuringDelivery(t *testing.T) {
	r := NewRouter(nil)
	topic := ItemTopic("Door", ItemStateChangedEvent)

	var order []string
	var self, other Subscription
	self = r.Subscribe(topic, func(Event) {
		order = append(order, "self")
		r.Unsubscribe(self)
		r.Unsubscribe(other)
	})
	other = r.Subscribe(topic, func(Event) { order = append(order, "other") })
	r.Subscribe(topic, func(Event) { order = append(order, "last") })

	n := r.Publish(topic, stateEvent("Door", "OPEN"))
	assert.Equal(t, 3, n)
	assert.Equal(t, []string{"self", "other", "last"}, order)

	order = nil
	r.Publish(topic, stateEvent("Door", "CLOSED"))
	assert.Equal(t, []string{"last"}, order)
}

func TestRouter_SubscribeDuringDeliveryWaitsForNextPublish(t *testing.T) {
	r := NewRouter(nil)
	topic := ConnectionTopic()

	calls := 0
	r.Subscribe(topic, func(Event) {
		r.Subscribe(topic, func(Event) { calls++ })
	})

	r.Publish(topic, ConnectionEvent{State: StateConnected})
	assert.Equal(t, 0, calls)
	r.Publish(topic, ConnectionEvent{State: StateConnected})
	assert.Equal(t, 1, calls)
}

func TestRouter_TopicsAreExact(t *testing.T) {
	r := NewRouter(nil)

	got := 0
	r.Subscribe(ItemTopic("Light", ItemStateEvent), func(Event) { got++ })

	r.Publish(ItemTopic("Light", ItemCommandEvent), stateEvent("Light", "ON"))
	r.Publish(ItemTopic("Light2", ItemStateEvent), stateEvent("Light2", "ON"))
	r.Publish(ItemRawTopic("Light"), RawEvent{Item: "Light"})
	assert.Equal(t, 0, got)

	r.Publish(ItemTopic("Light", ItemStateEvent), stateEvent("Light", "ON"))
	assert.Equal(t, 1, got)
}

func TestRouter_RecoversHandlerPanic(t *testing.T) {
	r := NewRouter(nil)
	topic := RawTopic()

	reached := false
	r.Subscribe(topic, func(Event) { panic("bad handler") })
	r.Subscribe(topic, func(Event) { reached = true })

	assert.NotPanics(t, func() { r.Publish(topic, RawEvent{}) })
	assert.True(t, reached)
}

func TestRouter_Count(t *testing.T) {
	r := NewRouter(nil)
	topic := ItemTopic("X", ItemStateEvent)

	s1 := r.Subscribe(topic, func(Event) {})
	r.Subscribe(topic, func(Event) {})
	assert.Equal(t, 2, r.Count(topic))

	r.Unsubscribe(s1)
	assert.Equal(t, 1, r.Count(topic))
	assert.Equal(t, 0, r.Count(ConnectionTopic()))
}

func TestRouter_ConcurrentUse(t *testing.T) {
	r := NewRouter(nil)
	topic := ItemTopic("X", ItemStateEvent)

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				s := r.Subscribe(topic, func(Event) {})
				r.Publish(topic, stateEvent("X", "1"))
				r.Unsubscribe(s)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, 0, r.Count(topic))
}

func TestTopic_String(t *testing.T) {
	assert.Equal(t, "Light/ItemStateEvent", ItemTopic("Light", ItemStateEvent).String())
	assert.Equal(t, "Light/RawEvent", ItemRawTopic("Light").String())
	assert.Equal(t, "RawEvent", RawTopic().String())
	assert.Equal(t, "ConnectionState", ConnectionTopic().String())
	assert.Equal(t, "Light", ItemTopic("Light", ItemCommandEvent).Item())
}
