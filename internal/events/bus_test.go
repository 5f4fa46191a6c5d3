package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus()
	a, unsubA := bus.Subscribe(EventSignalRaised, 1)
	b, unsubB := bus.Subscribe(EventSignalRaised, 1)
	defer unsubA()
	defer unsubB()

	bus.Publish(EventSignalRaised, Lifecycle{Symbol: "APT_USDT"})

	for _, ch := range []<-chan any{a, b} {
		select {
		case v := <-ch:
			require.IsType(t, Lifecycle{}, v)
			assert.Equal(t, "APT_USDT", v.(Lifecycle).Symbol)
		case <-time.After(time.Second):
			t.Fatal("subscriber did not receive event")
		}
	}
}

func TestBusDropsForSlowSubscriber(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventOrderFilled, 1)
	defer unsub()

	bus.Publish(EventOrderFilled, 1)
	bus.Publish(EventOrderFilled, 2)

	assert.Equal(t, 1, <-ch)
	select {
	case v := <-ch:
		t.Fatalf("unexpected second event %v", v)
	default:
	}
}

func TestBusUnsubscribe(t *testing.T) {
	bus := NewBus()
	ch, unsub := bus.Subscribe(EventOrderCancelled, 1)
	assert.Equal(t, 1, bus.Subscribers(EventOrderCancelled))

	unsub()
	unsub()
	assert.Equal(t, 0, bus.Subscribers(EventOrderCancelled))

	_, open := <-ch
	assert.False(t, open)
	bus.Publish(EventOrderCancelled, "ignored")
}

func TestNilBusPublish(t *testing.T) {
	var bus *Bus
	assert.NotPanics(t, func() { bus.Publish(EventNotification, "x") })
}
