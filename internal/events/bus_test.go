package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPublishDeliversToSubscribers(t *testing.T) {
	bus := NewBus()

	var got []Event
	bus.Subscribe(EntityUpdated{}.EventName(), func(ev Event) {
		got = append(got, ev)
	})

	bus.Publish(EntityUpdated{EntityID: "e1"})
	bus.Publish(EntityUpdated{EntityID: "e2"})

	assert.Len(t, got, 2)
	assert.Equal(t, "e1", got[0].(EntityUpdated).EntityID)
	assert.Equal(t, "e2", got[1].(EntityUpdated).EntityID)
}

func TestPublishIgnoresOtherEventNames(t *testing.T) {
	bus := NewBus()

	calls := 0
	bus.Subscribe(FollowChanged{}.EventName(), func(ev Event) {
		calls++
	})

	bus.Publish(EntityUpdated{EntityID: "e1"})
	assert.Zero(t, calls)

	bus.Publish(FollowChanged{FollowerID: "a", FolloweeID: "b", Following: true})
	assert.Equal(t, 1, calls)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := NewBus()

	calls := 0
	unsub := bus.Subscribe(VisibilityChanged{}.EventName(), func(ev Event) {
		calls++
	})

	bus.Publish(VisibilityChanged{Visible: true})
	unsub()
	bus.Publish(VisibilityChanged{Visible: false})

	assert.Equal(t, 1, calls)
}

func TestPanickingHandlerDoesNotBlockOthers(t *testing.T) {
	bus := NewBus()

	bus.Subscribe(EntityUpdated{}.EventName(), func(ev Event) {
		panic("boom")
	})

	calls := 0
	bus.Subscribe(EntityUpdated{}.EventName(), func(ev Event) {
		calls++
	})

	assert.NotPanics(t, func() {
		bus.Publish(EntityUpdated{EntityID: "e1"})
	})
	assert.Equal(t, 1, calls)
}
