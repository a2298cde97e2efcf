package events_test

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/marketclass/internal/events"
)

func TestPublishFansOutToAllSubscribers(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var first, second []*events.Event
	bus.Subscribe(func(e *events.Event) { first = append(first, e) })
	bus.Subscribe(func(e *events.Event) { second = append(second, e) })
	assert.Equal(t, 2, bus.SubscriberCount())

	bus.Publish(events.DayAdvanced, "ABC123", events.DayAdvancedData{CurrentDay: 1, NumDays: 5})

	require.Len(t, first, 1)
	require.Len(t, second, 1)
	assert.Equal(t, events.DayAdvanced, first[0].Type)
	assert.Equal(t, "ABC123", first[0].RoomCode)
	assert.False(t, first[0].Timestamp.IsZero())

	data, ok := first[0].Data.(events.DayAdvancedData)
	require.True(t, ok)
	assert.Equal(t, 1, data.CurrentDay)
}

func TestUnsubscribeStopsDelivery(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())

	var got int
	unsubscribe := bus.Subscribe(func(*events.Event) { got++ })

	bus.Publish(events.RoomCreated, "ABC123", nil)
	assert.Equal(t, 1, got)

	unsubscribe()
	assert.Equal(t, 0, bus.SubscriberCount())

	bus.Publish(events.RoomCreated, "ABC123", nil)
	assert.Equal(t, 1, got)

	// Double unsubscribe is harmless.
	unsubscribe()
}

func TestPublishWithoutSubscribers(t *testing.T) {
	bus := events.NewBus(zerolog.Nop())
	bus.Publish(events.GameEnded, "ABC123", events.GameEndedData{FinalDay: 5})
	assert.Equal(t, 0, bus.SubscriberCount())
}
