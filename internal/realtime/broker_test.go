package realtime

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBrokerFanOut(t *testing.T) {
	t.Parallel()

	b := NewBroker()
	first, cancelFirst := b.Subscribe()
	second, cancelSecond := b.Subscribe()
	defer cancelSecond()

	b.Publish(Event{Type: EventRunStarted, LoopName: "docs_expiry"})

	got := <-first
	assert.Equal(t, EventRunStarted, got.Type)
	assert.EqualValues(t, 1, got.ID)
	assert.False(t, got.At.IsZero())
	assert.Equal(t, "docs_expiry", (<-second).LoopName)

	cancelFirst()
	_, ok := <-first
	require.False(t, ok)

	b.Publish(Event{Type: EventRunCompleted})
	assert.Equal(t, EventRunCompleted, (<-second).Type)
}

func TestNilBrokerPublish(t *testing.T) {
	t.Parallel()

	var b *Broker
	assert.NotPanics(t, func() { b.Publish(Event{Type: EventRunStarted}) })
}
