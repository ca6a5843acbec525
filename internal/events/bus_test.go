package events

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shehryarbajwa/hypercart/pkg/models"
)

func TestBusFanOut(t *testing.T) {
	bus := NewBus(zap.NewNop())
	_, a, cancelA := bus.Subscribe(4)
	_, b, cancelB := bus.Subscribe(4)
	defer cancelA()
	defer cancelB()

	bus.ForSession("acc-1").Progress(2, 5, "Card Generated")

	for _, ch := range []<-chan models.Event{a, b} {
		evt := <-ch
		assert.Equal(t, models.EventProgress, evt.Type)
		assert.Equal(t, "acc-1", evt.SessionID)
		require.NotNil(t, evt.Progress)
		assert.Equal(t, models.Progress{Generated: 2, Total: 5, Status: "Card Generated"}, *evt.Progress)
	}
}

func TestBusPublishDoesNotBlockOnFullSubscriber(t *testing.T) {
	bus := NewBus(zap.NewNop())
	_, ch, cancel := bus.Subscribe(1)
	defer cancel()

	bus.Log("s", "first")
	bus.Log("s", "second")

	evt := <-ch
	assert.Equal(t, "first", evt.Message)
	assert.Empty(t, ch)
}

func TestBusCancelIsIdempotent(t *testing.T) {
	bus := NewBus(zap.NewNop())
	_, ch, cancel := bus.Subscribe(1)
	cancel()
	cancel()

	_, open := <-ch
	assert.False(t, open)
	assert.Equal(t, 0, bus.Subscribers())
	bus.ForSession("s").SyncComplete()
}
