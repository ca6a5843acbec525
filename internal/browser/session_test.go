package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func newQueuedTab(t *testing.T) *tab {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	tb := &tab{
		id:     "persist:acc-1/0badf00d",
		ctx:    ctx,
		cancel: cancel,
		evq:    make(chan Event, eventQueueSize),
		logger: zap.NewNop(),
	}
	go tb.deliver()
	return tb
}

func TestEmitDoesNotWaitForHandlers(t *testing.T) {
	tb := newQueuedTab(t)

	release := make(chan struct{})
	got := make(chan Event, 2)
	tb.OnEvent(func(e Event) {
		<-release
		got <- e
	})

	done := make(chan struct{})
	go func() {
		tb.emit(EventConsoleError, "first")
		tb.emit(EventCrashed, "render process crashed")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a handler")
	}

	close(release)
	for _, want := range []Event{
		{ContextID: tb.id, Kind: EventConsoleError, Message: "first"},
		{ContextID: tb.id, Kind: EventCrashed, Message: "render process crashed"},
	} {
		select {
		case e := <-got:
			assert.Equal(t, want, e)
		case <-time.After(2 * time.Second):
			require.FailNow(t, "event not delivered", want.Message)
		}
	}
}

func TestEmitDropsWhenQueueIsFull(t *testing.T) {
	tb := newQueuedTab(t)

	block := make(chan struct{})
	defer close(block)
	tb.OnEvent(func(Event) { <-block })

	done := make(chan struct{})
	go func() {
		for i := 0; i < eventQueueSize*3; i++ {
			tb.emit(EventConsoleError, "noise")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("emit blocked on a full queue")
	}
}
