package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bwallxyz/guild-activity-hub/internal/domain/shared"
)

func levelUpEvent() shared.Event {
	return shared.NewLevelUpEvent("guild-1", "user-1", "", 0, 1, 100, 150, "")
}

func sessionClosedEvent() shared.Event {
	return shared.NewSessionClosedEvent("guild-1", "user-1", "channel-1", "Lounge", 10*time.Minute)
}

func TestPublish_DeliversToTypeSubscribers(t *testing.T) {
	bus := NewInMemoryEventBus(WithSyncMode())
	defer bus.Close()

	var got []shared.Event
	bus.Subscribe(shared.EventLevelUp, HandlerFunc{
		HandlerName: "collector",
		Fn: func(_ context.Context, ev shared.Event) error {
			got = append(got, ev)
			return nil
		},
	})

	require.NoError(t, bus.Publish(context.Background(), levelUpEvent()))
	// A different event type does not reach the subscriber.
	require.NoError(t, bus.Publish(context.Background(), sessionClosedEvent()))

	require.Len(t, got, 1)
	assert.Equal(t, shared.EventLevelUp, got[0].EventType())
}

func TestPublish_SubscribeAllSeesEverything(t *testing.T) {
	bus := NewInMemoryEventBus(WithSyncMode())
	defer bus.Close()

	var count int
	bus.SubscribeAll(HandlerFunc{
		HandlerName: "audit",
		Fn: func(context.Context, shared.Event) error {
			count++
			return nil
		},
	})

	require.NoError(t, bus.Publish(context.Background(), levelUpEvent()))
	require.NoError(t, bus.Publish(context.Background(), sessionClosedEvent()))
	assert.Equal(t, 2, count)
}

func TestPublish_HandlerErrorsDoNotPropagate(t *testing.T) {
	bus := NewInMemoryEventBus(WithSyncMode())
	defer bus.Close()

	bus.Subscribe(shared.EventLevelUp, HandlerFunc{
		HandlerName: "broken",
		Fn: func(context.Context, shared.Event) error {
			return errors.New("delivery exploded")
		},
	})

	assert.NoError(t, bus.Publish(context.Background(), levelUpEvent()))
}

func TestPublish_HandlerPanicIsRecovered(t *testing.T) {
	bus := NewInMemoryEventBus(WithSyncMode())
	defer bus.Close()

	bus.Subscribe(shared.EventLevelUp, HandlerFunc{
		HandlerName: "panicky",
		Fn: func(context.Context, shared.Event) error {
			panic("boom")
		},
	})

	assert.NotPanics(t, func() {
		_ = bus.Publish(context.Background(), levelUpEvent())
	})
}

func TestPublish_NilEvent(t *testing.T) {
	bus := NewInMemoryEventBus(WithSyncMode())
	defer bus.Close()

	assert.Error(t, bus.Publish(context.Background(), nil))
}

func TestPublish_AsyncDeliveryCompletesBeforeClose(t *testing.T) {
	bus := NewInMemoryEventBus()

	var mu sync.Mutex
	var count int
	bus.Subscribe(shared.EventLevelUp, HandlerFunc{
		HandlerName: "slow",
		Fn: func(context.Context, shared.Event) error {
			time.Sleep(10 * time.Millisecond)
			mu.Lock()
			count++
			mu.Unlock()
			return nil
		},
	})

	for i := 0; i < 5; i++ {
		require.NoError(t, bus.Publish(context.Background(), levelUpEvent()))
	}

	// Close waits for in-flight deliveries.
	require.NoError(t, bus.Close())

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, 5, count)
}

func TestPublish_AfterCloseFails(t *testing.T) {
	bus := NewInMemoryEventBus(WithSyncMode())
	require.NoError(t, bus.Close())

	assert.ErrorIs(t, bus.Publish(context.Background(), levelUpEvent()), ErrEventBusClosed)
	// Closing twice is fine.
	assert.NoError(t, bus.Close())
}

func TestHandlerFunc_WithoutFn(t *testing.T) {
	h := HandlerFunc{HandlerName: "empty"}
	assert.Error(t, h.Handle(context.Background(), levelUpEvent()))
	assert.Equal(t, "empty", h.Name())
}
