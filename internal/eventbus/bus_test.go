package eventbus

import (
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/torqfleet/botfleet/internal/models"
)

func TestPublish_InvokesSubscribersInOrder(t *testing.T) {
	bus := New()
	var order []int
	bus.Subscribe(models.EventTradeOpened, func(models.Event) { order = append(order, 1) })
	bus.Subscribe(models.EventTradeOpened, func(models.Event) { order = append(order, 2) })

	bus.Emit(models.EventTradeOpened, nil, "bot-1")

	require.Equal(t, []int{1, 2}, order)
}

func TestUnsubscribe_StopsFurtherDelivery(t *testing.T) {
	bus := New()
	var calls int32
	id := bus.Subscribe(models.EventTradeOpened, func(models.Event) { atomic.AddInt32(&calls, 1) })

	bus.Emit(models.EventTradeOpened, nil, "bot-1")
	bus.Unsubscribe(models.EventTradeOpened, id)
	bus.Emit(models.EventTradeOpened, nil, "bot-1")

	assert.Equal(t, int32(1), calls)
}

func TestUnsubscribe_LeavesOtherSubscribersIntact(t *testing.T) {
	bus := New()
	var order []int
	first := bus.Subscribe(models.EventTradeOpened, func(models.Event) { order = append(order, 1) })
	bus.Subscribe(models.EventTradeOpened, func(models.Event) { order = append(order, 2) })

	bus.Unsubscribe(models.EventTradeOpened, first)
	bus.Emit(models.EventTradeOpened, nil, "bot-1")

	require.Equal(t, []int{2}, order)
}

func TestUnsubscribe_UnknownIDIsNoOp(t *testing.T) {
	bus := New()
	called := false
	bus.Subscribe(models.EventTradeOpened, func(models.Event) { called = true })

	assert.NotPanics(t, func() { bus.Unsubscribe(models.EventTradeOpened, SubscriptionID(9999)) })

	bus.Emit(models.EventTradeOpened, nil, "bot-1")
	assert.True(t, called)
}

func TestPublish_SwallowsSubscriberPanic(t *testing.T) {
	bus := New()
	var called int32
	bus.Subscribe(models.EventBotError, func(models.Event) { panic("boom") })
	bus.Subscribe(models.EventBotError, func(models.Event) { atomic.AddInt32(&called, 1) })

	assert.NotPanics(t, func() {
		bus.Emit(models.EventBotError, nil, "bot-1")
	})
	assert.Equal(t, int32(1), called)
}

func TestHistory_BoundedAndFilterable(t *testing.T) {
	bus := New(WithMaxHistory(2))
	bus.Emit(models.EventBotStarted, nil, "a")
	bus.Emit(models.EventBotStopped, nil, "a")
	bus.Emit(models.EventBotPaused, nil, "a")

	all := bus.History("", 0)
	require.Len(t, all, 2, "history should be capped at maxHistory")
	assert.Equal(t, models.EventBotStopped, all[0].Type)
	assert.Equal(t, models.EventBotPaused, all[1].Type)

	filtered := bus.History(models.EventBotPaused, 0)
	require.Len(t, filtered, 1)
}

type fakePause struct{ paused bool }

func (f fakePause) IsGloballyPaused() bool { return f.paused }

func TestPublish_SuppressedWhenGloballyPaused(t *testing.T) {
	bus := New(WithPauseChecker(fakePause{paused: true}))
	var called bool
	bus.Subscribe(models.EventSignalGenerated, func(models.Event) { called = true })

	bus.Emit(models.EventSignalGenerated, nil, "bot-1")
	assert.False(t, called, "signal_generated must be suppressed while globally paused")
	assert.Empty(t, bus.History(models.EventSignalGenerated, 0))

	// bot lifecycle events are never suppressed
	var lifecycleCalled bool
	bus.Subscribe(models.EventBotPaused, func(models.Event) { lifecycleCalled = true })
	bus.Emit(models.EventBotPaused, nil, "bot-1")
	assert.True(t, lifecycleCalled)
}
