package bus_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/bus/bustest"
)

func newStartedBus(t *testing.T) bus.EventBus {
	t.Helper()

	eventBus, err := bus.NewEventBus().WithLogger(zaptest.NewLogger(t)).Build()
	require.NoError(t, err)
	require.NoError(t, eventBus.Start())
	t.Cleanup(func() { _ = eventBus.Stop() })

	return eventBus
}

func TestEventBusBuilder(t *testing.T) {
	_, err := bus.NewEventBus().WithBufferSize(0).Build()
	assert.Error(t, err)

	eventBus, err := bus.NewEventBus().WithName("observers").WithBufferSize(10).Build()
	require.NoError(t, err)
	assert.NotNil(t, eventBus)
}

func TestEventBusStartStop(t *testing.T) {
	eventBus, err := bus.NewEventBus().WithLogger(zaptest.NewLogger(t)).Build()
	require.NoError(t, err)

	assert.Error(t, eventBus.Publish(context.Background(), "early", nil))
	assert.Error(t, eventBus.Stop())

	require.NoError(t, eventBus.Start())
	assert.Error(t, eventBus.Start())
	require.NoError(t, eventBus.Stop())
	assert.Error(t, eventBus.Stop())
}

func TestEventBusPatterns(t *testing.T) {
	eventBus := newStartedBus(t)
	ctx := context.Background()

	exact := bustest.NewRecorder()
	wildcard := bustest.NewRecorder()
	single := bustest.NewRecorder()
	extract := bustest.NewRecorder()

	require.NoError(t, eventBus.Subscribe(ctx, exact, "ui/click"))
	require.NoError(t, eventBus.Subscribe(ctx, wildcard, "ui/#"))
	require.NoError(t, eventBus.Subscribe(ctx, single, "sensor/+/reading"))
	require.NoError(t, eventBus.Subscribe(ctx, extract, "sensor/+device/reading"))

	require.NoError(t, eventBus.PublishSync(ctx, "ui/click", map[string]any{"x": 1.0}))
	require.NoError(t, eventBus.PublishSync(ctx, "ui/scroll/down", nil))
	require.NoError(t, eventBus.PublishSync(ctx, "sensor/kitchen/reading", 21.5))
	require.NoError(t, eventBus.PublishSync(ctx, "other", nil))

	require.Len(t, exact.Events(), 1)
	assert.Equal(t, map[string]any{"x": 1.0}, exact.Events()[0].Data)

	var types []string
	for _, e := range wildcard.Events() {
		types = append(types, e.Type)
	}
	assert.Equal(t, []string{"ui/click", "ui/scroll/down"}, types)

	require.Len(t, single.Events(), 1)
	assert.Nil(t, single.Events()[0].Fields)

	require.Len(t, extract.Events(), 1)
	assert.Equal(t, map[string]string{"device": "kitchen"}, extract.Events()[0].Fields)
	assert.Equal(t, 21.5, extract.Events()[0].Data)
}

func TestEventBusDeliversOncePerSubscriber(t *testing.T) {
	eventBus := newStartedBus(t)
	ctx := context.Background()

	recorder := bustest.NewRecorder()
	require.NoError(t, eventBus.Subscribe(ctx, recorder, "ui/#"))
	require.NoError(t, eventBus.Subscribe(ctx, recorder, "ui/click"))

	require.NoError(t, eventBus.PublishSync(ctx, "ui/click", nil))
	assert.Len(t, recorder.Events(), 1)
	assert.Equal(t, []string{"ui/#", "ui/click"}, recorder.Subscriptions())
}

func TestEventBusAsyncPublish(t *testing.T) {
	eventBus := newStartedBus(t)
	ctx := context.Background()

	recorder := bustest.NewRecorder()
	require.NoError(t, eventBus.Subscribe(ctx, recorder, "#"))

	for i := 0; i < 10; i++ {
		require.NoError(t, eventBus.Publish(ctx, "tick", i))
	}

	events := recorder.WaitForEvents(10, time.Second)
	require.Len(t, events, 10)
	for i, e := range events {
		assert.Equal(t, i, e.Data)
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eventBus := newStartedBus(t)
	ctx := context.Background()

	recorder := bustest.NewRecorder()
	require.NoError(t, eventBus.Subscribe(ctx, recorder, "a"))
	require.NoError(t, eventBus.Subscribe(ctx, recorder, "b"))

	require.NoError(t, eventBus.Unsubscribe(ctx, recorder, "a"))
	require.NoError(t, eventBus.PublishSync(ctx, "a", nil))
	require.NoError(t, eventBus.PublishSync(ctx, "b", nil))
	require.Len(t, recorder.Events(), 1)
	assert.Equal(t, "b", recorder.Events()[0].Type)

	require.NoError(t, eventBus.UnsubscribeAll(ctx, recorder))
	require.NoError(t, eventBus.PublishSync(ctx, "b", nil))
	assert.Len(t, recorder.Events(), 1)
	assert.Equal(t, []string{"a", ""}, recorder.Unsubscriptions())

	// Unsubscribing something never subscribed is not an error.
	assert.NoError(t, eventBus.Unsubscribe(ctx, bustest.NewRecorder(), "x"))
}

func TestEventBusSubscriberErrors(t *testing.T) {
	eventBus := newStartedBus(t)
	ctx := context.Background()

	failing := bustest.NewRecorder()
	failing.FailEvents(true)
	healthy := bustest.NewRecorder()

	require.NoError(t, eventBus.Subscribe(ctx, failing, "#"))
	require.NoError(t, eventBus.Subscribe(ctx, healthy, "#"))

	assert.Error(t, eventBus.PublishSync(ctx, "x", nil))
	assert.NoError(t, eventBus.Publish(ctx, "y", nil))

	events := healthy.WaitForEvents(2, time.Second)
	assert.Len(t, events, 2)
}

func TestSubscriberFunc(t *testing.T) {
	eventBus := newStartedBus(t)
	ctx := context.Background()

	var mu sync.Mutex
	var got []string
	sub := bus.NewSubscriberFunc(func(ctx context.Context, eventType string, data any, fields map[string]string) error {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, eventType)
		return nil
	})

	require.NoError(t, eventBus.Subscribe(ctx, sub, "#"))
	require.NoError(t, eventBus.PublishSync(ctx, "hello", nil))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"hello"}, got)
}

func TestSubscribeEmptyPattern(t *testing.T) {
	eventBus := newStartedBus(t)
	assert.Error(t, eventBus.Subscribe(context.Background(), bustest.NewRecorder(), ""))
}
