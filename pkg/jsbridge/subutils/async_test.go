package subutils

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus/bustest"
)

// blockingSubscriber holds every OnEvent until release is closed.
type blockingSubscriber struct {
	*bustest.Recorder
	release chan struct{}
	once    sync.Once
}

func newBlockingSubscriber() *blockingSubscriber {
	return &blockingSubscriber{Recorder: bustest.NewRecorder(), release: make(chan struct{})}
}

func (b *blockingSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	<-b.release
	return b.Recorder.OnEvent(ctx, eventType, data, fields)
}

func (b *blockingSubscriber) unblock() {
	b.once.Do(func() { close(b.release) })
}

func TestAsyncQueueingSubscriber_Delivers(t *testing.T) {
	rec := bustest.NewRecorder()
	sub := NewAsyncQueueingSubscriber(rec, 10).Start()
	defer sub.Close()

	ctx := context.Background()
	require.NoError(t, sub.OnSubscribe(ctx, "ui/#"))
	require.NoError(t, sub.OnEvent(ctx, "ui/click", map[string]any{"x": 1}, map[string]string{"k": "v"}))
	require.NoError(t, sub.OnUnsubscribe(ctx, "ui/#"))

	events := rec.WaitForEvents(1, time.Second)
	require.Len(t, events, 1)
	assert.Equal(t, "ui/click", events[0].Type)
	assert.Equal(t, map[string]any{"x": 1}, events[0].Data)
	assert.Equal(t, map[string]string{"k": "v"}, events[0].Fields)

	require.NoError(t, sub.Close())
	assert.Equal(t, []string{"ui/#"}, rec.Subscriptions())
	assert.Equal(t, []string{"ui/#"}, rec.Unsubscriptions())
}

func TestAsyncQueueingSubscriber_DefaultQueueSize(t *testing.T) {
	sub := NewAsyncQueueingSubscriber(bustest.NewRecorder(), 0)
	assert.Equal(t, DefaultQueueSize, sub.QueueCapacity())
	assert.Equal(t, 0, sub.QueueSize())
}

func TestAsyncQueueingSubscriber_QueueFull(t *testing.T) {
	blocked := newBlockingSubscriber()
	sub := NewAsyncQueueingSubscriber(blocked, 2).Start()
	defer func() {
		blocked.unblock()
		sub.Close()
	}()

	ctx := context.Background()
	// The worker takes the first event and blocks on it.
	require.NoError(t, sub.OnEvent(ctx, "e", 0, nil))
	require.Eventually(t, func() bool { return sub.QueueSize() == 0 }, time.Second, time.Millisecond)

	require.NoError(t, sub.OnEvent(ctx, "e", 1, nil))
	require.NoError(t, sub.OnEvent(ctx, "e", 2, nil))
	assert.ErrorIs(t, sub.OnEvent(ctx, "e", 3, nil), ErrQueueFull)
	assert.Equal(t, 2, sub.QueueSize())
}

func TestAsyncQueueingSubscriber_CloseDrains(t *testing.T) {
	blocked := newBlockingSubscriber()
	sub := NewAsyncQueueingSubscriber(blocked, 10).Start()

	ctx := context.Background()
	for i := 0; i < 5; i++ {
		require.NoError(t, sub.OnEvent(ctx, "e", i, nil))
	}

	closed := make(chan struct{})
	go func() {
		sub.Close()
		close(closed)
	}()

	blocked.unblock()
	select {
	case <-closed:
	case <-time.After(time.Second):
		t.Fatal("Close did not return")
	}

	events := blocked.Events()
	require.Len(t, events, 5)
	for i, e := range events {
		assert.Equal(t, i, e.Data)
	}
}

func TestAsyncQueueingSubscriber_RejectsAfterClose(t *testing.T) {
	sub := NewAsyncQueueingSubscriber(bustest.NewRecorder(), 10).Start()
	require.NoError(t, sub.Close())
	require.NoError(t, sub.Close())

	assert.True(t, sub.IsClosed())
	ctx := context.Background()
	assert.ErrorIs(t, sub.OnEvent(ctx, "e", nil, nil), ErrSubscriberClosed)
	assert.ErrorIs(t, sub.OnSubscribe(ctx, "e"), ErrSubscriberClosed)
	assert.ErrorIs(t, sub.OnUnsubscribe(ctx, "e"), ErrSubscriberClosed)
}
