package subutils

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus/bustest"
)

func TestTransformingSubscriber_Chain(t *testing.T) {
	rec := bustest.NewRecorder()
	double := func(ctx context.Context, eventType string, data any) (any, bool, error) {
		return data.(int) * 2, true, nil
	}
	addOne := func(ctx context.Context, eventType string, data any) (any, bool, error) {
		return data.(int) + 1, true, nil
	}

	sub := NewTransformingSubscriber(rec, nil, double, addOne)
	require.NoError(t, sub.OnEvent(context.Background(), "n", 5, nil))

	events := rec.Events()
	require.Len(t, events, 1)
	assert.Equal(t, 11, events[0].Data)
}

func TestTransformingSubscriber_Drops(t *testing.T) {
	rec := bustest.NewRecorder()
	drop := func(ctx context.Context, eventType string, data any) (any, bool, error) {
		return nil, false, nil
	}
	fail := func(ctx context.Context, eventType string, data any) (any, bool, error) {
		return nil, false, errors.New("nope")
	}

	ctx := context.Background()
	require.NoError(t, NewTransformingSubscriber(rec, nil, drop).OnEvent(ctx, "n", 1, nil))
	require.NoError(t, NewTransformingSubscriber(rec, nil, fail).OnEvent(ctx, "n", 1, nil))
	assert.Empty(t, rec.Events())
}

func TestTransformingSubscriber_NoTransforms(t *testing.T) {
	rec := bustest.NewRecorder()
	sub := NewTransformingSubscriber(rec, nil)

	ctx := context.Background()
	require.NoError(t, sub.OnSubscribe(ctx, "p"))
	require.NoError(t, sub.OnEvent(ctx, "n", "same", map[string]string{"a": "b"}))

	require.Len(t, rec.Events(), 1)
	assert.Equal(t, "same", rec.Events()[0].Data)
	assert.Equal(t, []string{"p"}, rec.Subscriptions())
}
