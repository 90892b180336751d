package subutils

import (
	"context"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
)

// EventTransformFunc rewrites an observed event's data. Returning keep=false
// drops the event.
type EventTransformFunc func(ctx context.Context, eventType string, data any) (result any, keep bool, err error)

// TransformingSubscriber runs each event through a chain of transforms
// before passing it to the wrapped subscriber. A transform error drops the
// event and is logged.
type TransformingSubscriber struct {
	wrapped    bus.Subscriber
	logger     *zap.Logger
	transforms []EventTransformFunc
}

func NewTransformingSubscriber(wrapped bus.Subscriber, logger *zap.Logger, transforms ...EventTransformFunc) *TransformingSubscriber {
	if logger == nil {
		logger = zap.NewNop()
	}

	return &TransformingSubscriber{
		wrapped:    wrapped,
		logger:     logger,
		transforms: transforms,
	}
}

func (t *TransformingSubscriber) OnSubscribe(ctx context.Context, pattern string) error {
	return t.wrapped.OnSubscribe(ctx, pattern)
}

func (t *TransformingSubscriber) OnUnsubscribe(ctx context.Context, pattern string) error {
	return t.wrapped.OnUnsubscribe(ctx, pattern)
}

func (t *TransformingSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	for _, transform := range t.transforms {
		result, keep, err := transform(ctx, eventType, data)
		if err != nil {
			t.logger.Warn("Event transform failed, dropping event",
				zap.String("event_type", eventType),
				zap.Error(err))
			return nil
		}
		if !keep {
			return nil
		}
		data = result
	}

	return t.wrapped.OnEvent(ctx, eventType, data, fields)
}
