package bus

import (
	"context"
	"strings"

	"github.com/amir-yaghoubi/mqttpattern"
)

// Subscriber observes events published on an EventBus.
type Subscriber interface {
	OnSubscribe(ctx context.Context, pattern string) error
	OnUnsubscribe(ctx context.Context, pattern string) error
	// OnEvent receives one event. fields holds the values captured by named
	// wildcards in the matching pattern (e.g. "+device" in "sensor/+device/reading").
	OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error
}

// BaseSubscriber implements Subscriber with no-ops, for embedding.
type BaseSubscriber struct{}

func (b *BaseSubscriber) OnSubscribe(ctx context.Context, pattern string) error {
	return nil
}

func (b *BaseSubscriber) OnUnsubscribe(ctx context.Context, pattern string) error {
	return nil
}

func (b *BaseSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	return nil
}

// SubscriberFunc adapts a function to the Subscriber interface. Subscribe
// with a pointer to it, since the bus keys subscriptions by subscriber.
type SubscriberFunc func(ctx context.Context, eventType string, data any, fields map[string]string) error

// NewSubscriberFunc returns fn as a Subscriber.
func NewSubscriberFunc(fn SubscriberFunc) Subscriber {
	return &fn
}

func (f *SubscriberFunc) OnSubscribe(ctx context.Context, pattern string) error {
	return nil
}

func (f *SubscriberFunc) OnUnsubscribe(ctx context.Context, pattern string) error {
	return nil
}

func (f *SubscriberFunc) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	return (*f)(ctx, eventType, data, fields)
}

type matcher func(eventType string) (bool, map[string]string)

func makeMatcher(pattern string) matcher {
	if mqttpattern.HasExtractions(pattern) {
		return func(eventType string) (bool, map[string]string) {
			if mqttpattern.Matches(pattern, eventType) {
				return true, mqttpattern.Extract(pattern, eventType)
			}
			return false, nil
		}
	}

	if !strings.ContainsAny(pattern, "#+") {
		// exact match
		return func(eventType string) (bool, map[string]string) {
			return eventType == pattern, nil
		}
	}

	return func(eventType string) (bool, map[string]string) {
		return mqttpattern.Matches(pattern, eventType), nil
	}
}
