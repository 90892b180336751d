// Package transform holds jq-backed request handlers and the transforms a
// host subscription can apply to observed content events before they reach
// its subscriber.
package transform

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/amir-yaghoubi/mqttpattern"

	"github.com/tsarna/jsbridge/pkg/jsbridge/subutils"
)

// DropEventPattern drops events whose type matches the MQTT-style pattern.
//
//	DropEventPattern("debug/#")
//	DropEventPattern("+/internal")
func DropEventPattern(pattern string) subutils.EventTransformFunc {
	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		if mqttpattern.Matches(pattern, eventType) {
			return nil, false, nil
		}
		return data, true, nil
	}
}

// DropEventPrefix drops events whose type starts with prefix.
func DropEventPrefix(prefix string) subutils.EventTransformFunc {
	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		if strings.HasPrefix(eventType, prefix) {
			return nil, false, nil
		}
		return data, true, nil
	}
}

// RateLimitByType drops an event if another event of the same type passed
// less than minInterval ago.
func RateLimitByType(minInterval time.Duration) subutils.EventTransformFunc {
	var mu sync.Mutex
	lastSent := make(map[string]time.Time)

	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		mu.Lock()
		defer mu.Unlock()

		now := time.Now()
		if last, exists := lastSent[eventType]; exists && now.Sub(last) < minInterval {
			return nil, false, nil
		}
		lastSent[eventType] = now
		return data, true, nil
	}
}

// Chain combines transforms into one, stopping at the first that drops the
// event or fails.
func Chain(transforms ...subutils.EventTransformFunc) subutils.EventTransformFunc {
	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		for _, transform := range transforms {
			result, keep, err := transform(ctx, eventType, data)
			if err != nil || !keep {
				return nil, false, err
			}
			data = result
		}
		return data, true, nil
	}
}

// IfPattern applies transform only to events whose type matches pattern;
// other events pass unchanged.
func IfPattern(pattern string, transform subutils.EventTransformFunc) subutils.EventTransformFunc {
	return IfElsePattern(pattern, transform, nil)
}

// IfElsePattern applies ifTransform to matching events and elseTransform to
// the rest. A nil transform passes events unchanged.
func IfElsePattern(pattern string, ifTransform, elseTransform subutils.EventTransformFunc) subutils.EventTransformFunc {
	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		chosen := elseTransform
		if mqttpattern.Matches(pattern, eventType) {
			chosen = ifTransform
		}
		if chosen == nil {
			return data, true, nil
		}
		return chosen(ctx, eventType, data)
	}
}

// ModifyData replaces event data with the result of fn.
func ModifyData(fn func(ctx context.Context, eventType string, data any) any) subutils.EventTransformFunc {
	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		return fn(ctx, eventType, data), true, nil
	}
}
