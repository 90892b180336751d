// Package bus delivers the id-less events that content contexts emit to host
// observers. Subscriptions use MQTT-style patterns over event types: "+"
// matches one "/"-separated level, "#" matches the remainder, and "+name"
// captures a level into the fields passed to the subscriber.
package bus

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

type EventBus interface {
	Start() error
	Stop() error

	Subscribe(ctx context.Context, subscriber Subscriber, pattern string) error
	Unsubscribe(ctx context.Context, subscriber Subscriber, pattern string) error
	UnsubscribeAll(ctx context.Context, subscriber Subscriber) error

	// Publish queues an event for delivery and returns without waiting.
	Publish(ctx context.Context, eventType string, data any) error
	// PublishSync delivers an event and returns the first subscriber error.
	PublishSync(ctx context.Context, eventType string, data any) error
}

type messageType int

const (
	messageTypeEvent messageType = iota
	messageTypeEventSync
	messageTypeSubscribe
	messageTypeUnsubscribe
	messageTypeUnsubscribeAll
)

type busMessage struct {
	ctx        context.Context
	msgType    messageType
	eventType  string
	data       any
	subscriber Subscriber
	responseCh chan error
}

// basicEventBus owns its subscription table from a single goroutine; every
// other goroutine talks to it through ch.
type basicEventBus struct {
	ch            chan busMessage
	ctx           context.Context
	cancel        context.CancelFunc
	wg            sync.WaitGroup
	started       int32
	subscriptions map[Subscriber]map[string]matcher
	logger        *zap.Logger

	tracingProvider o11y.TracingProvider

	publishCounter   o11y.Counter
	subscribeCounter o11y.Counter
	errorCounter     o11y.Counter
	latencyHistogram o11y.Histogram
	subscriberGauge  o11y.Gauge
}

// Start begins the event bus's message processing goroutine
func (b *basicEventBus) Start() error {
	if !atomic.CompareAndSwapInt32(&b.started, 0, 1) {
		return fmt.Errorf("event bus already started")
	}

	b.wg.Add(1)
	go b.run()

	return nil
}

func (b *basicEventBus) run() {
	defer b.wg.Done()
	b.logger.Debug("EventBus started")

	for {
		select {
		case msg := <-b.ch:
			b.handle(msg)
		case <-b.ctx.Done():
			b.logger.Debug("EventBus stopping")
			return
		}
	}
}

func (b *basicEventBus) handle(msg busMessage) {
	var err error
	var operation string

	switch msg.msgType {
	case messageTypeEvent:
		operation = "on_event"
		err = b.deliver(msg)
	case messageTypeEventSync:
		operation = "publish_sync"
		err = b.deliver(msg)
		msg.responseCh <- err
	case messageTypeSubscribe:
		operation = "subscribe"
		err = b.doSubscribe(msg)
		msg.responseCh <- err
	case messageTypeUnsubscribe:
		operation = "unsubscribe"
		err = b.doUnsubscribe(msg)
		msg.responseCh <- err
	case messageTypeUnsubscribeAll:
		operation = "unsubscribe_all"
		err = b.doUnsubscribeAll(msg)
		msg.responseCh <- err
	default:
		b.logger.Debug("EventBus received unknown message type", zap.Int("msgType", int(msg.msgType)))
		return
	}

	if err != nil {
		b.logger.Error("EventBus operation failed",
			zap.String("operation", operation),
			zap.String("type", msg.eventType),
			zap.Error(err),
		)
		if b.errorCounter != nil {
			b.errorCounter.Add(msg.ctx, 1, o11y.L("operation", operation))
		}
	}
}

// deliver calls every matching subscriber once, returning the first error.
func (b *basicEventBus) deliver(msg busMessage) error {
	var first error

	for subscriber, matchers := range b.subscriptions {
		for _, match := range matchers {
			if ok, fields := match(msg.eventType); ok {
				if err := subscriber.OnEvent(msg.ctx, msg.eventType, msg.data, fields); err != nil {
					if first == nil {
						first = err
					} else {
						b.logger.Error("Error in OnEvent", zap.String("type", msg.eventType), zap.Error(err))
					}
				}
				break
			}
		}
	}

	return first
}

func (b *basicEventBus) Publish(ctx context.Context, eventType string, data any) error {
	if ctx == nil {
		ctx = context.Background()
	}

	if b.tracingProvider != nil {
		var span o11y.Span
		ctx, span = b.tracingProvider.StartSpan(ctx, "eventbus.publish")
		defer span.End()
		span.SetAttributes(o11y.L("type", eventType))
	}

	if b.publishCounter != nil {
		b.publishCounter.Add(ctx, 1, o11y.L("mode", "async"))
	}

	return b.accept(busMessage{
		ctx:       ctx,
		msgType:   messageTypeEvent,
		eventType: eventType,
		data:      data,
	})
}

func (b *basicEventBus) PublishSync(ctx context.Context, eventType string, data any) error {
	if ctx == nil {
		ctx = context.Background()
	}
	start := time.Now()

	var span o11y.Span
	if b.tracingProvider != nil {
		ctx, span = b.tracingProvider.StartSpan(ctx, "eventbus.publish_sync")
		defer span.End()
		span.SetAttributes(o11y.L("type", eventType))
	}

	err := b.request(busMessage{
		ctx:       ctx,
		msgType:   messageTypeEventSync,
		eventType: eventType,
		data:      data,
	})

	if b.publishCounter != nil {
		b.publishCounter.Add(ctx, 1, o11y.L("mode", "sync"))
	}
	if b.latencyHistogram != nil {
		b.latencyHistogram.Record(ctx, o11y.Seconds(start))
	}
	if span != nil {
		if err != nil {
			span.SetStatus(o11y.SpanStatusError, err.Error())
		} else {
			span.SetStatus(o11y.SpanStatusOK, "")
		}
	}

	return err
}

func (b *basicEventBus) Subscribe(ctx context.Context, subscriber Subscriber, pattern string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	err := b.request(busMessage{
		ctx:        ctx,
		msgType:    messageTypeSubscribe,
		eventType:  pattern,
		subscriber: subscriber,
	})

	if b.subscribeCounter != nil {
		status := "success"
		if err != nil {
			status = "error"
		}
		b.subscribeCounter.Add(ctx, 1, o11y.L("status", status))
	}

	return err
}

func (b *basicEventBus) Unsubscribe(ctx context.Context, subscriber Subscriber, pattern string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	return b.request(busMessage{
		ctx:        ctx,
		msgType:    messageTypeUnsubscribe,
		eventType:  pattern,
		subscriber: subscriber,
	})
}

func (b *basicEventBus) UnsubscribeAll(ctx context.Context, subscriber Subscriber) error {
	if ctx == nil {
		ctx = context.Background()
	}

	return b.request(busMessage{
		ctx:        ctx,
		msgType:    messageTypeUnsubscribeAll,
		subscriber: subscriber,
	})
}

func (b *basicEventBus) doSubscribe(msg busMessage) error {
	if msg.eventType == "" {
		return fmt.Errorf("subscription pattern must not be empty")
	}

	current, ok := b.subscriptions[msg.subscriber]
	if !ok {
		current = make(map[string]matcher)
		b.subscriptions[msg.subscriber] = current
	}
	current[msg.eventType] = makeMatcher(msg.eventType)

	b.updateGauge(msg.ctx)

	return msg.subscriber.OnSubscribe(msg.ctx, msg.eventType)
}

func (b *basicEventBus) doUnsubscribe(msg busMessage) error {
	current, ok := b.subscriptions[msg.subscriber]
	if !ok {
		return nil // not subscribed - not an error
	}

	delete(current, msg.eventType)
	if len(current) == 0 {
		delete(b.subscriptions, msg.subscriber)
	}

	b.updateGauge(msg.ctx)

	return msg.subscriber.OnUnsubscribe(msg.ctx, msg.eventType)
}

func (b *basicEventBus) doUnsubscribeAll(msg busMessage) error {
	delete(b.subscriptions, msg.subscriber)

	b.updateGauge(msg.ctx)

	return msg.subscriber.OnUnsubscribe(msg.ctx, "")
}

func (b *basicEventBus) updateGauge(ctx context.Context) {
	if b.subscriberGauge != nil {
		b.subscriberGauge.Set(ctx, float64(len(b.subscriptions)))
	}
}

// accept queues a message without waiting for it to be processed.
func (b *basicEventBus) accept(msg busMessage) error {
	if atomic.LoadInt32(&b.started) == 0 {
		b.logger.Warn("Event bus not started, event ignored", zap.String("type", msg.eventType))
		return fmt.Errorf("event bus not started")
	}

	select {
	case b.ch <- msg:
		return nil
	case <-b.ctx.Done():
		return fmt.Errorf("event bus stopped")
	default:
		b.logger.Warn("Event bus channel full, event dropped", zap.String("type", msg.eventType))
		return fmt.Errorf("event bus channel full")
	}
}

// request queues a message and waits for the bus goroutine's response.
func (b *basicEventBus) request(msg busMessage) error {
	if atomic.LoadInt32(&b.started) == 0 {
		return fmt.Errorf("event bus not started")
	}

	msg.responseCh = make(chan error, 1)

	select {
	case b.ch <- msg:
	case <-b.ctx.Done():
		return fmt.Errorf("event bus stopped")
	case <-msg.ctx.Done():
		return msg.ctx.Err()
	}

	select {
	case err := <-msg.responseCh:
		return err
	case <-b.ctx.Done():
		return fmt.Errorf("event bus stopped")
	}
}

// Stop gracefully shuts down the event bus
func (b *basicEventBus) Stop() error {
	if !atomic.CompareAndSwapInt32(&b.started, 1, 0) {
		return fmt.Errorf("event bus not started")
	}

	b.cancel()
	b.wg.Wait()

	b.logger.Debug("EventBus stopped")
	return nil
}
