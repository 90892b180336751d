package subutils

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
)

var (
	ErrQueueFull        = errors.New("subscriber queue is full")
	ErrSubscriberClosed = errors.New("subscriber is closed")
)

const DefaultQueueSize = 100

type operation int

const (
	opSubscribe operation = iota
	opUnsubscribe
	opEvent
)

type queuedCall struct {
	ctx       context.Context
	op        operation
	eventType string
	data      any
	fields    map[string]string
}

// AsyncQueueingSubscriber hands calls to a wrapped subscriber from its own
// goroutine so that a slow observer never stalls the event bus. Calls made
// while the queue is full are rejected with ErrQueueFull.
//
//	sub := subutils.NewAsyncQueueingSubscriber(observer, 10).Start()
//	defer sub.Close()
type AsyncQueueingSubscriber struct {
	wrapped   bus.Subscriber
	logger    *zap.Logger
	queue     chan queuedCall
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

// NewAsyncQueueingSubscriber returns an unstarted subscriber; call Start.
func NewAsyncQueueingSubscriber(wrapped bus.Subscriber, queueSize int) *AsyncQueueingSubscriber {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}

	return &AsyncQueueingSubscriber{
		wrapped: wrapped,
		logger:  zap.NewNop(),
		queue:   make(chan queuedCall, queueSize),
		done:    make(chan struct{}),
	}
}

// WithLogger sets the logger used to report errors from the wrapped subscriber.
func (a *AsyncQueueingSubscriber) WithLogger(logger *zap.Logger) *AsyncQueueingSubscriber {
	if logger != nil {
		a.logger = logger
	}
	return a
}

func (a *AsyncQueueingSubscriber) Start() *AsyncQueueingSubscriber {
	a.wg.Add(1)
	go a.run()
	return a
}

func (a *AsyncQueueingSubscriber) run() {
	defer a.wg.Done()

	for {
		select {
		case call := <-a.queue:
			a.process(call)
		case <-a.done:
			a.drain()
			return
		}
	}
}

func (a *AsyncQueueingSubscriber) drain() {
	for {
		select {
		case call := <-a.queue:
			a.process(call)
		default:
			return
		}
	}
}

func (a *AsyncQueueingSubscriber) process(call queuedCall) {
	var err error
	switch call.op {
	case opSubscribe:
		err = a.wrapped.OnSubscribe(call.ctx, call.eventType)
	case opUnsubscribe:
		err = a.wrapped.OnUnsubscribe(call.ctx, call.eventType)
	case opEvent:
		err = a.wrapped.OnEvent(call.ctx, call.eventType, call.data, call.fields)
	}

	if err != nil {
		a.logger.Warn("Queued subscriber call failed",
			zap.String("event_type", call.eventType),
			zap.Error(err))
	}
}

func (a *AsyncQueueingSubscriber) enqueue(call queuedCall) error {
	if a.IsClosed() {
		return ErrSubscriberClosed
	}

	select {
	case a.queue <- call:
		return nil
	default:
		return ErrQueueFull
	}
}

func (a *AsyncQueueingSubscriber) OnSubscribe(ctx context.Context, pattern string) error {
	return a.enqueue(queuedCall{ctx: ctx, op: opSubscribe, eventType: pattern})
}

func (a *AsyncQueueingSubscriber) OnUnsubscribe(ctx context.Context, pattern string) error {
	return a.enqueue(queuedCall{ctx: ctx, op: opUnsubscribe, eventType: pattern})
}

func (a *AsyncQueueingSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	return a.enqueue(queuedCall{ctx: ctx, op: opEvent, eventType: eventType, data: data, fields: fields})
}

// Close stops accepting calls, delivers whatever is still queued, and waits
// for the worker to exit.
func (a *AsyncQueueingSubscriber) Close() error {
	a.closeOnce.Do(func() {
		close(a.done)
		a.wg.Wait()
	})
	return nil
}

func (a *AsyncQueueingSubscriber) QueueSize() int {
	return len(a.queue)
}

func (a *AsyncQueueingSubscriber) QueueCapacity() int {
	return cap(a.queue)
}

func (a *AsyncQueueingSubscriber) IsClosed() bool {
	select {
	case <-a.done:
		return true
	default:
		return false
	}
}
