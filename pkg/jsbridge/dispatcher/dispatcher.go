// Package dispatcher implements the answering side of the bridge. Incoming
// requests are routed by type to registered handlers and their outcome is
// pushed back into the calling context as an injected _callback script.
// Id-less messages are events and go to the host observer bus instead.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/envelope"
)

// UnknownErrorMessage is sent when a handler fails with an empty message.
const UnknownErrorMessage = "Unknown error"

type Dispatcher struct {
	name     string
	registry *Registry
	executor jsbridge.Executor
	observer bus.EventBus
	global   string
	logger   *zap.Logger
	metrics  *DispatcherMetrics

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu       sync.Mutex
	inflight map[uint64]struct{}
	closed   bool
}

// Name identifies the dispatcher in logs.
func (d *Dispatcher) Name() string {
	return d.name
}

// Registry returns the handler registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// HandleFunc registers a handler on the dispatcher's registry.
func (d *Dispatcher) HandleFunc(eventType string, fn HandlerFunc) {
	d.registry.HandleFunc(eventType, fn)
}

// OnIncoming is the single entry point for raw text arriving from the
// calling context. It never fails: malformed text is logged and dropped,
// requests for unregistered types are never answered, and handler failures
// are sent back as messages.
func (d *Dispatcher) OnIncoming(text string) {
	env, err := envelope.Decode(text)
	if err != nil {
		d.logger.Warn("Dropping malformed message", zap.Error(err), zap.Int("length", len(text)))
		d.metrics.RecordDecodeError(d.ctx)
		return
	}

	d.logger.Debug("Received message",
		zap.Uint64("id", env.ID),
		zap.String("type", env.Type),
	)

	if !env.HasID() {
		d.observe(env)
		return
	}

	handler, ok := d.registry.Lookup(env.Type)
	if !ok {
		d.logger.Debug("No handler registered, request left unanswered",
			zap.Uint64("id", env.ID),
			zap.String("type", env.Type),
		)
		d.metrics.RecordRequest(d.ctx, env.Type, OutcomeUnhandled, time.Time{})
		return
	}

	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		d.logger.Debug("Dispatcher closed, dropping request", zap.Uint64("id", env.ID))
		return
	}
	if _, busy := d.inflight[env.ID]; busy {
		d.mu.Unlock()
		d.logger.Warn("Dropping duplicate request", zap.Uint64("id", env.ID), zap.String("type", env.Type))
		d.metrics.RecordRequest(d.ctx, env.Type, OutcomeDuplicate, time.Time{})
		return
	}
	d.inflight[env.ID] = struct{}{}
	d.wg.Add(1)
	d.mu.Unlock()

	go d.serve(env, handler)
}

func (d *Dispatcher) serve(env envelope.Envelope, handler HandlerFunc) {
	defer d.wg.Done()
	defer func() {
		d.mu.Lock()
		delete(d.inflight, env.ID)
		d.mu.Unlock()
	}()

	start := time.Now()
	result, err := d.invoke(handler, env)

	var script string
	outcome := OutcomeOK
	if err == nil {
		var raw json.RawMessage
		raw, err = envelope.Marshal(result)
		if err == nil {
			script, err = envelope.CallbackScript(d.global, env.ID, nil, raw)
		}
		if err != nil {
			err = fmt.Errorf("failed to encode result: %w", err)
		}
	}

	if err != nil {
		outcome = OutcomeError
		msg := err.Error()
		if msg == "" {
			msg = UnknownErrorMessage
		}
		d.logger.Debug("Handler failed",
			zap.Uint64("id", env.ID),
			zap.String("type", env.Type),
			zap.Error(err),
		)
		script, err = envelope.CallbackScript(d.global, env.ID, &msg, nil)
		if err != nil {
			d.logger.Error("Failed to build error response", zap.Uint64("id", env.ID), zap.Error(err))
			d.metrics.RecordRequest(d.ctx, env.Type, OutcomeSendError, start)
			return
		}
	}

	if err := d.executor.Execute(script); err != nil {
		d.logger.Warn("Failed to deliver response",
			zap.Uint64("id", env.ID),
			zap.String("type", env.Type),
			zap.Error(err),
		)
		outcome = OutcomeSendError
	}

	d.metrics.RecordRequest(d.ctx, env.Type, outcome, start)
}

func (d *Dispatcher) invoke(handler HandlerFunc, env envelope.Envelope) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error("Handler panicked",
				zap.Uint64("id", env.ID),
				zap.String("type", env.Type),
				zap.Any("panic", r),
			)
			result = nil
			err = fmt.Errorf("%v", r)
		}
	}()

	return handler(d.ctx, env.Data)
}

func (d *Dispatcher) observe(env envelope.Envelope) {
	if d.observer == nil {
		d.logger.Debug("No observer for event", zap.String("type", env.Type))
		d.metrics.RecordEvent(d.ctx, false)
		return
	}

	data, err := env.Value()
	if err != nil {
		// Decode already validated the payload, so this is unreachable in practice.
		d.logger.Warn("Failed to decode event payload", zap.String("type", env.Type), zap.Error(err))
		return
	}

	if err := d.observer.Publish(d.ctx, env.Type, data); err != nil {
		d.logger.Warn("Failed to publish event", zap.String("type", env.Type), zap.Error(err))
		d.metrics.RecordEvent(d.ctx, false)
		return
	}
	d.metrics.RecordEvent(d.ctx, true)
}

// Push sends an id-less event into the calling context, where it is
// delivered to the onMessage subscriber if one is installed.
func (d *Dispatcher) Push(ctx context.Context, eventType string, data any) error {
	raw, err := envelope.Marshal(data)
	if err != nil {
		return err
	}

	script, err := envelope.ReceiveScript(d.global, eventType, raw)
	if err != nil {
		return err
	}

	if err := d.executor.Execute(script); err != nil {
		d.metrics.RecordPush(ctx, false)
		return fmt.Errorf("failed to push %s: %w", eventType, err)
	}

	d.metrics.RecordPush(ctx, true)
	return nil
}

// InFlight returns the number of requests currently being handled.
func (d *Dispatcher) InFlight() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.inflight)
}

// Close cancels the context passed to running handlers and waits for them
// to return. Requests arriving afterwards are dropped.
func (d *Dispatcher) Close() {
	d.mu.Lock()
	if d.closed {
		d.mu.Unlock()
		return
	}
	d.closed = true
	d.mu.Unlock()

	d.cancel()
	d.wg.Wait()
}
