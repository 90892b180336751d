// Package correlator implements the calling side of the bridge: it issues
// correlation ids, tracks pending calls, applies timeouts and settles every
// call exactly once. It also owns the single-slot event channel through
// which the other side pushes id-less notifications.
package correlator

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/envelope"
)

// Correlator tracks the calls issued from one context. Its pending table is
// instance scoped: it is created by Build and cleared by Close.
type Correlator struct {
	name    string
	timeout time.Duration
	logger  *zap.Logger
	metrics *CorrelatorMetrics

	nextID atomic.Uint64

	mu      sync.Mutex
	sender  jsbridge.Sender
	pending map[uint64]*pendingCall
	closed  bool

	subscriberMu sync.RWMutex
	subscriber   MessageFunc
}

type pendingCall struct {
	future  *Future
	started time.Time
	timer   *time.Timer
}

// Name identifies the correlator in logs.
func (c *Correlator) Name() string {
	return c.name
}

// Timeout returns the per-call timeout.
func (c *Correlator) Timeout() time.Duration {
	return c.timeout
}

// SetSender attaches or, with nil, detaches the Outbound primitive. Pending
// calls are not affected.
func (c *Correlator) SetSender(sender jsbridge.Sender) {
	c.mu.Lock()
	c.sender = sender
	c.mu.Unlock()
}

// IsConnected reports whether the Outbound primitive is currently reachable.
func (c *Correlator) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return !c.closed && jsbridge.IsConnected(c.sender)
}

// Pending returns the number of outstanding calls.
func (c *Correlator) Pending() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	return len(c.pending)
}

// Go issues a call and returns immediately. The returned future settles with
// the response data, a *jsbridge.RemoteError, jsbridge.ErrCallTimeout,
// jsbridge.ErrTransportUnavailable or jsbridge.ErrClosed.
//
// When the transport is unavailable the future is already settled, no id
// has been allocated and nothing was sent.
func (c *Correlator) Go(eventType string, data any) *Future {
	ctx := context.Background()
	future := newFuture(eventType)

	if eventType == "" {
		future.settle(nil, errors.New("call type must not be empty"))
		c.metrics.RecordSettled(ctx, OutcomeInvalid, time.Time{})
		return future
	}

	payload, err := envelope.Marshal(data)
	if err != nil {
		future.settle(nil, err)
		c.metrics.RecordSettled(ctx, OutcomeInvalid, time.Time{})
		return future
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		future.settle(nil, jsbridge.ErrClosed)
		c.metrics.RecordSettled(ctx, OutcomeClosed, time.Time{})
		return future
	}

	sender := c.sender
	if !jsbridge.IsConnected(sender) {
		c.mu.Unlock()
		c.logger.Debug("Call without transport", zap.String("type", eventType))
		future.settle(nil, jsbridge.ErrTransportUnavailable)
		c.metrics.RecordSettled(ctx, OutcomeUnavailable, time.Time{})
		return future
	}

	id := c.nextID.Add(1)
	future.id = id

	call := &pendingCall{
		future:  future,
		started: time.Now(),
	}
	c.pending[id] = call
	call.timer = time.AfterFunc(c.timeout, func() {
		c.expire(id)
	})
	pendingCount := len(c.pending)
	c.mu.Unlock()

	c.metrics.RecordPending(ctx, pendingCount)

	// Cannot fail: the type is non-empty and the payload is valid JSON.
	text, _ := envelope.Encode(envelope.Envelope{ID: id, Type: eventType, Data: payload})

	c.logger.Debug("Sending call", zap.Uint64("id", id), zap.String("type", eventType))

	if err := sender.Send(text); err != nil {
		outcome := OutcomeSendError
		if errors.Is(err, jsbridge.ErrTransportUnavailable) {
			outcome = OutcomeUnavailable
		}
		c.logger.Warn("Failed to send call", zap.Uint64("id", id), zap.String("type", eventType), zap.Error(err))
		c.settle(id, nil, err, outcome)
	}

	return future
}

// Call issues a call and blocks until it settles or ctx is done. When ctx
// ends first the pending call is removed and ctx's error returned; a response
// arriving afterwards is discarded.
func (c *Correlator) Call(ctx context.Context, eventType string, data any) (json.RawMessage, error) {
	future := c.Go(eventType, data)

	select {
	case <-future.Done():
	case <-ctx.Done():
		c.settle(future.ID(), nil, ctx.Err(), OutcomeCancelled)
	}

	return future.Result()
}

// CallAs issues a call and decodes the response into T.
func CallAs[T any](ctx context.Context, c *Correlator, eventType string, data any) (T, error) {
	var result T

	raw, err := c.Call(ctx, eventType, data)
	if err != nil {
		return result, err
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

// Resolve settles pending call id. It is the Go side of _callback(id, error,
// result): a non-nil errMsg rejects the call with a *jsbridge.RemoteError,
// otherwise the call resolves with result. Responses for ids that are not
// pending (already settled, timed out, or never issued) are ignored and
// Resolve returns false.
func (c *Correlator) Resolve(id uint64, errMsg *string, result json.RawMessage) bool {
	if errMsg != nil {
		return c.settle(id, nil, &jsbridge.RemoteError{Message: *errMsg}, OutcomeRemoteError)
	}
	return c.settle(id, result, nil, OutcomeOK)
}

// Emit sends an id-less event. It never fails the caller: without a
// transport the event is dropped, and send failures are only logged.
func (c *Correlator) Emit(eventType string, data any) {
	ctx := context.Background()

	c.mu.Lock()
	sender := c.sender
	available := !c.closed && jsbridge.IsConnected(sender)
	c.mu.Unlock()

	if !available {
		c.logger.Debug("Dropping event without transport", zap.String("type", eventType))
		c.metrics.RecordEmit(ctx, "dropped")
		return
	}

	env, err := envelope.New(0, eventType, data)
	if err == nil {
		var text string
		text, err = envelope.Encode(env)
		if err == nil {
			err = sender.Send(text)
		}
	}

	if err != nil {
		c.logger.Warn("Failed to emit event", zap.String("type", eventType), zap.Error(err))
		c.metrics.RecordEmit(ctx, "error")
		return
	}

	c.metrics.RecordEmit(ctx, "sent")
}

// Close rejects every outstanding call with jsbridge.ErrClosed and clears the
// pending table. Later calls fail with jsbridge.ErrClosed.
func (c *Correlator) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	calls := c.pending
	c.pending = make(map[uint64]*pendingCall)
	c.mu.Unlock()

	ctx := context.Background()
	for _, call := range calls {
		call.timer.Stop()
		if call.future.settle(nil, jsbridge.ErrClosed) {
			c.metrics.RecordSettled(ctx, OutcomeClosed, call.started)
		}
	}
	c.metrics.RecordPending(ctx, 0)

	if len(calls) > 0 {
		c.logger.Debug("Rejected pending calls on close", zap.Int("count", len(calls)))
	}
}

func (c *Correlator) expire(id uint64) {
	if c.settle(id, nil, jsbridge.ErrCallTimeout, OutcomeTimeout) {
		c.logger.Debug("Call timed out", zap.Uint64("id", id), zap.Duration("timeout", c.timeout))
	}
}

// settle removes the pending entry for id and then settles its future.
// Whoever removes the entry settles; everybody else is a no-op.
func (c *Correlator) settle(id uint64, result json.RawMessage, err error, outcome string) bool {
	ctx := context.Background()

	c.mu.Lock()
	call, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	pendingCount := len(c.pending)
	c.mu.Unlock()

	if !ok {
		if outcome == OutcomeOK || outcome == OutcomeRemoteError {
			c.logger.Debug("Ignoring response for unknown call", zap.Uint64("id", id))
			c.metrics.RecordLateResponse(ctx)
		}
		return false
	}

	call.timer.Stop()
	call.future.settle(result, err)

	c.metrics.RecordPending(ctx, pendingCount)
	c.metrics.RecordSettled(ctx, outcome, call.started)

	return true
}
