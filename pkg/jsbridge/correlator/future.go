package correlator

import (
	"context"
	"encoding/json"
	"sync"
)

// Future is the single-resolution result of a call. It settles exactly once,
// with either a result or an error.
type Future struct {
	id        uint64
	eventType string

	once   sync.Once
	done   chan struct{}
	result json.RawMessage
	err    error
}

func newFuture(eventType string) *Future {
	return &Future{
		eventType: eventType,
		done:      make(chan struct{}),
	}
}

// ID returns the correlation id, or zero if the call failed before one was
// allocated.
func (f *Future) ID() uint64 {
	return f.id
}

// Type returns the requested operation type.
func (f *Future) Type() string {
	return f.eventType
}

// Done is closed once the future has settled.
func (f *Future) Done() <-chan struct{} {
	return f.done
}

// Settled reports whether the future has settled.
func (f *Future) Settled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Result blocks until the future settles and returns its outcome.
func (f *Future) Result() (json.RawMessage, error) {
	<-f.done
	return f.result, f.err
}

// Wait is like Result but gives up when ctx is done. Giving up does not
// settle the future.
func (f *Future) Wait(ctx context.Context) (json.RawMessage, error) {
	select {
	case <-f.done:
		return f.result, f.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (f *Future) settle(result json.RawMessage, err error) bool {
	settled := false
	f.once.Do(func() {
		f.result = result
		f.err = err
		close(f.done)
		settled = true
	})
	return settled
}
