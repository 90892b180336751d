// Package bustest provides a recording Subscriber for tests.
package bustest

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
)

// Event is one recorded delivery.
type Event struct {
	Type   string
	Data   any
	Fields map[string]string
}

// Recorder implements bus.Subscriber and remembers everything it sees.
type Recorder struct {
	bus.BaseSubscriber

	mu              sync.RWMutex
	subscriptions   []string
	unsubscriptions []string
	events          []Event
	notify          chan struct{}
	fail            bool
}

func NewRecorder() *Recorder {
	return &Recorder{
		notify: make(chan struct{}, 1000),
	}
}

// FailEvents makes OnEvent return an error after recording.
func (r *Recorder) FailEvents(fail bool) {
	r.mu.Lock()
	r.fail = fail
	r.mu.Unlock()
}

func (r *Recorder) OnSubscribe(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.subscriptions = append(r.subscriptions, pattern)
	return nil
}

func (r *Recorder) OnUnsubscribe(ctx context.Context, pattern string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.unsubscriptions = append(r.unsubscriptions, pattern)
	return nil
}

func (r *Recorder) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	r.mu.Lock()
	r.events = append(r.events, Event{Type: eventType, Data: data, Fields: fields})
	fail := r.fail
	r.mu.Unlock()

	select {
	case r.notify <- struct{}{}:
	default:
	}

	if fail {
		return fmt.Errorf("simulated error")
	}
	return nil
}

func (r *Recorder) Subscriptions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.subscriptions...)
}

func (r *Recorder) Unsubscriptions() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.unsubscriptions...)
}

func (r *Recorder) Events() []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]Event(nil), r.events...)
}

// WaitForEvents blocks until at least n events were recorded or timeout
// elapses, and returns what was recorded.
func (r *Recorder) WaitForEvents(n int, timeout time.Duration) []Event {
	deadline := time.After(timeout)
	for {
		events := r.Events()
		if len(events) >= n {
			return events
		}
		select {
		case <-r.notify:
		case <-deadline:
			return r.Events()
		}
	}
}
