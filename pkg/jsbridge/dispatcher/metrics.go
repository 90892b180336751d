package dispatcher

import (
	"context"
	"time"

	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// Request outcomes used as the "outcome" label.
const (
	OutcomeOK        = "ok"
	OutcomeError     = "error"
	OutcomeUnhandled = "unhandled"
	OutcomeDuplicate = "duplicate"
	OutcomeSendError = "send_error"
)

// DispatcherMetrics holds the instruments recorded by a Dispatcher. A nil
// *DispatcherMetrics records nothing.
type DispatcherMetrics struct {
	requestsTotal   o11y.Counter
	handlerDuration o11y.Histogram
	eventsObserved  o11y.Counter
	decodeErrors    o11y.Counter
	pushesTotal     o11y.Counter
}

func NewDispatcherMetrics(provider o11y.MetricsProvider) *DispatcherMetrics {
	if provider == nil {
		return nil
	}

	return &DispatcherMetrics{
		requestsTotal:   provider.Counter("bridge_requests_total"),
		handlerDuration: provider.Histogram("bridge_handler_duration_seconds"),
		eventsObserved:  provider.Counter("bridge_events_observed_total"),
		decodeErrors:    provider.Counter("bridge_decode_errors_total"),
		pushesTotal:     provider.Counter("bridge_pushes_total"),
	}
}

func (m *DispatcherMetrics) RecordRequest(ctx context.Context, eventType, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.requestsTotal.Add(ctx, 1, o11y.L("outcome", outcome), o11y.L("type", eventType))
	if !started.IsZero() {
		m.handlerDuration.Record(ctx, o11y.Seconds(started), o11y.L("type", eventType))
	}
}

func (m *DispatcherMetrics) RecordEvent(ctx context.Context, delivered bool) {
	if m == nil {
		return
	}
	status := "published"
	if !delivered {
		status = "dropped"
	}
	m.eventsObserved.Add(ctx, 1, o11y.L("status", status))
}

func (m *DispatcherMetrics) RecordDecodeError(ctx context.Context) {
	if m == nil {
		return
	}
	m.decodeErrors.Add(ctx, 1)
}

func (m *DispatcherMetrics) RecordPush(ctx context.Context, ok bool) {
	if m == nil {
		return
	}
	status := "sent"
	if !ok {
		status = "error"
	}
	m.pushesTotal.Add(ctx, 1, o11y.L("status", status))
}
