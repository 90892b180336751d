package correlator

import (
	"context"
	"time"

	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// Call outcomes used as the "outcome" label.
const (
	OutcomeOK          = "ok"
	OutcomeRemoteError = "remote_error"
	OutcomeTimeout     = "timeout"
	OutcomeUnavailable = "unavailable"
	OutcomeClosed      = "closed"
	OutcomeSendError   = "send_error"
	OutcomeCancelled   = "cancelled"
	OutcomeInvalid     = "invalid"
)

// CorrelatorMetrics holds the instruments recorded by a Correlator. A nil
// *CorrelatorMetrics records nothing.
type CorrelatorMetrics struct {
	callsTotal     o11y.Counter
	callDuration   o11y.Histogram
	pendingCalls   o11y.Gauge
	lateResponses  o11y.Counter
	eventsEmitted  o11y.Counter
	eventsReceived o11y.Counter
}

// NewCorrelatorMetrics creates the correlator instruments, or returns nil if
// provider is nil.
func NewCorrelatorMetrics(provider o11y.MetricsProvider) *CorrelatorMetrics {
	if provider == nil {
		return nil
	}

	return &CorrelatorMetrics{
		callsTotal:     provider.Counter("bridge_calls_total"),
		callDuration:   provider.Histogram("bridge_call_duration_seconds"),
		pendingCalls:   provider.Gauge("bridge_pending_calls"),
		lateResponses:  provider.Counter("bridge_late_responses_total"),
		eventsEmitted:  provider.Counter("bridge_events_emitted_total"),
		eventsReceived: provider.Counter("bridge_events_received_total"),
	}
}

func (m *CorrelatorMetrics) RecordSettled(ctx context.Context, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.callsTotal.Add(ctx, 1, o11y.L("outcome", outcome))
	if !started.IsZero() {
		m.callDuration.Record(ctx, o11y.Seconds(started), o11y.L("outcome", outcome))
	}
}

func (m *CorrelatorMetrics) RecordPending(ctx context.Context, count int) {
	if m == nil {
		return
	}
	m.pendingCalls.Set(ctx, float64(count))
}

func (m *CorrelatorMetrics) RecordLateResponse(ctx context.Context) {
	if m == nil {
		return
	}
	m.lateResponses.Add(ctx, 1)
}

func (m *CorrelatorMetrics) RecordEmit(ctx context.Context, status string) {
	if m == nil {
		return
	}
	m.eventsEmitted.Add(ctx, 1, o11y.L("status", status))
}

func (m *CorrelatorMetrics) RecordReceive(ctx context.Context, delivered bool) {
	if m == nil {
		return
	}
	status := "delivered"
	if !delivered {
		status = "dropped"
	}
	m.eventsReceived.Add(ctx, 1, o11y.L("status", status))
}
