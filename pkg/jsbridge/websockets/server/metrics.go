package server

import (
	"context"
	"time"

	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

// ListenerMetrics holds the instruments recorded by a Listener and its
// connections. A nil *ListenerMetrics records nothing.
type ListenerMetrics struct {
	activeConnections  o11y.Gauge
	totalConnections   o11y.Counter
	connectionDuration o11y.Histogram
	connectionErrors   o11y.Counter

	framesReceived o11y.Counter
	framesSent     o11y.Counter
	framesDropped  o11y.Counter
	frameSize      o11y.Histogram

	pingsSent    o11y.Counter
	pingFailures o11y.Counter
}

func NewListenerMetrics(provider o11y.MetricsProvider) *ListenerMetrics {
	if provider == nil {
		return nil
	}

	return &ListenerMetrics{
		activeConnections:  provider.Gauge("websocket_active_connections"),
		totalConnections:   provider.Counter("websocket_connections_total"),
		connectionDuration: provider.Histogram("websocket_connection_duration_seconds"),
		connectionErrors:   provider.Counter("websocket_connection_errors_total"),

		framesReceived: provider.Counter("websocket_frames_received_total"),
		framesSent:     provider.Counter("websocket_frames_sent_total"),
		framesDropped:  provider.Counter("websocket_frames_dropped_total"),
		frameSize:      provider.Histogram("websocket_frame_size_bytes"),

		pingsSent:    provider.Counter("websocket_pings_sent_total"),
		pingFailures: provider.Counter("websocket_ping_failures_total"),
	}
}

func (m *ListenerMetrics) RecordConnectionStart(ctx context.Context, active int) {
	if m == nil {
		return
	}
	m.totalConnections.Add(ctx, 1)
	m.activeConnections.Set(ctx, float64(active))
}

func (m *ListenerMetrics) RecordConnectionEnd(ctx context.Context, active int, duration time.Duration) {
	if m == nil {
		return
	}
	m.activeConnections.Set(ctx, float64(active))
	m.connectionDuration.Record(ctx, duration.Seconds())
}

// RecordConnectionError records connection-level errors (upgrade failures, etc.).
func (m *ListenerMetrics) RecordConnectionError(ctx context.Context, errorType string) {
	if m == nil {
		return
	}
	m.connectionErrors.Add(ctx, 1, o11y.L("error_type", errorType))
}

func (m *ListenerMetrics) RecordFrameReceived(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.framesReceived.Add(ctx, 1)
	m.frameSize.Record(ctx, float64(size), o11y.L("direction", "received"))
}

func (m *ListenerMetrics) RecordFrameSent(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.framesSent.Add(ctx, 1)
	m.frameSize.Record(ctx, float64(size), o11y.L("direction", "sent"))
}

func (m *ListenerMetrics) RecordFrameDropped(ctx context.Context, reason string) {
	if m == nil {
		return
	}
	m.framesDropped.Add(ctx, 1, o11y.L("reason", reason))
}

func (m *ListenerMetrics) RecordPing(ctx context.Context, err error) {
	if m == nil {
		return
	}
	m.pingsSent.Add(ctx, 1)
	if err != nil {
		m.pingFailures.Add(ctx, 1)
	}
}
