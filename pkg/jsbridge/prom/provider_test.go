package prom

import (
	"context"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

func TestProviderRecords(t *testing.T) {
	p := NewProvider("jsbridge", zaptest.NewLogger(t))
	ctx := context.Background()

	calls := p.Counter("calls_total")
	calls.Add(ctx, 1, o11y.L("outcome", "ok"))
	calls.Add(ctx, 2, o11y.L("outcome", "ok"))
	calls.Add(ctx, 1, o11y.L("outcome", "timeout"))

	p.Gauge("pending_calls").Set(ctx, 3)
	p.Histogram("call_duration_seconds").Record(ctx, 0.25, o11y.L("type", "echo"))

	assert.Equal(t, 2, seriesCount(t, p, "jsbridge_calls_total"))

	p.Counter("calls_total").Add(ctx, 1, o11y.L("outcome", "ok"))

	body := httptest.NewRecorder()
	p.Handler().ServeHTTP(body, httptest.NewRequest("GET", "/metrics", nil))
	assert.Contains(t, body.Body.String(), `jsbridge_calls_total{outcome="ok"} 4`)
	assert.Contains(t, body.Body.String(), `jsbridge_pending_calls 3`)
	assert.Contains(t, body.Body.String(), `jsbridge_call_duration_seconds_count{type="echo"} 1`)
}

func TestProviderDropsMismatchedLabels(t *testing.T) {
	p := NewProvider("jsbridge", zaptest.NewLogger(t))
	ctx := context.Background()

	c := p.Counter("events_total")
	c.Add(ctx, 1, o11y.L("type", "click"))
	c.Add(ctx, 1, o11y.L("other", "x"))

	assert.Equal(t, 1, seriesCount(t, p, "jsbridge_events_total"))
}

func seriesCount(t *testing.T, p *Provider, name string) int {
	t.Helper()

	families, err := p.Gatherer().Gather()
	require.NoError(t, err)

	for _, family := range families {
		if family.GetName() == name {
			return len(family.GetMetric())
		}
	}
	return 0
}
