package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
)

//go:embed testdata/observe.jsb
var observeConfig []byte

//go:embed testdata/cron.jsb
var cronConfig []byte

const (
	timeout  = 3 * time.Second
	interval = 10 * time.Millisecond
)

type observedEvent struct {
	eventType string
	data      any
}

type recordingSubscriber struct {
	bus.BaseSubscriber

	mu     sync.Mutex
	events []observedEvent
}

func (r *recordingSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, observedEvent{eventType: eventType, data: data})
	return nil
}

func (r *recordingSubscriber) find(eventType string) (observedEvent, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, event := range r.events {
		if event.eventType == eventType {
			return event, true
		}
	}
	return observedEvent{}, false
}

func (r *recordingSubscriber) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func record(t *testing.T, config *Config, pattern string) *recordingSubscriber {
	t.Helper()
	recorder := &recordingSubscriber{}
	require.NoError(t, config.Bus.Subscribe(context.Background(), recorder, pattern))
	return recorder
}

func requireJSON(t *testing.T, expected string, data any) {
	t.Helper()
	encoded, err := json.Marshal(data)
	require.NoError(t, err)
	assert.JSONEq(t, expected, string(encoded))
}

func TestSubscriptions(t *testing.T) {
	config := buildConfig(t, observeConfig)
	seen := record(t, config, "seen/#")
	ctx := context.Background()

	require.NoError(t, config.Bus.Publish(ctx, "ui/click", map[string]any{"x": 1.0}))
	require.NoError(t, config.Bus.Publish(ctx, "metrics/cpu", map[string]any{"v": 3.0}))
	require.NoError(t, config.Bus.Publish(ctx, "metrics/ignored", map[string]any{"v": 4.0}))

	require.Eventually(t, func() bool {
		_, click := seen.find("seen/click")
		_, shaped := seen.find("seen/shaped")
		return click && shaped
	}, timeout, interval)

	click, _ := seen.find("seen/click")
	requireJSON(t, `{"x": 1}`, click.data)

	shaped, _ := seen.find("seen/shaped")
	requireJSON(t, `{"value": 3, "kind": "metrics/cpu"}`, shaped.data)

	// metrics/ignored is dropped after the jq transform.
	assert.Never(t, func() bool { return seen.count() > 2 }, 100*time.Millisecond, interval)
}

func TestPublishFunction(t *testing.T) {
	config := buildConfig(t, []byte(`
handler "announce" {
  result = publish(ctx, "announced", ctx.data)
}
`))
	announced := record(t, config, "announced")

	result, err := callHandler(t, config, "announce", `{"who": "me"}`)
	require.NoError(t, err)
	assert.Equal(t, true, result)

	require.Eventually(t, func() bool {
		_, ok := announced.find("announced")
		return ok
	}, timeout, interval)

	event, _ := announced.find("announced")
	requireJSON(t, `{"who": "me"}`, event.data)
}

func TestPublishNullPayload(t *testing.T) {
	config := buildConfig(t, []byte(`
handler "ping" {
  result = publish(ctx, "pinged", null)
}
`))
	pinged := record(t, config, "pinged")

	result, err := callHandler(t, config, "ping", "")
	require.NoError(t, err)
	assert.Equal(t, true, result)

	require.Eventually(t, func() bool {
		_, ok := pinged.find("pinged")
		return ok
	}, timeout, interval)

	event, _ := pinged.find("pinged")
	assert.Nil(t, event.data)
}

func TestPushFunctionWithoutServers(t *testing.T) {
	config := buildConfig(t, []byte(`
handler "notify" {
  result = push(null, "note", "hi")
}
`))

	result, err := callHandler(t, config, "notify", "")
	require.NoError(t, err)
	assert.Equal(t, int64(0), result)
}

func TestCron(t *testing.T) {
	config := buildConfig(t, cronConfig)
	require.Contains(t, config.Crons, "ticker")

	ticks := record(t, config, "cron/#")
	require.NoError(t, config.Start())

	require.Eventually(t, func() bool {
		_, ok := ticks.find("cron/ticker/tick")
		return ok
	}, timeout, interval)
}
