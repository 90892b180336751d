package config

import (
	"context"
	_ "embed"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

//go:embed testdata/handlers.jsb
var handlersConfig []byte

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644))
}

func buildConfig(t *testing.T, sources ...any) *Config {
	t.Helper()

	config, diags := NewConfig().WithSources(sources...).WithLogger(zaptest.NewLogger(t)).Build()
	require.False(t, diags.HasErrors(), "%v", diags)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		assert.NoError(t, config.Stop(ctx))
	})
	return config
}

func callHandler(t *testing.T, config *Config, eventType, payload string) (any, error) {
	t.Helper()

	handler, ok := config.Registry.Lookup(eventType)
	require.True(t, ok, "no handler for %s", eventType)

	var data json.RawMessage
	if payload != "" {
		data = json.RawMessage(payload)
	}
	return handler(context.Background(), data)
}

func TestHandlers(t *testing.T) {
	config := buildConfig(t, handlersConfig)

	assert.Equal(t, "Host", config.Bridge.Global)
	assert.Equal(t, 10*time.Second, config.Bridge.Timeout)
	assert.ElementsMatch(t,
		[]string{"echo", "greet", "sum", "whoami", "denied", "checked", "blank", "slow"},
		config.Registry.Types())

	t.Run("result echoes data", func(t *testing.T) {
		result, err := callHandler(t, config, "echo", `{"x": [1, 2], "ok": true}`)
		require.NoError(t, err)

		encoded, err := json.Marshal(result)
		require.NoError(t, err)
		assert.JSONEq(t, `{"x": [1, 2], "ok": true}`, string(encoded))
	})

	t.Run("result with no payload", func(t *testing.T) {
		result, err := callHandler(t, config, "echo", "")
		require.NoError(t, err)
		assert.Nil(t, result)
	})

	t.Run("result uses constants", func(t *testing.T) {
		result, err := callHandler(t, config, "greet", `{"name": "ann"}`)
		require.NoError(t, err)
		assert.Equal(t, "hello ann", result)
	})

	t.Run("result missing attribute", func(t *testing.T) {
		_, err := callHandler(t, config, "greet", `{}`)
		assert.Error(t, err)
	})

	t.Run("jq", func(t *testing.T) {
		result, err := callHandler(t, config, "sum", `{"a": 2, "b": 3}`)
		require.NoError(t, err)
		assert.Equal(t, float64(5), result)
	})

	t.Run("jq sees the type", func(t *testing.T) {
		result, err := callHandler(t, config, "whoami", "")
		require.NoError(t, err)
		assert.Equal(t, "whoami", result)
	})

	t.Run("jq function with null input", func(t *testing.T) {
		result, err := callHandler(t, config, "blank", "")
		require.NoError(t, err)
		assert.Equal(t, true, result)
	})

	t.Run("jq invalid payload", func(t *testing.T) {
		_, err := callHandler(t, config, "sum", `{"a":`)
		assert.Error(t, err)
	})

	t.Run("error", func(t *testing.T) {
		_, err := callHandler(t, config, "denied", "")
		assert.EqualError(t, err, "denied is not allowed")
	})

	t.Run("error function", func(t *testing.T) {
		_, err := callHandler(t, config, "checked", "")
		assert.EqualError(t, err, "bad input")
	})

	t.Run("delay", func(t *testing.T) {
		start := time.Now()
		result, err := callHandler(t, config, "slow", "")
		require.NoError(t, err)
		assert.Equal(t, "done", result)
		assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)
	})

	t.Run("delay cancelled", func(t *testing.T) {
		handler, ok := config.Registry.Lookup("slow")
		require.True(t, ok)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := handler(ctx, nil)
		assert.ErrorIs(t, err, context.Canceled)
	})
}
