package config

import (
	"context"
	_ "embed"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/tsarna/jsbridge/pkg/jsbridge/content"
	"github.com/tsarna/jsbridge/pkg/jsbridge/websockets/client"
)

//go:embed testdata/server.jsb
var serverConfig []byte

func connectPage(t *testing.T, url string) *content.Page {
	t.Helper()
	logger := zaptest.NewLogger(t)

	wsClient, err := client.NewClient().
		WithURL(url).
		WithLogger(logger).
		Build()
	require.NoError(t, err)

	page, err := content.NewPage().
		WithSender(wsClient).
		WithTimeout(2 * time.Second).
		WithLogger(logger).
		Build()
	require.NoError(t, err)
	t.Cleanup(page.Close)

	wsClient.SetExecutor(page)
	require.NoError(t, wsClient.Connect(context.Background()))
	t.Cleanup(func() { wsClient.Disconnect() })

	return page
}

func TestWebsocketServer(t *testing.T) {
	config := buildConfig(t, serverConfig)

	require.Contains(t, config.Servers, "main")
	assert.NotContains(t, config.Servers, "spare")

	srv := config.Servers["main"]
	assert.Nil(t, srv.Addr())
	require.NoError(t, config.Start())
	require.NotNil(t, srv.Addr())

	page := connectPage(t, "ws://"+srv.Addr().String()+"/bridge")
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	v, err := page.Await(ctx, `JSBridge.call("greet", {name: "bo"})`)
	require.NoError(t, err)
	assert.Equal(t, "hello bo", v)

	_, err = page.Eval(ctx, `
		var pongs = [];
		JSBridge.onMessage = function (type, data) { pongs.push(type + ":" + data.n); };
	`)
	require.NoError(t, err)

	v, err = page.Await(ctx, `JSBridge.call("ping", {n: 4})`)
	require.NoError(t, err)
	assert.Equal(t, int64(1), v)

	require.Eventually(t, func() bool {
		v, err := page.Eval(context.Background(), `pongs.join(",")`)
		return err == nil && v == "pong:4"
	}, timeout, interval)

	resp, err := http.Get("http://" + srv.Addr().String() + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "jsbridge_")
}
