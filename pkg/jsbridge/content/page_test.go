package content

import (
	"context"
	"errors"
	"strconv"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/envelope"
)

type fakeSender struct {
	texts        chan string
	disconnected atomic.Bool
}

func newFakeSender() *fakeSender {
	return &fakeSender{texts: make(chan string, 100)}
}

func (f *fakeSender) Send(text string) error {
	if f.disconnected.Load() {
		return jsbridge.ErrTransportUnavailable
	}
	f.texts <- text
	return nil
}

func (f *fakeSender) Connected() bool {
	return !f.disconnected.Load()
}

func (f *fakeSender) next(t *testing.T) envelope.Envelope {
	t.Helper()
	select {
	case text := <-f.texts:
		env, err := envelope.Decode(text)
		require.NoError(t, err)
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message")
		return envelope.Envelope{}
	}
}

func newTestPage(t *testing.T, b *PageBuilder) *Page {
	t.Helper()
	page, err := b.WithLogger(zaptest.NewLogger(t)).Build()
	require.NoError(t, err)
	t.Cleanup(page.Close)
	return page
}

func eval(t *testing.T, page *Page, source string) any {
	t.Helper()
	v, err := page.Eval(context.Background(), source)
	require.NoError(t, err)
	return v
}

// awaitAsync runs Await on its own goroutine so the test can answer calls.
func awaitAsync(page *Page, source string) <-chan settlement {
	ch := make(chan settlement, 1)
	go func() {
		v, err := page.Await(context.Background(), source)
		ch <- settlement{value: v, err: err}
	}()
	return ch
}

func waitSettled(t *testing.T, ch <-chan settlement) settlement {
	t.Helper()
	select {
	case s := <-ch:
		return s
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for promise")
		return settlement{}
	}
}

func respond(t *testing.T, page *Page, id uint64, errMsg *string, result string) {
	t.Helper()
	script, err := envelope.CallbackScript(jsbridge.GlobalName, id, errMsg, []byte(result))
	require.NoError(t, err)
	require.NoError(t, page.Execute(script))
}

func TestPageBuilder(t *testing.T) {
	_, err := NewPage().WithTimeout(0).Build()
	assert.Error(t, err)

	_, err = NewPage().WithGlobal("").Build()
	assert.Error(t, err)

	_, err = NewPage().WithJobQueueSize(0).Build()
	assert.Error(t, err)

	page := newTestPage(t, NewPage().WithName("p1"))
	assert.Equal(t, "p1", page.Name())
	assert.NotNil(t, page.Bridge())
}

func TestPage_InstallAfterLoad(t *testing.T) {
	page := newTestPage(t, NewPage().WithInstallAfterLoad(true))

	assert.Equal(t, "undefined", eval(t, page, `typeof window.JSBridge`))
	select {
	case <-page.Ready():
		t.Fatal("ready before install")
	default:
	}

	require.NoError(t, page.Load(context.Background(), `
		var readyCount = 0;
		var readyType = null;
		window.addEventListener("JSBridgeReady", function (e) {
			readyCount++;
			readyType = e.type;
			window.inAppAtReady = JSBridge.isInApp();
		});
	`))

	assert.Equal(t, "object", eval(t, page, `typeof window.JSBridge`))
	assert.Equal(t, int64(1), eval(t, page, `readyCount`))
	assert.Equal(t, "JSBridgeReady", eval(t, page, `readyType`))
	assert.Equal(t, false, eval(t, page, `inAppAtReady`))

	select {
	case <-page.Ready():
	default:
		t.Fatal("ready not signalled")
	}

	// Re-injection is a no-op and does not signal again.
	require.NoError(t, page.Install(context.Background()))
	require.NoError(t, page.Load(context.Background(), `window.JSBridge.marker = 7;`))
	require.NoError(t, page.Install(context.Background()))
	assert.Equal(t, int64(1), eval(t, page, `readyCount`))
	assert.Equal(t, int64(7), eval(t, page, `JSBridge.marker`))
}

func TestPage_InstallsBeforePageScript(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender).WithGlobal("Native"))

	select {
	case <-page.Ready():
	default:
		t.Fatal("ready not signalled")
	}
	assert.Equal(t, "function", eval(t, page, `typeof Native.call`))
	assert.Equal(t, "undefined", eval(t, page, `typeof JSBridge`))

	// Top-level page script can use the bridge straight away.
	require.NoError(t, page.Load(context.Background(), `
		var answer = null;
		Native.call("boot", {n: 1}).then(function (r) { answer = r; });
	`))

	env := sender.next(t)
	assert.Equal(t, "boot", env.Type)
	assert.JSONEq(t, `{"n":1}`, string(env.Data))

	script, err := envelope.CallbackScript("Native", env.ID, nil, []byte(`"up"`))
	require.NoError(t, err)
	require.NoError(t, page.Execute(script))

	require.Eventually(t, func() bool {
		v, err := page.Eval(context.Background(), `answer`)
		return err == nil && v == "up"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPage_ExistingGlobalSkipsInstall(t *testing.T) {
	page := newTestPage(t, NewPage().WithInstallAfterLoad(true))

	require.NoError(t, page.Load(context.Background(), `window.JSBridge = { custom: true };`))
	assert.Equal(t, true, eval(t, page, `JSBridge.custom`))
	assert.Equal(t, "undefined", eval(t, page, `typeof JSBridge.call`))
}

func TestPage_CallResolves(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender))

	result := awaitAsync(page, `JSBridge.call("echo", {x: 1, s: "a\"b"})`)

	env := sender.next(t)
	assert.Equal(t, "echo", env.Type)
	assert.True(t, env.HasID())
	assert.JSONEq(t, `{"x":1,"s":"a\"b"}`, string(env.Data))

	respond(t, page, env.ID, nil, string(env.Data))

	s := waitSettled(t, result)
	require.NoError(t, s.err)
	assert.Equal(t, map[string]any{"x": int64(1), "s": `a"b`}, s.value)
	assert.Equal(t, 0, page.Bridge().Pending())
}

func TestPage_CallWithoutData(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender))

	result := awaitAsync(page, `JSBridge.call("deviceInfo")`)
	env := sender.next(t)
	assert.Nil(t, env.Data)

	respond(t, page, env.ID, nil, `{"platform":"goja"}`)
	s := waitSettled(t, result)
	require.NoError(t, s.err)
	assert.Equal(t, map[string]any{"platform": "goja"}, s.value)
}

func TestPage_CallRejectsWithRemoteError(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender))

	result := awaitAsync(page, `JSBridge.call("boom")`)
	env := sender.next(t)
	msg := "bad input"
	respond(t, page, env.ID, &msg, "")

	s := waitSettled(t, result)
	require.Error(t, s.err)
	remote, ok := jsbridge.IsRemoteError(s.err)
	require.True(t, ok)
	assert.Equal(t, "bad input", remote)

	var scriptErr *ScriptError
	require.ErrorAs(t, s.err, &scriptErr)
	assert.Equal(t, ErrorNameRemote, scriptErr.Name)

	// Seen from the page, the rejection is an Error carrying only the message.
	result = awaitAsync(page, `JSBridge.call("boom").catch(function (e) {
		return [e instanceof Error, e.name, e.message].join("|");
	})`)
	env = sender.next(t)
	respond(t, page, env.ID, &msg, "")
	s = waitSettled(t, result)
	require.NoError(t, s.err)
	assert.Equal(t, "true|RemoteError|bad input", s.value)
}

func TestPage_CallWithoutTransport(t *testing.T) {
	page := newTestPage(t, NewPage())

	assert.Equal(t, false, eval(t, page, `JSBridge.isInApp()`))
	assert.Equal(t, "undefined", eval(t, page, `typeof window.ReactNativeWebView`))

	s := waitSettled(t, awaitAsync(page, `JSBridge.call("echo", 1)`))
	assert.ErrorIs(t, s.err, jsbridge.ErrTransportUnavailable)

	// emit without transport is silently dropped
	assert.Nil(t, eval(t, page, `JSBridge.emit("clicked", {})`))
}

func TestPage_Disconnected(t *testing.T) {
	sender := newFakeSender()
	sender.disconnected.Store(true)
	page := newTestPage(t, NewPage().WithSender(sender))

	assert.Equal(t, false, eval(t, page, `JSBridge.isInApp()`))
	s := waitSettled(t, awaitAsync(page, `JSBridge.call("echo")`))
	assert.ErrorIs(t, s.err, jsbridge.ErrTransportUnavailable)

	sender.disconnected.Store(false)
	assert.Equal(t, true, eval(t, page, `JSBridge.isInApp()`))
}

func TestPage_CallTimeout(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().
		WithSender(sender).
		WithTimeout(50*time.Millisecond))

	result := awaitAsync(page, `JSBridge.call("nope")`)
	env := sender.next(t)

	s := waitSettled(t, result)
	assert.ErrorIs(t, s.err, jsbridge.ErrCallTimeout)

	// A late response is discarded.
	respond(t, page, env.ID, nil, `"late"`)
	assert.Equal(t, int64(2), eval(t, page, `1 + 1`))
	assert.Equal(t, 0, page.Bridge().Pending())
}

func TestPage_ConcurrentCallsAnsweredOutOfOrder(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender))

	result := awaitAsync(page, `Promise.all([JSBridge.call("a"), JSBridge.call("b")])`)
	first := sender.next(t)
	second := sender.next(t)
	require.Equal(t, "a", first.Type)
	require.Equal(t, "b", second.Type)
	assert.NotEqual(t, first.ID, second.ID)

	respond(t, page, second.ID, nil, `"B"`)
	respond(t, page, first.ID, nil, `"A"`)

	s := waitSettled(t, result)
	require.NoError(t, s.err)
	assert.Equal(t, []any{"A", "B"}, s.value)
}

func TestPage_Emit(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender))

	eval(t, page, `JSBridge.emit("clicked", {x: 3})`)

	select {
	case text := <-sender.texts:
		assert.Equal(t, `{"type":"clicked","data":{"x":3}}`, text)
	case <-time.After(time.Second):
		t.Fatal("no event sent")
	}
}

func TestPage_PostMessage(t *testing.T) {
	sender := newFakeSender()
	page := newTestPage(t, NewPage().WithSender(sender))

	eval(t, page, `window.ReactNativeWebView.postMessage("raw text")`)
	assert.Equal(t, "raw text", <-sender.texts)

	sender.disconnected.Store(true)
	_, err := page.Eval(context.Background(), `window.ReactNativeWebView.postMessage("x")`)
	assert.ErrorContains(t, err, "bridge transport unavailable")
}

func TestPage_SetSender(t *testing.T) {
	page := newTestPage(t, NewPage())
	assert.Equal(t, false, eval(t, page, `JSBridge.isInApp()`))

	sender := newFakeSender()
	require.NoError(t, page.SetSender(sender))
	assert.Equal(t, "object", eval(t, page, `typeof window.ReactNativeWebView`))
	assert.Equal(t, true, eval(t, page, `JSBridge.isInApp()`))

	require.NoError(t, page.SetSender(nil))
	assert.Equal(t, "undefined", eval(t, page, `typeof window.ReactNativeWebView`))
}

func TestPage_OnMessage(t *testing.T) {
	page := newTestPage(t, NewPage())

	receive := func(eventType, data string) {
		script, err := envelope.ReceiveScript(jsbridge.GlobalName, eventType, []byte(data))
		require.NoError(t, err)
		require.NoError(t, page.Execute(script))
	}

	// Nothing subscribed yet: dropped, never replayed.
	receive("early", `1`)

	eval(t, page, `
		var first = [];
		var second = [];
		JSBridge.onMessage = function (type, data) { first.push([type, data]); };
	`)
	assert.Equal(t, "function", eval(t, page, `typeof JSBridge.onMessage`))

	receive("tick", `{"n":1}`)
	assert.Equal(t, int64(1), eval(t, page, `first.length`))
	assert.Equal(t, "tick", eval(t, page, `first[0][0]`))
	assert.Equal(t, int64(1), eval(t, page, `first[0][1].n`))

	eval(t, page, `JSBridge.onMessage = function (type, data) { second.push(type); };`)
	receive("tock", `null`)
	assert.Equal(t, int64(1), eval(t, page, `first.length`))
	assert.Equal(t, []any{"tock"}, eval(t, page, `second`))

	eval(t, page, `JSBridge.onMessage = null;`)
	receive("gone", `null`)
	assert.Equal(t, int64(1), eval(t, page, `second.length`))
	assert.Nil(t, eval(t, page, `JSBridge.onMessage`))
}

func TestPage_InjectedPayloadsRoundTrip(t *testing.T) {
	page := newTestPage(t, NewPage())
	eval(t, page, `var got = []; JSBridge.onMessage = function (t, d) { got.push(d); };`)

	payloads := []string{
		`"quote \" and backslash \\"`,
		`"</script><script>alert(1)</script>"`,
		"\"line\u2028separator\u2029paragraph\"",
		"\"unicode \u2713 \U0001F680\"",
		`{"nested":{"a":[1,2,{"b":null}]}}`,
	}
	for _, payload := range payloads {
		script, err := envelope.ReceiveScript(jsbridge.GlobalName, "t", []byte(payload))
		require.NoError(t, err)
		require.NoError(t, page.Execute(script))
	}

	for i, payload := range payloads {
		got, err := page.Eval(context.Background(), "JSON.stringify(got["+strconv.Itoa(i)+"])")
		require.NoError(t, err)
		assert.JSONEq(t, payload, got.(string))
	}
}

func TestPage_SetTimeout(t *testing.T) {
	page := newTestPage(t, NewPage())

	s := waitSettled(t, awaitAsync(page, `new Promise(function (resolve) {
		setTimeout(function (a, b) { resolve(a + b); }, 10, 40, 2);
	})`))
	require.NoError(t, s.err)
	assert.Equal(t, int64(42), s.value)

	eval(t, page, `var fired = false; var id = setTimeout(function () { fired = true; }, 20); clearTimeout(id);`)
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, false, eval(t, page, `fired`))
}

func TestPage_EventListeners(t *testing.T) {
	page := newTestPage(t, NewPage())

	assert.Equal(t, int64(2), eval(t, page, `
		var count = 0;
		function onPing() { count++; }
		addEventListener("ping", onPing);
		addEventListener("ping", onPing);
		dispatchEvent(new Event("ping"));
		removeEventListener("ping", onPing);
		dispatchEvent(new Event("ping"));
		addEventListener("ping", function (e) { count += e.detail; });
		dispatchEvent(new CustomEvent("ping", {detail: 1}));
		count;
	`))
}

func TestPage_Console(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	page, err := NewPage().WithLogger(zap.New(core)).Build()
	require.NoError(t, err)
	defer page.Close()

	_, err = page.Eval(context.Background(), `console.log("hi", {a: 1}, 2); console.warn("careful")`)
	require.NoError(t, err)

	entries := logs.FilterField(zap.String("source", "console")).All()
	require.Len(t, entries, 2)
	assert.Equal(t, `hi {"a":1} 2`, entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "careful", entries[1].Message)
	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
}

func TestPage_LoadError(t *testing.T) {
	page := newTestPage(t, NewPage().WithInstallAfterLoad(true))

	err := page.Load(context.Background(), `throw new Error("broken page")`)
	assert.ErrorContains(t, err, "broken page")

	// The bridge is injected anyway.
	assert.Equal(t, "object", eval(t, page, `typeof JSBridge`))
}

func TestPage_EvalInterruptedByContext(t *testing.T) {
	page := newTestPage(t, NewPage())

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := page.Eval(ctx, `for (;;) {}`)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.Eventually(t, func() bool {
		v, err := page.Eval(context.Background(), `1 + 1`)
		return err == nil && v == int64(2)
	}, 2*time.Second, 10*time.Millisecond)
}

func TestPage_ExecuteErrorsAreLogged(t *testing.T) {
	page := newTestPage(t, NewPage())
	require.NoError(t, page.Execute(`throw new Error("ignored")`))
	assert.Equal(t, int64(3), eval(t, page, `1 + 2`))
}

func TestPage_Close(t *testing.T) {
	sender := newFakeSender()
	page, err := NewPage().WithSender(sender).Build()
	require.NoError(t, err)

	result := awaitAsync(page, `JSBridge.call("hang")`)
	sender.next(t)

	page.Close()
	page.Close()

	s := waitSettled(t, result)
	assert.True(t, errors.Is(s.err, jsbridge.ErrClosed))
	assert.ErrorIs(t, page.Execute(`1`), jsbridge.ErrClosed)
	_, err = page.Eval(context.Background(), `1`)
	assert.ErrorIs(t, err, jsbridge.ErrClosed)
}
