package envelope

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLiteralEscaping(t *testing.T) {
	raw, err := json.Marshal(map[string]string{"s": "</script>\u2028\u2029&"})
	require.NoError(t, err)

	lit, err := Literal(raw)
	require.NoError(t, err)

	assert.NotContains(t, lit, "</script>")
	assert.NotContains(t, lit, "\u2028")
	assert.NotContains(t, lit, "\u2029")
	assert.NotContains(t, lit, "&")
	assert.JSONEq(t, string(raw), lit)
}

func TestLiteralHandlesUnescapedInput(t *testing.T) {
	lit, err := Literal(json.RawMessage("{ \"a\" : \"x\u2028y<z\" }"))
	require.NoError(t, err)
	assert.Equal(t, `{"a":"x\u2028y\u003cz"}`, lit)
}

func TestLiteralEmptyAndInvalid(t *testing.T) {
	lit, err := Literal(nil)
	require.NoError(t, err)
	assert.Equal(t, "null", lit)

	_, err = Literal(json.RawMessage(`{"a":`))
	assert.Error(t, err)
}

func TestCallbackScript(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		script, err := CallbackScript("JSBridge", 7, nil, json.RawMessage(`{"n":1}`))
		require.NoError(t, err)
		assert.Equal(t, `window.JSBridge._callback(7,null,{"n":1});true;`, script)
	})

	t.Run("error", func(t *testing.T) {
		msg := `bad "input"\ '); alert(1); ('`
		script, err := CallbackScript("JSBridge", 8, &msg, json.RawMessage(`{"ignored":true}`))
		require.NoError(t, err)
		assert.Equal(t, `window.JSBridge._callback(8,"bad \"input\"\\ '); alert(1); ('",null);true;`, script)
	})

	t.Run("nil result", func(t *testing.T) {
		script, err := CallbackScript("JSBridge", 9, nil, nil)
		require.NoError(t, err)
		assert.Equal(t, `window.JSBridge._callback(9,null,null);true;`, script)
	})

	t.Run("invalid result", func(t *testing.T) {
		_, err := CallbackScript("JSBridge", 9, nil, json.RawMessage(`{`))
		assert.Error(t, err)
	})

	t.Run("invalid global", func(t *testing.T) {
		_, err := CallbackScript("JS.Bridge", 9, nil, nil)
		assert.Error(t, err)

		_, err = CallbackScript("", 9, nil, nil)
		assert.Error(t, err)
	})
}

func TestReceiveScript(t *testing.T) {
	script, err := ReceiveScript("JSBridge", "news/\"flash\"", json.RawMessage(`["a\u2028b"]`))
	require.NoError(t, err)
	assert.Equal(t, `window.JSBridge._receive("news/\"flash\"",["a\u2028b"]);true;`, script)
	assert.False(t, strings.ContainsRune(script, '\u2028'))

	_, err = ReceiveScript("JSBridge", "", nil)
	assert.Error(t, err)
}
