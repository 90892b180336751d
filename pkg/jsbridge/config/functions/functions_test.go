package functions

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestJqFunc(t *testing.T) {
	input := cty.ObjectVal(map[string]cty.Value{
		"items": cty.TupleVal([]cty.Value{cty.NumberIntVal(1), cty.NumberIntVal(2), cty.NumberIntVal(3)}),
		"name":  cty.StringVal("box"),
	})

	t.Run("single result", func(t *testing.T) {
		result, err := JqFunc.Call([]cty.Value{cty.StringVal(".items | add"), input})
		require.NoError(t, err)
		assert.True(t, result.Equals(cty.NumberIntVal(6)).True())
	})

	t.Run("several results", func(t *testing.T) {
		result, err := JqFunc.Call([]cty.Value{cty.StringVal(".items[]"), input})
		require.NoError(t, err)
		require.True(t, result.Type().IsTupleType())
		assert.Equal(t, 3, result.LengthInt())
	})

	t.Run("no results", func(t *testing.T) {
		result, err := JqFunc.Call([]cty.Value{cty.StringVal("empty"), input})
		require.NoError(t, err)
		assert.True(t, result.IsNull())
	})

	t.Run("null input", func(t *testing.T) {
		result, err := JqFunc.Call([]cty.Value{cty.StringVal(". == null"), cty.NullVal(cty.DynamicPseudoType)})
		require.NoError(t, err)
		assert.Equal(t, cty.True, result)
	})

	t.Run("invalid query", func(t *testing.T) {
		_, err := JqFunc.Call([]cty.Value{cty.StringVal(".["), input})
		assert.ErrorContains(t, err, "failed to parse JQ query")
	})

	t.Run("runtime error", func(t *testing.T) {
		_, err := JqFunc.Call([]cty.Value{cty.StringVal(".name | tonumber"), input})
		assert.Error(t, err)
	})
}

func TestLogFunctions(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	funcs := GetLogFunctions(zap.New(core))

	result, err := funcs["log_info"].Call([]cty.Value{
		cty.StringVal("hello"),
		cty.ObjectVal(map[string]cty.Value{
			"who":   cty.StringVal("world"),
			"count": cty.NumberIntVal(2),
		}),
	})
	require.NoError(t, err)
	assert.Equal(t, cty.True, result)

	_, err = funcs["log_warn"].Call([]cty.Value{cty.StringVal("positional"), cty.StringVal("a"), cty.NumberIntVal(1)})
	require.NoError(t, err)

	_, err = funcs["log_msg"].Call([]cty.Value{cty.StringVal("error"), cty.StringVal("by name")})
	require.NoError(t, err)

	_, err = funcs["log_msg"].Call([]cty.Value{cty.StringVal("shouting"), cty.StringVal("unknown level")})
	require.NoError(t, err)

	result, err = funcs["log_debug"].Call([]cty.Value{cty.StringVal("nothing"), cty.NullVal(cty.DynamicPseudoType)})
	require.NoError(t, err)
	assert.Equal(t, cty.True, result)

	entries := logs.AllUntimed()
	require.Len(t, entries, 5)

	assert.Equal(t, "hello", entries[0].Message)
	assert.Equal(t, zapcore.InfoLevel, entries[0].Level)
	assert.Equal(t, "world", entries[0].ContextMap()["who"])

	assert.Equal(t, zapcore.WarnLevel, entries[1].Level)
	assert.Contains(t, entries[1].ContextMap(), "$1")

	assert.Equal(t, zapcore.ErrorLevel, entries[2].Level)
	assert.Equal(t, zapcore.InfoLevel, entries[3].Level)

	assert.Equal(t, zapcore.DebugLevel, entries[4].Level)
	assert.Equal(t, "<null>", entries[4].ContextMap()["$1"])
}

func TestMiscFunctions(t *testing.T) {
	_, err := ErrorFunc.Call([]cty.Value{cty.StringVal("boom")})
	assert.EqualError(t, err, "boom")

	typeName, err := TypeOfFunc.Call([]cty.Value{cty.NumberIntVal(1)})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("number"), typeName)

	typeName, err = TypeOfFunc.Call([]cty.Value{cty.NullVal(cty.DynamicPseudoType)})
	require.NoError(t, err)
	assert.Equal(t, cty.StringVal("dynamic"), typeName)

	ts, err := TimestampFunc.Call(nil)
	require.NoError(t, err)
	assert.Regexp(t, `^\d{4}-\d{2}-\d{2}T\d{2}:\d{2}:\d{2}Z$`, ts.AsString())
}

func TestStandardLibrary(t *testing.T) {
	funcs := GetStandardLibraryFunctions()
	for _, name := range []string{"upper", "format", "jsonencode", "cidrhost", "sha256", "uuidv4", "formatdate", "typeof", "file"} {
		assert.Contains(t, funcs, name)
	}
}
