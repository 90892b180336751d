package cmd

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBridgeArgs(t *testing.T) {
	args, err := bridgeArgs("ping", nil)
	require.NoError(t, err)
	assert.Equal(t, `"ping"`, args)

	args, err = bridgeArgs(`say "hi"`, []string{`{"n": 1}`})
	require.NoError(t, err)
	assert.Equal(t, `"say \"hi\"", {"n": 1}`, args)

	_, err = bridgeArgs("ping", []string{`{n: 1}`})
	assert.ErrorContains(t, err, "not valid JSON")
}

func TestStringSliceToAnySlice(t *testing.T) {
	assert.Equal(t, []any{"a", "b"}, stringSliceToAnySlice([]string{"a", "b"}))
	assert.Empty(t, stringSliceToAnySlice(nil))
}
