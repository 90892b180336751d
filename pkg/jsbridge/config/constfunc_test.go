package config

import (
	_ "embed"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap/zaptest"
)

//go:embed testdata/constfunc.jsb
var constfuncConfig []byte

//go:embed testdata/constfunc1.jsb
var constfuncConfig1 []byte

//go:embed testdata/constfunc2.jsb
var constfuncConfig2 []byte

//go:embed testdata/assertfail.jsb
var assertFailConfig []byte

//go:embed testdata/env.jsb
var envConfig []byte

func TestConstAndFuncs(t *testing.T) {
	config, diags := NewConfig().WithSources(constfuncConfig).WithLogger(zaptest.NewLogger(t)).Build()
	require.False(t, diags.HasErrors(), "%v", diags)
	defer config.Stop(t.Context())

	assert.Equal(t, cty.StringVal("hello world"), config.Constants["greeting"])
	assert.True(t, config.Constants["answer"].Equals(cty.NumberIntVal(42)).True())
}

func TestConstAndFuncsSplit(t *testing.T) {
	config, diags := NewConfig().WithSources(constfuncConfig1, constfuncConfig2).WithLogger(zaptest.NewLogger(t)).Build()
	require.False(t, diags.HasErrors(), "%v", diags)
	defer config.Stop(t.Context())
}

func TestAssertFailure(t *testing.T) {
	_, diags := NewConfig().WithSources(assertFailConfig).WithLogger(zaptest.NewLogger(t)).Build()
	require.True(t, diags.HasErrors())
	assert.Contains(t, diags.Error(), "Assertion impossible failed")
}

func TestEnv(t *testing.T) {
	t.Setenv("JSBRIDGE_TEST_VALUE", "present")

	config, diags := NewConfig().WithSources(envConfig).Build()
	require.False(t, diags.HasErrors(), "failed to build config: %v", diags)
	defer config.Stop(t.Context())
}

func TestConfigErrors(t *testing.T) {
	tests := map[string]string{
		"duplicate constant": `
const { a = 1 }
const { a = 2 }
`,
		"reserved constant": `const { env = 1 }`,
		"circular constants": `const {
  a = b
  b = a
}`,
		"unknown block": `listener "x" {}`,
		"stray attribute": `x = 1`,
		"duplicate handler": `
handler "a" { result = 1 }
handler "a" { result = 2 }
`,
		"handler without answer": `handler "a" {}`,
		"handler with two answers": `handler "a" {
  result = 1
  error  = "no"
}`,
		"bad jq": `handler "a" { jq = ".[" }`,
		"duplicate bridge": `
bridge {}
bridge {}
`,
		"empty global": `bridge { global = "" }`,
		"bad metrics": `bridge { metrics = "statsd" }`,
		"bad timeout": `bridge { timeout = "soon" }`,
		"shadowed function": `function "upper" {
  params = [x]
  result = x
}`,
		"unknown server type": `server "tcp" "x" { listen = ":0" }`,
		"metrics path without prometheus": `server "websocket" "x" {
  listen       = "127.0.0.1:0"
  metrics_path = "/metrics"
}`,
		"duplicate server": `
server "websocket" "x" { listen = "127.0.0.1:0" }
server "websocket" "x" { listen = "127.0.0.1:0" }
`,
		"subscription without action": `subscription "s" { events = ["#"] }`,
		"subscription bad log level": `subscription "s" {
  events = ["#"]
  log    = "loud"
}`,
		"subscription bad transform": `subscription "s" {
  events     = ["#"]
  log        = "info"
  transforms = "upper"
}`,
		"duplicate subscription": `
subscription "s" {
  events = ["#"]
  log    = "info"
}
subscription "s" {
  events = ["#"]
  log    = "info"
}
`,
		"bad cron schedule": `cron "c" {
  at "whenever" "x" {
    action = 1
  }
}`,
		"bad cron timezone": `cron "c" {
  timezone = "Nowhere/Special"
}`,
		"duplicate signal": `
signals { SIGHUP = 1 }
signals { SIGHUP = 2 }
`,
	}

	for name, src := range tests {
		t.Run(name, func(t *testing.T) {
			_, diags := NewConfig().WithSources([]byte(src)).WithLogger(zaptest.NewLogger(t)).Build()
			assert.True(t, diags.HasErrors(), "expected errors, didn't get any")
		})
	}
}

func TestInvalidSource(t *testing.T) {
	_, diags := NewConfig().WithSources(42).Build()
	assert.True(t, diags.HasErrors())

	_, diags = NewConfig().WithSources("testdata/does-not-exist.jsb").Build()
	assert.True(t, diags.HasErrors())
}

func TestDirectorySource(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "a.jsb", `const { a = 1 }`)
	writeFile(t, dir, "b.jsb", `handler "get_a" { result = a }`)
	writeFile(t, dir, "ignored.txt", `this is not configuration`)

	config, diags := NewConfig().WithSources(dir).WithLogger(zaptest.NewLogger(t)).Build()
	require.False(t, diags.HasErrors(), "%v", diags)
	defer config.Stop(t.Context())

	_, ok := config.Registry.Lookup("get_a")
	assert.True(t, ok)
}
