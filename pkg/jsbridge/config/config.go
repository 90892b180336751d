// Package config builds a bridge host from HCL files: request handlers,
// WebSocket listeners, observer subscriptions, schedules and signal
// actions, sharing one handler registry and one observer bus.
package config

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/hashicorp/hcl/v2"
	"github.com/robfig/cron/v3"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/config/functions"
	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
	"github.com/tsarna/jsbridge/pkg/jsbridge/o11y"
)

type ConfigBuilder struct {
	logger        *zap.Logger
	sources       []any
	blockHandlers map[string]BlockHandler
}

type Startable interface {
	Start() error
}

type Stoppable interface {
	Stop(ctx context.Context) error
}

type Config struct {
	Logger    *zap.Logger
	Functions map[string]function.Function
	Constants map[string]cty.Value
	evalCtx   *hcl.EvalContext

	Bridge          BridgeSettings
	MetricsProvider o11y.MetricsProvider
	MetricsHandler  http.Handler
	Registry        *dispatcher.Registry
	Bus             bus.EventBus
	Servers         map[string]*WebsocketServer
	Crons           map[string]*cron.Cron
	SigActions      *SignalActionHandler

	Startables []Startable
	Stoppables []Stoppable
}

func NewConfig() *ConfigBuilder {
	return &ConfigBuilder{
		logger:        zap.NewNop(),
		sources:       make([]any, 0),
		blockHandlers: GetBlockHandlers(),
	}
}

func (cb *ConfigBuilder) WithLogger(logger *zap.Logger) *ConfigBuilder {
	if logger != nil {
		cb.logger = logger
	}
	return cb
}

// WithSources adds configuration sources: file or directory paths, []byte
// contents or an embed.FS.
func (cb *ConfigBuilder) WithSources(sources ...any) *ConfigBuilder {
	cb.sources = append(cb.sources, sources...)
	return cb
}

func (cb *ConfigBuilder) Build() (*Config, hcl.Diagnostics) {
	config := &Config{
		Logger:    cb.logger,
		Constants: make(map[string]cty.Value),
		Registry:  dispatcher.NewRegistry(),
		Servers:   make(map[string]*WebsocketServer),
		Crons:     make(map[string]*cron.Cron),
	}

	bodies, diags := ParseConfigFiles(cb.sources...)
	if diags.HasErrors() {
		return nil, diags
	}

	userFuncs, nonFunctionBodies, addDiags := functions.ExtractUserFunctions(bodies, func() *hcl.EvalContext {
		return config.evalCtx
	})
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Functions, addDiags = config.GetFunctions(userFuncs)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	blocks, addDiags := cb.GetBlocks(nonFunctionBodies)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return nil, diags
	}

	config.Constants["env"] = GetEnvObject()

	config.evalCtx = &hcl.EvalContext{
		Functions: config.Functions,
		Variables: config.Constants,
	}

	for _, block := range blocks {
		if handler, ok := cb.blockHandlers[block.Type]; ok {
			diags = diags.Extend(handler.Preprocess(block))
		}
	}
	if diags.HasErrors() {
		return nil, diags
	}

	for _, blockType := range blockOrder {
		diags = diags.Extend(cb.blockHandlers[blockType].FinishPreprocessing(config))
		if diags.HasErrors() {
			config.stopBus()
			return nil, diags
		}
	}

	for _, block := range cb.SortBlocks(blocks) {
		if handler, ok := cb.blockHandlers[block.Type]; ok {
			diags = diags.Extend(handler.Process(config, block))
		}
	}

	for _, blockType := range blockOrder {
		diags = diags.Extend(cb.blockHandlers[blockType].FinishProcessing(config))
	}

	if diags.HasErrors() {
		config.stopBus()
		return nil, diags
	}

	config.Logger.Info("Config built successfully",
		zap.Strings("handlers", config.Registry.Types()),
		zap.Int("servers", len(config.Servers)))

	return config, diags
}

// SortBlocks orders blocks so that every block type is processed after the
// types it may depend on, keeping file order within a type.
func (cb *ConfigBuilder) SortBlocks(blocks hcl.Blocks) hcl.Blocks {
	rank := make(map[string]int, len(blockOrder))
	for i, blockType := range blockOrder {
		rank[blockType] = i
	}

	sorted := make(hcl.Blocks, len(blocks))
	copy(sorted, blocks)
	sort.SliceStable(sorted, func(i, j int) bool {
		return rank[sorted[i].Type] < rank[sorted[j].Type]
	})
	return sorted
}

// GetFunctions merges the standard functions, the bridge functions and the
// user-defined functions. User functions may not shadow built-in ones.
func (c *Config) GetFunctions(userFuncs map[string]function.Function) (map[string]function.Function, hcl.Diagnostics) {
	funcs := functions.GetStandardLibraryFunctions()
	diags := hcl.Diagnostics{}

	for name, fn := range functions.GetLogFunctions(c.Logger) {
		funcs[name] = fn
	}

	funcs["error"] = functions.ErrorFunc
	funcs["jq"] = functions.JqFunc
	funcs["push"] = PushFunction(c)
	funcs["publish"] = PublishFunction(c)

	for name, fn := range userFuncs {
		if _, exists := funcs[name]; exists {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate function",
				Detail:   fmt.Sprintf("Function %s is reserved and can't be overridden", name),
			})
			continue
		}
		funcs[name] = fn
	}

	return funcs, diags
}

// Start starts every configured server, schedule and signal handler. The
// observer bus is already running once Build returns.
func (c *Config) Start() error {
	for _, startable := range c.Startables {
		if err := startable.Start(); err != nil {
			return err
		}
	}
	return nil
}

// Stop shuts everything down in the reverse order it was started, then stops
// the observer bus.
func (c *Config) Stop(ctx context.Context) error {
	var errs []error

	for i := len(c.Stoppables) - 1; i >= 0; i-- {
		if err := c.Stoppables[i].Stop(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	c.stopBus()

	return errors.Join(errs...)
}

func (c *Config) stopBus() {
	if c.Bus != nil {
		if err := c.Bus.Stop(); err != nil {
			c.Logger.Debug("Observer bus stop", zap.Error(err))
		}
	}
}

type errorlessStartable interface {
	Start()
}

// NewErrorlessStartable adapts something whose Start cannot fail, such as a
// cron scheduler.
func NewErrorlessStartable(startable errorlessStartable) Startable {
	return &ErrorlessStartable{startable: startable}
}

type ErrorlessStartable struct {
	startable errorlessStartable
}

func (e ErrorlessStartable) Start() error {
	e.startable.Start()
	return nil
}
