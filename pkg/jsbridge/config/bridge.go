package config

import (
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/otel"
	"github.com/tsarna/jsbridge/pkg/jsbridge/prom"
)

const (
	MetricsNone       = "none"
	MetricsPrometheus = "prometheus"
	MetricsOtel       = "otel"

	DefaultMetricsNamespace = "jsbridge"
)

// BridgeSettings are the bridge-wide settings from the bridge block.
type BridgeSettings struct {
	// Global is the content-side bridge object name used in scripts sent
	// to content contexts.
	Global string
	// Timeout is how long content-side commands wait for a response.
	Timeout time.Duration
	// Metrics selects the metrics backend: none, prometheus or otel.
	Metrics   string
	Namespace string
	// BusQueueSize is the observer bus buffer size; 0 uses the bus default.
	BusQueueSize int
}

type BridgeDefinition struct {
	Global       *string        `hcl:"global,optional"`
	Timeout      hcl.Expression `hcl:"timeout,optional"`
	Metrics      *string        `hcl:"metrics,optional"`
	Namespace    *string        `hcl:"namespace,optional"`
	BusQueueSize *int           `hcl:"bus_queue_size,optional"`
	DefRange     hcl.Range      `hcl:",def_range"`
}

// BridgeBlockHandler handles the optional, unique bridge block. Whether or
// not one is present it creates the metrics provider and starts the
// observer bus before any other block is processed.
type BridgeBlockHandler struct {
	BlockHandlerBase

	block *hcl.Block
}

func NewBridgeBlockHandler() *BridgeBlockHandler {
	return &BridgeBlockHandler{}
}

func (h *BridgeBlockHandler) Preprocess(block *hcl.Block) hcl.Diagnostics {
	if h.block != nil {
		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate bridge block",
				Detail:   fmt.Sprintf("The bridge block is already defined at %s", h.block.DefRange),
				Subject:  &block.DefRange,
			},
		}
	}

	h.block = block
	return nil
}

func (h *BridgeBlockHandler) FinishPreprocessing(config *Config) hcl.Diagnostics {
	settings := BridgeSettings{
		Global:    jsbridge.GlobalName,
		Timeout:   jsbridge.DefaultTimeout,
		Metrics:   MetricsNone,
		Namespace: DefaultMetricsNamespace,
	}

	var diags hcl.Diagnostics
	defRange := hcl.Range{}

	if h.block != nil {
		defRange = h.block.DefRange

		def := BridgeDefinition{}
		diags = gohcl.DecodeBody(h.block.Body, config.evalCtx, &def)
		if diags.HasErrors() {
			return diags
		}

		if def.Global != nil {
			if *def.Global == "" {
				return diags.Append(&hcl.Diagnostic{
					Severity: hcl.DiagError,
					Summary:  "Invalid global name",
					Detail:   "The bridge global name must not be empty",
					Subject:  &def.DefRange,
				})
			}
			settings.Global = *def.Global
		}
		if IsExpressionProvided(def.Timeout) {
			timeout, timeoutDiags := config.ParseDuration(def.Timeout)
			diags = diags.Extend(timeoutDiags)
			if timeoutDiags.HasErrors() {
				return diags
			}
			settings.Timeout = timeout
		}
		if def.Metrics != nil {
			settings.Metrics = *def.Metrics
		}
		if def.Namespace != nil {
			settings.Namespace = *def.Namespace
		}
		if def.BusQueueSize != nil {
			settings.BusQueueSize = *def.BusQueueSize
		}
	}

	config.Bridge = settings
	config.Constants["bridge"] = cty.ObjectVal(map[string]cty.Value{
		"global":  cty.StringVal(settings.Global),
		"timeout": cty.NumberFloatVal(settings.Timeout.Seconds()),
		"metrics": cty.StringVal(settings.Metrics),
	})

	busBuilder := bus.NewEventBus().
		WithLogger(config.Logger).
		WithName("observer")
	if settings.BusQueueSize > 0 {
		busBuilder = busBuilder.WithBufferSize(settings.BusQueueSize)
	}

	switch settings.Metrics {
	case MetricsNone, "":
	case MetricsPrometheus:
		provider := prom.NewProvider(settings.Namespace, config.Logger)
		config.MetricsProvider = provider
		config.MetricsHandler = provider.Handler()
	case MetricsOtel:
		provider := otel.NewProvider(settings.Namespace, jsbridge.Version)
		config.MetricsProvider = provider
		busBuilder = busBuilder.WithTracing(provider)
	default:
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid metrics backend",
			Detail:   fmt.Sprintf("metrics must be one of %q, %q or %q, got %q", MetricsNone, MetricsPrometheus, MetricsOtel, settings.Metrics),
			Subject:  &defRange,
		})
	}

	if config.MetricsProvider != nil {
		busBuilder = busBuilder.WithMetrics(config.MetricsProvider)
	}

	eventBus, err := busBuilder.Build()
	if err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to build observer bus",
			Detail:   err.Error(),
			Subject:  &defRange,
		})
	}

	if err := eventBus.Start(); err != nil {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Failed to start observer bus",
			Detail:   err.Error(),
		})
	}
	config.Bus = eventBus

	config.Logger.Debug("Bridge configured",
		zap.String("global", settings.Global),
		zap.Duration("timeout", settings.Timeout),
		zap.String("metrics", settings.Metrics))

	return diags
}
