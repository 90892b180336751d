package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
	"github.com/tsarna/jsbridge/pkg/jsbridge/transform"
)

// HandlerDefinition answers requests of the type named by the block label.
// Exactly one of jq, result or error is given. result and error may refer to
// ctx.type and ctx.data, the request payload.
type HandlerDefinition struct {
	Jq       hcl.Expression `hcl:"jq,optional"`
	Result   hcl.Expression `hcl:"result,optional"`
	Error    hcl.Expression `hcl:"error,optional"`
	Delay    hcl.Expression `hcl:"delay,optional"`
	Disabled bool           `hcl:"disabled,optional"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type HandlerBlockHandler struct {
	BlockHandlerBase

	defined map[string]hcl.Range
}

func NewHandlerBlockHandler() *HandlerBlockHandler {
	return &HandlerBlockHandler{
		defined: make(map[string]hcl.Range),
	}
}

func (h *HandlerBlockHandler) Preprocess(block *hcl.Block) hcl.Diagnostics {
	eventType := block.Labels[0]

	if eventType == "" {
		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid handler type",
				Detail:   "Handler type must not be empty",
				Subject:  &block.LabelRanges[0],
			},
		}
	}

	if existing, ok := h.defined[eventType]; ok {
		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Duplicate handler",
				Detail:   fmt.Sprintf("Handler %s is already defined at %s", eventType, existing),
				Subject:  &block.DefRange,
			},
		}
	}

	h.defined[eventType] = block.DefRange
	return nil
}

func (h *HandlerBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	def := HandlerDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &def)
	if diags.HasErrors() {
		return diags
	}

	if def.Disabled {
		return nil
	}

	eventType := block.Labels[0]

	provided := 0
	for _, expr := range []hcl.Expression{def.Jq, def.Result, def.Error} {
		if IsExpressionProvided(expr) {
			provided++
		}
	}
	if provided != 1 {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Exactly one of jq, result or error must be specified",
			Subject:  &def.DefRange,
		})
	}

	var handler dispatcher.HandlerFunc

	switch {
	case IsExpressionProvided(def.Jq):
		var query string
		queryDiags := gohcl.DecodeExpression(def.Jq, config.evalCtx, &query)
		diags = diags.Extend(queryDiags)
		if queryDiags.HasErrors() {
			return diags
		}

		jqHandler, err := transform.JqHandler(eventType, query, config.Logger)
		if err != nil {
			return diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid jq query",
				Detail:   err.Error(),
				Subject:  def.Jq.Range().Ptr(),
			})
		}
		handler = jqHandler

	case IsExpressionProvided(def.Result):
		handler = config.resultHandler(eventType, def.Result)

	default:
		handler = config.errorHandler(eventType, def.Error)
	}

	if IsExpressionProvided(def.Delay) {
		delay, delayDiags := config.ParseDuration(def.Delay)
		diags = diags.Extend(delayDiags)
		if delayDiags.HasErrors() {
			return diags
		}
		handler = delayed(delay, handler)
	}

	config.Registry.HandleFunc(eventType, handler)
	config.Logger.Debug("Registered handler", zap.String("type", eventType))

	return diags
}

// evalRequest evaluates expr with ctx.type and ctx.data bound to the request.
func (config *Config) evalRequest(ctx context.Context, eventType string, data json.RawMessage, expr hcl.Expression) (cty.Value, error) {
	var payload any
	if len(data) > 0 {
		if err := json.Unmarshal(data, &payload); err != nil {
			return cty.NilVal, fmt.Errorf("invalid payload: %w", err)
		}
	}

	evalCtx, err := NewContext(ctx).
		WithStringAttribute("type", eventType).
		WithGoAttribute("data", payload).
		BuildEvalContext(config.evalCtx)
	if err != nil {
		return cty.NilVal, err
	}

	value, diags := expr.Value(evalCtx)
	if diags.HasErrors() {
		return cty.NilVal, diagsError(diags)
	}

	return value, nil
}

func (config *Config) resultHandler(eventType string, expr hcl.Expression) dispatcher.HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		value, err := config.evalRequest(ctx, eventType, data, expr)
		if err != nil {
			return nil, err
		}

		return go2cty2go.CtyToAny(value)
	}
}

func (config *Config) errorHandler(eventType string, expr hcl.Expression) dispatcher.HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		value, err := config.evalRequest(ctx, eventType, data, expr)
		if err != nil {
			return nil, err
		}

		if value.IsNull() || !value.IsKnown() || value.Type() != cty.String {
			return nil, fmt.Errorf("handler %s failed", eventType)
		}
		return nil, errors.New(value.AsString())
	}
}

func delayed(delay time.Duration, handler dispatcher.HandlerFunc) dispatcher.HandlerFunc {
	return func(ctx context.Context, data json.RawMessage) (any, error) {
		timer := time.NewTimer(delay)
		defer timer.Stop()

		select {
		case <-timer.C:
			return handler(ctx, data)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

// diagsError reduces evaluation diagnostics to an error whose message is fit
// to cross the bridge: a failing function call reports the function's own
// error rather than the source location.
func diagsError(diags hcl.Diagnostics) error {
	for _, diag := range diags {
		if diag.Severity != hcl.DiagError {
			continue
		}
		if extra, ok := hcl.DiagnosticExtra[hclsyntax.FunctionCallDiagExtra](diag); ok && extra.FunctionCallError() != nil {
			return extra.FunctionCallError()
		}
		if diag.Detail != "" {
			return errors.New(diag.Detail)
		}
		return errors.New(diag.Summary)
	}
	return diags
}
