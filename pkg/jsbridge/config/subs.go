package config

import (
	"context"
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsarna/jsbridge/pkg/jsbridge/bus"
	"github.com/tsarna/jsbridge/pkg/jsbridge/subutils"
)

type SubscriptionDefinition struct {
	Name       string         `hcl:",label"`
	Events     []string       `hcl:"events"`
	QueueSize  *int           `hcl:"queue_size,optional"`
	Transforms hcl.Expression `hcl:"transforms,optional"`
	ActionExpr hcl.Expression `hcl:"action,optional"`
	Log        *string        `hcl:"log,optional"`
	Disabled   bool           `hcl:"disabled,optional"`
	DefRange   hcl.Range      `hcl:",def_range"`
}

// SubscriptionBlockHandler attaches subscribers for content events to the
// observer bus.
type SubscriptionBlockHandler struct {
	BlockHandlerBase

	defined map[string]hcl.Range
}

func NewSubscriptionBlockHandler() *SubscriptionBlockHandler {
	return &SubscriptionBlockHandler{defined: make(map[string]hcl.Range)}
}

func (h *SubscriptionBlockHandler) Preprocess(block *hcl.Block) hcl.Diagnostics {
	name := block.Labels[0]
	if existing, ok := h.defined[name]; ok {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Subscription already defined",
			Detail:   fmt.Sprintf("Subscription %s already defined at %s", name, existing),
			Subject:  &block.DefRange,
		}}
	}
	h.defined[name] = block.DefRange
	return nil
}

func (h *SubscriptionBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	subscriptionDef := SubscriptionDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &subscriptionDef)
	if diags.HasErrors() {
		return diags
	}

	if subscriptionDef.Disabled {
		return nil
	}

	subscriptionDef.Name = block.Labels[0]

	hasAction := IsExpressionProvided(subscriptionDef.ActionExpr)
	hasLog := subscriptionDef.Log != nil

	if hasAction == hasLog {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Exactly one of action or log must be specified",
			Subject:  &block.DefRange,
		})
	}

	var subscriber bus.Subscriber
	if hasAction {
		subscriber = &ActionSubscriber{
			Config:     config,
			Name:       subscriptionDef.Name,
			ActionExpr: subscriptionDef.ActionExpr,
		}
	} else {
		level, err := zapcore.ParseLevel(*subscriptionDef.Log)
		if err != nil {
			return diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid log level",
				Detail:   err.Error(),
				Subject:  &subscriptionDef.DefRange,
			})
		}
		subscriber = subutils.NewNamedLoggingSubscriber(nil, config.Logger, level, subscriptionDef.Name)
	}

	if IsExpressionProvided(subscriptionDef.Transforms) {
		transforms, addDiags := config.GetEventTransforms(subscriptionDef.Transforms)
		diags = diags.Extend(addDiags)
		if diags.HasErrors() {
			return diags
		}

		subscriber = subutils.NewTransformingSubscriber(subscriber, config.Logger, transforms...)
	}

	if subscriptionDef.QueueSize != nil {
		queued := subutils.NewAsyncQueueingSubscriber(subscriber, *subscriptionDef.QueueSize).
			WithLogger(config.Logger).
			Start()
		config.Stoppables = append(config.Stoppables, &queueStopper{queue: queued})
		subscriber = queued
	}

	for _, pattern := range subscriptionDef.Events {
		if err := config.Bus.Subscribe(context.Background(), subscriber, pattern); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Failed to subscribe to observer bus",
				Detail:   err.Error(),
				Subject:  &block.DefRange,
			})
		}
	}

	return diags
}

// ActionSubscriber evaluates an action expression for each event, with
// ctx.type, ctx.data and any pattern fields as ctx.fields.
type ActionSubscriber struct {
	bus.BaseSubscriber
	Config     *Config
	Name       string
	ActionExpr hcl.Expression
}

func (a *ActionSubscriber) OnEvent(ctx context.Context, eventType string, data any, fields map[string]string) error {
	evalCtx, err := NewContext(ctx).
		WithStringAttribute("type", eventType).
		WithGoAttribute("data", data).
		WithStringMapAttribute("fields", fields).
		BuildEvalContext(a.Config.evalCtx)
	if err != nil {
		return err
	}

	_, diags := a.ActionExpr.Value(evalCtx)
	if diags.HasErrors() {
		a.Config.Logger.Warn("Subscription action failed",
			zap.String("subscription", a.Name),
			zap.String("event_type", eventType),
			zap.Error(diags))
		return diags
	}

	return nil
}

type queueStopper struct {
	queue *subutils.AsyncQueueingSubscriber
}

func (s *queueStopper) Stop(ctx context.Context) error {
	return s.queue.Close()
}
