package config

import (
	"fmt"
	"reflect"

	"github.com/hashicorp/hcl/v2"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"

	"github.com/tsarna/jsbridge/pkg/jsbridge/subutils"
	"github.com/tsarna/jsbridge/pkg/jsbridge/transform"
)

type EventTransformWrapper struct {
	Func subutils.EventTransformFunc
}

// EventTransformCapsuleType wraps an EventTransformFunc so that transform
// functions can be composed in a subscription's transforms attribute.
var EventTransformCapsuleType = cty.CapsuleWithOps("transform", reflect.TypeOf((*EventTransformWrapper)(nil)).Elem(), &cty.CapsuleOps{
	GoString: func(val interface{}) string {
		return fmt.Sprintf("transform(%p)", val)
	},
	TypeGoString: func(_ reflect.Type) string {
		return "EventTransform"
	},
})

func NewEventTransformCapsule(transformFunc subutils.EventTransformFunc) cty.Value {
	return cty.CapsuleVal(EventTransformCapsuleType, &EventTransformWrapper{Func: transformFunc})
}

func GetEventTransformFromCapsule(val cty.Value) (subutils.EventTransformFunc, error) {
	if val.Type() != EventTransformCapsuleType {
		return nil, fmt.Errorf("expected Event Transform capsule, got %s", val.Type().FriendlyName())
	}

	wrapper, ok := val.EncapsulatedValue().(*EventTransformWrapper)
	if !ok {
		return nil, fmt.Errorf("encapsulated value is not an EventTransformWrapper, got %T", val.EncapsulatedValue())
	}
	return wrapper.Func, nil
}

// GetEventTransforms evaluates a transforms attribute, which may be a single
// transform or a list of them.
func (config *Config) GetEventTransforms(expr hcl.Expression) ([]subutils.EventTransformFunc, hcl.Diagnostics) {
	vals, diags := expr.Value(config.getTransformExprEvalCtx())
	if diags.HasErrors() {
		return nil, diags
	}

	exprRange := expr.Range()
	invalid := func(detail string) hcl.Diagnostics {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid event transforms",
			Detail:   detail,
			Subject:  &exprRange,
		})
	}

	if vals.Type() == EventTransformCapsuleType {
		transformFunc, err := GetEventTransformFromCapsule(vals)
		if err != nil {
			return nil, invalid(err.Error())
		}
		return []subutils.EventTransformFunc{transformFunc}, diags
	}

	if !vals.Type().IsTupleType() && !vals.Type().IsListType() {
		return nil, invalid(fmt.Sprintf("Expected a transform or list of transforms, got %s", vals.Type().FriendlyName()))
	}

	transforms := make([]subutils.EventTransformFunc, 0, vals.LengthInt())
	for _, val := range vals.AsValueSlice() {
		transformFunc, err := GetEventTransformFromCapsule(val)
		if err != nil {
			return nil, invalid(err.Error())
		}
		transforms = append(transforms, transformFunc)
	}

	return transforms, diags
}

func (config *Config) getTransformExprEvalCtx() *hcl.EvalContext {
	ctx := config.evalCtx.NewChild()
	ctx.Functions = map[string]function.Function{
		"chain":           ChainTransform,
		"drop_pattern":    DropPatternTransform,
		"drop_prefix":     DropPrefixTransform,
		"if_pattern":      IfPatternTransform,
		"if_else_pattern": IfElsePatternTransform,
		"jq":              JqTransform,
		"rate_limit":      RateLimitTransform,
	}

	return ctx
}

var DropPatternTransform = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "pattern", Type: cty.String},
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return NewEventTransformCapsule(transform.DropEventPattern(args[0].AsString())), nil
	},
})

var DropPrefixTransform = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "prefix", Type: cty.String},
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		return NewEventTransformCapsule(transform.DropEventPrefix(args[0].AsString())), nil
	},
})

var ChainTransform = function.New(&function.Spec{
	VarParam: &function.Parameter{
		Name: "transforms",
		Type: EventTransformCapsuleType,
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		transforms := make([]subutils.EventTransformFunc, 0, len(args))
		for _, arg := range args {
			transformFunc, err := GetEventTransformFromCapsule(arg)
			if err != nil {
				return cty.NullVal(retType), err
			}
			transforms = append(transforms, transformFunc)
		}
		return NewEventTransformCapsule(transform.Chain(transforms...)), nil
	},
})

var IfPatternTransform = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "pattern", Type: cty.String},
		{Name: "transform", Type: EventTransformCapsuleType},
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		transformFunc, err := GetEventTransformFromCapsule(args[1])
		if err != nil {
			return cty.NullVal(retType), err
		}
		return NewEventTransformCapsule(transform.IfPattern(args[0].AsString(), transformFunc)), nil
	},
})

var IfElsePatternTransform = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "pattern", Type: cty.String},
		{Name: "ifTransform", Type: EventTransformCapsuleType},
		{Name: "elseTransform", Type: EventTransformCapsuleType},
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		ifTransform, err := GetEventTransformFromCapsule(args[1])
		if err != nil {
			return cty.NullVal(retType), err
		}
		elseTransform, err := GetEventTransformFromCapsule(args[2])
		if err != nil {
			return cty.NullVal(retType), err
		}
		return NewEventTransformCapsule(transform.IfElsePattern(args[0].AsString(), ifTransform, elseTransform)), nil
	},
})

// JqTransform rewrites event data with a jq query; $type is bound to the
// event type. An empty result drops the event.
var JqTransform = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "query", Type: cty.String},
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		transformFunc, err := transform.JqEventTransform(args[0].AsString())
		if err != nil {
			return cty.NilVal, err
		}
		return NewEventTransformCapsule(transformFunc), nil
	},
})

// RateLimitTransform drops events of a type seen less than interval ago.
var RateLimitTransform = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "interval", Type: cty.DynamicPseudoType},
	},
	Type: function.StaticReturnType(EventTransformCapsuleType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		interval, err := durationFromValue(args[0])
		if err != nil {
			return cty.NilVal, err
		}
		return NewEventTransformCapsule(transform.RateLimitByType(interval)), nil
	},
})
