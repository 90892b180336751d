package config

import (
	"context"
	"fmt"
	"reflect"

	"github.com/hashicorp/hcl/v2"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
)

// ContextCapsuleType carries a Go context.Context through cty values so that
// functions called from an action can reach it.
var ContextCapsuleType = cty.CapsuleWithOps("_context", reflect.TypeOf((*any)(nil)).Elem(), &cty.CapsuleOps{
	GoString: func(val interface{}) string {
		return fmt.Sprintf("_ctx(%p)", val)
	},
	TypeGoString: func(_ reflect.Type) string {
		return "_ctx"
	},
})

func NewContextCapsule(ctx context.Context) cty.Value {
	return cty.CapsuleVal(ContextCapsuleType, &ctx)
}

func GetContextFromCapsule(val cty.Value) (context.Context, error) {
	if val.Type() != ContextCapsuleType {
		return nil, fmt.Errorf("expected Context capsule, got %s", val.Type().FriendlyName())
	}

	ctx, ok := val.EncapsulatedValue().(*context.Context)
	if !ok {
		return nil, fmt.Errorf("encapsulated value is not a Context, got %T", val.EncapsulatedValue())
	}
	return *ctx, nil
}

// ContextObjectBuilder builds the ctx object an action expression sees, e.g.
// ctx.type and ctx.data in a handler.
type ContextObjectBuilder struct {
	ctx        context.Context
	attributes map[string]cty.Value
	err        error
}

func NewContext(ctx context.Context) *ContextObjectBuilder {
	return &ContextObjectBuilder{
		ctx:        ctx,
		attributes: make(map[string]cty.Value),
	}
}

func (b *ContextObjectBuilder) WithAttribute(name string, value cty.Value) *ContextObjectBuilder {
	b.attributes[name] = value
	return b
}

func (b *ContextObjectBuilder) WithStringAttribute(name string, value string) *ContextObjectBuilder {
	b.attributes[name] = cty.StringVal(value)
	return b
}

// WithGoAttribute converts a Go value, such as decoded JSON, with go2cty2go.
// A conversion failure is reported by Build.
func (b *ContextObjectBuilder) WithGoAttribute(name string, value any) *ContextObjectBuilder {
	if value == nil {
		b.attributes[name] = cty.NullVal(cty.DynamicPseudoType)
		return b
	}

	converted, err := go2cty2go.AnyToCty(value)
	if err != nil {
		if b.err == nil {
			b.err = fmt.Errorf("failed to convert %s: %w", name, err)
		}
		return b
	}
	b.attributes[name] = converted
	return b
}

func (b *ContextObjectBuilder) WithStringMapAttribute(name string, values map[string]string) *ContextObjectBuilder {
	if len(values) == 0 {
		return b
	}

	ctyValues := make(map[string]cty.Value, len(values))
	for key, value := range values {
		ctyValues[key] = cty.StringVal(value)
	}
	b.attributes[name] = cty.ObjectVal(ctyValues)
	return b
}

func (b *ContextObjectBuilder) Build() (cty.Value, error) {
	if b.err != nil {
		return cty.NilVal, b.err
	}

	b.attributes["_ctx"] = NewContextCapsule(b.ctx)
	return cty.ObjectVal(b.attributes), nil
}

// BuildEvalContext returns a child of parent with ctx bound to the built
// object.
func (b *ContextObjectBuilder) BuildEvalContext(parent *hcl.EvalContext) (*hcl.EvalContext, error) {
	ctxObj, err := b.Build()
	if err != nil {
		return nil, err
	}

	evalCtx := parent.NewChild()
	evalCtx.Variables = map[string]cty.Value{
		"ctx": ctxObj,
	}

	return evalCtx, nil
}

// contextFromArg returns the Go context carried by a ctx object, or
// context.Background() if the value is not one.
func contextFromArg(obj cty.Value) context.Context {
	if obj.IsKnown() && !obj.IsNull() && obj.Type().IsObjectType() && obj.Type().HasAttribute("_ctx") {
		if ctx, err := GetContextFromCapsule(obj.GetAttr("_ctx")); err == nil {
			return ctx
		}
	}
	return context.Background()
}
