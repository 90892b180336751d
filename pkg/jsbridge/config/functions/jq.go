package functions

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/itchyny/gojq"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

var jqCache sync.Map

func compileJq(query string) (*gojq.Code, error) {
	if code, ok := jqCache.Load(query); ok {
		return code.(*gojq.Code), nil
	}

	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", query, err)
	}
	code, err := gojq.Compile(parsed)
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", query, err)
	}

	jqCache.Store(query, code)
	return code, nil
}

// JqFunc runs a jq query over a value: jq(".items | length", ctx.data).
// A single result is returned as is; several are returned as a tuple and
// none as null.
var JqFunc = function.New(&function.Spec{
	Params: []function.Parameter{
		{Name: "query", Type: cty.String},
		{Name: "input", Type: cty.DynamicPseudoType, AllowNull: true, AllowDynamicType: true},
	},
	Type: function.StaticReturnType(cty.DynamicPseudoType),
	Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
		code, err := compileJq(args[0].AsString())
		if err != nil {
			return cty.NilVal, err
		}

		input, err := jqInput(args[1])
		if err != nil {
			return cty.NilVal, err
		}

		var results []cty.Value
		iter := code.RunWithContext(context.Background(), input)
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := result.(error); isErr {
				return cty.NilVal, err
			}

			val, err := go2cty2go.AnyToCty(result)
			if err != nil {
				return cty.NilVal, fmt.Errorf("failed to convert jq result: %w", err)
			}
			results = append(results, val)
		}

		switch len(results) {
		case 0:
			return cty.NullVal(cty.DynamicPseudoType), nil
		case 1:
			return results[0], nil
		default:
			return cty.TupleVal(results), nil
		}
	},
})

// jqInput converts a cty value into the plain JSON types jq accepts.
func jqInput(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}

	converted, err := go2cty2go.CtyToAny(val)
	if err != nil {
		return nil, fmt.Errorf("failed to convert jq input: %w", err)
	}

	encoded, err := json.Marshal(converted)
	if err != nil {
		return nil, err
	}

	var input any
	if err := json.Unmarshal(encoded, &input); err != nil {
		return nil, err
	}
	return input, nil
}
