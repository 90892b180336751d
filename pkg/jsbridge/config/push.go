package config

import (
	"errors"
	"fmt"
	"sort"

	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/function"
)

var pushParams = []function.Parameter{
	{
		Name:      "ctx",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	},
	{
		Name: "type",
		Type: cty.String,
	},
	{
		Name:      "data",
		Type:             cty.DynamicPseudoType,
		AllowNull:        true,
		AllowDynamicType: true,
	},
}

func ctyToData(val cty.Value) (any, error) {
	if val.IsNull() {
		return nil, nil
	}

	data, err := go2cty2go.CtyToAny(val)
	if err != nil {
		return nil, fmt.Errorf("failed to convert data: %w", err)
	}
	return data, nil
}

// PushFunction returns push(ctx, type, data), which sends an event to every
// content context connected to any websocket server and returns how many
// contexts it was delivered to.
func PushFunction(config *Config) function.Function {
	return function.New(&function.Spec{
		Params: pushParams,
		Type:   function.StaticReturnType(cty.Number),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			ctx := contextFromArg(args[0])
			eventType := args[1].AsString()

			data, err := ctyToData(args[2])
			if err != nil {
				return cty.NilVal, err
			}

			names := make([]string, 0, len(config.Servers))
			for name := range config.Servers {
				names = append(names, name)
			}
			sort.Strings(names)

			delivered := 0
			var errs []error
			for _, name := range names {
				n, err := config.Servers[name].Listener.Push(ctx, eventType, data)
				delivered += n
				if err != nil {
					errs = append(errs, fmt.Errorf("server %s: %w", name, err))
				}
			}

			if delivered == 0 && len(errs) > 0 {
				return cty.NilVal, errors.Join(errs...)
			}
			return cty.NumberIntVal(int64(delivered)), nil
		},
	})
}

// PublishFunction returns publish(ctx, type, data), which publishes an event
// on the observer bus as if a content context had emitted it.
func PublishFunction(config *Config) function.Function {
	return function.New(&function.Spec{
		Params: pushParams,
		Type:   function.StaticReturnType(cty.Bool),
		Impl: func(args []cty.Value, retType cty.Type) (cty.Value, error) {
			if config.Bus == nil {
				return cty.False, fmt.Errorf("observer bus is not running")
			}

			data, err := ctyToData(args[2])
			if err != nil {
				return cty.False, err
			}

			if err := config.Bus.Publish(contextFromArg(args[0]), args[1].AsString(), data); err != nil {
				return cty.False, err
			}
			return cty.True, nil
		},
	})
}
