package transform

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/itchyny/gojq"
	"github.com/tsarna/go2cty2go"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/dispatcher"
	"github.com/tsarna/jsbridge/pkg/jsbridge/subutils"
)

// compile parses query and binds $type as its only variable.
func compile(query string) (*gojq.Code, error) {
	parsed, err := gojq.Parse(query)
	if err != nil {
		return nil, fmt.Errorf("failed to parse JQ query '%s': %w", query, err)
	}

	code, err := gojq.Compile(parsed, gojq.WithVariables([]string{"$type"}))
	if err != nil {
		return nil, fmt.Errorf("failed to compile JQ query '%s': %w", query, err)
	}

	return code, nil
}

// JqHandler creates a request handler that answers with the result of a jq
// query run over the request payload. $type is bound to the request type.
//
// Only the first result is returned; a query producing no results answers
// null. A jq runtime error fails the request, so the caller sees it as a
// RemoteError carrying the jq message.
//
//	echo, _ := JqHandler("echo", ".", logger)
//	registry.HandleFunc("echo", echo)
//
//	sum, _ := JqHandler("sum", "{type: $type, total: (.items | add)}", logger)
//	registry.HandleFunc("sum", sum)
func JqHandler(eventType, query string, logger *zap.Logger) (dispatcher.HandlerFunc, error) {
	if logger == nil {
		logger = zap.NewNop()
	}

	code, err := compile(query)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, data json.RawMessage) (any, error) {
		var input any
		if len(data) > 0 {
			if err := json.Unmarshal(data, &input); err != nil {
				return nil, fmt.Errorf("invalid payload: %w", err)
			}
		}

		iter := code.RunWithContext(ctx, input, eventType)
		result, ok := iter.Next()
		if !ok {
			return nil, nil
		}
		if err, isErr := result.(error); isErr {
			logger.Debug("JQ handler error",
				zap.String("type", eventType),
				zap.String("jq_query", query),
				zap.Error(err))
			return nil, err
		}

		return result, nil
	}, nil
}

// JqEventTransform creates an EventTransformFunc that rewrites observed event
// data with a jq query. $type is bound to the event type.
//
// Multiple results are collected into an array and a query with no results
// drops the event. Data that is a string or []byte holding JSON is parsed
// first; cty.Value data is converted with go2cty2go; structs go through a
// JSON round trip so that jq sees plain maps.
func JqEventTransform(query string) (subutils.EventTransformFunc, error) {
	code, err := compile(query)
	if err != nil {
		return nil, err
	}

	return func(ctx context.Context, eventType string, data any) (any, bool, error) {
		input, err := toJqInput(data)
		if err != nil {
			return nil, false, err
		}

		iter := code.RunWithContext(ctx, input, eventType)

		var results []any
		for {
			result, ok := iter.Next()
			if !ok {
				break
			}
			if err, isErr := result.(error); isErr {
				return nil, false, fmt.Errorf("jq: %w", err)
			}
			results = append(results, result)
		}

		switch len(results) {
		case 0:
			return nil, false, nil
		case 1:
			return results[0], true, nil
		default:
			return results, true, nil
		}
	}, nil
}

func toJqInput(data any) (any, error) {
	var input any

	switch v := data.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		if len(v) == 0 {
			return nil, nil
		}
		if err := json.Unmarshal(v, &input); err != nil {
			return nil, fmt.Errorf("invalid JSON data: %w", err)
		}
		return input, nil
	case string:
		if err := json.Unmarshal([]byte(v), &input); err != nil {
			return v, nil
		}
		return input, nil
	case []byte:
		if err := json.Unmarshal(v, &input); err != nil {
			return string(v), nil
		}
		return input, nil
	case cty.Value:
		converted, err := go2cty2go.CtyToAny(v)
		if err != nil {
			return nil, fmt.Errorf("failed to convert cty value: %w", err)
		}
		return normalize(converted)
	default:
		return normalize(v)
	}
}

// normalize turns v into the value types jq accepts. Scalars jq knows
// pass through; anything else goes through a JSON round trip so that
// structs and typed maps or slices become plain maps and arrays.
func normalize(v any) (any, error) {
	switch v.(type) {
	case string, bool, float64, int:
		return v, nil
	}

	encoded, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %T: %w", v, err)
	}

	var input any
	if err := json.Unmarshal(encoded, &input); err != nil {
		return nil, err
	}
	return input, nil
}
