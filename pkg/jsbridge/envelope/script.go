package envelope

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Literal turns a JSON value into text that can be embedded verbatim as an
// expression in JavaScript source. The value is validated and compacted, and
// <, >, &, U+2028 and U+2029 are escaped so the literal can neither close a
// surrounding script element nor break a line inside a string. An empty
// value becomes null.
func Literal(raw json.RawMessage) (string, error) {
	if len(raw) == 0 {
		return "null", nil
	}
	if !json.Valid(raw) {
		return "", errors.New("value is not valid JSON")
	}

	var compact bytes.Buffer
	if err := json.Compact(&compact, raw); err != nil {
		return "", err
	}

	var escaped bytes.Buffer
	json.HTMLEscape(&escaped, compact.Bytes())

	return escaped.String(), nil
}

// StringLiteral returns s as a quoted, escaped JavaScript string literal.
func StringLiteral(s string) string {
	// json.Marshal of a string cannot fail.
	b, _ := json.Marshal(s)
	return string(b)
}

// CallbackScript builds the script that settles pending call id inside the
// content context. A non-nil errMsg rejects the call with that message,
// otherwise it resolves with result.
func CallbackScript(global string, id uint64, errMsg *string, result json.RawMessage) (string, error) {
	errLiteral := "null"
	resultLiteral := "null"

	if errMsg != nil {
		errLiteral = StringLiteral(*errMsg)
	} else {
		lit, err := Literal(result)
		if err != nil {
			return "", fmt.Errorf("failed to encode result: %w", err)
		}
		resultLiteral = lit
	}

	return buildScript(global, "_callback", strconv.FormatUint(id, 10), errLiteral, resultLiteral)
}

// ReceiveScript builds the script that delivers an event to the content
// context's onMessage subscriber.
func ReceiveScript(global string, eventType string, data json.RawMessage) (string, error) {
	if eventType == "" {
		return "", errors.New("event type must not be empty")
	}

	dataLiteral, err := Literal(data)
	if err != nil {
		return "", fmt.Errorf("failed to encode event data: %w", err)
	}

	return buildScript(global, "_receive", StringLiteral(eventType), dataLiteral)
}

func buildScript(global, method string, args ...string) (string, error) {
	if !isIdentifier(global) {
		return "", fmt.Errorf("invalid bridge global name %q", global)
	}

	var sb strings.Builder
	sb.WriteString("window.")
	sb.WriteString(global)
	sb.WriteByte('.')
	sb.WriteString(method)
	sb.WriteByte('(')
	sb.WriteString(strings.Join(args, ","))
	sb.WriteString(");true;")

	return sb.String(), nil
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, r := range s {
		switch {
		case r == '_' || r == '$':
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z':
		case i > 0 && r >= '0' && r <= '9':
		default:
			return false
		}
	}
	return true
}
