package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/sosodev/duration"
	"github.com/zclconf/go-cty/cty"
)

// IsExpressionProvided checks if an optional HCL expression was actually
// written. HCL supplies a zero-length expression for absent attributes.
func IsExpressionProvided(expr hcl.Expression) bool {
	return expr != nil && expr.Range().End.Byte > expr.Range().Start.Byte
}

// ParseDuration evaluates a duration expression. It accepts a number of
// seconds, an ISO 8601 duration ("PT5S") or a Go duration string ("5s").
func (c *Config) ParseDuration(expr hcl.Expression) (time.Duration, hcl.Diagnostics) {
	val, diags := expr.Value(c.evalCtx)
	if diags.HasErrors() {
		return 0, diags
	}

	d, err := durationFromValue(val)
	if err != nil {
		return 0, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid duration",
			Detail:   err.Error(),
			Subject:  expr.Range().Ptr(),
		})
	}

	return d, diags
}

func durationFromValue(val cty.Value) (time.Duration, error) {
	if val.IsNull() || !val.IsKnown() {
		return 0, fmt.Errorf("duration must not be null")
	}

	var d time.Duration

	switch val.Type() {
	case cty.Number:
		seconds, _ := val.AsBigFloat().Float64()
		d = time.Duration(seconds * float64(time.Second))

	case cty.String:
		str := strings.TrimSpace(val.AsString())

		if strings.HasPrefix(str, "P") {
			iso, err := duration.Parse(str)
			if err != nil {
				return 0, fmt.Errorf("failed to parse ISO 8601 duration '%s': %v", str, err)
			}
			d = iso.ToTimeDuration()
		} else {
			var err error
			d, err = time.ParseDuration(str)
			if err != nil {
				return 0, fmt.Errorf("failed to parse duration '%s': %v. Expected a number (seconds), ISO 8601 duration (e.g., 'PT5M'), or Go duration (e.g., '5m')", str, err)
			}
		}

	default:
		return 0, fmt.Errorf("duration must be a number (seconds) or string, got %s", val.Type().FriendlyName())
	}

	if d < 0 {
		return 0, fmt.Errorf("duration must be positive")
	}
	return d, nil
}

// IsConstantExpression returns the expression's value if it can be
// evaluated without any variables or functions.
func IsConstantExpression(expr hcl.Expression) (cty.Value, bool) {
	val, diags := expr.Value(nil)
	if diags.HasErrors() {
		return cty.NilVal, false
	}

	return val, true
}
