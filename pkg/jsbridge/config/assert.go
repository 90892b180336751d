package config

import (
	"fmt"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"go.uber.org/zap"
)

// The assert block checks a condition while the configuration is processed.
// It is mainly intended for testing configurations.
type Assert struct {
	Name      string `hcl:"name,label"`
	Condition bool   `hcl:"condition"`
}

type AssertBlockHandler struct {
	BlockHandlerBase
}

func NewAssertBlockHandler() *AssertBlockHandler {
	return &AssertBlockHandler{}
}

func (h *AssertBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	assertion := Assert{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &assertion)
	if diags.HasErrors() {
		return diags
	}

	assertion.Name = block.Labels[0]

	if !assertion.Condition {
		config.Logger.Error("Assertion failed", zap.String("assert", assertion.Name), zap.Stringer("location", block.DefRange))

		return hcl.Diagnostics{
			&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Assertion failed",
				Detail:   fmt.Sprintf("Assertion %s failed", assertion.Name),
				Subject:  &block.DefRange,
			},
		}
	}

	return nil
}
