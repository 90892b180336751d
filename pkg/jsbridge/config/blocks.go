package config

import "github.com/hashicorp/hcl/v2"

// BlockHandler processes one top-level block type. Preprocess sees every
// block of its type before any is processed; FinishPreprocessing and
// FinishProcessing run once per type, in blockOrder.
type BlockHandler interface {
	Preprocess(block *hcl.Block) hcl.Diagnostics
	FinishPreprocessing(config *Config) hcl.Diagnostics
	Process(config *Config, block *hcl.Block) hcl.Diagnostics
	FinishProcessing(config *Config) hcl.Diagnostics
}

type BlockHandlerBase struct {
}

func (b *BlockHandlerBase) Preprocess(block *hcl.Block) hcl.Diagnostics {
	return nil
}

func (b *BlockHandlerBase) FinishPreprocessing(config *Config) hcl.Diagnostics {
	return nil
}

func (b *BlockHandlerBase) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	return nil
}

func (b *BlockHandlerBase) FinishProcessing(config *Config) hcl.Diagnostics {
	return nil
}

// blockOrder is the order block types are finished and processed in.
// Constants come first so every other block can use them, and the bridge
// block creates the registry, bus and metrics the rest attach to.
var blockOrder = []string{
	"const",
	"bridge",
	"assert",
	"handler",
	"subscription",
	"server",
	"cron",
	"signals",
}

func GetBlockHandlers() map[string]BlockHandler {
	return map[string]BlockHandler{
		"assert":       NewAssertBlockHandler(),
		"bridge":       NewBridgeBlockHandler(),
		"const":        NewConstBlockHandler(),
		"cron":         NewCronBlockHandler(),
		"handler":      NewHandlerBlockHandler(),
		"server":       NewServerBlockHandler(),
		"signals":      NewSignalsBlockHandler(),
		"subscription": NewSubscriptionBlockHandler(),
	}
}
