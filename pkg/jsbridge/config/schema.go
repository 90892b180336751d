package config

import (
	"github.com/hashicorp/hcl/v2"
)

var blockSchema = []hcl.BlockHeaderSchema{
	{
		Type:       "assert",
		LabelNames: []string{"name"},
	},
	{
		Type:       "bridge",
		LabelNames: []string{},
	},
	{
		Type:       "const",
		LabelNames: []string{},
	},
	{
		Type:       "cron",
		LabelNames: []string{"name"},
	},
	{
		Type:       "handler",
		LabelNames: []string{"type"},
	},
	{
		Type:       "server",
		LabelNames: []string{"type", "name"},
	},
	{
		Type:       "signals",
		LabelNames: []string{},
	},
	{
		Type:       "subscription",
		LabelNames: []string{"name"},
	},
}

var configSchema = &hcl.BodySchema{
	Blocks: blockSchema,
}
