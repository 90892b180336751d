package config

import (
	"context"
	"fmt"
	"time"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

type CronDefinition struct {
	Name     string             `hcl:",label"`
	Timezone string             `hcl:"timezone,optional"`
	Disabled bool               `hcl:"disabled,optional"`
	At       []CronAtDefinition `hcl:"at,block"`
	DefRange hcl.Range          `hcl:",def_range"`
}

type CronAtDefinition struct {
	Schedule string         `hcl:"schedule,label"`
	Name     string         `hcl:"name,label"`
	Action   hcl.Expression `hcl:"action"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type CronBlockHandler struct {
	BlockHandlerBase
}

func NewCronBlockHandler() *CronBlockHandler {
	return &CronBlockHandler{}
}

func (h *CronBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	cronDef := CronDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &cronDef)
	if diags.HasErrors() {
		return diags
	}

	if cronDef.Disabled {
		return nil
	}

	cronDef.Name = block.Labels[0]

	if _, exists := config.Crons[cronDef.Name]; exists {
		return diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Cron already defined",
			Detail:   fmt.Sprintf("Cron %s is defined more than once", cronDef.Name),
			Subject:  &block.DefRange,
		})
	}

	cronObj, addDiags := h.BuildCron(config, block, &cronDef)
	diags = diags.Extend(addDiags)
	if diags.HasErrors() {
		return diags
	}

	config.Crons[cronDef.Name] = cronObj
	config.Startables = append(config.Startables, NewErrorlessStartable(cronObj))
	config.Stoppables = append(config.Stoppables, &cronStopper{cron: cronObj})

	return diags
}

func (h *CronBlockHandler) BuildCron(config *Config, block *hcl.Block, cronDef *CronDefinition) (*cron.Cron, hcl.Diagnostics) {
	cronParser := cron.NewParser(
		cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor,
	)

	if cronDef.Timezone == "" {
		cronDef.Timezone = "Local"
	}

	diags := hcl.Diagnostics{}

	location, err := time.LoadLocation(cronDef.Timezone)
	if err != nil {
		return nil, diags.Append(&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid timezone",
			Detail:   fmt.Sprintf("Invalid timezone: %s", cronDef.Timezone),
			Subject:  &block.DefRange,
		})
	}

	cronObj := cron.New(
		cron.WithLogger(NewZapCronLogger(config.Logger)),
		cron.WithParser(cronParser),
		cron.WithLocation(location),
	)

	for _, atBlock := range cronDef.At {
		atAction := &AtAction{
			config:   config,
			action:   atBlock.Action,
			cronName: cronDef.Name,
			atName:   atBlock.Name,
		}

		if _, err := cronObj.AddJob(atBlock.Schedule, atAction); err != nil {
			diags = diags.Append(&hcl.Diagnostic{
				Severity: hcl.DiagError,
				Summary:  "Invalid schedule",
				Detail:   fmt.Sprintf("Invalid schedule %q: %s", atBlock.Schedule, err),
				Subject:  &atBlock.DefRange,
			})
		}
	}

	return cronObj, diags
}

// AtAction evaluates one at block's action each time its schedule fires.
type AtAction struct {
	config   *Config
	action   hcl.Expression
	cronName string
	atName   string
}

func (a *AtAction) Run() {
	a.config.Logger.Debug("Executing action", zap.String("cron", a.cronName), zap.String("at", a.atName))

	evalCtx, err := NewContext(context.Background()).
		WithStringAttribute("cron_name", a.cronName).
		WithStringAttribute("at_name", a.atName).
		BuildEvalContext(a.config.evalCtx)
	if err != nil {
		a.config.Logger.Error("Error building evaluation context", zap.Error(err))
		return
	}

	value, diags := a.action.Value(evalCtx)
	if diags.HasErrors() {
		a.config.Logger.Error("Error executing action",
			zap.String("cron", a.cronName),
			zap.String("at", a.atName),
			zap.Error(diags))
		return
	}

	a.config.Logger.Debug("Action executed", zap.String("cron", a.cronName), zap.String("at", a.atName), zap.Any("result", value))
}

type cronStopper struct {
	cron *cron.Cron
}

// Stop stops scheduling and waits for running actions until ctx ends.
func (s *cronStopper) Stop(ctx context.Context) error {
	done := s.cron.Stop()
	select {
	case <-done.Done():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ZapCronLogger adapts a zap.Logger to the cron.Logger interface. Cron's
// info messages are logged at debug level.
type ZapCronLogger struct {
	logger *zap.Logger
}

func NewZapCronLogger(logger *zap.Logger) *ZapCronLogger {
	return &ZapCronLogger{logger: logger.With(zap.String("component", "cron"))}
}

func (z *ZapCronLogger) Info(msg string, keysAndValues ...interface{}) {
	z.logger.Debug(msg, keysAndValuesToFields(keysAndValues)...)
}

func (z *ZapCronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	z.logger.Error(msg, append(keysAndValuesToFields(keysAndValues), zap.Error(err))...)
}

func keysAndValuesToFields(keysAndValues []interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2+1)
	for i := 0; i < len(keysAndValues)-1; i += 2 {
		if key, ok := keysAndValues[i].(string); ok {
			fields = append(fields, zap.Any(key, keysAndValues[i+1]))
		}
	}
	return fields
}
