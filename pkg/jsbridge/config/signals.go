package config

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/zclconf/go-cty/cty"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge/config/platform"
)

type SignalsDefinition struct {
	SigHup   hcl.Expression `hcl:"SIGHUP,optional"`
	SigInfo  hcl.Expression `hcl:"SIGINFO,optional"`
	SigUsr1  hcl.Expression `hcl:"SIGUSR1,optional"`
	SigUsr2  hcl.Expression `hcl:"SIGUSR2,optional"`
	DefRange hcl.Range      `hcl:",def_range"`
}

type SignalsBlockHandler struct {
	BlockHandlerBase
}

func NewSignalsBlockHandler() *SignalsBlockHandler {
	return &SignalsBlockHandler{}
}

// SignalActionHandler evaluates the configured action when one of its
// signals arrives. Actions run concurrently, each on its own goroutine.
type SignalActionHandler struct {
	Logger        *zap.Logger
	SignalActions map[platform.Signal]hcl.Expression

	evalCtx    *hcl.EvalContext
	ctx        context.Context
	cancel     context.CancelFunc
	sigChannel chan os.Signal
	wg         sync.WaitGroup
}

func NewSignalActionHandler(logger *zap.Logger, evalCtx *hcl.EvalContext) *SignalActionHandler {
	ctx, cancel := context.WithCancel(context.Background())
	return &SignalActionHandler{
		Logger:        logger,
		SignalActions: make(map[platform.Signal]hcl.Expression),
		evalCtx:       evalCtx,
		ctx:           ctx,
		cancel:        cancel,
		sigChannel:    make(chan os.Signal, 16),
	}
}

func (h *SignalsBlockHandler) Process(config *Config, block *hcl.Block) hcl.Diagnostics {
	signalsDef := SignalsDefinition{}
	diags := gohcl.DecodeBody(block.Body, config.evalCtx, &signalsDef)
	if diags.HasErrors() {
		return diags
	}

	diags = diags.Extend(config.SetSignalAction("SIGHUP", signalsDef.SigHup))
	diags = diags.Extend(config.SetSignalAction("SIGINFO", signalsDef.SigInfo))
	diags = diags.Extend(config.SetSignalAction("SIGUSR1", signalsDef.SigUsr1))
	diags = diags.Extend(config.SetSignalAction("SIGUSR2", signalsDef.SigUsr2))

	return diags
}

func (config *Config) SetSignalAction(sigName string, action hcl.Expression) hcl.Diagnostics {
	if !IsExpressionProvided(action) {
		return nil
	}

	signalNum := platform.SignalNum(sigName)
	if signalNum == 0 {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Invalid signal name",
			Detail:   fmt.Sprintf("Signal %s is not available on this platform", sigName),
			Subject:  action.Range().Ptr(),
		}}
	}

	if config.SigActions == nil {
		config.SigActions = NewSignalActionHandler(config.Logger, config.evalCtx)
		config.Startables = append(config.Startables, config.SigActions)
		config.Stoppables = append(config.Stoppables, config.SigActions)
	}

	if _, ok := config.SigActions.SignalActions[signalNum]; ok {
		return hcl.Diagnostics{&hcl.Diagnostic{
			Severity: hcl.DiagError,
			Summary:  "Signal already defined",
			Detail:   fmt.Sprintf("Signal %s already defined", sigName),
			Subject:  action.Range().Ptr(),
		}}
	}

	config.SigActions.SignalActions[signalNum] = action
	return nil
}

func (sa *SignalActionHandler) Start() error {
	for sig := range sa.SignalActions {
		signal.Notify(sa.sigChannel, sig)
	}

	go func() {
		sa.Logger.Debug("Signal notification goroutine started")

		for {
			select {
			case sig := <-sa.sigChannel:
				sa.wg.Add(1)
				go func() {
					defer sa.wg.Done()
					sa.run(sig)
				}()
			case <-sa.ctx.Done():
				return
			}
		}
	}()

	return nil
}

// Run evaluates the action for sig as if the signal had been received.
func (sa *SignalActionHandler) Run(sig platform.Signal) error {
	action, ok := sa.SignalActions[sig]
	if !ok {
		return fmt.Errorf("no action for signal %s", platform.SignalName(sig))
	}

	evalCtx, err := NewContext(sa.ctx).
		WithStringAttribute("signal", platform.SignalName(sig)).
		WithAttribute("signal_num", cty.NumberIntVal(int64(sig))).
		BuildEvalContext(sa.evalCtx)
	if err != nil {
		return err
	}

	result, diags := action.Value(evalCtx)
	if diags.HasErrors() {
		return diags
	}

	sa.Logger.Debug("Signal action executed", zap.String("signal", platform.SignalName(sig)), zap.Any("result", result))
	return nil
}

func (sa *SignalActionHandler) run(sig os.Signal) {
	platformSig := platform.FromOsSignal(sig)
	if platformSig == 0 {
		sa.Logger.Error("Invalid signal", zap.String("signal", sig.String()))
		return
	}

	if err := sa.Run(platformSig); err != nil {
		sa.Logger.Error("Error executing signal action", zap.String("signal", platformSig.String()), zap.Error(err))
	}
}

// Stop stops listening for signals and waits for running actions until ctx
// ends.
func (sa *SignalActionHandler) Stop(ctx context.Context) error {
	signal.Stop(sa.sigChannel)
	sa.cancel()

	done := make(chan struct{})
	go func() {
		sa.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
