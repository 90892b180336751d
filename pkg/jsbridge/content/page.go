// Package content runs a JavaScript page inside an embedded goja runtime and
// gives it the content side of the bridge: window.JSBridge with call, emit,
// isInApp and onMessage, plus the host object whose postMessage carries
// text to the host.
//
// A Page owns a single event-loop goroutine. Every VM access happens on it;
// other goroutines hand it work through Execute, Load, Eval and Await.
package content

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
	"github.com/tsarna/jsbridge/pkg/jsbridge/correlator"
)

type Page struct {
	name   string
	vm     *goja.Runtime
	bridge *correlator.Correlator
	logger *zap.Logger
	global string

	jobs      chan func()
	done      chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once

	ready     chan struct{}
	readyOnce sync.Once

	// loop-owned
	installed bool
	window    *goja.Object
	listeners map[string][]goja.Value
	timers    map[int64]*time.Timer
	nextTimer int64
	onMessage goja.Value

	jsonStringify goja.Callable
	jsonParse     goja.Callable

	senderMu sync.RWMutex
	sender   jsbridge.Sender
}

func (p *Page) Name() string {
	return p.name
}

// Bridge returns the correlator behind window.JSBridge.call and emit. Go
// code may issue calls through it alongside the page's script.
func (p *Page) Bridge() *correlator.Correlator {
	return p.bridge
}

// Ready is closed once the bridge object has been installed and the ready
// event dispatched.
func (p *Page) Ready() <-chan struct{} {
	return p.ready
}

// SetSender binds or replaces the Outbound primitive. The host object is
// exposed on window only while a sender is bound.
func (p *Page) SetSender(sender jsbridge.Sender) error {
	p.senderMu.Lock()
	p.sender = sender
	p.senderMu.Unlock()

	p.bridge.SetSender(sender)

	return p.enqueue(func() {
		if err := p.exposeHostObject(); err != nil {
			p.logger.Warn("Failed to update host object", zap.Error(err))
		}
	})
}

func (p *Page) currentSender() jsbridge.Sender {
	p.senderMu.RLock()
	defer p.senderMu.RUnlock()
	return p.sender
}

// Execute runs source inside the page. It is the Inbound primitive: it only
// queues the script, and errors the script throws are logged.
func (p *Page) Execute(source string) error {
	return p.enqueue(func() {
		if _, err := p.vm.RunString(source); err != nil {
			p.logger.Warn("Injected script failed", zap.Error(err))
		}
	})
}

// Load runs page script and waits for it to finish. A page built with
// WithInstallAfterLoad gets its bridge object once the script has run, even
// when the script threw.
func (p *Page) Load(ctx context.Context, source string) error {
	return p.do(ctx, func() error {
		_, err := p.vm.RunString(source)
		if installErr := p.install(); installErr != nil && err == nil {
			err = installErr
		}
		return err
	})
}

// Install installs the bridge object now. Installing again is a no-op.
func (p *Page) Install(ctx context.Context) error {
	return p.do(ctx, p.install)
}

// Eval evaluates source and returns the exported result.
func (p *Page) Eval(ctx context.Context, source string) (any, error) {
	var result any
	err := p.do(ctx, func() error {
		v, err := p.vm.RunString(source)
		if err != nil {
			return err
		}
		result = export(v)
		return nil
	})
	return result, err
}

type settlement struct {
	value any
	err   error
}

// Await evaluates source and, when it yields a promise, waits until the
// promise settles. A rejection is returned as a *ScriptError.
func (p *Page) Await(ctx context.Context, source string) (any, error) {
	settled := make(chan settlement, 1)

	err := p.do(ctx, func() error {
		v, err := p.vm.RunString(source)
		if err != nil {
			return err
		}

		promise, ok := v.Export().(*goja.Promise)
		if !ok {
			settled <- settlement{value: export(v)}
			return nil
		}

		switch promise.State() {
		case goja.PromiseStateFulfilled:
			settled <- settlement{value: export(promise.Result())}
			return nil
		case goja.PromiseStateRejected:
			settled <- settlement{err: p.scriptError(promise.Result())}
			return nil
		}

		then, ok := goja.AssertFunction(v.ToObject(p.vm).Get("then"))
		if !ok {
			return errors.New("promise has no then method")
		}
		onFulfilled := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			settled <- settlement{value: export(call.Argument(0))}
			return goja.Undefined()
		})
		onRejected := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
			settled <- settlement{err: p.scriptError(call.Argument(0))}
			return goja.Undefined()
		})
		_, err = then(v, onFulfilled, onRejected)
		return err
	})
	if err != nil {
		return nil, err
	}

	select {
	case s := <-settled:
		return s.value, s.err
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-p.done:
		return nil, jsbridge.ErrClosed
	}
}

// Close interrupts any running script, stops the event loop and rejects
// every pending call.
func (p *Page) Close() {
	p.closeOnce.Do(func() {
		close(p.done)
		p.vm.Interrupt("page closed")
		p.wg.Wait()

		for _, timer := range p.timers {
			timer.Stop()
		}
		p.bridge.Close()
		p.logger.Debug("Page closed")
	})
}

func (p *Page) loop() {
	defer p.wg.Done()

	for {
		select {
		case job := <-p.jobs:
			// An interrupt aimed at an earlier job must not leak into this one.
			p.vm.ClearInterrupt()
			job()
		case <-p.done:
			return
		}
	}
}

func (p *Page) enqueue(job func()) error {
	select {
	case <-p.done:
		return jsbridge.ErrClosed
	default:
	}

	select {
	case p.jobs <- job:
		return nil
	case <-p.done:
		return jsbridge.ErrClosed
	}
}

const (
	jobQueued = iota
	jobRunning
	jobFinished
	jobAbandoned
)

// do runs fn on the loop and waits for it. When ctx ends first a job that
// has not started is skipped and a running one is interrupted.
func (p *Page) do(ctx context.Context, fn func() error) error {
	result := make(chan error, 1)
	var mu sync.Mutex
	state := jobQueued

	err := p.enqueue(func() {
		mu.Lock()
		if state == jobAbandoned {
			mu.Unlock()
			return
		}
		state = jobRunning
		mu.Unlock()

		err := fn()

		mu.Lock()
		state = jobFinished
		mu.Unlock()

		result <- err
	})
	if err != nil {
		return err
	}

	select {
	case err := <-result:
		return err
	case <-ctx.Done():
		mu.Lock()
		switch state {
		case jobQueued:
			state = jobAbandoned
		case jobRunning:
			p.vm.Interrupt(ctx.Err())
		}
		mu.Unlock()
		return ctx.Err()
	case <-p.done:
		return jsbridge.ErrClosed
	}
}

// run calls a JavaScript function from Go code already on the loop and logs
// what it throws.
func (p *Page) run(what string, fn goja.Value, this goja.Value, args ...goja.Value) {
	callable, ok := goja.AssertFunction(fn)
	if !ok {
		return
	}
	if _, err := callable(this, args...); err != nil {
		p.logger.Warn("Script callback failed", zap.String("callback", what), zap.Error(err))
	}
}

func export(v goja.Value) any {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return nil
	}
	return v.Export()
}
