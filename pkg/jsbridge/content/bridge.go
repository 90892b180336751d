package content

import (
	"encoding/json"
	"errors"

	"github.com/dop251/goja"
	"go.uber.org/zap"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

// install creates window.<global> and dispatches the ready event. It must
// run on the loop (or before the loop starts).
func (p *Page) install() error {
	if existing := p.window.Get(p.global); existing != nil && !goja.IsUndefined(existing) && !goja.IsNull(existing) {
		p.logger.Debug("Bridge object already present, skipping install", zap.String("global", p.global))
		return nil
	}

	obj := p.vm.NewObject()
	methods := map[string]func(goja.FunctionCall) goja.Value{
		"call":      p.jsCall,
		"emit":      p.jsEmit,
		"isInApp":   p.jsIsInApp,
		"_callback": p.jsCallback,
		"_receive":  p.jsReceive,
	}
	for name, fn := range methods {
		if err := obj.Set(name, fn); err != nil {
			return err
		}
	}

	getter := p.vm.ToValue(func(goja.FunctionCall) goja.Value {
		if p.onMessage == nil {
			return goja.Null()
		}
		return p.onMessage
	})
	setter := p.vm.ToValue(func(call goja.FunctionCall) goja.Value {
		p.setOnMessage(call.Argument(0))
		return goja.Undefined()
	})
	if err := obj.DefineAccessorProperty("onMessage", getter, setter, goja.FLAG_FALSE, goja.FLAG_TRUE); err != nil {
		return err
	}

	if err := p.window.Set(p.global, obj); err != nil {
		return err
	}
	p.installed = true
	p.logger.Debug("Bridge object installed", zap.String("global", p.global))

	p.readyOnce.Do(func() {
		p.dispatchEvent(p.newEvent(jsbridge.ReadyEvent))
		close(p.ready)
	})
	return nil
}

func (p *Page) setOnMessage(fn goja.Value) {
	if _, ok := goja.AssertFunction(fn); !ok {
		p.onMessage = nil
		p.bridge.SetOnMessage(nil)
		return
	}

	p.onMessage = fn
	p.bridge.SetOnMessage(p.deliverToScript)
}

// deliverToScript is the correlator's subscriber while a script has set
// onMessage. Receive reaches it from _receive, which runs on the loop.
func (p *Page) deliverToScript(eventType string, data json.RawMessage) {
	if p.onMessage == nil {
		return
	}

	value, err := p.parse(data)
	if err != nil {
		p.logger.Warn("Dropping notification with unparseable data", zap.String("type", eventType), zap.Error(err))
		return
	}
	p.run("onMessage", p.onMessage, p.window.Get(p.global), p.vm.ToValue(eventType), value)
}

func (p *Page) jsCall(call goja.FunctionCall) goja.Value {
	promise, resolve, reject := p.vm.NewPromise()

	data, err := p.stringify(call.Argument(1))
	if err != nil {
		reject(p.newError(err))
		return p.vm.ToValue(promise)
	}

	future := p.bridge.Go(argString(call.Argument(0)), data)

	go func() {
		result, err := future.Result()
		enqueueErr := p.enqueue(func() {
			if err != nil {
				reject(p.newError(err))
				return
			}
			value, err := p.parse(result)
			if err != nil {
				reject(p.newError(err))
				return
			}
			resolve(value)
		})
		if enqueueErr != nil {
			p.logger.Debug("Page closed before call settled", zap.Uint64("id", future.ID()))
		}
	}()

	return p.vm.ToValue(promise)
}

func (p *Page) jsEmit(call goja.FunctionCall) goja.Value {
	eventType := argString(call.Argument(0))

	data, err := p.stringify(call.Argument(1))
	if err != nil {
		p.logger.Warn("Dropping event with unserializable data", zap.String("type", eventType), zap.Error(err))
		return goja.Undefined()
	}

	p.bridge.Emit(eventType, data)
	return goja.Undefined()
}

func (p *Page) jsIsInApp(goja.FunctionCall) goja.Value {
	return p.vm.ToValue(p.bridge.IsConnected())
}

func (p *Page) jsCallback(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if id <= 0 {
		p.logger.Debug("Ignoring callback with invalid id", zap.Int64("id", id))
		return goja.Undefined()
	}

	var errMsg *string
	if e := call.Argument(1); !goja.IsUndefined(e) && !goja.IsNull(e) {
		msg := e.String()
		errMsg = &msg
	}

	var result json.RawMessage
	if errMsg == nil {
		var err error
		result, err = p.stringify(call.Argument(2))
		if err != nil {
			msg := err.Error()
			errMsg = &msg
		}
	}

	p.bridge.Resolve(uint64(id), errMsg, result)
	return goja.Undefined()
}

func (p *Page) jsReceive(call goja.FunctionCall) goja.Value {
	eventType := argString(call.Argument(0))

	data, err := p.stringify(call.Argument(1))
	if err != nil {
		p.logger.Warn("Dropping notification with unserializable data", zap.String("type", eventType), zap.Error(err))
		return goja.Undefined()
	}

	p.bridge.Receive(eventType, data)
	return goja.Undefined()
}

// stringify converts a script value to JSON. undefined becomes an absent
// payload.
func (p *Page) stringify(v goja.Value) (json.RawMessage, error) {
	if v == nil || goja.IsUndefined(v) {
		return nil, nil
	}

	out, err := p.jsonStringify(goja.Undefined(), v)
	if err != nil {
		return nil, err
	}
	if goja.IsUndefined(out) {
		// functions and symbols have no JSON form
		return nil, nil
	}
	return json.RawMessage(out.String()), nil
}

func (p *Page) parse(raw json.RawMessage) (goja.Value, error) {
	if len(raw) == 0 {
		return goja.Null(), nil
	}
	return p.jsonParse(goja.Undefined(), p.vm.ToValue(string(raw)))
}

// Names given to the script-side Error objects that reject calls.
const (
	ErrorNameRemote      = "RemoteError"
	ErrorNameTimeout     = "CallTimeout"
	ErrorNameUnavailable = "TransportUnavailable"
	ErrorNameClosed      = "BridgeClosed"
)

func (p *Page) newError(err error) goja.Value {
	name := "Error"
	msg := err.Error()

	if remote, ok := jsbridge.IsRemoteError(err); ok {
		name = ErrorNameRemote
		msg = remote
	} else if errors.Is(err, jsbridge.ErrCallTimeout) {
		name = ErrorNameTimeout
	} else if errors.Is(err, jsbridge.ErrTransportUnavailable) {
		name = ErrorNameUnavailable
	} else if errors.Is(err, jsbridge.ErrClosed) {
		name = ErrorNameClosed
	}

	obj, ctorErr := p.vm.New(p.vm.Get("Error"), p.vm.ToValue(msg))
	if ctorErr != nil {
		return p.vm.NewGoError(err)
	}
	obj.Set("name", name)
	return obj
}

func argString(v goja.Value) string {
	if v == nil || goja.IsUndefined(v) || goja.IsNull(v) {
		return ""
	}
	return v.String()
}
