package content

import (
	"errors"
	"strings"
	"time"

	"github.com/dop251/goja"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

const eventConstructor = `(function (global) {
	function Event(type, init) {
		this.type = String(type);
		this.detail = init && init.detail !== undefined ? init.detail : null;
	}
	global.Event = Event;
	global.CustomEvent = Event;
})(this);`

// setupGlobals builds the window the page sees. It runs before the loop
// starts.
func (p *Page) setupGlobals() error {
	p.window = p.vm.GlobalObject()

	for _, name := range []string{"require", "process", "module", "exports"} {
		p.window.Delete(name)
	}

	if err := p.window.Set("window", p.window); err != nil {
		return err
	}
	if err := p.window.Set("self", p.window); err != nil {
		return err
	}

	jsonObj := p.window.Get("JSON").ToObject(p.vm)
	var ok bool
	if p.jsonStringify, ok = goja.AssertFunction(jsonObj.Get("stringify")); !ok {
		return errors.New("JSON.stringify is not callable")
	}
	if p.jsonParse, ok = goja.AssertFunction(jsonObj.Get("parse")); !ok {
		return errors.New("JSON.parse is not callable")
	}

	console := p.vm.NewObject()
	for name, level := range map[string]zapcore.Level{
		"log":   zapcore.InfoLevel,
		"info":  zapcore.InfoLevel,
		"debug": zapcore.DebugLevel,
		"warn":  zapcore.WarnLevel,
		"error": zapcore.ErrorLevel,
	} {
		if err := console.Set(name, p.consoleFunc(level)); err != nil {
			return err
		}
	}
	if err := p.window.Set("console", console); err != nil {
		return err
	}

	globals := map[string]func(goja.FunctionCall) goja.Value{
		"setTimeout":          p.jsSetTimeout,
		"clearTimeout":        p.jsClearTimeout,
		"addEventListener":    p.jsAddEventListener,
		"removeEventListener": p.jsRemoveEventListener,
		"dispatchEvent":       p.jsDispatchEvent,
	}
	for name, fn := range globals {
		if err := p.window.Set(name, fn); err != nil {
			return err
		}
	}

	if _, err := p.vm.RunString(eventConstructor); err != nil {
		return err
	}

	return p.exposeHostObject()
}

// exposeHostObject adds window.ReactNativeWebView while a sender is bound
// and removes it otherwise.
func (p *Page) exposeHostObject() error {
	if p.currentSender() == nil {
		p.window.Delete(jsbridge.HostObjectName)
		return nil
	}

	host := p.vm.NewObject()
	if err := host.Set("postMessage", p.jsPostMessage); err != nil {
		return err
	}
	return p.window.Set(jsbridge.HostObjectName, host)
}

func (p *Page) jsPostMessage(call goja.FunctionCall) goja.Value {
	sender := p.currentSender()
	if sender == nil {
		panic(p.newError(jsbridge.ErrTransportUnavailable))
	}

	if err := sender.Send(call.Argument(0).String()); err != nil {
		panic(p.newError(err))
	}
	return goja.Undefined()
}

func (p *Page) consoleFunc(level zapcore.Level) func(goja.FunctionCall) goja.Value {
	return func(call goja.FunctionCall) goja.Value {
		parts := make([]string, 0, len(call.Arguments))
		for _, arg := range call.Arguments {
			if obj, ok := arg.(*goja.Object); ok && obj.ClassName() != "Error" {
				if raw, err := p.stringify(obj); err == nil && raw != nil {
					parts = append(parts, string(raw))
					continue
				}
			}
			parts = append(parts, arg.String())
		}

		p.logger.Log(level, strings.Join(parts, " "), zap.String("source", "console"))
		return goja.Undefined()
	}
}

func (p *Page) jsSetTimeout(call goja.FunctionCall) goja.Value {
	fn := call.Argument(0)
	if _, ok := goja.AssertFunction(fn); !ok {
		panic(p.vm.NewTypeError("setTimeout callback is not a function"))
	}

	delay := time.Duration(call.Argument(1).ToInteger()) * time.Millisecond
	if delay < 0 {
		delay = 0
	}

	var args []goja.Value
	if len(call.Arguments) > 2 {
		args = append(args, call.Arguments[2:]...)
	}

	p.nextTimer++
	id := p.nextTimer
	p.timers[id] = time.AfterFunc(delay, func() {
		p.enqueue(func() {
			if _, pending := p.timers[id]; !pending {
				return
			}
			delete(p.timers, id)
			p.run("setTimeout", fn, goja.Undefined(), args...)
		})
	})

	return p.vm.ToValue(id)
}

func (p *Page) jsClearTimeout(call goja.FunctionCall) goja.Value {
	id := call.Argument(0).ToInteger()
	if timer, ok := p.timers[id]; ok {
		timer.Stop()
		delete(p.timers, id)
	}
	return goja.Undefined()
}

func (p *Page) jsAddEventListener(call goja.FunctionCall) goja.Value {
	eventType := argString(call.Argument(0))
	fn := call.Argument(1)
	if _, ok := goja.AssertFunction(fn); !ok || eventType == "" {
		return goja.Undefined()
	}

	for _, existing := range p.listeners[eventType] {
		if existing.SameAs(fn) {
			return goja.Undefined()
		}
	}
	p.listeners[eventType] = append(p.listeners[eventType], fn)
	return goja.Undefined()
}

func (p *Page) jsRemoveEventListener(call goja.FunctionCall) goja.Value {
	eventType := argString(call.Argument(0))
	fn := call.Argument(1)

	listeners := p.listeners[eventType]
	for i, existing := range listeners {
		if existing.SameAs(fn) {
			p.listeners[eventType] = append(listeners[:i:i], listeners[i+1:]...)
			break
		}
	}
	return goja.Undefined()
}

func (p *Page) jsDispatchEvent(call goja.FunctionCall) goja.Value {
	event, ok := call.Argument(0).(*goja.Object)
	if !ok {
		panic(p.vm.NewTypeError("dispatchEvent requires an event object"))
	}
	p.dispatchEvent(event)
	return p.vm.ToValue(true)
}

func (p *Page) newEvent(eventType string) *goja.Object {
	event, err := p.vm.New(p.window.Get("Event"), p.vm.ToValue(eventType))
	if err != nil {
		event = p.vm.NewObject()
		event.Set("type", eventType)
	}
	return event
}

func (p *Page) dispatchEvent(event *goja.Object) {
	eventType := argString(event.Get("type"))

	// A listener may add or remove listeners while the event is dispatched.
	listeners := append([]goja.Value(nil), p.listeners[eventType]...)
	for _, fn := range listeners {
		p.run(eventType, fn, p.window, event)
	}
}
