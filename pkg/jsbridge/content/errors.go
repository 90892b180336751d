package content

import (
	"github.com/dop251/goja"

	"github.com/tsarna/jsbridge/pkg/jsbridge"
)

// ScriptError is a value thrown or rejected by page script. Rejections of
// bridge calls unwrap to the matching jsbridge error.
type ScriptError struct {
	Name    string
	Message string
	cause   error
}

func (e *ScriptError) Error() string {
	if e.Name == "" || e.Name == "Error" {
		return e.Message
	}
	return e.Name + ": " + e.Message
}

func (e *ScriptError) Unwrap() error {
	return e.cause
}

func (p *Page) scriptError(v goja.Value) error {
	se := &ScriptError{}

	if obj, ok := v.(*goja.Object); ok {
		if name := obj.Get("name"); name != nil && !goja.IsUndefined(name) {
			se.Name = name.String()
		}
		if msg := obj.Get("message"); msg != nil && !goja.IsUndefined(msg) {
			se.Message = msg.String()
		} else {
			se.Message = obj.String()
		}
	} else if v != nil {
		se.Message = v.String()
	}

	switch se.Name {
	case ErrorNameRemote:
		se.cause = &jsbridge.RemoteError{Message: se.Message}
	case ErrorNameTimeout:
		se.cause = jsbridge.ErrCallTimeout
	case ErrorNameUnavailable:
		se.cause = jsbridge.ErrTransportUnavailable
	case ErrorNameClosed:
		se.cause = jsbridge.ErrClosed
	}

	return se
}
