// Package jsbridge defines the seams shared by both halves of a bridge between
// a sandboxed content context and the host that embeds it.
//
// The content side sends text to the host through a Sender. The host reaches
// back into the content context by handing executable source to an Executor.
// The correlator, dispatcher and content packages build request/response
// correlation, handler dispatch and the content-side SDK on top of these two
// primitives.
package jsbridge

import "time"

// Version is reported to metrics and tracing backends.
const Version = "0.3.0"

const (
	// DefaultTimeout is how long a call waits for its correlated response.
	DefaultTimeout = 30 * time.Second

	// GlobalName is the content-side bridge object, installed as window.JSBridge.
	GlobalName = "JSBridge"

	// HostObjectName is the content-side object through which the host is
	// reached. Its postMessage(text) method is the Outbound primitive.
	HostObjectName = "ReactNativeWebView"

	// ReadyEvent is dispatched on window once the bridge object is installed.
	ReadyEvent = "JSBridgeReady"
)

// Sender is the Outbound primitive: content context to host. It carries one
// opaque string with no return value and no delivery confirmation.
// Implementations return ErrTransportUnavailable when the host is unreachable.
type Sender interface {
	Send(text string) error
}

// Executor is the Inbound primitive: host to content context. The source is
// run inside the content context. Execute is fire-and-forget.
type Executor interface {
	Execute(source string) error
}

// Connectivity is implemented by senders that can report whether the other
// side is currently reachable without attempting a send.
type Connectivity interface {
	Connected() bool
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(text string) error

func (f SenderFunc) Send(text string) error {
	return f(text)
}

// ExecutorFunc adapts a function to the Executor interface.
type ExecutorFunc func(source string) error

func (f ExecutorFunc) Execute(source string) error {
	return f(source)
}

// IsConnected reports whether sender can currently reach the other side.
// A nil sender is never connected; a sender without Connectivity is assumed
// reachable.
func IsConnected(sender Sender) bool {
	if sender == nil {
		return false
	}
	if c, ok := sender.(Connectivity); ok {
		return c.Connected()
	}
	return true
}
