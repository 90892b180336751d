package jsbridge

import (
	"errors"
	"fmt"
)

var (
	// ErrTransportUnavailable is returned when the host bridge is not present.
	// A call failing this way never allocated an id and never sent anything.
	ErrTransportUnavailable = errors.New("bridge transport unavailable")

	// ErrCallTimeout is returned when no correlated response arrived in time.
	// The request on the other side is not cancelled; a late response is
	// discarded. A request for a type with no registered handler ends this way.
	ErrCallTimeout = errors.New("bridge call timeout")

	// ErrClosed is returned for calls pending when, or issued after, the
	// bridge was closed.
	ErrClosed = errors.New("bridge closed")
)

// RemoteError reports that the handler on the other side failed. Only the
// human-readable message crosses the boundary.
type RemoteError struct {
	Message string
}

func (e *RemoteError) Error() string {
	return e.Message
}

// DecodeError reports malformed or non-conforming incoming text.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("decode envelope: %s: %v", e.Reason, e.Err)
	}
	return "decode envelope: " + e.Reason
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// IsRemoteError reports whether err is a RemoteError and returns its message.
func IsRemoteError(err error) (string, bool) {
	var remote *RemoteError
	if errors.As(err, &remote) {
		return remote.Message, true
	}
	return "", false
}
