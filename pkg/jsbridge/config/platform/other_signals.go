//go:build !unix

package platform

import (
	"os"
	"syscall"
)

type Signal = syscall.Signal

// SignalNum always returns 0: configurable signal actions are only
// supported on unix platforms.
func SignalNum(name string) Signal {
	return 0
}

func SignalName(sig Signal) string {
	return sig.String()
}

func FromOsSignal(sig os.Signal) Signal {
	if s, ok := sig.(syscall.Signal); ok {
		return s
	}
	return 0
}
