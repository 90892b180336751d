//go:build unix

// Package platform maps signal names used in configuration to the host's
// signal numbers.
package platform

import (
	"os"
	"syscall"

	"golang.org/x/sys/unix"
)

type Signal = unix.Signal

// SignalNum returns the signal named name, such as "SIGHUP", or 0 if the
// platform has no such signal.
func SignalNum(name string) Signal {
	return unix.SignalNum(name)
}

// SignalName returns the conventional name of sig.
func SignalName(sig Signal) string {
	return unix.SignalName(sig)
}

func FromOsSignal(sig os.Signal) Signal {
	if s, ok := sig.(syscall.Signal); ok {
		return Signal(s)
	}
	return 0
}
