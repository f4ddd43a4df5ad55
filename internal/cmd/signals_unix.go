//go:build !windows

package cmd

import (
	"os"
	"syscall"
)

func startSignals() []os.Signal {
	return []os.Signal{
		syscall.SIGINT,
		syscall.SIGTERM,
		syscall.SIGHUP,
		syscall.SIGUSR1,
	}
}

// isRestartSignal reports whether sig asks for a server restart rather
// than a shutdown.
func isRestartSignal(sig os.Signal) bool {
	return sig == syscall.SIGUSR1
}
