//go:build windows

package cmd

import "os"

func startSignals() []os.Signal {
	return []os.Signal{os.Interrupt}
}

func isRestartSignal(os.Signal) bool {
	return false
}
