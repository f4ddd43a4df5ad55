//go:build windows

package proc

import (
	"os"
	"os/exec"
)

// interrupt is unsupported on Windows: there is no SIGINT for a child that
// does not share our console. Callers fall back to waiting (or killing
// after a stop timeout).
func interrupt(p *os.Process) error {
	return ErrSignalUnsupported
}

func setProcAttr(cmd *exec.Cmd) {}
