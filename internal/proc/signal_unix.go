//go:build !windows

package proc

import (
	"errors"
	"os"
	"os/exec"
	"syscall"

	"golang.org/x/sys/unix"
)

// interrupt sends SIGINT, which postgres treats as a fast shutdown: active
// transactions are rolled back and clients are disconnected.
func interrupt(p *os.Process) error {
	if err := p.Signal(unix.SIGINT); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

// setProcAttr puts the child in its own process group so a terminal ^C
// aimed at the test runner is not also delivered to postgres.
func setProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}
