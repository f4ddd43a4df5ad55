//go:build !windows

package pidfile

import "golang.org/x/sys/unix"

func alive(pid int) bool {
	// Signal 0 checks for existence. EPERM means the process exists but
	// belongs to another user.
	err := unix.Kill(pid, 0)
	return err == nil || err == unix.EPERM
}

func interrupt(pid int) error {
	return unix.Kill(pid, unix.SIGINT)
}
