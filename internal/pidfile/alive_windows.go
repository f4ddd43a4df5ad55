//go:build windows

package pidfile

import (
	"errors"

	"golang.org/x/sys/windows"
)

const stillActive = 259

func alive(pid int) bool {
	h, err := windows.OpenProcess(windows.PROCESS_QUERY_LIMITED_INFORMATION, false, uint32(pid))
	if err != nil {
		return false
	}
	defer func() { _ = windows.CloseHandle(h) }()
	var code uint32
	if err := windows.GetExitCodeProcess(h, &code); err != nil {
		return false
	}
	return code == stillActive
}

// interrupt is unsupported: Windows has no SIGINT for arbitrary processes.
// Callers fall back to killing the process.
func interrupt(pid int) error {
	return errors.New("interrupt not supported on windows")
}
