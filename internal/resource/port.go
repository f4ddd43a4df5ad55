package resource

import (
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"

	"github.com/gofrs/flock"
)

// maxPortAttempts bounds how many free ports are tried when every candidate
// turns out to be reserved by another instance.
const maxPortAttempts = 20

// LockDir is where port reservation lock files live. Tests may point it
// elsewhere.
var LockDir = os.TempDir()

// FindFreePort asks the kernel for an unused loopback TCP port.
func FindFreePort() (int, error) {
	listener, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, fmt.Errorf("finding free port: %w", err)
	}
	defer func() { _ = listener.Close() }()
	return listener.Addr().(*net.TCPAddr).Port, nil
}

// ReservePort reserves port across processes with a file lock so parallel
// test binaries never hand out the same port. A zero port picks a free one.
// The reservation is released with the scope.
func (s *Scope) ReservePort(port int) (int, error) {
	if port != 0 {
		lock, err := lockPort(port)
		if err != nil {
			return 0, err
		}
		if lock == nil {
			return 0, fmt.Errorf("port %d is reserved by another instance", port)
		}
		s.Defer("port "+strconv.Itoa(port), lock.Unlock)
		return port, nil
	}

	for i := 0; i < maxPortAttempts; i++ {
		candidate, err := FindFreePort()
		if err != nil {
			return 0, err
		}
		lock, err := lockPort(candidate)
		if err != nil {
			return 0, err
		}
		if lock == nil {
			continue
		}
		s.Defer("port "+strconv.Itoa(candidate), lock.Unlock)
		return candidate, nil
	}
	return 0, fmt.Errorf("no free port after %d attempts", maxPortAttempts)
}

// lockPort returns the held lock, or nil if another process holds it.
// Lock files are left on disk; removing them would let a process that
// opened the old file and one that creates a new file both "own" the port.
func lockPort(port int) (*flock.Flock, error) {
	lock := flock.New(portLockPath(port))
	locked, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("acquiring port lock: %w", err)
	}
	if !locked {
		return nil, nil
	}
	return lock, nil
}

func portLockPath(port int) string {
	return filepath.Join(LockDir, fmt.Sprintf("tmppg-port-%d.lock", port))
}
