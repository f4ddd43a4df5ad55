package doctor

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/gofrs/flock"
)

// LockDirCheck verifies that port reservation locks can be taken.
type LockDirCheck struct {
	BaseCheck
}

// NewLockDirCheck creates a new lock directory check.
func NewLockDirCheck() *LockDirCheck {
	return &LockDirCheck{
		BaseCheck: BaseCheck{
			CheckName:        "lock-dir",
			CheckDescription: "Verify port reservation locks can be created",
		},
	}
}

func (c *LockDirCheck) Run(ctx *CheckContext) *CheckResult {
	probe := filepath.Join(ctx.LockDir, fmt.Sprintf("tmppg-doctor-%d.lock", os.Getpid()))
	lock := flock.New(probe)
	locked, err := lock.TryLock()
	if err == nil && locked {
		_ = lock.Unlock()
		_ = os.Remove(probe)
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusOK,
			Message: fmt.Sprintf("Lock directory %s is usable", ctx.LockDir),
		}
	}

	msg := fmt.Sprintf("Cannot lock files in %s", ctx.LockDir)
	if err != nil {
		msg += ": " + err.Error()
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusError,
		Message: msg,
		FixHint: "Make the temporary directory writable or set TMPDIR",
	}
}
