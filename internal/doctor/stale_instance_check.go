package doctor

import (
	"fmt"
	"os"
	"time"

	"github.com/mitchellwrosen/tmp-postgres/internal/pidfile"
)

// cleanupTimeout bounds how long Fix waits for a recorded server to exit.
const cleanupTimeout = 10 * time.Second

// StaleInstanceCheck detects a PID file whose server is gone, leaving its
// directories behind.
type StaleInstanceCheck struct {
	FixableCheck
}

// NewStaleInstanceCheck creates a new stale instance check.
func NewStaleInstanceCheck() *StaleInstanceCheck {
	return &StaleInstanceCheck{
		FixableCheck: FixableCheck{
			BaseCheck: BaseCheck{
				CheckName:        "stale-instance",
				CheckDescription: "Detect leftovers of a tmppg start that did not clean up",
			},
		},
	}
}

func (c *StaleInstanceCheck) Run(ctx *CheckContext) *CheckResult {
	if ctx.PIDFile == "" {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "No PID file configured"}
	}

	rec, err := pidfile.Read(ctx.PIDFile)
	if os.IsNotExist(err) {
		return &CheckResult{Name: c.Name(), Status: StatusOK, Message: "No recorded instance"}
	}
	if err != nil {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusWarning,
			Message: fmt.Sprintf("Unreadable PID file: %v", err),
			FixHint: "Run 'tmppg doctor --fix' to remove it",
		}
	}

	if pidfile.Verify(rec) {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusOK,
			Message: fmt.Sprintf("Instance running (PID %d, port %d)", rec.PID, rec.Port),
		}
	}

	var details []string
	for _, dir := range rec.Dirs {
		if _, err := os.Stat(dir); err == nil {
			details = append(details, "Left behind: "+dir)
		}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusWarning,
		Message: fmt.Sprintf("Recorded server (PID %d) is not running", rec.PID),
		Details: details,
		FixHint: "Run 'tmppg cleanup' or 'tmppg doctor --fix'",
	}
}

// Fix removes the leftovers. An unreadable PID file is deleted.
func (c *StaleInstanceCheck) Fix(ctx *CheckContext) error {
	_, err := pidfile.Cleanup(ctx.PIDFile, cleanupTimeout)
	if err == nil || os.IsNotExist(err) {
		return nil
	}
	if _, readErr := pidfile.Read(ctx.PIDFile); readErr != nil {
		return os.Remove(ctx.PIDFile)
	}
	return err
}
