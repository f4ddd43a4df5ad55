package doctor

import (
	"os"
	"runtime"
)

// UserCheck flags running as root, which initdb refuses.
type UserCheck struct {
	BaseCheck
	euid func() int
}

// NewUserCheck creates a new user check.
func NewUserCheck() *UserCheck {
	return &UserCheck{
		BaseCheck: BaseCheck{
			CheckName:        "user",
			CheckDescription: "Verify initdb is allowed to run as this user",
		},
		euid: os.Geteuid,
	}
}

func (c *UserCheck) Run(ctx *CheckContext) *CheckResult {
	if runtime.GOOS != "windows" && c.euid() == 0 {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: "Running as root; initdb will refuse to create a cluster",
			FixHint: "Run tmppg as an unprivileged user",
		}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: "Not running as root",
	}
}
