// Package doctor diagnoses the local environment for running throwaway
// postgres servers.
package doctor

// CheckStatus is the outcome of a check.
type CheckStatus int

const (
	StatusOK CheckStatus = iota
	StatusWarning
	StatusError
)

func (s CheckStatus) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusWarning:
		return "warning"
	case StatusError:
		return "error"
	}
	return "unknown"
}

// CheckContext carries the settings a check inspects.
type CheckContext struct {
	// BinDir is searched before PATH for the postgres programs.
	BinDir string
	// LockDir holds the port reservation lock files.
	LockDir string
	// PIDFile is the record written by "tmppg start".
	PIDFile string
}

// CheckResult is what a check reports.
type CheckResult struct {
	Name    string
	Status  CheckStatus
	Message string
	Details []string
	FixHint string
}

// Check is one diagnostic.
type Check interface {
	Name() string
	Description() string
	CanFix() bool
	Run(ctx *CheckContext) *CheckResult
	Fix(ctx *CheckContext) error
}

// BaseCheck implements the descriptive half of Check.
type BaseCheck struct {
	CheckName        string
	CheckDescription string
}

func (b *BaseCheck) Name() string        { return b.CheckName }
func (b *BaseCheck) Description() string { return b.CheckDescription }
func (b *BaseCheck) CanFix() bool        { return false }

// Fix is a no-op for checks that cannot fix anything.
func (b *BaseCheck) Fix(*CheckContext) error { return nil }

// FixableCheck is embedded by checks that implement Fix.
type FixableCheck struct {
	BaseCheck
}

func (f *FixableCheck) CanFix() bool { return true }

// AllChecks returns the checks run by "tmppg doctor", in order.
func AllChecks() []Check {
	return []Check{
		NewProgramsCheck(),
		NewUserCheck(),
		NewLockDirCheck(),
		NewStaleInstanceCheck(),
	}
}

// Report runs checks and, with fix set, fixes what failed and can be
// fixed, re-running the check afterwards.
func Report(ctx *CheckContext, checks []Check, fix bool) []*CheckResult {
	results := make([]*CheckResult, 0, len(checks))
	for _, c := range checks {
		r := c.Run(ctx)
		if fix && r.Status != StatusOK && c.CanFix() {
			if err := c.Fix(ctx); err != nil {
				r.Details = append(r.Details, "Fix failed: "+err.Error())
			} else {
				r = c.Run(ctx)
			}
		}
		results = append(results, r)
	}
	return results
}
