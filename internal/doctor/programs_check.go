package doctor

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	tmppostgres "github.com/mitchellwrosen/tmp-postgres"
)

// requiredPrograms are run by every instance unless skipped.
var requiredPrograms = []string{"initdb", "postgres", "createdb"}

// ProgramsCheck verifies that initdb, postgres and createdb can be found.
type ProgramsCheck struct {
	BaseCheck
	lookup func(binDir, name string) string
}

// NewProgramsCheck creates a new programs check.
func NewProgramsCheck() *ProgramsCheck {
	return &ProgramsCheck{
		BaseCheck: BaseCheck{
			CheckName:        "programs",
			CheckDescription: "Find initdb, postgres and createdb",
		},
		lookup: tmppostgres.FindProgram,
	}
}

// Run resolves each program the way Start does.
func (c *ProgramsCheck) Run(ctx *CheckContext) *CheckResult {
	var details, missing []string
	for _, name := range requiredPrograms {
		path := c.lookup(ctx.BinDir, name)
		if !executable(path) {
			missing = append(missing, name)
			continue
		}
		details = append(details, fmt.Sprintf("%s: %s", name, path))
	}

	if len(missing) > 0 {
		return &CheckResult{
			Name:    c.Name(),
			Status:  StatusError,
			Message: fmt.Sprintf("Missing %v", missing),
			Details: details,
			FixHint: "Install PostgreSQL, or pass --bin-dir / set TMPPG_BIN_DIR to its bin directory",
		}
	}
	return &CheckResult{
		Name:    c.Name(),
		Status:  StatusOK,
		Message: "All postgres programs found",
		Details: details,
	}
}

// executable reports whether path names a runnable file. A bare name is
// what FindProgram returns when the search failed.
func executable(path string) bool {
	if !filepath.IsAbs(path) {
		_, err := exec.LookPath(path)
		return err == nil
	}
	info, err := os.Stat(path)
	if err != nil || info.IsDir() {
		return false
	}
	return runtime.GOOS == "windows" || info.Mode()&0111 != 0
}
