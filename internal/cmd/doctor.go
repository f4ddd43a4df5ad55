package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	tmppostgres "github.com/mitchellwrosen/tmp-postgres"
	"github.com/mitchellwrosen/tmp-postgres/internal/doctor"
	"github.com/mitchellwrosen/tmp-postgres/internal/resource"
	"github.com/mitchellwrosen/tmp-postgres/internal/style"
)

var (
	doctorFix     bool
	doctorBinDir  string
	doctorPIDFile string
)

var doctorCmd = &cobra.Command{
	Use:   "doctor",
	Short: "Check that throwaway servers can run here",
	Long: `Run diagnostics: postgres programs on PATH or in --bin-dir, the user
initdb runs as, the port lock directory, and leftovers from a tmppg start
that was killed.

Use --fix to clean up what can be cleaned up.`,
	Args: cobra.NoArgs,
	RunE: runDoctor,
}

func init() {
	doctorCmd.Flags().BoolVar(&doctorFix, "fix", false, "Fix problems that can be fixed")
	doctorCmd.Flags().StringVar(&doctorBinDir, "bin-dir", os.Getenv(tmppostgres.EnvBinDir),
		"Directory holding initdb, postgres and createdb")
	doctorCmd.Flags().StringVar(&doctorPIDFile, "pid-file", defaultPIDFile(), "PID file written by tmppg start")
	rootCmd.AddCommand(doctorCmd)
}

func runDoctor(cmd *cobra.Command, args []string) error {
	ctx := &doctor.CheckContext{
		BinDir:  doctorBinDir,
		LockDir: resource.LockDir,
		PIDFile: doctorPIDFile,
	}
	results := doctor.Report(ctx, doctor.AllChecks(), doctorFix)

	out := cmd.OutOrStdout()
	failed := 0
	for _, r := range results {
		fmt.Fprintf(out, "%s %-15s %s\n", statusMark(r.Status), r.Name, r.Message)
		for _, d := range r.Details {
			fmt.Fprintf(out, "    %s\n", style.Dim.Render(d))
		}
		if r.Status != doctor.StatusOK && r.FixHint != "" {
			fmt.Fprintf(out, "    %s %s\n", style.Bold.Render("→"), r.FixHint)
		}
		if r.Status == doctor.StatusError {
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("%d check(s) failed", failed)
	}
	return nil
}

func statusMark(s doctor.CheckStatus) string {
	switch s {
	case doctor.StatusOK:
		return style.Success.Render("✓")
	case doctor.StatusWarning:
		return style.Bold.Render("!")
	}
	return style.Failure.Render("✗")
}
