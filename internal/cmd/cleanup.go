package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mitchellwrosen/tmp-postgres/internal/pidfile"
	"github.com/mitchellwrosen/tmp-postgres/internal/style"
)

var (
	cleanupPIDFile string
	cleanupTimeout time.Duration
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Stop a server left behind by an interrupted tmppg start",
	Long: `Stop the server recorded in the PID file and remove the data and
socket directories it owned.

This is only needed when 'tmppg start' itself was killed (for example with
SIGKILL) and could not clean up. The recorded PID is only signaled if it
is still the postmaster of the recorded data directory.`,
	Args: cobra.NoArgs,
	RunE: runCleanup,
}

func init() {
	cleanupCmd.Flags().StringVar(&cleanupPIDFile, "pid-file", defaultPIDFile(),
		"PID file written by tmppg start")
	cleanupCmd.Flags().DurationVar(&cleanupTimeout, "timeout", 10*time.Second,
		"How long to wait after the interrupt before killing the server")
	rootCmd.AddCommand(cleanupCmd)
}

func runCleanup(cmd *cobra.Command, args []string) error {
	out := cmd.OutOrStdout()
	rec, err := pidfile.Cleanup(cleanupPIDFile, cleanupTimeout)
	if err != nil {
		return fmt.Errorf("cleaning up %s: %w", cleanupPIDFile, err)
	}
	if rec.PID == 0 {
		fmt.Fprintf(out, "%s Nothing to clean up (%s)\n", style.Dim.Render("○"), cleanupPIDFile)
		return nil
	}
	fmt.Fprintf(out, "%s Cleaned up postgres (PID %d, port %d)\n", style.Bold.Render("✓"), rec.PID, rec.Port)
	for _, dir := range rec.Dirs {
		fmt.Fprintf(out, "  %s %s\n", style.Dim.Render("removed"), dir)
	}
	return nil
}
