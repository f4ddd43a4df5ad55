// Package cmd implements the tmppg command line.
package cmd

import (
	"context"
	"os"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

var debugLogging bool

var rootCmd = &cobra.Command{
	Use:   "tmppg",
	Short: "Run throwaway PostgreSQL servers",
	Long: `tmppg starts a disposable PostgreSQL server in a temporary data
directory on a free port, prints how to connect, and removes everything
again when interrupted.

Configuration comes from flags, TMPPG_* environment variables and an
optional TOML file, in that order of precedence.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		setupLogging(debugLogging || os.Getenv("TMPPG_DEBUG") != "")
	},
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debugLogging, "debug", false,
		"Log lifecycle events and cleanup warnings to stderr")
}

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context) int {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		log.Error().Err(err).Msg("tmppg failed")
		return 1
	}
	return 0
}

// setupLogging configures the global zerolog logger for the terminal.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
