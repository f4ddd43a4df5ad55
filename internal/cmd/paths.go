package cmd

import (
	"os"
	"path/filepath"
)

// stateDir returns the directory for tmppg's PID file.
//
// Resolution order:
//  1. $TMPPG_HOME
//  2. ~/.tmppg
//  3. $TMPDIR/.tmppg when there is no home directory
func stateDir() string {
	if h := os.Getenv("TMPPG_HOME"); h != "" {
		return h
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(os.TempDir(), ".tmppg")
	}
	return filepath.Join(home, ".tmppg")
}

func defaultPIDFile() string {
	return filepath.Join(stateDir(), "tmppg.pid")
}
