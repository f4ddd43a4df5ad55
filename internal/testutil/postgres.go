// Package testutil holds helpers shared by tests that need real postgres
// binaries.
package testutil

import (
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"testing"
)

var (
	binDirOnce sync.Once
	binDir     string
)

// PostgresBinDir returns the directory holding initdb and postgres, or ""
// when they cannot be found on PATH or through pg_config.
func PostgresBinDir() string {
	binDirOnce.Do(func() {
		if path, err := exec.LookPath("initdb"); err == nil {
			binDir = filepath.Dir(path)
			return
		}
		out, err := exec.Command("pg_config", "--bindir").Output()
		if err != nil {
			return
		}
		dir := strings.TrimSpace(string(out))
		if _, err := os.Stat(filepath.Join(dir, "initdb")); err == nil {
			binDir = dir
		}
	})
	return binDir
}

// RequirePostgres skips the test when the postgres binaries are missing
// or when running as root, which initdb refuses.
func RequirePostgres(t testing.TB) string {
	t.Helper()
	if testing.Short() {
		t.Skip("skipping postgres test in short mode")
	}
	if runtime.GOOS != "windows" && os.Geteuid() == 0 {
		t.Skip("initdb cannot run as root")
	}
	dir := PostgresBinDir()
	if dir == "" {
		t.Skip("postgres binaries not found (initdb not on PATH and no pg_config)")
	}
	return dir
}

// WriteScript writes an executable shell script named name into dir and
// returns its path.
func WriteScript(t testing.TB, dir, name, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported on windows")
	}
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0755); err != nil { //nolint:gosec // must be executable
		t.Fatalf("writing script %s: %v", path, err)
	}
	return path
}
