package tmppostgres

import (
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"
)

// defaultServerSettings tune a disposable cluster for speed over
// durability and log every statement for debugging failed tests.
func defaultServerSettings() []string {
	return []string{
		"shared_buffers = 12MB",
		"fsync = off",
		"synchronous_commit = off",
		"full_page_writes = off",
		"log_min_duration_statement = 0",
		"log_connections = on",
		"log_disconnections = on",
		"client_min_messages = ERROR",
	}
}

var (
	pgBinDirOnce sync.Once
	pgBinDir     string
)

// pgConfigBinDir asks pg_config where the server binaries live. Distros
// like Debian keep initdb and postgres off PATH.
func pgConfigBinDir() string {
	pgBinDirOnce.Do(func() {
		out, err := exec.Command("pg_config", "--bindir").Output()
		if err != nil {
			return
		}
		pgBinDir = strings.TrimSpace(string(out))
	})
	return pgBinDir
}

// FindProgram resolves a postgres program name. Resolution order:
//  1. binDir, when set and the program exists there
//  2. PATH
//  3. pg_config --bindir
//
// If none match the bare name is returned and spawning it reports the error.
func FindProgram(binDir, name string) string {
	if binDir != "" {
		candidate := filepath.Join(binDir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	if path, err := exec.LookPath(name); err == nil {
		return path
	}
	if dir := pgConfigBinDir(); dir != "" {
		candidate := filepath.Join(dir, name)
		if _, err := os.Stat(candidate); err == nil {
			return candidate
		}
	}
	return name
}
