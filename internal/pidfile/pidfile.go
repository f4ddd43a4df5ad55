// Package pidfile records a detached postgres instance on disk so a later
// "tmppg cleanup" can stop it and remove what it owned.
package pidfile

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

// PID file format, one field per line:
//
//	PID
//	NONCE
//	PORT
//	DATA_DIR
//	OWNED_DIR...
//
// The nonce is the instance id. DATA_DIR is the cluster directory whether or
// not it is owned; owned directories are removed by Cleanup.

// Record describes one running instance.
type Record struct {
	PID   int
	Nonce string
	Port  int
	// DataDir holds the cluster's postmaster.pid.
	DataDir string
	// Dirs are removed once the server is gone.
	Dirs []string
}

// Write stores rec at path, replacing any previous file.
func Write(path string, rec Record) error {
	if rec.PID <= 0 {
		return fmt.Errorf("invalid PID %d", rec.PID)
	}
	if rec.Nonce == "" {
		return errors.New("empty nonce")
	}
	lines := append([]string{strconv.Itoa(rec.PID), rec.Nonce, strconv.Itoa(rec.Port), rec.DataDir}, rec.Dirs...)
	content := strings.Join(lines, "\n") + "\n"

	// Readers never see a partial file.
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, []byte(content), 0644); err != nil {
		return err
	}
	return os.Rename(tmp, path)
}

// Read parses the PID file at path.
func Read(path string) (Record, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Record{}, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	if len(lines) < 3 {
		return Record{}, fmt.Errorf("malformed PID file %s: expected at least 3 lines, got %d", path, len(lines))
	}

	var rec Record
	rec.PID, err = strconv.Atoi(strings.TrimSpace(lines[0]))
	if err != nil || rec.PID <= 0 {
		return Record{}, fmt.Errorf("invalid PID in file %q", lines[0])
	}
	rec.Nonce = strings.TrimSpace(lines[1])
	if rec.Nonce == "" {
		return Record{}, fmt.Errorf("malformed PID file %s: empty nonce", path)
	}
	rec.Port, err = strconv.Atoi(strings.TrimSpace(lines[2]))
	if err != nil {
		return Record{}, fmt.Errorf("invalid port in file %q: %w", lines[2], err)
	}
	if len(lines) > 3 {
		rec.DataDir = strings.TrimSpace(lines[3])
	}
	for _, dir := range lines[min(len(lines), 4):] {
		if dir = strings.TrimSpace(dir); dir != "" {
			rec.Dirs = append(rec.Dirs, dir)
		}
	}
	return rec, nil
}

// Verify reports whether the recorded process is alive and is the postgres
// server of the recorded cluster. Postgres writes its own PID as the first
// line of postmaster.pid in the data directory and removes the file on
// shutdown, so a live PID without a matching postmaster.pid belongs to some
// other process that inherited the number.
//
// A record without a data directory has nothing to check against; its live
// PID is trusted.
func Verify(rec Record) bool {
	if !alive(rec.PID) {
		return false
	}
	if rec.DataDir == "" {
		return true
	}
	data, err := os.ReadFile(filepath.Join(rec.DataDir, "postmaster.pid"))
	if err != nil {
		return false
	}
	first, _, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	return err == nil && pid == rec.PID
}

// Cleanup stops the server recorded at path, waiting up to timeout after
// the interrupt before killing it, then removes the owned directories and
// the PID file. A missing PID file is not an error.
func Cleanup(path string, timeout time.Duration) (Record, error) {
	rec, err := Read(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Record{}, nil
		}
		return Record{}, err
	}

	if Verify(rec) {
		if err := stop(rec.PID, timeout); err != nil {
			return rec, fmt.Errorf("stopping postgres (PID %d): %w", rec.PID, err)
		}
	}

	var errs []error
	for _, dir := range rec.Dirs {
		if err := os.RemoveAll(dir); err != nil {
			errs = append(errs, err)
		}
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		errs = append(errs, err)
	}
	return rec, errors.Join(errs...)
}

func stop(pid int, timeout time.Duration) error {
	if err := interrupt(pid); err == nil && waitGone(pid, timeout) {
		return nil
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return err
	}
	if err := p.Kill(); err != nil && alive(pid) {
		return err
	}
	if !waitGone(pid, 5*time.Second) {
		return fmt.Errorf("process still running after kill")
	}
	return nil
}

func waitGone(pid int, timeout time.Duration) bool {
	deadline := time.Now().Add(timeout)
	for alive(pid) {
		if time.Now().After(deadline) {
			return false
		}
		time.Sleep(50 * time.Millisecond)
	}
	return true
}
