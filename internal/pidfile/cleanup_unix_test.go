//go:build !windows

package pidfile

import (
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"testing"
	"time"
)

func TestCleanup_StopsProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	pid := cmd.Process.Pid

	dataDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dataDir, "postmaster.pid"), []byte(strconv.Itoa(pid)+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
	if err := Write(pidFile, Record{PID: pid, Nonce: "n", Port: 5432, DataDir: dataDir, Dirs: []string{dataDir}}); err != nil {
		t.Fatal(err)
	}

	if _, err := Cleanup(pidFile, 5*time.Second); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	select {
	case <-exited:
	case <-time.After(5 * time.Second):
		_ = cmd.Process.Kill()
		t.Fatal("process was not stopped")
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Error("data directory should have been removed")
	}
}

func TestCleanup_LeavesUnrelatedProcess(t *testing.T) {
	cmd := exec.Command("sleep", "30")
	if err := cmd.Start(); err != nil {
		t.Skipf("sleep not available: %v", err)
	}
	exited := make(chan struct{})
	go func() {
		_ = cmd.Wait()
		close(exited)
	}()
	t.Cleanup(func() {
		_ = cmd.Process.Kill()
		<-exited
	})

	// The recorded server shut down cleanly and its PID now belongs to
	// someone else: the data directory is there, postmaster.pid is not.
	dataDir := t.TempDir()
	pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
	if err := Write(pidFile, Record{PID: cmd.Process.Pid, Nonce: "n", Port: 5432, DataDir: dataDir, Dirs: []string{dataDir}}); err != nil {
		t.Fatal(err)
	}

	if _, err := Cleanup(pidFile, time.Second); err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	select {
	case <-exited:
		t.Fatal("Cleanup signaled a process that is not the recorded server")
	case <-time.After(200 * time.Millisecond):
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Error("data directory should have been removed")
	}
	if _, err := os.Stat(pidFile); !os.IsNotExist(err) {
		t.Error("PID file should have been removed")
	}
}
