package pidfile

import (
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"testing"
	"time"
)

// deadPID is almost certainly not running; max PID is 32768 or 4194304 on
// most systems.
const deadPID = 4194300

func TestWriteAndRead(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
	want := Record{PID: 12345, Nonce: "8a1f", Port: 5433, DataDir: "/tmp/data", Dirs: []string{"/tmp/data", "/tmp/sock"}}

	if err := Write(pidFile, want); err != nil {
		t.Fatalf("Write: %v", err)
	}
	got, err := Read(pidFile)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Read = %+v, want %+v", got, want)
	}
}

func TestWrite_Format(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
	if err := Write(pidFile, Record{PID: 99999, Nonce: "abc", Port: 6000, DataDir: "/d", Dirs: []string{"/d", "/s"}}); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(pidFile)
	if err != nil {
		t.Fatal(err)
	}
	if want := "99999\nabc\n6000\n/d\n/d\n/s\n"; string(data) != want {
		t.Errorf("file content mismatch:\ngot:  %q\nwant: %q", data, want)
	}
}

func TestRead_WithoutDataDir(t *testing.T) {
	tests := map[string]struct {
		content string
		want    Record
	}{
		"no dirs":         {"123\nabc\n5432\n", Record{PID: 123, Nonce: "abc", Port: 5432}},
		"socket dir only": {"123\nabc\n5432\n\n/s\n", Record{PID: 123, Nonce: "abc", Port: 5432, Dirs: []string{"/s"}}},
	}
	for name, tt := range tests {
		t.Run(name, func(t *testing.T) {
			pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
			if err := os.WriteFile(pidFile, []byte(tt.content), 0644); err != nil {
				t.Fatal(err)
			}
			got, err := Read(pidFile)
			if err != nil {
				t.Fatalf("Read: %v", err)
			}
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Read = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestWrite_Invalid(t *testing.T) {
	pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
	if err := Write(pidFile, Record{PID: 0, Nonce: "x"}); err == nil {
		t.Error("expected error for zero PID")
	}
	if err := Write(pidFile, Record{PID: 1}); err == nil {
		t.Error("expected error for empty nonce")
	}
}

func TestRead_NotFound(t *testing.T) {
	_, err := Read("/nonexistent/path/tmppg.pid")
	if !os.IsNotExist(err) {
		t.Fatalf("expected not-exist error, got %v", err)
	}
}

func TestRead_Invalid(t *testing.T) {
	tests := map[string]string{
		"empty":       "",
		"pid only":    "123\n",
		"bad pid":     "notanumber\nabc\n5432\n",
		"empty nonce": "123\n\n5432\n",
		"bad port":    "123\nabc\nport\n",
	}
	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			pidFile := filepath.Join(t.TempDir(), "tmppg.pid")
			if err := os.WriteFile(pidFile, []byte(content), 0644); err != nil {
				t.Fatal(err)
			}
			if _, err := Read(pidFile); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestVerify_CurrentProcess(t *testing.T) {
	if !Verify(Record{PID: os.Getpid(), Nonce: "n"}) {
		t.Error("expected current process to be alive")
	}
}

func TestVerify_DeadProcess(t *testing.T) {
	if Verify(Record{PID: deadPID, Nonce: "n"}) {
		t.Error("expected dead process to not be alive")
	}
}

func TestVerify_PIDReuse(t *testing.T) {
	dir := t.TempDir()
	other := os.Getpid() + 1
	if err := os.WriteFile(filepath.Join(dir, "postmaster.pid"), []byte(strconv.Itoa(other)+"\n"+dir+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if Verify(Record{PID: os.Getpid(), Nonce: "n", DataDir: dir}) {
		t.Error("a live PID that is not the cluster's postmaster must not verify")
	}

	if err := os.WriteFile(filepath.Join(dir, "postmaster.pid"), []byte(strconv.Itoa(os.Getpid())+"\n"), 0600); err != nil {
		t.Fatal(err)
	}
	if !Verify(Record{PID: os.Getpid(), Nonce: "n", DataDir: dir}) {
		t.Error("matching postmaster.pid should verify")
	}
}

func TestVerify_MissingPostmasterPID(t *testing.T) {
	// Postgres removes postmaster.pid on a clean shutdown while the data
	// directory stays behind.
	dataDir := t.TempDir()
	sockDir := t.TempDir()
	rec := Record{PID: os.Getpid(), Nonce: "n", DataDir: dataDir, Dirs: []string{dataDir, sockDir}}
	if Verify(rec) {
		t.Error("a live PID without postmaster.pid must not verify")
	}

	rec.DataDir = filepath.Join(t.TempDir(), "gone")
	if Verify(rec) {
		t.Error("a live PID with a missing data directory must not verify")
	}
}

func TestCleanup_StaleRecord(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	sockDir := filepath.Join(root, "sock")
	for _, d := range []string{dataDir, sockDir} {
		if err := os.MkdirAll(d, 0700); err != nil {
			t.Fatal(err)
		}
	}
	pidFile := filepath.Join(root, "tmppg.pid")
	if err := Write(pidFile, Record{PID: deadPID, Nonce: "n", Port: 5432, DataDir: dataDir, Dirs: []string{dataDir, sockDir}}); err != nil {
		t.Fatal(err)
	}

	rec, err := Cleanup(pidFile, time.Second)
	if err != nil {
		t.Fatalf("Cleanup: %v", err)
	}
	if rec.PID != deadPID {
		t.Errorf("PID = %d", rec.PID)
	}
	for _, p := range []string{dataDir, sockDir, pidFile} {
		if _, err := os.Stat(p); !os.IsNotExist(err) {
			t.Errorf("%s should have been removed", p)
		}
	}
}

func TestCleanup_MissingFile(t *testing.T) {
	rec, err := Cleanup(filepath.Join(t.TempDir(), "none.pid"), time.Second)
	if err != nil || rec.PID != 0 {
		t.Errorf("Cleanup = (%+v, %v), want zero record and nil", rec, err)
	}
}
