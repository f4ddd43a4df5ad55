package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/spf13/pflag"

	tmppostgres "github.com/mitchellwrosen/tmp-postgres"
	"github.com/mitchellwrosen/tmp-postgres/internal/pidfile"
)

type layerResult struct {
	cfg tmppostgres.Config
	err error
}

func parseStartFlags(t *testing.T, args ...string) layerResult {
	t.Helper()
	fs := pflag.NewFlagSet("start", pflag.ContinueOnError)
	addStartFlags(fs)
	if err := fs.Parse(args); err != nil {
		t.Fatalf("parsing flags: %v", err)
	}
	v, err := newViper(fs)
	if err != nil {
		t.Fatalf("newViper: %v", err)
	}
	cfg, err := commandLayer(v)
	return layerResult{cfg: cfg, err: err}
}

func TestCommandLayer_Flags(t *testing.T) {
	got := parseStartFlags(t, "--dbname=example", "--port=6000", "--socket=ip", "--start-timeout=5s")
	if got.err != nil {
		t.Fatalf("commandLayer: %v", got.err)
	}
	cfg := got.cfg
	if v, _ := cfg.DatabaseName.Get(); v != "example" {
		t.Errorf("DatabaseName = %q", v)
	}
	if v, _ := cfg.Port.Get(); v != 6000 {
		t.Errorf("Port = %d", v)
	}
	if v, ok := cfg.Socket.Get(); !ok || v.IsUnix() {
		t.Errorf("Socket = %v (set=%v), want ip", v, ok)
	}
	if v, _ := cfg.StartTimeout.Get(); v != 5*time.Second {
		t.Errorf("StartTimeout = %v", v)
	}
	if cfg.DataDirectory.IsSet() || cfg.StopTimeout.IsSet() || cfg.BinDir.IsSet() {
		t.Error("flags that were not given must stay unset")
	}
}

func TestCommandLayer_EnvAndPrecedence(t *testing.T) {
	t.Setenv("TMPPG_DBNAME", "fromenv")
	t.Setenv("TMPPG_DATA_DIR", "/var/tmp/pg")
	t.Setenv("TMPPG_STOP_TIMEOUT", "3s")

	got := parseStartFlags(t, "--dbname=fromflag")
	if got.err != nil {
		t.Fatalf("commandLayer: %v", got.err)
	}
	if v, _ := got.cfg.DatabaseName.Get(); v != "fromflag" {
		t.Errorf("DatabaseName = %q, flag should win over env", v)
	}
	if v, _ := got.cfg.DataDirectory.Get(); v != "/var/tmp/pg" {
		t.Errorf("DataDirectory = %q, want env value", v)
	}
	if v, _ := got.cfg.StopTimeout.Get(); v != 3*time.Second {
		t.Errorf("StopTimeout = %v, want env value", v)
	}
}

func TestCommandLayer_ConfigFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tmppg.toml")
	content := "database_name = \"fromfile\"\nport = 7000\n\n[server]\nconfig_append = [\"work_mem = 8MB\"]\n"
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatal(err)
	}

	got := parseStartFlags(t, "--config="+path, "--port=6000")
	if got.err != nil {
		t.Fatalf("commandLayer: %v", got.err)
	}
	if v, _ := got.cfg.DatabaseName.Get(); v != "fromfile" {
		t.Errorf("DatabaseName = %q, want file value", v)
	}
	if v, _ := got.cfg.Port.Get(); v != 6000 {
		t.Errorf("Port = %d, flag should win over file", v)
	}
	if !got.cfg.Server.ConfigFile.IsAppend() {
		t.Error("server config lines from the file were dropped")
	}
}

func TestCommandLayer_Invalid(t *testing.T) {
	tests := map[string][]string{
		"socket":      {"--socket=pipe"},
		"port":        {"--port=70000"},
		"config file": {"--config=" + filepath.Join(t.TempDir(), "missing.toml")},
	}
	for name, args := range tests {
		t.Run(name, func(t *testing.T) {
			if got := parseStartFlags(t, args...); got.err == nil {
				t.Error("expected error")
			}
		})
	}
}

func runRoot(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(&out)
	rootCmd.SetArgs(args)
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetErr(nil)
		rootCmd.SetArgs(nil)
	})
	err := rootCmd.Execute()
	return out.String(), err
}

func TestCleanupCommand_NothingToDo(t *testing.T) {
	out, err := runRoot(t, "cleanup", "--pid-file", filepath.Join(t.TempDir(), "none.pid"))
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "Nothing to clean up") {
		t.Errorf("output = %q", out)
	}
}

func TestCleanupCommand_StaleRecord(t *testing.T) {
	root := t.TempDir()
	dataDir := filepath.Join(root, "data")
	if err := os.Mkdir(dataDir, 0700); err != nil {
		t.Fatal(err)
	}
	pidPath := filepath.Join(root, "tmppg.pid")
	if err := pidfile.Write(pidPath, pidfile.Record{PID: 4194300, Nonce: "n", Port: 5432, Dirs: []string{dataDir}}); err != nil {
		t.Fatal(err)
	}

	out, err := runRoot(t, "cleanup", "--pid-file", pidPath, "--timeout", "1s")
	if err != nil {
		t.Fatalf("cleanup: %v", err)
	}
	if !strings.Contains(out, "Cleaned up postgres (PID 4194300, port 5432)") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Error("data directory should have been removed")
	}
}

func TestVersionCommand(t *testing.T) {
	out, err := runRoot(t, "version")
	if err != nil {
		t.Fatalf("version: %v", err)
	}
	if !strings.HasPrefix(out, "tmppg "+Version) {
		t.Errorf("output = %q", out)
	}
}

func TestCheckPIDFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "tmppg.pid")
	if err := checkPIDFile(path); err != nil {
		t.Errorf("missing file: %v", err)
	}

	if err := pidfile.Write(path, pidfile.Record{PID: 4194300, Nonce: "n", Port: 1}); err != nil {
		t.Fatal(err)
	}
	if err := checkPIDFile(path); err != nil {
		t.Errorf("stale record should be replaced: %v", err)
	}

	if err := pidfile.Write(path, pidfile.Record{PID: os.Getpid(), Nonce: "n", Port: 1}); err != nil {
		t.Fatal(err)
	}
	if err := checkPIDFile(path); err == nil {
		t.Error("a live record should block start")
	}
}

func TestStateDir(t *testing.T) {
	t.Setenv("TMPPG_HOME", "/srv/tmppg")
	if got := defaultPIDFile(); got != filepath.Join("/srv/tmppg", "tmppg.pid") {
		t.Errorf("defaultPIDFile = %q", got)
	}
}

func TestDoctorCommand_FixesStaleRecord(t *testing.T) {
	root := t.TempDir()
	pidPath := filepath.Join(root, "tmppg.pid")
	if err := pidfile.Write(pidPath, pidfile.Record{PID: 4194300, Nonce: "n", Port: 5432}); err != nil {
		t.Fatal(err)
	}

	// Programs or user checks may fail on this machine; only the stale
	// record matters here.
	out, _ := runRoot(t, "doctor", "--fix", "--pid-file", pidPath)
	if !strings.Contains(out, "stale-instance") {
		t.Errorf("output = %q", out)
	}
	if _, err := os.Stat(pidPath); !os.IsNotExist(err) {
		t.Error("stale PID file should have been removed by --fix")
	}
}
