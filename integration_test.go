package tmppostgres

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/mitchellwrosen/tmp-postgres/internal/testutil"
)

func TestIntegration_StartStop(t *testing.T) {
	bin := testutil.RequirePostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	inst, err := Start(ctx, Config{BinDir: Set(bin)})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if inst.DatabaseName() == "" || inst.Port() <= 0 || inst.State() != StateReady {
		t.Errorf("unexpected instance: db=%q port=%d state=%v", inst.DatabaseName(), inst.Port(), inst.State())
	}

	conn, err := inst.Connect(ctx)
	if err != nil {
		_, _ = inst.Stop()
		t.Fatalf("Connect: %v", err)
	}
	var fsync string
	if err := conn.QueryRow(ctx, "show fsync").Scan(&fsync); err != nil {
		t.Errorf("query: %v", err)
	}
	if fsync != "off" {
		t.Errorf("fsync = %q, want off", fsync)
	}
	// conn stays open: Stop terminates remaining sessions.

	dataDir := inst.DataDir()
	code, err := inst.Stop()
	if err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if code != 0 {
		t.Errorf("exit code = %d, want 0 after interrupt", code)
	}
	if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Errorf("data directory %s was not removed", dataDir)
	}
}

func TestIntegration_DatabaseName(t *testing.T) {
	bin := testutil.RequirePostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	err := With(ctx, Config{BinDir: Set(bin), DatabaseName: Set("example")}, func(inst *Instance) error {
		args := inst.Plan().CreateDB.Args
		if args[len(args)-1] != "example" {
			t.Errorf("createdb args = %q", args)
		}
		conn, err := inst.Connect(ctx)
		if err != nil {
			return err
		}
		defer conn.Close(ctx)
		var name string
		if err := conn.QueryRow(ctx, "select current_database()").Scan(&name); err != nil {
			return err
		}
		if name != "example" {
			t.Errorf("current_database = %q", name)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
}

func TestIntegration_Restart(t *testing.T) {
	bin := testutil.RequirePostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	inst, err := Start(ctx, Config{BinDir: Set(bin)})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	conn, err := inst.Connect(ctx)
	if err != nil {
		_, _ = inst.Stop()
		t.Fatalf("Connect: %v", err)
	}
	if _, err := conn.Exec(ctx, "create table kept (id int)"); err != nil {
		t.Errorf("create table: %v", err)
	}
	_ = conn.Close(ctx)

	fresh, err := inst.Restart(ctx)
	if err != nil {
		t.Fatalf("Restart: %v", err)
	}
	defer func() { _, _ = fresh.Stop() }()

	conn, err = fresh.Connect(ctx)
	if err != nil {
		t.Fatalf("Connect after restart: %v", err)
	}
	defer conn.Close(ctx)
	if _, err := conn.Exec(ctx, "select * from kept"); err != nil {
		t.Errorf("table should survive restart: %v", err)
	}
}

func TestIntegration_InitFailsWithStub(t *testing.T) {
	dir := t.TempDir()
	stub := testutil.WriteScript(t, dir, "initdb", "exit 1")
	rec := &eventRecorder{}

	_, err := Start(context.Background(), Config{
		Logger: Set(rec.logger()),
		InitDB: ProcessConfig{Program: Set(stub)},
		// No real postgres is needed: the server must never be spawned.
		Server: ServerConfig{ProcessConfig: ProcessConfig{Program: Set(testutil.WriteScript(t, dir, "postgres", "touch "+dir+"/spawned; sleep 30"))}},
	})
	if !errors.Is(err, ErrInitFailed) {
		t.Fatalf("Start = %v, want InitFailed", err)
	}
	var se *StartError
	if errors.As(err, &se) && se.ExitCode != 1 {
		t.Errorf("ExitCode = %d, want 1", se.ExitCode)
	}
	if _, err := os.Stat(dir + "/spawned"); err == nil {
		t.Error("server was spawned after init failed")
	}
	for _, k := range rec.kinds() {
		if k == EventStartServer {
			t.Error("start-server event emitted after init failed")
		}
	}
	if dataDir := rec.dataDir(); dataDir == "" {
		t.Error("no data directory recorded")
	} else if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Errorf("data directory %s was not released", dataDir)
	}
}

func TestIntegration_ServerExitsLeavingChild(t *testing.T) {
	dir := t.TempDir()
	stub := testutil.WriteScript(t, dir, "postgres", "sleep 20 & exit 7")
	rec := &eventRecorder{}

	began := time.Now()
	_, err := Start(context.Background(), Config{
		Logger:       Set(rec.logger()),
		StartTimeout: Set(15 * time.Second),
		InitDB:       ProcessConfig{Skip: Set(true)},
		CreateDB:     ProcessConfig{Skip: Set(true)},
		Server:       ServerConfig{ProcessConfig: ProcessConfig{Program: Set(stub)}},
	})
	if !errors.Is(err, ErrServerStartFailed) {
		t.Fatalf("Start = %v, want ServerStartFailed", err)
	}
	var se *StartError
	if errors.As(err, &se) && se.ExitCode != 7 {
		t.Errorf("ExitCode = %d, want 7", se.ExitCode)
	}
	if elapsed := time.Since(began); elapsed > 10*time.Second {
		t.Errorf("Start took %v to notice the exit", elapsed)
	}
	if dataDir := rec.dataDir(); dataDir == "" {
		t.Error("no data directory recorded")
	} else if _, err := os.Stat(dataDir); !os.IsNotExist(err) {
		t.Errorf("data directory %s was not released", dataDir)
	}
}

func TestIntegration_ServerOutputCapture(t *testing.T) {
	bin := testutil.RequirePostgres(t)
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	var stderr syncBuffer
	inst, err := Start(ctx, Config{
		BinDir: Set(bin),
		Server: ServerConfig{ProcessConfig: ProcessConfig{Stderr: Set[io.Writer](&stderr)}},
	})
	if err != nil {
		t.Fatalf("Start: %v", err)
	}
	if _, err := inst.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if !strings.Contains(stderr.String(), "database system is ready") {
		t.Errorf("server log not captured:\n%s", stderr.String())
	}
}
