// Package pgtest starts throwaway postgres instances for Go tests.
//
// Per-test instance:
//
//	func TestQuery(t *testing.T) {
//		inst := pgtest.New(t)
//		conn, err := inst.Connect(ctx)
//		...
//	}
//
// One instance shared by a package:
//
//	func TestMain(m *testing.M) {
//		os.Exit(pgtest.RunMain(m))
//	}
//
//	func TestQuery(t *testing.T) {
//		inst := pgtest.Shared(t)
//		...
//	}
package pgtest

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"

	tmppostgres "github.com/mitchellwrosen/tmp-postgres"
)

var (
	sharedMu sync.Mutex
	shared   *tmppostgres.Instance
)

// config layers the caller's configuration over the TMPPG_* environment.
func config(layers []tmppostgres.Config) (tmppostgres.Config, error) {
	env, err := tmppostgres.ConfigFromEnv()
	if err != nil {
		return tmppostgres.Config{}, err
	}
	return tmppostgres.Merge(layers...).Merge(env), nil
}

// New starts an instance for the calling test and stops it when the test
// and its subtests finish.
func New(tb testing.TB, layers ...tmppostgres.Config) *tmppostgres.Instance {
	tb.Helper()
	cfg, err := config(layers)
	if err != nil {
		tb.Fatalf("pgtest: %v", err)
	}
	inst, err := tmppostgres.Start(context.Background(), cfg)
	if err != nil {
		tb.Fatalf("pgtest: starting postgres: %v", err)
	}
	tb.Cleanup(func() {
		if _, err := inst.Stop(); err != nil {
			tb.Errorf("pgtest: stopping postgres: %v", err)
		}
	})
	return inst
}

// RunMain starts one instance, runs the package's tests against it and
// stops it. The result is the exit code for os.Exit.
func RunMain(m *testing.M, layers ...tmppostgres.Config) int {
	cfg, err := config(layers)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgtest: %v\n", err)
		return 1
	}
	inst, err := tmppostgres.Start(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "pgtest: starting postgres: %v\n", err)
		return 1
	}
	setShared(inst)

	code := m.Run()

	setShared(nil)
	if _, err := inst.Stop(); err != nil {
		fmt.Fprintf(os.Stderr, "pgtest: stopping postgres: %v\n", err)
		if code == 0 {
			code = 1
		}
	}
	return code
}

// Shared returns the instance started by RunMain. It fails the test when
// TestMain did not call RunMain.
func Shared(tb testing.TB) *tmppostgres.Instance {
	tb.Helper()
	sharedMu.Lock()
	defer sharedMu.Unlock()
	if shared == nil {
		tb.Fatal("pgtest: no shared instance; call pgtest.RunMain from TestMain")
	}
	return shared
}

func setShared(inst *tmppostgres.Instance) {
	sharedMu.Lock()
	shared = inst
	sharedMu.Unlock()
}
