package tmppostgres

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/mitchellwrosen/tmp-postgres/internal/pgclient"
	"github.com/mitchellwrosen/tmp-postgres/internal/proc"
	"github.com/mitchellwrosen/tmp-postgres/internal/resource"
)

// Instance is a running throwaway postgres server and everything it owns:
// the resolved configuration, the compiled plan, the server process, and
// the directories and port reservation released by Stop.
type Instance struct {
	deps     deps
	resolved Resolved
	plan     Plan
	server   *server
	scope    *resource.Scope

	mu sync.Mutex
	// handedOff is set by Restart: the resources now belong to the new
	// instance and Stop only reports this instance's exit code.
	handedOff  bool
	stopped    bool
	exitCode   int
	releaseErr error
}

// Start provisions and starts a postgres instance configured by cfg. The
// zero Config uses defaults for everything.
//
// On failure every acquired resource is released, any started server is
// stopped, and the returned error is a *StartError.
func Start(ctx context.Context, cfg Config) (*Instance, error) {
	return start(ctx, cfg, defaultDeps)
}

func start(ctx context.Context, cfg Config, d deps) (_ *Instance, err error) {
	id := uuid.NewString()
	scope := resource.NewScope(internalLog.With().Str("instance", id).Logger())

	var srv *server
	defer func() {
		if err == nil {
			return
		}
		if srv != nil {
			srv.stop()
		}
		_ = scope.Close()
	}()

	logger := cfg.Logger.ValueOr(defaultLogger())
	logger(Event{Kind: EventAllocatePort, InstanceID: id})
	resolved, err := resolve(cfg, scope, id)
	if err != nil {
		return nil, asStartError(err, ErrResources)
	}

	plan, err := compile(cfg, resolved)
	if err != nil {
		return nil, asStartError(err, ErrConfigIncomplete)
	}

	if plan.Init != nil {
		if err := ctx.Err(); err != nil {
			return nil, &StartError{Kind: ErrStartCanceled, Err: err}
		}
		resolved.emit(EventInitDB, 0)
		code, err := proc.Run(ctx, d.spawner, plan.Init.proc())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &StartError{Kind: ErrStartCanceled, Err: ctxErr}
		}
		if err != nil || code != 0 {
			return nil, &StartError{Kind: ErrInitFailed, ExitCode: code, Err: err}
		}
	}

	if err := ctx.Err(); err != nil {
		return nil, &StartError{Kind: ErrStartCanceled, Err: err}
	}
	srv, err = startServer(ctx, d, resolved, plan.Server)
	if err != nil {
		return nil, err
	}

	if plan.CreateDB != nil {
		resolved.emit(EventCreateDB, srv.handle.Pid())
		code, err := proc.Run(ctx, d.spawner, plan.CreateDB.proc())
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, &StartError{Kind: ErrStartCanceled, Err: ctxErr}
		}
		if err != nil || code != 0 {
			return nil, &StartError{Kind: ErrCreateDBFailed, ExitCode: code, Args: plan.CreateDB.Args, Err: err}
		}
	}

	resolved.emit(EventFinished, srv.handle.Pid())
	return &Instance{
		deps:     d,
		resolved: resolved,
		plan:     plan,
		server:   srv,
		scope:    scope,
	}, nil
}

// asStartError passes a *StartError through and tags anything else with kind.
func asStartError(err error, kind error) error {
	var se *StartError
	if errors.As(err, &se) {
		return se
	}
	return &StartError{Kind: kind, Err: err}
}

// Stop stops the server and releases the port reservation and owned
// directories, in that order. It returns the server's exit code; a clean
// interrupt shutdown exits 0. Calling Stop again returns the same code.
// The error reports resource release failures only.
func (i *Instance) Stop() (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.stopped {
		return i.exitCode, i.releaseErr
	}

	i.resolved.emit(EventStopServer, i.server.handle.Pid())
	i.exitCode = i.server.stop()
	i.stopped = true
	if i.handedOff {
		return i.exitCode, nil
	}

	i.resolved.emit(EventReleaseResources, 0)
	i.releaseErr = i.scope.Close()
	return i.exitCode, i.releaseErr
}

// Restart stops the server and starts a fresh one from the same resolved
// configuration and plan. The data directory, socket and port carry over
// to the returned instance; init and create-db are not re-run. After
// Restart the old instance only reports its exit code.
//
// If the new server fails to start, all resources are released.
func (i *Instance) Restart(ctx context.Context) (*Instance, error) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.handedOff {
		return nil, fmt.Errorf("instance %s was already restarted", i.resolved.InstanceID)
	}
	if i.stopped {
		return nil, fmt.Errorf("instance %s is stopped", i.resolved.InstanceID)
	}

	i.resolved.emit(EventStopServer, i.server.handle.Pid())
	i.exitCode = i.server.stop()
	i.stopped = true
	i.handedOff = true

	srv, err := startServer(ctx, i.deps, i.resolved, i.plan.Server)
	if err != nil {
		i.resolved.emit(EventReleaseResources, 0)
		_ = i.scope.Close()
		return nil, err
	}
	i.resolved.emit(EventFinished, srv.handle.Pid())
	return &Instance{
		deps:     i.deps,
		resolved: i.resolved,
		plan:     i.plan,
		server:   srv,
		scope:    i.scope,
	}, nil
}

// With starts an instance, runs fn, and stops the instance afterwards
// whether or not fn fails. fn's error takes precedence over a release
// failure.
func With(ctx context.Context, cfg Config, fn func(*Instance) error) (err error) {
	inst, err := Start(ctx, cfg)
	if err != nil {
		return err
	}
	defer func() {
		_, stopErr := inst.Stop()
		if err == nil {
			err = stopErr
		}
	}()
	return fn(inst)
}

// ID is the unique instance identifier used in events and logs.
func (i *Instance) ID() string { return i.resolved.InstanceID }

// DatabaseName is the database created for callers.
func (i *Instance) DatabaseName() string { return i.resolved.DatabaseName }

// Port is the server port.
func (i *Instance) Port() int { return i.resolved.Socket.Port }

// DataDir is the cluster directory.
func (i *Instance) DataDir() string { return i.resolved.DataDir }

// Socket is the socket descriptor clients connect through.
func (i *Instance) Socket() Socket { return i.resolved.Socket }

// Resolved returns the resolved configuration.
func (i *Instance) Resolved() Resolved { return i.resolved }

// Plan returns the compiled plan, including the init and create-db
// invocations that ran.
func (i *Instance) Plan() Plan { return i.plan }

// PID is the server process id.
func (i *Instance) PID() int { return i.server.handle.Pid() }

// State is the server lifecycle state.
func (i *Instance) State() ServerState { return i.server.currentState() }

// ConnOptions returns the resolved client connection parameters.
func (i *Instance) ConnOptions() ConnOptions { return i.resolved.Client }

// ConnString returns a postgres:// URL for the database.
func (i *Instance) ConnString() string { return i.resolved.Client.URL() }

// DSN returns a libpq keyword/value connection string for the database.
func (i *Instance) DSN() string { return i.resolved.Client.DSN() }

// Connect opens a pgx connection to the database.
func (i *Instance) Connect(ctx context.Context) (*pgx.Conn, error) {
	return pgclient.Connect(ctx, i.resolved.Client)
}
