package tmppostgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/mitchellwrosen/tmp-postgres/internal/pgclient"
	"github.com/mitchellwrosen/tmp-postgres/internal/proc"
)

const (
	// defaultPollInterval is how often the readiness race probes the socket
	// and checks whether the server exited.
	defaultPollInterval = 100 * time.Millisecond

	// probeTimeout bounds a single readiness connection attempt.
	probeTimeout = 2 * time.Second

	// drainTimeout bounds the best-effort connection termination on stop.
	drainTimeout = 5 * time.Second

	// abandonGrace is how long a server that failed to become ready gets to
	// exit after the interrupt before it is killed.
	abandonGrace = 10 * time.Second
)

// deps are the external collaborators of the lifecycle controller.
type deps struct {
	spawner      proc.Spawner
	ping         func(ctx context.Context, o ConnOptions) error
	terminate    func(ctx context.Context, o ConnOptions, db string) error
	pollInterval time.Duration
}

var defaultDeps = deps{
	spawner:      proc.Exec{},
	ping:         pgclient.Ping,
	terminate:    pgclient.TerminateConnections,
	pollInterval: defaultPollInterval,
}

// ServerState is the lifecycle state of a server process.
type ServerState int

const (
	StateNotStarted ServerState = iota
	StateStarting
	StateReady
	StateStopping
	StateStopped
	StateFailed
)

func (s ServerState) String() string {
	switch s {
	case StateNotStarted:
		return "not-started"
	case StateStarting:
		return "starting"
	case StateReady:
		return "ready"
	case StateStopping:
		return "stopping"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	}
	return "unknown"
}

// errReady ends the readiness race successfully by canceling the losing
// branch through the errgroup context.
var errReady = errors.New("server ready")

// server is one running postgres process started from a ServerPlan.
type server struct {
	deps     deps
	resolved Resolved
	plan     ServerPlan
	handle   proc.Handle

	mu       sync.Mutex
	state    ServerState
	exitCode int
}

// startServer writes the config file, spawns postgres and races readiness
// against exit. On failure the process is torn down before returning.
func startServer(ctx context.Context, d deps, r Resolved, plan ServerPlan) (*server, error) {
	s := &server{deps: d, resolved: r, plan: plan, state: StateStarting}

	r.emit(EventWriteConfig, 0)
	if err := os.WriteFile(plan.ConfigPath, []byte(plan.ConfigFile), 0600); err != nil {
		return nil, &StartError{Kind: ErrResources, Err: fmt.Errorf("writing %s: %w", plan.ConfigPath, err)}
	}

	handle, err := d.spawner.Spawn(plan.Process.proc())
	if err != nil {
		return nil, &StartError{Kind: ErrServerStartFailed, ExitCode: proc.CodeUnknown, Err: err}
	}
	s.handle = handle
	r.emit(EventStartServer, handle.Pid())

	r.emit(EventWaitForReady, handle.Pid())
	if err := s.waitReady(ctx); err != nil {
		s.abandon()
		return nil, err
	}

	s.mu.Lock()
	s.state = StateReady
	s.mu.Unlock()
	return s, nil
}

// waitReady runs the two race branches: probing the client socket and
// polling the process exit status. Whichever settles first cancels the
// other, and both goroutines have returned by the time waitReady does.
func (s *server) waitReady(ctx context.Context) error {
	if s.resolved.StartTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.resolved.StartTimeout)
		defer cancel()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.pollConnectable(gctx) })
	g.Go(func() error { return s.pollExited(gctx) })

	err := g.Wait()
	switch {
	case errors.Is(err, errReady):
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return &StartError{Kind: ErrStartCanceled, Err: err}
	}
	return err
}

func (s *server) pollConnectable(ctx context.Context) error {
	ticker := time.NewTicker(s.deps.pollInterval)
	defer ticker.Stop()
	for {
		attempt, cancel := context.WithTimeout(ctx, probeTimeout)
		err := s.deps.ping(attempt, s.resolved.Client)
		cancel()
		if err == nil {
			return errReady
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *server) pollExited(ctx context.Context) error {
	ticker := time.NewTicker(s.deps.pollInterval)
	defer ticker.Stop()
	for {
		if code, exited := s.handle.Poll(); exited {
			if code == proc.CodeUnknown {
				return &StartError{Kind: ErrServerDisappeared}
			}
			return &StartError{Kind: ErrServerStartFailed, ExitCode: code}
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// abandon tears down a server that never became ready.
func (s *server) abandon() {
	timeout := s.resolved.StopTimeout
	if timeout <= 0 {
		timeout = abandonGrace
	}
	code := s.shutdown(timeout)

	s.mu.Lock()
	s.state = StateFailed
	s.exitCode = code
	s.mu.Unlock()
}

// stop drains client connections, interrupts the server and waits for it
// to exit. Calling stop again returns the same exit code. The state reads
// StateStopping while the shutdown is in progress.
func (s *server) stop() int {
	s.mu.Lock()
	switch s.state {
	case StateStopped, StateFailed:
		code := s.exitCode
		s.mu.Unlock()
		return code
	case StateStopping:
		s.mu.Unlock()
		return s.handle.Wait()
	}
	s.state = StateStopping
	s.mu.Unlock()

	// Best effort: a server that is already shutting down refuses the side
	// connection, and the interrupt below still stops it.
	ctx, cancel := context.WithTimeout(context.Background(), drainTimeout)
	if err := s.deps.terminate(ctx, s.resolved.Client, s.resolved.DatabaseName); err != nil {
		internalLog.Debug().Err(err).Str("instance", s.resolved.InstanceID).Msg("terminating connections")
	}
	cancel()

	code := s.shutdown(s.resolved.StopTimeout)

	s.mu.Lock()
	s.exitCode = code
	s.state = StateStopped
	s.mu.Unlock()
	return code
}

// shutdown interrupts the process and waits for it. With a positive
// timeout the process is killed if it has not exited in time.
func (s *server) shutdown(timeout time.Duration) int {
	if err := s.handle.Interrupt(); err != nil {
		// Windows cannot interrupt a child; waiting (or the kill below) is
		// all that is left.
		if !errors.Is(err, proc.ErrSignalUnsupported) {
			internalLog.Warn().Err(err).Int("pid", s.handle.Pid()).Msg("interrupting postgres")
		}
	}
	if timeout <= 0 {
		return s.handle.Wait()
	}
	if code, ok := proc.WaitTimeout(s.handle, timeout); ok {
		return code
	}
	internalLog.Warn().Int("pid", s.handle.Pid()).Dur("timeout", timeout).Msg("postgres did not exit, killing")
	if err := s.handle.Kill(); err != nil {
		internalLog.Warn().Err(err).Int("pid", s.handle.Pid()).Msg("killing postgres")
	}
	return s.handle.Wait()
}

func (s *server) currentState() ServerState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// emit sends a lifecycle event to the resolved logger.
func (r Resolved) emit(kind EventKind, pid int) {
	r.Logger(Event{
		Kind:       kind,
		InstanceID: r.InstanceID,
		DataDir:    r.DataDir,
		Port:       r.Socket.Port,
		PID:        pid,
	})
}
