// Package proc spawns external programs and exposes the small capability
// set the lifecycle controller needs: signal, poll, wait.
//
// Every spawned process is reaped by a background goroutine, so Poll never
// blocks and Wait may be called any number of times; all callers observe the
// same exit code.
package proc

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// ErrSignalUnsupported is returned by Interrupt on platforms that cannot
// deliver an interrupt to a child process.
var ErrSignalUnsupported = errors.New("interrupt signal not supported on this platform")

// CodeUnknown is reported when the process is gone but its exit status
// could not be observed.
const CodeUnknown = -2

// outputDrain bounds how long output is still copied once the process has
// exited. Descendants may keep the pipes open long after that.
const outputDrain = time.Second

// Plan is a fully resolved program invocation.
type Plan struct {
	Program string
	Args    []string
	// Env is added on top of the parent environment.
	Env    map[string]string
	Dir    string
	Stdout io.Writer
	Stderr io.Writer
}

// Handle is a running (or exited) process.
type Handle interface {
	Pid() int
	// Interrupt asks the process to shut down.
	Interrupt() error
	// Kill terminates the process immediately.
	Kill() error
	// Poll reports the exit code if the process has exited.
	Poll() (code int, exited bool)
	// Wait blocks until the process exits and returns its exit code.
	Wait() int
	// Done is closed once the process has exited.
	Done() <-chan struct{}
}

// Spawner starts processes.
type Spawner interface {
	Spawn(p Plan) (Handle, error)
}

// Exec spawns real operating system processes with os/exec.
type Exec struct{}

// Spawn starts the program and begins reaping it in the background.
func (Exec) Spawn(p Plan) (Handle, error) {
	cmd := exec.Command(p.Program, p.Args...)
	cmd.Dir = p.Dir
	cmd.Env = environ(p.Env)
	cmd.Stdin = nil
	cmd.Stdout = output(p.Stdout)
	cmd.Stderr = output(p.Stderr)
	cmd.WaitDelay = outputDrain
	setProcAttr(cmd)

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("starting %s: %w", p.Program, err)
	}

	h := &process{cmd: cmd, done: make(chan struct{})}
	// Reap the process in the background.
	go func() {
		err := cmd.Wait()
		h.mu.Lock()
		h.code = exitCode(cmd, err)
		h.mu.Unlock()
		close(h.done)
	}()
	return h, nil
}

// Run spawns the plan and waits for it to exit. If ctx is done first the
// process is killed, and Run returns its exit code along with ctx.Err().
func Run(ctx context.Context, s Spawner, p Plan) (int, error) {
	h, err := s.Spawn(p)
	if err != nil {
		return CodeUnknown, err
	}
	select {
	case <-h.Done():
		return h.Wait(), nil
	case <-ctx.Done():
		if err := h.Kill(); err != nil {
			return CodeUnknown, fmt.Errorf("killing %s: %w", p.Program, err)
		}
		return h.Wait(), ctx.Err()
	}
}

// WaitTimeout waits up to d for the process to exit. It reports false if
// the process is still running.
func WaitTimeout(h Handle, d time.Duration) (int, bool) {
	select {
	case <-h.Done():
		return h.Wait(), true
	case <-time.After(d):
		return 0, false
	}
}

type process struct {
	cmd  *exec.Cmd
	done chan struct{}

	mu   sync.Mutex
	code int
}

func (h *process) Pid() int { return h.cmd.Process.Pid }

func (h *process) Interrupt() error {
	if h.exited() {
		return nil
	}
	return interrupt(h.cmd.Process)
}

func (h *process) Kill() error {
	if h.exited() {
		return nil
	}
	if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return err
	}
	return nil
}

func (h *process) Poll() (int, bool) {
	if !h.exited() {
		return 0, false
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code, true
}

func (h *process) Wait() int {
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.code
}

func (h *process) Done() <-chan struct{} { return h.done }

func (h *process) exited() bool {
	select {
	case <-h.done:
		return true
	default:
		return false
	}
}

// output maps io.Discard to nil so the child writes to the null device
// instead of a pipe.
func output(w io.Writer) io.Writer {
	if w == io.Discard {
		return nil
	}
	return w
}

// exitCode maps the result of cmd.Wait to an exit code. Processes killed by
// a signal report -1, matching os.ProcessState.ExitCode; a failed wait
// reports CodeUnknown.
func exitCode(cmd *exec.Cmd, err error) int {
	if cmd.ProcessState != nil {
		return cmd.ProcessState.ExitCode()
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		return exitErr.ExitCode()
	}
	return CodeUnknown
}

// environ returns the parent environment with extra applied on top, in a
// stable order.
func environ(extra map[string]string) []string {
	env := os.Environ()
	if len(extra) == 0 {
		return env
	}
	keys := make([]string, 0, len(extra))
	for k := range extra {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	out := make([]string, 0, len(env)+len(extra))
	for _, e := range env {
		name, _, _ := strings.Cut(e, "=")
		if _, ok := extra[name]; !ok {
			out = append(out, e)
		}
	}
	for _, k := range keys {
		out = append(out, k+"="+extra[k])
	}
	return out
}
