package tmppostgres

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"sync"
	"time"

	"github.com/mitchellwrosen/tmp-postgres/internal/proc"
)

// fakeProcess is a proc.Handle driven by the test.
type fakeProcess struct {
	pid             int
	ignoreInterrupt bool

	once sync.Once
	done chan struct{}
	code int

	mu          sync.Mutex
	interrupted bool
}

func newFakeProcess(pid int) *fakeProcess {
	return &fakeProcess{pid: pid, done: make(chan struct{})}
}

func (p *fakeProcess) exit(code int) {
	p.once.Do(func() {
		p.code = code
		close(p.done)
	})
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Interrupt() error {
	p.mu.Lock()
	p.interrupted = true
	p.mu.Unlock()
	if !p.ignoreInterrupt {
		p.exit(0)
	}
	return nil
}

func (p *fakeProcess) Kill() error {
	p.exit(-1)
	return nil
}

func (p *fakeProcess) Poll() (int, bool) {
	select {
	case <-p.done:
		return p.code, true
	default:
		return 0, false
	}
}

func (p *fakeProcess) Wait() int {
	<-p.done
	return p.code
}

func (p *fakeProcess) Done() <-chan struct{} { return p.done }

func (p *fakeProcess) running() bool {
	_, exited := p.Poll()
	return !exited
}

func (p *fakeProcess) wasInterrupted() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.interrupted
}

// fakeCluster stands in for the postgres binaries and the network client.
type fakeCluster struct {
	// Exit codes for the one-shot programs.
	initCode   int
	createCode int

	// serverCrash, when set, makes postgres exit with this code right away.
	serverCrash *int
	// serverNeverReady keeps postgres running without ever answering.
	serverNeverReady bool
	// serverIgnoresInterrupt makes postgres ignore the interrupt signal.
	serverIgnoresInterrupt bool
	// spawnErr fails spawning of the named program.
	spawnErr map[string]error
	// hangs keeps the named one-shot program running until it is killed.
	hangs map[string]bool

	terminateErr error
	// terminateBlock, when set, holds the termination query until closed.
	terminateBlock chan struct{}

	mu         sync.Mutex
	nextPid    int
	spawned    []proc.Plan
	servers    []*fakeProcess
	terminated []string
}

func (c *fakeCluster) deps() deps {
	return deps{
		spawner:      c,
		ping:         c.ping,
		terminate:    c.terminate,
		pollInterval: time.Millisecond,
	}
}

func (c *fakeCluster) Spawn(p proc.Plan) (proc.Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	name := filepath.Base(p.Program)
	if err := c.spawnErr[name]; err != nil {
		return nil, err
	}
	c.spawned = append(c.spawned, p)
	c.nextPid++
	fp := newFakeProcess(1000 + c.nextPid)

	switch {
	case c.hangs[name]:
	case name == "initdb":
		fp.exit(c.initCode)
	case name == "createdb":
		fp.exit(c.createCode)
	case name == "postgres":
		fp.ignoreInterrupt = c.serverIgnoresInterrupt
		if c.serverCrash != nil {
			fp.exit(*c.serverCrash)
		}
		c.servers = append(c.servers, fp)
	default:
		fp.exit(127)
	}
	return fp, nil
}

func (c *fakeCluster) ping(ctx context.Context, o ConnOptions) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.serverNeverReady || len(c.servers) == 0 {
		return errors.New("connection refused")
	}
	if !c.servers[len(c.servers)-1].running() {
		return errors.New("connection refused")
	}
	return nil
}

func (c *fakeCluster) terminate(ctx context.Context, o ConnOptions, db string) error {
	c.mu.Lock()
	c.terminated = append(c.terminated, db)
	block, err := c.terminateBlock, c.terminateErr
	c.mu.Unlock()
	if block != nil {
		<-block
	}
	return err
}

func (c *fakeCluster) programs() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	var names []string
	for _, p := range c.spawned {
		names = append(names, filepath.Base(p.Program))
	}
	return names
}

func (c *fakeCluster) lastServer() *fakeProcess {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.servers) == 0 {
		return nil
	}
	return c.servers[len(c.servers)-1]
}

// eventRecorder collects lifecycle events.
type eventRecorder struct {
	mu     sync.Mutex
	events []Event
}

func (r *eventRecorder) logger() Logger {
	return func(e Event) {
		r.mu.Lock()
		defer r.mu.Unlock()
		r.events = append(r.events, e)
	}
}

func (r *eventRecorder) kinds() []EventKind {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]EventKind, len(r.events))
	for i, e := range r.events {
		out[i] = e.Kind
	}
	return out
}

// dataDir returns the data directory reported by the first event that
// carried one.
func (r *eventRecorder) dataDir() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e.DataDir != "" {
			return e.DataDir
		}
	}
	return ""
}

func intPtr(v int) *int { return &v }

// syncBuffer is a bytes.Buffer safe for the copy goroutines of os/exec.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
