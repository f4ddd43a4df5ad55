package tmppostgres

import (
	"io"
	"os"
	"path/filepath"
	"strconv"

	"github.com/mitchellwrosen/tmp-postgres/internal/proc"
)

// ProcessPlan is a fully resolved program invocation.
type ProcessPlan struct {
	Program string
	Args    []string
	Env     map[string]string
	Dir     string
	Stdout  io.Writer
	Stderr  io.Writer
}

func (p ProcessPlan) proc() proc.Plan {
	return proc.Plan{
		Program: p.Program,
		Args:    p.Args,
		Env:     p.Env,
		Dir:     p.Dir,
		Stdout:  p.Stdout,
		Stderr:  p.Stderr,
	}
}

// ServerPlan is the server invocation plus the postgresql.conf it runs with.
type ServerPlan struct {
	Process ProcessPlan
	// ConfigPath is where ConfigFile is written before each start.
	ConfigPath string
	ConfigFile string
}

// Plan is the compiled set of invocations for one instance. Init and
// CreateDB are nil when skipped.
type Plan struct {
	Init     *ProcessPlan
	CreateDB *ProcessPlan
	Server   ServerPlan
}

// compile merges the caller's process layers over defaults computed from r
// and requires every mandatory field to be present afterwards.
func compile(cfg Config, r Resolved) (Plan, error) {
	var plan Plan

	initCfg := cfg.InitDB.Merge(defaultInitConfig(r))
	if !initCfg.Skip.ValueOr(false) {
		p, err := resolveProcess(PlanInit, initCfg)
		if err != nil {
			return Plan{}, err
		}
		plan.Init = &p
	}

	createCfg := cfg.CreateDB.Merge(defaultCreateDBConfig(r))
	if !createCfg.Skip.ValueOr(false) {
		p, err := resolveProcess(PlanCreateDB, createCfg)
		if err != nil {
			return Plan{}, err
		}
		plan.CreateDB = &p
	}

	server, err := resolveServer(cfg.Server.Merge(defaultServerConfig(r)))
	if err != nil {
		return Plan{}, err
	}
	server.ConfigPath = filepath.Join(r.DataDir, "postgresql.conf")
	plan.Server = server
	return plan, nil
}

func resolveProcess(name string, c ProcessConfig) (ProcessPlan, error) {
	program, ok := c.Program.Get()
	if !ok || program == "" {
		return ProcessPlan{}, incomplete(name, "program")
	}
	dir, ok := c.Dir.Get()
	if !ok {
		return ProcessPlan{}, incomplete(name, "dir")
	}
	stdout, ok := c.Stdout.Get()
	if !ok {
		return ProcessPlan{}, incomplete(name, "stdout")
	}
	stderr, ok := c.Stderr.Get()
	if !ok {
		return ProcessPlan{}, incomplete(name, "stderr")
	}
	return ProcessPlan{
		Program: program,
		Args:    c.Args.Render(),
		Env:     c.Env,
		Dir:     dir,
		Stdout:  stdout,
		Stderr:  stderr,
	}, nil
}

// resolveServer additionally requires the config file strategy to have
// reached Replace; an Append-only file has no defined content.
func resolveServer(c ServerConfig) (ServerPlan, error) {
	p, err := resolveProcess(PlanServer, c.ProcessConfig)
	if err != nil {
		return ServerPlan{}, err
	}
	if !c.ConfigFile.IsReplace() {
		return ServerPlan{}, incomplete(PlanServer, "config file")
	}
	return ServerPlan{
		Process:    p,
		ConfigFile: c.ConfigFile.render(),
	}, nil
}

// hasCluster reports whether dir already holds an initialized cluster.
func hasCluster(dir string) bool {
	_, err := os.Stat(filepath.Join(dir, "PG_VERSION"))
	return err == nil
}

func defaultInitConfig(r Resolved) ProcessConfig {
	return ProcessConfig{
		Skip:    Set(!r.DataDirOwned && hasCluster(r.DataDir)),
		Program: Set(FindProgram(r.BinDir, "initdb")),
		Args:    Switch("--nosync").Merge(Flag("--pgdata", r.DataDir)),
		Dir:     Set(r.DataDir),
		Stdout:  Set[io.Writer](io.Discard),
		Stderr:  Set[io.Writer](io.Discard),
	}
}

func defaultCreateDBConfig(r Resolved) ProcessConfig {
	args := Flag("-h", r.Client.Host).
		Merge(Flag("-p", strconv.Itoa(r.Client.Port))).
		Merge(Positional(r.DatabaseName))
	var env map[string]string
	if r.Client.User != "" {
		args = args.Merge(Flag("-U", r.Client.User))
	}
	if r.Client.Password != "" {
		env = map[string]string{"PGPASSWORD": r.Client.Password}
	}
	return ProcessConfig{
		Skip:    Set(false),
		Program: Set(FindProgram(r.BinDir, "createdb")),
		Args:    args,
		Env:     env,
		Dir:     Set(r.DataDir),
		Stdout:  Set[io.Writer](io.Discard),
		Stderr:  Set[io.Writer](io.Discard),
	}
}

func defaultServerConfig(r Resolved) ServerConfig {
	return ServerConfig{
		ProcessConfig: ProcessConfig{
			Program: Set(FindProgram(r.BinDir, "postgres")),
			Args: Flag("-D", r.DataDir).
				Merge(Flag("-p", strconv.Itoa(r.Socket.Port))),
			Dir:    Set(r.DataDir),
			Stdout: Set[io.Writer](io.Discard),
			Stderr: Set[io.Writer](io.Discard),
		},
		ConfigFile: ReplaceLines(append(defaultServerSettings(), r.Socket.listenDirectives()...)...),
	}
}
