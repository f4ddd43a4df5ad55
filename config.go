package tmppostgres

import (
	"io"
	"time"
)

// Config is one configuration layer. Every field is optional; layers are
// combined with Merge, where a field set on the left wins and unset fields
// fall through to the right. The zero Config is the identity layer.
//
// Typical composition is caller ⊕ environment ⊕ file, resolved against
// computed defaults by Start:
//
//	env, err := tmppostgres.ConfigFromEnv()
//	if err != nil {
//		return err
//	}
//	cfg := tmppostgres.Merge(
//		tmppostgres.Config{DatabaseName: tmppostgres.Set("example")},
//		env,
//	)
//	inst, err := tmppostgres.Start(ctx, cfg)
type Config struct {
	// DatabaseName is the database created by the create-db plan (default "test").
	DatabaseName Optional[string]

	// DataDirectory is the cluster directory. Unset means a fresh temporary
	// directory that is removed on Stop. A directory that already exists is
	// left in place on Stop.
	DataDirectory Optional[string]

	// Port is the server port, also used to name the Unix socket file.
	// Unset means a free port is picked and reserved.
	Port Optional[int]

	// Socket selects how clients reach the server (default Unix socket in a
	// temporary directory; loopback IP on Windows).
	Socket Optional[SocketClass]

	// Logger receives lifecycle events in order.
	Logger Optional[Logger]

	// BinDir is searched for initdb, postgres and createdb when they are
	// not on PATH.
	BinDir Optional[string]

	// StartTimeout bounds the readiness race. Unset means no bound beyond
	// the context passed to Start.
	StartTimeout Optional[time.Duration]

	// StopTimeout bounds the wait after the interrupt signal on Stop before
	// the server is killed. Unset means wait for as long as it takes.
	StopTimeout Optional[time.Duration]

	Client   ClientConfig
	InitDB   ProcessConfig
	CreateDB ProcessConfig
	Server   ServerConfig
}

// ClientConfig is the partial set of connection parameters used to reach
// the server.
type ClientConfig struct {
	Host     Optional[string]
	Port     Optional[int]
	User     Optional[string]
	Password Optional[string]
	DBName   Optional[string]

	// Params are extra libpq parameters such as sslmode or application_name.
	Params map[string]string
}

// ProcessConfig is a partial description of one external program run.
type ProcessConfig struct {
	// Skip leaves the process out of the lifecycle entirely. Only
	// meaningful for the init and create-db processes.
	Skip Optional[bool]

	Program Optional[string]
	Args    Args

	// Env is added on top of the parent environment.
	Env map[string]string

	Dir    Optional[string]
	Stdout Optional[io.Writer]
	Stderr Optional[io.Writer]
}

// ServerConfig is the partial server process description plus the
// postgresql.conf strategy.
type ServerConfig struct {
	ProcessConfig
	ConfigFile FileContent
}

// Merge returns c layered over other.
func (c Config) Merge(other Config) Config {
	return Config{
		DatabaseName:  c.DatabaseName.Or(other.DatabaseName),
		DataDirectory: c.DataDirectory.Or(other.DataDirectory),
		Port:          c.Port.Or(other.Port),
		Socket:        c.Socket.Or(other.Socket),
		Logger:        c.Logger.Or(other.Logger),
		BinDir:        c.BinDir.Or(other.BinDir),
		StartTimeout:  c.StartTimeout.Or(other.StartTimeout),
		StopTimeout:   c.StopTimeout.Or(other.StopTimeout),
		Client:        c.Client.Merge(other.Client),
		InitDB:        c.InitDB.Merge(other.InitDB),
		CreateDB:      c.CreateDB.Merge(other.CreateDB),
		Server:        c.Server.Merge(other.Server),
	}
}

// Merge folds layers left to right; the first layer has the highest
// priority. Merge() is the empty layer.
func Merge(layers ...Config) Config {
	var out Config
	for i := len(layers) - 1; i >= 0; i-- {
		out = layers[i].Merge(out)
	}
	return out
}

// Merge returns c layered over other.
func (c ClientConfig) Merge(other ClientConfig) ClientConfig {
	return ClientConfig{
		Host:     c.Host.Or(other.Host),
		Port:     c.Port.Or(other.Port),
		User:     c.User.Or(other.User),
		Password: c.Password.Or(other.Password),
		DBName:   c.DBName.Or(other.DBName),
		Params:   mergeMap(c.Params, other.Params),
	}
}

// Merge returns p layered over other.
func (p ProcessConfig) Merge(other ProcessConfig) ProcessConfig {
	return ProcessConfig{
		Skip:    p.Skip.Or(other.Skip),
		Program: p.Program.Or(other.Program),
		Args:    p.Args.Merge(other.Args),
		Env:     mergeMap(p.Env, other.Env),
		Dir:     p.Dir.Or(other.Dir),
		Stdout:  p.Stdout.Or(other.Stdout),
		Stderr:  p.Stderr.Or(other.Stderr),
	}
}

// Merge returns s layered over other.
func (s ServerConfig) Merge(other ServerConfig) ServerConfig {
	return ServerConfig{
		ProcessConfig: s.ProcessConfig.Merge(other.ProcessConfig),
		ConfigFile:    s.ConfigFile.Merge(other.ConfigFile),
	}
}
