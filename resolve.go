package tmppostgres

import (
	"path/filepath"
	"runtime"
	"time"

	"github.com/mitchellwrosen/tmp-postgres/internal/pgclient"
	"github.com/mitchellwrosen/tmp-postgres/internal/resource"
)

// DefaultDatabaseName is the database created when no layer names one.
const DefaultDatabaseName = "test"

// ConnOptions are resolved client connection parameters.
type ConnOptions = pgclient.Options

// Resolved is a configuration layer with every field filled in. It is
// created once per instance and shared unchanged by restarts.
type Resolved struct {
	InstanceID   string
	DatabaseName string

	// DataDir is the cluster directory; DataDirOwned reports whether it is
	// removed on Stop.
	DataDir      string
	DataDirOwned bool

	Socket         Socket
	SocketDirOwned bool

	Client ConnOptions
	Logger Logger

	BinDir       string
	StartTimeout time.Duration
	StopTimeout  time.Duration
}

// OwnedDirs lists the directories removed when the instance is released.
func (r Resolved) OwnedDirs() []string {
	var dirs []string
	if r.DataDirOwned {
		dirs = append(dirs, r.DataDir)
	}
	if r.SocketDirOwned {
		dirs = append(dirs, r.Socket.Host)
	}
	return dirs
}

// defaultSocketClass is a Unix socket everywhere but Windows.
func defaultSocketClass() SocketClass {
	if runtime.GOOS == "windows" {
		return IPSocket("")
	}
	return UnixSocket("")
}

// resolve acquires the data directory, port and socket for cfg, in that
// order, registering each release with scope, and fills every remaining
// field from defaults. Releasing the scope undoes them socket first.
func resolve(cfg Config, scope *resource.Scope, id string) (Resolved, error) {
	r := Resolved{
		InstanceID:   id,
		DatabaseName: cfg.DatabaseName.ValueOr(DefaultDatabaseName),
		Logger:       cfg.Logger.ValueOr(defaultLogger()),
		BinDir:       cfg.BinDir.ValueOr(""),
		StartTimeout: cfg.StartTimeout.ValueOr(0),
		StopTimeout:  cfg.StopTimeout.ValueOr(0),
	}

	dataDir, err := scope.AcquireDir(cfg.DataDirectory.ValueOr(""), "tmppg-data-*")
	if err != nil {
		return Resolved{}, err
	}
	r.DataDir, err = filepath.Abs(dataDir.Path)
	if err != nil {
		return Resolved{}, err
	}
	r.DataDirOwned = dataDir.Owned

	port, err := scope.ReservePort(cfg.Port.ValueOr(0))
	if err != nil {
		return Resolved{}, err
	}

	class := cfg.Socket.ValueOr(defaultSocketClass())
	r.Socket = Socket{Class: class, Port: port}
	if class.IsUnix() {
		sockDir, err := scope.AcquireDir(class.where, "tmppg-sock-*")
		if err != nil {
			return Resolved{}, err
		}
		r.Socket.Host = sockDir.Path
		r.SocketDirOwned = sockDir.Owned
	} else {
		r.Socket.Host = class.where
		if r.Socket.Host == "" {
			r.Socket.Host = "127.0.0.1"
		}
	}

	client, err := resolveClient(cfg.Client.Merge(ClientConfig{
		Host:   Set(r.Socket.Host),
		Port:   Set(port),
		DBName: Set(r.DatabaseName),
	}))
	if err != nil {
		return Resolved{}, err
	}
	r.Client = client
	return r, nil
}

// resolveClient requires host, port and database name after the merge.
func resolveClient(c ClientConfig) (ConnOptions, error) {
	host, ok := c.Host.Get()
	if !ok || host == "" {
		return ConnOptions{}, incomplete(PlanClient, "host")
	}
	port, ok := c.Port.Get()
	if !ok {
		return ConnOptions{}, incomplete(PlanClient, "port")
	}
	db, ok := c.DBName.Get()
	if !ok || db == "" {
		return ConnOptions{}, incomplete(PlanClient, "dbname")
	}
	return ConnOptions{
		Host:     host,
		Port:     port,
		User:     c.User.ValueOr(""),
		Password: c.Password.ValueOr(""),
		DBName:   db,
		Params:   c.Params,
	}, nil
}
