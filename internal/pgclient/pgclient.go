// Package pgclient is the thin pgx layer used to probe a starting server
// and to drain its connections before shutdown.
package pgclient

import (
	"context"
	"fmt"
	"net"
	"net/url"
	"sort"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
)

// BootstrapDB is the database that exists in every fresh cluster and is
// used for probing and administrative queries.
const BootstrapDB = "template1"

// terminateQuery disconnects every other backend attached to a database.
const terminateQuery = `SELECT pg_terminate_backend(pid)
FROM pg_stat_activity
WHERE datname = $1 AND pid <> pg_backend_pid()`

// Options are resolved client connection parameters.
type Options struct {
	// Host is a hostname or, for Unix sockets, the socket directory.
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	Params   map[string]string
}

// WithDB returns a copy of o that connects to db.
func (o Options) WithDB(db string) Options {
	o.DBName = db
	return o
}

// DSN renders the options as a libpq keyword/value string.
func (o Options) DSN() string {
	pairs := []string{
		"host=" + quote(o.Host),
		"port=" + strconv.Itoa(o.Port),
	}
	if o.User != "" {
		pairs = append(pairs, "user="+quote(o.User))
	}
	if o.Password != "" {
		pairs = append(pairs, "password="+quote(o.Password))
	}
	if o.DBName != "" {
		pairs = append(pairs, "dbname="+quote(o.DBName))
	}
	for _, k := range sortedKeys(o.Params) {
		pairs = append(pairs, k+"="+quote(o.Params[k]))
	}
	return strings.Join(pairs, " ")
}

// URL renders the options as a postgres:// URL. Unix socket directories
// are passed in the host query parameter.
func (o Options) URL() string {
	u := url.URL{Scheme: "postgres", Path: "/" + o.DBName}
	q := url.Values{}
	if strings.HasPrefix(o.Host, "/") {
		q.Set("host", o.Host)
		q.Set("port", strconv.Itoa(o.Port))
	} else {
		u.Host = net.JoinHostPort(o.Host, strconv.Itoa(o.Port))
	}
	if o.User != "" {
		if o.Password != "" {
			u.User = url.UserPassword(o.User, o.Password)
		} else {
			u.User = url.User(o.User)
		}
	}
	for k, v := range o.Params {
		q.Set(k, v)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

// ConnConfig parses the options into a pgx configuration.
func (o Options) ConnConfig() (*pgx.ConnConfig, error) {
	cfg, err := pgx.ParseConfig(o.DSN())
	if err != nil {
		return nil, fmt.Errorf("parsing connection options: %w", err)
	}
	return cfg, nil
}

// Connect opens a connection.
func Connect(ctx context.Context, o Options) (*pgx.Conn, error) {
	cfg, err := o.ConnConfig()
	if err != nil {
		return nil, err
	}
	return pgx.ConnectConfig(ctx, cfg)
}

// Ping opens and closes a connection to the bootstrap database. It succeeds
// once the server is accepting connections.
func Ping(ctx context.Context, o Options) error {
	conn, err := Connect(ctx, o.WithDB(BootstrapDB))
	if err != nil {
		return err
	}
	return conn.Close(ctx)
}

// TerminateConnections disconnects every client of db, using a side
// connection to the bootstrap database.
func TerminateConnections(ctx context.Context, o Options, db string) error {
	conn, err := Connect(ctx, o.WithDB(BootstrapDB))
	if err != nil {
		return fmt.Errorf("connecting to %s: %w", BootstrapDB, err)
	}
	defer func() { _ = conn.Close(ctx) }()

	if _, err := conn.Exec(ctx, terminateQuery, db); err != nil {
		return fmt.Errorf("terminating connections to %s: %w", db, err)
	}
	return nil
}

// quote escapes a libpq keyword value.
func quote(v string) string {
	if v != "" && !strings.ContainsAny(v, ` '\`) {
		return v
	}
	v = strings.ReplaceAll(v, `\`, `\\`)
	v = strings.ReplaceAll(v, `'`, `\'`)
	return "'" + v + "'"
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
