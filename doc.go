// Package tmppostgres starts throwaway PostgreSQL servers for tests and
// local development.
//
// A server is described by layered, partial configuration. Each Config
// layer may leave any field unset; layers combine with Merge, where the
// left side wins, and Start resolves the result against computed defaults:
// a temporary data directory, a free port, a Unix socket in a temporary
// directory, and initdb/postgres/createdb found on PATH or via pg_config.
//
//	inst, err := tmppostgres.Start(ctx, tmppostgres.Config{
//		DatabaseName: tmppostgres.Set("example"),
//	})
//	if err != nil {
//		return err
//	}
//	defer inst.Stop()
//
//	conn, err := inst.Connect(ctx)
//
// Start runs initdb, writes postgresql.conf, starts postgres, waits until
// it accepts connections or exits, then runs createdb. Any failure tears
// down what was started and returns a *StartError whose Kind is one of
// the Err* sentinels. Stop terminates client sessions, interrupts the
// server and removes the directories and port reservation it owned.
//
// Lifecycle events are delivered to Config.Logger. Set TMPPG_DEBUG to log
// them, and cleanup warnings, to stderr.
package tmppostgres
