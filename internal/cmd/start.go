package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	tmppostgres "github.com/mitchellwrosen/tmp-postgres"
	"github.com/mitchellwrosen/tmp-postgres/internal/pidfile"
	"github.com/mitchellwrosen/tmp-postgres/internal/style"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start a throwaway PostgreSQL server",
	Long: `Start a PostgreSQL server and keep it running until interrupted.

On Ctrl-C (SIGINT), SIGTERM or SIGHUP the server is stopped and its data
directory, socket directory and port reservation are released. SIGUSR1
restarts the server in place, keeping the data.

Every flag can also be set with a TMPPG_ environment variable named after
it, e.g. TMPPG_DBNAME or TMPPG_START_TIMEOUT. Flags win over the
environment, which wins over the --config file.`,
	Args: cobra.NoArgs,
	RunE: runStart,
}

func init() {
	addStartFlags(startCmd.Flags())
	rootCmd.AddCommand(startCmd)
}

func addStartFlags(fs *pflag.FlagSet) {
	fs.String("dbname", "", "Database to create (default \"test\")")
	fs.Int("port", 0, "Server port (default: a free port)")
	fs.String("socket", "", "Socket class: unix[:dir] or ip[:host]")
	fs.String("data-dir", "", "Cluster directory; kept on exit if it already exists")
	fs.String("bin-dir", "", "Directory holding initdb, postgres and createdb")
	fs.String("config", "", "TOML configuration file")
	fs.String("pid-file", defaultPIDFile(), "Where to record the running server; empty disables")
	fs.Duration("start-timeout", 0, "Give up if the server is not ready in time (0 waits forever)")
	fs.Duration("stop-timeout", 0, "Kill the server if it has not exited this long after the interrupt")
}

// newViper binds fs and the TMPPG_* environment into one lookup.
func newViper(fs *pflag.FlagSet) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix("TMPPG")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	return v, nil
}

// commandLayer turns the flags and environment that were actually set into
// a configuration layer, then merges the --config file beneath it.
func commandLayer(v *viper.Viper) (tmppostgres.Config, error) {
	var cfg tmppostgres.Config
	if v.IsSet("dbname") {
		cfg.DatabaseName = tmppostgres.Set(v.GetString("dbname"))
	}
	if v.IsSet("port") {
		port := v.GetInt("port")
		if port <= 0 || port > 65535 {
			return tmppostgres.Config{}, fmt.Errorf("invalid port %q", v.GetString("port"))
		}
		cfg.Port = tmppostgres.Set(port)
	}
	if v.IsSet("data-dir") {
		cfg.DataDirectory = tmppostgres.Set(v.GetString("data-dir"))
	}
	if v.IsSet("bin-dir") {
		cfg.BinDir = tmppostgres.Set(v.GetString("bin-dir"))
	}
	if v.IsSet("socket") {
		class, err := tmppostgres.ParseSocketClass(v.GetString("socket"))
		if err != nil {
			return tmppostgres.Config{}, err
		}
		cfg.Socket = tmppostgres.Set(class)
	}
	if v.IsSet("start-timeout") {
		cfg.StartTimeout = tmppostgres.Set(v.GetDuration("start-timeout"))
	}
	if v.IsSet("stop-timeout") {
		cfg.StopTimeout = tmppostgres.Set(v.GetDuration("stop-timeout"))
	}

	if path := v.GetString("config"); path != "" {
		file, err := tmppostgres.LoadConfigFile(path)
		if err != nil {
			return tmppostgres.Config{}, err
		}
		cfg = cfg.Merge(file)
	}
	return cfg, nil
}

func runStart(cmd *cobra.Command, args []string) error {
	v, err := newViper(cmd.Flags())
	if err != nil {
		return err
	}
	cfg, err := commandLayer(v)
	if err != nil {
		return err
	}
	cfg = cfg.Merge(tmppostgres.Config{Logger: tmppostgres.Set(tmppostgres.ZerologLogger(log.Logger))})

	pidPath := v.GetString("pid-file")
	if pidPath != "" {
		if err := checkPIDFile(pidPath); err != nil {
			return err
		}
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, startSignals()...)
	defer signal.Stop(sigs)

	// A signal during startup cancels it.
	startCtx, cancelStart := context.WithCancel(cmd.Context())
	defer cancelStart()
	started := make(chan struct{})
	go func() {
		select {
		case <-sigs:
			cancelStart()
		case <-started:
		}
	}()

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "%s Starting postgres...\n", style.Bold.Render("→"))
	inst, err := tmppostgres.Start(startCtx, cfg)
	close(started)
	if err != nil {
		return err
	}
	if startCtx.Err() != nil {
		code, err := inst.Stop()
		fmt.Fprintf(out, "%s postgres stopped (exit code %d)\n", style.Bold.Render("✓"), code)
		return err
	}

	printInstance(out, inst)
	if err := recordInstance(pidPath, inst); err != nil {
		_, _ = inst.Stop()
		return err
	}

	inst, err = waitForShutdown(cmd.Context(), out, sigs, inst, pidPath)
	if err != nil {
		removePIDFile(pidPath)
		return err
	}

	code, err := inst.Stop()
	removePIDFile(pidPath)
	if err != nil {
		return fmt.Errorf("releasing resources: %w", err)
	}
	fmt.Fprintf(out, "%s postgres stopped (exit code %d)\n", style.Bold.Render("✓"), code)
	return nil
}

// waitForShutdown blocks until a shutdown signal or ctx ends, restarting
// the server on restart signals. It returns the instance to stop.
func waitForShutdown(ctx context.Context, out io.Writer, sigs <-chan os.Signal, inst *tmppostgres.Instance, pidPath string) (*tmppostgres.Instance, error) {
	for {
		select {
		case <-ctx.Done():
			return inst, nil
		case sig := <-sigs:
			if !isRestartSignal(sig) {
				log.Debug().Str("signal", sig.String()).Msg("shutting down")
				return inst, nil
			}
		}

		fmt.Fprintf(out, "%s Restarting postgres...\n", style.Bold.Render("→"))
		fresh, err := inst.Restart(ctx)
		if err != nil {
			return nil, fmt.Errorf("restarting postgres: %w", err)
		}
		inst = fresh
		if err := recordInstance(pidPath, inst); err != nil {
			log.Warn().Err(err).Str("path", pidPath).Msg("updating PID file")
		}
		fmt.Fprintf(out, "%s postgres restarted (PID %d)\n", style.Bold.Render("✓"), inst.PID())
	}
}

func printInstance(out io.Writer, inst *tmppostgres.Instance) {
	fmt.Fprintf(out, "%s postgres is ready\n\n", style.Bold.Render("✓"))
	fmt.Fprintf(out, "  Database:  %s\n", inst.DatabaseName())
	fmt.Fprintf(out, "  URL:       %s\n", inst.ConnString())
	fmt.Fprintf(out, "  DSN:       %s\n", inst.DSN())
	fmt.Fprintf(out, "  Data dir:  %s\n", style.Dim.Render(inst.DataDir()))
	fmt.Fprintf(out, "  PID:       %d\n", inst.PID())
	fmt.Fprintf(out, "\n  %s\n", style.Dim.Render("(Press Ctrl-C to stop and remove everything)"))
}

// checkPIDFile refuses to overwrite the record of a server that is still
// running. A stale record is replaced.
func checkPIDFile(path string) error {
	rec, err := pidfile.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		log.Warn().Err(err).Str("path", path).Msg("ignoring unreadable PID file")
		return nil
	}
	if pidfile.Verify(rec) {
		return fmt.Errorf("postgres (PID %d) from a previous run is still recorded in %s; run 'tmppg cleanup' or pass --pid-file", rec.PID, path)
	}
	return nil
}

func recordInstance(path string, inst *tmppostgres.Instance) error {
	if path == "" {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating PID file directory: %w", err)
	}
	r := inst.Resolved()
	return pidfile.Write(path, pidfile.Record{
		PID:     inst.PID(),
		Nonce:   inst.ID(),
		Port:    inst.Port(),
		DataDir: r.DataDir,
		Dirs:    r.OwnedDirs(),
	})
}

func removePIDFile(path string) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("path", path).Msg("removing PID file")
	}
}
