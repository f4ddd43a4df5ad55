package tmppostgres

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables read by ConfigFromEnv.
const (
	EnvDatabaseName = "TMPPG_DBNAME"
	EnvPort         = "TMPPG_PORT"
	EnvDataDir      = "TMPPG_DATA_DIR"
	EnvSocket       = "TMPPG_SOCKET"
	EnvBinDir       = "TMPPG_BIN_DIR"
	EnvStartTimeout = "TMPPG_START_TIMEOUT"
	EnvStopTimeout  = "TMPPG_STOP_TIMEOUT"
	EnvDebug        = "TMPPG_DEBUG"
)

// ConfigFromEnv builds a layer from TMPPG_* environment variables. Unset
// or empty variables leave the field unset. Malformed values are reported.
func ConfigFromEnv() (Config, error) {
	return configFromLookup(os.LookupEnv)
}

func configFromLookup(lookup func(string) (string, bool)) (Config, error) {
	var cfg Config
	get := func(name string) (string, bool) {
		v, ok := lookup(name)
		return v, ok && v != ""
	}

	if v, ok := get(EnvDatabaseName); ok {
		cfg.DatabaseName = Set(v)
	}
	if v, ok := get(EnvDataDir); ok {
		cfg.DataDirectory = Set(v)
	}
	if v, ok := get(EnvBinDir); ok {
		cfg.BinDir = Set(v)
	}
	if v, ok := get(EnvPort); ok {
		port, err := strconv.Atoi(v)
		if err != nil || port <= 0 || port > 65535 {
			return Config{}, fmt.Errorf("invalid %s %q: expected a port number", EnvPort, v)
		}
		cfg.Port = Set(port)
	}
	if v, ok := get(EnvSocket); ok {
		class, err := ParseSocketClass(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s: %w", EnvSocket, err)
		}
		cfg.Socket = Set(class)
	}
	if v, ok := get(EnvStartTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvStartTimeout, v, err)
		}
		cfg.StartTimeout = Set(d)
	}
	if v, ok := get(EnvStopTimeout); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", EnvStopTimeout, v, err)
		}
		cfg.StopTimeout = Set(d)
	}
	return cfg, nil
}
