package tmppostgres

import (
	"fmt"
	"time"

	"github.com/BurntSushi/toml"
)

// fileConfig mirrors Config in TOML. Pointers distinguish "absent" from
// zero values.
//
//	database_name = "example"
//	socket = "ip:127.0.0.1"
//	start_timeout = "30s"
//
//	[initdb]
//	flags = { "--locale" = "C", "--encoding" = "UTF8" }
//
//	[server]
//	config_append = ["log_statement = 'all'"]
type fileConfig struct {
	DatabaseName  *string `toml:"database_name"`
	DataDirectory *string `toml:"data_directory"`
	Port          *int    `toml:"port"`
	Socket        *string `toml:"socket"`
	BinDir        *string `toml:"bin_dir"`
	StartTimeout  *string `toml:"start_timeout"`
	StopTimeout   *string `toml:"stop_timeout"`

	Client   *fileClient  `toml:"client"`
	InitDB   *fileProcess `toml:"initdb"`
	CreateDB *fileProcess `toml:"createdb"`
	Server   *fileServer  `toml:"server"`
}

type fileClient struct {
	Host     *string           `toml:"host"`
	Port     *int              `toml:"port"`
	User     *string           `toml:"user"`
	Password *string           `toml:"password"`
	DBName   *string           `toml:"dbname"`
	Params   map[string]string `toml:"params"`
}

type fileProcess struct {
	Skip       *bool             `toml:"skip"`
	Program    *string           `toml:"program"`
	Switches   []string          `toml:"switches"`
	Flags      map[string]string `toml:"flags"`
	Positional []string          `toml:"positional"`
	Env        map[string]string `toml:"env"`
	Dir        *string           `toml:"dir"`
}

type fileServer struct {
	fileProcess
	ConfigAppend  []string `toml:"config_append"`
	ConfigReplace []string `toml:"config_replace"`
}

// LoadConfigFile reads a TOML configuration layer from path.
func LoadConfigFile(path string) (Config, error) {
	var fc fileConfig
	if _, err := toml.DecodeFile(path, &fc); err != nil {
		return Config{}, fmt.Errorf("reading config file %s: %w", path, err)
	}
	cfg, err := fc.layer()
	if err != nil {
		return Config{}, fmt.Errorf("config file %s: %w", path, err)
	}
	return cfg, nil
}

// ParseConfig decodes a TOML configuration layer from text.
func ParseConfig(text string) (Config, error) {
	var fc fileConfig
	if _, err := toml.Decode(text, &fc); err != nil {
		return Config{}, fmt.Errorf("parsing config: %w", err)
	}
	return fc.layer()
}

func (fc fileConfig) layer() (Config, error) {
	var cfg Config
	cfg.DatabaseName = optional(fc.DatabaseName)
	cfg.DataDirectory = optional(fc.DataDirectory)
	cfg.Port = optional(fc.Port)
	cfg.BinDir = optional(fc.BinDir)

	if fc.Socket != nil {
		class, err := ParseSocketClass(*fc.Socket)
		if err != nil {
			return Config{}, err
		}
		cfg.Socket = Set(class)
	}

	var err error
	if cfg.StartTimeout, err = optionalDuration("start_timeout", fc.StartTimeout); err != nil {
		return Config{}, err
	}
	if cfg.StopTimeout, err = optionalDuration("stop_timeout", fc.StopTimeout); err != nil {
		return Config{}, err
	}

	if c := fc.Client; c != nil {
		cfg.Client = ClientConfig{
			Host:     optional(c.Host),
			Port:     optional(c.Port),
			User:     optional(c.User),
			Password: optional(c.Password),
			DBName:   optional(c.DBName),
			Params:   c.Params,
		}
	}
	if fc.InitDB != nil {
		cfg.InitDB = fc.InitDB.layer()
	}
	if fc.CreateDB != nil {
		cfg.CreateDB = fc.CreateDB.layer()
	}
	if s := fc.Server; s != nil {
		if len(s.ConfigAppend) > 0 && len(s.ConfigReplace) > 0 {
			return Config{}, fmt.Errorf("server: config_append and config_replace are mutually exclusive")
		}
		cfg.Server.ProcessConfig = s.fileProcess.layer()
		switch {
		case s.ConfigReplace != nil:
			cfg.Server.ConfigFile = ReplaceLines(s.ConfigReplace...)
		case s.ConfigAppend != nil:
			cfg.Server.ConfigFile = AppendLines(s.ConfigAppend...)
		}
	}
	return cfg, nil
}

func (fp fileProcess) layer() ProcessConfig {
	var args Args
	for _, name := range fp.Switches {
		args = args.Merge(Switch(name))
	}
	for name, value := range fp.Flags {
		args = args.Merge(Flag(name, value))
	}
	if len(fp.Positional) > 0 {
		args = args.Merge(Positional(fp.Positional...))
	}
	return ProcessConfig{
		Skip:    optional(fp.Skip),
		Program: optional(fp.Program),
		Args:    args,
		Env:     fp.Env,
		Dir:     optional(fp.Dir),
	}
}

func optional[T any](p *T) Optional[T] {
	if p == nil {
		return Optional[T]{}
	}
	return Set(*p)
}

func optionalDuration(name string, s *string) (Optional[time.Duration], error) {
	if s == nil {
		return Optional[time.Duration]{}, nil
	}
	d, err := time.ParseDuration(*s)
	if err != nil {
		return Optional[time.Duration]{}, fmt.Errorf("invalid %s %q: %w", name, *s, err)
	}
	return Set(d), nil
}
