// Package config loads osputil settings from a YAML file, a .env file and
// OSPUTIL_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/osputil/osputil"
	"github.com/osputil/osputil/dialect"
	"github.com/osputil/osputil/zipper"
)

// EnvPrefix prefixes every environment variable read by ApplyEnv.
const EnvPrefix = "OSPUTIL_"

// Config holds all settings.
type Config struct {
	Log LogConfig `yaml:"log"`
	SQL SQLConfig `yaml:"sql"`
	Zip ZipConfig `yaml:"zip"`
}

// LogConfig configures the slog logger.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text or json
}

// SQLConfig configures statement execution.
type SQLConfig struct {
	Dialect       string        `yaml:"dialect"`
	DSN           string        `yaml:"dsn"`
	SlowThreshold time.Duration `yaml:"slow_threshold"`
}

// ZipConfig configures archive writing and extraction.
type ZipConfig struct {
	Level          string   `yaml:"level"`
	Overwrite      bool     `yaml:"overwrite"`
	DeniedPrefixes []string `yaml:"denied_prefixes"`
	SharedRoot     string   `yaml:"shared_root"`
	Workers        int      `yaml:"workers"`
}

// Default returns the default configuration.
func Default() Config {
	return Config{
		Log: LogConfig{Level: "info", Format: "text"},
		SQL: SQLConfig{Dialect: dialect.SQLite, SlowThreshold: 100 * time.Millisecond},
		Zip: ZipConfig{Level: "default"},
	}
}

// Load reads the YAML file at path over the defaults. An empty path
// returns the defaults.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, osputil.NewError("load config", path, osputil.ErrNotFound, err)
		}
		return cfg, osputil.NewError("load config", path, osputil.ErrIO, err)
	}
	if err := yaml.Unmarshal(b, &cfg); err != nil {
		return cfg, osputil.NewError("load config", path, osputil.ErrInvalidArgument, err)
	}
	return cfg, nil
}

// LoadEnvFile loads variables from a .env file into the process
// environment without overriding existing ones. A missing file is ignored.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return osputil.NewError("load env", path, osputil.ErrInvalidArgument, err)
	}
	return nil
}

// ApplyEnv overrides settings from OSPUTIL_* variables found by lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	str := func(name string, dst *string) {
		if v, ok := lookup(EnvPrefix + name); ok {
			*dst = v
		}
	}
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	str("SQL_DIALECT", &c.SQL.Dialect)
	str("SQL_DSN", &c.SQL.DSN)
	str("ZIP_LEVEL", &c.Zip.Level)
	str("ZIP_SHARED_ROOT", &c.Zip.SharedRoot)
	if v, ok := lookup(EnvPrefix + "SQL_SLOW_THRESHOLD"); ok {
		d, err := time.ParseDuration(v)
		if err != nil {
			return envError("SQL_SLOW_THRESHOLD", err)
		}
		c.SQL.SlowThreshold = d
	}
	if v, ok := lookup(EnvPrefix + "ZIP_OVERWRITE"); ok {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return envError("ZIP_OVERWRITE", err)
		}
		c.Zip.Overwrite = b
	}
	if v, ok := lookup(EnvPrefix + "ZIP_WORKERS"); ok {
		n, err := strconv.Atoi(v)
		if err != nil {
			return envError("ZIP_WORKERS", err)
		}
		c.Zip.Workers = n
	}
	if v, ok := lookup(EnvPrefix + "ZIP_DENIED_PREFIXES"); ok {
		c.Zip.DeniedPrefixes = nil
		for _, p := range strings.Split(v, string(os.PathListSeparator)) {
			if p = strings.TrimSpace(p); p != "" {
				c.Zip.DeniedPrefixes = append(c.Zip.DeniedPrefixes, p)
			}
		}
	}
	return nil
}

func envError(name string, err error) error {
	return osputil.NewError("load env", EnvPrefix+name, osputil.ErrInvalidArgument, err)
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if _, err := parseLevel(c.Log.Level); err != nil {
		return err
	}
	switch c.Log.Format {
	case "", "text", "json":
	default:
		return osputil.Errorf("validate config", "log.format", osputil.ErrInvalidArgument, "unknown format %q", c.Log.Format)
	}
	if c.SQL.Dialect != "" && !dialect.Valid(c.SQL.Dialect) {
		return osputil.Errorf("validate config", "sql.dialect", osputil.ErrInvalidArgument, "unknown dialect %q", c.SQL.Dialect)
	}
	if c.SQL.SlowThreshold < 0 {
		return osputil.Errorf("validate config", "sql.slow_threshold", osputil.ErrInvalidArgument, "negative duration")
	}
	if _, err := zipper.ParseLevel(c.Zip.Level); err != nil {
		return err
	}
	if c.Zip.Workers < 0 {
		return osputil.Errorf("validate config", "zip.workers", osputil.ErrInvalidArgument, "negative worker count")
	}
	return nil
}

// Logger returns a logger writing to w as configured.
func (c Config) Logger(w io.Writer) (*slog.Logger, error) {
	level, err := parseLevel(c.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if c.Log.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	}
	return slog.New(slog.NewTextHandler(w, opts)), nil
}

// ZipOptions returns the zipper options and default level described by c.
func (c Config) ZipOptions() ([]zipper.Option, zipper.Level, error) {
	level, err := zipper.ParseLevel(c.Zip.Level)
	if err != nil {
		return nil, 0, err
	}
	denied := append([]string(nil), c.Zip.DeniedPrefixes...)
	denied = append(denied, zipper.SharedDenylist(c.Zip.SharedRoot)...)
	opts := []zipper.Option{
		zipper.WithOverwrite(c.Zip.Overwrite),
		zipper.WithWorkers(c.Zip.Workers),
	}
	if len(denied) > 0 {
		opts = append(opts, zipper.WithDeniedPrefixes(denied...))
	}
	return opts, level, nil
}

func parseLevel(s string) (slog.Level, error) {
	var l slog.Level
	if s == "" {
		return slog.LevelInfo, nil
	}
	if err := l.UnmarshalText([]byte(s)); err != nil {
		return l, osputil.NewError("validate config", "log.level", osputil.ErrInvalidArgument, fmt.Errorf("unknown level %q", s))
	}
	return l, nil
}
