// Package config loads the replay parser configuration from a YAML file,
// overridden by environment variables (optionally set from a .env file).
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"
)

const (
	DefaultParsedReplayPath = "ParsedReplay"
	DefaultErrorReplayPath  = "ErrorReplay"
	DefaultDatabase         = "frs.db"
	DefaultLogLevel         = "info"

	// MinParsePeriodSeconds is the shortest allowed period between two scans of the replay directory.
	MinParsePeriodSeconds = 5
)

// Config is the replay parser configuration.
type Config struct {
	// Directory scanned for new replays.
	ReplayPath string `yaml:"replay_path"`

	// Successfully processed replays are moved here.
	ParsedReplayPath string `yaml:"parsed_replay_path"`

	// Replays that failed to decode or store are moved here.
	ErrorReplayPath string `yaml:"error_replay_path"`

	// Name of the registered server the replays come from.
	Server string `yaml:"server"`

	// Map version recorded with every stored game.
	MapVersion string `yaml:"map_version"`

	ParsePeriodSeconds int `yaml:"parse_period_seconds"`

	// SQLite database file (or DSN).
	Database string `yaml:"database"`

	// zerolog level name: debug, info, warn, error.
	LogLevel string `yaml:"log_level"`

	// Number of replays decoded in parallel.
	Workers int `yaml:"workers"`

	// Replays shorter than this are not ranked; 0 disables the check.
	MinDurationMinutes int `yaml:"min_duration_minutes"`
}

// Environment variables overriding the file settings.
var envKeys = []struct {
	name string
	set  func(c *Config, v string) error
}{
	{"FRS_REPLAY_PATH", func(c *Config, v string) error { c.ReplayPath = v; return nil }},
	{"FRS_PARSED_REPLAY_PATH", func(c *Config, v string) error { c.ParsedReplayPath = v; return nil }},
	{"FRS_ERROR_REPLAY_PATH", func(c *Config, v string) error { c.ErrorReplayPath = v; return nil }},
	{"FRS_SERVER", func(c *Config, v string) error { c.Server = v; return nil }},
	{"FRS_MAP_VERSION", func(c *Config, v string) error { c.MapVersion = v; return nil }},
	{"FRS_PARSE_PERIOD_SECONDS", func(c *Config, v string) error { return setInt(&c.ParsePeriodSeconds, v) }},
	{"FRS_DATABASE", func(c *Config, v string) error { c.Database = v; return nil }},
	{"FRS_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"FRS_WORKERS", func(c *Config, v string) error { return setInt(&c.Workers, v) }},
	{"FRS_MIN_DURATION_MINUTES", func(c *Config, v string) error { return setInt(&c.MinDurationMinutes, v) }},
}

func setInt(dst *int, v string) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// Default returns the configuration used for settings that are not given.
func Default() *Config {
	return &Config{
		ParsedReplayPath:   DefaultParsedReplayPath,
		ErrorReplayPath:    DefaultErrorReplayPath,
		ParsePeriodSeconds: 30,
		Database:           DefaultDatabase,
		LogLevel:           DefaultLogLevel,
		Workers:            1,
	}
}

// LoadDotEnv sets environment variables from the first existing .env file of paths.
// It tells the file loaded, empty if none.
func LoadDotEnv(paths ...string) string {
	for _, path := range paths {
		if err := godotenv.Load(path); err == nil {
			return path
		}
	}
	return ""
}

// Load reads the config file at path and applies the environment overrides.
// A missing file is not an error: defaults and the environment are used.
func Load(path string) (*Config, error) {
	c := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		switch {
		case os.IsNotExist(err):
			log.Debug().Str("path", path).Msg("no config file, using defaults")
		case err != nil:
			return nil, errors.Wrapf(err, "read config %s", path)
		default:
			if err := yaml.Unmarshal(data, c); err != nil {
				return nil, errors.Wrapf(err, "parse config %s", path)
			}
		}
	}

	for _, k := range envKeys {
		if v, ok := os.LookupEnv(k.name); ok && v != "" {
			if err := k.set(c, v); err != nil {
				return nil, errors.Wrapf(err, "environment %s", k.name)
			}
		}
	}

	c.normalize()
	return c, nil
}

// normalize replaces empty and out of range settings.
func (c *Config) normalize() {
	d := Default()
	if c.ParsedReplayPath == "" {
		c.ParsedReplayPath = d.ParsedReplayPath
	}
	if c.ErrorReplayPath == "" {
		c.ErrorReplayPath = d.ErrorReplayPath
	}
	if c.Database == "" {
		c.Database = d.Database
	}
	if c.LogLevel == "" {
		c.LogLevel = d.LogLevel
	}
	if c.ParsePeriodSeconds < MinParsePeriodSeconds {
		c.ParsePeriodSeconds = MinParsePeriodSeconds
	}
	if c.Workers < 1 {
		c.Workers = 1
	}
	if c.MinDurationMinutes < 0 {
		c.MinDurationMinutes = 0
	}
}

// Validate checks that the settings without defaults are present.
func (c *Config) Validate() error {
	if c.ReplayPath == "" {
		return errors.New("replay path not set")
	}
	if c.Server == "" {
		return errors.New("server name not set")
	}
	return nil
}

// ParsePeriod returns the period between two scans of the replay directory.
func (c *Config) ParsePeriod() time.Duration {
	return time.Duration(c.ParsePeriodSeconds) * time.Second
}

// MinDuration returns the min. ranked replay length.
func (c *Config) MinDuration() time.Duration {
	return time.Duration(c.MinDurationMinutes) * time.Minute
}
