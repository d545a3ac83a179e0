// Package config loads server settings from a .env file, an optional YAML
// file and the environment, in increasing order of precedence.
package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cast"
	"gopkg.in/yaml.v3"
)

// Config holds every tunable of the server.
type Config struct {
	RESTPort   int    `yaml:"rest_port"`
	FlightPort int    `yaml:"flight_port"`
	LogLevel   string `yaml:"log_level"`
	LogFormat  string `yaml:"log_format"`

	// Parallelism bounds concurrent group evaluation.
	Parallelism int `yaml:"parallelism"`

	// SpoolRows is the number of buffered exchange rows after which
	// batches are written to parquet.
	SpoolRows int64  `yaml:"spool_rows"`
	SpoolDir  string `yaml:"spool_dir"`

	// Reprojection enables to_srid through DuckDB spatial.
	Reprojection bool   `yaml:"reprojection"`
	ExtensionDir string `yaml:"extension_dir"`
	// InstallSpatial runs INSTALL before LOAD.
	InstallSpatial bool `yaml:"install_spatial"`
}

// Default returns the settings used when nothing overrides them.
func Default() Config {
	return Config{
		RESTPort:       8080,
		FlightPort:     50051,
		LogLevel:       "info",
		LogFormat:      "text",
		Parallelism:    runtime.GOMAXPROCS(0),
		SpoolRows:      1000 * 1000,
		SpoolDir:       os.TempDir(),
		Reprojection:   true,
		InstallSpatial: true,
	}
}

// env maps variable names to the field they override.
var env = []struct {
	name string
	set  func(c *Config, v string) error
}{
	{"GEOEXPR_REST_PORT", func(c *Config, v string) (err error) { c.RESTPort, err = cast.ToIntE(v); return }},
	{"GEOEXPR_FLIGHT_PORT", func(c *Config, v string) (err error) { c.FlightPort, err = cast.ToIntE(v); return }},
	{"GEOEXPR_LOG_LEVEL", func(c *Config, v string) error { c.LogLevel = v; return nil }},
	{"GEOEXPR_LOG_FORMAT", func(c *Config, v string) error { c.LogFormat = v; return nil }},
	{"GEOEXPR_PARALLELISM", func(c *Config, v string) (err error) { c.Parallelism, err = cast.ToIntE(v); return }},
	{"GEOEXPR_SPOOL_ROWS", func(c *Config, v string) (err error) { c.SpoolRows, err = cast.ToInt64E(v); return }},
	{"GEOEXPR_SPOOL_DIR", func(c *Config, v string) error { c.SpoolDir = v; return nil }},
	{"GEOEXPR_REPROJECTION", func(c *Config, v string) (err error) { c.Reprojection, err = cast.ToBoolE(v); return }},
	{"GEOEXPR_EXTENSION_DIR", func(c *Config, v string) error { c.ExtensionDir = v; return nil }},
	{"GEOEXPR_INSTALL_SPATIAL", func(c *Config, v string) (err error) { c.InstallSpatial, err = cast.ToBoolE(v); return }},
}

// Load reads the .env files (missing ones are ignored), then the YAML file
// named by GEOEXPR_CONFIG, then the GEOEXPR_* variables.
func Load(envFiles ...string) (Config, error) {
	if err := godotenv.Load(envFiles...); err != nil {
		logrus.WithError(err).Debug("no .env file loaded")
	}

	c := Default()
	if path := os.Getenv("GEOEXPR_CONFIG"); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &c); err != nil {
			return c, fmt.Errorf("failed to parse config file %s: %w", path, err)
		}
	}

	for _, e := range env {
		v, ok := os.LookupEnv(e.name)
		if !ok {
			continue
		}
		if err := e.set(&c, v); err != nil {
			return c, fmt.Errorf("invalid %s: %w", e.name, err)
		}
	}

	return c, c.validate()
}

func (c Config) validate() error {
	if c.RESTPort <= 0 || c.FlightPort <= 0 {
		return fmt.Errorf("ports must be positive, got rest=%d flight=%d", c.RESTPort, c.FlightPort)
	}
	if c.SpoolRows <= 0 {
		return fmt.Errorf("spool_rows must be positive, got %d", c.SpoolRows)
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return err
	}
	if c.LogFormat != "text" && c.LogFormat != "json" {
		return fmt.Errorf("log_format must be text or json, got %q", c.LogFormat)
	}
	return nil
}

// ConfigureLogging applies the level and formatter to the standard logger.
func (c Config) ConfigureLogging() {
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)

	if c.LogFormat == "json" {
		logrus.SetFormatter(&logrus.JSONFormatter{})
		return
	}
	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
}
