// Package config loads laq's process-wide configuration (log level,
// output format, the remote event server address, and a workflow's named
// validation stage lists) from a config file and environment variables,
// layered with viper.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/lacquerai/laqcore/internal/execcontext"
	"github.com/spf13/viper"
)

// Config is the process-wide settings handle, loaded once at startup and
// threaded into the engine as an execcontext.Config.
type Config struct {
	v *viper.Viper

	// StageRunner runs a named set of validation stages. When it is nil,
	// RunValidationStages succeeds for an empty stage list and fails for
	// any non-empty one.
	StageRunner func(stages []string) (execcontext.StageResult, error)

	defaultStages []string
	namedStages   map[string][]string
}

// Load reads `.env` (if present, via godotenv, ignored if absent) and then
// a `config.yaml`/`config.yml` from the given search paths, with
// `LAQ_`-prefixed environment variables overriding file values.
func Load(searchPaths ...string) (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	for _, p := range searchPaths {
		v.AddConfigPath(p)
	}
	v.SetEnvPrefix("LAQ")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))

	v.SetDefault("log-level", "info")
	v.SetDefault("output", "text")
	v.SetDefault("server.addr", ":8080")

	if err := v.ReadInConfig(); err != nil {
		if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	cfg := &Config{v: v}
	cfg.defaultStages = v.GetStringSlice("default_stages")
	named := v.GetStringMapStringSlice("stages")
	if named != nil {
		cfg.namedStages = named
	}

	return cfg, nil
}

// LogLevel is the configured zerolog level name.
func (c *Config) LogLevel() string { return c.v.GetString("log-level") }

// OutputFormat is "text", "json" or "yaml", matching the `--output` CLI flag.
func (c *Config) OutputFormat() string { return c.v.GetString("output") }

// ServerAddr is the listen address for the remote event server
// (internal/server).
func (c *Config) ServerAddr() string { return c.v.GetString("server.addr") }

// WithStages overrides the workflow-level default/named validation stage
// lists (normally declared in the workflow document's `config:` block,
// which takes precedence over process config when present).
func (c *Config) WithStages(defaultStages []string, named map[string][]string) *Config {
	clone := *c
	if defaultStages != nil {
		clone.defaultStages = defaultStages
	}
	if named != nil {
		clone.namedStages = named
	}
	return &clone
}

// --- execcontext.Config implementation ---

func (c *Config) DefaultStages() []string {
	return c.defaultStages
}

func (c *Config) NamedStages(key string) ([]string, bool) {
	stages, ok := c.namedStages[key]
	return stages, ok
}

func (c *Config) RunValidationStages(stages []string) (execcontext.StageResult, error) {
	if c.StageRunner == nil {
		if len(stages) == 0 {
			return execcontext.StageResult{Success: true}, nil
		}
		return execcontext.StageResult{}, fmt.Errorf("no stage runner configured for stages %v", stages)
	}
	return c.StageRunner(stages)
}

// homeConfigDir returns the default `~/.laq` search path, mirroring the
// teacher's `~/.lacquer` convention.
func homeConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return home + "/.laq"
}

// DefaultSearchPaths is the standard three-location search order: the
// user's home config dir, the current directory, and a project-local
// `.laq` dir.
func DefaultSearchPaths() []string {
	return []string{homeConfigDir(), ".", ".laq"}
}
