package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"partialmodel/internal/mangle"
	"partialmodel/internal/model"
	"partialmodel/internal/problem"
)

// ErrInvalidConfig is returned by Validate.
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds all partialmodel configuration.
type Config struct {
	Name string `yaml:"name"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Mangle engine configuration
	Engine EngineConfig `yaml:"engine"`

	// Store and snapshot settings
	Store StoreConfig `yaml:"store"`

	// Specification mapping
	Mapping MappingConfig `yaml:"mapping"`
}

// EngineConfig configures the Mangle engine.
type EngineConfig struct {
	RulesPath    string `yaml:"rules_path"`
	FactLimit    int    `yaml:"fact_limit"`
	QueryTimeout string `yaml:"query_timeout"`
}

// StoreConfig configures relation storage.
type StoreConfig struct {
	HashProvider string `yaml:"hash_provider"` // packed
}

// MappingConfig configures the model builder.
type MappingConfig struct {
	// BuiltinPath replaces the embedded built-in library when set.
	BuiltinPath string `yaml:"builtin_path"`
	// Workers bounds how many specifications are built concurrently.
	Workers int `yaml:"workers"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name: "partialmodel",

		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
		},

		Engine: EngineConfig{
			FactLimit:    100000,
			QueryTimeout: "30s",
		},

		Store: StoreConfig{
			HashProvider: "packed",
		},

		Mapping: MappingConfig{
			Workers: 4,
		},
	}
}

// Load loads configuration from a YAML file. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if level := os.Getenv("PMODEL_LOG_LEVEL"); level != "" {
		c.Logging.Level = level
		c.Logging.DebugMode = true
	}
	if limit := os.Getenv("PMODEL_FACT_LIMIT"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			c.Engine.FactLimit = n
		}
	}
	if path := os.Getenv("PMODEL_BUILTIN"); path != "" {
		c.Mapping.BuiltinPath = path
	}
}

// GetQueryTimeout returns the engine query timeout as a duration.
func (c *Config) GetQueryTimeout() time.Duration {
	d, err := time.ParseDuration(c.Engine.QueryTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// MangleConfig converts the engine section for the mangle package.
func (c *Config) MangleConfig() mangle.Config {
	return mangle.Config{
		FactLimit:    c.Engine.FactLimit,
		QueryTimeout: int(c.GetQueryTimeout() / time.Second),
	}
}

// HashProvider resolves the configured tuple encoding.
func (c *Config) HashProvider() (model.HashProvider, error) {
	switch c.Store.HashProvider {
	case "", "packed":
		return model.DefaultHashProvider, nil
	default:
		return nil, fmt.Errorf("%w: unknown hash provider %q", ErrInvalidConfig, c.Store.HashProvider)
	}
}

// Library resolves the built-in library source.
func (c *Config) Library() problem.LibraryResolver {
	if c.Mapping.BuiltinPath != "" {
		return &problem.FileLibrary{Path: c.Mapping.BuiltinPath}
	}
	return problem.EmbeddedLibrary{}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if _, err := c.HashProvider(); err != nil {
		return err
	}
	if c.Engine.FactLimit < 0 {
		return fmt.Errorf("%w: fact_limit must not be negative", ErrInvalidConfig)
	}
	if c.Engine.QueryTimeout != "" {
		if _, err := time.ParseDuration(c.Engine.QueryTimeout); err != nil {
			return fmt.Errorf("%w: query_timeout: %v", ErrInvalidConfig, err)
		}
	}
	if c.Mapping.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	switch c.Logging.Format {
	case "", "json", "console":
	default:
		return fmt.Errorf("%w: log format %q", ErrInvalidConfig, c.Logging.Format)
	}
	return nil
}
