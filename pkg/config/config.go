package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/hutch/pkg/kv"
	"github.com/cuemby/hutch/pkg/log"
)

// LogConfig selects logging behavior.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// Config is the on-disk configuration of a database instance.
type Config struct {
	Store kv.Options `yaml:"store"`
	Log   LogConfig  `yaml:"log"`
}

// Default returns the configuration used when no file is given: an
// in-memory store with console logging at info level.
func Default() *Config {
	return &Config{
		Log: LogConfig{Level: string(log.InfoLevel)},
	}
}

// Load reads a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects unusable configurations before they reach the engine.
func (c *Config) Validate() error {
	switch c.Store.Engine {
	case "", "memory", "bolt":
	default:
		return fmt.Errorf("unknown engine %q", c.Store.Engine)
	}
	if c.Store.Engine == "bolt" && c.Store.Dir == "" {
		return fmt.Errorf("bolt engine requires store.dir")
	}
	switch log.Level(c.Log.Level) {
	case "", log.DebugLevel, log.InfoLevel, log.WarnLevel, log.ErrorLevel:
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	return nil
}

// InitLogging applies the logging section to the global logger.
func (c *Config) InitLogging() {
	log.Init(log.Config{
		Level:      log.Level(c.Log.Level),
		JSONOutput: c.Log.JSON,
	})
}
