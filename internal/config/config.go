package config

import (
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"gopkg.in/yaml.v3"
)

// EngineConfig tunes the loop engine.
type EngineConfig struct {
	DedupWindow string `yaml:"dedup_window" json:"dedup_window"`
}

// SchedulerConfig controls the in-process periodic caller used by serve.
type SchedulerConfig struct {
	Enabled *bool `yaml:"enabled" json:"enabled"`
}

// IsEnabled returns whether loops are fired on their intervals.
// Defaults to true when unset.
func (c SchedulerConfig) IsEnabled() bool {
	if c.Enabled == nil {
		return true
	}
	return *c.Enabled
}

// RemindersConfig controls reminder dispatch.
type RemindersConfig struct {
	BatchSize int `yaml:"batch_size" json:"batch_size"`
}

// Config is the top-level configuration parsed from opstrack.yaml.
type Config struct {
	Listen    string                `yaml:"listen" json:"listen"`
	DataDir   string                `yaml:"data_dir" json:"data_dir"`
	LogLevel  string                `yaml:"log_level" json:"log_level"`
	LogFormat string                `yaml:"log_format" json:"log_format"`
	Engine    EngineConfig          `yaml:"engine" json:"engine"`
	Scheduler SchedulerConfig       `yaml:"scheduler" json:"scheduler"`
	Reminders RemindersConfig       `yaml:"reminders" json:"reminders"`
	Loops     map[string]LoopConfig `yaml:"loops" json:"loops,omitempty"`

	// Notifiers holds per-channel options handed to each notifier's Init.
	Notifiers map[string]map[string]any `yaml:"notifiers" json:"notifiers,omitempty"`
}

// DBPath returns the SQLite database location inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, "opstrack.db")
}

// DedupWindow returns the parsed finding dedup window.
func (c *Config) DedupWindow() time.Duration {
	d, err := time.ParseDuration(c.Engine.DedupWindow)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// Loop returns the override block for the named loop, or a zero value.
func (c *Config) Loop(name string) LoopConfig {
	if c.Loops == nil {
		return LoopConfig{}
	}
	return c.Loops[name]
}

// Default returns a Config with every default applied.
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(c *Config) {
	if c.Listen == "" {
		c.Listen = ":8080"
	}
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	c.DataDir = expandPath(c.DataDir)
	if c.LogLevel == "" {
		c.LogLevel = "info"
	}
	if c.LogFormat == "" {
		c.LogFormat = "console"
	}
	if c.Engine.DedupWindow == "" {
		c.Engine.DedupWindow = "24h"
	}
	if c.Scheduler.Enabled == nil {
		t := true
		c.Scheduler.Enabled = &t
	}
	if c.Reminders.BatchSize <= 0 {
		c.Reminders.BatchSize = 100
	}
}

func expandPath(value string) string {
	v := strings.TrimSpace(value)
	if v == "" {
		return value
	}

	v = os.ExpandEnv(v)

	home, err := os.UserHomeDir()
	if err != nil || strings.TrimSpace(home) == "" {
		return v
	}

	if v == "~" {
		return home
	}
	if strings.HasPrefix(v, "~/") {
		return filepath.Join(home, v[2:])
	}
	if strings.HasPrefix(v, "~\\") {
		return filepath.Join(home, v[2:])
	}
	return v
}

// LoadConfig reads a YAML configuration file from path and returns
// a Config with defaults applied for any unset fields.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, goerr.Wrap(err, "read config", goerr.V("path", path))
	}
	return ParseConfig(data)
}

// ParseConfig parses a YAML payload, applies defaults and validates loop overrides.
func ParseConfig(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, goerr.Wrap(err, "parse config")
	}

	applyDefaults(&cfg)

	window, err := time.ParseDuration(cfg.Engine.DedupWindow)
	if err != nil {
		return nil, goerr.Wrap(err, "invalid engine.dedup_window", goerr.V("value", cfg.Engine.DedupWindow))
	}
	if window <= 0 {
		return nil, goerr.Wrap(ErrInvalidDedupWindow, "invalid engine.dedup_window", goerr.V("value", cfg.Engine.DedupWindow))
	}
	for name, lc := range cfg.Loops {
		if err := lc.Validate(); err != nil {
			return nil, goerr.Wrap(err, "invalid loop override", goerr.V("loop", name))
		}
	}
	return &cfg, nil
}
