package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/mitchellh/hashstructure/v2"
	"gopkg.in/yaml.v3"

	"github.com/l3aro/jsflow/internal/log"
	"github.com/l3aro/jsflow/pkg/checks"
	"github.com/l3aro/jsflow/pkg/se"
)

// Config holds all configuration for jsflow. Fields tagged hash:"ignore" do
// not change analysis results and are left out of the fingerprint.
type Config struct {
	// Exploration bounds
	MaxVisitsPerPoint int `yaml:"max_visits_per_point" env:"JSFLOW_MAX_VISITS_PER_POINT"`
	MaxExploredNodes  int `yaml:"max_explored_nodes" env:"JSFLOW_MAX_EXPLORED_NODES"`
	// MaxSteps of 0 derives the step cap from MaxExploredNodes.
	MaxSteps int `yaml:"max_steps" env:"JSFLOW_MAX_STEPS"`

	// Rules lists the enabled rule keys. Empty enables every rule.
	Rules []string `yaml:"rules" env:"JSFLOW_RULES" hash:"set"`

	// Workers is the number of files analyzed in parallel. 0 uses one per CPU.
	Workers int `yaml:"workers" env:"JSFLOW_WORKERS" hash:"ignore"`

	// Exclude holds ignore patterns added to .jsflowignore.
	Exclude []string `yaml:"exclude" env:"JSFLOW_EXCLUDE" hash:"ignore"`

	// Result cache
	CacheDir string `yaml:"cache_dir" env:"JSFLOW_CACHE_DIR" hash:"ignore"`
	NoCache  bool   `yaml:"no_cache" env:"JSFLOW_NO_CACHE" hash:"ignore"`

	// Logging
	LogLevel string `yaml:"log_level" env:"JSFLOW_LOG_LEVEL" hash:"ignore"`
	LogJSON  bool   `yaml:"log_json" env:"JSFLOW_LOG_JSON" hash:"ignore"`
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		MaxVisitsPerPoint: se.DefaultMaxVisitsPerPoint,
		MaxExploredNodes:  se.DefaultMaxExploredNodes,
		MaxSteps:          0,
		Rules:             nil,
		Workers:           0,
		Exclude:           nil,
		CacheDir:          defaultCacheDir(),
		NoCache:           false,
		LogLevel:          "info",
		LogJSON:           false,
	}
}

func defaultCacheDir() string {
	dir, err := os.UserCacheDir()
	if err != nil {
		return filepath.Join(".jsflow", "cache")
	}
	return filepath.Join(dir, "jsflow")
}

// GlobalConfigFilePath returns the global config file path (~/.jsflow/config.yaml)
func GlobalConfigFilePath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return filepath.Join(".jsflow", "config.yaml")
	}
	return filepath.Join(home, ".jsflow", "config.yaml")
}

// ProjectConfigFilePath returns the project-level config file path (./.jsflow/config.yaml)
func ProjectConfigFilePath() string {
	return filepath.Join(".jsflow", "config.yaml")
}

// Load reads configuration with the following priority (highest to lowest):
// 1. Environment variables
// 2. Project-level config (./.jsflow/config.yaml)
// 3. Global config (~/.jsflow/config.yaml)
// 4. Defaults
func Load() (*Config, error) {
	cfg := DefaultConfig()

	for _, path := range []string{GlobalConfigFilePath(), ProjectConfigFilePath()} {
		if err := mergeFile(cfg, path, true); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile reads configuration from a specific YAML file path.
// Environment variables still take precedence.
func LoadFromFile(path string) (*Config, error) {
	cfg := DefaultConfig()

	if err := mergeFile(cfg, path, false); err != nil {
		return nil, err
	}
	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func mergeFile(cfg *Config, path string, optional bool) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if optional && os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("failed to read config file %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

// Save writes the configuration to the specified YAML file path.
// It creates parent directories if they don't exist.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create directory %s: %w", dir, err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config to YAML: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file %s: %w", path, err)
	}
	return nil
}

// applyEnvOverrides applies environment variable overrides to the config
func applyEnvOverrides(cfg *Config) error {
	ints := []struct {
		name string
		dst  *int
	}{
		{"JSFLOW_MAX_VISITS_PER_POINT", &cfg.MaxVisitsPerPoint},
		{"JSFLOW_MAX_EXPLORED_NODES", &cfg.MaxExploredNodes},
		{"JSFLOW_MAX_STEPS", &cfg.MaxSteps},
		{"JSFLOW_WORKERS", &cfg.Workers},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		i, ok := parseInt(v)
		if !ok {
			return fmt.Errorf("invalid %s: %q is not an integer", e.name, v)
		}
		*e.dst = i
	}

	if v := os.Getenv("JSFLOW_RULES"); v != "" {
		cfg.Rules = splitList(v)
	}
	if v := os.Getenv("JSFLOW_EXCLUDE"); v != "" {
		cfg.Exclude = append(cfg.Exclude, splitList(v)...)
	}
	if v := os.Getenv("JSFLOW_CACHE_DIR"); v != "" {
		cfg.CacheDir = v
	}
	if v := os.Getenv("JSFLOW_NO_CACHE"); v != "" {
		cfg.NoCache = parseBool(v)
	}
	if v := os.Getenv("JSFLOW_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("JSFLOW_LOG_JSON"); v != "" {
		cfg.LogJSON = parseBool(v)
	}
	return nil
}

// Validate checks that the configuration has valid required fields
func (c *Config) Validate() error {
	if c.MaxVisitsPerPoint <= 0 {
		return fmt.Errorf("max_visits_per_point must be positive")
	}
	if c.MaxExploredNodes <= 0 {
		return fmt.Errorf("max_explored_nodes must be positive")
	}
	if c.MaxSteps < 0 {
		return fmt.Errorf("max_steps must be non-negative")
	}
	if c.Workers < 0 {
		return fmt.Errorf("workers must be non-negative")
	}
	if err := checks.Default().Validate(c.Rules); err != nil {
		return fmt.Errorf("invalid rules: %w", err)
	}
	if _, ok := log.ParseLevel(c.LogLevel); !ok {
		return fmt.Errorf("invalid log_level: %s (must be debug, info, warn or error)", c.LogLevel)
	}
	return nil
}

// EngineOptions returns the exploration bounds.
func (c *Config) EngineOptions() se.Options {
	return se.Options{
		MaxVisitsPerPoint: c.MaxVisitsPerPoint,
		MaxExploredNodes:  c.MaxExploredNodes,
		MaxSteps:          c.MaxSteps,
	}
}

// Level returns the configured log level, or info when it is not valid.
func (c *Config) Level() log.Level {
	l, _ := log.ParseLevel(c.LogLevel)
	return l
}

// Fingerprint hashes the fields that affect analysis results. Two configs
// with the same fingerprint produce the same issues for the same file.
func (c *Config) Fingerprint() (uint64, error) {
	h, err := hashstructure.Hash(c, hashstructure.FormatV2, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to hash config: %w", err)
	}
	return h, nil
}

// splitList splits a comma-separated list and drops empty items.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	}
	return false
}

// parseInt attempts to parse a string as int
func parseInt(s string) (int, bool) {
	i, err := strconv.Atoi(strings.TrimSpace(s))
	return i, err == nil
}
