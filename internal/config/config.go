// Package config loads engine configuration from a YAML file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all tunables for the engine.
type Config struct {
	// DataDir is where the SQLite database lives.
	DataDir string `yaml:"data_dir"`

	// MaxConcurrentTasks bounds how many tasks run at once.
	MaxConcurrentTasks int `yaml:"max_concurrent_tasks"`

	// CallTimeout is the mandatory per-provider-call timeout.
	CallTimeout time.Duration `yaml:"call_timeout"`

	// DispatchTimeout bounds a whole dispatch (all strategies).
	DispatchTimeout time.Duration `yaml:"dispatch_timeout"`

	// CacheBackend selects "memory" or "sqlite".
	CacheBackend string `yaml:"cache_backend"`

	// CacheTTL is the default time-to-live for cache entries.
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// CacheSize caps the number of entries in the memory backend.
	CacheSize int `yaml:"cache_size"`

	// Quorum is the required success count for CONSENSUS dispatches.
	// Zero means majority of the candidate set.
	Quorum int `yaml:"quorum"`

	// ConsensusThreshold is the absolute provider-agreement count at
	// which a suggestion group is tagged "consensus".
	ConsensusThreshold int `yaml:"consensus_threshold"`

	// SimilarityThreshold is the normalized text similarity above which
	// two suggestions of the same category merge.
	SimilarityThreshold float64 `yaml:"similarity_threshold"`

	// LogLevel is one of trace|debug|info|warn|error.
	LogLevel string `yaml:"log_level"`
}

// Default returns the baseline configuration.
func Default() Config {
	home, _ := os.UserHomeDir()
	return Config{
		DataDir:             filepath.Join(home, ".ensemble"),
		MaxConcurrentTasks:  4,
		CallTimeout:         60 * time.Second,
		DispatchTimeout:     5 * time.Minute,
		CacheBackend:        "sqlite",
		CacheTTL:            time.Hour,
		CacheSize:           4096,
		Quorum:              0,
		ConsensusThreshold:  2,
		SimilarityThreshold: 0.55,
		LogLevel:            "info",
	}
}

// Load reads the config file at path (if it exists) over the defaults,
// then applies environment overrides. An empty path means defaults plus
// environment only.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return cfg, fmt.Errorf("read config: %w", err)
			}
		} else if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(&cfg)

	if cfg.MaxConcurrentTasks < 1 {
		cfg.MaxConcurrentTasks = 1
	}
	if cfg.CacheBackend != "memory" && cfg.CacheBackend != "sqlite" {
		return cfg, fmt.Errorf("unknown cache backend: %q", cfg.CacheBackend)
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("ENSEMBLE_DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("ENSEMBLE_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("ENSEMBLE_CACHE_BACKEND"); v != "" {
		cfg.CacheBackend = v
	}
	if v := os.Getenv("ENSEMBLE_MAX_TASKS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrentTasks = n
		}
	}
	if v := os.Getenv("ENSEMBLE_CALL_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CallTimeout = d
		}
	}
	if v := os.Getenv("ENSEMBLE_CACHE_TTL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CacheTTL = d
		}
	}
}
