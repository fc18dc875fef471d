// Package config holds all fusebox configuration, loaded from a TOML file
// with defaults for anything unset.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"

	"github.com/fusebox-ai/fusebox/internal/domain"
)

// Config holds all fusebox configuration.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Database DatabaseConfig `toml:"database"`
	Search   SearchConfig   `toml:"search"`
	Health   HealthConfig   `toml:"health"`
}

type ServerConfig struct {
	Bind string `toml:"bind"`
	Port int    `toml:"port"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

// SearchConfig carries the server-side fusion strategy defaults and the
// orchestrator's fan-out limits.
type SearchConfig struct {
	MemoryWeight    float64 `toml:"memory_weight"`
	RAGWeight       float64 `toml:"rag_weight"`
	TimeDecay       float64 `toml:"time_decay"`
	RelevanceBoost  float64 `toml:"relevance_boost"`
	MaxResults      int     `toml:"max_results"`
	Threshold       float64 `toml:"threshold"`
	SourceTimeoutMS int     `toml:"source_timeout_ms"`
	MaxParallel     int     `toml:"max_parallel"`
}

type HealthConfig struct {
	ProbeIntervalSec int `toml:"probe_interval"`
	FailureThreshold int `toml:"failure_threshold"`
	ProbeTimeoutMS   int `toml:"probe_timeout_ms"`
}

// Default returns a Config with sensible defaults.
func Default() Config {
	strat := domain.DefaultStrategy()
	return Config{
		Server: ServerConfig{
			Bind: "127.0.0.1",
			Port: 38111,
		},
		Database: DatabaseConfig{
			Path: "", // resolved at runtime via store.DefaultDBPath()
		},
		Search: SearchConfig{
			MemoryWeight:    strat.MemoryWeight,
			RAGWeight:       strat.RAGWeight,
			TimeDecay:       strat.TimeDecay,
			RelevanceBoost:  strat.RelevanceBoost,
			MaxResults:      strat.MaxResults,
			Threshold:       strat.Threshold,
			SourceTimeoutMS: 5000,
			MaxParallel:     8,
		},
		Health: HealthConfig{
			ProbeIntervalSec: 300,
			FailureThreshold: 3,
			ProbeTimeoutMS:   3000,
		},
	}
}

// DefaultPath returns ~/.fusebox/config.toml.
func DefaultPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home dir: %w", err)
	}
	return filepath.Join(home, ".fusebox", "config.toml"), nil
}

// Load reads the config file at path, overlaying it onto the defaults.
// A missing file is not an error; the defaults apply.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}
	return cfg, nil
}

// ListenAddr returns the bind:port address string.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.Server.Bind, c.Server.Port)
}

// Strategy converts the search section into the fusion strategy defaults.
func (c *Config) Strategy() domain.Strategy {
	return domain.Strategy{
		MemoryWeight:   c.Search.MemoryWeight,
		RAGWeight:      c.Search.RAGWeight,
		TimeDecay:      c.Search.TimeDecay,
		RelevanceBoost: c.Search.RelevanceBoost,
		MaxResults:     c.Search.MaxResults,
		Threshold:      c.Search.Threshold,
	}
}

// SourceTimeout returns the per-source query deadline.
func (c *Config) SourceTimeout() time.Duration {
	return time.Duration(c.Search.SourceTimeoutMS) * time.Millisecond
}

// ProbeInterval returns the periodic health probe interval.
func (c *Config) ProbeInterval() time.Duration {
	return time.Duration(c.Health.ProbeIntervalSec) * time.Second
}

// ProbeTimeout returns the single-probe deadline.
func (c *Config) ProbeTimeout() time.Duration {
	return time.Duration(c.Health.ProbeTimeoutMS) * time.Millisecond
}
