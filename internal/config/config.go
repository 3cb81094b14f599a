// Package config loads and validates world configuration.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// ErrInvalidConfig wraps every validation failure.
var ErrInvalidConfig = errors.New("invalid config")

// InitialConfiguration selects how the social network is seeded.
type InitialConfiguration string

const (
	InitNone    InitialConfiguration = "None"    // Isolated agents
	InitRandom1 InitialConfiguration = "Random1" // One random edge per agent
)

// Config is the set of parameters consumed at world construction.
type Config struct {
	AgentCount           int                  `yaml:"agent_count" json:"agent_count"`
	InitialConfiguration InitialConfiguration `yaml:"initial_configuration" json:"initial_configuration"`
	AgentSpeed           float64              `yaml:"agent_speed" json:"agent_speed"`
	TaskSpeed            float64              `yaml:"task_speed" json:"task_speed"`
	MaxClock             float64              `yaml:"max_clock" json:"max_clock"` // 0 = unbounded
	CollectionIntervals  float64              `yaml:"collection_intervals" json:"collection_intervals"`
	RandomSeed           *int64               `yaml:"random_seed" json:"random_seed,omitempty"`
	WTHDecay             float64              `yaml:"wth_decay" json:"wth_decay"` // β
}

// Default returns a config with every optional key at its default.
func Default() Config {
	return Config{
		AgentCount:           100,
		InitialConfiguration: InitNone,
		AgentSpeed:           1,
		TaskSpeed:            1,
		CollectionIntervals:  1,
		WTHDecay:             1,
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	raw, err := os.ReadFile(path)
	if err != nil {
		return cfg, err
	}
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Validate checks every field and reports the first problem found.
func (c Config) Validate() error {
	if c.AgentCount <= 0 {
		return fmt.Errorf("%w: agent_count must be positive, got %d", ErrInvalidConfig, c.AgentCount)
	}
	switch c.InitialConfiguration {
	case InitNone, InitRandom1:
	default:
		return fmt.Errorf("%w: unknown initial_configuration %q", ErrInvalidConfig, c.InitialConfiguration)
	}
	if c.AgentSpeed <= 0 {
		return fmt.Errorf("%w: agent_speed must be positive, got %g", ErrInvalidConfig, c.AgentSpeed)
	}
	if c.TaskSpeed <= 0 {
		return fmt.Errorf("%w: task_speed must be positive, got %g", ErrInvalidConfig, c.TaskSpeed)
	}
	if c.MaxClock < 0 {
		return fmt.Errorf("%w: max_clock must not be negative, got %g", ErrInvalidConfig, c.MaxClock)
	}
	if c.CollectionIntervals <= 0 {
		return fmt.Errorf("%w: collection_intervals must be positive, got %g", ErrInvalidConfig, c.CollectionIntervals)
	}
	if c.WTHDecay < 1 {
		return fmt.Errorf("%w: wth_decay must be at least 1, got %g", ErrInvalidConfig, c.WTHDecay)
	}
	return nil
}

// WithSeed returns a copy of c with RandomSeed set.
func (c Config) WithSeed(seed int64) Config {
	c.RandomSeed = &seed
	return c
}
