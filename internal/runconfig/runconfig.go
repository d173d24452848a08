// Package runconfig loads a backtest run's configuration from YAML,
// with environment-variable overrides for secrets like database
// connection strings. This completes the wiring the teacher's
// yaml-tagged Config struct declared but never fed through an actual
// unmarshaler.
package runconfig

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// StrategyConfig is one strategy's registration entry: which strategy
// to run and the parameter values for its schema.
type StrategyConfig struct {
	Name        string                 `yaml:"name"`
	Parameters  map[string]interface{} `yaml:"parameters"`
	AllowedDays []string               `yaml:"allowed_days"`
}

// RunConfig is the top-level configuration for one backtest run,
// matching spec.md §6's run-configuration shape.
type RunConfig struct {
	InitialCapital        float64          `yaml:"initial_capital"`
	MaxTotalRiskFraction  float64          `yaml:"max_total_risk_fraction"`
	PerTradeRiskFraction  float64          `yaml:"per_trade_risk_fraction"`
	UseCompounding        bool             `yaml:"use_compounding"`
	BaseTimeframe         string           `yaml:"base_timeframe"`
	Symbol                string           `yaml:"symbol"`
	StartTime             *time.Time       `yaml:"start_time"`
	EndTime               *time.Time       `yaml:"end_time"`
	Strategies            []StrategyConfig `yaml:"strategies"`

	// DatabaseURL is resolved from the DATABASE_URL environment
	// variable (via .env if present), never from the YAML file.
	DatabaseURL string `yaml:"-"`
}

// Load reads a RunConfig from a YAML file at path and overlays
// environment variables loaded from envPath (a .env file; pass "" to
// skip loading one and fall back to the process environment as-is).
func Load(path, envPath string) (RunConfig, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return RunConfig{}, fmt.Errorf("runconfig: load env file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return RunConfig{}, fmt.Errorf("runconfig: read %s: %w", path, err)
	}

	var cfg RunConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return RunConfig{}, fmt.Errorf("runconfig: parse %s: %w", path, err)
	}

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if err := cfg.Validate(); err != nil {
		return RunConfig{}, err
	}
	return cfg, nil
}

// Validate checks the run configuration is internally consistent.
func (c RunConfig) Validate() error {
	if c.InitialCapital <= 0 {
		return fmt.Errorf("runconfig: initial_capital must be positive")
	}
	if c.PerTradeRiskFraction <= 0 || c.PerTradeRiskFraction > c.MaxTotalRiskFraction {
		return fmt.Errorf("runconfig: per_trade_risk_fraction must be positive and at most max_total_risk_fraction")
	}
	if c.BaseTimeframe == "" {
		return fmt.Errorf("runconfig: base_timeframe is required")
	}
	if len(c.Strategies) == 0 {
		return fmt.Errorf("runconfig: at least one strategy must be registered")
	}
	return nil
}
