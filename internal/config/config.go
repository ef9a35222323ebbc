// Package config loads and validates the run configuration.
package config

import (
	"bytes"
	"os"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/go-playground/validator/v10"
	"github.com/moznion/go-optional"
	"gopkg.in/yaml.v3"

	"github.com/rxtech-lab/edgefinder/internal/optimizer"
	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// SupportedVersions is the semver constraint the config version must satisfy.
const SupportedVersions = "^1"

// DataConfig configures the price-data provider and cache.
type DataConfig struct {
	// Provider selects the price-data source.
	Provider string `json:"provider" yaml:"provider" jsonschema:"title=Provider,enum=polygon,enum=binance,enum=csv" validate:"required,oneof=polygon binance csv"`
	// Path is the data directory: the bar cache for remote providers, the
	// CSV directory for the csv provider.
	Path string `json:"path" yaml:"path" validate:"required"`
	// Instruments are the symbols to scan.
	Instruments []string `json:"instruments" yaml:"instruments" validate:"required,min=1,dive,required"`
	// YearsHistory is how many years of daily bars to request.
	YearsHistory int `json:"years_history" yaml:"years_history" validate:"gte=1"`
	// FreezeDate caps price history at a fixed calendar date (YYYY-MM-DD)
	// for deterministic replay. Empty means no freeze.
	FreezeDate string `json:"freeze_date,omitempty" yaml:"freeze_date,omitempty"`
}

// RulesConfig partitions the configured rule definitions into the mandatory
// baseline and the optional filter layers.
type RulesConfig struct {
	Baseline types.RuleDefinition   `json:"baseline" yaml:"baseline" validate:"required"`
	Filters  []types.RuleDefinition `json:"filters,omitempty" yaml:"filters,omitempty"`
}

// Stack assembles the full rule stack (baseline first).
func (r RulesConfig) Stack() types.RuleStack {
	stack := types.RuleStack{r.Baseline}

	return append(stack, r.Filters...)
}

// BacktestConfig holds the simulation and selection parameters.
type BacktestConfig struct {
	// HoldPeriod is the fixed holding period in trading bars.
	HoldPeriod int `json:"hold_period" yaml:"hold_period" validate:"gt=0"`
	// MinTrades discards stacks with fewer closed trades.
	MinTrades int `json:"min_trades" yaml:"min_trades" validate:"gte=0"`
	// EdgeScoreWeights weight win percentage against normalized sharpe.
	EdgeScoreWeights optimizer.Weights `json:"edge_score_weights" yaml:"edge_score_weights"`
	// TopK retains the best K stacks per instrument (default 1).
	TopK int `json:"top_k,omitempty" yaml:"top_k,omitempty" validate:"gte=0"`
	// Workers bounds the per-instrument worker pool (default 1).
	Workers int `json:"workers,omitempty" yaml:"workers,omitempty" validate:"gte=0"`
}

// StoreConfig selects and configures the persistence backend.
type StoreConfig struct {
	// Backend is duckdb (embedded, default) or postgres (shared).
	Backend string `json:"backend" yaml:"backend" jsonschema:"title=Backend,enum=duckdb,enum=postgres" validate:"required,oneof=duckdb postgres"`
	// Path is the DuckDB database file path.
	Path string `json:"path,omitempty" yaml:"path,omitempty" validate:"required_if=Backend duckdb"`
	// DSN is the Postgres connection string.
	DSN string `json:"dsn,omitempty" yaml:"dsn,omitempty" validate:"required_if=Backend postgres"`
}

// APIConfig configures the read-only HTTP query surface.
type APIConfig struct {
	// Listen is the address the query server binds to.
	Listen string `json:"listen,omitempty" yaml:"listen,omitempty"`
}

// Config is the full, immutable run configuration. It is validated once at
// load time and passed explicitly down the optimizer, simulator and store
// call chain; there is no ambient mutable settings object.
type Config struct {
	// Version is the config schema version, checked against SupportedVersions.
	Version string `json:"version" yaml:"version" validate:"required"`
	// ResultsFolder receives per-run report snapshots.
	ResultsFolder string `json:"results_folder,omitempty" yaml:"results_folder,omitempty"`

	Data     DataConfig     `json:"data" yaml:"data"`
	Rules    RulesConfig    `json:"rules" yaml:"rules"`
	Backtest BacktestConfig `json:"backtest" yaml:"backtest"`
	Store    StoreConfig    `json:"store" yaml:"store"`
	API      APIConfig      `json:"api,omitempty" yaml:"api,omitempty"`
}

// LoadConfig reads, parses and validates a YAML config file. Unknown fields
// are rejected so typos fail loudly instead of silently defaulting.
func LoadConfig(path string, registry rule.Registry) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err, "failed to read config %s", path)
	}

	return ParseConfig(data, registry)
}

// ParseConfig parses and validates raw YAML config bytes.
func ParseConfig(data []byte, registry rule.Registry) (Config, error) {
	var config Config

	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)

	if err := decoder.Decode(&config); err != nil {
		return Config{}, errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to parse config", err)
	}

	if err := config.Validate(registry); err != nil {
		return Config{}, err
	}

	return config, nil
}

// Validate checks every configuration invariant, including that each
// configured rule resolves against the registry. An invalid configuration
// aborts before any backtest work, with nothing partially written.
func (c *Config) Validate(registry rule.Registry) error {
	validate := validator.New()
	if err := validate.Struct(c); err != nil {
		return errors.Wrap(errors.ErrCodeInvalidConfiguration, "invalid configuration", err)
	}

	version, err := semver.NewVersion(c.Version)
	if err != nil {
		return errors.Wrapf(errors.ErrCodeInvalidVersion, err, "invalid config version %q", c.Version)
	}

	constraint, err := semver.NewConstraint(SupportedVersions)
	if err != nil {
		return errors.Wrap(errors.ErrCodeInvalidVersion, "invalid version constraint", err)
	}

	if !constraint.Check(version) {
		return errors.Newf(errors.ErrCodeInvalidVersion,
			"config version %s does not satisfy %s", c.Version, SupportedVersions)
	}

	if err := c.Backtest.EdgeScoreWeights.Validate(); err != nil {
		return err
	}

	// Resolve the full stack once so an unknown rule type or a bad
	// parameter fails at load time, not at evaluation time.
	if registry != nil {
		if _, err := registry.CreateStack(c.Rules.Stack()); err != nil {
			return err
		}
	}

	if _, err := c.FreezeDate(); err != nil {
		return err
	}

	return nil
}

// FreezeDate parses the optional freeze date.
func (c *Config) FreezeDate() (optional.Option[time.Time], error) {
	if c.Data.FreezeDate == "" {
		return nil, nil
	}

	parsed, err := time.Parse(time.DateOnly, c.Data.FreezeDate)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrCodeInvalidConfiguration, err,
			"invalid freeze date %q, expected YYYY-MM-DD", c.Data.FreezeDate)
	}

	return optional.Some(parsed.UTC()), nil
}

// OptimizerConfig derives the immutable optimizer configuration.
func (c *Config) OptimizerConfig(showProgress bool) optimizer.Config {
	return optimizer.Config{
		MinTrades:    c.Backtest.MinTrades,
		HoldPeriod:   c.Backtest.HoldPeriod,
		Weights:      c.Backtest.EdgeScoreWeights,
		TopK:         c.Backtest.TopK,
		Workers:      c.Backtest.Workers,
		ShowProgress: showProgress,
	}
}
