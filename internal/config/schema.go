package config

import (
	"encoding/json"

	"github.com/invopop/jsonschema"

	"github.com/rxtech-lab/edgefinder/internal/optimizer"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// SampleConfig returns a config pre-filled with sensible defaults, used to
// seed a new project's config file.
func SampleConfig() Config {
	return Config{
		Version:       "1.0.0",
		ResultsFolder: "results",
		Data: DataConfig{
			Provider:     "csv",
			Path:         "data",
			Instruments:  []string{"AAPL", "MSFT"},
			YearsHistory: 3,
			FreezeDate:   "",
		},
		Rules: RulesConfig{
			Baseline: types.RuleDefinition{
				Name: "Golden cross",
				Type: types.RuleTypeSMACrossover,
				Params: map[string]any{
					"fast_period": 10,
					"slow_period": 20,
				},
			},
			Filters: []types.RuleDefinition{
				{
					Name: "Volume conviction",
					Type: types.RuleTypeVolumeSurge,
					Params: map[string]any{
						"period":     20,
						"multiplier": 1.5,
					},
				},
			},
		},
		Backtest: BacktestConfig{
			HoldPeriod: 20,
			MinTrades:  10,
			EdgeScoreWeights: optimizer.Weights{
				WinPct: 0.6,
				Sharpe: 0.4,
			},
			TopK:    1,
			Workers: 4,
		},
		Store: StoreConfig{
			Backend: "duckdb",
			Path:    "edgefinder.duckdb",
			DSN:     "",
		},
		API: APIConfig{
			Listen: "",
		},
	}
}

// GenerateSchemaJSON produces the JSON schema of the config format for
// editor completion and validation.
func (c *Config) GenerateSchemaJSON() (string, error) {
	reflector := jsonschema.Reflector{
		DoNotReference: true,
	}

	schema := reflector.Reflect(c)

	data, err := json.MarshalIndent(schema, "", "  ")
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidConfiguration, "failed to marshal config schema", err)
	}

	return string(data), nil
}
