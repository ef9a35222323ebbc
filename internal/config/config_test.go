package config

import (
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

const validYAML = `
version: "1.0.0"
results_folder: results
data:
  provider: csv
  path: testdata
  instruments: [AAPL, MSFT]
  years_history: 3
rules:
  baseline:
    name: Golden cross
    type: sma_crossover
    params:
      fast_period: 10
      slow_period: 20
  filters:
    - name: Volume conviction
      type: volume_surge
      params:
        period: 20
        multiplier: 1.5
backtest:
  hold_period: 20
  min_trades: 10
  edge_score_weights:
    win_pct: 0.6
    sharpe: 0.4
store:
  backend: duckdb
  path: edgefinder.duckdb
`

type ConfigTestSuite struct {
	suite.Suite
	registry rule.Registry
}

func (suite *ConfigTestSuite) SetupTest() {
	suite.registry = rule.NewDefaultRegistry()
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigTestSuite))
}

func (suite *ConfigTestSuite) parse(yaml string) error {
	_, err := ParseConfig([]byte(yaml), suite.registry)

	return err
}

func (suite *ConfigTestSuite) TestValidConfigParses() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	suite.Equal("csv", config.Data.Provider)
	suite.Len(config.Data.Instruments, 2)
	suite.Equal(20, config.Backtest.HoldPeriod)
	suite.Len(config.Rules.Stack(), 2)

	derived := config.OptimizerConfig(false)
	suite.Equal(10, derived.MinTrades)
	suite.Equal(0.6, derived.Weights.WinPct)
}

func (suite *ConfigTestSuite) TestUnknownFieldRejected() {
	err := suite.parse(validYAML + "\nsurprise: true\n")
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestUnsupportedVersionRejected() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	config.Version = "2.0.0"
	err = config.Validate(suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidVersion))

	config.Version = "not-a-version"
	err = config.Validate(suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidVersion))
}

func (suite *ConfigTestSuite) TestWeightsMustSumToOne() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	config.Backtest.EdgeScoreWeights.Sharpe = 0.6
	err = config.Validate(suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidWeights))
}

func (suite *ConfigTestSuite) TestUnknownRuleTypeRejectedAtLoadTime() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	config.Rules.Baseline.Type = "not_a_rule"
	err = config.Validate(suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownRuleType))
}

func (suite *ConfigTestSuite) TestBadRuleParamsRejectedAtLoadTime() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	config.Rules.Baseline.Params["fast_period"] = 50
	err = config.Validate(suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *ConfigTestSuite) TestFreezeDateParsing() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	freeze, err := config.FreezeDate()
	suite.Require().NoError(err)
	suite.True(freeze.IsNone())

	config.Data.FreezeDate = "2024-06-01"
	freeze, err = config.FreezeDate()
	suite.Require().NoError(err)
	suite.Require().True(freeze.IsSome())
	suite.Equal("2024-06-01", freeze.Unwrap().Format("2006-01-02"))

	config.Data.FreezeDate = "June 1st"
	_, err = config.FreezeDate()
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestPostgresBackendRequiresDSN() {
	config, err := ParseConfig([]byte(validYAML), suite.registry)
	suite.Require().NoError(err)

	config.Store.Backend = "postgres"
	config.Store.DSN = ""
	err = config.Validate(suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidConfiguration))
}

func (suite *ConfigTestSuite) TestSampleConfigIsValid() {
	sample := SampleConfig()
	suite.NoError(sample.Validate(suite.registry))

	schema, err := sample.GenerateSchemaJSON()
	suite.Require().NoError(err)
	suite.Contains(schema, "hold_period")
}
