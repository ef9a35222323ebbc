package combinator

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

func monotonicSeries(length int) types.PriceSeries {
	series := types.PriceSeries{Instrument: "TEST", Bars: nil}
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := 0; i < length; i++ {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}

		close := 100 + float64(i)
		series.Bars = append(series.Bars, types.Bar{
			Date:   date,
			Open:   close,
			High:   close,
			Low:    close,
			Close:  close,
			Volume: 1000,
		})
		date = date.AddDate(0, 0, 1)
	}

	return series
}

func goldenCross() types.RuleDefinition {
	return types.RuleDefinition{
		Name: "Golden cross",
		Type: types.RuleTypeSMACrossover,
		Params: map[string]any{
			"fast_period": 5,
			"slow_period": 20,
		},
	}
}

type CombinatorTestSuite struct {
	suite.Suite
	registry rule.Registry
}

func (suite *CombinatorTestSuite) SetupTest() {
	suite.registry = rule.NewDefaultRegistry()
}

func TestCombinatorSuite(t *testing.T) {
	suite.Run(t, new(CombinatorTestSuite))
}

func (suite *CombinatorTestSuite) TestBaselineOnlyPassesThrough() {
	series := monotonicSeries(60)

	combined, err := Combine(series, types.RuleStack{goldenCross()}, suite.registry)
	suite.Require().NoError(err)
	suite.Len(combined, series.Len())

	instance, err := suite.registry.Create(goldenCross())
	suite.Require().NoError(err)

	// A single-rule stack is exactly the baseline's own signal.
	suite.Equal(instance.Evaluate(series), combined)
	suite.Equal(1, TrueCount(combined))
}

func (suite *CombinatorTestSuite) TestFilterNarrowsBaseline() {
	series := monotonicSeries(60)

	baselineOnly, err := Combine(series, types.RuleStack{goldenCross()}, suite.registry)
	suite.Require().NoError(err)

	// Constant volume never surges, so the filter suppresses every entry the
	// baseline produced.
	stacked, err := Combine(series, types.RuleStack{
		goldenCross(),
		{
			Name: "Volume conviction",
			Type: types.RuleTypeVolumeSurge,
			Params: map[string]any{
				"period":     20,
				"multiplier": 1.5,
			},
		},
	}, suite.registry)
	suite.Require().NoError(err)

	suite.Equal(1, TrueCount(baselineOnly))
	suite.Equal(0, TrueCount(stacked))

	for i := range stacked {
		suite.False(stacked[i] && !baselineOnly[i], "filter must only narrow, never add")
	}
}

func (suite *CombinatorTestSuite) TestPermissiveFilterKeepsBaseline() {
	series := monotonicSeries(60)

	// Momentum is always positive on a rising series, so the filter keeps the
	// baseline's entry intact.
	stacked, err := Combine(series, types.RuleStack{
		goldenCross(),
		{
			Name: "Momentum",
			Type: types.RuleTypeROCPositive,
			Params: map[string]any{
				"period":    10,
				"threshold": 0,
			},
		},
	}, suite.registry)
	suite.Require().NoError(err)
	suite.Equal(1, TrueCount(stacked))
}

func (suite *CombinatorTestSuite) TestEmptyStackRejected() {
	_, err := CombineRules(monotonicSeries(10), nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidRuleStack))
}

func (suite *CombinatorTestSuite) TestUnknownRuleTypeRejected() {
	_, err := Combine(monotonicSeries(10), types.RuleStack{
		{Name: "mystery", Type: types.RuleType("not_a_rule"), Params: nil},
	}, suite.registry)
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownRuleType))
}
