package rule

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// monotonicSeries produces length weekday bars with strictly increasing
// closes starting 2024-01-01 (a Monday).
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

func flatSeries(length int) types.PriceSeries {
	series := monotonicSeries(length)
	for i := range series.Bars {
		series.Bars[i].Open = 100
		series.Bars[i].High = 100
		series.Bars[i].Low = 100
		series.Bars[i].Close = 100
	}

	return series
}

type RuleTestSuite struct {
	suite.Suite
	registry Registry
}

func (suite *RuleTestSuite) SetupTest() {
	suite.registry = NewDefaultRegistry()
}

func TestRuleSuite(t *testing.T) {
	suite.Run(t, new(RuleTestSuite))
}

func (suite *RuleTestSuite) TestDefaultRegistryTypes() {
	names := suite.registry.ListTypes()
	suite.Len(names, 8)
	suite.Contains(names, types.RuleTypeSMACrossover)
	suite.Contains(names, types.RuleTypeMACDCross)
}

func (suite *RuleTestSuite) TestCreateUnknownType() {
	_, err := suite.registry.Create(types.RuleDefinition{
		Name:   "mystery",
		Type:   types.RuleType("not_a_rule"),
		Params: nil,
	})
	suite.True(errors.HasCode(err, errors.ErrCodeUnknownRuleType))
}

func (suite *RuleTestSuite) TestRegisterDuplicate() {
	err := suite.registry.Register(NewSMACrossover)
	suite.True(errors.HasCode(err, errors.ErrCodeRuleAlreadyRegistered))
}

// lookbackless is a deliberately broken rule that declares no lookback.
type lookbackless struct{}

func (r *lookbackless) Type() types.RuleType                { return types.RuleType("lookbackless") }
func (r *lookbackless) MinLookback() int                    { return 0 }
func (r *lookbackless) Config(map[string]any) error         { return nil }
func (r *lookbackless) Evaluate(s types.PriceSeries) []bool { return make([]bool, s.Len()) }

func (suite *RuleTestSuite) TestRegisterRejectsUndeclaredLookback() {
	err := suite.registry.Register(func() Rule { return &lookbackless{} })
	suite.True(errors.HasCode(err, errors.ErrCodeLookbackUndeclared))
}

func (suite *RuleTestSuite) TestSMACrossoverFiresOnceOnMonotonicSeries() {
	instance, err := suite.registry.Create(types.RuleDefinition{
		Name: "Golden cross",
		Type: types.RuleTypeSMACrossover,
		Params: map[string]any{
			"fast_period": 5,
			"slow_period": 20,
		},
	})
	suite.Require().NoError(err)
	suite.Equal(21, instance.MinLookback())

	fired := instance.Evaluate(monotonicSeries(60))

	// On strictly increasing closes the fast average already exceeds the
	// slow one at the first comparable bar and never dips back, so exactly
	// one entry fires, at the first valid index.
	var indexes []int
	for i, f := range fired {
		if f {
			indexes = append(indexes, i)
		}
	}

	suite.Equal([]int{19}, indexes)
}

func (suite *RuleTestSuite) TestSMACrossoverSilentOnFlatSeries() {
	instance, err := suite.registry.Create(types.RuleDefinition{
		Name: "Golden cross",
		Type: types.RuleTypeSMACrossover,
		Params: map[string]any{
			"fast_period": 5,
			"slow_period": 20,
		},
	})
	suite.Require().NoError(err)

	fired := instance.Evaluate(flatSeries(60))

	// Equal averages never strictly cross.
	for _, f := range fired {
		suite.False(f)
	}
}

func (suite *RuleTestSuite) TestSMACrossoverRejectsInvertedPeriods() {
	_, err := suite.registry.Create(types.RuleDefinition{
		Name: "Backwards",
		Type: types.RuleTypeSMACrossover,
		Params: map[string]any{
			"fast_period": 20,
			"slow_period": 10,
		},
	})
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidParameter))
}

func (suite *RuleTestSuite) TestStackLookbackIsMaxAcrossMembers() {
	lookback, err := suite.registry.StackLookback(types.RuleStack{
		{
			Name: "Golden cross",
			Type: types.RuleTypeSMACrossover,
			Params: map[string]any{
				"fast_period": 5,
				"slow_period": 20,
			},
		},
		{
			Name: "Long trend",
			Type: types.RuleTypePriceAboveSMA,
			Params: map[string]any{
				"period": 50,
			},
		},
	})
	suite.Require().NoError(err)
	suite.Equal(50, lookback)
}

func (suite *RuleTestSuite) TestShortSeriesNeverFires() {
	// Every built-in rule must stay silent when the series is shorter than
	// any valid window, rather than reading garbage.
	short := monotonicSeries(3)

	for _, name := range suite.registry.ListTypes() {
		instance, err := suite.registry.Create(types.RuleDefinition{
			Name:   string(name),
			Type:   name,
			Params: nil,
		})
		suite.Require().NoError(err)

		fired := instance.Evaluate(short)
		suite.Len(fired, short.Len())

		for _, f := range fired {
			suite.False(f, "rule %s fired on a series shorter than its window", name)
		}
	}
}
