package backtest

import (
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/edgefinder/internal/combinator"
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

type SimulatorTestSuite struct {
	suite.Suite
}

func TestSimulatorSuite(t *testing.T) {
	suite.Run(t, new(SimulatorTestSuite))
}

func (suite *SimulatorTestSuite) TestRejectsNonPositiveHoldPeriod() {
	_, err := NewSimulator(0)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidHoldPeriod))

	_, err = NewSimulator(-5)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidHoldPeriod))
}

func (suite *SimulatorTestSuite) TestSingleTradeLifecycle() {
	series := monotonicSeries(30)
	entries := make([]bool, 30)
	entries[0] = true

	simulator, err := NewSimulator(10)
	suite.Require().NoError(err)

	result, err := simulator.Run(series, entries)
	suite.Require().NoError(err)
	suite.Require().Len(result.Trades, 1)

	trade := result.Trades[0]
	suite.Equal(series.Bars[0].Date, trade.EntryDate)
	suite.Equal(series.Bars[10].Date, trade.ExitDate)
	suite.InDelta(series.Bars[10].Close/series.Bars[0].Close-1, trade.ReturnPct, 1e-12)
}

func (suite *SimulatorTestSuite) TestSignalsIgnoredWhileOpen() {
	series := monotonicSeries(30)
	entries := make([]bool, 30)
	entries[0] = true
	entries[5] = true

	simulator, err := NewSimulator(10)
	suite.Require().NoError(err)

	result, err := simulator.Run(series, entries)
	suite.Require().NoError(err)

	// The bar-5 signal fires while the bar-0 trade is still open and must
	// not stack a second position.
	suite.Len(result.Trades, 1)
}

func (suite *SimulatorTestSuite) TestExitBarHostsNewEntry() {
	series := monotonicSeries(30)
	entries := make([]bool, 30)
	entries[0] = true
	entries[10] = true

	simulator, err := NewSimulator(10)
	suite.Require().NoError(err)

	result, err := simulator.Run(series, entries)
	suite.Require().NoError(err)
	suite.Require().Len(result.Trades, 2)

	// The first trade closes on bar 10 before the new signal is considered.
	suite.Equal(series.Bars[10].Date, result.Trades[0].ExitDate)
	suite.Equal(series.Bars[10].Date, result.Trades[1].EntryDate)
	suite.Equal(series.Bars[20].Date, result.Trades[1].ExitDate)
}

func (suite *SimulatorTestSuite) TestOpenTradeAtWindowEndDiscarded() {
	series := monotonicSeries(30)
	entries := make([]bool, 30)
	entries[25] = true

	simulator, err := NewSimulator(10)
	suite.Require().NoError(err)

	result, err := simulator.Run(series, entries)
	suite.Require().NoError(err)
	suite.Empty(result.Trades)
	suite.Equal(0, result.Stats.TotalTrades)
}

func (suite *SimulatorTestSuite) TestMisalignedEntriesRejected() {
	series := monotonicSeries(30)

	simulator, err := NewSimulator(10)
	suite.Require().NoError(err)

	_, err = simulator.Run(series, make([]bool, 29))
	suite.True(errors.HasCode(err, errors.ErrCodeMisalignedSeries))
}

func (suite *SimulatorTestSuite) TestGoldenCrossScenario() {
	// 60 rising bars with an SMA(5, 20) crossover: the stack fires exactly
	// once near bar 20 and the 10-bar hold closes in profit.
	series := monotonicSeries(60)
	registry := rule.NewDefaultRegistry()

	entries, err := combinator.Combine(series, types.RuleStack{
		{
			Name: "Golden cross",
			Type: types.RuleTypeSMACrossover,
			Params: map[string]any{
				"fast_period": 5,
				"slow_period": 20,
			},
		},
	}, registry)
	suite.Require().NoError(err)

	simulator, err := NewSimulator(10)
	suite.Require().NoError(err)

	result, err := simulator.Run(series, entries)
	suite.Require().NoError(err)
	suite.Require().Len(result.Trades, 1)

	trade := result.Trades[0]
	suite.Equal(series.Bars[19].Date, trade.EntryDate)
	suite.Equal(series.Bars[29].Date, trade.ExitDate)
	suite.Greater(trade.ReturnPct, 0.0)

	suite.Equal(1, result.Stats.TotalTrades)
	suite.Equal(1.0, result.Stats.WinPct)
}

func (suite *SimulatorTestSuite) TestSummarizeEmpty() {
	stats := Summarize(nil)
	suite.Equal(0, stats.TotalTrades)
	suite.Equal(0.0, stats.WinPct)
	suite.Equal(0.0, stats.AvgReturn)
	suite.Equal(0.0, stats.Sharpe)
}

func (suite *SimulatorTestSuite) TestSummarizeZeroVariance() {
	trades := []types.TradeRecord{
		{ReturnPct: 0.05},
		{ReturnPct: 0.05},
		{ReturnPct: 0.05},
	}

	stats := Summarize(trades)
	suite.Equal(3, stats.TotalTrades)
	suite.Equal(1.0, stats.WinPct)
	suite.InDelta(0.05, stats.AvgReturn, 1e-12)

	// Identical returns have zero variance; sharpe degrades to the defined
	// sentinel instead of dividing by zero.
	suite.Equal(0.0, stats.Sharpe)
}

func (suite *SimulatorTestSuite) TestSummarizeMixedTrades() {
	trades := []types.TradeRecord{
		{ReturnPct: 0.10},
		{ReturnPct: -0.05},
		{ReturnPct: 0.02},
		{ReturnPct: -0.03},
	}

	stats := Summarize(trades)
	suite.Equal(4, stats.TotalTrades)
	suite.Equal(0.5, stats.WinPct)
	suite.InDelta(0.01, stats.AvgReturn, 1e-12)
	suite.Greater(stats.Sharpe, 0.0)
}
