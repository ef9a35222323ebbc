package signalscan

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/store"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// weekdaySeries produces length weekday bars with the given closes applied in
// order, starting 2024-01-01 (a Monday).
func weekdaySeries(instrument string, closes []float64) types.PriceSeries {
	series := types.PriceSeries{Instrument: instrument, Bars: nil}
	date := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for _, close := range closes {
		for date.Weekday() == time.Saturday || date.Weekday() == time.Sunday {
			date = date.AddDate(0, 0, 1)
		}

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

func risingCloses(length int) []float64 {
	closes := make([]float64, length)
	for i := range closes {
		closes[i] = 100 + float64(i)
	}

	return closes
}

// momentumStack fires where the close rose against the previous bar.
func momentumStack() types.RuleStack {
	return types.RuleStack{
		{
			Name: "Momentum",
			Type: types.RuleTypeROCPositive,
			Params: map[string]any{
				"period":    1,
				"threshold": 0,
			},
		},
	}
}

type IdentifierTestSuite struct {
	suite.Suite
	store    *store.DuckDBStore
	registry rule.Registry
	ctx      context.Context
}

func (suite *IdentifierTestSuite) SetupTest() {
	st, err := store.NewDuckDBStore(":memory:", nil)
	suite.Require().NoError(err)

	suite.ctx = context.Background()
	suite.Require().NoError(st.Initialize(suite.ctx))
	suite.store = st
	suite.registry = rule.NewDefaultRegistry()
}

func (suite *IdentifierTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func TestIdentifierSuite(t *testing.T) {
	suite.Run(t, new(IdentifierTestSuite))
}

func (suite *IdentifierTestSuite) newIdentifier(holdPeriod int) *Identifier {
	identifier, err := NewIdentifier(suite.store, suite.registry, holdPeriod, nil)
	suite.Require().NoError(err)

	return identifier
}

func (suite *IdentifierTestSuite) TestRejectsNonPositiveHoldPeriod() {
	_, err := NewIdentifier(suite.store, suite.registry, 0, nil)
	suite.True(errors.HasCode(err, errors.ErrCodeInvalidHoldPeriod))
}

func (suite *IdentifierTestSuite) TestScanOpensPositionAndIsIdempotent() {
	series := weekdaySeries("AAPL", risingCloses(10))
	last, _ := series.LastBar()

	identifier := suite.newIdentifier(10)

	result, err := identifier.Scan(suite.ctx, last.Date,
		map[string]types.PriceSeries{"AAPL": series},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)

	suite.Equal(1, result.Opened)
	suite.Equal(0, result.Closed)
	suite.Empty(result.OpenBefore)
	suite.Require().Len(result.Events, 1)
	suite.Equal(types.SignalTypeBuy, result.Events[0].Type)
	suite.Equal(last.Close, result.Events[0].Price)

	open, err := suite.store.GetOpenPositions(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(open, 1)
	suite.Equal(last.Date, open[0].EntryDate.UTC())

	// Re-running the same scan finds the position in the snapshot and makes
	// no further transitions.
	again, err := identifier.Scan(suite.ctx, last.Date,
		map[string]types.PriceSeries{"AAPL": series},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)
	suite.Equal(0, again.Opened)
	suite.Equal(0, again.Closed)
	suite.Len(again.OpenBefore, 1)
	suite.Empty(again.Events)

	open, err = suite.store.GetOpenPositions(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(open, 1)
}

func (suite *IdentifierTestSuite) TestScanClosesExpiredPosition() {
	// Rising closes with a lower final bar, so no fresh entry fires on the
	// scan date.
	closes := risingCloses(15)
	closes[14] = closes[13] - 1
	series := weekdaySeries("AAPL", closes)

	entryBar := series.Bars[4]
	last, _ := series.LastBar()

	position := types.Position{
		ID:             uuid.New().String(),
		Instrument:     "AAPL",
		EntryDate:      entryBar.Date,
		EntryPrice:     entryBar.Close,
		ExitDate:       nil,
		ExitPrice:      nil,
		Status:         types.PositionStatusOpen,
		RuleStackUsed:  momentumStack(),
		FinalReturnPct: nil,
		DaysHeld:       0,
	}
	suite.Require().NoError(suite.store.OpenPosition(suite.ctx, position))

	identifier := suite.newIdentifier(10)

	result, err := identifier.Scan(suite.ctx, last.Date,
		map[string]types.PriceSeries{"AAPL": series},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)

	suite.Equal(0, result.Opened)
	suite.Equal(1, result.Closed)
	suite.Require().Len(result.Events, 1)
	suite.Equal(types.SignalTypeSell, result.Events[0].Type)
	suite.Equal(last.Close, result.Events[0].Price)

	closed, err := suite.store.ListPositions(suite.ctx, store.PositionFilter{
		Instrument: nil,
		Status:     nil,
	})
	suite.Require().NoError(err)
	suite.Require().Len(closed, 1)
	suite.Equal(types.PositionStatusClosed, closed[0].Status)
	suite.InDelta(last.Close/entryBar.Close-1, closed[0].FinalReturnPct.Unwrap(), 1e-9)

	// A second identical scan has nothing left to transition.
	again, err := identifier.Scan(suite.ctx, last.Date,
		map[string]types.PriceSeries{"AAPL": series},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)
	suite.Equal(0, again.Opened)
	suite.Equal(0, again.Closed)
	suite.Empty(again.Events)
}

func (suite *IdentifierTestSuite) TestPositionHeldBelowHoldPeriodStaysOpen() {
	series := weekdaySeries("AAPL", risingCloses(15))
	entryBar := series.Bars[10]
	last, _ := series.LastBar()

	position := types.Position{
		ID:             uuid.New().String(),
		Instrument:     "AAPL",
		EntryDate:      entryBar.Date,
		EntryPrice:     entryBar.Close,
		ExitDate:       nil,
		ExitPrice:      nil,
		Status:         types.PositionStatusOpen,
		RuleStackUsed:  momentumStack(),
		FinalReturnPct: nil,
		DaysHeld:       0,
	}
	suite.Require().NoError(suite.store.OpenPosition(suite.ctx, position))

	identifier := suite.newIdentifier(10)

	result, err := identifier.Scan(suite.ctx, last.Date,
		map[string]types.PriceSeries{"AAPL": series},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)

	// Only 4 bars elapsed; the open position suppresses a new entry and is
	// not yet closable.
	suite.Equal(0, result.Opened)
	suite.Equal(0, result.Closed)

	open, err := suite.store.GetOpenPositions(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(open, 1)
}

func (suite *IdentifierTestSuite) TestStaleSeriesSkipped() {
	series := weekdaySeries("AAPL", risingCloses(10))
	last, _ := series.LastBar()

	identifier := suite.newIdentifier(10)

	// Scan dated after the newest bar: the instrument is reported, not
	// silently traded on stale data.
	result, err := identifier.Scan(suite.ctx, last.Date.AddDate(0, 0, 7),
		map[string]types.PriceSeries{"AAPL": series},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)

	suite.Equal(0, result.Opened)
	suite.Require().Len(result.Skipped, 1)
	suite.Equal("AAPL", result.Skipped[0].Instrument)
}

func (suite *IdentifierTestSuite) TestMissingSeriesSkipped() {
	identifier := suite.newIdentifier(10)

	result, err := identifier.Scan(suite.ctx, time.Now().UTC(),
		map[string]types.PriceSeries{},
		map[string]types.RuleStack{"AAPL": momentumStack()})
	suite.Require().NoError(err)

	suite.Equal(0, result.Opened)
	suite.Require().Len(result.Skipped, 1)
	suite.Equal("no price data for scan date", result.Skipped[0].Reason)
}
