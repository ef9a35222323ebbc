package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/moznion/go-optional"
	"github.com/stretchr/testify/suite"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

func testStack(name string) types.RuleStack {
	return types.RuleStack{
		{
			Name: name,
			Type: types.RuleTypeSMACrossover,
			Params: map[string]any{
				"fast_period": 5,
				"slow_period": 20,
			},
		},
	}
}

func testStrategy(instrument string, runTimestamp time.Time) types.StrategyResult {
	return types.StrategyResult{
		Instrument:   instrument,
		RuleStack:    testStack("Golden cross"),
		RunTimestamp: runTimestamp,
		EdgeScore:    0.8,
		WinPct:       1.0,
		Sharpe:       0.0,
		TotalTrades:  12,
		AvgReturn:    0.05,
	}
}

func testPosition(instrument string) types.Position {
	return types.Position{
		ID:             uuid.New().String(),
		Instrument:     instrument,
		EntryDate:      time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC),
		EntryPrice:     100,
		ExitDate:       nil,
		ExitPrice:      nil,
		Status:         types.PositionStatusOpen,
		RuleStackUsed:  testStack("Golden cross"),
		FinalReturnPct: nil,
		DaysHeld:       0,
	}
}

type DuckDBStoreTestSuite struct {
	suite.Suite
	store *DuckDBStore
	ctx   context.Context
}

func (suite *DuckDBStoreTestSuite) SetupTest() {
	store, err := NewDuckDBStore(":memory:", nil)
	suite.Require().NoError(err)

	suite.ctx = context.Background()
	suite.Require().NoError(store.Initialize(suite.ctx))
	suite.store = store
}

func (suite *DuckDBStoreTestSuite) TearDownTest() {
	if suite.store != nil {
		suite.store.Close()
	}
}

func TestDuckDBStoreSuite(t *testing.T) {
	suite.Run(t, new(DuckDBStoreTestSuite))
}

func (suite *DuckDBStoreTestSuite) TestInsertStrategiesIsIdempotent() {
	runTimestamp := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	batch := []types.StrategyResult{testStrategy("AAPL", runTimestamp)}

	suite.Require().NoError(suite.store.InsertStrategies(suite.ctx, batch))

	// Replaying the same batch must not duplicate rows.
	suite.Require().NoError(suite.store.InsertStrategies(suite.ctx, batch))

	rows, err := suite.store.ListStrategies(suite.ctx, StrategyFilter{Instrument: nil, Since: nil})
	suite.Require().NoError(err)
	suite.Require().Len(rows, 1)
	suite.Equal("AAPL", rows[0].Instrument)
	suite.Equal(12, rows[0].TotalTrades)
	suite.Equal("Golden cross", rows[0].RuleStack.Label())
}

func (suite *DuckDBStoreTestSuite) TestStrategyHistoryIsAppendOnly() {
	first := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)
	second := first.AddDate(0, 0, 1)

	suite.Require().NoError(suite.store.InsertStrategies(suite.ctx,
		[]types.StrategyResult{testStrategy("AAPL", first)}))
	suite.Require().NoError(suite.store.InsertStrategies(suite.ctx,
		[]types.StrategyResult{testStrategy("AAPL", second)}))

	rows, err := suite.store.ListStrategies(suite.ctx, StrategyFilter{
		Instrument: optional.Some("AAPL"),
		Since:      nil,
	})
	suite.Require().NoError(err)
	suite.Require().Len(rows, 2)

	// Newest run first.
	suite.Equal(second, rows[0].RunTimestamp.UTC())

	since, err := suite.store.ListStrategies(suite.ctx, StrategyFilter{
		Instrument: nil,
		Since:      optional.Some(second),
	})
	suite.Require().NoError(err)
	suite.Len(since, 1)
}

func (suite *DuckDBStoreTestSuite) TestOpenPositionRejectsDuplicate() {
	position := testPosition("AAPL")
	suite.Require().NoError(suite.store.OpenPosition(suite.ctx, position))

	err := suite.store.OpenPosition(suite.ctx, testPosition("AAPL"))
	suite.True(errors.HasCode(err, errors.ErrCodeDuplicateOpenPosition))

	// A different instrument is unaffected.
	suite.NoError(suite.store.OpenPosition(suite.ctx, testPosition("MSFT")))

	open, err := suite.store.GetOpenPositions(suite.ctx)
	suite.Require().NoError(err)
	suite.Len(open, 2)
}

func (suite *DuckDBStoreTestSuite) TestClosePositionLifecycle() {
	position := testPosition("AAPL")
	suite.Require().NoError(suite.store.OpenPosition(suite.ctx, position))

	close := PositionClose{
		PositionID:     position.ID,
		ExitDate:       time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC),
		ExitPrice:      110,
		FinalReturnPct: 0.1,
		DaysHeld:       14,
	}
	suite.Require().NoError(suite.store.ClosePosition(suite.ctx, close))

	// The transition is unidirectional; closing again fails.
	err := suite.store.ClosePosition(suite.ctx, close)
	suite.True(errors.HasCode(err, errors.ErrCodePositionNotOpen))

	rows, err := suite.store.ListPositions(suite.ctx, PositionFilter{
		Instrument: optional.Some("AAPL"),
		Status:     optional.Some(types.PositionStatusClosed),
	})
	suite.Require().NoError(err)
	suite.Require().Len(rows, 1)

	closed := rows[0]
	suite.Equal(types.PositionStatusClosed, closed.Status)
	suite.True(closed.ExitDate.IsSome())
	suite.Equal(110.0, closed.ExitPrice.Unwrap())
	suite.InDelta(0.1, closed.FinalReturnPct.Unwrap(), 1e-12)
	suite.Equal(14, closed.DaysHeld)

	// Once closed, the instrument may open a new position.
	has, err := suite.store.HasOpenPosition(suite.ctx, "AAPL")
	suite.Require().NoError(err)
	suite.False(has)
	suite.NoError(suite.store.OpenPosition(suite.ctx, testPosition("AAPL")))
}

func (suite *DuckDBStoreTestSuite) TestCloseUnknownPosition() {
	err := suite.store.ClosePosition(suite.ctx, PositionClose{
		PositionID:     uuid.New().String(),
		ExitDate:       time.Now().UTC(),
		ExitPrice:      100,
		FinalReturnPct: 0,
		DaysHeld:       0,
	})
	suite.True(errors.HasCode(err, errors.ErrCodePositionNotFound))
}

func (suite *DuckDBStoreTestSuite) TestRuleStackSnapshotSurvivesRoundTrip() {
	position := testPosition("AAPL")
	suite.Require().NoError(suite.store.OpenPosition(suite.ctx, position))

	open, err := suite.store.GetOpenPositions(suite.ctx)
	suite.Require().NoError(err)
	suite.Require().Len(open, 1)

	// The persisted snapshot, not a config reference, defines the stack.
	suite.Equal(position.RuleStackUsed.Label(), open[0].RuleStackUsed.Label())

	want, err := position.RuleStackUsed.Snapshot()
	suite.Require().NoError(err)

	got, err := open[0].RuleStackUsed.Snapshot()
	suite.Require().NoError(err)
	suite.Equal(want, got)
}
