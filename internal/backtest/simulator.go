// Package backtest simulates an entry-trigger sequence against a price
// series with a fixed holding-period exit.
package backtest

import (
	"math"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// Simulator turns an entry-trigger sequence into trade records and summary
// statistics. At most one trade is open at a time; every trade is force
// closed exactly holdPeriod trading bars after entry, regardless of
// intervening signals. No stop loss, no take profit, no early exit.
type Simulator struct {
	holdPeriod int
}

// NewSimulator creates a simulator with the given holding period in trading
// bars.
func NewSimulator(holdPeriod int) (*Simulator, error) {
	if holdPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidHoldPeriod,
			"hold period must be positive, got %d", holdPeriod)
	}

	return &Simulator{holdPeriod: holdPeriod}, nil
}

// Result bundles the trades of one simulation with their aggregate stats.
type Result struct {
	Trades []types.TradeRecord
	Stats  types.SummaryStats
}

// Run simulates the entry triggers over the series. Only systemic issues
// (misaligned lengths, non-finite prices) produce an error; numeric
// edge cases such as zero variance degrade to defined defaults instead.
// The series must already be gap-filled to a regular trading calendar.
func (s *Simulator) Run(series types.PriceSeries, entries []bool) (Result, error) {
	if len(entries) != series.Len() {
		return Result{}, errors.Newf(errors.ErrCodeMisalignedSeries,
			"entry triggers (%d) misaligned with series bars (%d) for %s",
			len(entries), series.Len(), series.Instrument)
	}

	if err := series.Validate(); err != nil {
		return Result{}, errors.Wrapf(errors.ErrCodeSimulationFailed, err,
			"series for %s failed validation", series.Instrument)
	}

	var trades []types.TradeRecord

	openIdx := -1

	for i, bar := range series.Bars {
		// Force-close before considering a new entry so the exit bar can
		// host a fresh entry.
		if openIdx >= 0 && i == openIdx+s.holdPeriod {
			entry := series.Bars[openIdx]
			if entry.Close <= 0 {
				return Result{}, errors.Newf(errors.ErrCodeSimulationFailed,
					"non-positive entry price %v on %s for %s",
					entry.Close, entry.Date.Format("2006-01-02"), series.Instrument)
			}

			trades = append(trades, types.TradeRecord{
				EntryDate:  entry.Date,
				EntryPrice: entry.Close,
				ExitDate:   bar.Date,
				ExitPrice:  bar.Close,
				ReturnPct:  bar.Close/entry.Close - 1,
			})
			openIdx = -1
		}

		if entries[i] && openIdx < 0 {
			openIdx = i
		}
	}

	// A trade still open at the end of the window never produced an exit
	// price and is not counted.
	return Result{
		Trades: trades,
		Stats:  Summarize(trades),
	}, nil
}

// HoldPeriod returns the configured holding period in trading bars.
func (s *Simulator) HoldPeriod() int {
	return s.holdPeriod
}

// Summarize aggregates trade records into summary statistics. A zero-trade
// or zero-variance input yields zeroed sentinels rather than an error.
func Summarize(trades []types.TradeRecord) types.SummaryStats {
	if len(trades) == 0 {
		return types.SummaryStats{
			TotalTrades: 0,
			WinPct:      0,
			AvgReturn:   0,
			Sharpe:      0,
		}
	}

	wins := 0
	sum := 0.0

	for _, trade := range trades {
		if trade.ReturnPct > 0 {
			wins++
		}

		sum += trade.ReturnPct
	}

	n := float64(len(trades))
	mean := sum / n

	variance := 0.0
	for _, trade := range trades {
		d := trade.ReturnPct - mean
		variance += d * d
	}

	std := math.Sqrt(variance / n)

	sharpe := 0.0
	if std > 0 {
		sharpe = mean / std
	}

	return types.SummaryStats{
		TotalTrades: len(trades),
		WinPct:      float64(wins) / n,
		AvgReturn:   mean,
		Sharpe:      sharpe,
	}
}
