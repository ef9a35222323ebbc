package types

import "time"

// TradeRecord is a single simulated trade produced by the backtest simulator.
// Records are never mutated after creation.
type TradeRecord struct {
	// EntryDate is the bar date the trade was opened on.
	EntryDate time.Time `json:"entry_date" yaml:"entry_date"`
	// EntryPrice is the close price on the entry bar.
	EntryPrice float64 `json:"entry_price" yaml:"entry_price"`
	// ExitDate is the bar date of the forced exit.
	ExitDate time.Time `json:"exit_date" yaml:"exit_date"`
	// ExitPrice is the close price on the exit bar.
	ExitPrice float64 `json:"exit_price" yaml:"exit_price"`
	// ReturnPct is (exit_price / entry_price) - 1.
	ReturnPct float64 `json:"return_pct" yaml:"return_pct"`
}

// SummaryStats aggregates the trades of one simulated stack.
type SummaryStats struct {
	// TotalTrades is the count of trades closed within the backtest window.
	TotalTrades int `json:"total_trades" yaml:"total_trades"`
	// WinPct is the fraction of trades with a positive return, in [0, 1].
	WinPct float64 `json:"win_pct" yaml:"win_pct"`
	// AvgReturn is the mean per-trade return.
	AvgReturn float64 `json:"avg_return" yaml:"avg_return"`
	// Sharpe is mean(returns) / std(returns); 0 when undefined.
	Sharpe float64 `json:"sharpe" yaml:"sharpe"`
}
