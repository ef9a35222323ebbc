package types

import "time"

// StrategyResult is one appended row of the strategy history: the outcome of
// evaluating a rule stack for an instrument during one optimizer run.
// Uniquely keyed by (instrument, rule stack snapshot, run timestamp).
type StrategyResult struct {
	// Instrument is the tradable symbol the stack was evaluated for.
	Instrument string `json:"instrument" yaml:"instrument"`
	// RuleStack is the full stack snapshot, not a reference to live config.
	RuleStack RuleStack `json:"rule_stack" yaml:"rule_stack"`
	// RunTimestamp identifies the optimizer run that produced the row.
	RunTimestamp time.Time `json:"run_timestamp" yaml:"run_timestamp"`
	// EdgeScore is the configured weighted sum of win pct and normalized sharpe.
	EdgeScore float64 `json:"edge_score" yaml:"edge_score"`
	// WinPct is the fraction of winning trades, in [0, 1].
	WinPct float64 `json:"win_pct" yaml:"win_pct"`
	// Sharpe is the raw trade-return sharpe ratio.
	Sharpe float64 `json:"sharpe" yaml:"sharpe"`
	// TotalTrades is the closed-trade count behind the statistics.
	TotalTrades int `json:"total_trades" yaml:"total_trades"`
	// AvgReturn is the mean per-trade return.
	AvgReturn float64 `json:"avg_return" yaml:"avg_return"`
}
