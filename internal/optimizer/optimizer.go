// Package optimizer enumerates candidate rule stacks per instrument, runs
// the backtest simulator for each, and selects the best-performing stack by
// edge score subject to data-coverage and minimum-trade guards.
package optimizer

import (
	"math"
	"sort"

	"github.com/rxtech-lab/edgefinder/internal/backtest"
	"github.com/rxtech-lab/edgefinder/internal/combinator"
	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
	"go.uber.org/zap"
)

// Weights are the edge-score weights. Both must be non-negative and sum to 1.
type Weights struct {
	WinPct float64 `json:"win_pct" yaml:"win_pct" validate:"gte=0"`
	Sharpe float64 `json:"sharpe" yaml:"sharpe" validate:"gte=0"`
}

// Validate checks the weight invariants.
func (w Weights) Validate() error {
	if w.WinPct < 0 || w.Sharpe < 0 {
		return errors.Newf(errors.ErrCodeInvalidWeights,
			"edge score weights must be non-negative, got win_pct=%v sharpe=%v", w.WinPct, w.Sharpe)
	}

	if math.Abs(w.WinPct+w.Sharpe-1) > 1e-9 {
		return errors.Newf(errors.ErrCodeInvalidWeights,
			"edge score weights must sum to 1, got %v", w.WinPct+w.Sharpe)
	}

	return nil
}

// Config is the immutable optimizer configuration, passed explicitly through
// the optimizer, simulator and store call chain.
type Config struct {
	// MinTrades discards stacks whose closed-trade count falls below it.
	MinTrades int
	// HoldPeriod is the fixed holding period in trading bars.
	HoldPeriod int
	// Weights are the edge-score weights.
	Weights Weights
	// TopK is how many ranked stacks to retain per instrument (minimum 1).
	TopK int
	// Workers bounds the per-instrument worker pool (minimum 1).
	Workers int
	// ShowProgress renders a progress bar on stderr during OptimizeAll.
	ShowProgress bool
}

// Validate checks the configuration invariants.
func (c Config) Validate() error {
	if c.MinTrades < 0 {
		return errors.Newf(errors.ErrCodeInvalidThreshold,
			"min trades threshold must be >= 0, got %d", c.MinTrades)
	}

	if c.HoldPeriod <= 0 {
		return errors.Newf(errors.ErrCodeInvalidHoldPeriod,
			"hold period must be positive, got %d", c.HoldPeriod)
	}

	return c.Weights.Validate()
}

// Candidate is one evaluated rule stack with its simulation outcome.
type Candidate struct {
	Stack     types.RuleStack
	Stats     types.SummaryStats
	EdgeScore float64
	Trades    []types.TradeRecord
}

// SkippedStack records one stack excluded from the surviving set, with a
// structured reason. Skips are reported, never silently dropped.
type SkippedStack struct {
	Stack  types.RuleStack
	Code   errors.ErrorCode
	Reason string
}

// InstrumentReport is the outcome of optimizing one instrument. An empty
// Selected slice is a normal, reportable outcome, not an error.
type InstrumentReport struct {
	Instrument string
	// Selected holds the surviving candidates ranked best-first, at most TopK.
	Selected []Candidate
	// Evaluated is the number of candidate stacks enumerated.
	Evaluated int
	// Skipped lists every excluded stack with its reason.
	Skipped []SkippedStack
	// Err is set when the whole instrument failed (for example malformed
	// price history) and no stack was evaluated.
	Err error
}

// Active returns the top-ranked surviving stack, if any.
func (r InstrumentReport) Active() (Candidate, bool) {
	if len(r.Selected) == 0 {
		return Candidate{}, false
	}

	return r.Selected[0], true
}

// Optimizer runs the candidate enumeration and selection for instruments.
type Optimizer struct {
	registry rule.Registry
	config   Config
	log      *logger.Logger
}

// NewOptimizer creates an optimizer. The configuration is validated eagerly
// so an invalid weight or threshold aborts before any backtest work.
func NewOptimizer(registry rule.Registry, config Config, log *logger.Logger) (*Optimizer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	if config.TopK <= 0 {
		config.TopK = 1
	}

	if config.Workers <= 0 {
		config.Workers = 1
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Optimizer{
		registry: registry,
		config:   config,
		log:      log,
	}, nil
}

// OptimizeInstrument evaluates every candidate stack for one instrument and
// ranks the survivors. Per-stack failures are recorded as skips; only a
// malformed series fails the whole instrument.
func (o *Optimizer) OptimizeInstrument(series types.PriceSeries, stacks []types.RuleStack) InstrumentReport {
	report := InstrumentReport{
		Instrument: series.Instrument,
		Selected:   nil,
		Evaluated:  len(stacks),
		Skipped:    nil,
		Err:        nil,
	}

	if err := series.Validate(); err != nil {
		report.Err = err

		return report
	}

	// Gap-fill before any windowed computation; missing calendar days would
	// silently poison the rolling indicators.
	filled := series.ForwardFillTradingDays()

	simulator, err := backtest.NewSimulator(o.config.HoldPeriod)
	if err != nil {
		report.Err = err

		return report
	}

	var candidates []Candidate

	for _, stack := range stacks {
		candidate, skip := o.evaluateStack(filled, stack, simulator)
		if skip != nil {
			report.Skipped = append(report.Skipped, *skip)

			continue
		}

		candidates = append(candidates, candidate)
	}

	rankCandidates(candidates)

	if len(candidates) > o.config.TopK {
		candidates = candidates[:o.config.TopK]
	}

	report.Selected = candidates

	return report
}

func (o *Optimizer) evaluateStack(series types.PriceSeries, stack types.RuleStack, simulator *backtest.Simulator) (Candidate, *SkippedStack) {
	lookback, err := o.registry.StackLookback(stack)
	if err != nil {
		return Candidate{}, &SkippedStack{Stack: stack, Code: errors.GetCode(err), Reason: err.Error()}
	}

	// Data-coverage check: a series shorter than the stack's declared
	// lookback cannot produce trustworthy results.
	if series.Len() < lookback {
		skip := errors.Newf(errors.ErrCodeCoverageCheck,
			"series has %d bars, stack %q requires %d", series.Len(), stack.Label(), lookback)

		o.log.Warn("stack excluded by data-coverage check",
			zap.String("instrument", series.Instrument),
			zap.String("stack", stack.Label()),
			zap.Int("bars", series.Len()),
			zap.Int("lookback", lookback),
		)

		return Candidate{}, &SkippedStack{Stack: stack, Code: errors.ErrCodeCoverageCheck, Reason: skip.Message}
	}

	trigger, err := combinator.Combine(series, stack, o.registry)
	if err != nil {
		return Candidate{}, &SkippedStack{Stack: stack, Code: errors.GetCode(err), Reason: err.Error()}
	}

	result, err := simulator.Run(series, trigger)
	if err != nil {
		return Candidate{}, &SkippedStack{Stack: stack, Code: errors.GetCode(err), Reason: err.Error()}
	}

	// A stack that never trades carries no information, regardless of the
	// configured threshold.
	if result.Stats.TotalTrades == 0 {
		return Candidate{}, &SkippedStack{
			Stack:  stack,
			Code:   errors.ErrCodeZeroTrades,
			Reason: "stack produced no closed trades",
		}
	}

	if result.Stats.TotalTrades < o.config.MinTrades {
		return Candidate{}, &SkippedStack{
			Stack: stack,
			Code:  errors.ErrCodeBelowMinTrades,
			Reason: errors.Newf(errors.ErrCodeBelowMinTrades,
				"%d trades below minimum %d", result.Stats.TotalTrades, o.config.MinTrades).Message,
		}
	}

	return Candidate{
		Stack:     stack,
		Stats:     result.Stats,
		EdgeScore: EdgeScore(result.Stats, o.config.Weights),
		Trades:    result.Trades,
	}, nil
}

// EdgeScore computes the configured weighted sum of win percentage and
// normalized sharpe.
func EdgeScore(stats types.SummaryStats, weights Weights) float64 {
	return weights.WinPct*stats.WinPct + weights.Sharpe*NormalizeSharpe(stats.Sharpe)
}

// NormalizeSharpe maps a raw trade-return sharpe onto [0, 1] so the two edge
// score terms share a scale. A sharpe of -1 or worse maps to 0, +1 or better
// to 1.
func NormalizeSharpe(sharpe float64) float64 {
	normalized := (sharpe + 1) / 2

	return math.Max(0, math.Min(1, normalized))
}

// rankCandidates orders candidates by edge score descending, tie-broken by
// higher trade count, then higher sharpe, then the stack snapshot for a
// stable deterministic order.
func rankCandidates(candidates []Candidate) {
	sort.SliceStable(candidates, func(i, j int) bool {
		a, b := candidates[i], candidates[j]

		if a.EdgeScore != b.EdgeScore {
			return a.EdgeScore > b.EdgeScore
		}

		if a.Stats.TotalTrades != b.Stats.TotalTrades {
			return a.Stats.TotalTrades > b.Stats.TotalTrades
		}

		if a.Stats.Sharpe != b.Stats.Sharpe {
			return a.Stats.Sharpe > b.Stats.Sharpe
		}

		aSnap, _ := a.Stack.Snapshot()
		bSnap, _ := b.Stack.Snapshot()

		return aSnap < bSnap
	})
}
