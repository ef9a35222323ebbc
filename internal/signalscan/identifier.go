// Package signalscan re-evaluates each instrument's active strategy against
// the latest bar to emit BUY/SELL events and drive position transitions.
package signalscan

import (
	"context"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/rxtech-lab/edgefinder/internal/combinator"
	"github.com/rxtech-lab/edgefinder/internal/logger"
	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/store"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// Identifier runs the daily signal scan. Each invocation works in two strict
// phases: first a snapshot read of all OPEN positions, then the mutations.
// Interleaving reads with writes double-counts newly opened positions in the
// "currently open" reporting, so the snapshot is taken exactly once, up front.
type Identifier struct {
	store      store.Store
	registry   rule.Registry
	holdPeriod int
	log        *logger.Logger
}

// NewIdentifier creates a daily signal identifier.
func NewIdentifier(st store.Store, registry rule.Registry, holdPeriod int, log *logger.Logger) (*Identifier, error) {
	if holdPeriod <= 0 {
		return nil, errors.Newf(errors.ErrCodeInvalidHoldPeriod,
			"hold period must be positive, got %d", holdPeriod)
	}

	if log == nil {
		log = logger.NewNopLogger()
	}

	return &Identifier{
		store:      st,
		registry:   registry,
		holdPeriod: holdPeriod,
		log:        log,
	}, nil
}

// SkippedInstrument records an instrument the scan could not act on.
type SkippedInstrument struct {
	Instrument string
	Reason     string
}

// ScanResult is the outcome of one daily scan.
type ScanResult struct {
	// AsOf is the scan date.
	AsOf time.Time
	// Events are the emitted BUY and SELL signals, in emission order.
	Events []types.SignalEvent
	// OpenBefore is the pre-run snapshot of OPEN positions; it is the basis
	// for any "currently open" reporting of this run.
	OpenBefore []types.Position
	// Opened counts positions created during this scan.
	Opened int
	// Closed counts positions transitioned to CLOSED during this scan.
	Closed int
	// Skipped lists instruments the scan could not act on, with reasons.
	Skipped []SkippedInstrument
}

// Scan performs one daily signal identification pass as of the given date.
// Re-running the scan for the same date is idempotent: no duplicate OPEN
// position and no duplicate closing transition is ever produced. Persistence
// failures abort the scan; per-instrument data problems are reported and
// skipped.
func (i *Identifier) Scan(ctx context.Context, asOf time.Time, seriesByInstrument map[string]types.PriceSeries, active map[string]types.RuleStack) (ScanResult, error) {
	result := ScanResult{
		AsOf:       asOf,
		Events:     nil,
		OpenBefore: nil,
		Opened:     0,
		Closed:     0,
		Skipped:    nil,
	}

	// Phase 1: snapshot the pre-run state.
	snapshot, err := i.store.GetOpenPositions(ctx)
	if err != nil {
		return result, err
	}

	result.OpenBefore = snapshot

	openByInstrument := make(map[string]types.Position, len(snapshot))
	for _, position := range snapshot {
		openByInstrument[position.Instrument] = position
	}

	// Phase 2: evaluate entries for instruments with an active strategy.
	instruments := make([]string, 0, len(active))
	for instrument := range active {
		instruments = append(instruments, instrument)
	}

	sort.Strings(instruments)

	for _, instrument := range instruments {
		if err := i.scanEntry(ctx, asOf, instrument, seriesByInstrument, active[instrument], openByInstrument, &result); err != nil {
			return result, err
		}
	}

	// Phase 3: close expired positions from the pre-run snapshot.
	for _, position := range snapshot {
		if err := i.scanExit(ctx, asOf, position, seriesByInstrument, &result); err != nil {
			return result, err
		}
	}

	return result, nil
}

func (i *Identifier) scanEntry(ctx context.Context, asOf time.Time, instrument string, seriesByInstrument map[string]types.PriceSeries, stack types.RuleStack, openByInstrument map[string]types.Position, result *ScanResult) error {
	series, ok := seriesByInstrument[instrument]
	if !ok || series.Len() == 0 {
		result.Skipped = append(result.Skipped, SkippedInstrument{
			Instrument: instrument,
			Reason:     "no price data for scan date",
		})

		return nil
	}

	if _, exists := openByInstrument[instrument]; exists {
		// One active strategy per instrument implies at most one OPEN
		// position; an existing one suppresses new entries.
		return nil
	}

	filled := series.ForwardFillTradingDays()

	last, _ := filled.LastBar()
	if !sameDay(last.Date, asOf) {
		result.Skipped = append(result.Skipped, SkippedInstrument{
			Instrument: instrument,
			Reason:     "latest bar does not match scan date",
		})

		return nil
	}

	trigger, err := combinator.Combine(filled, stack, i.registry)
	if err != nil {
		result.Skipped = append(result.Skipped, SkippedInstrument{
			Instrument: instrument,
			Reason:     err.Error(),
		})

		return nil
	}

	if !trigger[len(trigger)-1] {
		return nil
	}

	position := types.Position{
		ID:             uuid.New().String(),
		Instrument:     instrument,
		EntryDate:      last.Date,
		EntryPrice:     last.Close,
		ExitDate:       nil,
		ExitPrice:      nil,
		Status:         types.PositionStatusOpen,
		RuleStackUsed:  stack,
		FinalReturnPct: nil,
		DaysHeld:       0,
	}

	if err := i.store.OpenPosition(ctx, position); err != nil {
		// A concurrent or repeated scan already opened it; the signal has
		// been acted on, so this is not a failure.
		if errors.HasCode(err, errors.ErrCodeDuplicateOpenPosition) {
			i.log.Info("open position already exists, skipping duplicate entry",
				zap.String("instrument", instrument),
			)

			return nil
		}

		return err
	}

	result.Opened++
	result.Events = append(result.Events, types.SignalEvent{
		Date:       last.Date,
		Instrument: instrument,
		Type:       types.SignalTypeBuy,
		Price:      last.Close,
		Reason:     "entry condition fired: " + stack.Label(),
		RuleStack:  stack,
	})

	i.log.Info("BUY signal",
		zap.String("instrument", instrument),
		zap.Float64("price", last.Close),
		zap.String("stack", stack.Label()),
	)

	return nil
}

func (i *Identifier) scanExit(ctx context.Context, asOf time.Time, position types.Position, seriesByInstrument map[string]types.PriceSeries, result *ScanResult) error {
	series, ok := seriesByInstrument[position.Instrument]
	if !ok || series.Len() == 0 {
		result.Skipped = append(result.Skipped, SkippedInstrument{
			Instrument: position.Instrument,
			Reason:     "no price data to evaluate open position",
		})

		return nil
	}

	filled := series.ForwardFillTradingDays()

	// Holding period is measured in trading bars elapsed since entry.
	if filled.BarsAfter(position.EntryDate) < i.holdPeriod {
		return nil
	}

	last, _ := filled.LastBar()

	finalReturn, err := returnPct(position.EntryPrice, last.Close)
	if err != nil {
		result.Skipped = append(result.Skipped, SkippedInstrument{
			Instrument: position.Instrument,
			Reason:     err.Error(),
		})

		return nil
	}

	daysHeld := int(last.Date.Sub(position.EntryDate).Hours() / 24)

	err = i.store.ClosePosition(ctx, store.PositionClose{
		PositionID:     position.ID,
		ExitDate:       last.Date,
		ExitPrice:      last.Close,
		FinalReturnPct: finalReturn,
		DaysHeld:       daysHeld,
	})
	if err != nil {
		// Already closed by an earlier identical scan; the transition is
		// unidirectional so there is nothing left to do.
		if errors.HasCode(err, errors.ErrCodePositionNotOpen) {
			return nil
		}

		return err
	}

	result.Closed++
	result.Events = append(result.Events, types.SignalEvent{
		Date:       last.Date,
		Instrument: position.Instrument,
		Type:       types.SignalTypeSell,
		Price:      last.Close,
		Reason:     "holding period elapsed",
		RuleStack:  position.RuleStackUsed,
	})

	i.log.Info("SELL signal",
		zap.String("instrument", position.Instrument),
		zap.Float64("price", last.Close),
		zap.Float64("return_pct", finalReturn),
	)

	return nil
}

// returnPct computes (exit / entry) - 1 with decimal arithmetic to avoid
// accumulating float drift in persisted returns.
func returnPct(entry, exit float64) (float64, error) {
	if entry <= 0 {
		return 0, errors.Newf(errors.ErrCodeMalformedSeries, "non-positive entry price %v", entry)
	}

	value := decimal.NewFromFloat(exit).
		Div(decimal.NewFromFloat(entry)).
		Sub(decimal.NewFromInt(1))

	result, _ := value.Float64()

	return result, nil
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()

	return ay == by && am == bm && ad == bd
}
