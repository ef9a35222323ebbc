package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// MACDCross fires where the MACD line crosses above its signal line.
type MACDCross struct {
	fastPeriod   int
	slowPeriod   int
	signalPeriod int
}

// NewMACDCross creates a MACD rule with the conventional 12/26/9 parameters.
func NewMACDCross() Rule {
	return &MACDCross{
		fastPeriod:   12,
		slowPeriod:   26,
		signalPeriod: 9,
	}
}

// Type returns the implementation key of the rule.
func (r *MACDCross) Type() types.RuleType {
	return types.RuleTypeMACDCross
}

// MinLookback returns the bars needed for the signal line plus one prior
// comparison point.
func (r *MACDCross) MinLookback() int {
	return r.slowPeriod + r.signalPeriod + 1
}

// Config expects parameters: fast_period, slow_period, signal_period (ints).
func (r *MACDCross) Config(params map[string]any) error {
	fast, err := intParam(params, "fast_period")
	if err != nil {
		return err
	}

	slow, err := intParam(params, "slow_period")
	if err != nil {
		return err
	}

	signal, err := intParam(params, "signal_period")
	if err != nil {
		return err
	}

	for name, period := range map[string]int{
		"fast_period":   fast,
		"slow_period":   slow,
		"signal_period": signal,
	} {
		if err := positivePeriod(name, period); err != nil {
			return err
		}
	}

	if fast >= slow {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"fast_period (%d) must be smaller than slow_period (%d)", fast, slow)
	}

	r.fastPeriod = fast
	r.slowPeriod = slow
	r.signalPeriod = signal

	return nil
}

// Evaluate computes the firing sequence over the series closes.
func (r *MACDCross) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	fast, _ := exponentialMean(closes, r.fastPeriod)
	slow, slowValid := exponentialMean(closes, r.slowPeriod)

	if slowValid >= len(closes) {
		return make([]bool, len(closes))
	}

	macd := make([]float64, len(closes))
	for i := slowValid; i < len(closes); i++ {
		macd[i] = fast[i] - slow[i]
	}

	// The signal line is an EMA of the MACD line, valid only once
	// signalPeriod MACD values exist.
	signal, signalValid := exponentialMean(macd[slowValid:], r.signalPeriod)

	aligned := make([]float64, len(closes))
	copy(aligned[slowValid:], signal)

	return crossAbove(macd, aligned, slowValid+signalValid)
}
