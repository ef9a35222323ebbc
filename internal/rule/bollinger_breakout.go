package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// BollingerBreakout fires where the close crosses above the upper Bollinger
// band.
type BollingerBreakout struct {
	period     int
	multiplier float64
}

// NewBollingerBreakout creates a breakout rule with default parameters.
func NewBollingerBreakout() Rule {
	return &BollingerBreakout{
		period:     20,
		multiplier: 2,
	}
}

// Type returns the implementation key of the rule.
func (r *BollingerBreakout) Type() types.RuleType {
	return types.RuleTypeBollingerBreakout
}

// MinLookback returns the bars needed for the band plus one prior comparison
// point.
func (r *BollingerBreakout) MinLookback() int {
	return r.period + 1
}

// Config expects parameters: period (int), multiplier (float).
func (r *BollingerBreakout) Config(params map[string]any) error {
	period, err := intParam(params, "period")
	if err != nil {
		return err
	}

	multiplier, err := floatParam(params, "multiplier")
	if err != nil {
		return err
	}

	if err := positivePeriod("period", period); err != nil {
		return err
	}

	if multiplier <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"multiplier must be positive, got %v", multiplier)
	}

	r.period = period
	r.multiplier = multiplier

	return nil
}

// Evaluate computes the firing sequence over the series closes.
func (r *BollingerBreakout) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	mean, meanValid := rollingMean(closes, r.period)
	std, _ := rollingStd(closes, r.period)

	upper := make([]float64, len(closes))
	for i := meanValid; i < len(closes); i++ {
		upper[i] = mean[i] + r.multiplier*std[i]
	}

	return crossAbove(closes, upper, meanValid)
}
