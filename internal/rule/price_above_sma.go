package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
)

// PriceAboveSMA is a filter layer that fires where the close sits above its
// simple moving average, confirming the prevailing trend.
type PriceAboveSMA struct {
	period int
}

// NewPriceAboveSMA creates a trend filter with a default period.
func NewPriceAboveSMA() Rule {
	return &PriceAboveSMA{
		period: 50,
	}
}

// Type returns the implementation key of the rule.
func (r *PriceAboveSMA) Type() types.RuleType {
	return types.RuleTypePriceAboveSMA
}

// MinLookback returns the bars needed for the moving average.
func (r *PriceAboveSMA) MinLookback() int {
	return r.period
}

// Config expects parameters: period (int).
func (r *PriceAboveSMA) Config(params map[string]any) error {
	period, err := intParam(params, "period")
	if err != nil {
		return err
	}

	if err := positivePeriod("period", period); err != nil {
		return err
	}

	r.period = period

	return nil
}

// Evaluate computes the firing sequence over the series closes.
func (r *PriceAboveSMA) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	mean, firstValid := rollingMean(closes, r.period)
	out := make([]bool, len(closes))

	for i := firstValid; i < len(closes); i++ {
		out[i] = closes[i] > mean[i]
	}

	return out
}
