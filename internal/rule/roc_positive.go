package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
)

// ROCPositive is a filter layer that fires where the rate of change over the
// period exceeds a threshold, confirming momentum behind the entry.
type ROCPositive struct {
	period    int
	threshold float64
}

// NewROCPositive creates a momentum filter with default parameters.
func NewROCPositive() Rule {
	return &ROCPositive{
		period:    10,
		threshold: 0,
	}
}

// Type returns the implementation key of the rule.
func (r *ROCPositive) Type() types.RuleType {
	return types.RuleTypeROCPositive
}

// MinLookback returns the bars needed for the rate-of-change window.
func (r *ROCPositive) MinLookback() int {
	return r.period + 1
}

// Config expects parameters: period (int), threshold (float).
func (r *ROCPositive) Config(params map[string]any) error {
	period, err := intParam(params, "period")
	if err != nil {
		return err
	}

	threshold, err := floatParam(params, "threshold")
	if err != nil {
		return err
	}

	if err := positivePeriod("period", period); err != nil {
		return err
	}

	r.period = period
	r.threshold = threshold

	return nil
}

// Evaluate computes the firing sequence over the series closes.
func (r *ROCPositive) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	roc, firstValid := rateOfChange(closes, r.period)

	return aboveLevel(roc, r.threshold, firstValid)
}
