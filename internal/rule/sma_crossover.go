package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// SMACrossover fires where the fast simple moving average crosses above the
// slow one.
type SMACrossover struct {
	fastPeriod int
	slowPeriod int
}

// NewSMACrossover creates a crossover rule with default periods.
func NewSMACrossover() Rule {
	return &SMACrossover{
		fastPeriod: 10,
		slowPeriod: 20,
	}
}

// Type returns the implementation key of the rule.
func (r *SMACrossover) Type() types.RuleType {
	return types.RuleTypeSMACrossover
}

// MinLookback returns the bars needed before the slow average and one prior
// comparison point exist.
func (r *SMACrossover) MinLookback() int {
	return r.slowPeriod + 1
}

// Config expects parameters: fast_period (int), slow_period (int).
func (r *SMACrossover) Config(params map[string]any) error {
	fast, err := intParam(params, "fast_period")
	if err != nil {
		return err
	}

	slow, err := intParam(params, "slow_period")
	if err != nil {
		return err
	}

	if err := positivePeriod("fast_period", fast); err != nil {
		return err
	}

	if err := positivePeriod("slow_period", slow); err != nil {
		return err
	}

	if fast >= slow {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"fast_period (%d) must be smaller than slow_period (%d)", fast, slow)
	}

	r.fastPeriod = fast
	r.slowPeriod = slow

	return nil
}

// Evaluate computes the crossover firing sequence over the series closes.
func (r *SMACrossover) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	fast, _ := rollingMean(closes, r.fastPeriod)
	slow, slowValid := rollingMean(closes, r.slowPeriod)

	return crossAbove(fast, slow, slowValid)
}
