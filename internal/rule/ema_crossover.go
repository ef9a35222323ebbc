package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// EMACrossover fires where the fast exponential moving average crosses above
// the slow one.
type EMACrossover struct {
	fastPeriod int
	slowPeriod int
}

// NewEMACrossover creates a crossover rule with default periods.
func NewEMACrossover() Rule {
	return &EMACrossover{
		fastPeriod: 12,
		slowPeriod: 26,
	}
}

// Type returns the implementation key of the rule.
func (r *EMACrossover) Type() types.RuleType {
	return types.RuleTypeEMACrossover
}

// MinLookback returns the bars needed for the slow average plus one prior
// comparison point.
func (r *EMACrossover) MinLookback() int {
	return r.slowPeriod + 1
}

// Config expects parameters: fast_period (int), slow_period (int).
func (r *EMACrossover) Config(params map[string]any) error {
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
func (r *EMACrossover) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	fast, _ := exponentialMean(closes, r.fastPeriod)
	slow, slowValid := exponentialMean(closes, r.slowPeriod)

	return crossAbove(fast, slow, slowValid)
}
