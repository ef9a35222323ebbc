package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// RSIThreshold fires where the RSI crosses up through an oversold level,
// marking a recovery out of oversold territory.
type RSIThreshold struct {
	period int
	level  float64
}

// NewRSIThreshold creates an RSI rule with default parameters.
func NewRSIThreshold() Rule {
	return &RSIThreshold{
		period: 14,
		level:  30,
	}
}

// Type returns the implementation key of the rule.
func (r *RSIThreshold) Type() types.RuleType {
	return types.RuleTypeRSIThreshold
}

// MinLookback returns the bars needed for the first RSI value plus one prior
// comparison point.
func (r *RSIThreshold) MinLookback() int {
	return r.period + 2
}

// Config expects parameters: period (int), level (float, 0-100).
func (r *RSIThreshold) Config(params map[string]any) error {
	period, err := intParam(params, "period")
	if err != nil {
		return err
	}

	level, err := floatParam(params, "level")
	if err != nil {
		return err
	}

	if err := positivePeriod("period", period); err != nil {
		return err
	}

	if level <= 0 || level >= 100 {
		return errors.Newf(errors.ErrCodeInvalidParameter,
			"level must be between 0 and 100 exclusive, got %v", level)
	}

	r.period = period
	r.level = level

	return nil
}

// Evaluate computes the firing sequence over the series closes.
func (r *RSIThreshold) Evaluate(series types.PriceSeries) []bool {
	closes := series.Closes()

	rsi, firstValid := relativeStrength(closes, r.period)
	out := make([]bool, len(closes))

	// Fire only on the upward cross, not on every bar above the level.
	for i := firstValid + 1; i < len(rsi); i++ {
		if rsi[i] > r.level && rsi[i-1] <= r.level {
			out[i] = true
		}
	}

	return out
}
