package rule

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// VolumeSurge is a filter layer that fires where the day's volume exceeds a
// multiple of its rolling average. Typically stacked on top of a baseline to
// demand conviction behind the entry.
type VolumeSurge struct {
	period     int
	multiplier float64
}

// NewVolumeSurge creates a volume filter with default parameters.
func NewVolumeSurge() Rule {
	return &VolumeSurge{
		period:     20,
		multiplier: 1.5,
	}
}

// Type returns the implementation key of the rule.
func (r *VolumeSurge) Type() types.RuleType {
	return types.RuleTypeVolumeSurge
}

// MinLookback returns the bars needed for the rolling average volume.
func (r *VolumeSurge) MinLookback() int {
	return r.period
}

// Config expects parameters: period (int), multiplier (float).
func (r *VolumeSurge) Config(params map[string]any) error {
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

// Evaluate computes the firing sequence over the series volumes.
func (r *VolumeSurge) Evaluate(series types.PriceSeries) []bool {
	volumes := series.Volumes()

	avg, firstValid := rollingMean(volumes, r.period)
	out := make([]bool, len(volumes))

	for i := firstValid; i < len(volumes); i++ {
		out[i] = volumes[i] > r.multiplier*avg[i]
	}

	return out
}
