// Package combinator composes an ordered rule stack into one entry-trigger
// sequence.
package combinator

import (
	"github.com/rxtech-lab/edgefinder/internal/rule"
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// Combine resolves the stack against the registry and computes the composite
// entry condition over the series.
func Combine(series types.PriceSeries, stack types.RuleStack, registry rule.Registry) ([]bool, error) {
	rules, err := registry.CreateStack(stack)
	if err != nil {
		return nil, err
	}

	return CombineRules(series, rules)
}

// CombineRules ANDs the firing sequences of the given rules in order. The
// accumulator is seeded with the first rule's own output and narrowed by each
// subsequent rule. Seeding with a universal-true sequence is deliberately
// avoided: combined with a wrong accumulation order it silently produced zero
// signals system-wide in a previous incarnation of this pipeline. A stack of
// length one passes the baseline's own signal through unchanged.
func CombineRules(series types.PriceSeries, rules []rule.Rule) ([]bool, error) {
	if len(rules) == 0 {
		return nil, errors.New(errors.ErrCodeInvalidRuleStack, "cannot combine an empty rule stack")
	}

	combined := rules[0].Evaluate(series)
	if len(combined) != series.Len() {
		return nil, errors.Newf(errors.ErrCodeRuleEvaluation,
			"rule %s produced %d values for %d bars", rules[0].Type(), len(combined), series.Len())
	}

	for _, member := range rules[1:] {
		layer := member.Evaluate(series)
		if len(layer) != series.Len() {
			return nil, errors.Newf(errors.ErrCodeRuleEvaluation,
				"rule %s produced %d values for %d bars", member.Type(), len(layer), series.Len())
		}

		for i := range combined {
			combined[i] = combined[i] && layer[i]
		}
	}

	return combined, nil
}

// TrueCount returns the number of firing days in a trigger sequence.
func TrueCount(trigger []bool) int {
	count := 0

	for _, fired := range trigger {
		if fired {
			count++
		}
	}

	return count
}
