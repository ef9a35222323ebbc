package optimizer

import (
	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// EnumerateStacks produces every candidate rule stack for one instrument:
// the baseline alone, then the baseline combined with every subset of the
// filter layers, preserving filter order inside each stack. Enumeration
// order is deterministic.
func EnumerateStacks(baseline types.RuleDefinition, filters []types.RuleDefinition) ([]types.RuleStack, error) {
	if baseline.Type == "" {
		return nil, errors.New(errors.ErrCodeInvalidRuleStack, "baseline rule is required")
	}

	total := 1 << len(filters)
	stacks := make([]types.RuleStack, 0, total)

	for mask := 0; mask < total; mask++ {
		stack := types.RuleStack{baseline}

		for bit, filter := range filters {
			if mask&(1<<bit) != 0 {
				stack = append(stack, filter)
			}
		}

		stacks = append(stacks, stack)
	}

	return stacks, nil
}
