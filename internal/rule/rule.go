// Package rule implements the library of entry-condition predicates and the
// registry that resolves configured rule types to implementations.
package rule

import (
	"math"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// Rule is a pure predicate over a price series. Implementations must be
// deterministic and side-effect free. Evaluate returns a boolean sequence
// aligned one-to-one with the series dates; when the series is shorter than
// the declared lookback the result is all-false, never an error.
type Rule interface {
	// Type returns the implementation key the rule registers under.
	Type() types.RuleType
	// MinLookback returns the minimum number of bars the rule needs before
	// its output can be trusted. Every implementation must declare a
	// positive lookback; the registry rejects an undeclared one at
	// registration time.
	MinLookback() int
	// Config applies the named parameters of a RuleDefinition.
	Config(params map[string]any) error
	// Evaluate computes the rule's firing sequence over the series.
	Evaluate(series types.PriceSeries) []bool
}

// intParam extracts a required integer parameter. YAML and JSON decoders
// produce int, int64 or float64 depending on the source, so all three are
// accepted.
func intParam(params map[string]any, key string) (int, error) {
	raw, ok := params[key]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeMissingParameter, "missing required parameter %q", key)
	}

	switch v := raw.(type) {
	case int:
		return v, nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, errors.Newf(errors.ErrCodeInvalidParameter, "parameter %q must be an integer, got %v", key, v)
		}

		return int(v), nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "parameter %q has invalid type %T", key, raw)
	}
}

// floatParam extracts a required float parameter, accepting integer inputs.
func floatParam(params map[string]any, key string) (float64, error) {
	raw, ok := params[key]
	if !ok {
		return 0, errors.Newf(errors.ErrCodeMissingParameter, "missing required parameter %q", key)
	}

	switch v := raw.(type) {
	case float64:
		return v, nil
	case int:
		return float64(v), nil
	case int64:
		return float64(v), nil
	default:
		return 0, errors.Newf(errors.ErrCodeInvalidParameter, "parameter %q has invalid type %T", key, raw)
	}
}

// positivePeriod validates a period parameter.
func positivePeriod(name string, period int) error {
	if period <= 0 {
		return errors.Newf(errors.ErrCodeInvalidParameter, "%s must be a positive integer, got %d", name, period)
	}

	return nil
}
