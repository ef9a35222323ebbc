package types

import (
	"encoding/json"

	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// RuleType is the implementation key of a rule, resolved against the rule
// registry at configuration-load time.
type RuleType string

const (
	RuleTypeSMACrossover      RuleType = "sma_crossover"
	RuleTypeEMACrossover      RuleType = "ema_crossover"
	RuleTypeRSIThreshold      RuleType = "rsi_threshold"
	RuleTypeMACDCross         RuleType = "macd_cross"
	RuleTypeBollingerBreakout RuleType = "bollinger_breakout"
	RuleTypeVolumeSurge       RuleType = "volume_surge"
	RuleTypePriceAboveSMA     RuleType = "price_above_sma"
	RuleTypeROCPositive       RuleType = "roc_positive"
)

// RuleDefinition describes one configured rule. Immutable once loaded.
type RuleDefinition struct {
	// Name is the display label used in reports.
	Name string `json:"name" yaml:"name" validate:"required"`
	// Type is the implementation key registered in the rule registry.
	Type RuleType `json:"type" yaml:"type" validate:"required"`
	// Params are the named arguments of the rule implementation.
	Params map[string]any `json:"params,omitempty" yaml:"params,omitempty"`
}

// RuleStack is an ordered baseline-plus-filters combination of rules, ANDed
// into one entry condition. The first element is the mandatory baseline; the
// remainder are optional filter layers.
type RuleStack []RuleDefinition

// Baseline returns the mandatory first rule of the stack.
func (s RuleStack) Baseline() (RuleDefinition, error) {
	if len(s) == 0 {
		return RuleDefinition{}, errors.New(errors.ErrCodeInvalidRuleStack, "rule stack is empty")
	}

	return s[0], nil
}

// Filters returns the optional filter layers after the baseline.
func (s RuleStack) Filters() []RuleDefinition {
	if len(s) <= 1 {
		return nil
	}

	return s[1:]
}

// Validate checks the structural invariants of the stack.
func (s RuleStack) Validate() error {
	if len(s) == 0 {
		return errors.New(errors.ErrCodeInvalidRuleStack, "rule stack must contain a baseline rule")
	}

	for i, def := range s {
		if def.Type == "" {
			return errors.Newf(errors.ErrCodeInvalidRuleStack, "rule %d has no type", i)
		}

		if def.Name == "" {
			return errors.Newf(errors.ErrCodeInvalidRuleStack, "rule %d (%s) has no name", i, def.Type)
		}
	}

	return nil
}

// Snapshot serializes the full stack to canonical JSON. Persisted records
// carry this snapshot rather than a reference to the current configuration,
// so historical rows stay interpretable after configuration changes.
// encoding/json sorts map keys, which keeps the snapshot deterministic.
func (s RuleStack) Snapshot() (string, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return "", errors.Wrap(errors.ErrCodeInvalidRuleStack, "failed to serialize rule stack", err)
	}

	return string(data), nil
}

// RuleStackFromSnapshot deserializes a stack snapshot produced by Snapshot.
func RuleStackFromSnapshot(snapshot string) (RuleStack, error) {
	var stack RuleStack
	if err := json.Unmarshal([]byte(snapshot), &stack); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidRuleStack, "failed to parse rule stack snapshot", err)
	}

	return stack, nil
}

// Label returns a short human-readable identifier for the stack, joining the
// display names of its members.
func (s RuleStack) Label() string {
	label := ""

	for i, def := range s {
		if i > 0 {
			label += " + "
		}

		label += def.Name
	}

	return label
}
