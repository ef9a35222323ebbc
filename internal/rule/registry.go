package rule

import (
	"sort"
	"sync"

	"github.com/rxtech-lab/edgefinder/internal/types"
	"github.com/rxtech-lab/edgefinder/pkg/errors"
)

// Factory builds a fresh rule instance with default parameters.
type Factory func() Rule

// Registry resolves configured rule types to implementations. Unknown types
// fail at configuration-load time rather than at evaluation time.
type Registry interface {
	Register(factory Factory) error
	Create(def types.RuleDefinition) (Rule, error)
	CreateStack(stack types.RuleStack) ([]Rule, error)
	StackLookback(stack types.RuleStack) (int, error)
	ListTypes() []types.RuleType
}

// RegistryV1 is the default Registry implementation.
type RegistryV1 struct {
	factories map[types.RuleType]Factory
	mu        sync.RWMutex
}

// NewRegistry creates an empty rule registry.
func NewRegistry() Registry {
	return &RegistryV1{
		factories: make(map[types.RuleType]Factory),
		mu:        sync.RWMutex{},
	}
}

// NewDefaultRegistry creates a registry with every built-in rule registered.
func NewDefaultRegistry() Registry {
	registry := NewRegistry()

	for _, factory := range []Factory{
		NewSMACrossover,
		NewEMACrossover,
		NewRSIThreshold,
		NewMACDCross,
		NewBollingerBreakout,
		NewVolumeSurge,
		NewPriceAboveSMA,
		NewROCPositive,
	} {
		// Built-in factories are known good; Register only fails on a
		// duplicate type or an undeclared lookback.
		if err := registry.Register(factory); err != nil {
			panic(err)
		}
	}

	return registry
}

// Register adds a rule factory to the registry. A probe instance is built to
// verify the implementation declares a positive minimum lookback; a rule with
// no declared requirement must never silently pass the data-coverage check.
func (r *RegistryV1) Register(factory Factory) error {
	probe := factory()
	name := probe.Type()

	if probe.MinLookback() <= 0 {
		return errors.Newf(errors.ErrCodeLookbackUndeclared,
			"rule type %s declares no minimum lookback", name)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[name]; exists {
		return errors.Newf(errors.ErrCodeRuleAlreadyRegistered,
			"rule type %s already registered", name)
	}

	r.factories[name] = factory

	return nil
}

// Create instantiates and configures a rule from its definition. A definition
// without params keeps the implementation's defaults.
func (r *RegistryV1) Create(def types.RuleDefinition) (Rule, error) {
	r.mu.RLock()
	factory, exists := r.factories[def.Type]
	r.mu.RUnlock()

	if !exists {
		return nil, errors.Newf(errors.ErrCodeUnknownRuleType,
			"unknown rule type %s (rule %q)", def.Type, def.Name)
	}

	instance := factory()

	if def.Params != nil {
		if err := instance.Config(def.Params); err != nil {
			return nil, errors.Wrapf(errors.ErrCodeInvalidParameter, err,
				"failed to configure rule %q (%s)", def.Name, def.Type)
		}
	}

	if instance.MinLookback() <= 0 {
		return nil, errors.Newf(errors.ErrCodeLookbackUndeclared,
			"rule %q (%s) declares no minimum lookback after configuration", def.Name, def.Type)
	}

	return instance, nil
}

// CreateStack instantiates every member of a stack in order.
func (r *RegistryV1) CreateStack(stack types.RuleStack) ([]Rule, error) {
	if err := stack.Validate(); err != nil {
		return nil, err
	}

	rules := make([]Rule, 0, len(stack))

	for _, def := range stack {
		instance, err := r.Create(def)
		if err != nil {
			return nil, err
		}

		rules = append(rules, instance)
	}

	return rules, nil
}

// StackLookback returns the largest declared lookback across the stack's
// members. The optimizer uses it to validate data coverage before trusting
// any simulated result.
func (r *RegistryV1) StackLookback(stack types.RuleStack) (int, error) {
	rules, err := r.CreateStack(stack)
	if err != nil {
		return 0, err
	}

	lookback := 0
	for _, instance := range rules {
		if l := instance.MinLookback(); l > lookback {
			lookback = l
		}
	}

	return lookback, nil
}

// ListTypes returns the registered rule types in sorted order.
func (r *RegistryV1) ListTypes() []types.RuleType {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]types.RuleType, 0, len(r.factories))
	for name := range r.factories {
		names = append(names, name)
	}

	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })

	return names
}
