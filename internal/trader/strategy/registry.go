package strategy

import (
	"golang-stock-trader/internal/entity"
	"golang-stock-trader/internal/trader/config"
)

// Registry is the closed set of rulesets keyed by stock_type.
type Registry struct {
	strategies map[entity.StrategyType]Strategy
	order      []entity.StrategyType
}

func NewRegistry(strategies ...Strategy) *Registry {
	r := &Registry{strategies: make(map[entity.StrategyType]Strategy, len(strategies))}
	for _, s := range strategies {
		if _, exists := r.strategies[s.GetType()]; !exists {
			r.order = append(r.order, s.GetType())
		}
		r.strategies[s.GetType()] = s
	}
	return r
}

// NewDefaultRegistry registers every built-in ruleset.
func NewDefaultRegistry(cfg config.Strategy) *Registry {
	return NewRegistry(NewBracket(cfg), NewStagedBreakout(cfg))
}

func (r *Registry) Get(t entity.StrategyType) (Strategy, bool) {
	s, ok := r.strategies[t]
	return s, ok
}

// Types lists the registered tags in registration order.
func (r *Registry) Types() []entity.StrategyType {
	out := make([]entity.StrategyType, len(r.order))
	copy(out, r.order)
	return out
}
