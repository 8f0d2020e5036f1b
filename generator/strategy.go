package generator

// Strategy names one way of producing a candidate. Strategy names are the
// keys of the plan's weight table.
type Strategy string

const (
	StrategyValidSpend        Strategy = "valid_spend"
	StrategyDoubleSpend       Strategy = "double_spend"
	StrategyUnknownInput      Strategy = "unknown_input"
	StrategyUnknownDependency Strategy = "unknown_dependency"
	StrategyOverspend         Strategy = "overspend"
	StrategyOversizedWitness  Strategy = "oversized_witness"
	StrategyInvalidScriptArgs Strategy = "invalid_script_args"
	StrategyCycleExhaustion   Strategy = "cycle_exhaustion"
	StrategyDuplicateInput    Strategy = "duplicate_input"
	StrategyImmatureSince     Strategy = "immature_since"
	StrategyCellCreation      Strategy = "cell_creation"
)

// Strategies lists every strategy in the order the weighted choice walks
// them. The order is part of the replay contract: changing it changes which
// strategy a given draw selects.
var Strategies = []Strategy{
	StrategyValidSpend,
	StrategyDoubleSpend,
	StrategyUnknownInput,
	StrategyUnknownDependency,
	StrategyOverspend,
	StrategyOversizedWitness,
	StrategyInvalidScriptArgs,
	StrategyCycleExhaustion,
	StrategyDuplicateInput,
	StrategyImmatureSince,
	StrategyCellCreation,
}

func (s Strategy) String() string { return string(s) }

// IsKnown reports whether s is one of Strategies.
func (s Strategy) IsKnown() bool {
	for _, k := range Strategies {
		if k == s {
			return true
		}
	}
	return false
}
