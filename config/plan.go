package config

import (
	"errors"
	"fmt"
)

// GenerationPlan is the declarative description of what the generator
// produces: how often each strategy is chosen and the distributions the
// strategies draw from. It is read-only for the duration of a run.
type GenerationPlan struct {
	// Relative weight of each strategy. Keys absent from the file keep their
	// default weight; set a weight to 0 to disable a strategy.
	Weights map[string]uint64 `mapstructure:"weights" yaml:"weights"`

	// When the live set is exhausted, fall back to creating cells out of
	// nothing (which the engine must reject) instead of failing generation.
	AllowEmptyFallback bool `mapstructure:"allow_empty_fallback" yaml:"allow_empty_fallback"`

	// Number of inputs and outputs per transaction.
	Inputs  CountRange `mapstructure:"inputs" yaml:"inputs"`
	Outputs CountRange `mapstructure:"outputs" yaml:"outputs"`

	// Fee paid by balanced transactions, in shannons.
	Fee Uint64Range `mapstructure:"fee" yaml:"fee"`

	// Cycles declared by passing scripts.
	Cycles Uint64Range `mapstructure:"cycles" yaml:"cycles"`

	// Upper bound on output data and padding of valid witnesses.
	MaxDataSize    int `mapstructure:"max_data_size" yaml:"max_data_size"`
	MaxWitnessSize int `mapstructure:"max_witness_size" yaml:"max_witness_size"`

	// Probability that a generated transaction gets one witness corrupted.
	CorruptionRate float64 `mapstructure:"corruption_rate" yaml:"corruption_rate"`
	// Probability that an output carries a type script.
	TypeScriptRate float64 `mapstructure:"type_script_rate" yaml:"type_script_rate"`
	// Probability that a script references its code by data hash rather
	// than by type hash.
	DataHashRate float64 `mapstructure:"data_hash_rate" yaml:"data_hash_rate"`
	// Probability that a transaction carries a header dep.
	HeaderDepRate float64 `mapstructure:"header_dep_rate" yaml:"header_dep_rate"`
	// Probability that an input of a valid spend carries a satisfied since.
	SinceRate float64 `mapstructure:"since_rate" yaml:"since_rate"`
	// Probability that a valid spend pays a larger fee than Fee.Max.
	UnderspendRate float64 `mapstructure:"underspend_rate" yaml:"underspend_rate"`

	// Pick inputs with probability proportional to capacity instead of
	// uniformly.
	SizeBiased bool `mapstructure:"size_biased" yaml:"size_biased"`
}

// CountRange bounds a Poisson-distributed count.
type CountRange struct {
	Min  int     `mapstructure:"min" yaml:"min"`
	Max  int     `mapstructure:"max" yaml:"max"`
	Mean float64 `mapstructure:"mean" yaml:"mean"`
}

func (r CountRange) validate(name string, minAllowed int) error {
	if r.Min < minAllowed {
		return fmt.Errorf("%s.min must be at least %d", name, minAllowed)
	}
	if r.Max < r.Min {
		return fmt.Errorf("%s.max (%d) is less than %s.min (%d)", name, r.Max, name, r.Min)
	}
	if r.Mean < float64(r.Min) || r.Mean > float64(r.Max) {
		return fmt.Errorf("%s.mean must lie in [min, max]", name)
	}
	return nil
}

// Uint64Range is an inclusive range drawn from uniformly.
type Uint64Range struct {
	Min uint64 `mapstructure:"min" yaml:"min"`
	Max uint64 `mapstructure:"max" yaml:"max"`
}

func (r Uint64Range) validate(name string) error {
	if r.Max < r.Min {
		return fmt.Errorf("%s.max (%d) is less than %s.min (%d)", name, r.Max, name, r.Min)
	}
	return nil
}

// DefaultGenerationPlan returns a plan dominated by valid spends with every
// adversarial strategy enabled.
func DefaultGenerationPlan() GenerationPlan {
	return GenerationPlan{
		Weights: map[string]uint64{
			"valid_spend":         60,
			"double_spend":        6,
			"unknown_input":       4,
			"unknown_dependency":  4,
			"overspend":           4,
			"oversized_witness":   2,
			"invalid_script_args": 5,
			"cycle_exhaustion":    3,
			"duplicate_input":     3,
			"immature_since":      4,
			"cell_creation":       1,
		},
		AllowEmptyFallback: true,
		Inputs:             CountRange{Min: 1, Max: 6, Mean: 1.5},
		Outputs:            CountRange{Min: 1, Max: 6, Mean: 2},
		Fee:                Uint64Range{Min: 10_000_000, Max: 20_000_000},
		Cycles:             Uint64Range{Min: 1_000, Max: 1_000_000},
		MaxDataSize:        128,
		MaxWitnessSize:     64,
		CorruptionRate:     0.02,
		TypeScriptRate:     0.4,
		DataHashRate:       0.4,
		HeaderDepRate:      0.05,
		SinceRate:          0.05,
		UnderspendRate:     0.1,
		SizeBiased:         false,
	}
}

// ValidateBasic performs basic validation. Strategy names are checked by the
// generator when the plan is compiled.
func (p GenerationPlan) ValidateBasic() error {
	var total uint64
	for name, w := range p.Weights {
		if total+w < total {
			return fmt.Errorf("weights overflow at %q", name)
		}
		total += w
	}
	if total == 0 {
		return errors.New("at least one strategy weight must be positive")
	}
	if err := p.Inputs.validate("inputs", 1); err != nil {
		return err
	}
	if err := p.Outputs.validate("outputs", 1); err != nil {
		return err
	}
	if err := p.Fee.validate("fee"); err != nil {
		return err
	}
	if err := p.Cycles.validate("cycles"); err != nil {
		return err
	}
	if p.MaxDataSize < 0 || p.MaxWitnessSize < 0 {
		return errors.New("max_data_size and max_witness_size can't be negative")
	}
	rates := []struct {
		name string
		v    float64
	}{
		{"corruption_rate", p.CorruptionRate},
		{"type_script_rate", p.TypeScriptRate},
		{"data_hash_rate", p.DataHashRate},
		{"header_dep_rate", p.HeaderDepRate},
		{"since_rate", p.SinceRate},
		{"underspend_rate", p.UnderspendRate},
	}
	for _, r := range rates {
		if r.v < 0 || r.v > 1 {
			return fmt.Errorf("%s must lie in [0, 1], got %v", r.name, r.v)
		}
	}
	return nil
}
