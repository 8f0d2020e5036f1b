package generator

import (
	"fmt"
	"sort"
	"strings"

	"github.com/cellfuzz/txpoolfuzz/config"
	"github.com/cellfuzz/txpoolfuzz/seed"
)

type weightedStrategy struct {
	strategy   Strategy
	cumulative uint64
}

// Plan is a validated config.GenerationPlan with its weight table compiled
// for weighted choice.
type Plan struct {
	config.GenerationPlan

	choices []weightedStrategy
	total   uint64
}

// NewPlan validates cfg and compiles its weights. Unknown strategy names are
// an error so that a typo in a config file cannot silently disable a
// strategy.
func NewPlan(cfg config.GenerationPlan) (*Plan, error) {
	if err := cfg.ValidateBasic(); err != nil {
		return nil, err
	}
	var unknown []string
	for name := range cfg.Weights {
		if !Strategy(name).IsKnown() {
			unknown = append(unknown, name)
		}
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, fmt.Errorf("%w: %s", ErrUnknownStrategy, strings.Join(unknown, ", "))
	}

	p := &Plan{GenerationPlan: cfg}
	for _, s := range Strategies {
		w := cfg.Weights[string(s)]
		if w == 0 {
			continue
		}
		p.total += w
		p.choices = append(p.choices, weightedStrategy{strategy: s, cumulative: p.total})
	}
	return p, nil
}

// Weight returns the weight of s.
func (p *Plan) Weight(s Strategy) uint64 {
	return p.Weights[string(s)]
}

// choose picks a strategy with probability proportional to its weight. It
// consumes exactly one draw.
func (p *Plan) choose(m *seed.Model) Strategy {
	r := m.Uint64n(p.total)
	i := sort.Search(len(p.choices), func(i int) bool {
		return r < p.choices[i].cumulative
	})
	return p.choices[i].strategy
}
