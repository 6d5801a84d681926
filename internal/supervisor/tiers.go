package supervisor

import (
	"fmt"
	"sort"

	"github.com/bridgetrainer/playengine/internal/domain"
	"github.com/bridgetrainer/playengine/internal/runner"
)

// Tiers is the static fallback chain: one descriptor per tier, strongest
// first. It is immutable after construction and safe for concurrent use.
type Tiers struct {
	chain []runner.Descriptor
}

// NewTiers validates descs and orders them by descending tier.
func NewTiers(descs []runner.Descriptor) (*Tiers, error) {
	if len(descs) == 0 {
		return nil, domain.WrapEngineError(domain.ErrConfigInvalid.Code, "no tiers configured", nil)
	}
	seen := make(map[domain.Tier]bool, len(descs))
	chain := make([]runner.Descriptor, 0, len(descs))
	for _, d := range descs {
		if d.Tier < 0 {
			return nil, domain.WrapEngineError(domain.ErrConfigInvalid.Code, fmt.Sprintf("tier %d is reserved", d.Tier), nil)
		}
		if seen[d.Tier] {
			return nil, domain.WrapEngineError(domain.ErrConfigInvalid.Code, "duplicate tier "+d.Tier.String(), nil)
		}
		if d.Engine == "" {
			return nil, domain.WrapEngineError(domain.ErrConfigInvalid.Code, "tier "+d.Tier.String()+" has no engine", nil)
		}
		seen[d.Tier] = true
		chain = append(chain, d)
	}
	sort.Slice(chain, func(i, j int) bool { return chain[i].Tier > chain[j].Tier })
	return &Tiers{chain: chain}, nil
}

// From returns the chain starting at tier and continuing through every lower
// registered tier. Returns ErrTierNotRegistered if tier itself is absent.
func (t *Tiers) From(tier domain.Tier) ([]runner.Descriptor, error) {
	for i, d := range t.chain {
		if d.Tier == tier {
			return append([]runner.Descriptor(nil), t.chain[i:]...), nil
		}
	}
	return nil, domain.WrapEngineError(domain.ErrTierNotRegistered.Code,
		domain.ErrTierNotRegistered.Message+": "+tier.String(), nil)
}

// List returns a copy of the full chain, strongest first.
func (t *Tiers) List() []runner.Descriptor {
	return append([]runner.Descriptor(nil), t.chain...)
}

// Bottom returns the weakest configured tier.
func (t *Tiers) Bottom() runner.Descriptor {
	return t.chain[len(t.chain)-1]
}
