// Package trust builds the web-of-trust graph from verified trust proofs and
// computes which identities a verifying party transitively trusts.
package trust

import (
	"errors"
	"fmt"

	"github.com/crev-dev/cargo-crev-sub001/pkg/proof"
)

var ErrInvalidPolicy = errors.New("invalid trust policy")

// Costs prices one traversed edge per trust level. None is never traversable.
type Costs struct {
	High   int `json:"high" yaml:"high"`
	Medium int `json:"medium" yaml:"medium"`
	Low    int `json:"low" yaml:"low"`
}

// Policy bounds how far trust propagates and how strong a review must be.
type Policy struct {
	MaxDepth      int         `json:"max_depth" yaml:"max_depth"`
	Budget        int         `json:"budget" yaml:"budget"`
	Costs         Costs       `json:"costs" yaml:"costs"`
	MinTrustLevel proof.Level `json:"min_trust_level" yaml:"min_trust_level"`
}

// DefaultPolicy is the canonical policy used when the caller supplies none.
func DefaultPolicy() Policy {
	return Policy{
		MaxDepth: 10,
		Budget:   10,
		Costs: Costs{
			High:   0,
			Medium: 1,
			Low:    5,
		},
		MinTrustLevel: proof.Medium,
	}
}

// Cost returns the price of an edge at level l. ok is false for None.
func (p Policy) Cost(l proof.Level) (cost int, ok bool) {
	switch l {
	case proof.High:
		return p.Costs.High, true
	case proof.Medium:
		return p.Costs.Medium, true
	case proof.Low:
		return p.Costs.Low, true
	default:
		return 0, false
	}
}

// Validate rejects policies that could not bound a traversal.
func (p Policy) Validate() error {
	if p.MaxDepth < 0 {
		return fmt.Errorf("%w: max_depth %d is negative", ErrInvalidPolicy, p.MaxDepth)
	}
	if p.Budget < 0 {
		return fmt.Errorf("%w: budget %d is negative", ErrInvalidPolicy, p.Budget)
	}
	for _, c := range []struct {
		name string
		v    int
	}{{"high", p.Costs.High}, {"medium", p.Costs.Medium}, {"low", p.Costs.Low}} {
		if c.v < 0 {
			return fmt.Errorf("%w: %s cost %d is negative", ErrInvalidPolicy, c.name, c.v)
		}
	}
	if p.MinTrustLevel <= proof.None || p.MinTrustLevel > proof.High {
		return fmt.Errorf("%w: min_trust_level must be low, medium or high, got %s", ErrInvalidPolicy, p.MinTrustLevel)
	}
	return nil
}
