package router

import (
	"errors"
	"fmt"

	"swaprouter/internal/candidates"
	"swaprouter/internal/chain"
	"swaprouter/internal/model"
)

// ErrConfiguration marks a request that can never succeed as configured.
var ErrConfiguration = errors.New("invalid routing configuration")

// RoutingConfig tunes one routing call. Zero scalar fields and nil
// selection limits take the chain default.
type RoutingConfig struct {
	BlockNumber         uint64        `mapstructure:"block_number" json:"block_number,omitempty"`
	V3PoolSelection     PoolSelection `mapstructure:"v3_pool_selection" json:"v3_pool_selection"`
	V2PoolSelection     PoolSelection `mapstructure:"v2_pool_selection" json:"v2_pool_selection"`
	MaxSwapsPerPath     int           `mapstructure:"max_swaps_per_path" json:"max_swaps_per_path"`
	MinSplits           int           `mapstructure:"min_splits" json:"min_splits"`
	MaxSplits           int           `mapstructure:"max_splits" json:"max_splits"`
	DistributionPercent int           `mapstructure:"distribution_percent" json:"distribution_percent"`
	ForceCrossProtocol  bool          `mapstructure:"force_cross_protocol" json:"force_cross_protocol"`
	// Protocols restricts the passes. Empty means every protocol the chain
	// supports.
	Protocols []model.Protocol `mapstructure:"protocols" json:"protocols,omitempty"`
}

// PoolSelection sets the candidate bucket limits of one protocol. A nil
// field keeps the default and zero disables the bucket.
type PoolSelection struct {
	TopN                  *int `mapstructure:"top_n" json:"top_n,omitempty"`
	TopNDirectSwaps       *int `mapstructure:"top_n_direct_swaps" json:"top_n_direct_swaps,omitempty"`
	TopNTokenInOut        *int `mapstructure:"top_n_token_in_out" json:"top_n_token_in_out,omitempty"`
	TopNSecondHop         *int `mapstructure:"top_n_second_hop" json:"top_n_second_hop,omitempty"`
	TopNWithEachBaseToken *int `mapstructure:"top_n_with_each_base_token" json:"top_n_with_each_base_token,omitempty"`
	TopNWithBaseToken     *int `mapstructure:"top_n_with_base_token" json:"top_n_with_base_token,omitempty"`
}

// SelectionField names one limit of a PoolSelection. Key is the
// config/flag suffix, Param the query parameter suffix.
type SelectionField struct {
	Key   string
	Param string
	Value **int
}

// Fields lists p's limits for binding from flags, config and queries.
func (p *PoolSelection) Fields() []SelectionField {
	return []SelectionField{
		{Key: "top-n", Param: "TopN", Value: &p.TopN},
		{Key: "top-n-direct-swaps", Param: "TopNDirectSwaps", Value: &p.TopNDirectSwaps},
		{Key: "top-n-token-in-out", Param: "TopNTokenInOut", Value: &p.TopNTokenInOut},
		{Key: "top-n-second-hop", Param: "TopNSecondHop", Value: &p.TopNSecondHop},
		{Key: "top-n-with-each-base-token", Param: "TopNWithEachBaseToken", Value: &p.TopNWithEachBaseToken},
		{Key: "top-n-with-base-token", Param: "TopNWithBaseToken", Value: &p.TopNWithBaseToken},
	}
}

// NewPoolSelection sets every limit from l.
func NewPoolSelection(l candidates.PoolSelectionLimits) PoolSelection {
	return PoolSelection{
		TopN:                  intPtr(l.TopN),
		TopNDirectSwaps:       intPtr(l.TopNDirectSwaps),
		TopNTokenInOut:        intPtr(l.TopNTokenInOut),
		TopNSecondHop:         intPtr(l.TopNSecondHop),
		TopNWithEachBaseToken: intPtr(l.TopNWithEachBaseToken),
		TopNWithBaseToken:     intPtr(l.TopNWithBaseToken),
	}
}

// Limits resolves p. Unset limits are zero.
func (p PoolSelection) Limits() candidates.PoolSelectionLimits {
	return candidates.PoolSelectionLimits{
		TopN:                  intValue(p.TopN),
		TopNDirectSwaps:       intValue(p.TopNDirectSwaps),
		TopNTokenInOut:        intValue(p.TopNTokenInOut),
		TopNSecondHop:         intValue(p.TopNSecondHop),
		TopNWithEachBaseToken: intValue(p.TopNWithEachBaseToken),
		TopNWithBaseToken:     intValue(p.TopNWithBaseToken),
	}
}

func (p PoolSelection) merge(override PoolSelection) PoolSelection {
	out := p
	overrides := override.Fields()
	for i, field := range out.Fields() {
		if set := *overrides[i].Value; set != nil {
			*field.Value = intPtr(*set)
		}
	}
	return out
}

func (p PoolSelection) validate(protocol model.Protocol) error {
	for _, field := range p.Fields() {
		if value := *field.Value; value != nil && *value < 0 {
			return fmt.Errorf("%w: %s %s must not be negative", ErrConfiguration, protocol, field.Key)
		}
	}
	return nil
}

func intPtr(v int) *int { return &v }

func intValue(v *int) int {
	if v == nil {
		return 0
	}
	return *v
}

// DefaultRoutingConfig returns the defaults for params' chain.
func DefaultRoutingConfig(params chain.Params) RoutingConfig {
	return RoutingConfig{
		V3PoolSelection: NewPoolSelection(candidates.PoolSelectionLimits{
			TopN:                  2,
			TopNDirectSwaps:       2,
			TopNTokenInOut:        3,
			TopNSecondHop:         1,
			TopNWithEachBaseToken: 3,
			TopNWithBaseToken:     5,
		}),
		V2PoolSelection: NewPoolSelection(candidates.PoolSelectionLimits{
			TopN:                  3,
			TopNDirectSwaps:       1,
			TopNTokenInOut:        5,
			TopNSecondHop:         2,
			TopNWithEachBaseToken: 2,
			TopNWithBaseToken:     6,
		}),
		MaxSwapsPerPath:     3,
		MinSplits:           1,
		MaxSplits:           7,
		DistributionPercent: 5,
		Protocols:           append([]model.Protocol(nil), params.Protocols...),
	}
}

// Merge overlays the non-zero fields and the set selection limits of
// override on c.
func (c RoutingConfig) Merge(override *RoutingConfig) RoutingConfig {
	if override == nil {
		return c
	}
	out := c
	if override.BlockNumber != 0 {
		out.BlockNumber = override.BlockNumber
	}
	out.V3PoolSelection = c.V3PoolSelection.merge(override.V3PoolSelection)
	out.V2PoolSelection = c.V2PoolSelection.merge(override.V2PoolSelection)
	if override.MaxSwapsPerPath != 0 {
		out.MaxSwapsPerPath = override.MaxSwapsPerPath
	}
	if override.MinSplits != 0 {
		out.MinSplits = override.MinSplits
	}
	if override.MaxSplits != 0 {
		out.MaxSplits = override.MaxSplits
	}
	if override.DistributionPercent != 0 {
		out.DistributionPercent = override.DistributionPercent
	}
	if override.ForceCrossProtocol {
		out.ForceCrossProtocol = true
	}
	if len(override.Protocols) > 0 {
		out.Protocols = append([]model.Protocol(nil), override.Protocols...)
	}
	return out
}

// Validate rejects configurations no search can satisfy.
func (c RoutingConfig) Validate(params chain.Params) error {
	switch {
	case c.DistributionPercent <= 0 || c.DistributionPercent > 100 || 100%c.DistributionPercent != 0:
		return fmt.Errorf("%w: distribution percent %d must divide 100", ErrConfiguration, c.DistributionPercent)
	case c.MaxSwapsPerPath <= 0:
		return fmt.Errorf("%w: max swaps per path must be positive", ErrConfiguration)
	case c.MinSplits <= 0 || c.MaxSplits < c.MinSplits:
		return fmt.Errorf("%w: splits must satisfy 1 <= min (%d) <= max (%d)", ErrConfiguration, c.MinSplits, c.MaxSplits)
	case c.MinSplits > 100/c.DistributionPercent:
		return fmt.Errorf("%w: min splits %d exceeds %d distribution steps", ErrConfiguration, c.MinSplits, 100/c.DistributionPercent)
	}
	if err := c.V3PoolSelection.validate(model.ProtocolV3); err != nil {
		return err
	}
	if err := c.V2PoolSelection.validate(model.ProtocolV2); err != nil {
		return err
	}
	for _, protocol := range c.Protocols {
		if !params.Supports(protocol) {
			return fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedChain, protocol, params.Name)
		}
	}
	if c.ForceCrossProtocol && len(c.activeProtocols(params)) < 2 {
		return fmt.Errorf("%w: cross-protocol routing needs two protocols", ErrConfiguration)
	}
	return nil
}

func (c RoutingConfig) activeProtocols(params chain.Params) []model.Protocol {
	if len(c.Protocols) == 0 {
		return params.Protocols
	}
	return c.Protocols
}

func (c RoutingConfig) limits(protocol model.Protocol) candidates.PoolSelectionLimits {
	if protocol == model.ProtocolV2 {
		return c.V2PoolSelection.Limits()
	}
	return c.V3PoolSelection.Limits()
}
