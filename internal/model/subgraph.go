package model

// SubgraphPool is a ranking summary of a pool. It is never used for pricing.
// TVLUSD ranks V3 pools, Reserve (in native currency) ranks V2 pairs.
type SubgraphPool struct {
	Protocol  Protocol `json:"protocol"`
	ID        string   `json:"id"`
	Token0    string   `json:"token0"`
	Token1    string   `json:"token1"`
	FeeTier   string   `json:"fee_tier,omitempty"`
	Liquidity string   `json:"liquidity,omitempty"`
	TVLETH    float64  `json:"tvl_eth,omitempty"`
	TVLUSD    float64  `json:"tvl_usd,omitempty"`
	Supply    float64  `json:"supply,omitempty"`
	Reserve   float64  `json:"reserve,omitempty"`
}

// Rank is the liquidity proxy used to order pools.
func (p SubgraphPool) Rank() float64 {
	if p.Protocol == ProtocolV2 {
		return p.Reserve
	}
	return p.TVLUSD
}

// Normalize lower-cases the pool and token identifiers.
func (p SubgraphPool) Normalize() SubgraphPool {
	p.ID = NormalizeID(p.ID)
	p.Token0 = NormalizeID(p.Token0)
	p.Token1 = NormalizeID(p.Token1)
	return p
}

// Pairs reports whether the pool connects a and b in either order.
func (p SubgraphPool) Pairs(a, b string) bool {
	return (p.Token0 == a && p.Token1 == b) || (p.Token0 == b && p.Token1 == a)
}

// Touches reports whether token is one side of the pool.
func (p SubgraphPool) Touches(token string) bool {
	return p.Token0 == token || p.Token1 == token
}

// Other returns the side of the pool that is not token.
func (p SubgraphPool) Other(token string) string {
	if p.Token0 == token {
		return p.Token1
	}
	return p.Token0
}
