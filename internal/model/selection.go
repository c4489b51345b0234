package model

// PoolSelections records why each candidate pool was chosen.
type PoolSelections struct {
	TopByBaseWithTokenIn            []SubgraphPool `json:"top_by_base_with_token_in"`
	TopByBaseWithTokenOut           []SubgraphPool `json:"top_by_base_with_token_out"`
	TopByDirectSwapPool             []SubgraphPool `json:"top_by_direct_swap_pool"`
	TopByEthQuoteTokenPool          []SubgraphPool `json:"top_by_eth_quote_token_pool"`
	TopByTVL                        []SubgraphPool `json:"top_by_tvl"`
	TopByTVLUsingTokenIn            []SubgraphPool `json:"top_by_tvl_using_token_in"`
	TopByTVLUsingTokenOut           []SubgraphPool `json:"top_by_tvl_using_token_out"`
	TopByTVLUsingTokenInSecondHops  []SubgraphPool `json:"top_by_tvl_using_token_in_second_hops"`
	TopByTVLUsingTokenOutSecondHops []SubgraphPool `json:"top_by_tvl_using_token_out_second_hops"`
}

// SelectionBucket is one named bucket of PoolSelections.
type SelectionBucket struct {
	Name  string
	Pools []SubgraphPool
}

// Buckets lists the selections in union order.
func (s PoolSelections) Buckets() []SelectionBucket {
	return []SelectionBucket{
		{Name: "topByBaseWithTokenIn", Pools: s.TopByBaseWithTokenIn},
		{Name: "topByBaseWithTokenOut", Pools: s.TopByBaseWithTokenOut},
		{Name: "topByDirectSwapPool", Pools: s.TopByDirectSwapPool},
		{Name: "topByEthQuoteTokenPool", Pools: s.TopByEthQuoteTokenPool},
		{Name: "topByTVL", Pools: s.TopByTVL},
		{Name: "topByTVLUsingTokenIn", Pools: s.TopByTVLUsingTokenIn},
		{Name: "topByTVLUsingTokenOut", Pools: s.TopByTVLUsingTokenOut},
		{Name: "topByTVLUsingTokenInSecondHops", Pools: s.TopByTVLUsingTokenInSecondHops},
		{Name: "topByTVLUsingTokenOutSecondHops", Pools: s.TopByTVLUsingTokenOutSecondHops},
	}
}

// CandidatePoolsBySelectionCriteria is the observability record of one
// protocol's candidate selection.
type CandidatePoolsBySelectionCriteria struct {
	Protocol   Protocol       `json:"protocol"`
	Selections PoolSelections `json:"selections"`
}
