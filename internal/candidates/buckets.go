package candidates

import (
	"sort"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

// PoolSelectionLimits caps each selection bucket.
type PoolSelectionLimits struct {
	TopN                  int `mapstructure:"top_n" json:"top_n"`
	TopNDirectSwaps       int `mapstructure:"top_n_direct_swaps" json:"top_n_direct_swaps"`
	TopNTokenInOut        int `mapstructure:"top_n_token_in_out" json:"top_n_token_in_out"`
	TopNSecondHop         int `mapstructure:"top_n_second_hop" json:"top_n_second_hop"`
	TopNWithEachBaseToken int `mapstructure:"top_n_with_each_base_token" json:"top_n_with_each_base_token"`
	TopNWithBaseToken     int `mapstructure:"top_n_with_base_token" json:"top_n_with_base_token"`
}

// syntheticLiquidity ranks placeholder direct-swap pools.
const syntheticLiquidity = 10000

// MaxCandidates bounds the size of a selection. The base-token, token
// in/out and second-hop limits apply per side, so each counts twice, and
// the native quote pool adds one. Synthetic V3 direct swaps cover every
// fee tier, so the direct bucket may exceed TopNDirectSwaps.
func (l PoolSelectionLimits) MaxCandidates(protocol model.Protocol) int {
	direct := l.TopNDirectSwaps
	if protocol == model.ProtocolV3 && direct > 0 && direct < len(model.FeeAmounts) {
		direct = len(model.FeeAmounts)
	}
	return 2*l.TopNWithBaseToken + direct + 1 + l.TopN + 2*l.TopNTokenInOut + 2*l.TopNSecondHop
}

type selectionInput struct {
	params    chain.Params
	addresses *dex.AddressCache
	protocol  model.Protocol
	tradeType model.TradeType
	tokenIn   model.Token
	tokenOut  model.Token
	limits    PoolSelectionLimits
}

// selectBuckets fills the selection buckets from pools sorted by rank. Every
// bucket skips pools an earlier bucket already took, except the native quote
// pool which only needs to exist.
func selectBuckets(in selectionInput, sorted []model.SubgraphPool) model.PoolSelections {
	tokenIn := in.tokenIn.Key()
	tokenOut := in.tokenOut.Key()
	seen := make(map[string]struct{})
	take := func(pools []model.SubgraphPool) []model.SubgraphPool {
		for _, pool := range pools {
			seen[pool.ID] = struct{}{}
		}
		return pools
	}
	unseen := func(pool model.SubgraphPool) bool {
		_, ok := seen[pool.ID]
		return !ok
	}

	var sel model.PoolSelections
	sel.TopByBaseWithTokenIn = take(withBaseTokens(in, sorted, tokenIn, unseen))
	sel.TopByBaseWithTokenOut = take(withBaseTokens(in, sorted, tokenOut, unseen))

	direct := filter(sorted, in.limits.TopNDirectSwaps, func(pool model.SubgraphPool) bool {
		return unseen(pool) && pool.Pairs(tokenIn, tokenOut)
	})
	if len(direct) == 0 && in.limits.TopNDirectSwaps > 0 {
		direct = syntheticDirectPools(in)
	}
	sel.TopByDirectSwapPool = take(direct)

	native := in.params.WrappedNative
	quoteSide := tokenOut
	if in.tradeType == model.ExactOutput {
		quoteSide = tokenIn
	}
	if quoteSide != native.Key() {
		sel.TopByEthQuoteTokenPool = take(filter(sorted, 1, func(pool model.SubgraphPool) bool {
			return pool.Pairs(native.Key(), quoteSide)
		}))
	}

	sel.TopByTVL = take(filter(sorted, in.limits.TopN, unseen))
	sel.TopByTVLUsingTokenIn = take(filter(sorted, in.limits.TopNTokenInOut, func(pool model.SubgraphPool) bool {
		return unseen(pool) && pool.Touches(tokenIn)
	}))
	sel.TopByTVLUsingTokenOut = take(filter(sorted, in.limits.TopNTokenInOut, func(pool model.SubgraphPool) bool {
		return unseen(pool) && pool.Touches(tokenOut)
	}))
	sel.TopByTVLUsingTokenInSecondHops = take(secondHops(sorted, sel.TopByTVLUsingTokenIn, tokenIn, in.limits.TopNSecondHop, unseen))
	sel.TopByTVLUsingTokenOutSecondHops = take(secondHops(sorted, sel.TopByTVLUsingTokenOut, tokenOut, in.limits.TopNSecondHop, unseen))
	return sel
}

func withBaseTokens(in selectionInput, sorted []model.SubgraphPool, token string, unseen func(model.SubgraphPool) bool) []model.SubgraphPool {
	var out []model.SubgraphPool
	for _, base := range in.params.BaseTokens {
		baseKey := base.Key()
		out = append(out, filter(sorted, in.limits.TopNWithEachBaseToken, func(pool model.SubgraphPool) bool {
			return unseen(pool) && pool.Pairs(baseKey, token)
		})...)
	}
	sortByRank(out)
	return capped(dedup(out), in.limits.TopNWithBaseToken)
}

// secondHops widens from the tokens reached by the first-hop pools. Each hop
// token contributes up to limit pools before the combined list is capped to
// limit again.
func secondHops(sorted, firstHop []model.SubgraphPool, from string, limit int, unseen func(model.SubgraphPool) bool) []model.SubgraphPool {
	var out []model.SubgraphPool
	for _, pool := range firstHop {
		hop := pool.Other(from)
		out = append(out, filter(sorted, limit, func(candidate model.SubgraphPool) bool {
			return unseen(candidate) && candidate.Touches(hop)
		})...)
	}
	out = dedup(out)
	sortByRank(out)
	return capped(out, limit)
}

func syntheticDirectPools(in selectionInput) []model.SubgraphPool {
	token0, token1 := model.SortTokens(in.tokenIn, in.tokenOut)
	switch in.protocol {
	case model.ProtocolV3:
		out := make([]model.SubgraphPool, 0, len(model.FeeAmounts))
		for _, fee := range model.FeeAmounts {
			address := in.addresses.V3Pool(in.params, token0, token1, fee)
			out = append(out, model.SubgraphPool{
				Protocol:  model.ProtocolV3,
				ID:        model.AddressKey(address),
				Token0:    token0.Key(),
				Token1:    token1.Key(),
				FeeTier:   fee.String(),
				Liquidity: "10000",
				TVLETH:    syntheticLiquidity,
				TVLUSD:    syntheticLiquidity,
			})
		}
		return out
	default:
		address := in.addresses.V2Pair(in.params, token0, token1)
		return []model.SubgraphPool{{
			Protocol: model.ProtocolV2,
			ID:       model.AddressKey(address),
			Token0:   token0.Key(),
			Token1:   token1.Key(),
			Supply:   syntheticLiquidity,
			Reserve:  syntheticLiquidity,
		}}
	}
}

func filter(pools []model.SubgraphPool, limit int, keep func(model.SubgraphPool) bool) []model.SubgraphPool {
	if limit <= 0 {
		return nil
	}
	var out []model.SubgraphPool
	for _, pool := range pools {
		if len(out) == limit {
			break
		}
		if keep(pool) {
			out = append(out, pool)
		}
	}
	return out
}

func capped(pools []model.SubgraphPool, limit int) []model.SubgraphPool {
	if limit <= 0 {
		return nil
	}
	if len(pools) > limit {
		return pools[:limit]
	}
	return pools
}

func dedup(pools []model.SubgraphPool) []model.SubgraphPool {
	seen := make(map[string]struct{}, len(pools))
	out := pools[:0:0]
	for _, pool := range pools {
		if _, ok := seen[pool.ID]; ok {
			continue
		}
		seen[pool.ID] = struct{}{}
		out = append(out, pool)
	}
	return out
}

// sortByRank orders pools by liquidity proxy, highest first. Ties keep their
// input order.
func sortByRank(pools []model.SubgraphPool) {
	sort.SliceStable(pools, func(i, j int) bool {
		return pools[i].Rank() > pools[j].Rank()
	})
}

// union flattens the buckets in order, keeping the first occurrence of each
// pool.
func union(sel model.PoolSelections) []model.SubgraphPool {
	var all []model.SubgraphPool
	for _, bucket := range sel.Buckets() {
		all = append(all, bucket.Pools...)
	}
	return dedup(all)
}
