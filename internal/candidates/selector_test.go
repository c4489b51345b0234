package candidates

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
)

var (
	tokenX = model.NewToken(model.ChainMainnet, "0x00000000000000000000000000000000000000a1", 18, "X")
	tokenY = model.NewToken(model.ChainMainnet, "0x00000000000000000000000000000000000000a2", 18, "Y")
	tokenZ = model.NewToken(model.ChainMainnet, "0x00000000000000000000000000000000000000a3", 18, "Z")
	tokenQ = model.NewToken(model.ChainMainnet, "0x00000000000000000000000000000000000000a4", 18, "Q")
)

type fakeSource struct {
	list  provider.PoolList
	err   error
	query provider.PoolQuery
}

func (f *fakeSource) ListPools(_ context.Context, query provider.PoolQuery) (provider.PoolList, error) {
	f.query = query
	return f.list, f.err
}

type fakeResolver struct {
	known     []model.Token
	requested []string
}

func (f *fakeResolver) Resolve(_ context.Context, addresses []string, _ uint64) (provider.TokenAccessor, error) {
	f.requested = addresses
	return provider.NewTokenSet(f.known...), nil
}

type fakeV3Loader struct {
	params chain.Params
	keys   []provider.V3PoolKey
}

func (f *fakeV3Loader) GetPools(_ context.Context, keys []provider.V3PoolKey, _ uint64) (*provider.V3PoolSet, error) {
	f.keys = keys
	pools := make([]model.V3Pool, 0, len(keys))
	for _, key := range keys {
		token0, token1 := model.SortTokens(key.TokenA, key.TokenB)
		pools = append(pools, model.V3Pool{
			Address:      dex.ComputeV3PoolAddress(f.params.V3Factory, f.params.V3InitCodeHash, token0, token1, key.Fee),
			Token0:       token0,
			Token1:       token1,
			Fee:          key.Fee,
			SqrtPriceX96: big.NewInt(1),
			Liquidity:    big.NewInt(1),
		})
	}
	return provider.NewV3PoolSet(pools), nil
}

func mainnet(t *testing.T) chain.Params {
	t.Helper()
	params, err := chain.ParamsFor(model.ChainMainnet)
	require.NoError(t, err)
	return params
}

func symbol(t *testing.T, params chain.Params, s string) model.Token {
	t.Helper()
	token, ok := params.TokenBySymbol(s)
	require.True(t, ok, "no token %s", s)
	return token
}

func v3Pool(id string, a, b model.Token, fee string, tvl float64) model.SubgraphPool {
	token0, token1 := model.SortTokens(a, b)
	return model.SubgraphPool{
		Protocol: model.ProtocolV3,
		ID:       id,
		Token0:   token0.Key(),
		Token1:   token1.Key(),
		FeeTier:  fee,
		TVLUSD:   tvl,
	}
}

func ids(pools []model.SubgraphPool) []string {
	out := make([]string, len(pools))
	for i, pool := range pools {
		out[i] = pool.ID
	}
	return out
}

func assertIDs(t *testing.T, bucket string, got []model.SubgraphPool, want ...string) {
	t.Helper()
	if len(want) == 0 {
		want = []string{}
	}
	assert.Equal(t, want, ids(got), bucket)
}

func TestSelectBucketsFillsEveryBucket(t *testing.T) {
	params := mainnet(t)
	weth := params.WrappedNative
	dai := symbol(t, params, "DAI")
	wbtc := symbol(t, params, "WBTC")
	usdc := symbol(t, params, "USDC")

	universe := []model.SubgraphPool{
		v3Pool("p1", tokenX, weth, "3000", 100),
		v3Pool("p2", tokenX, dai, "3000", 90),
		v3Pool("p3", tokenX, wbtc, "3000", 80),
		v3Pool("p4", usdc, weth, "500", 1000),
		v3Pool("p5", tokenX, usdc, "3000", 50),
		v3Pool("p6", usdc, dai, "100", 500),
		v3Pool("p7", tokenY, tokenZ, "3000", 2000),
		v3Pool("p8", usdc, tokenY, "3000", 40),
		v3Pool("p9", wbtc, tokenZ, "3000", 30),
		v3Pool("p10", tokenY, tokenQ, "3000", 10),
	}
	sortByRank(universe)

	sel := selectBuckets(selectionInput{
		params:    params,
		addresses: dex.NewAddressCache(),
		protocol:  model.ProtocolV3,
		tradeType: model.ExactInput,
		tokenIn:   tokenX,
		tokenOut:  usdc,
		limits: PoolSelectionLimits{
			TopN:                  1,
			TopNDirectSwaps:       1,
			TopNTokenInOut:        1,
			TopNSecondHop:         1,
			TopNWithEachBaseToken: 1,
			TopNWithBaseToken:     2,
		},
	}, universe)

	assertIDs(t, "base with tokenIn", sel.TopByBaseWithTokenIn, "p1", "p2")
	assertIDs(t, "base with tokenOut", sel.TopByBaseWithTokenOut, "p4", "p6")
	assertIDs(t, "direct", sel.TopByDirectSwapPool, "p5")
	assertIDs(t, "eth quote", sel.TopByEthQuoteTokenPool, "p4")
	assertIDs(t, "tvl", sel.TopByTVL, "p7")
	assertIDs(t, "tokenIn", sel.TopByTVLUsingTokenIn, "p3")
	assertIDs(t, "tokenOut", sel.TopByTVLUsingTokenOut, "p8")
	assertIDs(t, "tokenIn second hops", sel.TopByTVLUsingTokenInSecondHops, "p9")
	assertIDs(t, "tokenOut second hops", sel.TopByTVLUsingTokenOutSecondHops, "p10")
	assertIDs(t, "union", union(sel), "p1", "p2", "p4", "p6", "p5", "p7", "p3", "p8", "p9", "p10")
}

func TestSelectBucketsSynthesizesDirectSwaps(t *testing.T) {
	params := mainnet(t)
	usdc := symbol(t, params, "USDC")
	addresses := dex.NewAddressCache()

	sel := selectBuckets(selectionInput{
		params:    params,
		addresses: addresses,
		protocol:  model.ProtocolV3,
		tradeType: model.ExactInput,
		tokenIn:   tokenX,
		tokenOut:  usdc,
		limits:    PoolSelectionLimits{TopN: 2, TopNDirectSwaps: 2, TopNTokenInOut: 3, TopNSecondHop: 1, TopNWithEachBaseToken: 3, TopNWithBaseToken: 5},
	}, nil)

	require.Len(t, sel.TopByDirectSwapPool, len(model.FeeAmounts))
	for i, fee := range model.FeeAmounts {
		pool := sel.TopByDirectSwapPool[i]
		assert.Equal(t, model.AddressKey(addresses.V3Pool(params, tokenX, usdc, fee)), pool.ID)
		assert.Equal(t, fee.String(), pool.FeeTier)
	}
	assert.Len(t, union(sel), len(model.FeeAmounts))

	v2 := selectBuckets(selectionInput{
		params:    params,
		addresses: addresses,
		protocol:  model.ProtocolV2,
		tokenIn:   tokenX,
		tokenOut:  usdc,
		limits:    PoolSelectionLimits{TopNDirectSwaps: 1},
	}, nil)
	assertIDs(t, "v2 direct", v2.TopByDirectSwapPool, model.AddressKey(addresses.V2Pair(params, usdc, tokenX)))

	none := selectBuckets(selectionInput{params: params, addresses: addresses, protocol: model.ProtocolV3, tokenIn: tokenX, tokenOut: usdc}, nil)
	assert.Empty(t, union(none), "no candidates without direct swaps")
}

func TestSelectBucketsSkipsEthQuotePoolForNative(t *testing.T) {
	params := mainnet(t)
	weth := params.WrappedNative
	usdc := symbol(t, params, "USDC")
	universe := []model.SubgraphPool{
		v3Pool("weth-usdc", weth, usdc, "500", 100),
		v3Pool("x-weth", tokenX, weth, "3000", 10),
	}
	in := selectionInput{
		params:    params,
		addresses: dex.NewAddressCache(),
		protocol:  model.ProtocolV3,
		tradeType: model.ExactInput,
		tokenIn:   usdc,
		tokenOut:  weth,
	}
	assert.Empty(t, selectBuckets(in, universe).TopByEthQuoteTokenPool, "eth quote pool for native output")

	in.tradeType = model.ExactOutput
	in.tokenIn = usdc
	in.tokenOut = tokenX
	sel := selectBuckets(in, universe)
	assertIDs(t, "eth quote exact out", sel.TopByEthQuoteTokenPool, "weth-usdc")
}

func TestSelectBucketsStaysWithinPerSideBound(t *testing.T) {
	params := mainnet(t)
	usdc := symbol(t, params, "USDC")
	others := []model.Token{tokenX, tokenY, tokenZ, tokenQ}
	others = append(others, params.BaseTokens...)

	var universe []model.SubgraphPool
	n := 0
	for i := range others {
		for j := i + 1; j < len(others); j++ {
			for _, fee := range []string{"500", "3000"} {
				n++
				universe = append(universe, v3Pool("pool-"+others[i].Symbol+"-"+others[j].Symbol+"-"+fee, others[i], others[j], fee, float64((n*37)%101)))
			}
		}
	}
	sortByRank(universe)

	limits := PoolSelectionLimits{TopN: 2, TopNDirectSwaps: 2, TopNTokenInOut: 3, TopNSecondHop: 1, TopNWithEachBaseToken: 3, TopNWithBaseToken: 5}
	sel := selectBuckets(selectionInput{
		params:    params,
		addresses: dex.NewAddressCache(),
		protocol:  model.ProtocolV3,
		tradeType: model.ExactInput,
		tokenIn:   tokenX,
		tokenOut:  usdc,
		limits:    limits,
	}, universe)

	all := union(sel)
	assert.LessOrEqual(t, len(all), limits.MaxCandidates(model.ProtocolV3))
	seen := make(map[string]string)
	for _, bucket := range sel.Buckets() {
		if bucket.Name == "topByEthQuoteTokenPool" {
			continue
		}
		for _, pool := range bucket.Pools {
			prev, ok := seen[pool.ID]
			require.False(t, ok, "pool %s in %s and %s", pool.ID, prev, bucket.Name)
			seen[pool.ID] = bucket.Name
		}
	}
}

func TestSelectorDropsBlockedUnresolvedAndUnsupportedPools(t *testing.T) {
	params := mainnet(t)
	usdc := symbol(t, params, "USDC")
	blocked := model.NewToken(model.ChainMainnet, "0x00000000000000000000000000000000000000b1", 18, "BLK")
	unknown := model.NewToken(model.ChainMainnet, "0x00000000000000000000000000000000000000b2", 18, "UNK")

	source := &fakeSource{list: provider.PoolList{Source: "test", Pools: []model.SubgraphPool{
		v3Pool("0xAAA1", tokenX, usdc, "3000", 50),
		v3Pool("0xAAA2", tokenX, usdc, "42", 40),
		v3Pool("0xAAA3", tokenX, unknown, "3000", 30),
		v3Pool("0xAAA4", tokenX, blocked, "3000", 1000),
	}}}
	blocklist, err := provider.ParseBlocklist([]string{blocked.Address.Hex()})
	require.NoError(t, err)
	resolver := &fakeResolver{known: []model.Token{tokenX, usdc, blocked}}
	loader := &fakeV3Loader{params: params}

	selector := NewSelector(Config{
		Params:    params,
		Source:    source,
		Tokens:    resolver,
		Blocklist: blocklist,
		V3Pools:   loader,
	})
	result, err := selector.Select(context.Background(), Request{
		TokenIn:     tokenX,
		TokenOut:    usdc,
		TradeType:   model.ExactInput,
		Protocol:    model.ProtocolV3,
		BlockNumber: 42,
		Limits:      PoolSelectionLimits{TopNDirectSwaps: 2, TopNTokenInOut: 5},
	})
	require.NoError(t, err)
	assert.Equal(t, tokenX.Key(), source.query.TokenIn)
	assert.EqualValues(t, 42, source.query.BlockNumber)
	assert.NotContains(t, ids(union(result.Selection.Selections)), "0xaaa4", "blocked pool selected")
	require.Len(t, loader.keys, 1)
	assert.Equal(t, model.FeeMedium, loader.keys[0].Fee)
	assert.Len(t, result.Pools(), 1)
	assert.Nil(t, result.V2Pairs)
	assert.Equal(t, model.ProtocolV3, result.Selection.Protocol)
}

func TestSelectorRejectsUnsupportedProtocol(t *testing.T) {
	params, err := chain.ParamsFor(model.ChainOptimism)
	require.NoError(t, err)
	selector := NewSelector(Config{Params: params, Source: &fakeSource{}, Tokens: &fakeResolver{}})
	_, err = selector.Select(context.Background(), Request{Protocol: model.ProtocolV2})
	require.ErrorIs(t, err, chain.ErrUnsupportedChain)
}

func TestSelectorPropagatesSourceErrors(t *testing.T) {
	params := mainnet(t)
	selector := NewSelector(Config{
		Params: params,
		Source: &fakeSource{err: errors.New("boom")},
		Tokens: &fakeResolver{},
	})
	_, err := selector.Select(context.Background(), Request{Protocol: model.ProtocolV3})
	require.Error(t, err)
}
