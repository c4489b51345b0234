package provider

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

type fakeBatchCaller struct {
	respond func(call chain.Call) chain.CallResult
	calls   int
}

func (f *fakeBatchCaller) CallBatch(_ context.Context, calls []chain.Call, blockNumber uint64) (chain.BatchResult, error) {
	f.calls += len(calls)
	out := chain.BatchResult{BlockNumber: blockNumber, Results: make([]chain.CallResult, len(calls))}
	for i, call := range calls {
		out.Results[i] = f.respond(call)
	}
	return out, nil
}

func TestV3PoolProviderLoadsAndDedups(t *testing.T) {
	params, err := chain.ParamsFor(model.ChainMainnet)
	assert.NoError(t, err)
	usdc, _ := params.TokenBySymbol("USDC")
	weth, _ := params.TokenBySymbol("WETH")

	addresses := dex.NewAddressCache()
	lowPool := addresses.V3Pool(params, usdc, weth, model.FeeLow)
	poolABI, err := dex.V3PoolABI()
	assert.NoError(t, err)
	slot0ID := string(poolABI.Methods["slot0"].ID)

	caller := &fakeBatchCaller{respond: func(call chain.Call) chain.CallResult {
		if call.Target != lowPool {
			return chain.CallResult{Success: false}
		}
		if string(call.CallData[:4]) == slot0ID {
			data, _ := poolABI.Methods["slot0"].Outputs.Pack(new(big.Int).Lsh(big.NewInt(1), 96), big.NewInt(0), uint16(0), uint16(1), uint16(1), uint8(0), true)
			return chain.CallResult{Success: true, ReturnData: data}
		}
		data, _ := poolABI.Methods["liquidity"].Outputs.Pack(big.NewInt(777))
		return chain.CallResult{Success: true, ReturnData: data}
	}}

	provider := NewV3PoolProvider(caller, params, addresses, nil)
	set, err := provider.GetPools(context.Background(), []V3PoolKey{
		{TokenA: weth, TokenB: usdc, Fee: model.FeeLow},
		{TokenA: usdc, TokenB: weth, Fee: model.FeeLow},
		{TokenA: usdc, TokenB: weth, Fee: model.FeeMedium},
		{TokenA: usdc, TokenB: usdc, Fee: model.FeeLow},
	}, 19_000_000)
	assert.NoError(t, err)
	assert.Len(t, set.Pools(), 1)
	// two distinct pools, slot0 and liquidity each
	assert.Equal(t, 4, caller.calls)

	pool, ok := set.GetPoolByAddress(lowPool)
	assert.True(t, ok)
	assert.True(t, pool.Token0.Equals(usdc))
	assert.Equal(t, int64(777), pool.Liquidity.Int64())
	assert.Equal(t, model.FeeLow, pool.Fee)
}

func TestV2PoolProviderDropsEmptyReserves(t *testing.T) {
	params, err := chain.ParamsFor(model.ChainMainnet)
	assert.NoError(t, err)
	usdc, _ := params.TokenBySymbol("USDC")
	weth, _ := params.TokenBySymbol("WETH")
	dai, _ := params.TokenBySymbol("DAI")

	addresses := dex.NewAddressCache()
	full := addresses.V2Pair(params, usdc, weth)
	pairABI, err := dex.V2PairABI()
	assert.NoError(t, err)

	caller := &fakeBatchCaller{respond: func(call chain.Call) chain.CallResult {
		reserve := big.NewInt(0)
		if call.Target == full {
			reserve = big.NewInt(1_000_000)
		}
		data, _ := pairABI.Methods["getReserves"].Outputs.Pack(reserve, big.NewInt(2_000_000), uint32(1))
		return chain.CallResult{Success: true, ReturnData: data}
	}}

	provider := NewV2PoolProvider(caller, params, addresses, nil)
	set, err := provider.GetPairs(context.Background(), []V2PairKey{
		{TokenA: weth, TokenB: usdc},
		{TokenA: dai, TokenB: usdc},
	}, 0)
	assert.NoError(t, err)
	assert.Len(t, set.Pairs(), 1)

	pair, ok := set.GetPairByAddress(full)
	assert.True(t, ok)
	assert.Equal(t, int64(1_000_000), pair.ReserveOf(usdc).Int64())
	assert.Equal(t, int64(2_000_000), pair.ReserveOf(weth).Int64())
}
