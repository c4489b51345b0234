package dex

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
)

type fakeBatchCaller struct {
	respond func(call chain.Call) chain.CallResult
	batches int
}

func (f *fakeBatchCaller) CallBatch(_ context.Context, calls []chain.Call, blockNumber uint64) (chain.BatchResult, error) {
	f.batches++
	out := chain.BatchResult{BlockNumber: blockNumber, Results: make([]chain.CallResult, len(calls))}
	for i, call := range calls {
		out.Results[i] = f.respond(call)
	}
	return out, nil
}

func okResult(data []byte) chain.CallResult {
	return chain.CallResult{Success: true, GasUsed: 1000, ReturnData: data}
}

func TestFetchTokensFallsBackToBytes32Symbol(t *testing.T) {
	stringABI, err := erc20ABIStringInstance()
	require.NoError(t, err)
	bytes32ABI, err := erc20ABIBytes32Instance()
	require.NoError(t, err)
	decimalsID := string(stringABI.Methods["decimals"].ID)
	symbolID := string(stringABI.Methods["symbol"].ID)

	usdc := common.HexToAddress("0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48")
	mkr := common.HexToAddress("0x9f8F72aA9304c8B593d555F12eF6589cC3A579A2")
	broken := common.HexToAddress("0x00000000000000000000000000000000000000b0")

	var mkrSymbol [32]byte
	copy(mkrSymbol[:], "MKR")

	caller := &fakeBatchCaller{respond: func(call chain.Call) chain.CallResult {
		selector := string(call.CallData[:4])
		switch {
		case call.Target == broken && selector == decimalsID:
			return chain.CallResult{Success: false}
		case selector == decimalsID:
			decimals := uint8(18)
			if call.Target == usdc {
				decimals = 6
			}
			data, _ := stringABI.Methods["decimals"].Outputs.Pack(decimals)
			return okResult(data)
		case selector == symbolID && call.Target == mkr:
			data, _ := bytes32ABI.Methods["symbol"].Outputs.Pack(mkrSymbol)
			return okResult(data)
		case selector == symbolID:
			data, _ := stringABI.Methods["symbol"].Outputs.Pack("USDC")
			return okResult(data)
		}
		return chain.CallResult{}
	}}

	tokens, err := FetchTokens(context.Background(), caller, model.ChainMainnet, []common.Address{usdc, mkr, broken}, 100, nil)
	require.NoError(t, err)
	require.Len(t, tokens, 2)
	assert.Equal(t, "USDC", tokens[usdc].Symbol)
	assert.EqualValues(t, 6, tokens[usdc].Decimals)
	assert.Equal(t, "MKR", tokens[mkr].Symbol)
	assert.EqualValues(t, 18, tokens[mkr].Decimals)
	assert.NotContains(t, tokens, broken, "token with failing decimals is dropped")
	assert.Equal(t, 3, caller.batches)
}

func TestFetchV3StatesDropsFailedPools(t *testing.T) {
	poolABI, err := V3PoolABI()
	require.NoError(t, err)
	slot0ID := string(poolABI.Methods["slot0"].ID)
	good := common.HexToAddress("0x0000000000000000000000000000000000000a01")
	uninitialized := common.HexToAddress("0x0000000000000000000000000000000000000a02")
	missing := common.HexToAddress("0x0000000000000000000000000000000000000a03")

	sqrtPrice, _ := new(big.Int).SetString("1771595571142957166518320255467520", 10)
	caller := &fakeBatchCaller{respond: func(call chain.Call) chain.CallResult {
		if call.Target == missing {
			return chain.CallResult{Success: true}
		}
		if string(call.CallData[:4]) == slot0ID {
			price := sqrtPrice
			if call.Target == uninitialized {
				price = big.NewInt(0)
			}
			data, _ := poolABI.Methods["slot0"].Outputs.Pack(price, big.NewInt(-201000), uint16(1), uint16(2), uint16(3), uint8(0), true)
			return okResult(data)
		}
		data, _ := poolABI.Methods["liquidity"].Outputs.Pack(big.NewInt(5_000_000))
		return okResult(data)
	}}

	states, err := FetchV3States(context.Background(), caller, []common.Address{good, uninitialized, missing}, 0, nil)
	require.NoError(t, err)
	require.Len(t, states, 1)
	state := states[good]
	assert.EqualValues(t, -201000, state.Tick)
	assert.Equal(t, int64(5_000_000), state.Liquidity.Int64())
	assert.Zero(t, state.SqrtPriceX96.Cmp(sqrtPrice))
}

func TestFetchV2Reserves(t *testing.T) {
	pairABI, err := V2PairABI()
	require.NoError(t, err)
	pair := common.HexToAddress("0x0000000000000000000000000000000000000b01")
	reverted := common.HexToAddress("0x0000000000000000000000000000000000000b02")
	caller := &fakeBatchCaller{respond: func(call chain.Call) chain.CallResult {
		if call.Target == reverted {
			return chain.CallResult{Success: false}
		}
		data, _ := pairABI.Methods["getReserves"].Outputs.Pack(big.NewInt(1000), big.NewInt(2000), uint32(1))
		return okResult(data)
	}}

	reserves, err := FetchV2Reserves(context.Background(), caller, []common.Address{pair, reverted}, 0, nil)
	require.NoError(t, err)
	require.Len(t, reserves, 1)
	assert.Equal(t, int64(1000), reserves[pair].Reserve0.Int64())
	assert.Equal(t, int64(2000), reserves[pair].Reserve1.Int64())
}
