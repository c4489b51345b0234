package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeMulticallCaller decodes the multicall input and answers each sub-call
// through respond.
type fakeMulticallCaller struct {
	block   int64
	respond func(call multicallCall) multicallResult
	seen    []multicallCall
}

func (f *fakeMulticallCaller) CallContract(_ context.Context, msg ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	parsed, err := MulticallABI()
	if err != nil {
		return nil, err
	}
	method := parsed.Methods["multicall"]
	values, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, fmt.Errorf("unpack input: %w", err)
	}
	calls := *abi.ConvertType(values[0], new([]multicallCall)).(*[]multicallCall)
	f.seen = append(f.seen, calls...)

	results := make([]multicallResult, len(calls))
	for i, call := range calls {
		results[i] = f.respond(call)
	}
	return method.Outputs.Pack(big.NewInt(f.block), results)
}

const erc20DecimalsJSON = `[{"inputs": [], "name": "decimals", "outputs": [{"type": "uint8"}], "stateMutability": "view", "type": "function"}]`

func TestMulticallRoundTrip(t *testing.T) {
	tokenABI, err := abi.JSON(strings.NewReader(erc20DecimalsJSON))
	require.NoError(t, err)
	good := common.HexToAddress("0x1111111111111111111111111111111111111111")
	reverting := common.HexToAddress("0x2222222222222222222222222222222222222222")
	empty := common.HexToAddress("0x3333333333333333333333333333333333333333")

	caller := &fakeMulticallCaller{
		block: 77,
		respond: func(call multicallCall) multicallResult {
			switch call.Target {
			case good:
				out, _ := tokenABI.Methods["decimals"].Outputs.Pack(uint8(6))
				return multicallResult{Success: true, GasUsed: big.NewInt(2500), ReturnData: out}
			case reverting:
				return multicallResult{Success: false, GasUsed: big.NewInt(100)}
			default:
				return multicallResult{Success: true, GasUsed: big.NewInt(100), ReturnData: nil}
			}
		},
	}

	mc := NewMulticall(caller, common.HexToAddress("0x9999999999999999999999999999999999999999"), 0, nil)
	batch, err := CallSameFunctionOnMultipleContracts(context.Background(), mc,
		[]common.Address{good, reverting, empty}, tokenABI, "decimals", nil, 77)
	require.NoError(t, err)

	assert.EqualValues(t, 77, batch.BlockNumber)
	require.Len(t, batch.Results, 3)
	require.True(t, batch.Results[0].Success)
	assert.Equal(t, uint8(6), batch.Results[0].Values[0])
	assert.False(t, batch.Results[1].Success)
	assert.Equal(t, "reverted", batch.Results[1].Reason)
	assert.False(t, batch.Results[2].Success)
	assert.Equal(t, "empty return data", batch.Results[2].Reason)
	assert.EqualValues(t, 2500, batch.ApproxGasUsedPerSuccessCall)
	for _, call := range caller.seen {
		assert.Equal(t, uint64(DefaultGasLimitPerCall), call.GasLimit.Uint64())
	}
}

func TestCallSameFunctionWithMultipleParamsUsesGasLimit(t *testing.T) {
	tokenABI, err := abi.JSON(strings.NewReader(erc20DecimalsJSON))
	require.NoError(t, err)
	caller := &fakeMulticallCaller{
		block: 1,
		respond: func(multicallCall) multicallResult {
			out, _ := tokenABI.Methods["decimals"].Outputs.Pack(uint8(18))
			return multicallResult{Success: true, GasUsed: big.NewInt(1), ReturnData: out}
		},
	}
	mc := NewMulticall(caller, common.Address{}, 0, nil)
	target := common.HexToAddress("0x4444444444444444444444444444444444444444")
	batch, err := CallSameFunctionOnContractWithMultipleParams(context.Background(), mc, target, tokenABI,
		"decimals", [][]interface{}{{}, {}}, 1_200_000, 0)
	require.NoError(t, err)
	assert.Len(t, batch.Results, 2)
	for _, call := range caller.seen {
		assert.Equal(t, target, call.Target)
		assert.Equal(t, uint64(1_200_000), call.GasLimit.Uint64())
	}
}

func TestPercentile(t *testing.T) {
	values := []uint64{5, 1, 4, 2, 3, 10, 9, 8, 7, 6}
	assert.Equal(t, uint64(10), Percentile(values, 99))
	assert.Equal(t, uint64(5), Percentile(values, 50))
	assert.Zero(t, Percentile(nil, 99))
}
