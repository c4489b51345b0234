package gasmodel

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
)

// Signature padding added to every L1 data estimate: 68 bytes at 16 gas.
const l1SignaturePaddingGas = 68 * 16

// L1GasData prices the L1 publication of call data.
type L1GasData interface {
	L1Fee(calldata []byte) (gasUsed *big.Int, feeWei *big.Int)
}

// L1GasDataSource reads the rollup fee parameters at a block.
type L1GasDataSource interface {
	L1GasData(ctx context.Context, params chain.Params, blockNumber uint64) (L1GasData, error)
}

// L1GasUsed is the calldata gas of data (4 per zero byte, 16 per non-zero
// byte) plus overhead and signature padding.
func L1GasUsed(data []byte, overhead *big.Int) *big.Int {
	var zeros, nonZeros int64
	for _, b := range data {
		if b == 0 {
			zeros++
		} else {
			nonZeros++
		}
	}
	out := big.NewInt(zeros*4 + nonZeros*16 + l1SignaturePaddingGas)
	if overhead != nil {
		out.Add(out, overhead)
	}
	return out
}

// OptimismGasData is the OP-stack GasPriceOracle state.
type OptimismGasData struct {
	L1BaseFee *big.Int
	Scalar    *big.Int
	Decimals  *big.Int
	Overhead  *big.Int
}

func (d OptimismGasData) L1Fee(data []byte) (*big.Int, *big.Int) {
	gasUsed := L1GasUsed(data, d.Overhead)
	fee := new(big.Int).Mul(gasUsed, d.L1BaseFee)
	fee.Mul(fee, d.Scalar)
	fee.Quo(fee, new(big.Int).Exp(big.NewInt(10), d.Decimals, nil))
	return gasUsed, fee
}

// ArbitrumGasData holds the ArbGasInfo prices used for L1 fees.
type ArbitrumGasData struct {
	PerL2TxFee       *big.Int
	PerL1CalldataFee *big.Int
}

func (d ArbitrumGasData) L1Fee(data []byte) (*big.Int, *big.Int) {
	gasUsed := L1GasUsed(data, nil)
	fee := new(big.Int).Mul(gasUsed, d.PerL1CalldataFee)
	fee.Add(fee, d.PerL2TxFee)
	return gasUsed, fee
}

// OnChainL1GasDataSource reads the fee oracle of the chain through multicall.
type OnChainL1GasDataSource struct {
	caller chain.BatchCaller
	retry  chain.RetryPolicy
	logger *zap.Logger
}

func NewOnChainL1GasDataSource(caller chain.BatchCaller, logger *zap.Logger) *OnChainL1GasDataSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnChainL1GasDataSource{caller: caller, retry: chain.DefaultRetryPolicy, logger: logger}
}

func (s *OnChainL1GasDataSource) L1GasData(ctx context.Context, params chain.Params, blockNumber uint64) (L1GasData, error) {
	var data L1GasData
	err := chain.Retry(ctx, s.retry, func(ctx context.Context) error {
		var err error
		switch params.L1Fee {
		case chain.L1FeeOptimism:
			data, err = s.optimism(ctx, params, blockNumber)
		case chain.L1FeeArbitrum:
			data, err = s.arbitrum(ctx, params, blockNumber)
		default:
			return chain.Permanent(fmt.Errorf("%s has no l1 fee oracle", params.Name))
		}
		return err
	}, func(attempt int, err error) {
		s.logger.Warn("l1 gas data fetch failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	return data, err
}

func (s *OnChainL1GasDataSource) optimism(ctx context.Context, params chain.Params, blockNumber uint64) (L1GasData, error) {
	oracleABI, err := dex.GasPriceOracleABI()
	if err != nil {
		return nil, chain.Permanent(err)
	}
	methods := []string{"l1BaseFee", "scalar", "decimals", "overhead"}
	batch, err := chain.CallMultipleFunctionsOnSameContract(ctx, s.caller, params.L1FeeOracle, oracleABI, methods, blockNumber)
	if err != nil {
		return nil, err
	}
	values := make([]*big.Int, len(methods))
	for i, res := range batch.Results {
		value, err := firstBigInt(res)
		if err != nil {
			return nil, fmt.Errorf("gas price oracle %s: %w", methods[i], err)
		}
		values[i] = value
	}
	return OptimismGasData{L1BaseFee: values[0], Scalar: values[1], Decimals: values[2], Overhead: values[3]}, nil
}

func (s *OnChainL1GasDataSource) arbitrum(ctx context.Context, params chain.Params, blockNumber uint64) (L1GasData, error) {
	infoABI, err := dex.ArbGasInfoABI()
	if err != nil {
		return nil, chain.Permanent(err)
	}
	batch, err := chain.CallMultipleFunctionsOnSameContract(ctx, s.caller, params.L1FeeOracle, infoABI, []string{"getPricesInWei"}, blockNumber)
	if err != nil {
		return nil, err
	}
	res := batch.Results[0]
	if !res.Success || len(res.Values) < 2 {
		return nil, fmt.Errorf("getPricesInWei: %s", res.Reason)
	}
	perL2Tx, ok0 := res.Values[0].(*big.Int)
	perL1Calldata, ok1 := res.Values[1].(*big.Int)
	if !ok0 || !ok1 {
		return nil, fmt.Errorf("getPricesInWei: unexpected output types")
	}
	return ArbitrumGasData{PerL2TxFee: perL2Tx, PerL1CalldataFee: perL1Calldata}, nil
}

func firstBigInt(res chain.DecodedResult) (*big.Int, error) {
	if !res.Success || len(res.Values) == 0 {
		return nil, fmt.Errorf("call failed: %s", res.Reason)
	}
	value, ok := res.Values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected type %T", res.Values[0])
	}
	return value, nil
}
