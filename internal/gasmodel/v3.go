package gasmodel

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaprouter/internal/calldata"
	"swaprouter/internal/chain"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
)

// V3Factory builds V3 gas models. l1 may be nil on chains without an L1
// data fee.
type V3Factory struct {
	pools  V3PoolLoader
	l1     L1GasDataSource
	logger *zap.Logger
}

func NewV3Factory(pools V3PoolLoader, l1 L1GasDataSource, logger *zap.Logger) *V3Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V3Factory{pools: pools, l1: l1, logger: logger}
}

// Build loads the wrapped-native/USD pool (required) and the
// wrapped-native/quote pool (optional) with the most liquidity.
func (f *V3Factory) Build(ctx context.Context, req BuildRequest) (*V3Model, error) {
	params := req.Params
	native := params.WrappedNative

	var keys []provider.V3PoolKey
	for _, usd := range params.USDGasTokens {
		for _, fee := range model.FeeAmounts {
			keys = append(keys, provider.V3PoolKey{TokenA: native, TokenB: usd, Fee: fee})
		}
	}
	needQuotePool := !params.IsWrappedNative(req.QuoteToken)
	if needQuotePool {
		for _, fee := range model.FeeAmounts {
			keys = append(keys, provider.V3PoolKey{TokenA: native, TokenB: req.QuoteToken, Fee: fee})
		}
	}

	set, err := f.pools.GetPools(ctx, keys, req.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("load gas pricing pools: %w", err)
	}

	var usdPool, quotePool *model.V3Pool
	for _, pool := range set.Pools() {
		if !model.Involves(pool, native) {
			continue
		}
		other := model.OtherToken(pool, native)
		if isUSDToken(params, other) && (usdPool == nil || pool.Liquidity.Cmp(usdPool.Liquidity) > 0) {
			usdPool = &pool
		}
		if needQuotePool && other.Equals(req.QuoteToken) && (quotePool == nil || pool.Liquidity.Cmp(quotePool.Liquidity) > 0) {
			quotePool = &pool
		}
	}
	if usdPool == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoUSDToken, params.Name)
	}
	if needQuotePool && quotePool == nil {
		f.logger.Info("no native pool for quote token, gas costs in quote token will be zero",
			zap.String("quote_token", req.QuoteToken.String()),
		)
	}

	m := &V3Model{
		params:     params,
		gasPrice:   req.GasPriceWei,
		quoteToken: req.QuoteToken,
		tradeType:  req.TradeType,
		usdPool:    *usdPool,
		logger:     f.logger,
	}
	if quotePool != nil {
		m.quotePool = *quotePool
	}
	if params.HasL1Fee() && f.l1 != nil {
		data, err := f.l1.L1GasData(ctx, params, req.BlockNumber)
		if err != nil {
			return nil, fmt.Errorf("load l1 gas data: %w", err)
		}
		encoder, err := calldata.NewEncoder(params)
		if err != nil {
			return nil, err
		}
		m.l1Data = data
		m.encoder = encoder
	}
	return m, nil
}

func isUSDToken(params chain.Params, token model.Token) bool {
	for _, usd := range params.USDGasTokens {
		if usd.Equals(token) {
			return true
		}
	}
	return false
}

// V3Model prices V3 routes by hops and initialized ticks crossed.
type V3Model struct {
	params     chain.Params
	gasPrice   *big.Int
	quoteToken model.Token
	tradeType  model.TradeType
	usdPool    model.V3Pool
	quotePool  converter
	l1Data     L1GasData
	encoder    *calldata.Encoder
	logger     *zap.Logger
}

// Estimate implements model.GasEstimator.
func (m *V3Model) Estimate(route *model.RouteWithValidQuote) (model.GasCost, error) {
	v3, ok := route.Route.(model.V3Route)
	if !ok {
		return model.GasCost{}, fmt.Errorf("v3 gas model cannot price %T", route.Route)
	}
	var ticks int64
	for _, crossed := range route.InitializedTicksCrossedList {
		ticks += int64(crossed)
	}
	if ticks < 1 {
		ticks = 1
	}
	gasUse := V3BaseSwapCost + V3CostPerHop*int64(len(v3.Pools)) + V3CostPerInitTick*ticks
	costWei := gasCostWei(m.gasPrice, gasUse)
	return model.GasCost{
		GasEstimate:    big.NewInt(gasUse),
		GasCostInToken: m.inQuote(costWei),
		GasCostInUSD:   m.usdPool.ConvertAtMidPrice(m.params.WrappedNative, costWei),
		USDToken:       model.OtherToken(m.usdPool, m.params.WrappedNative),
	}, nil
}

func (m *V3Model) inQuote(nativeAmount *big.Int) *big.Int {
	return inQuote(m.params, m.quoteToken, m.quotePool, nativeAmount)
}

// L1 fees are estimated on call data built with fixed options so that the
// size does not depend on the caller.
var l1EstimateOptions = calldata.SwapOptions{
	Recipient:   common.HexToAddress("0x0000000000000000000000000000000000000001"),
	SlippageBps: 5,
	Deadline:    100,
}

// CalculateL1GasFees prices publishing the split's call data on L1.
func (m *V3Model) CalculateL1GasFees(legs []*model.RouteWithValidQuote) (model.L1GasFees, error) {
	if m.l1Data == nil || m.encoder == nil {
		return model.L1GasFees{}, fmt.Errorf("no l1 gas data for %s", m.params.Name)
	}
	method, err := m.encoder.Encode(m.tradeType, legs, l1EstimateOptions)
	if err != nil {
		return model.L1GasFees{}, fmt.Errorf("encode for l1 fee: %w", err)
	}
	gasUsed, feeWei := m.l1Data.L1Fee(method.Calldata)
	return model.L1GasFees{
		GasUsedL1:           gasUsed,
		GasCostL1QuoteToken: m.inQuote(feeWei),
		GasCostL1USD:        m.usdPool.ConvertAtMidPrice(m.params.WrappedNative, feeWei),
		USDToken:            model.OtherToken(m.usdPool, m.params.WrappedNative),
	}, nil
}

var _ model.GasEstimator = (*V3Model)(nil)
