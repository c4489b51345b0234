package gasmodel

import (
	"context"
	"fmt"
	"math/big"

	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
)

// V2Factory builds V2 gas models from V2 pairs.
type V2Factory struct {
	pairs  V2PairLoader
	logger *zap.Logger
}

func NewV2Factory(pairs V2PairLoader, logger *zap.Logger) *V2Factory {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V2Factory{pairs: pairs, logger: logger}
}

// Build picks the wrapped-native/USD pair with the deepest native reserve
// and the wrapped-native/quote pair when the quote token is not native.
func (f *V2Factory) Build(ctx context.Context, req BuildRequest) (*V2Model, error) {
	params := req.Params
	native := params.WrappedNative

	keys := make([]provider.V2PairKey, 0, len(params.USDGasTokens)+1)
	for _, usd := range params.USDGasTokens {
		keys = append(keys, provider.V2PairKey{TokenA: native, TokenB: usd})
	}
	needQuotePair := !params.IsWrappedNative(req.QuoteToken)
	if needQuotePair {
		keys = append(keys, provider.V2PairKey{TokenA: native, TokenB: req.QuoteToken})
	}

	set, err := f.pairs.GetPairs(ctx, keys, req.BlockNumber)
	if err != nil {
		return nil, fmt.Errorf("load gas pricing pairs: %w", err)
	}

	var usdPair, quotePair *model.V2Pair
	for _, pair := range set.Pairs() {
		if !model.Involves(pair, native) {
			continue
		}
		other := model.OtherToken(pair, native)
		if isUSDToken(params, other) && (usdPair == nil || pair.ReserveOf(native).Cmp(usdPair.ReserveOf(native)) > 0) {
			usdPair = &pair
		}
		if needQuotePair && other.Equals(req.QuoteToken) {
			quotePair = &pair
		}
	}
	if usdPair == nil {
		return nil, fmt.Errorf("%w: %s", ErrNoUSDToken, params.Name)
	}

	m := &V2Model{
		params:     params,
		gasPrice:   req.GasPriceWei,
		quoteToken: req.QuoteToken,
		usdPair:    *usdPair,
	}
	if quotePair != nil {
		m.quotePair = *quotePair
	} else if needQuotePair {
		f.logger.Info("no native pair for quote token, gas costs in quote token will be zero",
			zap.String("quote_token", req.QuoteToken.String()),
		)
	}
	return m, nil
}

// V2Model prices V2 routes by hop count.
type V2Model struct {
	params     chain.Params
	gasPrice   *big.Int
	quoteToken model.Token
	usdPair    model.V2Pair
	quotePair  converter
}

// Estimate implements model.GasEstimator.
func (m *V2Model) Estimate(route *model.RouteWithValidQuote) (model.GasCost, error) {
	v2, ok := route.Route.(model.V2Route)
	if !ok {
		return model.GasCost{}, fmt.Errorf("v2 gas model cannot price %T", route.Route)
	}
	gasUse := V2BaseSwapCost + V2CostPerExtraHop*int64(len(v2.Pairs)-1)
	costWei := gasCostWei(m.gasPrice, gasUse)
	return model.GasCost{
		GasEstimate:    big.NewInt(gasUse),
		GasCostInToken: inQuote(m.params, m.quoteToken, m.quotePair, costWei),
		GasCostInUSD:   m.usdPair.ConvertAtMidPrice(m.params.WrappedNative, costWei),
		USDToken:       model.OtherToken(m.usdPair, m.params.WrappedNative),
	}, nil
}

var _ model.GasEstimator = (*V2Model)(nil)
