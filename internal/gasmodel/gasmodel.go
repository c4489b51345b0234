package gasmodel

import (
	"context"
	"errors"
	"math/big"

	"swaprouter/internal/chain"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
)

// ErrNoUSDToken is returned when no wrapped-native/USD pool exists to price
// gas in USD.
var ErrNoUSDToken = errors.New("no usd pool for gas pricing")

// Heuristic gas costs.
const (
	V3BaseSwapCost    = 2_000
	V3CostPerHop      = 80_000
	V3CostPerInitTick = 31_000

	V2BaseSwapCost    = 115_000
	V2CostPerExtraHop = 20_000
)

// V3PoolLoader loads V3 pool state at a block.
type V3PoolLoader interface {
	GetPools(ctx context.Context, keys []provider.V3PoolKey, blockNumber uint64) (*provider.V3PoolSet, error)
}

// V2PairLoader loads V2 pair reserves at a block.
type V2PairLoader interface {
	GetPairs(ctx context.Context, keys []provider.V2PairKey, blockNumber uint64) (*provider.V2PairSet, error)
}

// BuildRequest is the pricing context of one routing call.
type BuildRequest struct {
	Params      chain.Params
	GasPriceWei *big.Int
	QuoteToken  model.Token
	TradeType   model.TradeType
	BlockNumber uint64
}

// converter values an amount of the wrapped native token in another token.
type converter interface {
	ConvertAtMidPrice(from model.Token, amount *big.Int) *big.Int
}

func gasCostWei(gasPrice *big.Int, gasUse int64) *big.Int {
	if gasPrice == nil {
		return new(big.Int)
	}
	return new(big.Int).Mul(gasPrice, big.NewInt(gasUse))
}

// inQuote converts a native amount to the quote token. Without a pool the
// cost is zero.
func inQuote(params chain.Params, quoteToken model.Token, pool converter, nativeAmount *big.Int) *big.Int {
	if params.IsWrappedNative(quoteToken) {
		return new(big.Int).Set(nativeAmount)
	}
	if pool == nil {
		return new(big.Int)
	}
	return pool.ConvertAtMidPrice(params.WrappedNative, nativeAmount)
}
