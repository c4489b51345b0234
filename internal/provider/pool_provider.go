package provider

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

// V3PoolKey names a V3 pool by its tokens and fee tier.
type V3PoolKey struct {
	TokenA model.Token
	TokenB model.Token
	Fee    model.FeeAmount
}

// V3PoolSet holds the pools loaded for one routing call.
type V3PoolSet struct {
	pools     []model.V3Pool
	byAddress map[common.Address]model.V3Pool
}

func NewV3PoolSet(pools []model.V3Pool) *V3PoolSet {
	set := &V3PoolSet{pools: pools, byAddress: make(map[common.Address]model.V3Pool, len(pools))}
	for _, pool := range pools {
		set.byAddress[pool.Address] = pool
	}
	return set
}

func (s *V3PoolSet) GetPoolByAddress(address common.Address) (model.V3Pool, bool) {
	pool, ok := s.byAddress[address]
	return pool, ok
}

// Pools returns the loaded pools in request order.
func (s *V3PoolSet) Pools() []model.V3Pool {
	return s.pools
}

// V3PoolProvider loads slot0 and liquidity for V3 pools at a pinned block.
type V3PoolProvider struct {
	caller    chain.BatchCaller
	params    chain.Params
	addresses *dex.AddressCache
	retry     chain.RetryPolicy
	logger    *zap.Logger
}

func NewV3PoolProvider(caller chain.BatchCaller, params chain.Params, addresses *dex.AddressCache, logger *zap.Logger) *V3PoolProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addresses == nil {
		addresses = dex.NewAddressCache()
	}
	return &V3PoolProvider{
		caller:    caller,
		params:    params,
		addresses: addresses,
		retry:     chain.DefaultRetryPolicy,
		logger:    logger,
	}
}

// GetPools dedups keys by address and drops pools whose state could not be
// read.
func (p *V3PoolProvider) GetPools(ctx context.Context, keys []V3PoolKey, blockNumber uint64) (*V3PoolSet, error) {
	type pending struct {
		address common.Address
		token0  model.Token
		token1  model.Token
		fee     model.FeeAmount
	}
	seen := make(map[common.Address]struct{}, len(keys))
	order := make([]pending, 0, len(keys))
	for _, key := range keys {
		if key.TokenA.Equals(key.TokenB) {
			continue
		}
		token0, token1 := model.SortTokens(key.TokenA, key.TokenB)
		address := p.addresses.V3Pool(p.params, token0, token1, key.Fee)
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		order = append(order, pending{address: address, token0: token0, token1: token1, fee: key.Fee})
	}

	addresses := make([]common.Address, len(order))
	for i, item := range order {
		addresses[i] = item.address
	}

	var states map[common.Address]dex.V3State
	err := chain.Retry(ctx, p.retry, func(ctx context.Context) error {
		var err error
		states, err = dex.FetchV3States(ctx, p.caller, addresses, blockNumber, p.logger)
		return err
	}, func(attempt int, err error) {
		p.logger.Warn("v3 pool state fetch failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch v3 pool states: %w", err)
	}

	pools := make([]model.V3Pool, 0, len(states))
	for _, item := range order {
		state, ok := states[item.address]
		if !ok {
			continue
		}
		pools = append(pools, model.V3Pool{
			Address:      item.address,
			Token0:       item.token0,
			Token1:       item.token1,
			Fee:          item.fee,
			SqrtPriceX96: state.SqrtPriceX96,
			Liquidity:    state.Liquidity,
			Tick:         state.Tick,
		})
	}
	p.logger.Debug("loaded v3 pools",
		zap.Int("requested", len(order)),
		zap.Int("loaded", len(pools)),
		zap.Uint64("block", blockNumber),
	)
	return NewV3PoolSet(pools), nil
}

// V2PairKey names a V2 pair by its tokens.
type V2PairKey struct {
	TokenA model.Token
	TokenB model.Token
}

// V2PairSet holds the pairs loaded for one routing call.
type V2PairSet struct {
	pairs     []model.V2Pair
	byAddress map[common.Address]model.V2Pair
}

func NewV2PairSet(pairs []model.V2Pair) *V2PairSet {
	set := &V2PairSet{pairs: pairs, byAddress: make(map[common.Address]model.V2Pair, len(pairs))}
	for _, pair := range pairs {
		set.byAddress[pair.Address] = pair
	}
	return set
}

func (s *V2PairSet) GetPairByAddress(address common.Address) (model.V2Pair, bool) {
	pair, ok := s.byAddress[address]
	return pair, ok
}

func (s *V2PairSet) Pairs() []model.V2Pair {
	return s.pairs
}

// V2PoolProvider loads reserves of V2 pairs at a pinned block.
type V2PoolProvider struct {
	caller    chain.BatchCaller
	params    chain.Params
	addresses *dex.AddressCache
	retry     chain.RetryPolicy
	logger    *zap.Logger
}

func NewV2PoolProvider(caller chain.BatchCaller, params chain.Params, addresses *dex.AddressCache, logger *zap.Logger) *V2PoolProvider {
	if logger == nil {
		logger = zap.NewNop()
	}
	if addresses == nil {
		addresses = dex.NewAddressCache()
	}
	return &V2PoolProvider{
		caller:    caller,
		params:    params,
		addresses: addresses,
		retry:     chain.DefaultRetryPolicy,
		logger:    logger,
	}
}

// GetPairs dedups keys by address. Pairs with a failed reserves call or an
// empty reserve are dropped.
func (p *V2PoolProvider) GetPairs(ctx context.Context, keys []V2PairKey, blockNumber uint64) (*V2PairSet, error) {
	type pending struct {
		address common.Address
		token0  model.Token
		token1  model.Token
	}
	seen := make(map[common.Address]struct{}, len(keys))
	order := make([]pending, 0, len(keys))
	for _, key := range keys {
		if key.TokenA.Equals(key.TokenB) {
			continue
		}
		token0, token1 := model.SortTokens(key.TokenA, key.TokenB)
		address := p.addresses.V2Pair(p.params, token0, token1)
		if _, ok := seen[address]; ok {
			continue
		}
		seen[address] = struct{}{}
		order = append(order, pending{address: address, token0: token0, token1: token1})
	}

	addresses := make([]common.Address, len(order))
	for i, item := range order {
		addresses[i] = item.address
	}

	var reserves map[common.Address]dex.V2Reserves
	err := chain.Retry(ctx, p.retry, func(ctx context.Context) error {
		var err error
		reserves, err = dex.FetchV2Reserves(ctx, p.caller, addresses, blockNumber, p.logger)
		return err
	}, func(attempt int, err error) {
		p.logger.Warn("v2 reserves fetch failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch v2 reserves: %w", err)
	}

	pairs := make([]model.V2Pair, 0, len(reserves))
	for _, item := range order {
		res, ok := reserves[item.address]
		if !ok || res.Reserve0.Sign() == 0 || res.Reserve1.Sign() == 0 {
			continue
		}
		pairs = append(pairs, model.NewV2Pair(item.address, item.token0, item.token1, res.Reserve0, res.Reserve1))
	}
	p.logger.Debug("loaded v2 pairs",
		zap.Int("requested", len(order)),
		zap.Int("loaded", len(pairs)),
		zap.Uint64("block", blockNumber),
	)
	return NewV2PairSet(pairs), nil
}

