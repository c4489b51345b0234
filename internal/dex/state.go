package dex

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaprouter/internal/chain"
)

// V3State is the slot0 and liquidity of a V3 pool at one block.
type V3State struct {
	SqrtPriceX96 *big.Int
	Tick         int32
	Liquidity    *big.Int
}

// V2Reserves are the reserves of a V2 pair at one block.
type V2Reserves struct {
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// FetchV3States reads slot0 and liquidity of each pool. Pools where either
// call fails, or that were never initialized, are left out.
func FetchV3States(ctx context.Context, caller chain.BatchCaller, pools []common.Address, blockNumber uint64, logger *zap.Logger) (map[common.Address]V3State, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[common.Address]V3State, len(pools))
	if len(pools) == 0 {
		return out, nil
	}

	poolABI, err := V3PoolABI()
	if err != nil {
		return nil, fmt.Errorf("parse pool abi: %w", err)
	}
	slot0Batch, err := chain.CallSameFunctionOnMultipleContracts(ctx, caller, pools, poolABI, "slot0", nil, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("slot0 batch: %w", err)
	}
	liquidityBatch, err := chain.CallSameFunctionOnMultipleContracts(ctx, caller, pools, poolABI, "liquidity", nil, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("liquidity batch: %w", err)
	}

	for i, pool := range pools {
		slot0 := slot0Batch.Results[i]
		liquidity := liquidityBatch.Results[i]
		if !slot0.Success || !liquidity.Success || len(slot0.Values) < 2 {
			logger.Debug("pool state unavailable",
				zap.String("pool", pool.Hex()),
				zap.String("slot0", slot0.Reason),
				zap.String("liquidity", liquidity.Reason),
			)
			continue
		}
		sqrtPrice, err := asBigInt(slot0.Values[0])
		if err != nil || sqrtPrice.Sign() == 0 {
			logger.Debug("pool not initialized", zap.String("pool", pool.Hex()))
			continue
		}
		tickRaw, err := asBigInt(slot0.Values[1])
		if err != nil {
			continue
		}
		tick, err := int24FromBig(tickRaw)
		if err != nil {
			continue
		}
		liq, err := asBigInt(liquidity.Values[0])
		if err != nil {
			continue
		}
		out[pool] = V3State{SqrtPriceX96: sqrtPrice, Tick: tick, Liquidity: liq}
	}
	return out, nil
}

// FetchV2Reserves reads getReserves of each pair. Pairs whose call fails are
// left out.
func FetchV2Reserves(ctx context.Context, caller chain.BatchCaller, pairs []common.Address, blockNumber uint64, logger *zap.Logger) (map[common.Address]V2Reserves, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	out := make(map[common.Address]V2Reserves, len(pairs))
	if len(pairs) == 0 {
		return out, nil
	}

	pairABI, err := V2PairABI()
	if err != nil {
		return nil, fmt.Errorf("parse pair abi: %w", err)
	}
	batch, err := chain.CallSameFunctionOnMultipleContracts(ctx, caller, pairs, pairABI, "getReserves", nil, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("reserves batch: %w", err)
	}

	for i, pair := range pairs {
		res := batch.Results[i]
		if !res.Success || len(res.Values) < 2 {
			logger.Debug("pair reserves unavailable", zap.String("pair", pair.Hex()), zap.String("reason", res.Reason))
			continue
		}
		reserve0, err0 := asBigInt(res.Values[0])
		reserve1, err1 := asBigInt(res.Values[1])
		if err0 != nil || err1 != nil {
			continue
		}
		out[pair] = V2Reserves{Reserve0: reserve0, Reserve1: reserve1}
	}
	return out, nil
}
