package provider

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swaprouter/internal/model"
)

// PoolWriter is the write side of the postgres pool tables.
type PoolWriter interface {
	UpsertPools(ctx context.Context, pools []model.PoolRecord) error
	UpsertPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error
	UpsertV2Pairs(ctx context.Context, pairs []model.V2PairRecord) error
	SaveSyncState(ctx context.Context, name string, at time.Time) error
}

// SyncResult counts what one sync wrote.
type SyncResult struct {
	Protocol model.Protocol
	Written  int
	Skipped  int
}

// SyncPools copies one protocol's pool list from source into store and
// records the sync time. Pools with unsupported fee tiers are skipped.
func SyncPools(ctx context.Context, source PoolDataSource, store PoolWriter, chainID model.ChainID, protocol model.Protocol, now time.Time, logger *zap.Logger) (SyncResult, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	list, err := source.ListPools(ctx, PoolQuery{ChainID: chainID, Protocol: protocol})
	if err != nil {
		return SyncResult{}, fmt.Errorf("list %s pools: %w", protocol, err)
	}
	if list.Scoped {
		return SyncResult{}, fmt.Errorf("source %s returns token-scoped lists and cannot be synced", list.Source)
	}

	result := SyncResult{Protocol: protocol}
	now = now.UTC()
	switch protocol {
	case model.ProtocolV3:
		records := make([]model.PoolRecord, 0, len(list.Pools))
		snapshots := make([]model.PoolSnapshot, 0, len(list.Pools))
		for _, pool := range list.Pools {
			pool = pool.Normalize()
			fee, err := model.ParseFeeAmount(pool.FeeTier)
			if err != nil {
				logger.Debug("skipping pool", zap.String("pool", pool.ID), zap.Error(err))
				result.Skipped++
				continue
			}
			records = append(records, model.PoolRecord{
				ChainID:     uint64(chainID),
				Address:     pool.ID,
				Token0:      pool.Token0,
				Token1:      pool.Token1,
				Fee:         uint32(fee),
				TickSpacing: fee.TickSpacing(),
			})
			snapshots = append(snapshots, model.PoolSnapshot{
				ChainID:     uint64(chainID),
				PoolAddress: pool.ID,
				Liquidity:   orDefault(pool.Liquidity, "0"),
				TVLETH:      formatFloat(pool.TVLETH),
				TVLUSD:      formatFloat(pool.TVLUSD),
				SyncedAt:    now,
			})
		}
		if err := store.UpsertPools(ctx, records); err != nil {
			return SyncResult{}, fmt.Errorf("upsert pools: %w", err)
		}
		if err := store.UpsertPoolSnapshots(ctx, snapshots); err != nil {
			return SyncResult{}, fmt.Errorf("upsert pool snapshots: %w", err)
		}
		result.Written = len(records)
	case model.ProtocolV2:
		pairs := make([]model.V2PairRecord, 0, len(list.Pools))
		for _, pool := range list.Pools {
			pool = pool.Normalize()
			pairs = append(pairs, model.V2PairRecord{
				ChainID:     uint64(chainID),
				PairAddress: pool.ID,
				Token0:      pool.Token0,
				Token1:      pool.Token1,
				Supply:      formatFloat(pool.Supply),
				ReserveETH:  formatFloat(pool.Reserve),
				SyncedAt:    now,
			})
		}
		if err := store.UpsertV2Pairs(ctx, pairs); err != nil {
			return SyncResult{}, fmt.Errorf("upsert v2 pairs: %w", err)
		}
		result.Written = len(pairs)
	default:
		return SyncResult{}, fmt.Errorf("unsupported protocol %q", protocol)
	}

	if err := store.SaveSyncState(ctx, SyncStateName(chainID, protocol), now); err != nil {
		return SyncResult{}, fmt.Errorf("save sync state: %w", err)
	}
	logger.Info("pools synced",
		zap.String("protocol", string(protocol)),
		zap.String("source", list.Source),
		zap.Int("written", result.Written),
		zap.Int("skipped", result.Skipped),
	)
	return result, nil
}

func formatFloat(value float64) *string {
	if value == 0 {
		return nil
	}
	s := decimal.NewFromFloat(value).String()
	return &s
}

func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
