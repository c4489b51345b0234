package provider

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"swaprouter/internal/model"
)

// PoolStore is the read side of the postgres pool tables.
type PoolStore interface {
	ListV3Pools(ctx context.Context, chainID uint64) ([]model.SubgraphPool, error)
	ListV2Pairs(ctx context.Context, chainID uint64) ([]model.SubgraphPool, error)
	LoadSyncState(ctx context.Context, name string) (time.Time, bool, error)
}

// SyncStateName keys the last sync time of one pool list.
func SyncStateName(chainID model.ChainID, protocol model.Protocol) string {
	return fmt.Sprintf("pools/%d/%s", chainID, protocol)
}

// PostgresPoolSource lists pools written by `pools sync`. Lists older than
// maxAge are returned but flagged stale.
type PostgresPoolSource struct {
	store  PoolStore
	maxAge time.Duration
	now    func() time.Time
	logger *zap.Logger
}

func NewPostgresPoolSource(store PoolStore, maxAge time.Duration, logger *zap.Logger) *PostgresPoolSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostgresPoolSource{store: store, maxAge: maxAge, now: time.Now, logger: logger}
}

func (s *PostgresPoolSource) ListPools(ctx context.Context, query PoolQuery) (PoolList, error) {
	var (
		pools []model.SubgraphPool
		err   error
	)
	switch query.Protocol {
	case model.ProtocolV3:
		pools, err = s.store.ListV3Pools(ctx, uint64(query.ChainID))
	case model.ProtocolV2:
		pools, err = s.store.ListV2Pairs(ctx, uint64(query.ChainID))
	default:
		return PoolList{}, fmt.Errorf("unsupported protocol %q", query.Protocol)
	}
	if err != nil {
		return PoolList{}, err
	}

	syncedAt, ok, err := s.store.LoadSyncState(ctx, SyncStateName(query.ChainID, query.Protocol))
	if err != nil {
		return PoolList{}, fmt.Errorf("load sync state: %w", err)
	}
	stale := !ok
	if ok && s.maxAge > 0 && s.now().Sub(syncedAt) > s.maxAge {
		stale = true
	}
	if stale {
		s.logger.Warn("postgres pool list is stale",
			zap.String("protocol", string(query.Protocol)),
			zap.Time("synced_at", syncedAt),
		)
	}
	return PoolList{Pools: pools, Stale: stale, Source: "postgres", FetchedAt: syncedAt}, nil
}
