package provider

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

type cachedPoolList struct {
	list     PoolList
	cachedAt time.Time
}

// FallbackPoolSource tries its sources in order and caches the first
// non-empty list for ttl. When every source fails it serves the expired
// cache entry or the persisted snapshot, flagged stale.
type FallbackPoolSource struct {
	sources   []PoolDataSource
	ttl       time.Duration
	snapshots SnapshotStore
	now       func() time.Time
	logger    *zap.Logger

	mu    sync.RWMutex
	cache map[string]cachedPoolList
}

// NewFallbackPoolSource builds the chain. snapshots may be nil.
func NewFallbackPoolSource(sources []PoolDataSource, ttl time.Duration, snapshots SnapshotStore, logger *zap.Logger) *FallbackPoolSource {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FallbackPoolSource{
		sources:   sources,
		ttl:       ttl,
		snapshots: snapshots,
		now:       time.Now,
		logger:    logger,
		cache:     make(map[string]cachedPoolList),
	}
}

func (s *FallbackPoolSource) ListPools(ctx context.Context, query PoolQuery) (PoolList, error) {
	key := snapshotKey(query.ChainID, query.Protocol)

	s.mu.RLock()
	cached, hasCached := s.cache[key]
	s.mu.RUnlock()
	if hasCached && s.now().Sub(cached.cachedAt) < s.ttl {
		return cached.list, nil
	}

	var (
		errs  []error
		empty *PoolList
	)
	for i, source := range s.sources {
		list, err := source.ListPools(ctx, query)
		if err != nil {
			s.logger.Warn("pool source failed",
				zap.Int("source", i),
				zap.String("protocol", string(query.Protocol)),
				zap.Error(err),
			)
			errs = append(errs, err)
			continue
		}
		if len(list.Pools) == 0 {
			if empty == nil {
				empty = &list
			}
			continue
		}
		if !list.Scoped && !list.Stale {
			s.remember(key, query, list)
		}
		return list, nil
	}

	if hasCached {
		s.logger.Warn("serving expired pool list", zap.String("key", key), zap.Time("cached_at", cached.cachedAt))
		stale := cached.list
		stale.Stale = true
		return stale, nil
	}
	if s.snapshots != nil {
		snapshot, ok, err := s.snapshots.Load(query.ChainID, query.Protocol)
		if err != nil {
			s.logger.Warn("load pool snapshot failed", zap.String("key", key), zap.Error(err))
		} else if ok {
			s.logger.Warn("serving pool snapshot", zap.String("key", key), zap.Time("fetched_at", snapshot.FetchedAt))
			return PoolList{Pools: snapshot.Pools, Stale: true, Source: snapshot.Source, FetchedAt: snapshot.FetchedAt}, nil
		}
	}
	if empty != nil {
		return *empty, nil
	}
	if len(errs) == 0 {
		return PoolList{}, fmt.Errorf("no pool sources configured")
	}
	return PoolList{}, fmt.Errorf("all pool sources failed: %w", errors.Join(errs...))
}

func (s *FallbackPoolSource) remember(key string, query PoolQuery, list PoolList) {
	s.mu.Lock()
	s.cache[key] = cachedPoolList{list: list, cachedAt: s.now()}
	s.mu.Unlock()

	if s.snapshots == nil {
		return
	}
	err := s.snapshots.Save(PoolListSnapshot{
		ChainID:   query.ChainID,
		Protocol:  query.Protocol,
		Source:    list.Source,
		FetchedAt: list.FetchedAt,
		Pools:     list.Pools,
	})
	if err != nil {
		s.logger.Warn("save pool snapshot failed", zap.String("key", key), zap.Error(err))
	}
}
