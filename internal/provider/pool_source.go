package provider

import (
	"context"
	"time"

	"swaprouter/internal/model"
)

// PoolQuery scopes a pool listing. TokenIn and TokenOut are hints; sources
// that list the whole universe ignore them.
type PoolQuery struct {
	ChainID     model.ChainID
	Protocol    model.Protocol
	TokenIn     string
	TokenOut    string
	BlockNumber uint64
}

// PoolList is a ranked pool universe. Stale marks a list served from a
// cache or snapshot after the live sources failed. Scoped lists depend on
// the query tokens and must not be shared between queries.
type PoolList struct {
	Pools     []model.SubgraphPool
	Stale     bool
	Scoped    bool
	Source    string
	FetchedAt time.Time
}

// PoolDataSource supplies ranking records for one protocol on one chain.
type PoolDataSource interface {
	ListPools(ctx context.Context, query PoolQuery) (PoolList, error)
}
