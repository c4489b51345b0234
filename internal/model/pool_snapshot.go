package model

import "time"

// PoolSnapshot is the ranking data of a V3 pool as of its last sync.
type PoolSnapshot struct {
	ChainID     uint64
	PoolAddress string
	Liquidity   string
	TVLETH      *string
	TVLUSD      *string
	SyncedAt    time.Time
}

// V2PairRecord is a V2 pair row with its ranking data.
type V2PairRecord struct {
	ChainID     uint64
	PairAddress string
	Token0      string
	Token1      string
	Supply      *string
	ReserveETH  *string
	SyncedAt    time.Time
}
