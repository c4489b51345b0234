package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"swaprouter/internal/model"
)

// Store provides Postgres persistence for the ranked pool lists.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(ctx context.Context, dsn string) (*Store, error) {
	if dsn == "" {
		return nil, fmt.Errorf("pg dsn is required")
	}
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, err
	}
	return &Store{pool: pool}, nil
}

func (s *Store) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// EnsureSchema creates the pool tables when missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, schemaSQL)
	return err
}

// UpsertPools inserts or updates V3 pool metadata.
func (s *Store) UpsertPools(ctx context.Context, pools []model.PoolRecord) error {
	if len(pools) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pool := range pools {
		batch.Queue(`
			INSERT INTO pools (
				chain_id, pool_address, token0, token1, fee, tick_spacing, first_seen_block, created_at, updated_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7, now(), now())
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				fee = EXCLUDED.fee,
				tick_spacing = EXCLUDED.tick_spacing,
				first_seen_block = LEAST(pools.first_seen_block, EXCLUDED.first_seen_block),
				updated_at = now()
		`,
			int64(pool.ChainID),
			pool.Address,
			pool.Token0,
			pool.Token1,
			pool.Fee,
			pool.TickSpacing,
			int64(pool.FirstSeenBlock),
		)
	}
	return s.execBatch(ctx, batch, len(pools))
}

// UpsertPoolSnapshots stores the latest ranking data of V3 pools.
func (s *Store) UpsertPoolSnapshots(ctx context.Context, snapshots []model.PoolSnapshot) error {
	if len(snapshots) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, snap := range snapshots {
		batch.Queue(`
			INSERT INTO pool_snapshots (
				chain_id, pool_address, liquidity, tvl_eth, tvl_usd, synced_at
			) VALUES ($1, $2, $3, $4, $5, $6)
			ON CONFLICT (chain_id, pool_address)
			DO UPDATE SET
				liquidity = EXCLUDED.liquidity,
				tvl_eth = EXCLUDED.tvl_eth,
				tvl_usd = EXCLUDED.tvl_usd,
				synced_at = EXCLUDED.synced_at
		`,
			int64(snap.ChainID),
			snap.PoolAddress,
			snap.Liquidity,
			snap.TVLETH,
			snap.TVLUSD,
			snap.SyncedAt,
		)
	}
	return s.execBatch(ctx, batch, len(snapshots))
}

// UpsertV2Pairs inserts or updates V2 pairs with their ranking data.
func (s *Store) UpsertV2Pairs(ctx context.Context, pairs []model.V2PairRecord) error {
	if len(pairs) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, pair := range pairs {
		batch.Queue(`
			INSERT INTO v2_pairs (
				chain_id, pair_address, token0, token1, supply, reserve_eth, synced_at
			) VALUES ($1, $2, $3, $4, $5, $6, $7)
			ON CONFLICT (chain_id, pair_address)
			DO UPDATE SET
				token0 = EXCLUDED.token0,
				token1 = EXCLUDED.token1,
				supply = EXCLUDED.supply,
				reserve_eth = EXCLUDED.reserve_eth,
				synced_at = EXCLUDED.synced_at
		`,
			int64(pair.ChainID),
			pair.PairAddress,
			pair.Token0,
			pair.Token1,
			pair.Supply,
			pair.ReserveETH,
			pair.SyncedAt,
		)
	}
	return s.execBatch(ctx, batch, len(pairs))
}

func (s *Store) execBatch(ctx context.Context, batch *pgx.Batch, n int) error {
	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := 0; i < n; i++ {
		if _, err := br.Exec(); err != nil {
			return err
		}
	}
	return nil
}

// ListV3Pools returns every V3 pool of chainID with its latest snapshot.
// Pools that were never snapshotted rank with zero TVL.
func (s *Store) ListV3Pools(ctx context.Context, chainID uint64) ([]model.SubgraphPool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT p.pool_address, p.token0, p.token1, p.fee,
			COALESCE(ps.liquidity, '0'),
			COALESCE(ps.tvl_eth::float8, 0),
			COALESCE(ps.tvl_usd::float8, 0)
		FROM pools p
		LEFT JOIN pool_snapshots ps
			ON ps.chain_id = p.chain_id AND ps.pool_address = p.pool_address
		WHERE p.chain_id = $1
	`, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("query v3 pools: %w", err)
	}
	defer rows.Close()

	var out []model.SubgraphPool
	for rows.Next() {
		var (
			pool model.SubgraphPool
			fee  int64
		)
		if err := rows.Scan(&pool.ID, &pool.Token0, &pool.Token1, &fee, &pool.Liquidity, &pool.TVLETH, &pool.TVLUSD); err != nil {
			return nil, fmt.Errorf("scan v3 pool: %w", err)
		}
		pool.Protocol = model.ProtocolV3
		pool.FeeTier = fmt.Sprintf("%d", fee)
		out = append(out, pool.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate v3 pools: %w", err)
	}
	return out, nil
}

// ListV2Pairs returns every V2 pair of chainID.
func (s *Store) ListV2Pairs(ctx context.Context, chainID uint64) ([]model.SubgraphPool, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT pair_address, token0, token1,
			COALESCE(supply::float8, 0),
			COALESCE(reserve_eth::float8, 0)
		FROM v2_pairs
		WHERE chain_id = $1
	`, int64(chainID))
	if err != nil {
		return nil, fmt.Errorf("query v2 pairs: %w", err)
	}
	defer rows.Close()

	var out []model.SubgraphPool
	for rows.Next() {
		var pool model.SubgraphPool
		if err := rows.Scan(&pool.ID, &pool.Token0, &pool.Token1, &pool.Supply, &pool.Reserve); err != nil {
			return nil, fmt.Errorf("scan v2 pair: %w", err)
		}
		pool.Protocol = model.ProtocolV2
		out = append(out, pool.Normalize())
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate v2 pairs: %w", err)
	}
	return out, nil
}

// LoadSyncState returns when name was last synced.
func (s *Store) LoadSyncState(ctx context.Context, name string) (time.Time, bool, error) {
	if name == "" {
		return time.Time{}, false, fmt.Errorf("state name required")
	}
	var ts int64
	row := s.pool.QueryRow(ctx, `SELECT last_synced_ts FROM pool_sync_state WHERE name=$1`, name)
	if err := row.Scan(&ts); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, false, nil
		}
		return time.Time{}, false, err
	}
	return time.Unix(ts, 0).UTC(), true, nil
}

// SaveSyncState upserts the last sync time for name.
func (s *Store) SaveSyncState(ctx context.Context, name string, at time.Time) error {
	if name == "" {
		return fmt.Errorf("state name required")
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO pool_sync_state (name, last_synced_ts, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (name) DO UPDATE
		SET last_synced_ts = EXCLUDED.last_synced_ts, updated_at = now()
	`, name, at.Unix())
	return err
}
