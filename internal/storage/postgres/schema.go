package postgres

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pools (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	fee INTEGER NOT NULL,
	tick_spacing INTEGER NOT NULL DEFAULT 0,
	first_seen_block BIGINT NOT NULL DEFAULT 0,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS pool_snapshots (
	chain_id BIGINT NOT NULL,
	pool_address TEXT NOT NULL,
	liquidity TEXT NOT NULL DEFAULT '0',
	tvl_eth NUMERIC,
	tvl_usd NUMERIC,
	synced_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pool_address)
);

CREATE TABLE IF NOT EXISTS v2_pairs (
	chain_id BIGINT NOT NULL,
	pair_address TEXT NOT NULL,
	token0 TEXT NOT NULL,
	token1 TEXT NOT NULL,
	supply NUMERIC,
	reserve_eth NUMERIC,
	synced_at TIMESTAMPTZ NOT NULL,
	PRIMARY KEY (chain_id, pair_address)
);

CREATE TABLE IF NOT EXISTS pool_sync_state (
	name TEXT PRIMARY KEY,
	last_synced_ts BIGINT NOT NULL,
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);
`
