package candidates

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
)

// V3PoolLoader loads V3 pool state at a block.
type V3PoolLoader interface {
	GetPools(ctx context.Context, keys []provider.V3PoolKey, blockNumber uint64) (*provider.V3PoolSet, error)
}

// V2PairLoader loads V2 pair reserves at a block.
type V2PairLoader interface {
	GetPairs(ctx context.Context, keys []provider.V2PairKey, blockNumber uint64) (*provider.V2PairSet, error)
}

// Request is one protocol's selection for a token pair.
type Request struct {
	TokenIn     model.Token
	TokenOut    model.Token
	TradeType   model.TradeType
	Protocol    model.Protocol
	BlockNumber uint64
	Limits      PoolSelectionLimits
}

// Result holds the priced candidate pools. Exactly one of V3Pools and
// V2Pairs is set, matching the request protocol.
type Result struct {
	Protocol  model.Protocol
	V3Pools   *provider.V3PoolSet
	V2Pairs   *provider.V2PairSet
	Tokens    provider.TokenAccessor
	Selection model.CandidatePoolsBySelectionCriteria
	// Stale is set when the pool list came from a cache or snapshot.
	Stale bool
}

// Pools returns the loaded candidates as generic pools.
func (r Result) Pools() []model.Pool {
	var out []model.Pool
	if r.V3Pools != nil {
		for _, pool := range r.V3Pools.Pools() {
			out = append(out, pool)
		}
	}
	if r.V2Pairs != nil {
		for _, pair := range r.V2Pairs.Pairs() {
			out = append(out, pair)
		}
	}
	return out
}

// Selector reduces a chain's pool universe to candidate pools for one
// protocol.
type Selector struct {
	params    chain.Params
	source    provider.PoolDataSource
	tokens    provider.TokenResolver
	blocklist provider.Blocklist
	addresses *dex.AddressCache
	v3Pools   V3PoolLoader
	v2Pairs   V2PairLoader
	logger    *zap.Logger
}

// Config wires a Selector. V3Pools and V2Pairs may be nil when the protocol
// is not routed.
type Config struct {
	Params    chain.Params
	Source    provider.PoolDataSource
	Tokens    provider.TokenResolver
	Blocklist provider.Blocklist
	Addresses *dex.AddressCache
	V3Pools   V3PoolLoader
	V2Pairs   V2PairLoader
	Logger    *zap.Logger
}

func NewSelector(cfg Config) *Selector {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	addresses := cfg.Addresses
	if addresses == nil {
		addresses = dex.NewAddressCache()
	}
	return &Selector{
		params:    cfg.Params,
		source:    cfg.Source,
		tokens:    cfg.Tokens,
		blocklist: cfg.Blocklist,
		addresses: addresses,
		v3Pools:   cfg.V3Pools,
		v2Pairs:   cfg.V2Pairs,
		logger:    logger,
	}
}

// Select lists, ranks and buckets the pools, resolves their tokens and loads
// their on-chain state at the request block.
func (s *Selector) Select(ctx context.Context, req Request) (Result, error) {
	if !s.params.Supports(req.Protocol) {
		return Result{}, fmt.Errorf("%w: %s on %s", chain.ErrUnsupportedChain, req.Protocol, s.params.Name)
	}
	list, err := s.source.ListPools(ctx, provider.PoolQuery{
		ChainID:     s.params.ChainID,
		Protocol:    req.Protocol,
		TokenIn:     req.TokenIn.Key(),
		TokenOut:    req.TokenOut.Key(),
		BlockNumber: req.BlockNumber,
	})
	if err != nil {
		return Result{}, fmt.Errorf("list %s pools: %w", req.Protocol, err)
	}
	if list.Stale {
		s.logger.Warn("routing with stale pool list",
			zap.String("protocol", string(req.Protocol)),
			zap.String("source", list.Source),
			zap.Time("fetched_at", list.FetchedAt),
		)
	}

	sorted := s.rankable(list.Pools, req.Protocol)
	s.logger.Debug("filtered pool list",
		zap.String("protocol", string(req.Protocol)),
		zap.Int("listed", len(list.Pools)),
		zap.Int("kept", len(sorted)),
	)

	selections := selectBuckets(selectionInput{
		params:    s.params,
		addresses: s.addresses,
		protocol:  req.Protocol,
		tradeType: req.TradeType,
		tokenIn:   req.TokenIn,
		tokenOut:  req.TokenOut,
		limits:    req.Limits,
	}, sorted)
	candidates := union(selections)

	addresses := make([]string, 0, 2*len(candidates))
	for _, pool := range candidates {
		addresses = append(addresses, pool.Token0, pool.Token1)
	}
	tokens, err := s.tokens.Resolve(ctx, addresses, req.BlockNumber)
	if err != nil {
		return Result{}, fmt.Errorf("resolve candidate tokens: %w", err)
	}
	s.logger.Info("candidate pools",
		zap.String("protocol", string(req.Protocol)),
		zap.Int("pools", len(candidates)),
		zap.Int("tokens", len(tokens.All())),
	)
	for _, bucket := range selections.Buckets() {
		s.logger.Debug("selection bucket",
			zap.String("protocol", string(req.Protocol)),
			zap.String("bucket", bucket.Name),
			zap.Strings("pools", describe(bucket.Pools, tokens)),
		)
	}

	result := Result{
		Protocol:  req.Protocol,
		Tokens:    tokens,
		Selection: model.CandidatePoolsBySelectionCriteria{Protocol: req.Protocol, Selections: selections},
		Stale:     list.Stale,
	}
	switch req.Protocol {
	case model.ProtocolV3:
		result.V3Pools, err = s.loadV3(ctx, candidates, tokens, req.BlockNumber)
	case model.ProtocolV2:
		result.V2Pairs, err = s.loadV2(ctx, candidates, tokens, req.BlockNumber)
	}
	if err != nil {
		return Result{}, err
	}
	return result, nil
}

// rankable normalizes ids, drops blocked and foreign-protocol pools and
// sorts by liquidity proxy.
func (s *Selector) rankable(pools []model.SubgraphPool, protocol model.Protocol) []model.SubgraphPool {
	out := make([]model.SubgraphPool, 0, len(pools))
	for _, pool := range pools {
		pool = pool.Normalize()
		if pool.Protocol == "" {
			pool.Protocol = protocol
		}
		if pool.Protocol != protocol {
			continue
		}
		if s.blocklist.Blocked(pool.Token0) || s.blocklist.Blocked(pool.Token1) {
			continue
		}
		out = append(out, pool)
	}
	sortByRank(out)
	return out
}

func (s *Selector) loadV3(ctx context.Context, candidates []model.SubgraphPool, tokens provider.TokenAccessor, blockNumber uint64) (*provider.V3PoolSet, error) {
	if s.v3Pools == nil {
		return nil, fmt.Errorf("%w: no v3 pool provider", chain.ErrUnsupportedChain)
	}
	keys := make([]provider.V3PoolKey, 0, len(candidates))
	for _, pool := range candidates {
		fee, err := model.ParseFeeAmount(pool.FeeTier)
		if err != nil {
			s.logger.Info("dropping candidate pool with unsupported fee tier",
				zap.String("pool", pool.ID),
				zap.String("fee_tier", pool.FeeTier),
			)
			continue
		}
		tokenA, tokenB, ok := s.tokenPair(pool, tokens)
		if !ok {
			continue
		}
		keys = append(keys, provider.V3PoolKey{TokenA: tokenA, TokenB: tokenB, Fee: fee})
	}
	set, err := s.v3Pools.GetPools(ctx, keys, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("load v3 pools: %w", err)
	}
	return set, nil
}

func (s *Selector) loadV2(ctx context.Context, candidates []model.SubgraphPool, tokens provider.TokenAccessor, blockNumber uint64) (*provider.V2PairSet, error) {
	if s.v2Pairs == nil {
		return nil, fmt.Errorf("%w: no v2 pair provider", chain.ErrUnsupportedChain)
	}
	keys := make([]provider.V2PairKey, 0, len(candidates))
	for _, pool := range candidates {
		tokenA, tokenB, ok := s.tokenPair(pool, tokens)
		if !ok {
			continue
		}
		keys = append(keys, provider.V2PairKey{TokenA: tokenA, TokenB: tokenB})
	}
	set, err := s.v2Pairs.GetPairs(ctx, keys, blockNumber)
	if err != nil {
		return nil, fmt.Errorf("load v2 pairs: %w", err)
	}
	return set, nil
}

func (s *Selector) tokenPair(pool model.SubgraphPool, tokens provider.TokenAccessor) (model.Token, model.Token, bool) {
	tokenA, okA := tokens.GetTokenByAddress(pool.Token0)
	tokenB, okB := tokens.GetTokenByAddress(pool.Token1)
	if !okA || !okB {
		missing := pool.Token0
		if okA {
			missing = pool.Token1
		}
		s.logger.Info("dropping candidate pool with unresolved token",
			zap.String("pool", pool.ID),
			zap.String("token", missing),
		)
		return model.Token{}, model.Token{}, false
	}
	return tokenA, tokenB, true
}

func describe(pools []model.SubgraphPool, tokens provider.TokenAccessor) []string {
	label := func(id string) string {
		if token, ok := tokens.GetTokenByAddress(id); ok && token.Symbol != "" {
			return token.Symbol
		}
		return id
	}
	out := make([]string, len(pools))
	for i, pool := range pools {
		out[i] = label(pool.Token0) + "/" + label(pool.Token1)
		if pool.FeeTier != "" {
			out[i] += "/" + pool.FeeTier
		}
	}
	return out
}
