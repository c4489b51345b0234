package provider

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

// TokenAccessor looks up resolved tokens.
type TokenAccessor interface {
	GetTokenByAddress(address string) (model.Token, bool)
	GetTokenBySymbol(symbol string) (model.Token, bool)
	All() []model.Token
}

// TokenResolver resolves addresses to token metadata. Duplicate and
// malformed addresses are tolerated; unresolvable tokens are absent from the
// accessor rather than an error.
type TokenResolver interface {
	Resolve(ctx context.Context, addresses []string, blockNumber uint64) (TokenAccessor, error)
}

// TokenSet is an immutable TokenAccessor keyed by lower-case address.
type TokenSet struct {
	byAddress map[string]model.Token
}

func NewTokenSet(tokens ...model.Token) TokenSet {
	set := TokenSet{byAddress: make(map[string]model.Token, len(tokens))}
	for _, token := range tokens {
		set.byAddress[token.Key()] = token
	}
	return set
}

func (s TokenSet) GetTokenByAddress(address string) (model.Token, bool) {
	token, ok := s.byAddress[model.NormalizeID(address)]
	return token, ok
}

// GetTokenBySymbol matches case-insensitively. With several matches the
// lowest address wins.
func (s TokenSet) GetTokenBySymbol(symbol string) (model.Token, bool) {
	var (
		found model.Token
		ok    bool
	)
	for _, token := range s.byAddress {
		if !strings.EqualFold(token.Symbol, symbol) {
			continue
		}
		if !ok || token.SortsBefore(found) {
			found, ok = token, true
		}
	}
	return found, ok
}

// All returns the tokens ordered by address.
func (s TokenSet) All() []model.Token {
	out := make([]model.Token, 0, len(s.byAddress))
	for _, token := range s.byAddress {
		out = append(out, token)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SortsBefore(out[j]) })
	return out
}

func (s TokenSet) Len() int {
	return len(s.byAddress)
}

// uniqueAddresses normalizes, validates and dedups addresses in input order.
func uniqueAddresses(addresses []string) []string {
	seen := make(map[string]struct{}, len(addresses))
	out := make([]string, 0, len(addresses))
	for _, address := range addresses {
		key := model.NormalizeID(address)
		if !common.IsHexAddress(key) {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}

// StaticTokenResolver serves the chain's well-known tokens.
type StaticTokenResolver struct {
	tokens TokenSet
}

func NewStaticTokenResolver(params chain.Params) *StaticTokenResolver {
	return &StaticTokenResolver{tokens: NewTokenSet(params.Tokens()...)}
}

func (r *StaticTokenResolver) Resolve(_ context.Context, addresses []string, _ uint64) (TokenAccessor, error) {
	var out []model.Token
	for _, address := range uniqueAddresses(addresses) {
		if token, ok := r.tokens.GetTokenByAddress(address); ok {
			out = append(out, token)
		}
	}
	return NewTokenSet(out...), nil
}

// OnChainTokenResolver reads symbol and decimals through multicall.
type OnChainTokenResolver struct {
	caller  chain.BatchCaller
	chainID model.ChainID
	retry   chain.RetryPolicy
	logger  *zap.Logger
}

func NewOnChainTokenResolver(caller chain.BatchCaller, chainID model.ChainID, logger *zap.Logger) *OnChainTokenResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &OnChainTokenResolver{
		caller:  caller,
		chainID: chainID,
		retry:   chain.DefaultRetryPolicy,
		logger:  logger,
	}
}

func (r *OnChainTokenResolver) Resolve(ctx context.Context, addresses []string, blockNumber uint64) (TokenAccessor, error) {
	keys := uniqueAddresses(addresses)
	if len(keys) == 0 {
		return NewTokenSet(), nil
	}
	parsed := make([]common.Address, len(keys))
	for i, key := range keys {
		parsed[i] = common.HexToAddress(key)
	}

	var fetched map[common.Address]model.Token
	err := chain.Retry(ctx, r.retry, func(ctx context.Context) error {
		var err error
		fetched, err = dex.FetchTokens(ctx, r.caller, r.chainID, parsed, blockNumber, r.logger)
		return err
	}, func(attempt int, err error) {
		r.logger.Warn("token fetch failed", zap.Int("attempt", attempt), zap.Error(err))
	})
	if err != nil {
		return nil, fmt.Errorf("fetch tokens: %w", err)
	}

	out := make([]model.Token, 0, len(fetched))
	for _, address := range parsed {
		if token, ok := fetched[address]; ok {
			out = append(out, token)
		}
	}
	r.logger.Debug("resolved tokens on chain",
		zap.Int("requested", len(parsed)),
		zap.Int("resolved", len(out)),
	)
	return NewTokenSet(out...), nil
}

// CachingTokenResolver keeps every resolved token for the process lifetime
// and asks its resolvers, in order, only for tokens it has not seen.
type CachingTokenResolver struct {
	mu        sync.RWMutex
	cache     map[string]model.Token
	resolvers []TokenResolver
	logger    *zap.Logger
}

// NewCachingTokenResolver seeds the cache with seed and consults resolvers
// in order for misses.
func NewCachingTokenResolver(seed []model.Token, logger *zap.Logger, resolvers ...TokenResolver) *CachingTokenResolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	cache := make(map[string]model.Token, len(seed))
	for _, token := range seed {
		cache[token.Key()] = token
	}
	return &CachingTokenResolver{cache: cache, resolvers: resolvers, logger: logger}
}

func (r *CachingTokenResolver) Resolve(ctx context.Context, addresses []string, blockNumber uint64) (TokenAccessor, error) {
	keys := uniqueAddresses(addresses)
	found := make([]model.Token, 0, len(keys))
	missing := make([]string, 0)

	r.mu.RLock()
	for _, key := range keys {
		if token, ok := r.cache[key]; ok {
			found = append(found, token)
		} else {
			missing = append(missing, key)
		}
	}
	r.mu.RUnlock()

	hits := len(found)
	var firstErr error
	for _, resolver := range r.resolvers {
		if len(missing) == 0 {
			break
		}
		accessor, err := resolver.Resolve(ctx, missing, blockNumber)
		if err != nil {
			r.logger.Warn("token resolver failed", zap.Int("missing", len(missing)), zap.Error(err))
			if firstErr == nil {
				firstErr = err
			}
			continue
		}
		still := missing[:0:0]
		for _, key := range missing {
			token, ok := accessor.GetTokenByAddress(key)
			if !ok {
				still = append(still, key)
				continue
			}
			found = append(found, r.store(token))
		}
		missing = still
	}

	r.logger.Debug("token cache lookup",
		zap.Int("requested", len(keys)),
		zap.Int("cache_hits", hits),
		zap.Int("unresolved", len(missing)),
	)
	if len(found) == 0 && firstErr != nil {
		return nil, firstErr
	}
	return NewTokenSet(found...), nil
}

// store inserts token unless present and returns the cached value.
func (r *CachingTokenResolver) store(token model.Token) model.Token {
	key := token.Key()
	r.mu.Lock()
	defer r.mu.Unlock()
	if existing, ok := r.cache[key]; ok {
		return existing
	}
	r.cache[key] = token
	return token
}
