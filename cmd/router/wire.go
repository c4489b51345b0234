package main

import (
	"context"
	"fmt"
	"math/big"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"swaprouter/internal/candidates"
	"swaprouter/internal/chain"
	"swaprouter/internal/config"
	"swaprouter/internal/dex"
	"swaprouter/internal/gasmodel"
	"swaprouter/internal/metrics"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
	"swaprouter/internal/quoter"
	"swaprouter/internal/router"
	"swaprouter/internal/storage"
	"swaprouter/internal/storage/postgres"
)

// app is the fully wired routing stack of one chain.
type app struct {
	params  chain.Params
	router  *router.Router
	tokens  *provider.CachingTokenResolver
	closers []func()
}

func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}

func buildApp(ctx context.Context, cfg config.Config, reg prometheus.Registerer, logger *zap.Logger) (*app, error) {
	if cfg.RPCURL == "" {
		return nil, fmt.Errorf("rpc url is required")
	}
	params, err := chain.ParamsFor(cfg.ChainID)
	if err != nil {
		return nil, err
	}

	a := &app{params: params}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()

	client, err := chain.NewClient(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("connect rpc: %w", err)
	}
	a.closers = append(a.closers, client.Close)

	remoteID, err := client.GetChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("chain id: %w", err)
	}
	if remoteID.Uint64() != uint64(params.ChainID) {
		return nil, fmt.Errorf("rpc serves chain %s, configured %d", remoteID, params.ChainID)
	}

	multicall := chain.NewMulticall(client, params.Multicall, cfg.Batch.GasLimitPerCall, logger)
	addresses := dex.NewAddressCache()

	source, err := buildPoolSource(ctx, a, cfg, params, addresses, logger)
	if err != nil {
		return nil, err
	}

	seed := params.Tokens()
	if cfg.TokenList != "" {
		listed, err := provider.LoadTokenList(cfg.TokenList, params.ChainID)
		if err != nil {
			return nil, err
		}
		seed = append(seed, listed...)
	}
	a.tokens = provider.NewCachingTokenResolver(seed, logger,
		provider.NewStaticTokenResolver(params),
		provider.NewOnChainTokenResolver(multicall, params.ChainID, logger),
	)

	blocklist, err := provider.ParseBlocklist(cfg.Blocklist)
	if err != nil {
		return nil, err
	}

	v3Pools := provider.NewV3PoolProvider(multicall, params, addresses, logger)
	selectorCfg := candidates.Config{
		Params:    params,
		Source:    source,
		Tokens:    a.tokens,
		Blocklist: blocklist,
		Addresses: addresses,
		V3Pools:   v3Pools,
		Logger:    logger,
	}

	policy := cfg.Batch
	policy.Retry = chain.DefaultRetryPolicy
	routerCfg := router.Config{
		Params:      params,
		Blocks:      client,
		GasPrice:    buildGasPrice(cfg, params, client, logger),
		V3Quoter:    quoter.NewV3Quoter(multicall, params, policy, logger),
		V3GasModels: gasmodel.NewV3Factory(v3Pools, gasmodel.NewOnChainL1GasDataSource(multicall, logger), logger),
		Metrics:     metrics.New(reg),
		Logger:      logger,
	}

	if params.Supports(model.ProtocolV2) {
		v2Pairs := provider.NewV2PoolProvider(multicall, params, addresses, logger)
		selectorCfg.V2Pairs = v2Pairs
		routerCfg.V2Quoter = quoter.NewV2Quoter(logger)
		routerCfg.V2GasModels = gasmodel.NewV2Factory(v2Pairs, logger)
	}
	routerCfg.Selector = candidates.NewSelector(selectorCfg)

	if cfg.PlanLog != "" {
		routerCfg.Sink = storage.NewJsonlStorage(cfg.PlanLog)
	}

	a.router = router.New(routerCfg)
	ok = true
	return a, nil
}

// buildPoolSource chains the configured pool sources behind a cache and a
// last-known-good snapshot store.
func buildPoolSource(ctx context.Context, a *app, cfg config.Config, params chain.Params, addresses *dex.AddressCache, logger *zap.Logger) (provider.PoolDataSource, error) {
	var sources []provider.PoolDataSource
	if cfg.PGDSN != "" {
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, fmt.Errorf("connect postgres: %w", err)
		}
		a.closers = append(a.closers, store.Close)
		sources = append(sources, provider.NewPostgresPoolSource(store, cfg.PoolMaxAge, logger))
	}
	if len(cfg.PoolURIs) > 0 {
		sources = append(sources, provider.NewURIPoolSource(cfg.PoolURIs, cfg.PoolURITimeout, logger))
	}
	if cfg.StaticPools {
		sources = append(sources, provider.NewStaticPoolSource(params, addresses))
	}
	if len(sources) == 0 {
		return nil, fmt.Errorf("no pool source configured")
	}

	var snapshots provider.SnapshotStore
	switch {
	case cfg.SnapshotBolt != "":
		store, err := provider.NewBoltSnapshotStore(cfg.SnapshotBolt)
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, func() {
			if err := store.Close(); err != nil {
				logger.Warn("close snapshot store failed", zap.Error(err))
			}
		})
		snapshots = store
	case cfg.SnapshotDir != "":
		snapshots = provider.NewFileSnapshotStore(cfg.SnapshotDir)
	}

	return provider.NewFallbackPoolSource(sources, cfg.PoolCacheTTL, snapshots, logger), nil
}

func buildGasPrice(cfg config.Config, params chain.Params, client *chain.Client, logger *zap.Logger) chain.GasPriceSource {
	if cfg.GasPriceGwei > 0 {
		wei := decimal.NewFromFloat(cfg.GasPriceGwei).Shift(9).BigInt()
		logger.Info("static gas price", zap.String("wei", wei.String()))
		return chain.StaticGasPriceSource{Price: wei}
	}
	return chain.NewOnChainGasPriceSource(params, client, logger)
}

// resolveToken accepts a chain-table symbol or an address.
func resolveToken(ctx context.Context, params chain.Params, tokens provider.TokenResolver, value string) (model.Token, error) {
	if token, ok := params.TokenBySymbol(value); ok {
		return token, nil
	}
	accessor, err := tokens.Resolve(ctx, []string{value}, 0)
	if err != nil {
		return model.Token{}, err
	}
	token, ok := accessor.GetTokenByAddress(value)
	if !ok {
		return model.Token{}, fmt.Errorf("unknown token %q on %s", value, params.Name)
	}
	return token, nil
}

func gweiString(wei *big.Int) string {
	if wei == nil {
		return "0"
	}
	return decimal.NewFromBigInt(wei, -9).String()
}
