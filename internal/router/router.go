package router

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swaprouter/internal/bestroute"
	"swaprouter/internal/calldata"
	"swaprouter/internal/candidates"
	"swaprouter/internal/chain"
	"swaprouter/internal/gasmodel"
	"swaprouter/internal/metrics"
	"swaprouter/internal/model"
	"swaprouter/internal/quoter"
	"swaprouter/internal/storage"
)

// CandidateSelector picks and loads the candidate pools of one protocol.
type CandidateSelector interface {
	Select(ctx context.Context, req candidates.Request) (candidates.Result, error)
}

// V3Quoter prices V3 routes on chain.
type V3Quoter interface {
	Quote(ctx context.Context, routes []model.V3Route, amounts []*big.Int, tradeType model.TradeType, blockNumber uint64) ([]model.RouteWithQuotes, error)
}

// V2Quoter prices V2 routes from pair reserves.
type V2Quoter interface {
	Quote(routes []model.V2Route, amounts []*big.Int, tradeType model.TradeType) []model.RouteWithQuotes
}

type V3GasModelFactory interface {
	Build(ctx context.Context, req gasmodel.BuildRequest) (*gasmodel.V3Model, error)
}

type V2GasModelFactory interface {
	Build(ctx context.Context, req gasmodel.BuildRequest) (*gasmodel.V2Model, error)
}

// Config wires a Router. The V2 fields may be nil on chains without V2.
type Config struct {
	Params      chain.Params
	Blocks      chain.BlockNumberReader
	GasPrice    chain.GasPriceSource
	Selector    CandidateSelector
	V3Quoter    V3Quoter
	V2Quoter    V2Quoter
	V3GasModels V3GasModelFactory
	V2GasModels V2GasModelFactory
	Retry       chain.RetryPolicy
	Sink        storage.PlanSink
	Metrics     *metrics.Collectors
	Logger      *zap.Logger
	Now         func() time.Time
}

// Router computes swap plans on one chain.
type Router struct {
	params      chain.Params
	blocks      chain.BlockNumberReader
	gasPrice    chain.GasPriceSource
	selector    CandidateSelector
	v3Quoter    V3Quoter
	v2Quoter    V2Quoter
	v3GasModels V3GasModelFactory
	v2GasModels V2GasModelFactory
	retry       chain.RetryPolicy
	search      *bestroute.Searcher
	sink        storage.PlanSink
	metrics     *metrics.Collectors
	logger      *zap.Logger
	now         func() time.Time
}

func New(cfg Config) *Router {
	logger := cfg.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	sink := cfg.Sink
	if sink == nil {
		sink = storage.NopSink{}
	}
	retry := cfg.Retry
	if retry == (chain.RetryPolicy{}) {
		retry = chain.DefaultRetryPolicy
	}
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Router{
		params:      cfg.Params,
		blocks:      cfg.Blocks,
		gasPrice:    cfg.GasPrice,
		selector:    cfg.Selector,
		v3Quoter:    cfg.V3Quoter,
		v2Quoter:    cfg.V2Quoter,
		v3GasModels: cfg.V3GasModels,
		v2GasModels: cfg.V2GasModels,
		retry:       retry,
		search:      bestroute.NewSearcher(logger),
		sink:        sink,
		metrics:     cfg.Metrics,
		logger:      logger,
		now:         now,
	}
}

// Params returns the chain the router serves.
func (r *Router) Params() chain.Params {
	return r.params
}

// routeRequest is the resolved context shared by the protocol passes.
type routeRequest struct {
	tokenIn     model.Token
	tokenOut    model.Token
	quoteToken  model.Token
	tradeType   model.TradeType
	blockNumber uint64
	gasPrice    *big.Int
	percents    []int
	amounts     []*big.Int
	config      RoutingConfig
}

// passResult is the output of one protocol pass.
type passResult struct {
	protocol  model.Protocol
	routes    []*model.RouteWithValidQuote
	selection model.CandidatePoolsBySelectionCriteria
	l1        bestroute.L1FeeCalculator
	err       error
}

// Route finds the best way to trade amount of tokenIn for tokenOut (or, for
// ExactOutput, to receive amount of tokenOut). A nil plan with a nil error
// means no route exists. opts enables call-data generation.
func (r *Router) Route(
	ctx context.Context,
	amount *big.Int,
	tokenIn, tokenOut model.Token,
	tradeType model.TradeType,
	opts *calldata.SwapOptions,
	routingConfig *RoutingConfig,
) (*model.SwapPlan, error) {
	started := time.Now()
	plan, err := r.route(ctx, amount, tokenIn, tokenOut, tradeType, opts, routingConfig)
	switch {
	case err != nil:
		r.metrics.ObserveRequest(tradeType, "error")
	case plan == nil:
		r.metrics.ObserveRequest(tradeType, "not_found")
	default:
		r.metrics.ObserveRequest(tradeType, "ok")
	}
	r.metrics.ObservePhase("total", started)
	return plan, err
}

func (r *Router) route(
	ctx context.Context,
	amount *big.Int,
	tokenIn, tokenOut model.Token,
	tradeType model.TradeType,
	opts *calldata.SwapOptions,
	routingConfig *RoutingConfig,
) (*model.SwapPlan, error) {
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: amount must be positive", ErrConfiguration)
	}
	if tokenIn.ChainID != r.params.ChainID || tokenOut.ChainID != r.params.ChainID {
		return nil, fmt.Errorf("%w: tokens must be on chain %d", ErrConfiguration, r.params.ChainID)
	}
	if tokenIn.Equals(tokenOut) {
		return nil, fmt.Errorf("%w: token in and token out are the same", ErrConfiguration)
	}

	cfg := DefaultRoutingConfig(r.params).Merge(routingConfig)
	if err := cfg.Validate(r.params); err != nil {
		return nil, err
	}

	blockNumber := cfg.BlockNumber
	if blockNumber == 0 {
		var err error
		blockNumber, err = chain.LatestBlockNumber(ctx, r.blocks, r.retry, r.logger)
		if err != nil {
			return nil, err
		}
	}

	percents, amounts, err := quoter.AmountDistribution(amount, cfg.DistributionPercent)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
	}

	gasPrice, err := r.gasPrice.GasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("get gas price: %w", err)
	}

	req := routeRequest{
		tokenIn:     tokenIn,
		tokenOut:    tokenOut,
		quoteToken:  tokenOut,
		tradeType:   tradeType,
		blockNumber: blockNumber,
		gasPrice:    gasPrice,
		percents:    percents,
		amounts:     amounts,
		config:      cfg,
	}
	if tradeType == model.ExactOutput {
		req.quoteToken = tokenIn
	}

	r.logger.Info("routing",
		zap.String("chain", r.params.Name),
		zap.String("token_in", tokenIn.String()),
		zap.String("token_out", tokenOut.String()),
		zap.String("trade_type", tradeType.String()),
		zap.String("amount", amount.String()),
		zap.Uint64("block", blockNumber),
		zap.String("gas_price_wei", gasPrice.String()),
	)

	passesStarted := time.Now()
	passes := r.runPasses(ctx, req)
	r.metrics.ObservePhase("quotes", passesStarted)

	var (
		routes     []*model.RouteWithValidQuote
		selections []model.CandidatePoolsBySelectionCriteria
		l1         bestroute.L1FeeCalculator
		firstErr   error
	)
	for _, pass := range passes {
		if pass.err != nil {
			if firstErr == nil {
				firstErr = pass.err
			}
			continue
		}
		routes = append(routes, pass.routes...)
		selections = append(selections, pass.selection)
		if pass.l1 != nil {
			l1 = pass.l1
		}
	}
	if firstErr != nil {
		if len(routes) == 0 {
			return nil, firstErr
		}
		for _, pass := range passes {
			if pass.err != nil {
				r.logger.Warn("protocol pass failed, routing with the others",
					zap.String("protocol", string(pass.protocol)),
					zap.Error(pass.err),
				)
			}
		}
	}
	if len(routes) == 0 {
		r.logger.Info("no valid quotes for any protocol")
		return nil, nil
	}

	searchStarted := time.Now()
	best, err := r.search.GetBestSwapRoute(bestroute.Request{
		Amount:    amount,
		Percents:  percents,
		Routes:    routes,
		TradeType: tradeType,
		Params:    r.params,
		Config: bestroute.Config{
			MinSplits:          cfg.MinSplits,
			MaxSplits:          cfg.MaxSplits,
			ForceCrossProtocol: cfg.ForceCrossProtocol,
		},
		L1: l1,
	})
	r.metrics.ObservePhase("search", searchStarted)
	if errors.Is(err, bestroute.ErrNoRoute) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	plan := &model.SwapPlan{
		TokenIn:                    tokenIn,
		TokenOut:                   tokenOut,
		TradeType:                  tradeType,
		Amount:                     new(big.Int).Set(amount),
		Quote:                      best.Quote,
		QuoteGasAdjusted:           best.QuoteGasAdjusted,
		EstimatedGasUsed:           best.EstimatedGasUsed,
		EstimatedGasUsedUSD:        best.EstimatedGasUsedUSD,
		EstimatedGasUsedQuoteToken: best.EstimatedGasUsedQuoteToken,
		USDToken:                   best.USDToken,
		GasPriceWei:                gasPrice,
		Routes:                     best.Routes,
		BlockNumber:                blockNumber,
	}

	if opts != nil {
		encoder, err := calldata.NewEncoder(r.params)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrConfiguration, err)
		}
		method, err := encoder.Encode(tradeType, best.Routes, *opts)
		if err != nil {
			return nil, fmt.Errorf("encode call data: %w", err)
		}
		plan.MethodParameters = method
	}

	r.metrics.ObserveRoute(best.Routes, selections)
	if err := r.sink.PutPlans([]model.PlanRecord{model.NewPlanRecord(r.params.ChainID, plan, r.now())}); err != nil {
		r.logger.Warn("write plan", zap.Error(err))
	}
	return plan, nil
}

// runPasses quotes every active protocol concurrently. Pass failures are
// reported in the results, never through the group.
func (r *Router) runPasses(ctx context.Context, req routeRequest) []passResult {
	var active []model.Protocol
	for _, protocol := range req.config.activeProtocols(r.params) {
		if protocol == model.ProtocolV2 && (r.v2Quoter == nil || r.v2GasModels == nil) {
			r.logger.Debug("v2 routing not wired, skipping")
			continue
		}
		if protocol == model.ProtocolV3 && (r.v3Quoter == nil || r.v3GasModels == nil) {
			r.logger.Debug("v3 routing not wired, skipping")
			continue
		}
		active = append(active, protocol)
	}

	results := make([]passResult, len(active))
	var group errgroup.Group
	for i, protocol := range active {
		group.Go(func() error {
			started := time.Now()
			switch protocol {
			case model.ProtocolV3:
				results[i] = r.v3Pass(ctx, req)
			case model.ProtocolV2:
				results[i] = r.v2Pass(ctx, req)
			}
			results[i].protocol = protocol
			r.metrics.ObservePhase("pass_"+string(protocol), started)
			return nil
		})
	}
	_ = group.Wait()
	return results
}

func (r *Router) selectCandidates(ctx context.Context, req routeRequest, protocol model.Protocol) (candidates.Result, error) {
	sel, err := r.selector.Select(ctx, candidates.Request{
		TokenIn:     req.tokenIn,
		TokenOut:    req.tokenOut,
		TradeType:   req.tradeType,
		Protocol:    protocol,
		BlockNumber: req.blockNumber,
		Limits:      req.config.limits(protocol),
	})
	if err != nil {
		return candidates.Result{}, err
	}
	if sel.Stale {
		r.metrics.ObserveStale(protocol)
	}
	return sel, nil
}

func (r *Router) buildRequest(req routeRequest) gasmodel.BuildRequest {
	return gasmodel.BuildRequest{
		Params:      r.params,
		GasPriceWei: req.gasPrice,
		QuoteToken:  req.quoteToken,
		TradeType:   req.tradeType,
		BlockNumber: req.blockNumber,
	}
}

func (r *Router) v3Pass(ctx context.Context, req routeRequest) passResult {
	sel, err := r.selectCandidates(ctx, req, model.ProtocolV3)
	if err != nil {
		return passResult{err: fmt.Errorf("v3 candidates: %w", err)}
	}
	gasModel, err := r.v3GasModels.Build(ctx, r.buildRequest(req))
	if err != nil {
		return passResult{err: fmt.Errorf("v3 gas model: %w", err)}
	}

	var pools []model.V3Pool
	if sel.V3Pools != nil {
		pools = sel.V3Pools.Pools()
	}
	routes := quoter.ComputeAllV3Routes(req.tokenIn, req.tokenOut, pools, req.config.MaxSwapsPerPath)
	r.logger.Info("computed v3 routes", zap.Int("pools", len(pools)), zap.Int("routes", len(routes)))
	if len(routes) == 0 {
		return passResult{selection: sel.Selection, l1: gasModel}
	}

	quotes, err := r.v3Quoter.Quote(ctx, routes, req.amounts, req.tradeType, req.blockNumber)
	if err != nil {
		return passResult{err: fmt.Errorf("v3 quotes: %w", err)}
	}
	valid := r.validQuotes(model.ProtocolV3, quotes, req, gasModel)
	return passResult{routes: valid, selection: sel.Selection, l1: gasModel}
}

func (r *Router) v2Pass(ctx context.Context, req routeRequest) passResult {
	sel, err := r.selectCandidates(ctx, req, model.ProtocolV2)
	if err != nil {
		return passResult{err: fmt.Errorf("v2 candidates: %w", err)}
	}
	gasModel, err := r.v2GasModels.Build(ctx, r.buildRequest(req))
	if err != nil {
		return passResult{err: fmt.Errorf("v2 gas model: %w", err)}
	}

	var pairs []model.V2Pair
	if sel.V2Pairs != nil {
		pairs = sel.V2Pairs.Pairs()
	}
	routes := quoter.ComputeAllV2Routes(req.tokenIn, req.tokenOut, pairs, req.config.MaxSwapsPerPath)
	r.logger.Info("computed v2 routes", zap.Int("pairs", len(pairs)), zap.Int("routes", len(routes)))
	if len(routes) == 0 {
		return passResult{selection: sel.Selection}
	}

	quotes := r.v2Quoter.Quote(routes, req.amounts, req.tradeType)
	valid := r.validQuotes(model.ProtocolV2, quotes, req, gasModel)
	return passResult{routes: valid, selection: sel.Selection}
}

// validQuotes turns priced quotes into gas-adjusted legs. Unpriced quotes
// and V3 quotes without tick data are dropped.
func (r *Router) validQuotes(protocol model.Protocol, quotes []model.RouteWithQuotes, req routeRequest, estimator model.GasEstimator) []*model.RouteWithValidQuote {
	var (
		out      []*model.RouteWithValidQuote
		unpriced int
	)
	for _, routeQuotes := range quotes {
		for i, amountQuote := range routeQuotes.Quotes {
			if i >= len(req.percents) {
				break
			}
			if !amountQuote.Quote.IsPriced() {
				unpriced++
				continue
			}
			if protocol == model.ProtocolV3 && (len(amountQuote.SqrtPriceX96AfterList) == 0 || len(amountQuote.InitializedTicksCrossedList) == 0) {
				r.logger.Debug("dropping quote without tick data",
					zap.String("route", routeQuotes.Route.String()),
					zap.Int("percent", req.percents[i]),
				)
				unpriced++
				continue
			}
			leg, err := model.NewRouteWithValidQuote(routeQuotes.Route, req.percents[i], amountQuote, req.quoteToken, req.tradeType, estimator)
			if err != nil {
				r.logger.Debug("dropping quote", zap.String("route", routeQuotes.Route.String()), zap.Error(err))
				unpriced++
				continue
			}
			out = append(out, leg)
		}
	}
	r.metrics.ObserveQuotes(protocol, len(out), unpriced)
	r.logger.Debug("valid quotes",
		zap.String("protocol", string(protocol)),
		zap.Int("valid", len(out)),
		zap.Int("dropped", unpriced),
	)
	return out
}
