package bestroute

import (
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"go.uber.org/zap"

	"swaprouter/internal/chain"
	"swaprouter/internal/gasmodel"
	"swaprouter/internal/model"
)

var (
	// ErrNoRoute means no combination of legs covers 100% of the amount.
	ErrNoRoute = errors.New("no route found")
	// ErrL1FeeUnsupported means the chain charges an L1 data fee that cannot
	// be computed for the split.
	ErrL1FeeUnsupported = errors.New("cannot compute l1 gas fees")
)

// diagnosticsWidth is how many near-best splits are logged per layer.
const diagnosticsWidth = 3

// L1FeeCalculator prices the L1 data fee of a complete split.
type L1FeeCalculator interface {
	CalculateL1GasFees(legs []*model.RouteWithValidQuote) (model.L1GasFees, error)
}

// Config bounds the split search.
type Config struct {
	MinSplits          int
	MaxSplits          int
	ForceCrossProtocol bool
}

// Request is the input of one search.
type Request struct {
	Amount    *big.Int
	Percents  []int
	Routes    []*model.RouteWithValidQuote
	TradeType model.TradeType
	Params    chain.Params
	Config    Config
	// L1 is required on chains with an L1 data fee.
	L1 L1FeeCalculator
}

// Result is the winning split. Leg amounts sum to the requested amount.
type Result struct {
	Quote                      *big.Int
	QuoteGasAdjusted           *big.Int
	EstimatedGasUsed           *big.Int
	EstimatedGasUsedUSD        *big.Int
	EstimatedGasUsedQuoteToken *big.Int
	USDToken                   model.Token
	L1GasFees                  model.L1GasFees
	Routes                     []*model.RouteWithValidQuote
}

// Searcher finds the best split of a trade across quoted routes.
type Searcher struct {
	logger *zap.Logger
}

func NewSearcher(logger *zap.Logger) *Searcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Searcher{logger: logger}
}

// GetBestSwapRoute groups the routes by percent, searches for the best
// complete split and reconciles rounding so leg amounts sum to Amount.
func (s *Searcher) GetBestSwapRoute(req Request) (*Result, error) {
	if req.Amount == nil || req.Amount.Sign() <= 0 {
		return nil, fmt.Errorf("amount must be positive")
	}
	percentToQuotes := make(map[int][]*model.RouteWithValidQuote)
	for _, route := range req.Routes {
		percentToQuotes[route.Percent] = append(percentToQuotes[route.Percent], route)
	}

	result, err := s.getBestSwapRouteBy(req, percentToQuotes)
	if err != nil {
		return nil, err
	}

	total := new(big.Int)
	for _, leg := range result.Routes {
		total.Add(total, leg.Amount)
	}
	missing := new(big.Int).Sub(req.Amount, total)
	if missing.Sign() > 0 {
		s.logger.Info("optimal route amounts did not sum to the trade amount, adding missing amount to last route",
			zap.String("missing_amount", missing.String()),
		)
		last := result.Routes[len(result.Routes)-1]
		last.Amount.Add(last.Amount, missing)
	}

	s.logger.Info("found best swap route",
		zap.Int("splits", len(result.Routes)),
		zap.Strings("routes", describeLegs(result.Routes)),
		zap.String("amount", req.Amount.String()),
		zap.String("quote", result.Quote.String()),
		zap.String("quote_gas_adjusted", result.QuoteGasAdjusted.String()),
		zap.String("estimated_gas_used_usd", result.EstimatedGasUsedUSD.String()),
		zap.String("estimated_gas_used_quote_token", result.EstimatedGasUsedQuoteToken.String()),
	)
	return result, nil
}

func (s *Searcher) getBestSwapRouteBy(req Request, percentToQuotes map[int][]*model.RouteWithValidQuote) (*Result, error) {
	better := func(a, b *big.Int) bool { return a.Cmp(b) > 0 }
	if req.TradeType == model.ExactOutput {
		better = func(a, b *big.Int) bool { return a.Cmp(b) < 0 }
	}

	percentToSorted := make(map[int][]*model.RouteWithValidQuote, len(percentToQuotes))
	for percent, quotes := range percentToQuotes {
		sorted := append([]*model.RouteWithValidQuote(nil), quotes...)
		sort.SliceStable(sorted, func(i, j int) bool {
			return better(sorted[i].QuoteAdjustedForGas, sorted[j].QuoteAdjustedForGas)
		})
		percentToSorted[percent] = sorted
	}

	var (
		bestQuote *big.Int
		bestSwap  []*model.RouteWithValidQuote
	)
	top := newTopSwaps(diagnosticsWidth, better)
	cfg := req.Config

	full, ok := percentToSorted[100]
	if !ok || cfg.MinSplits > 1 || cfg.ForceCrossProtocol {
		s.logger.Info("did not find a valid route without any splits, continuing search anyway",
			zap.Any("quotes_per_percent", bucketSizes(percentToSorted)),
		)
	} else {
		bestQuote = full[0].QuoteAdjustedForGas
		bestSwap = []*model.RouteWithValidQuote{full[0]}
		for i := 0; i < len(full) && i < 5; i++ {
			top.offer(candidateSwap{quote: full[i].QuoteAdjustedForGas, routes: []*model.RouteWithValidQuote{full[i]}})
		}
	}

	var queue splitQueue
	for i := len(req.Percents) - 1; i >= 0; i-- {
		percent := req.Percents[i]
		sorted, ok := percentToSorted[percent]
		if !ok {
			continue
		}
		queue.enqueue(partialSplit{
			routes:           []*model.RouteWithValidQuote{sorted[0]},
			percentIndex:     i,
			remainingPercent: 100 - percent,
		})
		if len(sorted) < 2 {
			continue
		}
		queue.enqueue(partialSplit{
			routes:           []*model.RouteWithValidQuote{sorted[1]},
			percentIndex:     i,
			remainingPercent: 100 - percent,
			special:          true,
		})
	}

	splits := 1
	for queue.size() > 0 {
		s.logger.Debug(fmt.Sprintf("top %d with %d splits", diagnosticsWidth, splits),
			zap.Strings("top", describeCandidates(top.consume())),
			zap.Int("on_queue", queue.size()),
		)

		layer := queue.size()
		splits++

		// A split count that did not beat the previous one is unlikely to
		// be beaten by more splits.
		if splits >= 3 && bestSwap != nil && len(bestSwap) < splits-1 {
			break
		}
		if splits > cfg.MaxSplits {
			s.logger.Info("max splits reached, stopping search", zap.Int("max_splits", cfg.MaxSplits))
			break
		}

		for ; layer > 0; layer-- {
			item := queue.dequeue()
			for i := item.percentIndex; i >= 0; i-- {
				percent := req.Percents[i]
				if percent > item.remainingPercent {
					continue
				}
				candidates, ok := percentToSorted[percent]
				if !ok {
					continue
				}
				next := firstRouteNotUsingUsedPools(item.routes, candidates, cfg.ForceCrossProtocol)
				if next == nil {
					continue
				}

				remaining := item.remainingPercent - percent
				routes := make([]*model.RouteWithValidQuote, 0, len(item.routes)+1)
				routes = append(routes, item.routes...)
				routes = append(routes, next)

				if remaining == 0 && splits >= cfg.MinSplits {
					quote := sumQuotes(routes)
					l1, err := s.l1Fees(req, routes)
					if err != nil {
						return nil, err
					}
					if l1.GasCostL1QuoteToken != nil {
						if req.TradeType == model.ExactInput {
							quote.Sub(quote, l1.GasCostL1QuoteToken)
						} else {
							quote.Add(quote, l1.GasCostL1QuoteToken)
						}
					}
					top.offer(candidateSwap{quote: quote, routes: routes})
					if bestQuote == nil || better(quote, bestQuote) {
						bestQuote = quote
						bestSwap = routes
						if item.special {
							s.logger.Debug("best swap did not use the best route for its first percent")
						}
					}
				} else if remaining > 0 {
					queue.enqueue(partialSplit{
						routes:           routes,
						percentIndex:     i,
						remainingPercent: remaining,
						special:          item.special,
					})
				}
			}
		}
	}

	if bestSwap == nil {
		s.logger.Info("could not find a valid swap")
		return nil, ErrNoRoute
	}
	return s.assemble(req, bestSwap)
}

// assemble computes the totals of the winning split.
func (s *Searcher) assemble(req Request, bestSwap []*model.RouteWithValidQuote) (*Result, error) {
	usdToken, ok := req.Params.USDToken()
	if !ok {
		return nil, fmt.Errorf("%w: %s", gasmodel.ErrNoUSDToken, req.Params.Name)
	}

	legs := make([]*model.RouteWithValidQuote, len(bestSwap))
	for i, leg := range bestSwap {
		legs[i] = leg.Clone()
	}

	l1, err := s.l1Fees(req, legs)
	if err != nil {
		return nil, err
	}
	l1QuoteToken := orZero(l1.GasCostL1QuoteToken)

	quote := new(big.Int)
	quoteGasAdjusted := new(big.Int)
	gasUsed := new(big.Int)
	gasUSD := new(big.Int)
	gasQuoteToken := new(big.Int)
	for _, leg := range legs {
		quote.Add(quote, leg.RawQuote)
		quoteGasAdjusted.Add(quoteGasAdjusted, leg.QuoteAdjustedForGas)
		gasUsed.Add(gasUsed, orZero(leg.GasEstimate))
		gasUSD.Add(gasUSD, normalizeDecimals(orZero(leg.GasCostInUSD), leg.USDToken.Decimals, usdToken.Decimals))
		gasQuoteToken.Add(gasQuoteToken, orZero(leg.GasCostInToken))
	}
	if l1.GasCostL1USD != nil {
		gasUSD.Add(gasUSD, normalizeDecimals(l1.GasCostL1USD, l1.USDToken.Decimals, usdToken.Decimals))
	}
	gasQuoteToken.Add(gasQuoteToken, l1QuoteToken)
	if req.TradeType == model.ExactInput {
		quoteGasAdjusted.Sub(quoteGasAdjusted, l1QuoteToken)
	} else {
		quoteGasAdjusted.Add(quoteGasAdjusted, l1QuoteToken)
	}

	s.logger.Debug("usd gas estimates of best route",
		zap.String("estimated_gas_used_usd", gasUSD.String()),
		zap.String("usd_token", usdToken.String()),
		zap.String("l1_gas_cost_usd", orZero(l1.GasCostL1USD).String()),
	)

	sort.SliceStable(legs, func(i, j int) bool {
		return legs[i].Amount.Cmp(legs[j].Amount) > 0
	})

	return &Result{
		Quote:                      quote,
		QuoteGasAdjusted:           quoteGasAdjusted,
		EstimatedGasUsed:           gasUsed,
		EstimatedGasUsedUSD:        gasUSD,
		EstimatedGasUsedQuoteToken: gasQuoteToken,
		USDToken:                   usdToken,
		L1GasFees:                  l1,
		Routes:                     legs,
	}, nil
}

// l1Fees returns zero fees on chains without an L1 data fee.
func (s *Searcher) l1Fees(req Request, legs []*model.RouteWithValidQuote) (model.L1GasFees, error) {
	if !req.Params.HasL1Fee() {
		return model.L1GasFees{}, nil
	}
	if req.L1 == nil {
		return model.L1GasFees{}, fmt.Errorf("%w: no l1 fee calculator on %s", ErrL1FeeUnsupported, req.Params.Name)
	}
	for _, leg := range legs {
		if leg.Protocol() != model.ProtocolV3 {
			return model.L1GasFees{}, fmt.Errorf("%w: split contains %s legs", ErrL1FeeUnsupported, leg.Protocol())
		}
	}
	fees, err := req.L1.CalculateL1GasFees(legs)
	if err != nil {
		return model.L1GasFees{}, fmt.Errorf("calculate l1 gas fees: %w", err)
	}
	return fees, nil
}

// firstRouteNotUsingUsedPools returns the first candidate that shares no
// pool with used. With forceCrossProtocol and a single protocol in use,
// candidates of that protocol are skipped.
func firstRouteNotUsingUsedPools(used, candidates []*model.RouteWithValidQuote, forceCrossProtocol bool) *model.RouteWithValidQuote {
	usedPools := make(map[string]struct{})
	usedProtocols := make(map[model.Protocol]struct{})
	for _, route := range used {
		for _, address := range route.PoolAddresses() {
			usedPools[model.AddressKey(address)] = struct{}{}
		}
		usedProtocols[route.Protocol()] = struct{}{}
	}

	for _, candidate := range candidates {
		overlaps := false
		for _, address := range candidate.PoolAddresses() {
			if _, ok := usedPools[model.AddressKey(address)]; ok {
				overlaps = true
				break
			}
		}
		if overlaps {
			continue
		}
		if forceCrossProtocol && len(usedProtocols) == 1 {
			if _, ok := usedProtocols[candidate.Protocol()]; ok {
				continue
			}
		}
		return candidate
	}
	return nil
}

func sumQuotes(routes []*model.RouteWithValidQuote) *big.Int {
	sum := new(big.Int)
	for _, route := range routes {
		sum.Add(sum, route.QuoteAdjustedForGas)
	}
	return sum
}

// normalizeDecimals rescales amount from one token precision to another.
func normalizeDecimals(amount *big.Int, from, to uint8) *big.Int {
	switch {
	case from == to:
		return new(big.Int).Set(amount)
	case to > from:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(to-from)), nil)
		return new(big.Int).Mul(amount, scale)
	default:
		scale := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(from-to)), nil)
		return new(big.Int).Quo(amount, scale)
	}
}

func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

func bucketSizes(percentToSorted map[int][]*model.RouteWithValidQuote) map[int]int {
	out := make(map[int]int, len(percentToSorted))
	for percent, quotes := range percentToSorted {
		out[percent] = len(quotes)
	}
	return out
}

func describeLegs(legs []*model.RouteWithValidQuote) []string {
	out := make([]string, len(legs))
	for i, leg := range legs {
		out[i] = fmt.Sprintf("%d%% = %s", leg.Percent, leg.Route)
	}
	return out
}

func describeCandidates(candidates []candidateSwap) []string {
	out := make([]string, len(candidates))
	for i, c := range candidates {
		routes := make([]string, len(c.routes))
		for j, route := range c.routes {
			routes[j] = route.String()
		}
		out[i] = fmt.Sprintf("%s (%s)", c.quote, strings.Join(routes, ", "))
	}
	return out
}
