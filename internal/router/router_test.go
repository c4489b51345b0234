package router

import (
	"context"
	"errors"
	"math/big"
	"reflect"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaprouter/internal/calldata"
	"swaprouter/internal/candidates"
	"swaprouter/internal/chain"
	"swaprouter/internal/gasmodel"
	"swaprouter/internal/metrics"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
	"swaprouter/internal/quoter"
)

type fakeBlocks struct {
	number uint64
	calls  int
}

func (f *fakeBlocks) LatestBlockNumber(context.Context) (uint64, error) {
	f.calls++
	return f.number, nil
}

type fakeSelector struct {
	pools map[model.Protocol][]model.V3Pool
	errs  map[model.Protocol]error
}

func (f *fakeSelector) Select(_ context.Context, req candidates.Request) (candidates.Result, error) {
	if err := f.errs[req.Protocol]; err != nil {
		return candidates.Result{}, err
	}
	result := candidates.Result{
		Protocol:  req.Protocol,
		Selection: model.CandidatePoolsBySelectionCriteria{Protocol: req.Protocol},
	}
	if req.Protocol == model.ProtocolV3 {
		result.V3Pools = provider.NewV3PoolSet(f.pools[model.ProtocolV3])
	} else {
		result.V2Pairs = provider.NewV2PairSet(nil)
	}
	return result, nil
}

// halfDepthQuoter doubles amounts up to depth and passes larger amounts
// through unchanged, so splitting pays off.
type halfDepthQuoter struct {
	mu     sync.Mutex
	depth  *big.Int
	blocks []uint64
}

func (q *halfDepthQuoter) Quote(_ context.Context, routes []model.V3Route, amounts []*big.Int, _ model.TradeType, blockNumber uint64) ([]model.RouteWithQuotes, error) {
	q.mu.Lock()
	q.blocks = append(q.blocks, blockNumber)
	q.mu.Unlock()

	out := make([]model.RouteWithQuotes, len(routes))
	for i, route := range routes {
		quotes := make([]model.AmountQuote, len(amounts))
		for j, amount := range amounts {
			quoted := new(big.Int).Set(amount)
			if amount.Cmp(q.depth) <= 0 {
				quoted.Mul(quoted, big.NewInt(2))
			}
			quotes[j] = model.AmountQuote{
				Amount:                      amount,
				Quote:                       model.Priced(quoted),
				SqrtPriceX96AfterList:       []*big.Int{big.NewInt(1)},
				InitializedTicksCrossedList: []uint32{1},
			}
		}
		out[i] = model.RouteWithQuotes{Route: route, Quotes: quotes}
	}
	return out, nil
}

type fakeV3Loader struct {
	pools []model.V3Pool
}

func (f fakeV3Loader) GetPools(context.Context, []provider.V3PoolKey, uint64) (*provider.V3PoolSet, error) {
	return provider.NewV3PoolSet(f.pools), nil
}

type fakeV2Loader struct{}

func (fakeV2Loader) GetPairs(context.Context, []provider.V2PairKey, uint64) (*provider.V2PairSet, error) {
	return provider.NewV2PairSet(nil), nil
}

type recordingSink struct {
	records []model.PlanRecord
}

func (s *recordingSink) PutPlans(records []model.PlanRecord) error {
	s.records = append(s.records, records...)
	return nil
}

type fixture struct {
	params   chain.Params
	weth     model.Token
	usdc     model.Token
	blocks   *fakeBlocks
	selector *fakeSelector
	quoter   *halfDepthQuoter
	sink     *recordingSink
	router   *Router
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	params, err := chain.ParamsFor(model.ChainMainnet)
	require.NoError(t, err)
	usdc, ok := params.TokenBySymbol("USDC")
	require.True(t, ok)
	dai, ok := params.TokenBySymbol("DAI")
	require.True(t, ok)
	weth := params.WrappedNative

	pools := []model.V3Pool{
		{Address: common.HexToAddress("0x00000000000000000000000000000000000000a1"), Token0: usdc, Token1: weth, Fee: model.FeeMedium, SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Liquidity: big.NewInt(1000)},
		{Address: common.HexToAddress("0x00000000000000000000000000000000000000b2"), Token0: usdc, Token1: weth, Fee: model.FeeLow, SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96), Liquidity: big.NewInt(1000)},
	}
	usdPool := model.V3Pool{
		Address:      common.HexToAddress("0x00000000000000000000000000000000000000c3"),
		Token0:       dai,
		Token1:       weth,
		Fee:          model.FeeLow,
		SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
		Liquidity:    big.NewInt(1),
	}

	f := &fixture{
		params:   params,
		weth:     weth,
		usdc:     usdc,
		blocks:   &fakeBlocks{number: 100},
		selector: &fakeSelector{pools: map[model.Protocol][]model.V3Pool{model.ProtocolV3: pools}},
		quoter:   &halfDepthQuoter{depth: big.NewInt(500)},
		sink:     &recordingSink{},
	}
	f.router = New(Config{
		Params:      params,
		Blocks:      f.blocks,
		GasPrice:    chain.StaticGasPriceSource{Price: big.NewInt(1)},
		Selector:    f.selector,
		V3Quoter:    f.quoter,
		V2Quoter:    quoter.NewV2Quoter(nil),
		V3GasModels: gasmodel.NewV3Factory(fakeV3Loader{pools: []model.V3Pool{usdPool}}, nil, nil),
		V2GasModels: gasmodel.NewV2Factory(fakeV2Loader{}, nil),
		Sink:        f.sink,
		Metrics:     metrics.New(prometheus.NewRegistry()),
		Now:         func() time.Time { return time.Unix(1_700_000_000, 0) },
	})
	return f
}

var v3Only = &RoutingConfig{Protocols: []model.Protocol{model.ProtocolV3}}

func TestRouteSplitsAcrossPools(t *testing.T) {
	f := newFixture(t)

	plan, err := f.router.Route(context.Background(), big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, v3Only)
	require.NoError(t, err)
	require.NotNil(t, plan)

	require.Len(t, plan.Routes, 2)
	assert.Equal(t, "2000", plan.Quote.String())
	assert.Equal(t, "2000", plan.QuoteGasAdjusted.String())
	assert.Equal(t, "226000", plan.EstimatedGasUsed.String())
	assert.Equal(t, uint64(100), plan.BlockNumber)
	assert.Nil(t, plan.MethodParameters)

	total := new(big.Int)
	for _, leg := range plan.Routes {
		assert.Equal(t, 50, leg.Percent)
		total.Add(total, leg.Amount)
	}
	assert.Equal(t, "1000", total.String())

	require.Len(t, f.sink.records, 1)
	assert.Equal(t, model.ChainMainnet, f.sink.records[0].ChainID)
	assert.Len(t, f.sink.records[0].Legs, 2)
}

func TestRouteEncodesCallData(t *testing.T) {
	f := newFixture(t)
	opts := &calldata.SwapOptions{
		Recipient:   common.HexToAddress("0x0000000000000000000000000000000000000abc"),
		SlippageBps: 50,
		Deadline:    1_700_000_600,
	}

	plan, err := f.router.Route(context.Background(), big.NewInt(1000), f.weth, f.usdc, model.ExactInput, opts, v3Only)
	require.NoError(t, err)
	require.NotNil(t, plan)
	require.NotNil(t, plan.MethodParameters)
	assert.Equal(t, f.params.SwapRouter02, plan.MethodParameters.To)
	assert.NotEmpty(t, plan.MethodParameters.Calldata)
}

func TestRouteUsesBlockOverride(t *testing.T) {
	f := newFixture(t)

	plan, err := f.router.Route(context.Background(), big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil,
		&RoutingConfig{BlockNumber: 42, Protocols: []model.Protocol{model.ProtocolV3}})
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, uint64(42), plan.BlockNumber)
	assert.Zero(t, f.blocks.calls)
	assert.Equal(t, []uint64{42}, f.quoter.blocks)
}

func TestRouteNotFound(t *testing.T) {
	f := newFixture(t)
	f.selector.pools = nil

	plan, err := f.router.Route(context.Background(), big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, v3Only)
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Empty(t, f.sink.records)
}

func TestRouteDropsFailingPass(t *testing.T) {
	f := newFixture(t)
	f.selector.errs = map[model.Protocol]error{model.ProtocolV2: errors.New("v2 source down")}

	plan, err := f.router.Route(context.Background(), big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, plan)
	assert.Equal(t, "2000", plan.Quote.String())
}

func TestRouteReturnsErrorWhenEveryPassFails(t *testing.T) {
	f := newFixture(t)
	sourceErr := errors.New("pool source down")
	f.selector.errs = map[model.Protocol]error{model.ProtocolV2: sourceErr, model.ProtocolV3: sourceErr}

	plan, err := f.router.Route(context.Background(), big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, nil)
	require.ErrorIs(t, err, sourceErr)
	assert.Nil(t, plan)
}

func TestRouteRejectsBadRequests(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.router.Route(ctx, big.NewInt(1000), f.weth, f.weth, model.ExactInput, nil, nil)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = f.router.Route(ctx, big.NewInt(0), f.weth, f.usdc, model.ExactInput, nil, nil)
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = f.router.Route(ctx, big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, &RoutingConfig{DistributionPercent: 7})
	require.ErrorIs(t, err, ErrConfiguration)

	_, err = f.router.Route(ctx, big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, &RoutingConfig{MinSplits: 5, MaxSplits: 3})
	require.ErrorIs(t, err, ErrConfiguration)

	optimism, err := chain.ParamsFor(model.ChainOptimism)
	require.NoError(t, err)
	err = DefaultRoutingConfig(optimism).Merge(&RoutingConfig{Protocols: []model.Protocol{model.ProtocolV2}}).Validate(optimism)
	require.ErrorIs(t, err, chain.ErrUnsupportedChain)
}

func TestRoutingConfigMerge(t *testing.T) {
	params, err := chain.ParamsFor(model.ChainMainnet)
	require.NoError(t, err)
	base := DefaultRoutingConfig(params)

	merged := base.Merge(&RoutingConfig{
		MaxSplits:       3,
		V3PoolSelection: PoolSelection{TopN: intPtr(9)},
	})
	assert.Equal(t, 3, merged.MaxSplits)
	assert.Equal(t, 1, merged.MinSplits)
	assert.Equal(t, 5, merged.DistributionPercent)
	assert.Equal(t, 9, merged.limits(model.ProtocolV3).TopN)
	assert.Equal(t, 2, merged.limits(model.ProtocolV3).TopNDirectSwaps)
	assert.Equal(t, 6, merged.limits(model.ProtocolV2).TopNWithBaseToken)
	assert.Equal(t, []model.Protocol{model.ProtocolV3, model.ProtocolV2}, merged.Protocols)
	assert.Equal(t, base, base.Merge(nil))
	assert.Equal(t, 2, base.limits(model.ProtocolV3).TopN, "merge must not write through to the defaults")
}

func TestRoutingConfigMergeKeepsZeroLimits(t *testing.T) {
	params, err := chain.ParamsFor(model.ChainMainnet)
	require.NoError(t, err)

	merged := DefaultRoutingConfig(params).Merge(&RoutingConfig{
		V3PoolSelection: PoolSelection{TopNDirectSwaps: intPtr(0), TopN: intPtr(0), TopNSecondHop: intPtr(0)},
		V2PoolSelection: PoolSelection{TopNTokenInOut: intPtr(0)},
	})
	v3 := merged.limits(model.ProtocolV3)
	assert.Zero(t, v3.TopNDirectSwaps)
	assert.Zero(t, v3.TopN)
	assert.Zero(t, v3.TopNSecondHop)
	assert.Equal(t, 3, v3.TopNTokenInOut)
	assert.Zero(t, merged.limits(model.ProtocolV2).TopNTokenInOut)
	assert.Equal(t, 1, merged.limits(model.ProtocolV2).TopNDirectSwaps)
	require.NoError(t, merged.Validate(params))

	negative := DefaultRoutingConfig(params).Merge(&RoutingConfig{V2PoolSelection: PoolSelection{TopN: intPtr(-1)}})
	require.ErrorIs(t, negative.Validate(params), ErrConfiguration)
}

// emptySource lists no pools, leaving only synthetic direct candidates.
type emptySource struct{}

func (emptySource) ListPools(context.Context, provider.PoolQuery) (provider.PoolList, error) {
	return provider.PoolList{Source: "empty"}, nil
}

// keyedV3Loader returns a pool for every requested key and records the keys.
type keyedV3Loader struct {
	mu   sync.Mutex
	keys []provider.V3PoolKey
}

func (l *keyedV3Loader) GetPools(_ context.Context, keys []provider.V3PoolKey, _ uint64) (*provider.V3PoolSet, error) {
	l.mu.Lock()
	l.keys = append(l.keys, keys...)
	l.mu.Unlock()

	pools := make([]model.V3Pool, 0, len(keys))
	for _, key := range keys {
		token0, token1 := model.SortTokens(key.TokenA, key.TokenB)
		pools = append(pools, model.V3Pool{
			Address:      common.BigToAddress(big.NewInt(int64(key.Fee))),
			Token0:       token0,
			Token1:       token1,
			Fee:          key.Fee,
			SqrtPriceX96: new(big.Int).Lsh(big.NewInt(1), 96),
			Liquidity:    big.NewInt(1000),
		})
	}
	return provider.NewV3PoolSet(pools), nil
}

func TestRouteDirectSwapLimitZeroSkipsSyntheticPools(t *testing.T) {
	f := newFixture(t)
	loader := &keyedV3Loader{}
	f.router.selector = candidates.NewSelector(candidates.Config{
		Params:  f.params,
		Source:  emptySource{},
		Tokens:  provider.NewStaticTokenResolver(f.params),
		V3Pools: loader,
	})
	ctx := context.Background()

	plan, err := f.router.Route(ctx, big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, v3Only)
	require.NoError(t, err)
	require.NotNil(t, plan, "defaults add synthetic direct pools")
	assert.Len(t, loader.keys, len(model.FeeAmounts))

	loader.keys = nil
	plan, err = f.router.Route(ctx, big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, &RoutingConfig{
		Protocols:       []model.Protocol{model.ProtocolV3},
		V3PoolSelection: PoolSelection{TopNDirectSwaps: intPtr(0)},
	})
	require.NoError(t, err)
	assert.Nil(t, plan)
	assert.Empty(t, loader.keys)
}

func TestRouteIsDeterministic(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first, err := f.router.Route(ctx, big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, nil)
	require.NoError(t, err)
	require.NotNil(t, first)
	second, err := f.router.Route(ctx, big.NewInt(1000), f.weth, f.usdc, model.ExactInput, nil, nil)
	require.NoError(t, err)

	assert.True(t, reflect.DeepEqual(first, second), "plans differ:\n%+v\n%+v", first, second)
}
