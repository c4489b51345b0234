package bestroute

import (
	"errors"
	"fmt"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaprouter/internal/chain"
	"swaprouter/internal/gasmodel"
	"swaprouter/internal/model"
)

type legBuilder struct {
	t         *testing.T
	params    chain.Params
	tokenIn   model.Token
	tokenOut  model.Token
	tradeType model.TradeType
	usdToken  model.Token
}

func newLegBuilder(t *testing.T, id model.ChainID, tradeType model.TradeType) *legBuilder {
	t.Helper()
	params, err := chain.ParamsFor(id)
	require.NoError(t, err)
	usd, ok := params.USDToken()
	require.True(t, ok)
	usdc, ok := params.TokenBySymbol("USDC")
	require.True(t, ok)
	return &legBuilder{
		t:         t,
		params:    params,
		tokenIn:   params.WrappedNative,
		tokenOut:  usdc,
		tradeType: tradeType,
		usdToken:  usd,
	}
}

func poolAddress(n int) common.Address {
	return common.BigToAddress(big.NewInt(int64(0xa000 + n)))
}

func (b *legBuilder) v3(pool int, percent int, amount, quote int64) *model.RouteWithValidQuote {
	v3Pool := model.V3Pool{
		Address: poolAddress(pool),
		Token0:  b.tokenOut,
		Token1:  b.tokenIn,
		Fee:     model.FeeMedium,
	}
	route := model.V3Route{Pools: []model.V3Pool{v3Pool}, Path: []model.Token{b.tokenIn, b.tokenOut}}
	return b.leg(route, percent, amount, quote)
}

// v3TwoHop routes through pool first and then pool second.
func (b *legBuilder) v3TwoHop(first, second int, percent int, amount, quote int64) *model.RouteWithValidQuote {
	dai, ok := b.params.TokenBySymbol("DAI")
	require.True(b.t, ok)
	pools := []model.V3Pool{
		{Address: poolAddress(first), Token0: dai, Token1: b.tokenIn, Fee: model.FeeMedium},
		{Address: poolAddress(second), Token0: dai, Token1: b.tokenOut, Fee: model.FeeLowest},
	}
	route := model.V3Route{Pools: pools, Path: []model.Token{b.tokenIn, dai, b.tokenOut}}
	return b.leg(route, percent, amount, quote)
}

func (b *legBuilder) v2(pair int, percent int, amount, quote int64) *model.RouteWithValidQuote {
	v2Pair := model.NewV2Pair(poolAddress(pair), b.tokenIn, b.tokenOut, big.NewInt(1e6), big.NewInt(1e6))
	route := model.V2Route{Pairs: []model.V2Pair{v2Pair}, Path: []model.Token{b.tokenIn, b.tokenOut}}
	return b.leg(route, percent, amount, quote)
}

func (b *legBuilder) leg(route model.Route, percent int, amount, quote int64) *model.RouteWithValidQuote {
	return &model.RouteWithValidQuote{
		Route:               route,
		Percent:             percent,
		Amount:              big.NewInt(amount),
		RawQuote:            big.NewInt(quote),
		QuoteAdjustedForGas: big.NewInt(quote),
		GasEstimate:         big.NewInt(100_000),
		GasCostInToken:      big.NewInt(0),
		GasCostInUSD:        big.NewInt(0),
		USDToken:            b.usdToken,
		QuoteToken:          b.tokenOut,
		TradeType:           b.tradeType,
	}
}

func (b *legBuilder) request(amount int64, percents []int, routes ...*model.RouteWithValidQuote) Request {
	return Request{
		Amount:    big.NewInt(amount),
		Percents:  percents,
		Routes:    routes,
		TradeType: b.tradeType,
		Params:    b.params,
		Config:    Config{MinSplits: 1, MaxSplits: 7},
	}
}

func legSum(legs []*model.RouteWithValidQuote) *big.Int {
	sum := new(big.Int)
	for _, leg := range legs {
		sum.Add(sum, leg.Amount)
	}
	return sum
}

func TestSingleRouteBeatsWorseSplit(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	req := b.request(100, []int{50, 100},
		b.v3(1, 100, 100, 1000),
		b.v3(1, 50, 50, 300),
		b.v3(2, 50, 50, 300),
	)

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	assert.Equal(t, 100, result.Routes[0].Percent)
	assert.Equal(t, "1000", result.Quote.String())
	assert.Equal(t, "1000", result.QuoteGasAdjusted.String())
	assert.Equal(t, "100000", result.EstimatedGasUsed.String())
	assert.Equal(t, "100", legSum(result.Routes).String())
}

func TestSplitAcrossProtocols(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	req := b.request(100, []int{50, 100},
		b.v3(1, 100, 100, 1000),
		b.v3(1, 50, 50, 600),
		b.v2(2, 50, 50, 550),
	)

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 2)
	assert.Equal(t, "1150", result.Quote.String())
	assert.Equal(t, "200000", result.EstimatedGasUsed.String())

	protocols := map[model.Protocol]bool{}
	for _, leg := range result.Routes {
		protocols[leg.Protocol()] = true
		assert.Equal(t, 50, leg.Percent)
	}
	assert.True(t, protocols[model.ProtocolV2])
	assert.True(t, protocols[model.ProtocolV3])
}

func TestSplitNeverReusesPool(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	best := b.v3(1, 50, 50, 700)
	sharesPool := b.v3TwoHop(1, 3, 50, 50, 650)
	other := b.v3(2, 50, 50, 400)
	req := b.request(100, []int{50, 100}, best, sharesPool, other)

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 2)
	assert.Equal(t, "1100", result.QuoteGasAdjusted.String())

	seen := map[common.Address]bool{}
	for _, leg := range result.Routes {
		for _, address := range leg.PoolAddresses() {
			assert.False(t, seen[address], "pool %s used twice", address.Hex())
			seen[address] = true
		}
	}
}

func TestResidualAddedToLastLeg(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	first := b.v3(1, 50, 50, 600)
	second := b.v3(2, 50, 50, 600)
	req := b.request(101, []int{50, 100}, b.v3(1, 100, 101, 1000), first, second)

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 2)
	assert.Equal(t, "101", legSum(result.Routes).String())
	assert.Equal(t, "51", result.Routes[1].Amount.String())

	// Input legs are not mutated.
	assert.Equal(t, "50", first.Amount.String())
	assert.Equal(t, "50", second.Amount.String())
}

func TestNoRoute(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)

	_, err := NewSearcher(nil).GetBestSwapRoute(b.request(100, []int{50, 100}))
	require.ErrorIs(t, err, ErrNoRoute)

	// Both halves go through the same pool.
	req := b.request(100, []int{50, 100}, b.v3(1, 50, 50, 600), b.v3TwoHop(1, 2, 50, 50, 500))
	_, err = NewSearcher(nil).GetBestSwapRoute(req)
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestExactOutputMinimizesInput(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactOutput)
	req := b.request(100, []int{50, 100},
		b.v3(1, 100, 100, 1000),
		b.v3(1, 50, 50, 450),
		b.v3(2, 50, 50, 460),
	)

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 2)
	assert.Equal(t, "910", result.Quote.String())

	req = b.request(100, []int{50, 100},
		b.v3(1, 100, 100, 1000),
		b.v3(1, 50, 50, 600),
		b.v3(2, 50, 50, 600),
	)
	result, err = NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	assert.Equal(t, "1000", result.Quote.String())
}

func TestForceCrossProtocol(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	req := b.request(100, []int{50, 100},
		b.v3(1, 100, 100, 1300),
		b.v3(1, 50, 50, 700),
		b.v3(2, 50, 50, 650),
		b.v2(3, 50, 50, 300),
	)
	req.Config.ForceCrossProtocol = true

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 2)
	assert.Equal(t, "1000", result.Quote.String())
	assert.NotEqual(t, result.Routes[0].Protocol(), result.Routes[1].Protocol())
}

func TestMaxSplitsStopsSearch(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	req := b.request(100, []int{50, 100}, b.v3(1, 50, 50, 600), b.v3(2, 50, 50, 600))
	req.Config.MaxSplits = 1

	_, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.ErrorIs(t, err, ErrNoRoute)
}

func TestGasTotalsNormalizeUSDDecimals(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	usdc, ok := b.params.TokenBySymbol("USDC")
	require.True(t, ok)

	first := b.v3(1, 50, 50, 600)
	first.GasCostInToken = big.NewInt(10)
	first.QuoteAdjustedForGas = big.NewInt(590)
	first.GasCostInUSD = big.NewInt(5)
	first.USDToken = usdc
	second := b.v3(2, 50, 50, 600)
	second.GasCostInToken = big.NewInt(20)
	second.QuoteAdjustedForGas = big.NewInt(580)
	second.GasCostInUSD = big.NewInt(3_000_000_000_000)

	result, err := NewSearcher(nil).GetBestSwapRoute(b.request(100, []int{50, 100}, first, second))
	require.NoError(t, err)
	assert.Equal(t, "1200", result.Quote.String())
	assert.Equal(t, "1170", result.QuoteGasAdjusted.String())
	assert.Equal(t, "30", result.EstimatedGasUsedQuoteToken.String())
	// 5 USDC units at 6 decimals plus 3e12 DAI units at 18 decimals.
	assert.Equal(t, "8000000000000", result.EstimatedGasUsedUSD.String())
	assert.True(t, result.USDToken.Equals(b.usdToken))
}

type fakeL1 struct {
	fees  model.L1GasFees
	err   error
	calls int
}

func (f *fakeL1) CalculateL1GasFees(legs []*model.RouteWithValidQuote) (model.L1GasFees, error) {
	f.calls++
	return f.fees, f.err
}

func TestL1FeeChangesDecision(t *testing.T) {
	b := newLegBuilder(t, model.ChainOptimism, model.ExactInput)
	usdc, ok := b.params.TokenBySymbol("USDC")
	require.True(t, ok)
	calc := &fakeL1{fees: model.L1GasFees{
		GasUsedL1:           big.NewInt(1000),
		GasCostL1QuoteToken: big.NewInt(50),
		GasCostL1USD:        big.NewInt(7),
		USDToken:            usdc,
	}}
	req := b.request(100, []int{50, 100},
		b.v3(1, 100, 100, 1000),
		b.v3(1, 50, 50, 520),
		b.v3(2, 50, 50, 520),
	)
	req.L1 = calc

	result, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.NoError(t, err)
	require.Len(t, result.Routes, 1)
	assert.Equal(t, "1000", result.Quote.String())
	assert.Equal(t, "950", result.QuoteGasAdjusted.String())
	assert.Equal(t, "50", result.EstimatedGasUsedQuoteToken.String())
	assert.Equal(t, "7000000000000", result.EstimatedGasUsedUSD.String())
	assert.Equal(t, "1000", result.L1GasFees.GasUsedL1.String())
	assert.Positive(t, calc.calls)
}

func TestL1FeeUnsupported(t *testing.T) {
	b := newLegBuilder(t, model.ChainOptimism, model.ExactInput)

	req := b.request(100, []int{100}, b.v3(1, 100, 100, 1000))
	_, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.ErrorIs(t, err, ErrL1FeeUnsupported)

	req = b.request(100, []int{100}, b.v2(1, 100, 100, 1000))
	req.L1 = &fakeL1{}
	_, err = NewSearcher(nil).GetBestSwapRoute(req)
	require.ErrorIs(t, err, ErrL1FeeUnsupported)
}

func TestL1FeeCalculatorErrorIsNotUnsupported(t *testing.T) {
	b := newLegBuilder(t, model.ChainOptimism, model.ExactInput)
	oracleErr := errors.New("encode l1 data: bad path")

	req := b.request(100, []int{100}, b.v3(1, 100, 100, 1000))
	req.L1 = &fakeL1{err: oracleErr}
	_, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.ErrorIs(t, err, oracleErr)
	require.NotErrorIs(t, err, ErrL1FeeUnsupported)
}

func TestMissingUSDToken(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	req := b.request(100, []int{100}, b.v3(1, 100, 100, 1000))
	req.Params.USDGasTokens = nil

	_, err := NewSearcher(nil).GetBestSwapRoute(req)
	require.ErrorIs(t, err, gasmodel.ErrNoUSDToken)
}

func TestSearchIsDeterministic(t *testing.T) {
	b := newLegBuilder(t, model.ChainMainnet, model.ExactInput)
	percents := []int{25, 50, 75, 100}
	var routes []*model.RouteWithValidQuote
	for pool := 1; pool <= 4; pool++ {
		for _, percent := range percents {
			quote := int64(percent*10 - pool*percent/10)
			routes = append(routes, b.v3(pool, percent, int64(percent*4), quote))
		}
	}

	describe := func(result *Result) string {
		return fmt.Sprintf("%s %v", result.QuoteGasAdjusted, describeLegs(result.Routes))
	}
	first, err := NewSearcher(nil).GetBestSwapRoute(b.request(400, percents, routes...))
	require.NoError(t, err)
	for i := 0; i < 5; i++ {
		again, err := NewSearcher(nil).GetBestSwapRoute(b.request(400, percents, routes...))
		require.NoError(t, err)
		require.Equal(t, describe(first), describe(again))
	}
	assert.Equal(t, "400", legSum(first.Routes).String())
}

func TestTopSwapsKeepsBest(t *testing.T) {
	top := newTopSwaps(2, func(a, b *big.Int) bool { return a.Cmp(b) > 0 })
	for _, q := range []int64{5, 9, 1, 7} {
		top.offer(candidateSwap{quote: big.NewInt(q)})
	}
	got := top.consume()
	require.Len(t, got, 2)
	assert.Equal(t, "9", got[0].quote.String())
	assert.Equal(t, "7", got[1].quote.String())
	assert.Empty(t, top.consume())
}
