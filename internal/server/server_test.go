package server

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bytedance/sonic"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"swaprouter/internal/bestroute"
	"swaprouter/internal/calldata"
	"swaprouter/internal/chain"
	"swaprouter/internal/model"
	"swaprouter/internal/provider"
	"swaprouter/internal/router"
)

type fakeRouter struct {
	params chain.Params
	plan   *model.SwapPlan
	err    error

	gotAmount *big.Int
	gotIn     model.Token
	gotOut    model.Token
	gotType   model.TradeType
	gotOpts   *calldata.SwapOptions
	gotConfig *router.RoutingConfig
}

func (f *fakeRouter) Params() chain.Params { return f.params }

func (f *fakeRouter) Route(_ context.Context, amount *big.Int, tokenIn, tokenOut model.Token, tradeType model.TradeType, opts *calldata.SwapOptions, cfg *router.RoutingConfig) (*model.SwapPlan, error) {
	f.gotAmount, f.gotIn, f.gotOut, f.gotType, f.gotOpts, f.gotConfig = amount, tokenIn, tokenOut, tradeType, opts, cfg
	return f.plan, f.err
}

func newTestServer(t *testing.T, rt *fakeRouter) http.Handler {
	t.Helper()
	extra := model.NewToken(model.ChainMainnet, "0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984", 18, "UNI")
	tokens := provider.NewCachingTokenResolver([]model.Token{extra}, nil)
	return New(DefaultConfig(), rt, tokens, prometheus.NewRegistry(), nil).Handler()
}

func mainnetRouter(t *testing.T) *fakeRouter {
	t.Helper()
	params, err := chain.ParamsFor(model.ChainMainnet)
	require.NoError(t, err)
	return &fakeRouter{params: params}
}

func get(t *testing.T, handler http.Handler, target string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, target, nil))
	return rec
}

func TestHealthz(t *testing.T) {
	rec := get(t, newTestServer(t, mainnetRouter(t)), "/healthz")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "mainnet")
}

func TestQuote(t *testing.T) {
	rt := mainnetRouter(t)
	usdc, _ := rt.params.TokenBySymbol("USDC")
	weth := rt.params.WrappedNative
	usd, _ := rt.params.USDToken()
	pool := model.V3Pool{Address: common.HexToAddress("0x00000000000000000000000000000000000000a1"), Token0: usdc, Token1: weth, Fee: model.FeeLow}
	rt.plan = &model.SwapPlan{
		TokenIn:                    weth,
		TokenOut:                   usdc,
		TradeType:                  model.ExactInput,
		Amount:                     big.NewInt(1_000_000_000_000_000_000),
		Quote:                      big.NewInt(2_500_000_000),
		QuoteGasAdjusted:           big.NewInt(2_499_000_000),
		EstimatedGasUsed:           big.NewInt(113_000),
		EstimatedGasUsedUSD:        big.NewInt(1_000_000_000_000_000_000),
		EstimatedGasUsedQuoteToken: big.NewInt(1_000_000),
		USDToken:                   usd,
		GasPriceWei:                big.NewInt(30_000_000_000),
		BlockNumber:                19_000_000,
		Routes: []*model.RouteWithValidQuote{{
			Route:    model.V3Route{Pools: []model.V3Pool{pool}, Path: []model.Token{weth, usdc}},
			Percent:  100,
			Amount:   big.NewInt(1_000_000_000_000_000_000),
			RawQuote: big.NewInt(2_500_000_000),
		}},
	}

	rec := get(t, newTestServer(t, rt), "/quote?tokenIn=WETH&tokenOut=usdc&amount=1000000000000000000&type=exactIn&maxSplits=3&protocols=v3")
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var resp quoteResponse
	require.NoError(t, sonic.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "2500", resp.QuoteDecimals)
	assert.Equal(t, "1", resp.AmountDecimals)
	assert.Equal(t, "1", resp.GasUseEstimateUSD)
	require.Len(t, resp.Route, 1)
	assert.EqualValues(t, 100, resp.Route[0].Percent)
	assert.True(t, rt.gotIn.Equals(weth))
	assert.True(t, rt.gotOut.Equals(usdc))
	require.NotNil(t, rt.gotConfig)
	assert.Equal(t, 3, rt.gotConfig.MaxSplits)
	assert.Equal(t, []model.Protocol{model.ProtocolV3}, rt.gotConfig.Protocols)
	assert.Nil(t, rt.gotConfig.V3PoolSelection.TopN)
	assert.Nil(t, rt.gotOpts)
}

func TestQuoteResolvesAddressesAndOptions(t *testing.T) {
	rt := mainnetRouter(t)
	rec := get(t, newTestServer(t, rt),
		"/quote?tokenIn=0x1f9840a85d5aF5bf1D1762F925BDADdC4201F984&tokenOut=WETH&amount=5&type=exactOut&recipient=0x0000000000000000000000000000000000000abc&slippageBps=30&deadline=1700000000")
	assert.Equal(t, http.StatusNotFound, rec.Code, "nil plan")
	assert.Equal(t, "UNI", rt.gotIn.Symbol)
	assert.Equal(t, model.ExactOutput, rt.gotType)
	require.NotNil(t, rt.gotOpts)
	assert.EqualValues(t, 30, rt.gotOpts.SlippageBps)
	assert.EqualValues(t, 1_700_000_000, rt.gotOpts.Deadline)
}

func TestQuoteRejectsBadInput(t *testing.T) {
	rt := mainnetRouter(t)
	handler := newTestServer(t, rt)

	cases := []string{
		"/quote?tokenIn=WETH&tokenOut=USDC",
		"/quote?tokenIn=WETH&tokenOut=USDC&amount=-1",
		"/quote?tokenIn=NOPE&tokenOut=USDC&amount=1",
		"/quote?tokenIn=WETH&tokenOut=USDC&amount=1&type=sideways",
		"/quote?tokenIn=WETH&tokenOut=USDC&amount=1&maxSplits=zero",
		"/quote?tokenIn=WETH&tokenOut=USDC&amount=1&recipient=0x0000000000000000000000000000000000000abc",
		"/quote?tokenIn=WETH&tokenOut=USDC&amount=1&v3TopNDirectSwaps=-1",
		"/quote?tokenIn=WETH&tokenOut=USDC&amount=1&v2TopN=many",
	}
	for _, target := range cases {
		assert.Equal(t, http.StatusBadRequest, get(t, handler, target).Code, target)
	}
}

func TestQuoteMapsRouterErrors(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "configuration", err: router.ErrConfiguration, want: http.StatusBadRequest},
		{name: "l1 fee unsupported", err: fmt.Errorf("route: %w", bestroute.ErrL1FeeUnsupported), want: http.StatusBadRequest},
		{name: "l1 oracle failure", err: fmt.Errorf("calculate l1 gas fees: %w", errors.New("oracle down")), want: http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rt := mainnetRouter(t)
			rt.err = tc.err
			rec := get(t, newTestServer(t, rt), "/quote?tokenIn=WETH&tokenOut=USDC&amount=1")
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestQuotePoolSelectionParams(t *testing.T) {
	rt := mainnetRouter(t)
	rec := get(t, newTestServer(t, rt), "/quote?tokenIn=WETH&tokenOut=USDC&amount=1&v3TopNDirectSwaps=0&v2TopN=7")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	require.NotNil(t, rt.gotConfig)
	v3 := rt.gotConfig.V3PoolSelection
	require.NotNil(t, v3.TopNDirectSwaps, "an explicit zero is forwarded")
	assert.Zero(t, *v3.TopNDirectSwaps)
	assert.Nil(t, v3.TopN)
	require.NotNil(t, rt.gotConfig.V2PoolSelection.TopN)
	assert.Equal(t, 7, *rt.gotConfig.V2PoolSelection.TopN)
}

func TestMetricsEndpoint(t *testing.T) {
	rec := get(t, newTestServer(t, mainnetRouter(t)), "/metrics")
	assert.Equal(t, http.StatusOK, rec.Code)
}
