package metrics

import (
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"swaprouter/internal/model"
)

func leg(route model.Route) *model.RouteWithValidQuote {
	return &model.RouteWithValidQuote{Route: route, Percent: 50, Amount: big.NewInt(1)}
}

func TestObserveRoute(t *testing.T) {
	weth := model.NewToken(model.ChainMainnet, "0xC02aaA39b223FE8D0A0e5C4F27eAD9083C756Cc2", 18, "WETH")
	usdc := model.NewToken(model.ChainMainnet, "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48", 6, "USDC")
	v3Address := common.HexToAddress("0x00000000000000000000000000000000000000a1")
	v2Address := common.HexToAddress("0x00000000000000000000000000000000000000b2")

	v3 := model.V3Route{
		Pools: []model.V3Pool{{Address: v3Address, Token0: usdc, Token1: weth, Fee: model.FeeLow}},
		Path:  []model.Token{weth, usdc},
	}
	v2 := model.V2Route{
		Pairs: []model.V2Pair{model.NewV2Pair(v2Address, weth, usdc, big.NewInt(1), big.NewInt(1))},
		Path:  []model.Token{weth, usdc},
	}
	legs := []*model.RouteWithValidQuote{leg(v3), leg(v2)}

	selections := []model.CandidatePoolsBySelectionCriteria{{
		Protocol: model.ProtocolV3,
		Selections: model.PoolSelections{
			TopByTVL: []model.SubgraphPool{{ID: "0xother"}, {ID: model.AddressKey(v3Address)}},
		},
	}}

	c := New(prometheus.NewRegistry())
	c.ObserveRoute(legs, selections)

	assert.Equal(t, float64(1), testutil.ToFloat64(c.RouteShapes.WithLabelValues("mixed", "split")), "mixed split routes")
	assert.Equal(t, 1, testutil.CollectAndCount(c.TopNUsed), "bucket observations")
}

func TestTopNUsed(t *testing.T) {
	used := map[string]struct{}{"0xb": {}}
	bucket := []model.SubgraphPool{{ID: "0xa"}, {ID: "0xb"}, {ID: "0xc"}}
	assert.Equal(t, 2, TopNUsed(bucket, used))
	assert.Equal(t, -1, TopNUsed(bucket[:1], used))
}

func TestNilCollectorsAreSafe(t *testing.T) {
	var c *Collectors
	c.ObserveRoute(nil, nil)
	c.ObserveRequest(model.ExactInput, "ok")
	c.ObserveQuotes(model.ProtocolV3, 1, 1)
	c.ObserveStale(model.ProtocolV2)
}
