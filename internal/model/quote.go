package model

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

// Quote is either a priced amount or the reason pricing failed.
type Quote struct {
	amount *big.Int
	reason string
}

func Priced(amount *big.Int) Quote {
	return Quote{amount: amount}
}

func Unpriced(reason string) Quote {
	if reason == "" {
		reason = "unpriced"
	}
	return Quote{reason: reason}
}

func (q Quote) IsPriced() bool {
	return q.amount != nil
}

// Amount returns the priced amount and whether it exists.
func (q Quote) Amount() (*big.Int, bool) {
	return q.amount, q.amount != nil
}

func (q Quote) Reason() string {
	return q.reason
}

func (q Quote) String() string {
	if q.amount != nil {
		return q.amount.String()
	}
	return "unpriced(" + q.reason + ")"
}

// AmountQuote is the result of pricing one route at one amount. The V3 fields
// carry the structural data gas models need.
type AmountQuote struct {
	Amount                      *big.Int
	Quote                       Quote
	SqrtPriceX96AfterList       []*big.Int
	InitializedTicksCrossedList []uint32
	GasEstimate                 *big.Int
}

// RouteWithQuotes pairs a route with quotes aligned to the amount distribution.
type RouteWithQuotes struct {
	Route  Route
	Quotes []AmountQuote
}

// GasCost is a gas model estimate for one route at one amount.
type GasCost struct {
	GasEstimate    *big.Int
	GasCostInToken *big.Int
	GasCostInUSD   *big.Int
	USDToken       Token
}

// L1GasFees is the L1 data-publication fee of a whole split on a rollup.
type L1GasFees struct {
	GasUsedL1           *big.Int
	GasCostL1QuoteToken *big.Int
	GasCostL1USD        *big.Int
	USDToken            Token
}

// GasEstimator converts a quoted route into a gas cost.
type GasEstimator interface {
	Estimate(route *RouteWithValidQuote) (GasCost, error)
}

// RouteWithValidQuote is one candidate leg: a route priced at a percent of the
// trade, with its gas cost applied.
type RouteWithValidQuote struct {
	Route                       Route
	Percent                     int
	Amount                      *big.Int
	RawQuote                    *big.Int
	QuoteAdjustedForGas         *big.Int
	GasEstimate                 *big.Int
	GasCostInToken              *big.Int
	GasCostInUSD                *big.Int
	USDToken                    Token
	QuoteToken                  Token
	TradeType                   TradeType
	SqrtPriceX96AfterList       []*big.Int
	InitializedTicksCrossedList []uint32

	poolAddresses []common.Address
}

// NewRouteWithValidQuote prices a leg through the gas estimator.
func NewRouteWithValidQuote(
	route Route,
	percent int,
	amountQuote AmountQuote,
	quoteToken Token,
	tradeType TradeType,
	estimator GasEstimator,
) (*RouteWithValidQuote, error) {
	if percent <= 0 || percent > 100 {
		return nil, fmt.Errorf("percent %d out of range", percent)
	}
	raw, ok := amountQuote.Quote.Amount()
	if !ok {
		return nil, fmt.Errorf("route %s at %d%% is unpriced: %s", route, percent, amountQuote.Quote.Reason())
	}
	if estimator == nil {
		return nil, fmt.Errorf("gas estimator is nil")
	}

	rv := &RouteWithValidQuote{
		Route:                       route,
		Percent:                     percent,
		Amount:                      new(big.Int).Set(amountQuote.Amount),
		RawQuote:                    new(big.Int).Set(raw),
		QuoteToken:                  quoteToken,
		TradeType:                   tradeType,
		SqrtPriceX96AfterList:       amountQuote.SqrtPriceX96AfterList,
		InitializedTicksCrossedList: amountQuote.InitializedTicksCrossedList,
		poolAddresses:               route.PoolAddresses(),
	}

	cost, err := estimator.Estimate(rv)
	if err != nil {
		return nil, fmt.Errorf("estimate gas: %w", err)
	}
	rv.GasEstimate = cost.GasEstimate
	rv.GasCostInToken = cost.GasCostInToken
	rv.GasCostInUSD = cost.GasCostInUSD
	rv.USDToken = cost.USDToken

	if tradeType == ExactInput {
		rv.QuoteAdjustedForGas = new(big.Int).Sub(rv.RawQuote, cost.GasCostInToken)
	} else {
		rv.QuoteAdjustedForGas = new(big.Int).Add(rv.RawQuote, cost.GasCostInToken)
	}
	return rv, nil
}

func (r *RouteWithValidQuote) Protocol() Protocol {
	return r.Route.Protocol()
}

func (r *RouteWithValidQuote) PoolAddresses() []common.Address {
	if r.poolAddresses == nil {
		r.poolAddresses = r.Route.PoolAddresses()
	}
	return r.poolAddresses
}

// Clone copies the leg so the amount can be adjusted without aliasing.
func (r *RouteWithValidQuote) Clone() *RouteWithValidQuote {
	out := *r
	out.Amount = new(big.Int).Set(r.Amount)
	return &out
}

func (r *RouteWithValidQuote) String() string {
	return fmt.Sprintf("%d%% QuoteGasAdj[%s] Quote[%s] Gas[%s] = %s",
		r.Percent, r.QuoteAdjustedForGas, r.RawQuote, r.GasEstimate, r.Route)
}
