package model

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// MethodParameters is encoded call data for the execution layer.
type MethodParameters struct {
	To       common.Address `json:"to"`
	Calldata hexutil.Bytes  `json:"calldata"`
	Value    *hexutil.Big   `json:"value"`
}

// SwapPlan is the final routing result.
type SwapPlan struct {
	TokenIn                    Token                  `json:"token_in"`
	TokenOut                   Token                  `json:"token_out"`
	TradeType                  TradeType              `json:"trade_type"`
	Amount                     *big.Int               `json:"amount"`
	Quote                      *big.Int               `json:"quote"`
	QuoteGasAdjusted           *big.Int               `json:"quote_gas_adjusted"`
	EstimatedGasUsed           *big.Int               `json:"estimated_gas_used"`
	EstimatedGasUsedUSD        *big.Int               `json:"estimated_gas_used_usd"`
	EstimatedGasUsedQuoteToken *big.Int               `json:"estimated_gas_used_quote_token"`
	USDToken                   Token                  `json:"usd_token"`
	GasPriceWei                *big.Int               `json:"gas_price_wei"`
	Routes                     []*RouteWithValidQuote `json:"-"`
	MethodParameters           *MethodParameters      `json:"method_parameters,omitempty"`
	BlockNumber                uint64                 `json:"block_number"`
}

// QuoteToken is the token the quote is denominated in.
func (p *SwapPlan) QuoteToken() Token {
	if p.TradeType == ExactOutput {
		return p.TokenIn
	}
	return p.TokenOut
}

// PlanLeg is the serializable form of one leg.
type PlanLeg struct {
	Protocol Protocol `json:"protocol"`
	Percent  int      `json:"percent"`
	Amount   string   `json:"amount"`
	Quote    string   `json:"quote"`
	Route    string   `json:"route"`
	Pools    []string `json:"pools"`
}

// Legs returns the plan's legs in serializable form.
func (p *SwapPlan) Legs() []PlanLeg {
	out := make([]PlanLeg, 0, len(p.Routes))
	for _, leg := range p.Routes {
		pools := make([]string, 0, len(leg.PoolAddresses()))
		for _, addr := range leg.PoolAddresses() {
			pools = append(pools, addr.Hex())
		}
		out = append(out, PlanLeg{
			Protocol: leg.Protocol(),
			Percent:  leg.Percent,
			Amount:   leg.Amount.String(),
			Quote:    leg.RawQuote.String(),
			Route:    leg.Route.String(),
			Pools:    pools,
		})
	}
	return out
}

// PlanRecord is one routed plan as written to the audit sink.
type PlanRecord struct {
	Timestamp time.Time `json:"ts"`
	ChainID   ChainID   `json:"chain_id"`
	Plan      *SwapPlan `json:"plan"`
	Legs      []PlanLeg `json:"legs"`
}

// NewPlanRecord snapshots plan for auditing.
func NewPlanRecord(chainID ChainID, plan *SwapPlan, now time.Time) PlanRecord {
	return PlanRecord{
		Timestamp: now.UTC(),
		ChainID:   chainID,
		Plan:      plan,
		Legs:      plan.Legs(),
	}
}
