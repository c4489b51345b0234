package model

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FeeAmount is a V3 fee tier in hundredths of a basis point.
type FeeAmount uint32

const (
	FeeLowest FeeAmount = 100
	FeeLow    FeeAmount = 500
	FeeMedium FeeAmount = 3000
	FeeHigh   FeeAmount = 10000
)

// FeeAmounts lists supported tiers, highest first.
var FeeAmounts = []FeeAmount{FeeHigh, FeeMedium, FeeLow, FeeLowest}

// ParseFeeAmount maps a subgraph fee tier to a supported tier.
func ParseFeeAmount(tier string) (FeeAmount, error) {
	switch strings.TrimSpace(tier) {
	case "10000":
		return FeeHigh, nil
	case "3000":
		return FeeMedium, nil
	case "500":
		return FeeLow, nil
	case "100":
		return FeeLowest, nil
	default:
		return 0, fmt.Errorf("fee tier %q not supported", tier)
	}
}

func (f FeeAmount) String() string {
	return strconv.FormatUint(uint64(f), 10)
}

// TickSpacing is the tick spacing the factory enables for the tier.
func (f FeeAmount) TickSpacing() int32 {
	switch f {
	case FeeLowest:
		return 1
	case FeeLow:
		return 10
	case FeeMedium:
		return 60
	case FeeHigh:
		return 200
	default:
		return 0
	}
}

// Pool is a priced liquidity pool at one block.
type Pool interface {
	PoolAddress() common.Address
	Tokens() (Token, Token)
	Protocol() Protocol
}

// Involves reports whether token is one side of the pool.
func Involves(p Pool, token Token) bool {
	t0, t1 := p.Tokens()
	return t0.Equals(token) || t1.Equals(token)
}

// OtherToken returns the side of the pool that is not token.
func OtherToken(p Pool, token Token) Token {
	t0, t1 := p.Tokens()
	if t0.Equals(token) {
		return t1
	}
	return t0
}

// V2Pair is a constant-product pair with reserves at the pinned block.
type V2Pair struct {
	Address  common.Address
	Token0   Token
	Token1   Token
	Reserve0 *big.Int
	Reserve1 *big.Int
}

// NewV2Pair orders the tokens and their reserves.
func NewV2Pair(address common.Address, a, b Token, reserveA, reserveB *big.Int) V2Pair {
	if b.SortsBefore(a) {
		a, b = b, a
		reserveA, reserveB = reserveB, reserveA
	}
	return V2Pair{Address: address, Token0: a, Token1: b, Reserve0: reserveA, Reserve1: reserveB}
}

func (p V2Pair) PoolAddress() common.Address { return p.Address }
func (p V2Pair) Tokens() (Token, Token)      { return p.Token0, p.Token1 }
func (p V2Pair) Protocol() Protocol          { return ProtocolV2 }

// ReserveOf returns the reserve held for token.
func (p V2Pair) ReserveOf(token Token) *big.Int {
	if p.Token0.Equals(token) {
		return p.Reserve0
	}
	return p.Reserve1
}

// V3Pool is a concentrated-liquidity pool with slot0 state at the pinned block.
type V3Pool struct {
	Address      common.Address
	Token0       Token
	Token1       Token
	Fee          FeeAmount
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         int32
}

func (p V3Pool) PoolAddress() common.Address { return p.Address }
func (p V3Pool) Tokens() (Token, Token)      { return p.Token0, p.Token1 }
func (p V3Pool) Protocol() Protocol          { return ProtocolV3 }

// PoolRecord is a V3 pool row as stored by the indexer tables.
type PoolRecord struct {
	ChainID        uint64 `json:"chain_id"`
	Address        string `json:"address"`
	Token0         string `json:"token0"`
	Token1         string `json:"token1"`
	Fee            uint32 `json:"fee"`
	TickSpacing    int32  `json:"tick_spacing"`
	FirstSeenBlock uint64 `json:"first_seen_block"`
}
