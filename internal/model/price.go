package model

import "math/big"

var q192 = new(big.Int).Lsh(big.NewInt(1), 192)

// ConvertAtMidPrice values amount of from in the other pool token at the
// current sqrt price, ignoring fees and price impact. Gas models use it to
// move gas costs between tokens.
func (p V3Pool) ConvertAtMidPrice(from Token, amount *big.Int) *big.Int {
	if amount == nil || p.SqrtPriceX96 == nil || p.SqrtPriceX96.Sign() == 0 {
		return new(big.Int)
	}
	priceX192 := new(big.Int).Mul(p.SqrtPriceX96, p.SqrtPriceX96)
	if p.Token0.Equals(from) {
		out := new(big.Int).Mul(amount, priceX192)
		return out.Quo(out, q192)
	}
	out := new(big.Int).Mul(amount, q192)
	return out.Quo(out, priceX192)
}

// ConvertAtMidPrice values amount of from in the other pair token at the
// reserve ratio.
func (p V2Pair) ConvertAtMidPrice(from Token, amount *big.Int) *big.Int {
	reserveIn := p.ReserveOf(from)
	reserveOut := p.ReserveOf(OtherToken(p, from))
	if amount == nil || reserveIn == nil || reserveOut == nil || reserveIn.Sign() == 0 {
		return new(big.Int)
	}
	out := new(big.Int).Mul(amount, reserveOut)
	return out.Quo(out, reserveIn)
}
