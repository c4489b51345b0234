package quoter

import (
	"errors"
	"math/big"

	"github.com/holiman/uint256"
	"go.uber.org/zap"

	"swaprouter/internal/model"
)

var (
	errInsufficientReserves    = errors.New("insufficient reserves")
	errInsufficientInputAmount = errors.New("insufficient input amount")
	errOverflow                = errors.New("amount overflows 256 bits")
)

var (
	feeNumerator   = uint256.NewInt(997)
	feeDenominator = uint256.NewInt(1000)
)

// V2Quoter prices V2 routes locally from the loaded reserves.
type V2Quoter struct {
	logger *zap.Logger
}

func NewV2Quoter(logger *zap.Logger) *V2Quoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V2Quoter{logger: logger}
}

// Quote prices every route at every amount. Quotes that fail on reserves or
// input size are Unpriced.
func (q *V2Quoter) Quote(routes []model.V2Route, amounts []*big.Int, tradeType model.TradeType) []model.RouteWithQuotes {
	out := make([]model.RouteWithQuotes, 0, len(routes))
	for _, route := range routes {
		quotes := make([]model.AmountQuote, len(amounts))
		failures := 0
		for i, amount := range amounts {
			var (
				result *big.Int
				err    error
			)
			if tradeType == model.ExactInput {
				result, err = quoteV2ExactIn(route, amount)
			} else {
				result, err = quoteV2ExactOut(route, amount)
			}
			quotes[i] = model.AmountQuote{Amount: amount}
			if err != nil {
				failures++
				quotes[i].Quote = model.Unpriced(err.Error())
				continue
			}
			quotes[i].Quote = model.Priced(result)
		}
		if failures > 0 {
			q.logger.Debug("failed v2 quotes",
				zap.String("route", route.String()),
				zap.Int("failed", failures),
			)
		}
		out = append(out, model.RouteWithQuotes{Route: route, Quotes: quotes})
	}
	return out
}

func quoteV2ExactIn(route model.V2Route, amountIn *big.Int) (*big.Int, error) {
	if amountIn == nil || amountIn.Sign() < 0 {
		return nil, errInsufficientInputAmount
	}
	amount, overflow := uint256.FromBig(amountIn)
	if overflow {
		return nil, errOverflow
	}
	for i, pair := range route.Pairs {
		reserveIn, reserveOut, err := reserves(pair, route.Path[i])
		if err != nil {
			return nil, err
		}
		amount, err = v2OutputAmount(amount, reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}
	return amount.ToBig(), nil
}

func quoteV2ExactOut(route model.V2Route, amountOut *big.Int) (*big.Int, error) {
	if amountOut == nil || amountOut.Sign() < 0 {
		return nil, errInsufficientInputAmount
	}
	amount, overflow := uint256.FromBig(amountOut)
	if overflow {
		return nil, errOverflow
	}
	for i := len(route.Pairs) - 1; i >= 0; i-- {
		reserveIn, reserveOut, err := reserves(route.Pairs[i], route.Path[i])
		if err != nil {
			return nil, err
		}
		amount, err = v2InputAmount(amount, reserveIn, reserveOut)
		if err != nil {
			return nil, err
		}
	}
	return amount.ToBig(), nil
}

func reserves(pair model.V2Pair, tokenIn model.Token) (*uint256.Int, *uint256.Int, error) {
	rawIn := pair.ReserveOf(tokenIn)
	rawOut := pair.ReserveOf(model.OtherToken(pair, tokenIn))
	if rawIn == nil || rawOut == nil || rawIn.Sign() <= 0 || rawOut.Sign() <= 0 {
		return nil, nil, errInsufficientReserves
	}
	in, overflowIn := uint256.FromBig(rawIn)
	out, overflowOut := uint256.FromBig(rawOut)
	if overflowIn || overflowOut {
		return nil, nil, errOverflow
	}
	return in, out, nil
}

// v2OutputAmount is the constant-product output after the 0.3% fee.
func v2OutputAmount(amountIn, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	withFee, overflow := new(uint256.Int).MulOverflow(amountIn, feeNumerator)
	if overflow {
		return nil, errOverflow
	}
	numerator, overflow := new(uint256.Int).MulOverflow(withFee, reserveOut)
	if overflow {
		return nil, errOverflow
	}
	denominator := new(uint256.Int).Mul(reserveIn, feeDenominator)
	denominator, overflow = denominator.AddOverflow(denominator, withFee)
	if overflow {
		return nil, errOverflow
	}
	out := new(uint256.Int).Div(numerator, denominator)
	if out.IsZero() {
		return nil, errInsufficientInputAmount
	}
	return out, nil
}

// v2InputAmount is the input needed for amountOut, rounded up.
func v2InputAmount(amountOut, reserveIn, reserveOut *uint256.Int) (*uint256.Int, error) {
	if amountOut.Cmp(reserveOut) >= 0 {
		return nil, errInsufficientReserves
	}
	numerator, overflow := new(uint256.Int).MulOverflow(reserveIn, amountOut)
	if overflow {
		return nil, errOverflow
	}
	numerator, overflow = numerator.MulOverflow(numerator, feeDenominator)
	if overflow {
		return nil, errOverflow
	}
	denominator := new(uint256.Int).Sub(reserveOut, amountOut)
	denominator.Mul(denominator, feeNumerator)
	in := new(uint256.Int).Div(numerator, denominator)
	return in.AddUint64(in, 1), nil
}
