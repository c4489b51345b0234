package calldata

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

// ErrNoSwapRouter is returned for chains without a SwapRouter02 deployment.
var ErrNoSwapRouter = errors.New("swap router not deployed on chain")

const bpsDenominator = 10_000

// SwapOptions are the execution parameters of a plan.
type SwapOptions struct {
	Recipient   common.Address
	SlippageBps uint32
	Deadline    uint64
}

type exactInputParams struct {
	Path             []byte
	Recipient        common.Address
	AmountIn         *big.Int
	AmountOutMinimum *big.Int
}

type exactOutputParams struct {
	Path            []byte
	Recipient       common.Address
	AmountOut       *big.Int
	AmountInMaximum *big.Int
}

// Encoder builds SwapRouter02 multicall data for a set of legs.
type Encoder struct {
	router common.Address
}

func NewEncoder(params chain.Params) (*Encoder, error) {
	if params.SwapRouter02 == (common.Address{}) {
		return nil, fmt.Errorf("%w: %s", ErrNoSwapRouter, params.Name)
	}
	return &Encoder{router: params.SwapRouter02}, nil
}

// Encode wraps one swap call per leg in multicall(deadline, data). Limits
// are derived from each leg's raw quote and the slippage tolerance.
func (e *Encoder) Encode(tradeType model.TradeType, legs []*model.RouteWithValidQuote, opts SwapOptions) (*model.MethodParameters, error) {
	if len(legs) == 0 {
		return nil, fmt.Errorf("no legs to encode")
	}
	if opts.SlippageBps >= bpsDenominator {
		return nil, fmt.Errorf("slippage %d bps out of range", opts.SlippageBps)
	}
	routerABI, err := dex.SwapRouter02ABI()
	if err != nil {
		return nil, fmt.Errorf("parse swap router abi: %w", err)
	}

	calls := make([][]byte, 0, len(legs))
	for i, leg := range legs {
		data, err := encodeLeg(routerABI.Pack, tradeType, leg, opts)
		if err != nil {
			return nil, fmt.Errorf("encode leg %d: %w", i, err)
		}
		calls = append(calls, data)
	}

	data, err := routerABI.Pack("multicall", new(big.Int).SetUint64(opts.Deadline), calls)
	if err != nil {
		return nil, fmt.Errorf("pack multicall: %w", err)
	}
	return &model.MethodParameters{
		To:       e.router,
		Calldata: data,
		Value:    (*hexutil.Big)(new(big.Int)),
	}, nil
}

type packFunc func(method string, args ...interface{}) ([]byte, error)

func encodeLeg(pack packFunc, tradeType model.TradeType, leg *model.RouteWithValidQuote, opts SwapOptions) ([]byte, error) {
	exactOutput := tradeType == model.ExactOutput
	limit := MinimumOut(leg.RawQuote, opts.SlippageBps)
	if exactOutput {
		limit = MaximumIn(leg.RawQuote, opts.SlippageBps)
	}

	switch route := leg.Route.(type) {
	case model.V3Route:
		path, err := dex.EncodeV3Path(route, exactOutput)
		if err != nil {
			return nil, err
		}
		if exactOutput {
			return pack("exactOutput", exactOutputParams{
				Path:            path,
				Recipient:       opts.Recipient,
				AmountOut:       leg.Amount,
				AmountInMaximum: limit,
			})
		}
		return pack("exactInput", exactInputParams{
			Path:             path,
			Recipient:        opts.Recipient,
			AmountIn:         leg.Amount,
			AmountOutMinimum: limit,
		})
	case model.V2Route:
		path := dex.V2AddressPath(route)
		if exactOutput {
			return pack("swapTokensForExactTokens", leg.Amount, limit, path, opts.Recipient)
		}
		return pack("swapExactTokensForTokens", leg.Amount, limit, path, opts.Recipient)
	default:
		return nil, fmt.Errorf("unsupported route type %T", leg.Route)
	}
}

// MinimumOut is quote reduced by slippage, rounded down.
func MinimumOut(quote *big.Int, slippageBps uint32) *big.Int {
	out := new(big.Int).Mul(quote, big.NewInt(int64(bpsDenominator-slippageBps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}

// MaximumIn is quote increased by slippage, rounded down.
func MaximumIn(quote *big.Int, slippageBps uint32) *big.Int {
	out := new(big.Int).Mul(quote, big.NewInt(int64(bpsDenominator+slippageBps)))
	return out.Quo(out, big.NewInt(bpsDenominator))
}
