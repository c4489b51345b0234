package quoter

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"swaprouter/internal/chain"
	"swaprouter/internal/dex"
	"swaprouter/internal/model"
)

// V3Quoter prices V3 routes through QuoterV2 calls packed into multicall
// batches pinned to one block.
type V3Quoter struct {
	caller chain.BatchCaller
	params chain.Params
	policy BatchPolicy
	logger *zap.Logger
}

func NewV3Quoter(caller chain.BatchCaller, params chain.Params, policy BatchPolicy, logger *zap.Logger) *V3Quoter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &V3Quoter{caller: caller, params: params, policy: policy.withDefaults(), logger: logger}
}

type quoteInput struct {
	route  int
	amount int
	path   []byte
	value  *big.Int
}

type batchPass struct {
	chunk    int
	gasLimit uint64
}

// Quote prices every route at every amount at blockNumber. Per-call
// failures become Unpriced quotes; a batch that keeps failing after its
// retries fails the whole call.
func (q *V3Quoter) Quote(ctx context.Context, routes []model.V3Route, amounts []*big.Int, tradeType model.TradeType, blockNumber uint64) ([]model.RouteWithQuotes, error) {
	quoterABI, err := dex.QuoterV2ABI()
	if err != nil {
		return nil, fmt.Errorf("parse quoter abi: %w", err)
	}
	method := "quoteExactInput"
	if tradeType == model.ExactOutput {
		method = "quoteExactOutput"
	}

	out := make([]model.RouteWithQuotes, len(routes))
	inputs := make([]quoteInput, 0, len(routes)*len(amounts))
	for i, route := range routes {
		out[i] = model.RouteWithQuotes{Route: route, Quotes: make([]model.AmountQuote, len(amounts))}
		path, err := dex.EncodeV3Path(route, tradeType == model.ExactOutput)
		if err != nil {
			return nil, fmt.Errorf("encode path %s: %w", route, err)
		}
		for j, amount := range amounts {
			out[i].Quotes[j] = model.AmountQuote{Amount: amount, Quote: model.Unpriced("not quoted")}
			inputs = append(inputs, quoteInput{route: i, amount: j, path: path, value: amount})
		}
	}
	if len(inputs) == 0 {
		return out, nil
	}

	failed, err := q.run(ctx, quoterABI, method, inputs, batchPass{chunk: q.policy.MulticallChunk, gasLimit: q.policy.GasLimitPerCall}, blockNumber, out)
	if err != nil {
		return nil, err
	}
	successRate := float64(len(inputs)-len(failed)) / float64(len(inputs))
	q.logger.Debug("v3 quotes",
		zap.Int("routes", len(routes)),
		zap.Int("quotes", len(inputs)),
		zap.Int("failed", len(failed)),
		zap.Float64("success_rate", successRate),
	)

	if len(failed) > 0 && successRate < q.policy.QuoteMinSuccessRate && q.policy.Fallback != nil {
		q.logger.Info("quote success rate below minimum, retrying failed quotes with fallback batches",
			zap.Float64("success_rate", successRate),
			zap.Float64("min_success_rate", q.policy.QuoteMinSuccessRate),
			zap.Int("failed", len(failed)),
		)
		fallback := batchPass{chunk: q.policy.Fallback.MulticallChunk, gasLimit: q.policy.Fallback.GasLimitPerCall}
		if _, err := q.run(ctx, quoterABI, method, failed, fallback, blockNumber, out); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// run quotes inputs in concurrent chunks and writes results into out. It
// returns the inputs whose individual call failed.
func (q *V3Quoter) run(ctx context.Context, quoterABI abi.ABI, method string, inputs []quoteInput, pass batchPass, blockNumber uint64, out []model.RouteWithQuotes) ([]quoteInput, error) {
	chunks := chunkInputs(inputs, pass.chunk)
	results := make([]chain.DecodedBatch, len(chunks))

	g, gctx := errgroup.WithContext(ctx)
	if q.policy.Concurrency > 0 {
		g.SetLimit(q.policy.Concurrency)
	}
	for i, chunk := range chunks {
		g.Go(func() error {
			batch, err := q.callChunk(gctx, quoterABI, method, chunk, pass.gasLimit, blockNumber)
			if err != nil {
				return fmt.Errorf("quote batch %d/%d: %w", i+1, len(chunks), err)
			}
			results[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var failed []quoteInput
	var gasPerCall uint64
	for i, chunk := range chunks {
		batch := results[i]
		if batch.ApproxGasUsedPerSuccessCall > gasPerCall {
			gasPerCall = batch.ApproxGasUsedPerSuccessCall
		}
		for j, input := range chunk {
			quote, ok := decodeQuote(batch.Results[j], input.value)
			if !ok {
				failed = append(failed, input)
			}
			out[input.route].Quotes[input.amount] = quote
		}
	}
	q.logger.Debug("v3 quote batches",
		zap.Int("batches", len(chunks)),
		zap.Int("chunk", pass.chunk),
		zap.Uint64("gas_limit_per_call", pass.gasLimit),
		zap.Uint64("approx_gas_used_per_success_call", gasPerCall),
	)
	return failed, nil
}

func (q *V3Quoter) callChunk(ctx context.Context, quoterABI abi.ABI, method string, chunk []quoteInput, gasLimit uint64, blockNumber uint64) (chain.DecodedBatch, error) {
	argSets := make([][]interface{}, len(chunk))
	for i, input := range chunk {
		argSets[i] = []interface{}{input.path, input.value}
	}
	var batch chain.DecodedBatch
	err := chain.Retry(ctx, q.policy.Retry, func(ctx context.Context) error {
		attemptCtx, cancel := context.WithTimeout(ctx, q.policy.Timeout)
		defer cancel()
		res, err := chain.CallSameFunctionOnContractWithMultipleParams(attemptCtx, q.caller, q.params.QuoterV2, quoterABI, method, argSets, gasLimit, blockNumber)
		if err != nil {
			return err
		}
		if blockNumber > 0 && res.BlockNumber != 0 && res.BlockNumber != blockNumber {
			return fmt.Errorf("batch answered at block %d, want %d", res.BlockNumber, blockNumber)
		}
		batch = res
		return nil
	}, func(attempt int, err error) {
		q.logger.Warn("v3 quote batch failed, retrying",
			zap.Int("attempt", attempt),
			zap.Int("calls", len(chunk)),
			zap.Error(err),
		)
	})
	return batch, err
}

func chunkInputs(inputs []quoteInput, size int) [][]quoteInput {
	if size <= 0 {
		size = len(inputs)
	}
	var chunks [][]quoteInput
	for start := 0; start < len(inputs); start += size {
		end := start + size
		if end > len(inputs) {
			end = len(inputs)
		}
		chunks = append(chunks, inputs[start:end])
	}
	return chunks
}

// decodeQuote maps a QuoterV2 result to an AmountQuote. Malformed payloads
// are Unpriced like reverts.
func decodeQuote(res chain.DecodedResult, amount *big.Int) (model.AmountQuote, bool) {
	quote := model.AmountQuote{Amount: amount}
	if !res.Success {
		quote.Quote = model.Unpriced(res.Reason)
		return quote, false
	}
	if len(res.Values) != 4 {
		quote.Quote = model.Unpriced(fmt.Sprintf("quoter returned %d values", len(res.Values)))
		return quote, false
	}
	value, ok0 := res.Values[0].(*big.Int)
	sqrtPrices, ok1 := res.Values[1].([]*big.Int)
	ticks, ok2 := res.Values[2].([]uint32)
	gasEstimate, ok3 := res.Values[3].(*big.Int)
	if !ok0 || !ok1 || !ok2 || !ok3 || value == nil {
		quote.Quote = model.Unpriced("malformed quoter result")
		return quote, false
	}
	quote.Quote = model.Priced(value)
	quote.SqrtPriceX96AfterList = sqrtPrices
	quote.InitializedTicksCrossedList = ticks
	quote.GasEstimate = gasEstimate
	return quote, true
}
