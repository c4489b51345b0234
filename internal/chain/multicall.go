package chain

import (
	"context"
	"fmt"
	"math"
	"math/big"
	"sort"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// DefaultGasLimitPerCall caps each sub-call when no limit is given.
const DefaultGasLimitPerCall = 375_000

const multicallABIJSON = `[
  {
    "inputs": [
      {
        "components": [
          {"internalType": "address", "name": "target", "type": "address"},
          {"internalType": "uint256", "name": "gasLimit", "type": "uint256"},
          {"internalType": "bytes", "name": "callData", "type": "bytes"}
        ],
        "internalType": "struct UniswapInterfaceMulticall.Call[]",
        "name": "calls",
        "type": "tuple[]"
      }
    ],
    "name": "multicall",
    "outputs": [
      {"internalType": "uint256", "name": "blockNumber", "type": "uint256"},
      {
        "components": [
          {"internalType": "bool", "name": "success", "type": "bool"},
          {"internalType": "uint256", "name": "gasUsed", "type": "uint256"},
          {"internalType": "bytes", "name": "returnData", "type": "bytes"}
        ],
        "internalType": "struct UniswapInterfaceMulticall.Result[]",
        "name": "returnData",
        "type": "tuple[]"
      }
    ],
    "stateMutability": "nonpayable",
    "type": "function"
  }
]`

var (
	multicallABI     abi.ABI
	multicallABIOnce sync.Once
	multicallABIErr  error
)

// MulticallABI returns the parsed UniswapInterfaceMulticall ABI.
func MulticallABI() (abi.ABI, error) {
	multicallABIOnce.Do(func() {
		multicallABI, multicallABIErr = abi.JSON(strings.NewReader(multicallABIJSON))
	})
	return multicallABI, multicallABIErr
}

// Call is one encoded sub-call of a batch.
type Call struct {
	Target   common.Address
	CallData []byte
	GasLimit uint64
}

// CallResult is the raw outcome of one sub-call, in call order.
type CallResult struct {
	Success    bool
	GasUsed    uint64
	ReturnData []byte
}

// Failed reports a revert or an empty return payload.
func (r CallResult) Failed() bool {
	return !r.Success || len(r.ReturnData) == 0
}

// BatchResult is the outcome of one batch pinned to BlockNumber.
type BatchResult struct {
	BlockNumber                 uint64
	Results                     []CallResult
	ApproxGasUsedPerSuccessCall uint64
}

// BatchCaller executes encoded calls in one round trip. Results keep the
// order of calls.
type BatchCaller interface {
	CallBatch(ctx context.Context, calls []Call, blockNumber uint64) (BatchResult, error)
}

type multicallCall struct {
	Target   common.Address
	GasLimit *big.Int
	CallData []byte
}

type multicallResult struct {
	Success    bool
	GasUsed    *big.Int
	ReturnData []byte
}

// Multicall sends batches through a UniswapInterfaceMulticall contract.
type Multicall struct {
	caller          Caller
	address         common.Address
	gasLimitPerCall uint64
	logger          *zap.Logger
}

// NewMulticall builds a transport over caller. A zero gasLimitPerCall uses
// DefaultGasLimitPerCall.
func NewMulticall(caller Caller, address common.Address, gasLimitPerCall uint64, logger *zap.Logger) *Multicall {
	if logger == nil {
		logger = zap.NewNop()
	}
	if gasLimitPerCall == 0 {
		gasLimitPerCall = DefaultGasLimitPerCall
	}
	return &Multicall{
		caller:          caller,
		address:         address,
		gasLimitPerCall: gasLimitPerCall,
		logger:          logger,
	}
}

// CallBatch executes calls at blockNumber; zero means latest.
func (m *Multicall) CallBatch(ctx context.Context, calls []Call, blockNumber uint64) (BatchResult, error) {
	if m.caller == nil {
		return BatchResult{}, fmt.Errorf("multicall caller is nil")
	}
	if len(calls) == 0 {
		return BatchResult{BlockNumber: blockNumber}, nil
	}

	parsed, err := MulticallABI()
	if err != nil {
		return BatchResult{}, fmt.Errorf("parse multicall abi: %w", err)
	}

	packed := make([]multicallCall, len(calls))
	for i, call := range calls {
		gasLimit := call.GasLimit
		if gasLimit == 0 {
			gasLimit = m.gasLimitPerCall
		}
		packed[i] = multicallCall{
			Target:   call.Target,
			GasLimit: new(big.Int).SetUint64(gasLimit),
			CallData: call.CallData,
		}
	}

	data, err := parsed.Pack("multicall", packed)
	if err != nil {
		return BatchResult{}, fmt.Errorf("pack multicall: %w", err)
	}

	var block *big.Int
	if blockNumber > 0 {
		block = new(big.Int).SetUint64(blockNumber)
	}
	to := m.address
	resp, err := m.caller.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, block)
	if err != nil {
		return BatchResult{}, fmt.Errorf("call multicall: %w", err)
	}

	values, err := parsed.Unpack("multicall", resp)
	if err != nil {
		return BatchResult{}, fmt.Errorf("unpack multicall: %w", err)
	}
	if len(values) != 2 {
		return BatchResult{}, fmt.Errorf("multicall return size %d", len(values))
	}
	resultBlock, ok := values[0].(*big.Int)
	if !ok {
		return BatchResult{}, fmt.Errorf("multicall block number type %T", values[0])
	}
	raw := *abi.ConvertType(values[1], new([]multicallResult)).(*[]multicallResult)
	if len(raw) != len(calls) {
		return BatchResult{}, fmt.Errorf("multicall returned %d results for %d calls", len(raw), len(calls))
	}

	out := BatchResult{
		BlockNumber: resultBlock.Uint64(),
		Results:     make([]CallResult, len(raw)),
	}
	gasUsed := make([]uint64, 0, len(raw))
	for i, item := range raw {
		res := CallResult{Success: item.Success, ReturnData: item.ReturnData}
		if item.GasUsed != nil {
			res.GasUsed = item.GasUsed.Uint64()
		}
		out.Results[i] = res
		if !res.Failed() {
			gasUsed = append(gasUsed, res.GasUsed)
		}
	}
	out.ApproxGasUsedPerSuccessCall = Percentile(gasUsed, 99)

	m.logger.Debug("multicall done",
		zap.Int("calls", len(calls)),
		zap.Int("succeeded", len(gasUsed)),
		zap.Uint64("block", out.BlockNumber),
		zap.Uint64("approx_gas_per_success_call", out.ApproxGasUsedPerSuccessCall),
	)
	return out, nil
}

// Percentile returns the nearest-rank percentile of values.
func Percentile(values []uint64, p float64) uint64 {
	if len(values) == 0 {
		return 0
	}
	sorted := append([]uint64(nil), values...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	rank := int(math.Ceil(p / 100 * float64(len(sorted))))
	if rank < 1 {
		rank = 1
	}
	if rank > len(sorted) {
		rank = len(sorted)
	}
	return sorted[rank-1]
}
