package chain

import (
	"context"
	"fmt"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
)

// DecodedResult is one sub-call decoded against its method outputs.
type DecodedResult struct {
	Success bool
	Values  []interface{}
	Reason  string
}

// DecodedBatch is a batch whose results are decoded, in call order.
type DecodedBatch struct {
	BlockNumber                 uint64
	Results                     []DecodedResult
	ApproxGasUsedPerSuccessCall uint64
}

// CallSameFunctionOnMultipleContracts calls method with the same args on every address.
func CallSameFunctionOnMultipleContracts(
	ctx context.Context,
	caller BatchCaller,
	addresses []common.Address,
	contractABI abi.ABI,
	method string,
	args []interface{},
	blockNumber uint64,
) (DecodedBatch, error) {
	data, err := contractABI.Pack(method, args...)
	if err != nil {
		return DecodedBatch{}, fmt.Errorf("pack %s: %w", method, err)
	}
	calls := make([]Call, len(addresses))
	methods := make([]string, len(addresses))
	for i, address := range addresses {
		calls[i] = Call{Target: address, CallData: data}
		methods[i] = method
	}
	return execute(ctx, caller, calls, contractABI, methods, blockNumber)
}

// CallSameFunctionOnContractWithMultipleParams calls method on one contract
// once per argument set, each with gasLimit (zero uses the transport default).
func CallSameFunctionOnContractWithMultipleParams(
	ctx context.Context,
	caller BatchCaller,
	address common.Address,
	contractABI abi.ABI,
	method string,
	argSets [][]interface{},
	gasLimit uint64,
	blockNumber uint64,
) (DecodedBatch, error) {
	calls := make([]Call, len(argSets))
	methods := make([]string, len(argSets))
	for i, args := range argSets {
		data, err := contractABI.Pack(method, args...)
		if err != nil {
			return DecodedBatch{}, fmt.Errorf("pack %s #%d: %w", method, i, err)
		}
		calls[i] = Call{Target: address, CallData: data, GasLimit: gasLimit}
		methods[i] = method
	}
	return execute(ctx, caller, calls, contractABI, methods, blockNumber)
}

// CallMultipleFunctionsOnSameContract calls each argument-less method on one contract.
func CallMultipleFunctionsOnSameContract(
	ctx context.Context,
	caller BatchCaller,
	address common.Address,
	contractABI abi.ABI,
	methods []string,
	blockNumber uint64,
) (DecodedBatch, error) {
	calls := make([]Call, len(methods))
	for i, method := range methods {
		data, err := contractABI.Pack(method)
		if err != nil {
			return DecodedBatch{}, fmt.Errorf("pack %s: %w", method, err)
		}
		calls[i] = Call{Target: address, CallData: data}
	}
	return execute(ctx, caller, calls, contractABI, methods, blockNumber)
}

func execute(ctx context.Context, caller BatchCaller, calls []Call, contractABI abi.ABI, methods []string, blockNumber uint64) (DecodedBatch, error) {
	if caller == nil {
		return DecodedBatch{}, fmt.Errorf("batch caller is nil")
	}
	batch, err := caller.CallBatch(ctx, calls, blockNumber)
	if err != nil {
		return DecodedBatch{}, err
	}
	if len(batch.Results) != len(calls) {
		return DecodedBatch{}, fmt.Errorf("batch returned %d results for %d calls", len(batch.Results), len(calls))
	}

	out := DecodedBatch{
		BlockNumber:                 batch.BlockNumber,
		Results:                     make([]DecodedResult, len(calls)),
		ApproxGasUsedPerSuccessCall: batch.ApproxGasUsedPerSuccessCall,
	}
	for i, res := range batch.Results {
		out.Results[i] = DecodeResult(contractABI, methods[i], res)
	}
	return out, nil
}

// DecodeResult unpacks one raw result; reverts, empty payloads and decode
// errors become unsuccessful results.
func DecodeResult(contractABI abi.ABI, method string, res CallResult) DecodedResult {
	if !res.Success {
		return DecodedResult{Reason: "reverted"}
	}
	if len(res.ReturnData) == 0 {
		return DecodedResult{Reason: "empty return data"}
	}
	values, err := contractABI.Unpack(method, res.ReturnData)
	if err != nil {
		return DecodedResult{Reason: fmt.Sprintf("decode %s: %v", method, err)}
	}
	return DecodedResult{Success: true, Values: values}
}
